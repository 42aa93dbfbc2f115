package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

var ErrNotFound = errors.New("kv: key not found")

// Options configures the Badger store.
type Options struct {
	// Dir holds the data files. Required unless InMemory.
	Dir      string
	InMemory bool
	Logger   *slog.Logger
}

// Badger implements ports.KVStore on BadgerDB.
type Badger struct {
	db *badger.DB
}

func Open(opts Options) (*Badger, error) {
	if !opts.InMemory && strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("kv: Options.Dir is required for on-disk mode")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(slogAdapter{logger: logger.With("component", "badger")})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Get(_ context.Context, key string) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

func (b *Badger) Set(_ context.Context, key string, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (b *Badger) Delete(_ context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// Getter and Setter are the halves of ports.KVStore the JSON helpers need.
type Getter interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

type Setter interface {
	Set(ctx context.Context, key string, value []byte) error
}

// GetJSON decodes the value at key into out. It returns ErrNotFound for a
// missing key.
func GetJSON(ctx context.Context, store Getter, key string, out any) error {
	raw, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func SetJSON(ctx context.Context, store Setter, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return store.Set(ctx, key, raw)
}

// slogAdapter routes badger's printf logging into slog. Info and debug are
// dropped; badger is chatty at those levels.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Errorf(f string, v ...interface{}) {
	a.logger.Error(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (a slogAdapter) Warningf(f string, v ...interface{}) {
	a.logger.Warn(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (slogAdapter) Infof(string, ...interface{})  {}
func (slogAdapter) Debugf(string, ...interface{}) {}
