package usage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"taskvoice/internal/domain"
	"taskvoice/internal/kv"
	"taskvoice/internal/ports"
	"taskvoice/internal/providers/airtable"
)

const cacheKey = "usage/snapshot"

// Source provides telemetry rows, newest first.
type Source interface {
	UsageRecords(ctx context.Context, limit int) ([]airtable.UsageRecord, error)
}

type Config struct {
	Interval time.Duration
	Records  int
	Logger   *slog.Logger
	// OnChange is called after every successful refresh.
	OnChange func(domain.UsageSnapshot)
}

// Monitor polls usage telemetry and caches the last snapshot so the
// indicator has something to show before the first refresh completes.
type Monitor struct {
	source Source
	cache  ports.KVStore
	cfg    Config
	now    func() time.Time

	mu       sync.RWMutex
	snapshot domain.UsageSnapshot
	loaded   bool
}

func NewMonitor(source Source, cache ports.KVStore, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Records <= 0 {
		cfg.Records = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Monitor{source: source, cache: cache, cfg: cfg, now: time.Now}
}

// Snapshot returns the latest known usage. ok is false until telemetry has
// been seen, either live or from the cache.
func (m *Monitor) Snapshot() (domain.UsageSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.loaded {
		return domain.UsageSnapshot{}, false
	}
	snap := m.snapshot
	// Health depends on the clock, not only on the data.
	snap.Health = Classify(snap, m.now())
	return snap, true
}

// LoadCached restores the last persisted snapshot.
func (m *Monitor) LoadCached(ctx context.Context) error {
	if m.cache == nil {
		return nil
	}
	var snap domain.UsageSnapshot
	if err := kv.GetJSON(ctx, m.cache, cacheKey, &snap); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil
		}
		return err
	}
	m.store(snap)
	return nil
}

// Refresh fetches telemetry once.
func (m *Monitor) Refresh(ctx context.Context) (domain.UsageSnapshot, error) {
	records, err := m.source.UsageRecords(ctx, m.cfg.Records)
	if err != nil {
		return domain.UsageSnapshot{}, err
	}

	snap, ok := BuildSnapshot(records, m.now())
	if !ok {
		m.cfg.Logger.Debug("no usage telemetry in records", "records", len(records))
		current, _ := m.Snapshot()
		return current, nil
	}

	m.store(snap)
	if m.cache != nil {
		if err := kv.SetJSON(ctx, m.cache, cacheKey, snap); err != nil {
			m.cfg.Logger.Warn("failed to cache usage snapshot", "error", err)
		}
	}
	if m.cfg.OnChange != nil {
		m.cfg.OnChange(snap)
	}
	return snap, nil
}

// Run refreshes immediately and then on every interval until ctx ends.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := m.Refresh(ctx); err != nil && ctx.Err() == nil {
			m.cfg.Logger.Warn("usage refresh failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) store(snap domain.UsageSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = snap
	m.loaded = true
}
