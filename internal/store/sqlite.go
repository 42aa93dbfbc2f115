package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"taskvoice/internal/domain"
)

var (
	ErrThreadNotFound = errors.New("thread not found")
	ErrTurnNotFound   = errors.New("turn not found")
)

const schema = `
	CREATE TABLE IF NOT EXISTS threads (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turns (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		thread_id TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS turns_thread_seq ON turns(thread_id, seq);
`

// Store persists conversation threads and their turns in SQLite.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the default database path.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "taskvoice", "threads.sqlite")
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateThread(ctx context.Context, thread domain.Thread) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, thread.ID, thread.Title, toMillis(thread.CreatedAt), toMillis(thread.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	return nil
}

// GetThread returns a thread with its turns in insertion order.
func (s *Store) GetThread(ctx context.Context, id string) (domain.Thread, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, created_at, updated_at
		FROM threads
		WHERE id = ?
	`, id)

	thread, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Thread{}, ErrThreadNotFound
	}
	if err != nil {
		return domain.Thread{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, text, status, created_at
		FROM turns
		WHERE thread_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return domain.Thread{}, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var turn domain.Turn
		var role, status string
		var createdAt int64
		if err := rows.Scan(&turn.ID, &role, &turn.Text, &status, &createdAt); err != nil {
			return domain.Thread{}, fmt.Errorf("scan turn: %w", err)
		}
		turn.Role = domain.Role(role)
		turn.Status = domain.TurnStatus(status)
		turn.Timestamp = fromMillis(createdAt)
		thread.Turns = append(thread.Turns, turn)
	}
	return thread, rows.Err()
}

// ListThreads returns every thread, most recently updated first, without
// turns.
func (s *Store) ListThreads(ctx context.Context) ([]domain.Thread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, created_at, updated_at
		FROM threads
		ORDER BY updated_at DESC, created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()

	var threads []domain.Thread
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		threads = append(threads, thread)
	}
	return threads, rows.Err()
}

func (s *Store) UpdateThread(ctx context.Context, thread domain.Thread) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE threads SET title = ?, updated_at = ? WHERE id = ?
	`, thread.Title, toMillis(thread.UpdatedAt), thread.ID)
	if err != nil {
		return fmt.Errorf("update thread: %w", err)
	}
	return requireRow(res, ErrThreadNotFound)
}

func (s *Store) DeleteThread(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	return requireRow(res, ErrThreadNotFound)
}

// AppendTurn adds a turn and bumps the thread's updated time.
func (s *Store) AppendTurn(ctx context.Context, threadID string, turn domain.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE threads SET updated_at = MAX(updated_at, ?) WHERE id = ?
	`, toMillis(turn.Timestamp), threadID)
	if err != nil {
		return fmt.Errorf("touch thread: %w", err)
	}
	if err := requireRow(res, ErrThreadNotFound); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO turns (id, thread_id, role, text, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, turn.ID, threadID, string(turn.Role), turn.Text, string(turn.Status), toMillis(turn.Timestamp)); err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return tx.Commit()
}

func (s *Store) SetTurnStatus(ctx context.Context, turnID string, status domain.TurnStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE turns SET status = ? WHERE id = ?`, string(status), turnID)
	if err != nil {
		return fmt.Errorf("update turn: %w", err)
	}
	return requireRow(res, ErrTurnNotFound)
}

// ClearTurns removes every turn of a thread but keeps the thread.
func (s *Store) ClearTurns(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("delete turns: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanThread(row scanner) (domain.Thread, error) {
	var thread domain.Thread
	var createdAt, updatedAt int64
	if err := row.Scan(&thread.ID, &thread.Title, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Thread{}, err
		}
		return domain.Thread{}, fmt.Errorf("scan thread: %w", err)
	}
	thread.CreatedAt = fromMillis(createdAt)
	thread.UpdatedAt = fromMillis(updatedAt)
	return thread, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
