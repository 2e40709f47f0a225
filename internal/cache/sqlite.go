package cache

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps both slots as rows of a key/value table.
type SQLiteStore struct {
	db   *sql.DB
	keys Keys
	mu   sync.RWMutex
}

// NewSQLiteStore opens (and creates) the cache database at dbPath.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string, keys Keys) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, keys: keys.withDefaults()}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load reads both slots in one query so the pair comes from one snapshot.
func (s *SQLiteStore) Load(ctx context.Context) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value, updated_at FROM kv WHERE key IN (?, ?)",
		s.keys.Content, s.keys.Fingerprint,
	)
	if err != nil {
		return Entry{}, false, fmt.Errorf("query cache: %w", err)
	}
	defer rows.Close()

	var e Entry
	for rows.Next() {
		var key, value string
		var updated int64
		if err := rows.Scan(&key, &value, &updated); err != nil {
			return Entry{}, false, fmt.Errorf("scan cache row: %w", err)
		}
		switch key {
		case s.keys.Content:
			e.Content = value
			e.UpdatedAt = time.UnixMilli(updated)
		case s.keys.Fingerprint:
			e.Fingerprint = value
		}
	}
	if err := rows.Err(); err != nil {
		return Entry{}, false, fmt.Errorf("iterate cache rows: %w", err)
	}
	if !e.Usable() {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Save writes both slots in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, e Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	const upsert = `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := tx.ExecContext(ctx, upsert, s.keys.Content, e.Content, now); err != nil {
		return fmt.Errorf("write content slot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, s.keys.Fingerprint, e.Fingerprint, now); err != nil {
		return fmt.Errorf("write fingerprint slot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cache entry: %w", err)
	}
	return nil
}

// Clear deletes both slots.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key IN (?, ?)", s.keys.Content, s.keys.Fingerprint)
	if err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
