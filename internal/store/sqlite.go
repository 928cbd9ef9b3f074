// Package store provides the durable store backing the ingestion pipeline.
//
// All cross-invocation coordination (idempotency receipts, the single-active-
// batch invariant, batch lifecycle transitions) is expressed as conditional
// SQL writes: create-if-absent inserts and compare-and-swap updates. No lock
// service is involved; a failed conditional write is the coordination signal.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database holding receipts, contents, and batches.
type Store struct {
	db *sql.DB
}

// Open creates a new store. Use ":memory:" for an in-memory database, or a
// file path for persistent storage.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Concurrent webhook deliveries share one connection pool; serialize at
	// the driver level so conditional writes keep their atomicity.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS webhook_receipts (
		provider TEXT NOT NULL,
		event_id TEXT NOT NULL,
		event_hash TEXT NOT NULL,
		processed_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		PRIMARY KEY (provider, event_id)
	);
	CREATE INDEX IF NOT EXISTS idx_receipts_expiry ON webhook_receipts(expires_at);

	CREATE TABLE IF NOT EXISTS contents (
		provider TEXT NOT NULL,
		id TEXT NOT NULL,
		content_type TEXT NOT NULL,
		status TEXT NOT NULL,
		title TEXT,
		provider_type TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		synced_at INTEGER NOT NULL,
		PRIMARY KEY (provider, id)
	);
	CREATE INDEX IF NOT EXISTS idx_contents_type ON contents(content_type);
	CREATE INDEX IF NOT EXISTS idx_contents_status ON contents(status);

	CREATE TABLE IF NOT EXISTS batches (
		batch_id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		status TEXT NOT NULL,
		event_count INTEGER NOT NULL,
		events TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		scheduled_build_time INTEGER NOT NULL,
		batch_window_seconds INTEGER NOT NULL,
		is_bulk INTEGER NOT NULL,
		build_id TEXT NOT NULL DEFAULT '',
		last_error TEXT NOT NULL DEFAULT '',
		expires_at INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_one_active_batch
		ON batches(client_id) WHERE status = 'active';
	CREATE INDEX IF NOT EXISTS idx_batches_expiry ON batches(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// isUniqueViolation reports whether err is a unique-constraint failure. The
// modernc driver surfaces SQLITE_CONSTRAINT_UNIQUE through the error text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
