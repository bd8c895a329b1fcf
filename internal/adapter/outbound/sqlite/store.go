// Package sqlite implements every internal/port persistence interface
// against a single modernc.org/sqlite-backed database file, in WAL mode, so
// that the transactional guarantees the engine needs (audit insert,
// bucket-refill-and-consume, token-validate-and-consume, circuit-state
// transition) are satisfied by ordinary SQLite transactions rather than an
// in-process lock.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store is the shared handle every adapter method below operates through.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the database file at path, applies the
// schema, and switches on WAL journaling plus a busy timeout so concurrent
// readers never block the single writer goroutine behind a "database is
// locked" error.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers on one handle

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: pragma %q: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
