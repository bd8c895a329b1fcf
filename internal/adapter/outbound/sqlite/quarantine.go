package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sentinelcore/sentinelcore/internal/domain/quarantine"
)

// LookupQuarantine returns the live (non-expired) entry for (scope, target),
// if any. An expired entry is treated as absent but is not deleted here;
// cleanup is opportunistic, via DeleteQuarantine or a periodic sweep.
func (s *Store) LookupQuarantine(ctx context.Context, scope quarantine.Scope, target string, now time.Time) (quarantine.Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT scope, target, reason, created_at, expires_at, created_by FROM quarantine WHERE scope = ? AND target = ?", string(scope), target)
	e, err := scanQuarantine(row)
	if err == sql.ErrNoRows {
		return quarantine.Entry{}, false, nil
	}
	if err != nil {
		return quarantine.Entry{}, false, fmt.Errorf("sqlite: lookup quarantine %s/%s: %w", scope, target, err)
	}
	if e.IsExpired(now) {
		return quarantine.Entry{}, false, nil
	}
	return e, true, nil
}

func scanQuarantine(row *sql.Row) (quarantine.Entry, error) {
	var e quarantine.Entry
	var scope string
	var createdAt int64
	var expiresAt sql.NullInt64
	if err := row.Scan(&scope, &e.Target, &e.Reason, &createdAt, &expiresAt, &e.CreatedBy); err != nil {
		return quarantine.Entry{}, err
	}
	e.Scope = quarantine.Scope(scope)
	e.CreatedAt = time.UnixMilli(createdAt)
	if expiresAt.Valid {
		t := time.UnixMilli(expiresAt.Int64)
		e.ExpiresAt = &t
	}
	return e, nil
}

// UpsertQuarantine inserts or replaces the entry keyed by (scope, target).
func (s *Store) UpsertQuarantine(ctx context.Context, e quarantine.Entry) error {
	var expiresAt interface{}
	if e.ExpiresAt != nil {
		expiresAt = e.ExpiresAt.UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quarantine (scope, target, reason, created_at, expires_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, target) DO UPDATE SET
			reason=excluded.reason, created_at=excluded.created_at, expires_at=excluded.expires_at, created_by=excluded.created_by
	`, string(e.Scope), e.Target, e.Reason, e.CreatedAt.UnixMilli(), expiresAt, e.CreatedBy)
	if err != nil {
		return fmt.Errorf("sqlite: upsert quarantine %s/%s: %w", e.Scope, e.Target, err)
	}
	return nil
}

// DeleteQuarantine removes the entry keyed by (scope, target), if present.
func (s *Store) DeleteQuarantine(ctx context.Context, scope quarantine.Scope, target string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM quarantine WHERE scope = ? AND target = ?", string(scope), target)
	if err != nil {
		return fmt.Errorf("sqlite: delete quarantine %s/%s: %w", scope, target, err)
	}
	return nil
}

// ListQuarantine returns every entry, live or expired; callers filter by
// IsExpired(now) themselves since the administrative facade wants to see
// expired entries too (for audit/history purposes).
func (s *Store) ListQuarantine(ctx context.Context, now time.Time) ([]quarantine.Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT scope, target, reason, created_at, expires_at, created_by FROM quarantine")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list quarantine: %w", err)
	}
	defer rows.Close()

	var out []quarantine.Entry
	for rows.Next() {
		var e quarantine.Entry
		var scope string
		var createdAt int64
		var expiresAt sql.NullInt64
		if err := rows.Scan(&scope, &e.Target, &e.Reason, &createdAt, &expiresAt, &e.CreatedBy); err != nil {
			return nil, fmt.Errorf("sqlite: scan quarantine: %w", err)
		}
		e.Scope = quarantine.Scope(scope)
		e.CreatedAt = time.UnixMilli(createdAt)
		if expiresAt.Valid {
			t := time.UnixMilli(expiresAt.Int64)
			e.ExpiresAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
