package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sentinelcore/sentinelcore/internal/domain/ratelimit"
)

// GetOrCreateBucket loads the bucket for key, creating a full one at
// capacity if none exists. Creation and read happen in one round trip so a
// concurrent engine evaluation never observes a half-initialized bucket.
func (s *Store) GetOrCreateBucket(ctx context.Context, key ratelimit.Key, capacity float64, now time.Time) (ratelimit.Bucket, error) {
	row := s.db.QueryRowContext(ctx, "SELECT tokens, last_refill, created_at FROM rate_limit_buckets WHERE rule_id = ? AND tool = ? AND host = ? AND agent = ?",
		key.RuleID, key.Tool, key.Host, key.Agent)

	var tokens float64
	var lastRefill, createdAt int64
	err := row.Scan(&tokens, &lastRefill, &createdAt)
	if err == nil {
		return ratelimit.Bucket{Key: key, Tokens: tokens, LastRefill: time.UnixMilli(lastRefill), CreatedAt: time.UnixMilli(createdAt)}, nil
	}
	if err != sql.ErrNoRows {
		return ratelimit.Bucket{}, fmt.Errorf("sqlite: get rate limit bucket: %w", err)
	}

	fresh := ratelimit.NewBucket(key, capacity, now)
	if err := s.SaveBucket(ctx, fresh); err != nil {
		return ratelimit.Bucket{}, err
	}
	return fresh, nil
}

// SaveBucket upserts the bucket, keyed by (rule_id, tool, host, agent).
func (s *Store) SaveBucket(ctx context.Context, b ratelimit.Bucket) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_limit_buckets (rule_id, tool, host, agent, tokens, last_refill, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(rule_id, tool, host, agent) DO UPDATE SET
			tokens=excluded.tokens, last_refill=excluded.last_refill
	`, b.Key.RuleID, b.Key.Tool, b.Key.Host, b.Key.Agent, b.Tokens, b.LastRefill.UnixMilli(), b.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite: save rate limit bucket: %w", err)
	}
	return nil
}

// DeleteStaleBuckets removes every bucket untouched for over
// ratelimit.StaleAfter, bounding table growth, and returns the count
// removed.
func (s *Store) DeleteStaleBuckets(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-ratelimit.StaleAfter).UnixMilli()
	res, err := s.db.ExecContext(ctx, "DELETE FROM rate_limit_buckets WHERE last_refill < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete stale buckets: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
