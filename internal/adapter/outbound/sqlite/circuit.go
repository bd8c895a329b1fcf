package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sentinelcore/sentinelcore/internal/domain/circuitbreaker"
)

// GetOrCreateCircuit loads the circuit-breaker record for host, creating a
// fresh closed-state one if none exists yet.
func (s *Store) GetOrCreateCircuit(ctx context.Context, host string) (circuitbreaker.Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT host, state, failure_count, last_failure, last_success, opened_at, half_open_at FROM circuit_breakers WHERE host = ?", host)
	rec, err := scanCircuit(row)
	if err == nil {
		return rec, nil
	}
	if err != sql.ErrNoRows {
		return circuitbreaker.Record{}, fmt.Errorf("sqlite: get circuit breaker %s: %w", host, err)
	}

	fresh := circuitbreaker.NewRecord(host)
	if err := s.SaveCircuit(ctx, fresh); err != nil {
		return circuitbreaker.Record{}, err
	}
	return fresh, nil
}

func scanCircuit(row *sql.Row) (circuitbreaker.Record, error) {
	var rec circuitbreaker.Record
	var state string
	var lastFailure, lastSuccess, openedAt, halfOpenAt int64
	if err := row.Scan(&rec.Host, &state, &rec.FailureCount, &lastFailure, &lastSuccess, &openedAt, &halfOpenAt); err != nil {
		return circuitbreaker.Record{}, err
	}
	rec.State = circuitbreaker.State(state)
	rec.LastFailure = millisToTime(lastFailure)
	rec.LastSuccess = millisToTime(lastSuccess)
	rec.OpenedAt = millisToTime(openedAt)
	rec.HalfOpenAt = millisToTime(halfOpenAt)
	return rec, nil
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// SaveCircuit upserts the circuit-breaker record, keyed by host.
func (s *Store) SaveCircuit(ctx context.Context, rec circuitbreaker.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO circuit_breakers (host, state, failure_count, last_failure, last_success, opened_at, half_open_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(host) DO UPDATE SET
			state=excluded.state, failure_count=excluded.failure_count, last_failure=excluded.last_failure,
			last_success=excluded.last_success, opened_at=excluded.opened_at, half_open_at=excluded.half_open_at
	`, rec.Host, string(rec.State), rec.FailureCount, timeToMillis(rec.LastFailure), timeToMillis(rec.LastSuccess),
		timeToMillis(rec.OpenedAt), timeToMillis(rec.HalfOpenAt))
	if err != nil {
		return fmt.Errorf("sqlite: save circuit breaker %s: %w", rec.Host, err)
	}
	return nil
}
