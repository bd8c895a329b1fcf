package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sentinelcore/sentinelcore/internal/domain/rule"
)

// ListEnabledRules returns every rule with enabled = 1, for the engine's
// rule-match step.
func (s *Store) ListEnabledRules(ctx context.Context) ([]*rule.Rule, error) {
	return s.queryRules(ctx, "WHERE enabled = 1")
}

// ListRules returns every rule, enabled or not, for the administrative facade.
func (s *Store) ListRules(ctx context.Context) ([]*rule.Rule, error) {
	return s.queryRules(ctx, "")
}

func (s *Store) queryRules(ctx context.Context, where string) ([]*rule.Rule, error) {
	q := "SELECT id, name, priority, action, enabled, tool_pattern, host_pattern, agent_pattern, argument_pattern, rate_limit_json, schedule_json, created_at, updated_at FROM rules " + where
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list rules: %w", err)
	}
	defer rows.Close()

	var out []*rule.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRule(row interface {
	Scan(dest ...interface{}) error
}) (*rule.Rule, error) {
	var r rule.Rule
	var enabled int
	var rateLimitJSON, scheduleJSON sql.NullString
	var createdAt, updatedAt int64

	if err := row.Scan(&r.ID, &r.Name, &r.Priority, &r.Action, &enabled,
		&r.ToolPattern, &r.HostPattern, &r.AgentPattern, &r.ArgumentPattern,
		&rateLimitJSON, &scheduleJSON, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("sqlite: scan rule: %w", err)
	}
	r.Enabled = enabled != 0
	r.CreatedAt = time.UnixMilli(createdAt)
	r.UpdatedAt = time.UnixMilli(updatedAt)

	if rateLimitJSON.Valid && rateLimitJSON.String != "" {
		var spec rule.RateLimitSpec
		if err := json.Unmarshal([]byte(rateLimitJSON.String), &spec); err != nil {
			return nil, fmt.Errorf("sqlite: decode rate_limit_json for rule %s: %w", r.ID, err)
		}
		r.RateLimit = &spec
	}
	if scheduleJSON.Valid && scheduleJSON.String != "" {
		var sched rule.Schedule
		if err := json.Unmarshal([]byte(scheduleJSON.String), &sched); err != nil {
			return nil, fmt.Errorf("sqlite: decode schedule_json for rule %s: %w", r.ID, err)
		}
		r.Schedule = &sched
	}
	if err := r.Compile(); err != nil {
		return nil, fmt.Errorf("sqlite: compile argument_pattern for rule %s: %w", r.ID, err)
	}
	return &r, nil
}

// GetRule loads a single rule by id, returning (nil, nil) if it does not exist.
func (s *Store) GetRule(ctx context.Context, id string) (*rule.Rule, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, priority, action, enabled, tool_pattern, host_pattern, agent_pattern, argument_pattern, rate_limit_json, schedule_json, created_at, updated_at FROM rules WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get rule: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanRule(rows)
}

// SaveRule upserts r by id.
func (s *Store) SaveRule(ctx context.Context, r *rule.Rule) error {
	if !r.Action.IsValid() {
		return fmt.Errorf("sqlite: save rule %s: invalid action %q", r.ID, r.Action)
	}
	var rateLimitJSON, scheduleJSON []byte
	var err error
	if r.RateLimit != nil {
		rateLimitJSON, err = json.Marshal(r.RateLimit)
		if err != nil {
			return fmt.Errorf("sqlite: encode rate_limit: %w", err)
		}
	}
	if r.Schedule != nil {
		scheduleJSON, err = json.Marshal(r.Schedule)
		if err != nil {
			return fmt.Errorf("sqlite: encode schedule: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rules (id, name, priority, action, enabled, tool_pattern, host_pattern, agent_pattern, argument_pattern, rate_limit_json, schedule_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, priority=excluded.priority, action=excluded.action, enabled=excluded.enabled,
			tool_pattern=excluded.tool_pattern, host_pattern=excluded.host_pattern, agent_pattern=excluded.agent_pattern,
			argument_pattern=excluded.argument_pattern, rate_limit_json=excluded.rate_limit_json,
			schedule_json=excluded.schedule_json, updated_at=excluded.updated_at
	`, r.ID, r.Name, r.Priority, string(r.Action), boolToInt(r.Enabled), r.ToolPattern, r.HostPattern, r.AgentPattern,
		r.ArgumentPattern, nullableString(rateLimitJSON), nullableString(scheduleJSON), r.CreatedAt.UnixMilli(), r.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite: save rule %s: %w", r.ID, err)
	}
	return nil
}

// DeleteRule removes a rule by id. Deleting an id that does not exist is not
// an error.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: delete rule %s: %w", id, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

var errNotFound = errors.New("sqlite: not found")
