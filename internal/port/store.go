// Package port declares the outbound interfaces the policy engine and
// interceptor depend on, implemented by the sqlite adapter. Keeping these as
// interfaces at the domain boundary lets the engine be tested against an
// in-memory fake without pulling in database/sql or CGO.
package port

import (
	"context"
	"time"

	"github.com/sentinelcore/sentinelcore/internal/domain/anomaly"
	"github.com/sentinelcore/sentinelcore/internal/domain/audit"
	"github.com/sentinelcore/sentinelcore/internal/domain/circuitbreaker"
	"github.com/sentinelcore/sentinelcore/internal/domain/confirmtoken"
	"github.com/sentinelcore/sentinelcore/internal/domain/mode"
	"github.com/sentinelcore/sentinelcore/internal/domain/quarantine"
	"github.com/sentinelcore/sentinelcore/internal/domain/ratelimit"
	"github.com/sentinelcore/sentinelcore/internal/domain/rule"
)

// RuleStore is the admin-facing and engine-facing surface over the rules
// table. The engine only ever calls ListEnabled; the rest backs the
// administrative facade, which lives behind this same persistent store.
type RuleStore interface {
	ListEnabled(ctx context.Context) ([]*rule.Rule, error)
	List(ctx context.Context) ([]*rule.Rule, error)
	Get(ctx context.Context, id string) (*rule.Rule, error)
	Save(ctx context.Context, r *rule.Rule) error
	Delete(ctx context.Context, id string) error
}

// CircuitBreakerStore persists per-host circuit-breaker records. GetOrCreate
// and Save participate in the engine's single serialized
// evaluate-then-audit-write transaction.
type CircuitBreakerStore interface {
	GetOrCreate(ctx context.Context, host string) (circuitbreaker.Record, error)
	Save(ctx context.Context, rec circuitbreaker.Record) error
}

// QuarantineStore is the quarantine registry's persistence surface.
type QuarantineStore interface {
	Lookup(ctx context.Context, scope quarantine.Scope, target string, now time.Time) (quarantine.Entry, bool, error)
	Upsert(ctx context.Context, e quarantine.Entry) error
	Delete(ctx context.Context, scope quarantine.Scope, target string) error
	List(ctx context.Context, now time.Time) ([]quarantine.Entry, error)
}

// RateLimitStore persists token buckets keyed by (rule, tool, host, agent).
type RateLimitStore interface {
	GetOrCreate(ctx context.Context, key ratelimit.Key, capacity float64, now time.Time) (ratelimit.Bucket, error)
	Save(ctx context.Context, b ratelimit.Bucket) error
	DeleteStale(ctx context.Context, now time.Time) (int, error)
}

// ConfirmTokenStore persists confirmation tokens and supports atomic
// validate-and-consume.
type ConfirmTokenStore interface {
	Save(ctx context.Context, t confirmtoken.Token) error
	// ValidateAndConsume loads the token, checks it per confirmtoken.Validate,
	// and if valid marks it used, atomically. It returns the token as it was
	// immediately before consumption, and whether it validated.
	ValidateAndConsume(ctx context.Context, value, tool, host, agent string, now time.Time) (confirmtoken.Token, bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// AnomalyStore persists per-(tool,host) anomaly baselines.
type AnomalyStore interface {
	GetOrCreate(ctx context.Context, tool, host string) (*anomaly.Baseline, error)
	Save(ctx context.Context, b *anomaly.Baseline) error
}

// AuditStore is the append-only, hash-chained audit log's persistence
// surface.
type AuditStore interface {
	// Append inserts the next entry transactionally: it computes the next
	// sequence number and previous_hash itself and returns the assigned id.
	Append(ctx context.Context, e *audit.Entry) (int64, error)
	UpdateResponse(ctx context.Context, sequenceNumber int64, status audit.ResponseStatus, errMsg string) error
	Query(ctx context.Context, q AuditQuery) ([]*audit.Entry, error)
	// AllOrdered returns every entry ordered by sequence_number ascending,
	// for Verify() and for anomaly's "previous tool for this host" lookup.
	AllOrdered(ctx context.Context) ([]*audit.Entry, error)
	LastForHost(ctx context.Context, host string, before time.Time) (*audit.Entry, error)
	CountLastHour(ctx context.Context, tool, host string, now time.Time) (total int, errors int, err error)
}

// AuditQuery filters Query's result set.
type AuditQuery struct {
	Tool      string
	Host      string
	Agent     string
	Verdict   string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// ConfigStore is the key/value config table: at minimum it carries `mode`
// and the four anomaly thresholds.
type ConfigStore interface {
	GetMode(ctx context.Context) (mode.Mode, error)
	SetMode(ctx context.Context, m mode.Mode) error
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// AlertSink is a fire-and-forget notification port for high-risk
// decisions. Nothing in this module implements or calls it: the interceptor
// records alerts through AlertStore.Insert, and webhook delivery is external.
type AlertSink interface {
	Notify(ctx context.Context, alert Alert)
}

// Alert is one row of the alerts table: a record of a decision judged
// interesting enough for operator attention.
type Alert struct {
	ID           int64
	SequenceNum  int64
	Tool, Host, Agent string
	RiskScore    float64
	Reason       string
	CreatedAt    time.Time
	Acknowledged bool
}

// AlertStore persists alerts and supports the admin facade's
// acknowledge/list operations.
type AlertStore interface {
	Insert(ctx context.Context, a Alert) (int64, error)
	List(ctx context.Context, onlyUnacknowledged bool, limit int) ([]Alert, error)
	Acknowledge(ctx context.Context, id int64) error
}
