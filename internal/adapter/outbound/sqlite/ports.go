package sqlite

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
	"github.com/sentinelcore/sentinelcore/internal/port"
)

// Store implements every internal/port interface, but under uniquely-named
// methods (ListEnabledRules, SaveCircuit, SaveBucket, ...) since Go does not
// allow one type to declare two methods named "Save" with different
// signatures. These thin wrappers adapt each uniquely-named group back onto
// the port interface names the engine and service layer depend on.

// Rules adapts Store to port.RuleStore.
type Rules struct{ *Store }

func (r Rules) ListEnabled(ctx context.Context) ([]*rule.Rule, error) { return r.ListEnabledRules(ctx) }
func (r Rules) List(ctx context.Context) ([]*rule.Rule, error)        { return r.ListRules(ctx) }
func (r Rules) Get(ctx context.Context, id string) (*rule.Rule, error) { return r.GetRule(ctx, id) }
func (r Rules) Save(ctx context.Context, rl *rule.Rule) error         { return r.SaveRule(ctx, rl) }
func (r Rules) Delete(ctx context.Context, id string) error           { return r.DeleteRule(ctx, id) }

var _ port.RuleStore = Rules{}

// Circuits adapts Store to port.CircuitBreakerStore.
type Circuits struct{ *Store }

func (c Circuits) GetOrCreate(ctx context.Context, host string) (circuitbreaker.Record, error) {
	return c.GetOrCreateCircuit(ctx, host)
}
func (c Circuits) Save(ctx context.Context, rec circuitbreaker.Record) error {
	return c.SaveCircuit(ctx, rec)
}

var _ port.CircuitBreakerStore = Circuits{}

// Quarantines adapts Store to port.QuarantineStore.
type Quarantines struct{ *Store }

func (q Quarantines) Lookup(ctx context.Context, scope quarantine.Scope, target string, now time.Time) (quarantine.Entry, bool, error) {
	return q.LookupQuarantine(ctx, scope, target, now)
}
func (q Quarantines) Upsert(ctx context.Context, e quarantine.Entry) error {
	return q.UpsertQuarantine(ctx, e)
}
func (q Quarantines) Delete(ctx context.Context, scope quarantine.Scope, target string) error {
	return q.DeleteQuarantine(ctx, scope, target)
}
func (q Quarantines) List(ctx context.Context, now time.Time) ([]quarantine.Entry, error) {
	return q.ListQuarantine(ctx, now)
}

var _ port.QuarantineStore = Quarantines{}

// RateLimits adapts Store to port.RateLimitStore.
type RateLimits struct{ *Store }

func (r RateLimits) GetOrCreate(ctx context.Context, key ratelimit.Key, capacity float64, now time.Time) (ratelimit.Bucket, error) {
	return r.GetOrCreateBucket(ctx, key, capacity, now)
}
func (r RateLimits) Save(ctx context.Context, b ratelimit.Bucket) error { return r.SaveBucket(ctx, b) }
func (r RateLimits) DeleteStale(ctx context.Context, now time.Time) (int, error) {
	return r.DeleteStaleBuckets(ctx, now)
}

var _ port.RateLimitStore = RateLimits{}

// Tokens adapts Store to port.ConfirmTokenStore.
type Tokens struct{ *Store }

func (t Tokens) Save(ctx context.Context, tok confirmtoken.Token) error { return t.SaveToken(ctx, tok) }
func (t Tokens) ValidateAndConsume(ctx context.Context, val, tool, host, agent string, now time.Time) (confirmtoken.Token, bool, error) {
	return t.ValidateAndConsumeToken(ctx, val, tool, host, agent, now)
}
func (t Tokens) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return t.DeleteExpiredTokens(ctx, now)
}

var _ port.ConfirmTokenStore = Tokens{}

// Anomalies adapts Store to port.AnomalyStore.
type Anomalies struct{ *Store }

func (a Anomalies) GetOrCreate(ctx context.Context, tool, host string) (*anomaly.Baseline, error) {
	return a.GetOrCreateBaseline(ctx, tool, host)
}
func (a Anomalies) Save(ctx context.Context, b *anomaly.Baseline) error { return a.SaveBaseline(ctx, b) }

var _ port.AnomalyStore = Anomalies{}

// Audit adapts Store to port.AuditStore.
type Audit struct{ *Store }

func (a Audit) Append(ctx context.Context, e *audit.Entry) (int64, error) { return a.AppendAudit(ctx, e) }
func (a Audit) UpdateResponse(ctx context.Context, seq int64, status audit.ResponseStatus, errMsg string) error {
	return a.UpdateAuditResponse(ctx, seq, status, errMsg)
}
func (a Audit) Query(ctx context.Context, q port.AuditQuery) ([]*audit.Entry, error) {
	return a.QueryAudit(ctx, q)
}
func (a Audit) AllOrdered(ctx context.Context) ([]*audit.Entry, error) { return a.AllOrderedAudit(ctx) }
func (a Audit) LastForHost(ctx context.Context, host string, before time.Time) (*audit.Entry, error) {
	return a.LastForHostAudit(ctx, host, before)
}
func (a Audit) CountLastHour(ctx context.Context, tool, host string, now time.Time) (int, int, error) {
	return a.CountLastHourAudit(ctx, tool, host, now)
}

var _ port.AuditStore = Audit{}

// Config adapts Store to port.ConfigStore.
type Config struct{ *Store }

func (c Config) GetMode(ctx context.Context) (mode.Mode, error) { return c.Store.GetMode(ctx) }
func (c Config) SetMode(ctx context.Context, m mode.Mode) error { return c.Store.SetMode(ctx, m) }
func (c Config) Get(ctx context.Context, key string) (string, bool, error) {
	return c.Store.GetConfig(ctx, key)
}
func (c Config) Set(ctx context.Context, key, val string) error { return c.Store.SetConfig(ctx, key, val) }

var _ port.ConfigStore = Config{}

// Alerts adapts Store to port.AlertStore.
type Alerts struct{ *Store }

func (a Alerts) Insert(ctx context.Context, al port.Alert) (int64, error) { return a.InsertAlert(ctx, al) }
func (a Alerts) List(ctx context.Context, onlyUnacknowledged bool, limit int) ([]port.Alert, error) {
	return a.ListAlerts(ctx, onlyUnacknowledged, limit)
}
func (a Alerts) Acknowledge(ctx context.Context, id int64) error { return a.AcknowledgeAlert(ctx, id) }

var _ port.AlertStore = Alerts{}
