// Package circuitbreaker implements the per-host availability gate described
// in the policy engine's circuit-breaker step: a closed/open/half-open state
// machine that opens after repeated downstream failures and recovers after a
// cooldown.
package circuitbreaker

import "time"

// State is one of the three circuit states.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// DefaultThreshold is the number of failures recorded while closed that
// opens the circuit when no override is configured; a success while closed
// does not reset the count.
const DefaultThreshold = 2

// DefaultCooldown is the time an open circuit waits before probing again.
const DefaultCooldown = 120 * time.Second

// Record is the persisted state for one host's circuit.
type Record struct {
	Host         string
	State        State
	FailureCount int
	LastFailure  time.Time
	LastSuccess  time.Time
	OpenedAt     time.Time
	HalfOpenAt   time.Time
}

// Breaker evaluates and transitions circuit-breaker records. It holds no
// state itself — the Record is the state, normally round-tripped through a
// Store between calls — so the same Breaker value can service any number of
// hosts.
type Breaker struct {
	Threshold int
	Cooldown  time.Duration
}

// New returns a Breaker with the default threshold and cooldown.
func New() *Breaker {
	return &Breaker{Threshold: DefaultThreshold, Cooldown: DefaultCooldown}
}

// Observe applies read-time transitions (open -> half-open once the cooldown
// has elapsed) to rec as of now, returning the possibly-updated record and
// whether it changed (and therefore needs to be persisted).
func (b *Breaker) Observe(rec Record, now time.Time) (Record, bool) {
	if rec.State == StateOpen && !rec.OpenedAt.IsZero() && now.Sub(rec.OpenedAt) >= b.Cooldown {
		rec.State = StateHalfOpen
		rec.HalfOpenAt = now
		return rec, true
	}
	return rec, false
}

// IsHealthy reports whether the (already-observed) record allows traffic:
// false only when the effective state is open.
func (rec Record) IsHealthy() bool {
	return rec.State != StateOpen
}

// RetryAfterSeconds returns the remaining cooldown, rounded up, or 0 if the
// circuit is not open or the cooldown has already elapsed.
func (b *Breaker) RetryAfterSeconds(rec Record, now time.Time) int {
	if rec.State != StateOpen || rec.OpenedAt.IsZero() {
		return 0
	}
	remaining := b.Cooldown - now.Sub(rec.OpenedAt)
	if remaining <= 0 {
		return 0
	}
	secs := int(remaining / time.Second)
	if remaining%time.Second != 0 {
		secs++
	}
	return secs
}

// RecordSuccess applies a downstream success to rec: from open or half-open
// it closes and resets the failure counter; from closed it is a no-op other
// than updating LastSuccess.
func (b *Breaker) RecordSuccess(rec Record, now time.Time) Record {
	rec.LastSuccess = now
	switch rec.State {
	case StateOpen, StateHalfOpen:
		rec.State = StateClosed
		rec.FailureCount = 0
		rec.OpenedAt = time.Time{}
		rec.HalfOpenAt = time.Time{}
	}
	return rec
}

// RecordFailure applies a downstream failure to rec: from closed it
// increments the counter, opening the circuit once the threshold is
// reached; from half-open a single failure reopens it.
func (b *Breaker) RecordFailure(rec Record, now time.Time) Record {
	rec.LastFailure = now
	switch rec.State {
	case StateHalfOpen:
		rec.State = StateOpen
		rec.OpenedAt = now
	case StateClosed:
		rec.FailureCount++
		if rec.FailureCount >= b.Threshold {
			rec.State = StateOpen
			rec.OpenedAt = now
		}
	case StateOpen:
		rec.OpenedAt = now
	}
	return rec
}

// NewRecord returns a fresh closed-state record for host.
func NewRecord(host string) Record {
	return Record{Host: host, State: StateClosed}
}
