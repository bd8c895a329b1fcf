// Package ratelimit implements a persistent, fractional token bucket:
// capacity and refill rate come from the matched rule, the bucket itself
// is keyed by (rule_id, tool, host, agent) and survives restarts via the
// persistent store.
package ratelimit

import (
	"math"
	"time"
)

// Key identifies one bucket.
type Key struct {
	RuleID string
	Tool   string
	Host   string
	Agent  string
}

// Bucket is the persisted state of one token bucket.
type Bucket struct {
	Key        Key
	Tokens     float64
	LastRefill time.Time
	CreatedAt  time.Time
}

// NewBucket returns a full bucket (tokens == capacity) created at now.
func NewBucket(key Key, capacity float64, now time.Time) Bucket {
	return Bucket{Key: key, Tokens: capacity, LastRefill: now, CreatedAt: now}
}

// Result is the outcome of a Check.
type Result struct {
	Allowed bool
	Bucket  Bucket  // updated bucket to persist
	ResetAt time.Time // only meaningful when !Allowed
}

// Check refills the bucket for elapsed time since LastRefill, then attempts
// to consume one token. It does not mutate b; the caller persists the
// returned Bucket from Result.
func Check(b Bucket, capacity, refillRatePerSec float64, now time.Time) Result {
	elapsedSeconds := now.Sub(b.LastRefill).Seconds()
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}
	tokens := math.Min(capacity, b.Tokens+elapsedSeconds*refillRatePerSec)

	if tokens >= 1 {
		b.Tokens = tokens - 1
		b.LastRefill = now
		return Result{Allowed: true, Bucket: b}
	}

	b.Tokens = tokens
	b.LastRefill = now
	resetAt := now
	if refillRatePerSec > 0 {
		deficit := 1 - tokens
		waitSeconds := math.Ceil(deficit / refillRatePerSec)
		resetAt = now.Add(time.Duration(waitSeconds) * time.Second)
	}
	return Result{Allowed: false, Bucket: b, ResetAt: resetAt}
}

// StaleAfter is the age beyond which an untouched bucket is eligible for
// periodic cleanup (no functional impact, bounds storage growth).
const StaleAfter = 24 * time.Hour

// IsStale reports whether b has not been touched in over StaleAfter.
func IsStale(b Bucket, now time.Time) bool {
	return now.Sub(b.LastRefill) >= StaleAfter
}
