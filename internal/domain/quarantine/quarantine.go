// Package quarantine implements the administrative block registry: CRUD over
// (scope, target) pairs with upsert-by-key semantics and opportunistic
// expiry.
package quarantine

import "time"

// Scope identifies which field of a policy context a quarantine entry binds.
type Scope string

const (
	ScopeHost  Scope = "host"
	ScopeTool  Scope = "tool"
	ScopeAgent Scope = "agent"
)

// Entry is one quarantine record. Match against targets is case-sensitive
// and exact -- no normalization.
type Entry struct {
	Scope     Scope
	Target    string
	Reason    string
	CreatedAt time.Time
	ExpiresAt *time.Time
	CreatedBy string
}

// IsExpired reports whether e has a set, past ExpiresAt as of now.
func (e Entry) IsExpired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// Check evaluates the host -> tool -> agent precedence the quarantine gate
// uses, given a lookup function over live (non-expired) entries. It returns
// the first matching entry, if any.
func Check(lookup func(scope Scope, target string) (Entry, bool), host, tool, agent string) (Entry, bool) {
	for _, pair := range []struct {
		scope  Scope
		target string
	}{
		{ScopeHost, host},
		{ScopeTool, tool},
		{ScopeAgent, agent},
	} {
		if e, ok := lookup(pair.scope, pair.target); ok {
			return e, true
		}
	}
	return Entry{}, false
}
