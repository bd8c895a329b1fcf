// Package rule defines the operator-facing policy rule, its match predicates
// (glob, regex-over-canonical-arguments, schedule), and the evaluation order
// used by the policy engine's rule-match step.
package rule

import (
	"regexp"
	"sort"
	"time"

	"github.com/sentinelcore/sentinelcore/internal/domain/value"
)

// Action is the terminal disposition a matched rule (or a gate) assigns.
type Action string

const (
	ActionAllow   Action = "allow"
	ActionDeny    Action = "deny"
	ActionAsk     Action = "ask"
	ActionLogOnly Action = "log-only"
)

// IsValid reports whether a is one of the four enumerated actions.
func (a Action) IsValid() bool {
	switch a {
	case ActionAllow, ActionDeny, ActionAsk, ActionLogOnly:
		return true
	default:
		return false
	}
}

// RateLimitSpec is a rule's optional attached token-bucket configuration.
type RateLimitSpec struct {
	MaxTokens        float64
	WindowSeconds    int // informational only; refill is driven by RefillRatePerSec
	RefillRatePerSec float64
}

// Schedule restricts a rule to a day-of-week/hour-of-day window in a given
// (or the system default) IANA timezone.
type Schedule struct {
	DaysOfWeek []int // subset of 0..6, Sunday=0, matching time.Weekday
	StartHour  int   // 0..23 inclusive
	EndHour    int   // 0..23 inclusive
	Timezone   string
}

// InWindow reports whether t, evaluated in the schedule's timezone (or the
// system local zone if Timezone is empty / fails to load), falls within the
// configured day-of-week set and [StartHour, EndHour] inclusive.
func (s Schedule) InWindow(t time.Time) bool {
	loc := time.Local
	if s.Timezone != "" {
		if l, err := time.LoadLocation(s.Timezone); err == nil {
			loc = l
		}
	}
	lt := t.In(loc)
	if len(s.DaysOfWeek) > 0 {
		matched := false
		wd := int(lt.Weekday())
		for _, d := range s.DaysOfWeek {
			if d == wd {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	h := lt.Hour()
	return h >= s.StartHour && h <= s.EndHour
}

// Rule is an operator-defined policy entry.
type Rule struct {
	ID        string
	Name      string
	Priority  int // smaller = earlier
	Action    Action
	Enabled   bool

	ToolPattern     string // glob, empty = unspecified (always matches)
	HostPattern     string
	AgentPattern    string
	ArgumentPattern string // regex, applied to canonical JSON of arguments

	RateLimit *RateLimitSpec
	Schedule  *Schedule

	CreatedAt time.Time
	UpdatedAt time.Time

	compiledArgPattern *regexp.Regexp
}

// Compile lazily compiles the rule's argument_pattern regex. It is
// idempotent and safe to call repeatedly; a compile error is returned on
// every call until the pattern is fixed.
func (r *Rule) Compile() error {
	if r.ArgumentPattern == "" || r.compiledArgPattern != nil {
		return nil
	}
	re, err := regexp.Compile("(?i)" + r.ArgumentPattern)
	if err != nil {
		return err
	}
	r.compiledArgPattern = re
	return nil
}

// Matches reports whether the rule's predicates all match the given context.
// All specified predicates must match (conjunctive); unset predicates are
// vacuously true. argsCanonical is the canonical JSON encoding of ctx.arguments,
// computed once by the caller and shared across all candidate rules.
func (r *Rule) Matches(tool, host, agent string, argsCanonical []byte, now time.Time) bool {
	if r.ToolPattern != "" && !MatchGlob(r.ToolPattern, tool) {
		return false
	}
	if r.HostPattern != "" && !MatchGlob(r.HostPattern, host) {
		return false
	}
	if r.AgentPattern != "" && !MatchGlob(r.AgentPattern, agent) {
		return false
	}
	if r.ArgumentPattern != "" {
		if r.compiledArgPattern == nil {
			if err := r.Compile(); err != nil {
				return false
			}
		}
		if !r.compiledArgPattern.Match(argsCanonical) {
			return false
		}
	}
	if r.Schedule != nil && !r.Schedule.InWindow(now) {
		return false
	}
	return true
}

// SortForEvaluation orders rules by priority ascending, then created_at
// ascending, per the policy engine's load-bearing rule-match order.
func SortForEvaluation(rules []*Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
}

// CanonicalArguments returns the canonical JSON serialization of an
// arguments value, used both for argument_pattern matching and for the
// argument-novelty anomaly component.
func CanonicalArguments(args value.Value) []byte {
	return value.Canonical(args)
}
