// Package engine implements the policy decision engine's strict seven-step
// evaluation order: circuit-breaker gate, quarantine gate, mode gate, rule
// match (with confirmation-token short-circuit), per-rule rate limit,
// anomaly score fold-in, and the mode's default for unmatched requests.
package engine

import (
	"time"

	"github.com/sentinelcore/sentinelcore/internal/domain/rule"
	"github.com/sentinelcore/sentinelcore/internal/domain/value"
)

// PolicyContext is the 5-tuple describing one inbound tool call.
type PolicyContext struct {
	Tool      string
	Host      string
	Agent     string
	Arguments value.Value
	Timestamp time.Time

	// ConfirmationToken, if present, is checked against a matched ask rule
	// per step 4's atomic confirm-and-consume path.
	ConfirmationToken string

	// ExtraRiskFactors are caller-supplied risk annotations folded into the
	// final risk_score alongside the anomaly composite (step 6).
	ExtraRiskFactors []RiskFactor
}

// RiskFactor mirrors audit.RiskFactor / anomaly.RiskFactor at the engine
// boundary.
type RiskFactor struct {
	Factor  string
	Score   float64
	Details string
}

// Verdict is the engine's decision record for one PolicyContext.
type Verdict struct {
	Allowed              bool
	Action               rule.Action
	Reason               string
	MatchedRuleID        string
	MatchedRuleName      string
	RiskScore            float64
	RiskFactors          []RiskFactor
	RequiresConfirmation bool
	ConfirmationToken    string
	RetryAfterSeconds    int
}
