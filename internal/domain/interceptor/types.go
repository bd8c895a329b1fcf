// Package interceptor implements the sequencer: it correlates inbound
// tool-call requests with the policy engine's verdict and, for forwarded
// calls, with the downstream tool server's eventual reply. It owns the
// write-ahead audit insert and the terminal response-status update.
package interceptor

import (
	"fmt"

	"github.com/sentinelcore/sentinelcore/internal/domain/engine"
)

// DecisionError wraps a non-allow verdict with the structured fields the
// caller-facing JSON-RPC error payload needs, carrying reason/risk data on
// the error itself instead of re-deriving it from a string message.
type DecisionError struct {
	Code    int
	Message string
	Verdict engine.Verdict
	Token   string // set only for ask
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("interceptor: %s: %s", e.Message, e.Verdict.Reason)
}

// Data builds the error.data payload for this decision, shaped per the
// error code: ask carries confirmationToken alongside reason/risk, deny
// carries only reason/risk, and timeout carries nothing.
func (e *DecisionError) Data() map[string]interface{} {
	switch e.Code {
	case CodeRequestTimeout:
		return nil
	case CodeConfirmationRequired:
		return map[string]interface{}{
			"reason":            e.Verdict.Reason,
			"confirmationToken": e.Token,
			"riskScore":         e.Verdict.RiskScore,
			"riskFactors":       e.Verdict.RiskFactors,
		}
	default:
		return map[string]interface{}{
			"reason":      e.Verdict.Reason,
			"riskScore":   e.Verdict.RiskScore,
			"riskFactors": e.Verdict.RiskFactors,
		}
	}
}

// Error codes per the caller-facing JSON-RPC error payload.
const (
	CodePolicyViolation      = -32000
	CodeConfirmationRequired = -32001
	CodeRequestTimeout       = -32002
)

// timeoutMessage is the caller-facing message for a forward that never
// received a downstream reply within ForwardTimeout. The downstream-exit
// case replies with the message "disconnected" instead.
const timeoutMessage = "Request timeout"
