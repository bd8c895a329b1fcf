package interceptor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sentinelcore/sentinelcore/internal/domain/audit"
	"github.com/sentinelcore/sentinelcore/internal/domain/clock"
	"github.com/sentinelcore/sentinelcore/internal/domain/confirmtoken"
	"github.com/sentinelcore/sentinelcore/internal/domain/engine"
	"github.com/sentinelcore/sentinelcore/internal/domain/rule"
	"github.com/sentinelcore/sentinelcore/internal/domain/value"
	"github.com/sentinelcore/sentinelcore/internal/port"
	"github.com/sentinelcore/sentinelcore/internal/telemetry"
	"github.com/sentinelcore/sentinelcore/pkg/mcp"
)

// ForwardTimeout is the default 15,000 ms window a forwarded request has to
// receive a downstream reply before the caller is told it timed out.
const ForwardTimeout = 15 * time.Second

// alertThresholdKey returns the config key for the given verdict action's
// operator-configured alert threshold, one of the four keys the config
// table's "four anomaly thresholds" entry names.
func alertThresholdKey(action rule.Action) string {
	return "alert_threshold_" + string(action)
}

// defaultAlertThreshold is used for any of the four keys that has not been
// explicitly configured.
const defaultAlertThreshold = 75.0

// ReplyWriter delivers a reply to the original caller outside the normal
// synchronous request/response flow -- used for the two asynchronous
// completions (forward timeout, downstream disconnect) that are not
// produced as the direct return value of HandleInbound/HandleDownstream.
type ReplyWriter func(raw []byte)

// Interceptor sequences one inbound tool-call request against the policy
// engine, writes the audit entry ahead of forwarding, and correlates the
// eventual downstream reply (or its absence) back to the terminal audit
// status and the caller's reply.
type Interceptor struct {
	Engine      *engine.Engine
	Audit       port.AuditStore
	Alerts      port.AlertStore
	Config      port.ConfigStore
	Clock       clock.Clock
	Logger      *slog.Logger
	ForwardTimeout time.Duration

	// ConfirmationTokenTTL overrides confirmtoken.DefaultTTL for tokens
	// minted by this interceptor.
	ConfirmationTokenTTL time.Duration

	ReplyToCaller ReplyWriter

	// Metrics records verdict/circuit/throttle counters and evaluation
	// latency. A nil Metrics is valid and simply records nothing.
	Metrics *telemetry.Metrics

	pending *pendingMap
}

// New constructs an Interceptor wired to eng's stores, defaulting the
// forward timeout to 15 s.
func New(eng *engine.Engine, alerts port.AlertStore, logger *slog.Logger, replyWriter ReplyWriter) *Interceptor {
	return &Interceptor{
		Engine:         eng,
		Audit:          eng.Audit,
		Alerts:         alerts,
		Config:         eng.Config,
		Clock:          eng.Clock,
		Logger:         logger,
		ForwardTimeout:       ForwardTimeout,
		ConfirmationTokenTTL: confirmtoken.DefaultTTL,
		ReplyToCaller:        replyWriter,
		pending:              newPendingMap(),
	}
}

// Outcome tells the caller what to do with an inbound message once
// HandleInbound returns.
type Outcome struct {
	// Passthrough is set for non-tool-call messages: forward Raw unmodified,
	// uncorrelated.
	Passthrough bool
	Raw         []byte

	// Forward is set for allow/log-only verdicts: send ForwardRaw downstream
	// and expect HandleDownstreamReply to eventually be called with the
	// matching id (or the forward timeout or HandleDownstreamExit to close
	// it out without one).
	Forward      bool
	ForwardRaw   []byte
	ForwardID    string

	// Reply is set for deny/ask verdicts: write Reply directly back to the
	// caller, do not forward. Malformed messages yield an error instead.
	Reply []byte
}

// HandleInbound processes one message read from the caller. Non-tool-call
// messages pass through untouched; tool-call requests run the full pipeline.
func (ic *Interceptor) HandleInbound(ctx context.Context, raw []byte) (Outcome, error) {
	msg, err := mcp.WrapMessage(raw, mcp.ClientToServer)
	if err != nil {
		// Malformed inbound: logged by the caller, no reply possible (id unknown).
		return Outcome{}, fmt.Errorf("interceptor: decode inbound: %w", err)
	}

	if !msg.IsToolCall() {
		return Outcome{Passthrough: true, Raw: raw}, nil
	}

	params, err := msg.ParseToolCall()
	if err != nil {
		return Outcome{}, fmt.Errorf("interceptor: parse tools/call params: %w", err)
	}

	ctx, span := otel.Tracer(telemetry.InstrumentationName).Start(ctx, "evaluate_and_audit")
	defer span.End()

	now := ic.Clock.Now()
	evalStart := now
	tool, host, agent := params.Name, params.Host(), params.AgentOrDefault()
	redacted := value.Redact(value.FromMap(params.Arguments))
	span.SetAttributes(
		attribute.String("tool", tool),
		attribute.String("host", host),
		attribute.String("agent", agent),
	)

	pctx := engine.PolicyContext{
		Tool:              tool,
		Host:              host,
		Agent:             agent,
		Arguments:         redacted,
		Timestamp:         now,
		ConfirmationToken: params.ConfirmationToken,
	}

	verdict, err := ic.Engine.Evaluate(ctx, pctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluate failed")
		return Outcome{}, fmt.Errorf("interceptor: evaluate: %w", err)
	}
	span.SetAttributes(attribute.String("action", string(verdict.Action)))
	ic.Metrics.RecordVerdict(string(verdict.Action))
	if verdict.Reason == "rate limited" {
		ic.Metrics.RecordRateLimitThrottle()
	}

	m, err := ic.Config.GetMode(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load mode failed")
		return Outcome{}, fmt.Errorf("interceptor: load mode: %w", err)
	}

	entry := &audit.Entry{
		TimestampMS:   now.UnixMilli(),
		Tool:          tool,
		Host:          host,
		Agent:         agent,
		Arguments:     redacted,
		Verdict:       audit.VerdictFor(verdict.Allowed, verdict.RequiresConfirmation),
		Action:        string(verdict.Action),
		MatchedRuleID: verdict.MatchedRuleID,
		RiskScore:     verdict.RiskScore,
		Mode:          string(m),
	}
	for _, rf := range verdict.RiskFactors {
		entry.RiskFactors = append(entry.RiskFactors, audit.RiskFactor{Factor: rf.Factor, Score: rf.Score, Details: rf.Details})
	}

	seq, err := ic.Audit.Append(ctx, entry)
	if err != nil {
		// Persistence failure is fatal to the request; the transaction never
		// partially committed the entry.
		span.RecordError(err)
		span.SetStatus(codes.Error, "audit write failed")
		return Outcome{}, fmt.Errorf("interceptor: write-ahead audit: %w", err)
	}
	ic.Metrics.ObserveEvaluationDuration(ic.Clock.Now().Sub(evalStart).Seconds())

	ic.maybeAlert(ctx, seq, verdict, tool, host, agent)

	id := msg.RawID()

	switch verdict.Action {
	case rule.ActionAllow, rule.ActionLogOnly:
		call := newPendingCall(seq, tool, host, agent, now)
		ic.pending.install(string(id), call, ic.ForwardTimeout, func(c *pendingCall) {
			ic.onForwardTimeout(c)
		})
		return Outcome{Forward: true, ForwardRaw: raw, ForwardID: string(id)}, nil

	case rule.ActionAsk:
		token, terr := ic.mintConfirmationToken(ctx, tool, host, agent, redacted, now)
		if terr != nil {
			_ = ic.Audit.UpdateResponse(ctx, seq, audit.ResponseStatusError, "failed to mint confirmation token")
			return Outcome{}, fmt.Errorf("interceptor: mint confirmation token: %w", terr)
		}
		_ = ic.Audit.UpdateResponse(ctx, seq, audit.ResponseStatusError, "Confirmation required")
		decErr := &DecisionError{Code: CodeConfirmationRequired, Message: "Confirmation required", Verdict: verdict, Token: token}
		return Outcome{Reply: buildErrorReply(id, decErr)}, nil

	default: // deny
		_ = ic.Audit.UpdateResponse(ctx, seq, audit.ResponseStatusError, verdict.Reason)
		decErr := &DecisionError{Code: CodePolicyViolation, Message: "Policy violation", Verdict: verdict}
		return Outcome{Reply: buildErrorReply(id, decErr)}, nil
	}
}

// HandleDownstreamReply correlates a reply read from the downstream tool
// server with its pending call, updates the audit entry's terminal status,
// records the outcome against the host's circuit breaker, and returns the
// bytes to relay to the caller.
func (ic *Interceptor) HandleDownstreamReply(ctx context.Context, raw []byte) ([]byte, bool) {
	msg, err := mcp.WrapMessage(raw, mcp.ServerToClient)
	if err != nil {
		// Malformed downstream output: logged and discarded; pending
		// callbacks for it simply time out normally.
		return nil, false
	}
	if !msg.IsResponse() {
		return raw, true
	}

	id := string(msg.RawID())
	call, ok := ic.pending.resolve(id)
	if !ok {
		return raw, true
	}
	call.resolve(raw)

	isError := responseIsError(raw)
	now := ic.Clock.Now()
	ic.recordCircuitOutcome(ctx, call.host, isError, now)

	status := audit.ResponseStatusSuccess
	errMsg := ""
	if isError {
		status = audit.ResponseStatusError
		errMsg = "downstream returned an error"
	}
	_ = ic.Audit.UpdateResponse(ctx, call.sequenceNumber, status, errMsg)

	return raw, true
}

// HandleDownstreamExit clears every pending callback when the downstream
// process exits: each fails with "disconnected" rather than being retried.
func (ic *Interceptor) HandleDownstreamExit(ctx context.Context) {
	for _, call := range ic.pending.drain() {
		call.disconnect()
		_ = ic.Audit.UpdateResponse(ctx, call.sequenceNumber, audit.ResponseStatusError, "disconnected")
		if ic.ReplyToCaller != nil {
			decErr := &DecisionError{Code: CodeRequestTimeout, Message: "disconnected"}
			ic.ReplyToCaller(buildErrorReply(nil, decErr))
		}
	}
}

func (ic *Interceptor) onForwardTimeout(call *pendingCall) {
	ctx := context.Background()
	_ = ic.Audit.UpdateResponse(ctx, call.sequenceNumber, audit.ResponseStatusTimeout, timeoutMessage)
	if ic.ReplyToCaller != nil {
		decErr := &DecisionError{Code: CodeRequestTimeout, Message: timeoutMessage}
		ic.ReplyToCaller(buildErrorReply(nil, decErr))
	}
}

func (ic *Interceptor) recordCircuitOutcome(ctx context.Context, host string, isError bool, now time.Time) {
	rec, err := ic.Engine.Circuits.GetOrCreate(ctx, host)
	if err != nil {
		return
	}
	prevState := rec.State
	if isError {
		rec = ic.Engine.Breaker.RecordFailure(rec, now)
	} else {
		rec = ic.Engine.Breaker.RecordSuccess(rec, now)
	}
	if rec.State != prevState {
		ic.Metrics.RecordCircuitTransition(host, string(rec.State))
	}
	_ = ic.Engine.Circuits.Save(ctx, rec)
}

func (ic *Interceptor) mintConfirmationToken(ctx context.Context, tool, host, agent string, redactedArgs value.Value, now time.Time) (string, error) {
	val, err := confirmtoken.Generate()
	if err != nil {
		return "", err
	}
	tok := confirmtoken.New(val, tool, host, agent, redactedArgs, now, ic.ConfirmationTokenTTL)
	if err := ic.Engine.Tokens.Save(ctx, tok); err != nil {
		return "", err
	}
	return val, nil
}

// maybeAlert enqueues an alert row when verdict.RiskScore clears the
// operator-configured threshold for its action.
func (ic *Interceptor) maybeAlert(ctx context.Context, seq int64, verdict engine.Verdict, tool, host, agent string) {
	if ic.Alerts == nil {
		return
	}
	threshold := defaultAlertThreshold
	if raw, ok, err := ic.Config.Get(ctx, alertThresholdKey(verdict.Action)); err == nil && ok {
		if parsed, perr := parseFloat(raw); perr == nil {
			threshold = parsed
		}
	}
	if verdict.RiskScore < threshold {
		return
	}
	_, _ = ic.Alerts.Insert(ctx, port.Alert{
		SequenceNum: seq,
		Tool:        tool,
		Host:        host,
		Agent:       agent,
		RiskScore:   verdict.RiskScore,
		Reason:      verdict.Reason,
		CreatedAt:   ic.Clock.Now(),
	})
}

func parseFloat(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%g", &f)
	return f, err
}

func responseIsError(raw []byte) bool {
	var probe struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return len(probe.Error) > 0
}

func buildErrorReply(id json.RawMessage, decErr *DecisionError) []byte {
	errObj := map[string]interface{}{
		"code":    decErr.Code,
		"message": decErr.Message,
	}
	if data := decErr.Data(); data != nil {
		errObj["data"] = data
	}
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"error":   errObj,
	}
	if id == nil {
		payload["id"] = nil
	} else {
		payload["id"] = id
	}
	b, _ := json.Marshal(payload)
	return b
}
