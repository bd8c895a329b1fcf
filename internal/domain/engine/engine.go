package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/sentinelcore/sentinelcore/internal/domain/anomaly"
	"github.com/sentinelcore/sentinelcore/internal/domain/circuitbreaker"
	"github.com/sentinelcore/sentinelcore/internal/domain/clock"
	"github.com/sentinelcore/sentinelcore/internal/domain/mode"
	"github.com/sentinelcore/sentinelcore/internal/domain/quarantine"
	"github.com/sentinelcore/sentinelcore/internal/domain/ratelimit"
	"github.com/sentinelcore/sentinelcore/internal/domain/rule"
	"github.com/sentinelcore/sentinelcore/internal/domain/value"
	"github.com/sentinelcore/sentinelcore/internal/port"
)

// scoreDenied, scoreAsked, scoreAllowed are the baseline risk scores
// assigned by the rule-match and default-for-mode steps before the anomaly
// fold-in.
const (
	scoreDenied  = 80
	scoreAsked   = 50
	scoreAllowed = 0
)

// Engine evaluates policy contexts against the persistent store's rules,
// circuit breakers, quarantine entries, rate-limit buckets, and anomaly
// baselines, in a fixed, load-bearing seven-step order.
type Engine struct {
	Rules       port.RuleStore
	Circuits    port.CircuitBreakerStore
	Quarantines port.QuarantineStore
	RateLimits  port.RateLimitStore
	Tokens      port.ConfirmTokenStore
	Anomalies   port.AnomalyStore
	Config      port.ConfigStore
	Audit       port.AuditStore
	Breaker     *circuitbreaker.Breaker
	Clock       clock.Clock
}

// New constructs an Engine with default circuit-breaker parameters.
func New(rules port.RuleStore, circuits port.CircuitBreakerStore, quarantines port.QuarantineStore,
	rateLimits port.RateLimitStore, tokens port.ConfirmTokenStore, anomalies port.AnomalyStore,
	cfg port.ConfigStore, auditStore port.AuditStore, clk clock.Clock) *Engine {
	return &Engine{
		Rules: rules, Circuits: circuits, Quarantines: quarantines,
		RateLimits: rateLimits, Tokens: tokens, Anomalies: anomalies,
		Config: cfg, Audit: auditStore, Breaker: circuitbreaker.New(), Clock: clk,
	}
}

// Evaluate runs the seven-step order against pctx and returns the resulting
// Verdict. Steps 1-3 short-circuit on producing a verdict; step 4 onward
// always produces exactly one verdict that step 6 may annotate (but never
// flip) with an anomaly-derived risk score.
func (e *Engine) Evaluate(ctx context.Context, pctx PolicyContext) (Verdict, error) {
	now := e.Clock.Now()

	m, err := e.Config.GetMode(ctx)
	if err != nil {
		return Verdict{}, fmt.Errorf("engine: load mode: %w", err)
	}

	// ---- Step 1: circuit-breaker gate ----
	cbRec, err := e.Circuits.GetOrCreate(ctx, pctx.Host)
	if err != nil {
		return Verdict{}, fmt.Errorf("engine: load circuit breaker: %w", err)
	}
	if observed, changed := e.Breaker.Observe(cbRec, now); changed {
		cbRec = observed
		if err := e.Circuits.Save(ctx, cbRec); err != nil {
			return Verdict{}, fmt.Errorf("engine: persist circuit transition: %w", err)
		}
	}
	if !cbRec.IsHealthy() {
		return Verdict{
			Allowed:           false,
			Action:            rule.ActionDeny,
			Reason:            "circuit breaker open",
			RiskScore:         100,
			RetryAfterSeconds: e.Breaker.RetryAfterSeconds(cbRec, now),
		}, nil
	}

	// ---- Step 2: quarantine gate ----
	lookup := func(scope quarantine.Scope, target string) (quarantine.Entry, bool) {
		entry, ok, lerr := e.Quarantines.Lookup(ctx, scope, target, now)
		if lerr != nil {
			return quarantine.Entry{}, false
		}
		return entry, ok
	}
	if qe, ok := quarantine.Check(lookup, pctx.Host, pctx.Tool, pctx.Agent); ok {
		return Verdict{
			Allowed:   false,
			Action:    rule.ActionDeny,
			Reason:    fmt.Sprintf("quarantined: %s", qe.Reason),
			RiskScore: 100,
		}, nil
	}

	// ---- Step 3: mode gate ----
	if m == mode.Lockdown {
		if containsHealthOrStatus(pctx.Tool) {
			return Verdict{Allowed: true, Action: rule.ActionAllow, Reason: "lockdown: health/status exempt", RiskScore: 0}, nil
		}
		return Verdict{Allowed: false, Action: rule.ActionDeny, Reason: "lockdown: only health/status permitted", RiskScore: 100}, nil
	}

	argsCanonical := rule.CanonicalArguments(pctx.Arguments)

	// ---- Step 4: rule match ----
	verdict, matchedRule, err := e.matchRules(ctx, pctx, argsCanonical, now)
	if err != nil {
		return Verdict{}, err
	}

	// ---- Step 5: rate limit (per matched rule) ----
	if matchedRule != nil && matchedRule.RateLimit != nil && verdict.Action != rule.ActionDeny {
		throttled, retryAfter, rlErr := e.checkRateLimit(ctx, matchedRule, pctx, now)
		if rlErr != nil {
			return Verdict{}, rlErr
		}
		if throttled {
			verdict = Verdict{
				Allowed:           false,
				Action:            rule.ActionDeny,
				Reason:            "rate limited",
				MatchedRuleID:     matchedRule.ID,
				MatchedRuleName:   matchedRule.Name,
				RiskScore:         scoreDenied,
				RetryAfterSeconds: retryAfter,
			}
		}
	}

	// No rule matched at all: step 7, default for unmatched by mode.
	if matchedRule == nil && verdict.Action == "" {
		verdict = e.defaultForMode(m)
	}

	// ---- Step 6: anomaly score fold-in ----
	e.foldInAnomaly(ctx, pctx, argsCanonical, now, &verdict)

	return verdict, nil
}

func containsHealthOrStatus(tool string) bool {
	return containsFold(tool, "health") || containsFold(tool, "status")
}

func containsFold(s, sub string) bool {
	ls, lsub := toLowerASCII(s), toLowerASCII(sub)
	return indexOf(ls, lsub) >= 0
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func indexOf(s, sub string) int {
	n, m := len(s), len(sub)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}

// matchRules implements the rule-match step: ordered scan, first match wins,
// with the atomic ask+confirmation-token short-circuit.
func (e *Engine) matchRules(ctx context.Context, pctx PolicyContext, argsCanonical []byte, now time.Time) (Verdict, *rule.Rule, error) {
	rules, err := e.Rules.ListEnabled(ctx)
	if err != nil {
		return Verdict{}, nil, fmt.Errorf("engine: list rules: %w", err)
	}
	rule.SortForEvaluation(rules)

	for _, r := range rules {
		if !r.Matches(pctx.Tool, pctx.Host, pctx.Agent, argsCanonical, now) {
			continue
		}

		if r.Action == rule.ActionAsk && pctx.ConfirmationToken != "" {
			_, ok, terr := e.Tokens.ValidateAndConsume(ctx, pctx.ConfirmationToken, pctx.Tool, pctx.Host, pctx.Agent, now)
			if terr != nil {
				return Verdict{}, nil, fmt.Errorf("engine: validate confirmation token: %w", terr)
			}
			if ok {
				return Verdict{
					Allowed:         true,
					Action:          rule.ActionAllow,
					Reason:          "confirmed via token",
					MatchedRuleID:   r.ID,
					MatchedRuleName: r.Name,
					RiskScore:       scoreAllowed,
				}, r, nil
			}
		}

		return buildRuleVerdict(r), r, nil
	}

	return Verdict{}, nil, nil
}

func buildRuleVerdict(r *rule.Rule) Verdict {
	switch r.Action {
	case rule.ActionDeny:
		return Verdict{Allowed: false, Action: rule.ActionDeny, Reason: fmt.Sprintf("denied by rule %q", r.Name), MatchedRuleID: r.ID, MatchedRuleName: r.Name, RiskScore: scoreDenied}
	case rule.ActionAsk:
		return Verdict{Allowed: false, Action: rule.ActionAsk, Reason: fmt.Sprintf("confirmation required by rule %q", r.Name), MatchedRuleID: r.ID, MatchedRuleName: r.Name, RiskScore: scoreAsked, RequiresConfirmation: true}
	case rule.ActionLogOnly:
		return Verdict{Allowed: true, Action: rule.ActionLogOnly, Reason: fmt.Sprintf("logged by rule %q", r.Name), MatchedRuleID: r.ID, MatchedRuleName: r.Name, RiskScore: scoreAllowed}
	default: // allow
		return Verdict{Allowed: true, Action: rule.ActionAllow, Reason: fmt.Sprintf("allowed by rule %q", r.Name), MatchedRuleID: r.ID, MatchedRuleName: r.Name, RiskScore: scoreAllowed}
	}
}

func (e *Engine) defaultForMode(m mode.Mode) Verdict {
	switch m {
	case mode.SilentAllow:
		return Verdict{Allowed: true, Action: rule.ActionAllow, Reason: "default: silent-allow", RiskScore: scoreAllowed}
	case mode.SilentDeny:
		return Verdict{Allowed: false, Action: rule.ActionDeny, Reason: "default: silent-deny", RiskScore: scoreDenied}
	case mode.Alert:
		fallthrough
	default:
		return Verdict{Allowed: false, Action: rule.ActionAsk, Reason: "default: alert mode requires confirmation", RiskScore: scoreAsked, RequiresConfirmation: true}
	}
}

func (e *Engine) checkRateLimit(ctx context.Context, r *rule.Rule, pctx PolicyContext, now time.Time) (throttled bool, retryAfterSeconds int, err error) {
	key := ratelimit.Key{RuleID: r.ID, Tool: pctx.Tool, Host: pctx.Host, Agent: pctx.Agent}
	bucket, err := e.RateLimits.GetOrCreate(ctx, key, r.RateLimit.MaxTokens, now)
	if err != nil {
		return false, 0, fmt.Errorf("engine: load rate limit bucket: %w", err)
	}
	result := ratelimit.Check(bucket, r.RateLimit.MaxTokens, r.RateLimit.RefillRatePerSec, now)
	if err := e.RateLimits.Save(ctx, result.Bucket); err != nil {
		return false, 0, fmt.Errorf("engine: persist rate limit bucket: %w", err)
	}
	if !result.Allowed {
		secs := int(result.ResetAt.Sub(now).Seconds())
		if secs < 0 {
			secs = 0
		}
		return true, secs, nil
	}
	return false, 0, nil
}

// foldInAnomaly computes the anomaly composite against the current baseline
// and folds it into verdict.RiskScore/RiskFactors without ever changing
// verdict.Allowed or verdict.Action, then updates the baseline with this
// observation for future requests.
func (e *Engine) foldInAnomaly(ctx context.Context, pctx PolicyContext, argsCanonical []byte, now time.Time, verdict *Verdict) {
	baseline, err := e.Anomalies.GetOrCreate(ctx, pctx.Tool, pctx.Host)
	if err != nil || baseline == nil {
		return
	}

	opsLastHour, errorsLastHour, err := e.Audit.CountLastHour(ctx, pctx.Tool, pctx.Host, now)
	if err != nil {
		return
	}
	errorRate := 0.0
	if opsLastHour > 0 {
		errorRate = float64(errorsLastHour) / float64(opsLastHour)
	}

	prevTool := ""
	if last, lerr := e.Audit.LastForHost(ctx, pctx.Host, now); lerr == nil && last != nil {
		prevTool = last.Tool
	}

	obs := anomaly.Observation{
		Tool:            pctx.Tool,
		Host:            pctx.Host,
		Timestamp:       now,
		OpsLastHour:     float64(opsLastHour),
		ArgsCanonical:   argsCanonical,
		PreviousTool:    prevTool,
		ErrorRateLastHr: errorRate,
	}

	scores := anomaly.Score(baseline, obs)
	composite := scores.Composite()

	if baseline.SampleCount >= anomaly.MinSamples {
		if len(pctx.ExtraRiskFactors) > 0 {
			var sum float64
			for _, f := range pctx.ExtraRiskFactors {
				sum += f.Score
			}
			verdict.RiskScore = 0.6*composite + 0.4*(sum/float64(len(pctx.ExtraRiskFactors)))
		} else {
			verdict.RiskScore = composite
		}
		for _, rf := range scores.RiskFactors() {
			verdict.RiskFactors = append(verdict.RiskFactors, RiskFactor{Factor: rf.Factor, Score: rf.Score, Details: rf.Details})
		}
	}
	verdict.RiskFactors = append(verdict.RiskFactors, pctx.ExtraRiskFactors...)

	// Baselines are updated after the decision for this request, never before.
	anomaly.Update(baseline, obs)
	_ = e.Anomalies.Save(ctx, baseline)
}

// BuildRedactedArguments is a convenience re-export so callers (the
// interceptor) do not need a direct import of domain/value for the common
// redact-before-store case.
func BuildRedactedArguments(v value.Value) value.Value {
	return value.Redact(v)
}
