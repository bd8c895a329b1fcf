// Package telemetry wires the Prometheus counters/histograms and the
// OpenTelemetry tracer the interceptor records every decision through.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric sentinel-core records. Pass it to
// the components that need to record against it; a nil *Metrics is valid
// everywhere it's used and simply records nothing.
type Metrics struct {
	VerdictsTotal           *prometheus.CounterVec
	CircuitTransitionsTotal *prometheus.CounterVec
	RateLimitThrottledTotal prometheus.Counter
	EvaluationDuration      prometheus.Histogram
}

// NewMetrics creates and registers every metric with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		VerdictsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sentinelcore",
				Name:      "verdicts_total",
				Help:      "Total policy verdicts by action",
			},
			[]string{"action"}, // allow, deny, ask, log-only
		),
		CircuitTransitionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sentinelcore",
				Name:      "circuit_breaker_transitions_total",
				Help:      "Per-host circuit breaker state transitions",
			},
			[]string{"host", "state"}, // state=open/half-open/closed
		),
		RateLimitThrottledTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "sentinelcore",
				Name:      "rate_limit_throttled_total",
				Help:      "Total requests denied by the per-rule token bucket",
			},
		),
		EvaluationDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "sentinelcore",
				Name:      "evaluation_duration_seconds",
				Help:      "Time spent evaluating policy and writing the audit entry for one request",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

// RecordVerdict increments the verdict counter for action. Safe on a nil
// *Metrics.
func (m *Metrics) RecordVerdict(action string) {
	if m == nil {
		return
	}
	m.VerdictsTotal.WithLabelValues(action).Inc()
}

// RecordRateLimitThrottle increments the rate-limit throttle counter. Safe
// on a nil *Metrics.
func (m *Metrics) RecordRateLimitThrottle() {
	if m == nil {
		return
	}
	m.RateLimitThrottledTotal.Inc()
}

// RecordCircuitTransition increments the per-host transition counter for
// the state the circuit moved into. Safe on a nil *Metrics.
func (m *Metrics) RecordCircuitTransition(host, state string) {
	if m == nil {
		return
	}
	m.CircuitTransitionsTotal.WithLabelValues(host, state).Inc()
}

// ObserveEvaluationDuration records seconds spent in one evaluate-plus-
// audit-write segment. Safe on a nil *Metrics.
func (m *Metrics) ObserveEvaluationDuration(seconds float64) {
	if m == nil {
		return
	}
	m.EvaluationDuration.Observe(seconds)
}
