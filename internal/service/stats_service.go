package service

import (
	"context"
	"sort"
	"time"

	"github.com/sentinelcore/sentinelcore/internal/domain/circuitbreaker"
	"github.com/sentinelcore/sentinelcore/internal/port"
)

// StatsService exposes read-only aggregate queries over the audit log for an
// external monitoring surface to poll. Unlike the in-memory counters an
// in-process gateway can keep, every number here is derived from the
// persisted audit log so it survives a restart and reflects every writer,
// not just this process.
type StatsService struct {
	audit    port.AuditStore
	circuits port.CircuitBreakerStore
}

// NewStatsService constructs a StatsService over the given stores.
func NewStatsService(audit port.AuditStore, circuits port.CircuitBreakerStore) *StatsService {
	return &StatsService{audit: audit, circuits: circuits}
}

// VerdictCounts tallies verdicts by action over a window.
type VerdictCounts struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
	Asked   int64 `json:"asked"`
	LogOnly int64 `json:"log_only"`
}

// VerdictCounts tallies every audit entry between start and end (inclusive)
// by its recorded action.
func (s *StatsService) VerdictCounts(ctx context.Context, start, end time.Time) (VerdictCounts, error) {
	entries, err := s.audit.Query(ctx, port.AuditQuery{StartTime: &start, EndTime: &end})
	if err != nil {
		return VerdictCounts{}, err
	}

	var counts VerdictCounts
	for _, e := range entries {
		switch e.Action {
		case "allow":
			counts.Allowed++
		case "deny":
			counts.Denied++
		case "ask":
			counts.Asked++
		case "log-only":
			counts.LogOnly++
		}
	}
	return counts, nil
}

// HostCircuitState snapshots one host's current circuit-breaker record.
type HostCircuitState struct {
	Host  string                `json:"host"`
	State circuitbreaker.State  `json:"state"`
}

// CircuitSnapshot returns the current circuit-breaker state for every host
// that appears in the audit log between start and end, deduplicated.
func (s *StatsService) CircuitSnapshot(ctx context.Context, start, end time.Time) ([]HostCircuitState, error) {
	entries, err := s.audit.Query(ctx, port.AuditQuery{StartTime: &start, EndTime: &end})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var hosts []string
	for _, e := range entries {
		if e.Host == "" || seen[e.Host] {
			continue
		}
		seen[e.Host] = true
		hosts = append(hosts, e.Host)
	}
	sort.Strings(hosts)

	snapshot := make([]HostCircuitState, 0, len(hosts))
	for _, h := range hosts {
		rec, err := s.circuits.GetOrCreate(ctx, h)
		if err != nil {
			continue
		}
		snapshot = append(snapshot, HostCircuitState{Host: h, State: rec.State})
	}
	return snapshot, nil
}

// ToolHostRisk is one (tool, host) pair's peak and average recorded risk
// score over a window, used to rank the most anomalous pairs.
type ToolHostRisk struct {
	Tool       string  `json:"tool"`
	Host       string  `json:"host"`
	MaxScore   float64 `json:"max_score"`
	MeanScore  float64 `json:"mean_score"`
	Samples    int     `json:"samples"`
}

// TopAnomalous returns the limit (tool, host) pairs with the highest peak
// risk score recorded in the audit log between start and end.
func (s *StatsService) TopAnomalous(ctx context.Context, start, end time.Time, limit int) ([]ToolHostRisk, error) {
	entries, err := s.audit.Query(ctx, port.AuditQuery{StartTime: &start, EndTime: &end})
	if err != nil {
		return nil, err
	}

	type key struct{ tool, host string }
	agg := make(map[key]*ToolHostRisk)
	for _, e := range entries {
		k := key{e.Tool, e.Host}
		r, ok := agg[k]
		if !ok {
			r = &ToolHostRisk{Tool: e.Tool, Host: e.Host}
			agg[k] = r
		}
		if e.RiskScore > r.MaxScore {
			r.MaxScore = e.RiskScore
		}
		r.MeanScore = (r.MeanScore*float64(r.Samples) + e.RiskScore) / float64(r.Samples+1)
		r.Samples++
	}

	results := make([]ToolHostRisk, 0, len(agg))
	for _, r := range agg {
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].MaxScore > results[j].MaxScore
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
