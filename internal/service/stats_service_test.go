package service

import (
	"context"
	"testing"
	"time"

	"github.com/sentinelcore/sentinelcore/internal/domain/audit"
	"github.com/sentinelcore/sentinelcore/internal/domain/circuitbreaker"
	"github.com/sentinelcore/sentinelcore/internal/port"
)

type fakeAuditStore struct {
	entries []*audit.Entry
}

func (f *fakeAuditStore) Append(ctx context.Context, e *audit.Entry) (int64, error) { return 0, nil }
func (f *fakeAuditStore) UpdateResponse(ctx context.Context, seq int64, status audit.ResponseStatus, msg string) error {
	return nil
}

func (f *fakeAuditStore) Query(ctx context.Context, q port.AuditQuery) ([]*audit.Entry, error) {
	var out []*audit.Entry
	for _, e := range f.entries {
		ts := time.UnixMilli(e.TimestampMS)
		if q.StartTime != nil && ts.Before(*q.StartTime) {
			continue
		}
		if q.EndTime != nil && ts.After(*q.EndTime) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeAuditStore) AllOrdered(ctx context.Context) ([]*audit.Entry, error) { return f.entries, nil }
func (f *fakeAuditStore) LastForHost(ctx context.Context, host string, before time.Time) (*audit.Entry, error) {
	return nil, nil
}
func (f *fakeAuditStore) CountLastHour(ctx context.Context, tool, host string, now time.Time) (int, int, error) {
	return 0, 0, nil
}

type fakeCircuitStore struct {
	records map[string]circuitbreaker.Record
}

func (f *fakeCircuitStore) GetOrCreate(ctx context.Context, host string) (circuitbreaker.Record, error) {
	if rec, ok := f.records[host]; ok {
		return rec, nil
	}
	return circuitbreaker.Record{Host: host, State: circuitbreaker.StateClosed}, nil
}

func (f *fakeCircuitStore) Save(ctx context.Context, rec circuitbreaker.Record) error {
	f.records[rec.Host] = rec
	return nil
}

func TestStatsServiceVerdictCounts(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeAuditStore{entries: []*audit.Entry{
		{TimestampMS: start.Add(time.Minute).UnixMilli(), Action: "allow"},
		{TimestampMS: start.Add(2 * time.Minute).UnixMilli(), Action: "allow"},
		{TimestampMS: start.Add(3 * time.Minute).UnixMilli(), Action: "deny"},
		{TimestampMS: start.Add(4 * time.Minute).UnixMilli(), Action: "ask"},
		{TimestampMS: start.Add(5 * time.Minute).UnixMilli(), Action: "log-only"},
	}}
	svc := NewStatsService(store, &fakeCircuitStore{records: map[string]circuitbreaker.Record{}})

	counts, err := svc.VerdictCounts(context.Background(), start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("VerdictCounts: %v", err)
	}
	if counts.Allowed != 2 || counts.Denied != 1 || counts.Asked != 1 || counts.LogOnly != 1 {
		t.Fatalf("counts = %+v, want {2 1 1 1}", counts)
	}
}

func TestStatsServiceCircuitSnapshotDedupesHosts(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeAuditStore{entries: []*audit.Entry{
		{TimestampMS: start.UnixMilli(), Host: "db.internal"},
		{TimestampMS: start.UnixMilli(), Host: "db.internal"},
		{TimestampMS: start.UnixMilli(), Host: "api.internal"},
	}}
	circuits := &fakeCircuitStore{records: map[string]circuitbreaker.Record{
		"api.internal": {Host: "api.internal", State: circuitbreaker.StateOpen},
	}}
	svc := NewStatsService(store, circuits)

	snapshot, err := svc.CircuitSnapshot(context.Background(), start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("CircuitSnapshot: %v", err)
	}
	if len(snapshot) != 2 {
		t.Fatalf("len(snapshot) = %d, want 2", len(snapshot))
	}
	for _, s := range snapshot {
		if s.Host == "api.internal" && s.State != circuitbreaker.StateOpen {
			t.Fatalf("api.internal state = %v, want open", s.State)
		}
	}
}

func TestStatsServiceTopAnomalousRanksByPeakScore(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeAuditStore{entries: []*audit.Entry{
		{TimestampMS: start.UnixMilli(), Tool: "fs.read", Host: "h1", RiskScore: 10},
		{TimestampMS: start.UnixMilli(), Tool: "fs.read", Host: "h1", RiskScore: 90},
		{TimestampMS: start.UnixMilli(), Tool: "net.fetch", Host: "h2", RiskScore: 40},
	}}
	svc := NewStatsService(store, &fakeCircuitStore{records: map[string]circuitbreaker.Record{}})

	top, err := svc.TopAnomalous(context.Background(), start, start.Add(time.Hour), 1)
	if err != nil {
		t.Fatalf("TopAnomalous: %v", err)
	}
	if len(top) != 1 {
		t.Fatalf("len(top) = %d, want 1", len(top))
	}
	if top[0].Tool != "fs.read" || top[0].Host != "h1" || top[0].MaxScore != 90 {
		t.Fatalf("top[0] = %+v, want fs.read/h1/90", top[0])
	}
	if top[0].Samples != 2 {
		t.Fatalf("Samples = %d, want 2", top[0].Samples)
	}
}
