package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sentinelcore/sentinelcore/internal/domain/audit"
	"github.com/sentinelcore/sentinelcore/internal/domain/mode"
	"github.com/sentinelcore/sentinelcore/internal/domain/ratelimit"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentinel-core.db")
	store, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAuditAssignsSequenceAndChainsHash(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	first := &audit.Entry{TimestampMS: now, Tool: "fs.read", Host: "h1", Verdict: audit.VerdictAllowed, Action: "allow"}
	seq1, err := store.AppendAudit(ctx, first)
	if err != nil {
		t.Fatalf("AppendAudit first: %v", err)
	}
	if seq1 != 1 {
		t.Fatalf("seq1 = %d, want 1", seq1)
	}
	if first.PreviousHash != audit.Genesis {
		t.Fatalf("first.PreviousHash = %q, want genesis", first.PreviousHash)
	}

	second := &audit.Entry{TimestampMS: now + 1, Tool: "fs.write", Host: "h1", Verdict: audit.VerdictDenied, Action: "deny"}
	seq2, err := store.AppendAudit(ctx, second)
	if err != nil {
		t.Fatalf("AppendAudit second: %v", err)
	}
	if seq2 != 2 {
		t.Fatalf("seq2 = %d, want 2", seq2)
	}
	if second.PreviousHash != first.Hash {
		t.Fatalf("second.PreviousHash = %q, want %q", second.PreviousHash, first.Hash)
	}

	entries, err := store.AllOrderedAudit(ctx)
	if err != nil {
		t.Fatalf("AllOrderedAudit: %v", err)
	}
	result := audit.Verify(entries)
	if !result.Valid {
		t.Fatalf("expected a valid chain, got breaks: %+v", result.BrokenChains)
	}
	if result.TotalEntries != 2 {
		t.Fatalf("TotalEntries = %d, want 2", result.TotalEntries)
	}
}

func TestVerifyDetectsTamperedEntry(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	for i := 0; i < 3; i++ {
		e := &audit.Entry{TimestampMS: now + int64(i), Tool: "fs.read", Host: "h1", Verdict: audit.VerdictAllowed, Action: "allow"}
		if _, err := store.AppendAudit(ctx, e); err != nil {
			t.Fatalf("AppendAudit: %v", err)
		}
	}

	// Directly tamper with the middle row's tool, bypassing the adapter, the
	// same way an operator editing the file out-of-band would.
	if _, err := store.db.ExecContext(ctx, "UPDATE audit_log SET tool = ? WHERE sequence_number = 2", "fs.delete"); err != nil {
		t.Fatalf("tamper update: %v", err)
	}

	entries, err := store.AllOrderedAudit(ctx)
	if err != nil {
		t.Fatalf("AllOrderedAudit: %v", err)
	}
	result := audit.Verify(entries)
	if result.Valid {
		t.Fatal("expected the tampered chain to be invalid")
	}
	if len(result.BrokenChains) == 0 {
		t.Fatal("expected at least one reported break")
	}
}

func TestGetOrCreateBucketThrottlesAfterCapacityExhausted(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	key := ratelimit.Key{RuleID: "r1", Tool: "fs.write", Host: "h1", Agent: "a1"}
	now := time.Now()

	bucket, err := store.GetOrCreateBucket(ctx, key, 2, now)
	if err != nil {
		t.Fatalf("GetOrCreateBucket: %v", err)
	}
	if bucket.Tokens != 2 {
		t.Fatalf("initial tokens = %v, want 2", bucket.Tokens)
	}

	// Consume both tokens at the same instant (no refill between checks).
	r1 := ratelimit.Check(bucket, 2, 0, now)
	if !r1.Allowed {
		t.Fatal("first check should be allowed")
	}
	if err := store.SaveBucket(ctx, r1.Bucket); err != nil {
		t.Fatalf("SaveBucket: %v", err)
	}

	reloaded, err := store.GetOrCreateBucket(ctx, key, 2, now)
	if err != nil {
		t.Fatalf("GetOrCreateBucket reload: %v", err)
	}
	r2 := ratelimit.Check(reloaded, 2, 0, now)
	if !r2.Allowed {
		t.Fatal("second check should be allowed")
	}
	if err := store.SaveBucket(ctx, r2.Bucket); err != nil {
		t.Fatalf("SaveBucket: %v", err)
	}

	reloaded2, err := store.GetOrCreateBucket(ctx, key, 2, now)
	if err != nil {
		t.Fatalf("GetOrCreateBucket reload 2: %v", err)
	}
	r3 := ratelimit.Check(reloaded2, 2, 0, now)
	if r3.Allowed {
		t.Fatal("third check should be throttled with no refill")
	}
}

func TestGetOrCreateBucketRefillsOverTime(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	key := ratelimit.Key{RuleID: "r1", Tool: "fs.write", Host: "h1", Agent: "a1"}
	now := time.Now()

	bucket, err := store.GetOrCreateBucket(ctx, key, 1, now)
	if err != nil {
		t.Fatalf("GetOrCreateBucket: %v", err)
	}
	r1 := ratelimit.Check(bucket, 1, 1, now)
	if !r1.Allowed {
		t.Fatal("first check should be allowed")
	}
	if err := store.SaveBucket(ctx, r1.Bucket); err != nil {
		t.Fatalf("SaveBucket: %v", err)
	}

	later := now.Add(2 * time.Second)
	reloaded, err := store.GetOrCreateBucket(ctx, key, 1, later)
	if err != nil {
		t.Fatalf("GetOrCreateBucket reload: %v", err)
	}
	r2 := ratelimit.Check(reloaded, 1, 1, later)
	if !r2.Allowed {
		t.Fatal("expected refill to have replenished a token after 2s at 1/s")
	}
}

func TestDeleteStaleBucketsRemovesOldEntries(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()
	key := ratelimit.Key{RuleID: "r1", Tool: "fs.write", Host: "h1", Agent: "a1"}

	stale := ratelimit.NewBucket(key, 5, now.Add(-48*time.Hour))
	if err := store.SaveBucket(ctx, stale); err != nil {
		t.Fatalf("SaveBucket: %v", err)
	}

	n, err := store.DeleteStaleBuckets(ctx, now)
	if err != nil {
		t.Fatalf("DeleteStaleBuckets: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted = %d, want 1", n)
	}
}

func TestConfigModeDefaultsToSilentAllowWhenUnset(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	m, err := store.GetMode(ctx)
	if err != nil {
		t.Fatalf("GetMode: %v", err)
	}
	if m != mode.SilentAllow {
		t.Fatalf("default mode = %v, want silent-allow", m)
	}
}

func TestConfigSetModeRejectsInvalidValue(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SetMode(ctx, mode.Mode("not-a-real-mode")); err == nil {
		t.Fatal("expected SetMode to reject an unrecognized mode")
	}
}

func TestConfigSetAndGetModeRoundTrips(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SetMode(ctx, mode.Lockdown); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	m, err := store.GetMode(ctx)
	if err != nil {
		t.Fatalf("GetMode: %v", err)
	}
	if m != mode.Lockdown {
		t.Fatalf("GetMode = %v, want lockdown", m)
	}
}
