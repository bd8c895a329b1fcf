package ratelimit

import (
	"testing"
	"time"
)

func TestBurstThenThrottle(t *testing.T) {
	now := time.Now()
	key := Key{RuleID: "r1", Tool: "t", Host: "h", Agent: "a"}
	b := NewBucket(key, 3, now)

	allowed := 0
	for i := 0; i < 5; i++ {
		res := Check(b, 3, 1, now)
		b = res.Bucket
		if res.Allowed {
			allowed++
		} else if !res.ResetAt.After(now) {
			t.Errorf("throttled result has non-future reset_at: %v", res.ResetAt)
		}
	}
	if allowed != 3 {
		t.Fatalf("allowed = %d, want 3", allowed)
	}

	// After waiting 2s at 1 token/s, two more should be allowed.
	later := now.Add(2 * time.Second)
	allowedAfterWait := 0
	for i := 0; i < 2; i++ {
		res := Check(b, 3, 1, later)
		b = res.Bucket
		if res.Allowed {
			allowedAfterWait++
		}
	}
	if allowedAfterWait != 2 {
		t.Fatalf("allowed after wait = %d, want 2", allowedAfterWait)
	}
}

func TestNewBucketIsFull(t *testing.T) {
	now := time.Now()
	b := NewBucket(Key{}, 5, now)
	if b.Tokens != 5 {
		t.Fatalf("tokens = %v, want 5", b.Tokens)
	}
}
