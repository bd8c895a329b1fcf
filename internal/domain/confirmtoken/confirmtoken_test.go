package confirmtoken

import (
	"testing"
	"time"

	"github.com/sentinelcore/sentinelcore/internal/domain/value"
)

func TestValidateBindsExactContext(t *testing.T) {
	now := time.Now()
	tok := New("abc", "fleet_exec", "h", "a", value.Null(), now, DefaultTTL)
	if !tok.Validate("fleet_exec", "h", "a", now) {
		t.Fatal("expected valid for matching context")
	}
	if tok.Validate("other_tool", "h", "a", now) {
		t.Fatal("expected invalid for different tool")
	}
	if tok.Validate("fleet_exec", "other_host", "a", now) {
		t.Fatal("expected invalid for different host")
	}
}

func TestValidateRejectsUsedOrExpired(t *testing.T) {
	now := time.Now()
	tok := New("abc", "t", "h", "a", value.Null(), now, time.Minute)
	tok.Used = true
	if tok.Validate("t", "h", "a", now) {
		t.Fatal("expected invalid for used token")
	}

	tok2 := New("abc", "t", "h", "a", value.Null(), now, time.Minute)
	if tok2.Validate("t", "h", "a", now.Add(2*time.Minute)) {
		t.Fatal("expected invalid for expired token")
	}
}

func TestGenerateIsUnique(t *testing.T) {
	a, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("expected distinct generated tokens")
	}
	if len(a) != 64 {
		t.Fatalf("token length = %d, want 64 hex chars", len(a))
	}
}
