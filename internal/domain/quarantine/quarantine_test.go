package quarantine

import (
	"testing"
	"time"
)

func TestCheckPrecedenceHostFirst(t *testing.T) {
	entries := map[string]Entry{
		"host:h":   {Scope: ScopeHost, Target: "h"},
		"tool:t":   {Scope: ScopeTool, Target: "t"},
		"agent:a":  {Scope: ScopeAgent, Target: "a"},
	}
	lookup := func(scope Scope, target string) (Entry, bool) {
		e, ok := entries[string(scope)+":"+target]
		return e, ok
	}
	e, ok := Check(lookup, "h", "t", "a")
	if !ok || e.Scope != ScopeHost {
		t.Fatalf("expected host-scope match first, got %+v ok=%v", e, ok)
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	e := Entry{ExpiresAt: &past}
	if !e.IsExpired(now) {
		t.Fatal("expected expired entry to report expired")
	}

	future := now.Add(time.Hour)
	e2 := Entry{ExpiresAt: &future}
	if e2.IsExpired(now) {
		t.Fatal("expected unexpired entry to report not expired")
	}

	e3 := Entry{}
	if e3.IsExpired(now) {
		t.Fatal("entry with no expiry should never report expired")
	}
}

func TestCaseSensitiveExactMatch(t *testing.T) {
	entries := map[string]Entry{"host:h": {Scope: ScopeHost, Target: "h"}}
	lookup := func(scope Scope, target string) (Entry, bool) {
		e, ok := entries[string(scope)+":"+target]
		return e, ok
	}
	if _, ok := Check(lookup, "H", "t", "a"); ok {
		t.Fatal("quarantine match must be case-sensitive")
	}
}
