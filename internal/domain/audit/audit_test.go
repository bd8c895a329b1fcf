package audit

import "testing"

func buildChain(n int) []*Entry {
	var entries []*Entry
	prevHash := Genesis
	for i := 1; i <= n; i++ {
		e := &Entry{
			SequenceNumber: int64(i),
			TimestampMS:    int64(i) * 1000,
			Tool:           "fleet_status",
			Host:           "h",
			Agent:          "a",
			Verdict:        VerdictAllowed,
			PreviousHash:   prevHash,
		}
		e.Hash = ComputeHash(e)
		prevHash = e.Hash
		entries = append(entries, e)
	}
	return entries
}

func TestVerifyValidChain(t *testing.T) {
	entries := buildChain(5)
	result := Verify(entries)
	if !result.Valid {
		t.Fatalf("expected valid chain, got breaks: %+v", result.BrokenChains)
	}
	if result.TotalEntries != 5 {
		t.Fatalf("total_entries = %d, want 5", result.TotalEntries)
	}
	if len(result.BrokenChains) != 0 {
		t.Fatalf("broken_chains = %+v, want none", result.BrokenChains)
	}
}

func TestVerifyDetectsTamperedField(t *testing.T) {
	entries := buildChain(5)
	entries[2].Tool = "tampered_tool"

	result := Verify(entries)
	if result.Valid {
		t.Fatal("expected invalid chain after tampering")
	}
	found := false
	for _, b := range result.BrokenChains {
		if b.SequenceNumber == 3 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a break at sequence 3, got %+v", result.BrokenChains)
	}
}

func TestVerifyDetectsDeletion(t *testing.T) {
	entries := buildChain(5)
	entries = append(entries[:2], entries[3:]...) // delete sequence 3

	result := Verify(entries)
	if result.Valid {
		t.Fatal("expected invalid chain after deletion")
	}
	if len(result.BrokenChains) == 0 {
		t.Fatal("expected at least one break after deletion")
	}
}

func TestVerdictFor(t *testing.T) {
	if v := VerdictFor(true, true); v != VerdictAsked {
		t.Errorf("VerdictFor(true, true) = %v, want asked", v)
	}
	if v := VerdictFor(true, false); v != VerdictAllowed {
		t.Errorf("VerdictFor(true, false) = %v, want allowed", v)
	}
	if v := VerdictFor(false, false); v != VerdictDenied {
		t.Errorf("VerdictFor(false, false) = %v, want denied", v)
	}
}

func TestGenesisPreviousHash(t *testing.T) {
	entries := buildChain(1)
	if entries[0].PreviousHash != Genesis {
		t.Fatalf("first entry previous_hash = %q, want %q", entries[0].PreviousHash, Genesis)
	}
}
