// Package audit implements the append-only, hash-chained audit log: entry
// construction, the exact hash formula, and chain verification.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/sentinelcore/sentinelcore/internal/domain/value"
)

// Verdict is the recorded disposition of one audit entry.
type Verdict string

const (
	VerdictAllowed Verdict = "allowed"
	VerdictDenied  Verdict = "denied"
	VerdictAsked   Verdict = "asked"
)

// ResponseStatus is filled in later, once downstream replies (or times out).
type ResponseStatus string

const (
	ResponseStatusSuccess ResponseStatus = "success"
	ResponseStatusError   ResponseStatus = "error"
	ResponseStatusTimeout ResponseStatus = "timeout"
)

// Genesis is the literal previous_hash of the first entry in the chain.
const Genesis = "GENESIS"

// RiskFactor mirrors anomaly.RiskFactor at the audit boundary, avoiding a
// dependency from audit on anomaly.
type RiskFactor struct {
	Factor  string
	Score   float64
	Details string
}

// Entry is one append-only audit record.
type Entry struct {
	SequenceNumber int64
	TimestampMS    int64
	Tool           string
	Host           string
	Agent          string
	Arguments      value.Value // redacted before being set here
	Verdict        Verdict
	Action         string
	MatchedRuleID  string
	RiskScore      float64
	RiskFactors    []RiskFactor
	Mode           string

	ResponseStatus ResponseStatus // excluded from hash; filled in late
	ErrorMessage   string         // excluded from hash; filled in late

	Hash         string
	PreviousHash string
}

// ComputeHash computes the chained hash exactly as:
// SHA256("seq|ts|tool|host|agent|verdict|previous_hash").
func ComputeHash(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%d|%s|%s|%s|%s|%s",
		e.SequenceNumber, e.TimestampMS, e.Tool, e.Host, e.Agent, e.Verdict, e.PreviousHash)
	return hex.EncodeToString(h.Sum(nil))
}

// Break describes one detected discontinuity in the chain.
type Break struct {
	SequenceNumber int64
	Reason         string
	Expected       string
	Actual         string
}

// VerifyResult is the outcome of walking the chain.
type VerifyResult struct {
	Valid         bool
	TotalEntries  int
	BrokenChains  []Break
}

// Verify walks entries, already ordered by sequence_number ascending, and
// checks gaplessness, previous_hash linkage, and hash recomputation. It
// reports every break found rather than stopping at the first.
func Verify(entries []*Entry) VerifyResult {
	result := VerifyResult{TotalEntries: len(entries), Valid: true}

	var prevHash string = Genesis
	var prevSeq int64 = 0

	for _, e := range entries {
		if e.SequenceNumber != prevSeq+1 {
			result.Valid = false
			result.BrokenChains = append(result.BrokenChains, Break{
				SequenceNumber: e.SequenceNumber,
				Reason:         "sequence gap",
				Expected:       fmt.Sprintf("%d", prevSeq+1),
				Actual:         fmt.Sprintf("%d", e.SequenceNumber),
			})
		}
		if e.PreviousHash != prevHash {
			result.Valid = false
			result.BrokenChains = append(result.BrokenChains, Break{
				SequenceNumber: e.SequenceNumber,
				Reason:         "previous_hash mismatch",
				Expected:       prevHash,
				Actual:         e.PreviousHash,
			})
		}
		expectedHash := ComputeHash(e)
		if e.Hash != expectedHash {
			result.Valid = false
			result.BrokenChains = append(result.BrokenChains, Break{
				SequenceNumber: e.SequenceNumber,
				Reason:         "hash mismatch",
				Expected:       expectedHash,
				Actual:         e.Hash,
			})
		}
		prevHash = e.Hash
		prevSeq = e.SequenceNumber
	}

	return result
}

// VerdictFor derives the verdict string from an allow/confirm decision, per
// the audit write path: "asked" if confirmation is required, else "allowed"
// or "denied".
func VerdictFor(allowed, requiresConfirmation bool) Verdict {
	switch {
	case requiresConfirmation:
		return VerdictAsked
	case allowed:
		return VerdictAllowed
	default:
		return VerdictDenied
	}
}
