// Package anomaly implements the EWMA-based anomaly detector: five weighted
// components folded into a 0-100 composite score, computed against a
// per-(tool,host) baseline that is updated after each observation.
package anomaly

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	weightFrequency = 0.25
	weightTemporal  = 0.15
	weightNovelty   = 0.30
	weightSequence  = 0.15
	weightErrorRate = 0.15

	// MinSamples is the warm-up threshold below which every component
	// returns 0.
	MinSamples = 10

	// MaxFingerprints bounds the FIFO set of argument-shape hashes kept per
	// baseline.
	MaxFingerprints = 1000

	alpha = 0.1
)

// Baseline is the per-(tool,host) statistical profile the detector scores
// new observations against and updates after each one.
type Baseline struct {
	Tool string
	Host string

	FrequencyMean   float64
	FrequencyStddev float64

	HourlyDistribution [24]float64

	ArgumentFingerprints []string // FIFO, bounded to MaxFingerprints
	fingerprintSet        map[string]bool

	ToolBigrams map[string]float64

	ErrorRateMean   float64
	ErrorRateStddev float64

	LastUpdated time.Time
	SampleCount int
}

// NewBaseline returns a zeroed baseline for (tool, host).
func NewBaseline(tool, host string) *Baseline {
	return &Baseline{
		Tool:        tool,
		Host:        host,
		ToolBigrams: map[string]float64{},
	}
}

func (b *Baseline) ensureFingerprintSet() {
	if b.fingerprintSet == nil {
		b.fingerprintSet = make(map[string]bool, len(b.ArgumentFingerprints))
		for _, f := range b.ArgumentFingerprints {
			b.fingerprintSet[f] = true
		}
	}
}

// Observation is the input to both Score and Update for a single request.
type Observation struct {
	Tool             string
	Host             string
	Timestamp        time.Time
	OpsLastHour      float64
	ArgsCanonical    []byte
	PreviousTool     string // "" if none
	ErrorRateLastHr  float64
	IsError          bool
}

// Fingerprint returns the SHA-256 hex digest of a canonical argument encoding.
func Fingerprint(argsCanonical []byte) string {
	sum := sha256.Sum256(argsCanonical)
	return hex.EncodeToString(sum[:])
}

// ComponentScores holds the five 0..100 component values.
type ComponentScores struct {
	Frequency       float64
	Temporal        float64
	ArgumentNovelty float64
	Sequence        float64
	ErrorRate       float64
}

// Composite combines the components by their spec weights.
func (c ComponentScores) Composite() float64 {
	return weightFrequency*c.Frequency +
		weightTemporal*c.Temporal +
		weightNovelty*c.ArgumentNovelty +
		weightSequence*c.Sequence +
		weightErrorRate*c.ErrorRate
}

// RiskFactor describes one above-threshold component for annotation.
type RiskFactor struct {
	Factor  string
	Score   float64
	Details string
}

// riskFactorThreshold is the component score above which it is surfaced as
// a named risk factor.
const riskFactorThreshold = 30

// RiskFactors converts components above riskFactorThreshold into descriptive
// risk factors.
func (c ComponentScores) RiskFactors() []RiskFactor {
	var out []RiskFactor
	add := func(name string, score float64, details string) {
		if score > riskFactorThreshold {
			out = append(out, RiskFactor{Factor: name, Score: score, Details: details})
		}
	}
	add("frequency", c.Frequency, "request rate deviates from baseline")
	add("temporal", c.Temporal, "request at an unusual hour for this tool/host")
	add("argument_novelty", c.ArgumentNovelty, "arguments not seen in recent baseline")
	add("sequence", c.Sequence, "unusual tool call sequence")
	add("error_rate", c.ErrorRate, "error rate deviates from baseline")
	return out
}

// Score computes the five components of obs against b. It does not mutate b;
// callers update the baseline separately via Update, after the decision for
// this request has been made.
func Score(b *Baseline, obs Observation) ComponentScores {
	if b == nil || b.SampleCount < MinSamples {
		return ComponentScores{}
	}
	b.ensureFingerprintSet()

	return ComponentScores{
		Frequency:       frequencyScore(b, obs),
		Temporal:        temporalScore(b, obs),
		ArgumentNovelty: noveltyScore(b, obs),
		Sequence:        sequenceScore(b, obs),
		ErrorRate:       errorRateScore(b, obs),
	}
}

func zscoreToScore(z float64) float64 {
	score := 100 * z / 3
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

func frequencyScore(b *Baseline, obs Observation) float64 {
	if b.FrequencyStddev == 0 {
		return 0
	}
	return zscoreToScore(ZScore(obs.OpsLastHour, b.FrequencyMean, b.FrequencyStddev))
}

func temporalScore(b *Baseline, obs Observation) float64 {
	hour := obs.Timestamp.Hour()
	p := b.HourlyDistribution[hour]
	switch {
	case p < 0.01:
		return 100
	case p < 0.05:
		return 75
	case p < 0.10:
		return 50
	default:
		return 0
	}
}

func noveltyScore(b *Baseline, obs Observation) float64 {
	fp := Fingerprint(obs.ArgsCanonical)
	if b.fingerprintSet[fp] {
		return 0
	}
	return 100
}

func bigramKey(prev, cur string) string {
	return fmt.Sprintf("%s→%s", prev, cur)
}

func sequenceScore(b *Baseline, obs Observation) float64 {
	if obs.PreviousTool == "" {
		return 0
	}
	p := b.ToolBigrams[bigramKey(obs.PreviousTool, obs.Tool)]
	switch {
	case p == 0:
		return 100
	case p < 0.01:
		return 75
	case p < 0.05:
		return 50
	default:
		return 0
	}
}

func errorRateScore(b *Baseline, obs Observation) float64 {
	if b.ErrorRateStddev == 0 {
		return 0
	}
	return zscoreToScore(ZScore(obs.ErrorRateLastHr, b.ErrorRateMean, b.ErrorRateStddev))
}

// Update folds obs into the baseline after the decision for this request has
// been made: baselines update after each request, never before the decision
// for the current request.
func Update(b *Baseline, obs Observation) {
	b.ensureFingerprintSet()

	b.FrequencyMean, b.FrequencyStddev = ewmaUpdate(b.FrequencyMean, b.FrequencyStddev, obs.OpsLastHour, b.SampleCount)

	hour := obs.Timestamp.Hour()
	n := float64(b.SampleCount)
	for i := range b.HourlyDistribution {
		onehot := 0.0
		if i == hour {
			onehot = 1
		}
		b.HourlyDistribution[i] = (b.HourlyDistribution[i]*n + onehot) / (n + 1)
	}

	fp := Fingerprint(obs.ArgsCanonical)
	if !b.fingerprintSet[fp] {
		b.fingerprintSet[fp] = true
		b.ArgumentFingerprints = append(b.ArgumentFingerprints, fp)
		if len(b.ArgumentFingerprints) > MaxFingerprints {
			oldest := b.ArgumentFingerprints[0]
			b.ArgumentFingerprints = b.ArgumentFingerprints[1:]
			delete(b.fingerprintSet, oldest)
		}
	}

	if obs.PreviousTool != "" {
		key := bigramKey(obs.PreviousTool, obs.Tool)
		b.ToolBigrams[key] = alpha*1 + (1-alpha)*b.ToolBigrams[key]
	}

	b.ErrorRateMean, b.ErrorRateStddev = ewmaUpdate(b.ErrorRateMean, b.ErrorRateStddev, obs.ErrorRateLastHr, b.SampleCount)

	b.SampleCount++
	b.LastUpdated = obs.Timestamp
}

// ewmaUpdate folds one observation into a persisted EWMA mean/stddev pair.
// The baseline itself only persists (mean, stddev, sampleCount), so each
// call rehydrates an EWMAMeanStddev tracker from those three fields, runs
// its Welford-style variance update, and hands the result back for the
// caller to persist -- this is the wiring point spec §4.5/§9 calls out
// ("stddev updated via Welford's online variance").
func ewmaUpdate(mean, stddev, x float64, sampleCount int) (newMean, newStddev float64) {
	e := NewEWMAMeanStddev()
	e.Mean, e.Stddev, e.n = mean, stddev, sampleCount
	e.Update(x)
	return e.Mean, e.Stddev
}
