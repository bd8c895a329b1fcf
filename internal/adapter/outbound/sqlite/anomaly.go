package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sentinelcore/sentinelcore/internal/domain/anomaly"
)

// GetOrCreateBaseline loads the (tool, host) baseline, creating a zeroed one
// if none exists yet.
func (s *Store) GetOrCreateBaseline(ctx context.Context, tool, host string) (*anomaly.Baseline, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tool, host, frequency_mean, frequency_stddev, hourly_dist_json, fingerprints_json, bigrams_json,
		       error_rate_mean, error_rate_stddev, last_updated, sample_count
		FROM anomaly_baselines WHERE tool = ? AND host = ?`, tool, host)

	b, err := scanBaseline(row)
	if err == nil {
		return b, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("sqlite: get anomaly baseline %s/%s: %w", tool, host, err)
	}

	fresh := anomaly.NewBaseline(tool, host)
	if err := s.SaveBaseline(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

func scanBaseline(row *sql.Row) (*anomaly.Baseline, error) {
	b := &anomaly.Baseline{ToolBigrams: map[string]float64{}}
	var hourlyJSON, fingerprintsJSON, bigramsJSON string
	var lastUpdated int64
	if err := row.Scan(&b.Tool, &b.Host, &b.FrequencyMean, &b.FrequencyStddev, &hourlyJSON, &fingerprintsJSON, &bigramsJSON,
		&b.ErrorRateMean, &b.ErrorRateStddev, &lastUpdated, &b.SampleCount); err != nil {
		return nil, err
	}
	var hourly [24]float64
	if err := json.Unmarshal([]byte(hourlyJSON), &hourly); err == nil {
		b.HourlyDistribution = hourly
	}
	var fps []string
	if err := json.Unmarshal([]byte(fingerprintsJSON), &fps); err == nil {
		b.ArgumentFingerprints = fps
	}
	var bigrams map[string]float64
	if err := json.Unmarshal([]byte(bigramsJSON), &bigrams); err == nil && bigrams != nil {
		b.ToolBigrams = bigrams
	}
	b.LastUpdated = millisToTime(lastUpdated)
	return b, nil
}

// SaveBaseline upserts the baseline, keyed by (tool, host).
func (s *Store) SaveBaseline(ctx context.Context, b *anomaly.Baseline) error {
	hourlyJSON, err := json.Marshal(b.HourlyDistribution)
	if err != nil {
		return fmt.Errorf("sqlite: encode hourly distribution: %w", err)
	}
	fingerprintsJSON, err := json.Marshal(b.ArgumentFingerprints)
	if err != nil {
		return fmt.Errorf("sqlite: encode argument fingerprints: %w", err)
	}
	bigrams := b.ToolBigrams
	if bigrams == nil {
		bigrams = map[string]float64{}
	}
	bigramsJSON, err := json.Marshal(bigrams)
	if err != nil {
		return fmt.Errorf("sqlite: encode tool bigrams: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO anomaly_baselines (tool, host, frequency_mean, frequency_stddev, hourly_dist_json, fingerprints_json,
			bigrams_json, error_rate_mean, error_rate_stddev, last_updated, sample_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tool, host) DO UPDATE SET
			frequency_mean=excluded.frequency_mean, frequency_stddev=excluded.frequency_stddev,
			hourly_dist_json=excluded.hourly_dist_json, fingerprints_json=excluded.fingerprints_json,
			bigrams_json=excluded.bigrams_json, error_rate_mean=excluded.error_rate_mean,
			error_rate_stddev=excluded.error_rate_stddev, last_updated=excluded.last_updated, sample_count=excluded.sample_count
	`, b.Tool, b.Host, b.FrequencyMean, b.FrequencyStddev, string(hourlyJSON), string(fingerprintsJSON),
		string(bigramsJSON), b.ErrorRateMean, b.ErrorRateStddev, timeToMillis(b.LastUpdated), b.SampleCount)
	if err != nil {
		return fmt.Errorf("sqlite: save anomaly baseline %s/%s: %w", b.Tool, b.Host, err)
	}
	return nil
}
