package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sentinelcore/sentinelcore/internal/port"
)

// InsertAlert records a new alert row and returns its assigned id.
func (s *Store) InsertAlert(ctx context.Context, a port.Alert) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (sequence_num, tool, host, agent, risk_score, reason, created_at, acknowledged)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`, a.SequenceNum, a.Tool, a.Host, a.Agent, a.RiskScore, a.Reason, a.CreatedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert alert: %w", err)
	}
	return res.LastInsertId()
}

// ListAlerts returns alerts, most recent first, optionally filtered to only
// unacknowledged ones.
func (s *Store) ListAlerts(ctx context.Context, onlyUnacknowledged bool, limit int) ([]port.Alert, error) {
	q := "SELECT id, sequence_num, tool, host, agent, risk_score, reason, created_at, acknowledged FROM alerts"
	if onlyUnacknowledged {
		q += " WHERE acknowledged = 0"
	}
	q += " ORDER BY id DESC"
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list alerts: %w", err)
	}
	defer rows.Close()

	var out []port.Alert
	for rows.Next() {
		var a port.Alert
		var createdAt int64
		var ack int
		if err := rows.Scan(&a.ID, &a.SequenceNum, &a.Tool, &a.Host, &a.Agent, &a.RiskScore, &a.Reason, &createdAt, &ack); err != nil {
			return nil, fmt.Errorf("sqlite: scan alert: %w", err)
		}
		a.CreatedAt = time.UnixMilli(createdAt)
		a.Acknowledged = ack != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// AcknowledgeAlert marks an alert acknowledged by id.
func (s *Store) AcknowledgeAlert(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "UPDATE alerts SET acknowledged = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: acknowledge alert %d: %w", id, err)
	}
	return nil
}
