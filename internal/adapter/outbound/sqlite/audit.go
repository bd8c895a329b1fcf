package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sentinelcore/sentinelcore/internal/domain/audit"
	"github.com/sentinelcore/sentinelcore/internal/domain/value"
	"github.com/sentinelcore/sentinelcore/internal/port"
)

// AppendAudit assigns the next sequence number and previous_hash inside one
// transaction, computes the entry's hash, and inserts it -- this is the
// write-ahead step the interceptor calls before forwarding a request
// downstream, so the read-compute-insert sequence must never interleave
// with another writer's.
func (s *Store) AppendAudit(ctx context.Context, e *audit.Entry) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin append audit tx: %w", err)
	}
	defer tx.Rollback()

	var lastSeq int64
	var lastHash string
	row := tx.QueryRowContext(ctx, "SELECT sequence_number, hash FROM audit_log ORDER BY sequence_number DESC LIMIT 1")
	switch err := row.Scan(&lastSeq, &lastHash); err {
	case nil:
	case sql.ErrNoRows:
		lastSeq, lastHash = 0, audit.Genesis
	default:
		return 0, fmt.Errorf("sqlite: load last audit entry: %w", err)
	}

	e.SequenceNumber = lastSeq + 1
	e.PreviousHash = lastHash
	e.Hash = audit.ComputeHash(e)

	argsJSON := value.Canonical(e.Arguments)
	riskFactorsJSON, err := json.Marshal(e.RiskFactors)
	if err != nil {
		return 0, fmt.Errorf("sqlite: encode risk factors: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_log (sequence_number, timestamp_ms, tool, host, agent, arguments_json, verdict, action,
			matched_rule_id, risk_score, risk_factors_json, mode, response_status, error_message, hash, previous_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.SequenceNumber, e.TimestampMS, e.Tool, e.Host, e.Agent, string(argsJSON), string(e.Verdict), e.Action,
		e.MatchedRuleID, e.RiskScore, string(riskFactorsJSON), e.Mode, string(e.ResponseStatus), e.ErrorMessage, e.Hash, e.PreviousHash)
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert audit entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit append audit tx: %w", err)
	}
	return e.SequenceNumber, nil
}

// UpdateAuditResponse fills in the late response_status/error_message
// fields, which are deliberately excluded from the hash so that a late
// downstream reply never retroactively invalidates the chain.
func (s *Store) UpdateAuditResponse(ctx context.Context, sequenceNumber int64, status audit.ResponseStatus, errMsg string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE audit_log SET response_status = ?, error_message = ? WHERE sequence_number = ?",
		string(status), errMsg, sequenceNumber)
	if err != nil {
		return fmt.Errorf("sqlite: update audit response for seq %d: %w", sequenceNumber, err)
	}
	return nil
}

// QueryAudit filters the log per q, ordered by sequence_number descending,
// per spec §4.6 ("Query"): most recent entries first.
func (s *Store) QueryAudit(ctx context.Context, q port.AuditQuery) ([]*audit.Entry, error) {
	var where []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		where = append(where, cond)
		args = append(args, arg)
	}
	if q.Tool != "" {
		add("tool = ?", q.Tool)
	}
	if q.Host != "" {
		add("host = ?", q.Host)
	}
	if q.Agent != "" {
		add("agent = ?", q.Agent)
	}
	if q.Verdict != "" {
		add("verdict = ?", q.Verdict)
	}
	if q.StartTime != nil {
		add("timestamp_ms >= ?", q.StartTime.UnixMilli())
	}
	if q.EndTime != nil {
		add("timestamp_ms <= ?", q.EndTime.UnixMilli())
	}

	query := "SELECT " + auditColumns + " FROM audit_log"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY sequence_number DESC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
		if q.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", q.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query audit log: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// AllOrderedAudit returns every entry ordered by sequence_number ascending.
func (s *Store) AllOrderedAudit(ctx context.Context) ([]*audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+auditColumns+" FROM audit_log ORDER BY sequence_number ASC")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list all audit entries: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// LastForHostAudit returns the most recent entry for host strictly before
// `before`, or (nil, nil) if there is none -- used by the anomaly detector's
// sequence component to find the previous tool called against this host.
func (s *Store) LastForHostAudit(ctx context.Context, host string, before time.Time) (*audit.Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+auditColumns+" FROM audit_log WHERE host = ? AND timestamp_ms < ? ORDER BY sequence_number DESC LIMIT 1",
		host, before.UnixMilli())
	e, err := scanAuditRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: last audit entry for host %s: %w", host, err)
	}
	return e, nil
}

// CountLastHourAudit returns the total request count and error count for
// (tool, host) in the hour preceding now, feeding the anomaly detector's
// frequency and error-rate components.
func (s *Store) CountLastHourAudit(ctx context.Context, tool, host string, now time.Time) (total int, errors int, err error) {
	since := now.Add(-time.Hour).UnixMilli()
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(CASE WHEN response_status = 'error' THEN 1 ELSE 0 END)
		FROM audit_log WHERE tool = ? AND host = ? AND timestamp_ms >= ? AND timestamp_ms < ?`,
		tool, host, since, now.UnixMilli())
	var errSum sql.NullInt64
	if scanErr := row.Scan(&total, &errSum); scanErr != nil {
		return 0, 0, fmt.Errorf("sqlite: count last hour for %s/%s: %w", tool, host, scanErr)
	}
	return total, int(errSum.Int64), nil
}

const auditColumns = "sequence_number, timestamp_ms, tool, host, agent, arguments_json, verdict, action, matched_rule_id, risk_score, risk_factors_json, mode, response_status, error_message, hash, previous_hash"

func scanAuditRows(rows *sql.Rows) ([]*audit.Entry, error) {
	var out []*audit.Entry
	for rows.Next() {
		e, err := scanAuditInto(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanAuditRow(row *sql.Row) (*audit.Entry, error) {
	return scanAuditInto(row)
}

func scanAuditInto(scanner interface{ Scan(dest ...interface{}) error }) (*audit.Entry, error) {
	var e audit.Entry
	var argsJSON, riskFactorsJSON, verdict, responseStatus string
	if err := scanner.Scan(&e.SequenceNumber, &e.TimestampMS, &e.Tool, &e.Host, &e.Agent, &argsJSON, &verdict,
		&e.Action, &e.MatchedRuleID, &e.RiskScore, &riskFactorsJSON, &e.Mode, &responseStatus, &e.ErrorMessage,
		&e.Hash, &e.PreviousHash); err != nil {
		return nil, fmt.Errorf("sqlite: scan audit entry: %w", err)
	}
	e.Verdict = audit.Verdict(verdict)
	e.ResponseStatus = audit.ResponseStatus(responseStatus)
	if args, err := value.FromJSON([]byte(argsJSON)); err == nil {
		e.Arguments = args
	}
	var riskFactors []audit.RiskFactor
	if err := json.Unmarshal([]byte(riskFactorsJSON), &riskFactors); err == nil {
		e.RiskFactors = riskFactors
	}
	return &e, nil
}
