package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sentinelcore/sentinelcore/internal/domain/confirmtoken"
	"github.com/sentinelcore/sentinelcore/internal/domain/value"
)

// SaveToken inserts a freshly minted confirmation token.
func (s *Store) SaveToken(ctx context.Context, t confirmtoken.Token) error {
	argsJSON := value.Canonical(t.Arguments)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO confirmation_tokens (value, tool, host, agent, arguments_json, created_at, expires_at, used)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(value) DO UPDATE SET
			tool=excluded.tool, host=excluded.host, agent=excluded.agent, arguments_json=excluded.arguments_json,
			created_at=excluded.created_at, expires_at=excluded.expires_at
	`, t.Value, t.Tool, t.Host, t.Agent, string(argsJSON), t.CreatedAt.UnixMilli(), t.ExpiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite: save confirmation token: %w", err)
	}
	return nil
}

// ValidateAndConsumeToken atomically loads the token row, validates it per
// confirmtoken.Token.Validate, and if valid marks it used within the same
// transaction so two concurrent confirmations of the same token can never
// both succeed.
func (s *Store) ValidateAndConsumeToken(ctx context.Context, val, tool, host, agent string, now time.Time) (confirmtoken.Token, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return confirmtoken.Token{}, false, fmt.Errorf("sqlite: begin validate token tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, "SELECT value, tool, host, agent, arguments_json, created_at, expires_at, used FROM confirmation_tokens WHERE value = ?", val)

	var tok confirmtoken.Token
	var argsJSON string
	var createdAt, expiresAt int64
	var used int
	err = row.Scan(&tok.Value, &tok.Tool, &tok.Host, &tok.Agent, &argsJSON, &createdAt, &expiresAt, &used)
	if err == sql.ErrNoRows {
		return confirmtoken.Token{}, false, nil
	}
	if err != nil {
		return confirmtoken.Token{}, false, fmt.Errorf("sqlite: scan confirmation token: %w", err)
	}
	tok.CreatedAt = time.UnixMilli(createdAt)
	tok.ExpiresAt = time.UnixMilli(expiresAt)
	tok.Used = used != 0
	if args, aerr := value.FromJSON([]byte(argsJSON)); aerr == nil {
		tok.Arguments = args
	}

	if !tok.Validate(tool, host, agent, now) {
		return tok, false, nil
	}

	if _, err := tx.ExecContext(ctx, "UPDATE confirmation_tokens SET used = 1 WHERE value = ?", val); err != nil {
		return confirmtoken.Token{}, false, fmt.Errorf("sqlite: mark confirmation token used: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return confirmtoken.Token{}, false, fmt.Errorf("sqlite: commit validate token tx: %w", err)
	}
	tok.Used = true
	return tok, true, nil
}

// DeleteExpiredTokens removes every token expired before now and returns the
// count removed.
func (s *Store) DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM confirmation_tokens WHERE expires_at < ?", now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete expired tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
