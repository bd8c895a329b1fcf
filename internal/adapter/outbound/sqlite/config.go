package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sentinelcore/sentinelcore/internal/domain/mode"
)

const modeConfigKey = "mode"

// GetMode reads the persisted mode key, rejecting any value outside the
// four enumerated modes rather than falling back to a permissive default.
func (s *Store) GetMode(ctx context.Context) (mode.Mode, error) {
	raw, ok, err := s.GetConfig(ctx, modeConfigKey)
	if err != nil {
		return "", err
	}
	if !ok {
		return mode.SilentAllow, nil
	}
	return mode.Parse(raw)
}

// SetMode validates and persists the process-global mode.
func (s *Store) SetMode(ctx context.Context, m mode.Mode) error {
	if !m.IsValid() {
		return fmt.Errorf("sqlite: set mode: %q is not a valid mode", m)
	}
	return s.SetConfig(ctx, modeConfigKey, string(m))
}

// GetConfig reads an arbitrary config key.
func (s *Store) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&val)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite: get config %s: %w", key, err)
	}
	return val, true, nil
}

// SetConfig upserts an arbitrary config key.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("sqlite: set config %s: %w", key, err)
	}
	return nil
}
