package service

import (
	"context"
	"fmt"

	"github.com/sentinelcore/sentinelcore/internal/port"
)

// AlertService is the read/acknowledge facade over the alerts table an
// external monitoring surface would drive; alert dispatch itself (webhook
// delivery) is out of scope, matching the engine's AlertSink boundary.
type AlertService struct {
	store port.AlertStore
}

// NewAlertService constructs an AlertService over store.
func NewAlertService(store port.AlertStore) *AlertService {
	return &AlertService{store: store}
}

// List returns alerts, optionally restricted to unacknowledged ones, most
// recent first up to limit.
func (s *AlertService) List(ctx context.Context, onlyUnacknowledged bool, limit int) ([]port.Alert, error) {
	return s.store.List(ctx, onlyUnacknowledged, limit)
}

// Acknowledge marks an alert as handled.
func (s *AlertService) Acknowledge(ctx context.Context, id int64) error {
	if err := s.store.Acknowledge(ctx, id); err != nil {
		return fmt.Errorf("acknowledge alert %d: %w", id, err)
	}
	return nil
}
