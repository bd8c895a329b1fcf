package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sentinelcore/sentinelcore/internal/domain/rule"
	"github.com/sentinelcore/sentinelcore/internal/port"
)

// ErrRuleNotFound is returned when a rule id has no matching row.
var ErrRuleNotFound = errors.New("rule not found")

// ruleInput is the validated shape an admin caller submits; it is converted
// into a rule.Rule only after validation passes, keeping validator tags off
// the domain type itself.
type ruleInput struct {
	Name            string `validate:"required"`
	Priority        int
	Action          string `validate:"required,oneof=allow deny ask log-only"`
	Enabled         bool
	ToolPattern     string
	HostPattern     string
	AgentPattern    string
	ArgumentPattern string
	RateLimit       *rule.RateLimitSpec
	Schedule        *rule.Schedule `validate:"omitempty"`
}

// RuleAdminService provides validated CRUD over the engine's rule store. It
// is the Go-level administrative facade over the rule data model; no
// transport (HTTP, CLI) is wired to it here.
type RuleAdminService struct {
	store     port.RuleStore
	validator *validator.Validate
	logger    *slog.Logger
}

// NewRuleAdminService constructs a RuleAdminService over store.
func NewRuleAdminService(store port.RuleStore, logger *slog.Logger) *RuleAdminService {
	v := validator.New(validator.WithRequiredStructEnabled())
	return &RuleAdminService{store: store, validator: v, logger: logger}
}

// ListRules returns every rule, enabled or not.
func (s *RuleAdminService) ListRules(ctx context.Context) ([]*rule.Rule, error) {
	return s.store.List(ctx)
}

// GetRule returns a single rule by id, or ErrRuleNotFound.
func (s *RuleAdminService) GetRule(ctx context.Context, id string) (*rule.Rule, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrRuleNotFound
	}
	return r, nil
}

// CreateRule validates and persists a new rule, assigning it an id and
// creation/update timestamps.
func (s *RuleAdminService) CreateRule(ctx context.Context, r *rule.Rule) (*rule.Rule, error) {
	if err := s.validate(r); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	r.ID = uuid.New().String()
	r.CreatedAt = now
	r.UpdatedAt = now

	if err := s.store.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("save rule: %w", err)
	}
	s.logger.Info("rule created", "id", r.ID, "name", r.Name, "action", r.Action)
	return r, nil
}

// UpdateRule validates and persists changes to an existing rule, preserving
// its id and created_at. Returns ErrRuleNotFound if id does not exist.
func (s *RuleAdminService) UpdateRule(ctx context.Context, id string, r *rule.Rule) (*rule.Rule, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrRuleNotFound
	}

	if err := s.validate(r); err != nil {
		return nil, err
	}

	r.ID = id
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()

	if err := s.store.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("save rule: %w", err)
	}
	s.logger.Info("rule updated", "id", r.ID, "name", r.Name)
	return r, nil
}

// DeleteRule removes a rule by id. Returns ErrRuleNotFound if it does not
// exist.
func (s *RuleAdminService) DeleteRule(ctx context.Context, id string) error {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrRuleNotFound
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	s.logger.Info("rule deleted", "id", id)
	return nil
}

// validate runs struct-tag validation on the rule's admin-facing fields,
// then checks the two invariants the validator tags can't express: the
// argument pattern must compile as a regex, and a schedule's hour bounds
// must be sane.
func (s *RuleAdminService) validate(r *rule.Rule) error {
	input := ruleInput{
		Name:            r.Name,
		Priority:        r.Priority,
		Action:          string(r.Action),
		Enabled:         r.Enabled,
		ToolPattern:     r.ToolPattern,
		HostPattern:     r.HostPattern,
		AgentPattern:    r.AgentPattern,
		ArgumentPattern: r.ArgumentPattern,
		RateLimit:       r.RateLimit,
		Schedule:        r.Schedule,
	}
	if err := s.validator.Struct(input); err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}

	if r.ArgumentPattern != "" {
		if _, err := regexp.Compile("(?i)" + r.ArgumentPattern); err != nil {
			return fmt.Errorf("invalid rule: argument_pattern does not compile: %w", err)
		}
	}

	if r.Schedule != nil {
		sc := r.Schedule
		if sc.StartHour < 0 || sc.StartHour > 23 || sc.EndHour < 0 || sc.EndHour > 23 {
			return fmt.Errorf("invalid rule: schedule hours must be in 0..23")
		}
		for _, d := range sc.DaysOfWeek {
			if d < 0 || d > 6 {
				return fmt.Errorf("invalid rule: schedule day_of_week must be in 0..6")
			}
		}
		if sc.Timezone != "" {
			if _, err := time.LoadLocation(sc.Timezone); err != nil {
				return fmt.Errorf("invalid rule: schedule timezone: %w", err)
			}
		}
	}

	return nil
}

