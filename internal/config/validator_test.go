package config

import (
	"strings"
	"testing"
)

func minimalValidConfig() *Config {
	return &Config{
		Mode:       "alert",
		DBPath:     "sentinel-core.db",
		Downstream: DownstreamConfig{Command: "/usr/bin/mcp-server"},
	}
}

func TestValidateValidConfig(t *testing.T) {
	t.Parallel()
	cfg := minimalValidConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidateZeroConfigAfterDefaults(t *testing.T) {
	t.Parallel()
	cfg := &Config{Downstream: DownstreamConfig{Command: "/usr/bin/mcp-server"}}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaulted config unexpected error: %v", err)
	}
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	t.Parallel()
	cfg := minimalValidConfig()
	cfg.Mode = "paranoid"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for unknown mode, got nil")
	}
	if !strings.Contains(err.Error(), "Mode") {
		t.Errorf("error = %q, want to mention Mode", err.Error())
	}
}

func TestValidateRequiresDBPath(t *testing.T) {
	t.Parallel()
	cfg := minimalValidConfig()
	cfg.DBPath = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for missing db_path, got nil")
	}
	if !strings.Contains(err.Error(), "DBPath") {
		t.Errorf("error = %q, want to mention DBPath", err.Error())
	}
}

func TestValidateRequiresDownstreamCommand(t *testing.T) {
	t.Parallel()
	cfg := minimalValidConfig()
	cfg.Downstream.Command = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for missing downstream command, got nil")
	}
}

func TestValidateRejectsInvalidForwardTimeoutDuration(t *testing.T) {
	t.Parallel()
	cfg := minimalValidConfig()
	cfg.ForwardTimeout = "not-a-duration"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for invalid forward_timeout, got nil")
	}
	if !strings.Contains(err.Error(), "forward_timeout") {
		t.Errorf("error = %q, want to mention forward_timeout", err.Error())
	}
}

func TestValidateRejectsInvalidConfirmationTokenTTLDuration(t *testing.T) {
	t.Parallel()
	cfg := minimalValidConfig()
	cfg.ConfirmationTokenTTL = "five minutes"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for invalid confirmation_token_ttl, got nil")
	}
}

func TestValidateAcceptsValidDurations(t *testing.T) {
	t.Parallel()
	cfg := minimalValidConfig()
	cfg.ForwardTimeout = "45s"
	cfg.ConfirmationTokenTTL = "10m"
	cfg.CircuitBreaker.Cooldown = "3m"

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidateRejectsZeroCircuitBreakerThreshold(t *testing.T) {
	t.Parallel()
	cfg := minimalValidConfig()
	cfg.CircuitBreaker.Threshold = 0
	// min=1 only triggers when the field is set at all via "omitempty", so
	// force a negative value which always fails the bound.
	cfg.CircuitBreaker.Threshold = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for negative circuit breaker threshold, got nil")
	}
}

func TestValidateRejectsOutOfRangeAlertThreshold(t *testing.T) {
	t.Parallel()
	cfg := minimalValidConfig()
	bad := 150.0
	cfg.AlertThresholds.Deny = &bad

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for out-of-range alert threshold, got nil")
	}
}

func TestValidateAcceptsInRangeAlertThresholds(t *testing.T) {
	t.Parallel()
	cfg := minimalValidConfig()
	allow, ask, deny, logOnly := 10.0, 50.0, 90.0, 30.0
	cfg.AlertThresholds = AlertThresholdConfig{Allow: &allow, Ask: &ask, Deny: &deny, LogOnly: &logOnly}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidateRejectsInvalidLogLevel(t *testing.T) {
	t.Parallel()
	cfg := minimalValidConfig()
	cfg.LogLevel = "verbose"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for invalid log level, got nil")
	}
}

func TestValidateRejectsMalformedMetricsAddr(t *testing.T) {
	t.Parallel()
	cfg := minimalValidConfig()
	cfg.MetricsAddr = "not an address"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for malformed metrics_addr, got nil")
	}
}

func TestValidateAcceptsValidMetricsAddr(t *testing.T) {
	t.Parallel()
	cfg := minimalValidConfig()
	cfg.MetricsAddr = "127.0.0.1:9090"

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}
