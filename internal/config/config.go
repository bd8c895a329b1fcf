// Package config provides the configuration schema for sentinel-core.
//
// The schema is intentionally small: the persistent store (internal/adapter/
// outbound/sqlite) owns almost all of the sentinel's runtime state (rules,
// audit log, circuit breakers, rate-limit buckets, anomaly baselines,
// quarantine, confirmation tokens, alerts) — this file configures only what
// has to exist before that store can even be opened, plus the handful of
// operator-tunable overrides the engine reads at startup.
package config

// Config is the top-level configuration for sentinel-core.
type Config struct {
	// Mode is the process-global policy posture written into the store's
	// config table at startup. One of silent-allow, alert, silent-deny,
	// lockdown.
	Mode string `yaml:"mode" mapstructure:"mode" validate:"required,oneof=silent-allow alert silent-deny lockdown"`

	// DBPath is the path to the sqlite database file backing the
	// persistent store. Created on first run.
	DBPath string `yaml:"db_path" mapstructure:"db_path" validate:"required"`

	// Downstream configures the tool-execution server the interceptor
	// forwards allowed calls to.
	Downstream DownstreamConfig `yaml:"downstream" mapstructure:"downstream"`

	// CircuitBreaker overrides the per-host circuit breaker's default
	// threshold and cooldown.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`

	// ForwardTimeout overrides the default 15s window a forwarded request
	// has to receive a downstream reply (e.g. "15s", "30s").
	ForwardTimeout string `yaml:"forward_timeout" mapstructure:"forward_timeout" validate:"omitempty"`

	// ConfirmationTokenTTL overrides the default 5m lifetime of a minted
	// confirmation token (e.g. "5m", "10m").
	ConfirmationTokenTTL string `yaml:"confirmation_token_ttl" mapstructure:"confirmation_token_ttl" validate:"omitempty"`

	// AlertThresholds configures the per-verdict-action risk score above
	// which the engine enqueues an alert row.
	AlertThresholds AlertThresholdConfig `yaml:"alert_thresholds" mapstructure:"alert_thresholds"`

	// MetricsAddr, when set, serves Prometheus metrics at /metrics on this
	// address (e.g. "127.0.0.1:9090"). Empty disables the metrics listener.
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum slog level.
	// Valid values: "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// DevMode enables verbose logging: SetDefaults raises a default "info"
	// LogLevel to "debug". Validation is unchanged.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// DownstreamConfig configures the subprocess the sentinel spawns and
// forwards allowed tool calls to over stdio.
type DownstreamConfig struct {
	// Command is the executable to run as the downstream tool server.
	Command string `yaml:"command" mapstructure:"command" validate:"required"`

	// Args are the arguments passed to Command.
	Args []string `yaml:"args" mapstructure:"args"`
}

// CircuitBreakerConfig overrides the per-host circuit breaker's defaults.
type CircuitBreakerConfig struct {
	// Threshold is the number of failures recorded while closed that opens
	// the circuit (a success while closed does not reset the count). Defaults to circuitbreaker.DefaultThreshold if zero.
	Threshold int `yaml:"threshold" mapstructure:"threshold" validate:"omitempty,min=1"`

	// Cooldown is how long an open circuit waits before probing again
	// (e.g. "120s", "2m"). Defaults to circuitbreaker.DefaultCooldown if
	// empty.
	Cooldown string `yaml:"cooldown" mapstructure:"cooldown" validate:"omitempty"`
}

// AlertThresholdConfig sets the risk-score threshold, per verdict action,
// above which the engine enqueues an alert row. Unset fields keep the
// engine's default of 75.0.
type AlertThresholdConfig struct {
	Allow   *float64 `yaml:"allow" mapstructure:"allow" validate:"omitempty,min=0,max=100"`
	Ask     *float64 `yaml:"ask" mapstructure:"ask" validate:"omitempty,min=0,max=100"`
	Deny    *float64 `yaml:"deny" mapstructure:"deny" validate:"omitempty,min=0,max=100"`
	LogOnly *float64 `yaml:"log_only" mapstructure:"log_only" validate:"omitempty,min=0,max=100"`
}

// SetDefaults applies sensible default values to fields the operator left
// unset.
func (c *Config) SetDefaults() {
	if c.Mode == "" {
		c.Mode = "alert"
	}
	if c.DBPath == "" {
		c.DBPath = "sentinel-core.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ForwardTimeout == "" {
		c.ForwardTimeout = "15s"
	}
	if c.ConfirmationTokenTTL == "" {
		c.ConfirmationTokenTTL = "5m"
	}
	if c.CircuitBreaker.Cooldown == "" {
		c.CircuitBreaker.Cooldown = "120s"
	}

	if c.DevMode && c.LogLevel == "info" {
		c.LogLevel = "debug"
	}
}
