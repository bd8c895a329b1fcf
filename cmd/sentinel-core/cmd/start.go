package cmd

import (
	"context"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/sentinelcore/sentinelcore/internal/adapter/inbound/stdio"
	mcpclient "github.com/sentinelcore/sentinelcore/internal/adapter/outbound/mcp"
	"github.com/sentinelcore/sentinelcore/internal/adapter/outbound/sqlite"
	"github.com/sentinelcore/sentinelcore/internal/config"
	"github.com/sentinelcore/sentinelcore/internal/domain/clock"
	"github.com/sentinelcore/sentinelcore/internal/domain/engine"
	"github.com/sentinelcore/sentinelcore/internal/domain/interceptor"
	"github.com/sentinelcore/sentinelcore/internal/domain/mode"
	"github.com/sentinelcore/sentinelcore/internal/domain/rule"
	"github.com/sentinelcore/sentinelcore/internal/service"
	"github.com/sentinelcore/sentinelcore/internal/telemetry"
)

var startCmd = &cobra.Command{
	Use:   "start [-- command [args...]]",
	Short: "Start the sentinel",
	Long: `Start the sentinel, spawning the downstream tool server over stdio and
relaying every tool call between the caller on this process's stdin/stdout
and that downstream server, sequenced through the policy engine.

The downstream command can come from the config file's downstream.command,
or be given directly after "--":

  sentinel-core start -- npx @modelcontextprotocol/server-filesystem /tmp
  sentinel-core --config /path/to/config.yaml start`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
		cfg.SetDefaults() // re-apply so DevMode's debug log level takes effect
	}

	// A command given after "--" overrides the config file's downstream
	// command.
	if len(args) > 0 {
		cfg.Downstream.Command = args[0]
		cfg.Downstream.Args = args[1:]
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logLevel := parseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	logger.Debug("log level configured", "level", cfg.LogLevel, "effective", logLevel.String())

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	// Signal context for graceful shutdown; a second Ctrl+C forces an
	// immediate exit once default signal handling is restored.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("sentinel-core stopped")
	return nil
}

// run wires the persistent store, policy engine, interceptor, downstream
// client, and relay together, then blocks relaying until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()
	logger.Info("store opened", "path", cfg.DBPath)

	cfgStore := sqlite.Config{Store: store}
	if err := seedMode(ctx, cfgStore, cfg.Mode); err != nil {
		return fmt.Errorf("failed to seed mode: %w", err)
	}
	if err := seedAlertThresholds(ctx, cfgStore, cfg.AlertThresholds); err != nil {
		return fmt.Errorf("failed to seed alert thresholds: %w", err)
	}

	eng := engine.New(
		sqlite.Rules{Store: store},
		sqlite.Circuits{Store: store},
		sqlite.Quarantines{Store: store},
		sqlite.RateLimits{Store: store},
		sqlite.Tokens{Store: store},
		sqlite.Anomalies{Store: store},
		cfgStore,
		sqlite.Audit{Store: store},
		clock.Real{},
	)
	if cfg.CircuitBreaker.Threshold > 0 {
		eng.Breaker.Threshold = cfg.CircuitBreaker.Threshold
	}
	if cfg.CircuitBreaker.Cooldown != "" {
		if d, err := time.ParseDuration(cfg.CircuitBreaker.Cooldown); err == nil {
			eng.Breaker.Cooldown = d
		}
	}

	alerts := sqlite.Alerts{Store: store}

	shutdownTracing, err := telemetry.NewTracerProvider(ctx, "sentinel-core")
	if err != nil {
		return fmt.Errorf("failed to start tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)
	if cfg.MetricsAddr != "" {
		serveMetrics(ctx, cfg.MetricsAddr, registry, logger)
	}

	ic := interceptor.New(eng, alerts, logger, nil)
	ic.Metrics = metrics
	if cfg.ForwardTimeout != "" {
		if d, err := time.ParseDuration(cfg.ForwardTimeout); err == nil {
			ic.ForwardTimeout = d
		}
	}
	if cfg.ConfirmationTokenTTL != "" {
		if d, err := time.ParseDuration(cfg.ConfirmationTokenTTL); err == nil {
			ic.ConfirmationTokenTTL = d
		}
	}

	if cfg.Downstream.Command == "" {
		return fmt.Errorf("no downstream command configured (set downstream.command or pass one after --)")
	}
	client := mcpclient.NewStdioClient(cfg.Downstream.Command, cfg.Downstream.Args...)
	relay := service.NewRelayService(client, ic, logger)
	transport := stdio.NewStdioTransport(relay)

	logger.Info("sentinel-core starting",
		"mode", cfg.Mode,
		"downstream", cfg.Downstream.Command,
	)

	if err := transport.Start(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("relay exited: %w", err)
	}
	return transport.Close()
}

// seedMode validates and persists the configured mode every boot, so a
// fresh database and a restart both converge on the operator's configured
// posture rather than silently keeping whatever mode a prior run left
// behind.
func seedMode(ctx context.Context, cfgStore sqlite.Config, m string) error {
	parsed, err := mode.Parse(m)
	if err != nil {
		return err
	}
	return cfgStore.SetMode(ctx, parsed)
}

// seedAlertThresholds writes any operator-configured alert threshold
// overrides into the config table; fields left unset keep the engine's
// built-in default.
func seedAlertThresholds(ctx context.Context, cfgStore sqlite.Config, t config.AlertThresholdConfig) error {
	overrides := map[rule.Action]*float64{
		rule.ActionAllow:   t.Allow,
		rule.ActionAsk:     t.Ask,
		rule.ActionDeny:    t.Deny,
		rule.ActionLogOnly: t.LogOnly,
	}
	for action, val := range overrides {
		if val == nil {
			continue
		}
		key := "alert_threshold_" + string(action)
		if err := cfgStore.Set(ctx, key, strconv.FormatFloat(*val, 'f', -1, 64)); err != nil {
			return err
		}
	}
	return nil
}

// serveMetrics starts a background HTTP server exposing /metrics on addr,
// shutting down when ctx is cancelled. This is the only HTTP surface
// sentinel-core exposes; it carries no admin/control endpoints.
func serveMetrics(ctx context.Context, addr string, registry *prometheus.Registry, logger *slog.Logger) {
	mux := stdhttp.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &stdhttp.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			logger.Warn("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func pidFilePath() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".sentinel-core", "sentinel-core.pid")
	}
	return filepath.Join(os.TempDir(), "sentinel-core.pid")
}

// writePIDFile writes the current process PID to path, creating parent
// directories as needed.
func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}
