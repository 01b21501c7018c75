package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentinel-project/sentinel/internal/adapter/inbound/http"
	"github.com/sentinel-project/sentinel/internal/adapter/outbound/cel"
	"github.com/sentinel-project/sentinel/internal/adapter/outbound/memory"
	"github.com/sentinel-project/sentinel/internal/adapter/outbound/sqlite"
	"github.com/sentinel-project/sentinel/internal/adapter/outbound/webhook"
	"github.com/sentinel-project/sentinel/internal/config"
	"github.com/sentinel-project/sentinel/internal/domain/agent"
	"github.com/sentinel-project/sentinel/internal/domain/audit"
	"github.com/sentinel-project/sentinel/internal/domain/mode"
	"github.com/sentinel-project/sentinel/internal/domain/policy"
	"github.com/sentinel-project/sentinel/internal/domain/ratelimit"
	"github.com/sentinel-project/sentinel/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway server",
	Long: `Start the Sentinel gateway server.

The server exposes the evaluation API on server.http_addr and evaluates
agent actions against the loaded policy rules. High-risk actions are
escalated to a human reviewer; blocked actions are denied outright.

Examples:
  # Start with config file settings
  sentinel start

  # Start in observe mode (log verdicts, enforce nothing)
  MODE=observe sentinel start

  # Start with a specific config file
  sentinel --config /path/to/config.yaml start`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging, seeded dev agent)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load configuration (without validation, so CLI flags can override first)
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override dev mode from CLI flag
	if devMode {
		cfg.DevMode = true
	}

	// Apply dev defaults (fills a seeded agent if empty in dev mode)
	cfg.SetDevDefaults()

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Create signal context for graceful shutdown.
	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop() // Restore default: next Ctrl+C = immediate exit.
	}()

	// Setup logger to stderr.
	// Priority: DevMode=true -> debug, otherwise use configured log_level
	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug // DevMode always forces debug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger.Debug("log level configured", "level", cfg.Server.LogLevel, "effective", logLevel.String())

	// Log config file used if any
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	// Write PID file so "sentinel stop" can find us.
	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("sentinel stopped")
	return nil
}

// run is the main orchestration function that wires all components together.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.DevMode {
		logger.Warn("development mode enabled, do not use in production")
	}

	// ===== Agent identities and API keys =====
	agentStore := memory.NewAgentStore()
	seedAgents(cfg, agentStore, logger)
	keyService := agent.NewKeyService(agentStore)

	// ===== Rate limiting =====
	// Only the in-memory counter store is supported; the URL scheme keeps
	// room for external counter services.
	cleanupInterval := parseDurationOr(cfg.RateLimit.CleanupInterval, 5*time.Minute, "rate_limit.cleanup_interval", logger)
	counterStore := memory.NewCounterStoreWithConfig(cleanupInterval)
	counterStore.StartCleanup(ctx)
	defer counterStore.Stop()

	limiter := ratelimit.NewLimiter(counterStore, ratelimit.Config{
		Requests: cfg.RateLimit.Requests,
		Window:   cfg.RateLimitWindow(),
	}, logger)

	// ===== Policy engine =====
	compiler, err := cel.NewCompiler()
	if err != nil {
		return fmt.Errorf("failed to create expression compiler: %w", err)
	}

	policyStore := memory.NewPolicyStore()
	policyService, err := service.NewPolicyService(ctx, policyStore, logger,
		service.WithExprCompiler(compiler))
	if err != nil {
		return fmt.Errorf("failed to create policy service: %w", err)
	}
	defer policyService.Stop()

	if cfg.Gateway.SeedDefaultRules == nil || *cfg.Gateway.SeedDefaultRules {
		if err := policyService.SeedDefaultRules(ctx); err != nil {
			return fmt.Errorf("failed to seed default rules: %w", err)
		}
		logger.Debug("seeded default rules", "rules", policyStore.Size())
	}

	// Rebuild the snapshot whenever the rule set changes.
	policyService.Watch(policyStore)

	// ===== Audit trail =====
	auditStore, err := createAuditStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create audit store: %w", err)
	}
	defer func() { _ = auditStore.Close() }()

	flushInterval := parseDurationOr(cfg.Audit.FlushInterval, time.Second, "audit.flush_interval", logger)

	auditService := service.NewAuditService(auditStore, logger,
		service.WithChannelSize(cfg.Audit.ChannelSize),
		service.WithBatchSize(cfg.Audit.BatchSize),
		service.WithFlushInterval(flushInterval),
		service.WithWarningThreshold(cfg.Audit.WarningThreshold),
	)
	auditService.Start(ctx)
	defer auditService.Stop()

	// ===== Approval workflow =====
	sweepInterval := parseDurationOr(cfg.Approval.SweepInterval, 30*time.Second, "approval.sweep_interval", logger)

	approvalOpts := []service.ApprovalOption{
		service.WithExpiry(cfg.ApprovalExpiry()),
		service.WithSweepInterval(sweepInterval),
		service.WithCallbackBase(cfg.Server.ExternalURL),
	}
	if cfg.Approval.WebhookURL != "" {
		notifier := webhook.NewNotifier(cfg.Approval.WebhookURL, logger)
		approvalOpts = append(approvalOpts, service.WithNotifier(notifier))
		logger.Info("approval webhook configured", "url", cfg.Approval.WebhookURL)
	} else {
		logger.Info("no approval webhook configured, reviewers must poll the approvals API")
	}

	approvalStore := memory.NewApprovalStore()
	approvalService := service.NewApprovalService(approvalStore, auditService, logger, approvalOpts...)
	approvalService.StartSweeper(ctx)
	defer approvalService.Stop()

	// ===== Evaluation pipeline =====
	initialMode, err := mode.Parse(cfg.Gateway.Mode)
	if err != nil {
		return fmt.Errorf("invalid gateway mode: %w", err)
	}
	modeController := mode.NewController(initialMode)

	thresholds := policy.Thresholds{
		Approval: cfg.Gateway.ApprovalThreshold,
		Block:    cfg.Gateway.BlockThreshold,
	}

	statsService := service.NewStatsService()
	gatewayService := service.NewGatewayService(
		policyService,
		approvalService,
		auditService,
		statsService,
		modeController,
		thresholds,
		logger,
	)

	// ===== HTTP transport =====
	apiHandler := http.NewAPIHandler(
		http.WithGatewayService(gatewayService),
		http.WithPolicyService(policyService),
		http.WithApprovalService(approvalService),
		http.WithAuditService(auditService),
		http.WithStatsService(statsService),
		http.WithKeyService(keyService),
		http.WithRateLimiter(limiter),
		http.WithAPILogger(logger),
	)

	healthChecker := http.NewHealthChecker(
		counterStore,
		policyStore,
		auditService,
		gatewayService,
		Version,
	)

	logger.Info("sentinel starting",
		"version", Version,
		"dev_mode", cfg.DevMode,
		"http_addr", cfg.Server.HTTPAddr,
		"mode", string(initialMode),
		"approval_threshold", thresholds.Approval,
		"block_threshold", thresholds.Block,
		"rules", policyStore.Size(),
		"agents", len(cfg.Agents),
		"rate_limit", fmt.Sprintf("%d/%ds", cfg.RateLimit.Requests, cfg.RateLimit.WindowSeconds),
		"audit_store", cfg.Audit.StoreURL,
	)

	transportOpts := []http.TransportOption{
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithLogger(logger),
		http.WithHealthChecker(healthChecker),
	}
	if cfg.Server.TLSCertFile != "" && cfg.Server.TLSKeyFile != "" {
		transportOpts = append(transportOpts, http.WithTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile))
		logger.Info("tls enabled", "cert", cfg.Server.TLSCertFile)
	}

	transport := http.NewTransport(apiHandler, transportOpts...)
	return transport.Start(ctx)
}

// seedAgents registers the configured agent identities and key hashes.
// SHA-256 hashes are stored as bare hex so key validation can use the
// direct-lookup fast path; Argon2id PHC strings are stored as-is.
func seedAgents(cfg *config.Config, store *memory.AgentStore, logger *slog.Logger) {
	for _, a := range cfg.Agents {
		keyHash := strings.TrimPrefix(a.KeyHash, "sha256:")
		seeded := &agent.Agent{
			ID:     a.ID,
			Name:   a.Name,
			Scopes: a.Scopes,
		}
		if a.RateLimitOverride > 0 {
			override := a.RateLimitOverride
			seeded.RateLimitOverride = &override
		}
		store.SeedAgent(seeded, keyHash)
	}
	logger.Debug("seeded agents from config", "agents", len(cfg.Agents))
}

// createAuditStore builds the audit backend selected by audit.store_url.
func createAuditStore(cfg *config.Config, logger *slog.Logger) (audit.Store, error) {
	switch {
	case cfg.Audit.StoreURL == "stdout":
		logger.Debug("audit store: stdout", "buffer_size", cfg.Audit.BufferSize)
		return memory.NewAuditStore(cfg.Audit.BufferSize), nil

	case strings.HasPrefix(cfg.Audit.StoreURL, "file://"):
		path := strings.TrimPrefix(cfg.Audit.StoreURL, "file://")
		store, err := memory.NewAuditStoreAtPath(path, cfg.Audit.BufferSize)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit file %s: %w", path, err)
		}
		logger.Debug("audit store: file", "path", path, "buffer_size", cfg.Audit.BufferSize)
		return store, nil

	case strings.HasPrefix(cfg.Audit.StoreURL, "sqlite://"):
		path := strings.TrimPrefix(cfg.Audit.StoreURL, "sqlite://")
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit database %s: %w", path, err)
		}
		logger.Debug("audit store: sqlite", "path", path)
		return store, nil

	default:
		return nil, fmt.Errorf("invalid audit store URL: %s (must be 'stdout', 'file://path', or 'sqlite://path')", cfg.Audit.StoreURL)
	}
}

// parseLogLevel converts a config log level string to a slog.Level.
// Unknown values fall back to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// parseDurationOr parses a duration string, logging and falling back to
// the default when the value is invalid.
func parseDurationOr(value string, fallback time.Duration, field string, logger *slog.Logger) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn("invalid duration, using default", "field", field, "value", value, "default", fallback.String())
		return fallback
	}
	return d
}

// pidFilePath returns the location of the server PID file.
func pidFilePath() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".sentinel", "server.pid")
	}
	return filepath.Join(os.TempDir(), "sentinel-server.pid")
}

// writePIDFile writes the current process PID to the given path, creating
// parent directories as needed.
func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}
