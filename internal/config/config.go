// Package config provides the configuration schema for Sentinel.
//
// Configuration is file-based (sentinel.yaml) with environment overrides.
// Every operational knob also binds a bare environment key (MODE,
// APPROVAL_THRESHOLD, ...) so container deployments work without a file.
package config

import "time"

// Config is the top-level configuration for the Sentinel gateway.
type Config struct {
	// Server configures the HTTP server listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Gateway configures enforcement mode and decision thresholds.
	Gateway GatewayConfig `yaml:"gateway" mapstructure:"gateway"`

	// RateLimit configures per-agent request limiting.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Approval configures the human-in-the-loop workflow.
	Approval ApprovalConfig `yaml:"approval" mapstructure:"approval"`

	// Audit configures where the decision trail is written.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// Agents defines seeded agent identities and API key hashes.
	// Optional: keys can also be provisioned with the hash-key command.
	Agents []AgentConfig `yaml:"agents" mapstructure:"agents" validate:"omitempty,dive"`

	// DevMode enables development features (verbose logging, seeded dev key).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Defaults to "127.0.0.1:8080" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// ExternalURL is the base URL reviewers use to reach the gateway.
	// Used to build callback URLs in webhook payloads.
	// Defaults to "http://<http_addr>" if empty.
	ExternalURL string `yaml:"external_url" mapstructure:"external_url" validate:"omitempty,url"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// TLSCertFile and TLSKeyFile enable TLS when both are set.
	TLSCertFile string `yaml:"tls_cert_file" mapstructure:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file" mapstructure:"tls_key_file"`
}

// GatewayConfig configures the evaluation pipeline.
type GatewayConfig struct {
	// Mode selects enforcement behavior: "enforce" applies verdicts,
	// "observe" logs what enforcement would do but allows everything.
	// Defaults to "enforce".
	Mode string `yaml:"mode" mapstructure:"mode" validate:"omitempty,oneof=observe enforce"`

	// ApprovalThreshold is the risk score at which actions require human
	// approval. Defaults to 0.8.
	ApprovalThreshold float64 `yaml:"approval_threshold" mapstructure:"approval_threshold" validate:"omitempty,gte=0,lte=1"`

	// BlockThreshold is the risk score at which actions are denied outright.
	// Defaults to 1.0. Must be >= approval_threshold.
	BlockThreshold float64 `yaml:"block_threshold" mapstructure:"block_threshold" validate:"omitempty,gte=0,lte=1"`

	// SeedDefaultRules controls whether the built-in ruleset is inserted
	// at startup. Defaults to true.
	SeedDefaultRules *bool `yaml:"seed_default_rules" mapstructure:"seed_default_rules"`
}

// RateLimitConfig configures the fixed-window per-agent rate limiter.
type RateLimitConfig struct {
	// Requests is the maximum requests per window per agent.
	// Defaults to 1000.
	Requests int `yaml:"requests" mapstructure:"requests" validate:"omitempty,min=1"`

	// WindowSeconds is the fixed window length in seconds.
	// Defaults to 60.
	WindowSeconds int `yaml:"window_seconds" mapstructure:"window_seconds" validate:"omitempty,min=1"`

	// CounterStoreURL selects the counter backend.
	// Only "memory://" is supported.
	CounterStoreURL string `yaml:"counter_store_url" mapstructure:"counter_store_url" validate:"omitempty,counter_store_url"`

	// CleanupInterval is how often expired windows are removed (e.g., "5m").
	// Defaults to "5m".
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty"`
}

// ApprovalConfig configures the approval workflow.
type ApprovalConfig struct {
	// WebhookURL receives approval.requested notifications.
	// Empty disables webhook delivery; reviewers poll the approvals API.
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url" validate:"omitempty,url"`

	// ExpirySeconds is how long an approval stays pending before expiring.
	// Defaults to 86400 (24 hours).
	ExpirySeconds int `yaml:"expiry_seconds" mapstructure:"expiry_seconds" validate:"omitempty,min=1"`

	// SweepInterval is how often the expiry sweeper runs (e.g., "30s").
	// Defaults to "30s".
	SweepInterval string `yaml:"sweep_interval" mapstructure:"sweep_interval" validate:"omitempty"`
}

// AuditConfig configures audit log output.
type AuditConfig struct {
	// StoreURL specifies where audit logs are written.
	// Valid values: "stdout", "file:///absolute/path/to/audit.log",
	// or "sqlite://path/to/audit.db".
	// Defaults to "stdout" if empty.
	StoreURL string `yaml:"store_url" mapstructure:"store_url" validate:"required,audit_store_url"`

	// ChannelSize is the buffer size for the audit channel.
	// When the buffer fills, the oldest pending record is evicted.
	// Defaults to 1000 if not specified or 0.
	ChannelSize int `yaml:"channel_size" mapstructure:"channel_size" validate:"omitempty,min=1"`

	// BatchSize is the number of records to batch before writing.
	// Defaults to 100 if not specified or 0.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size" validate:"omitempty,min=1"`

	// FlushInterval is how often to flush pending records (e.g., "1s", "500ms").
	// Defaults to "1s" if not specified.
	FlushInterval string `yaml:"flush_interval" mapstructure:"flush_interval" validate:"omitempty"`

	// WarningThreshold is the percentage (0-100) at which to log warnings.
	// Set to 0 to disable warnings. Defaults to 80 if not specified.
	WarningThreshold int `yaml:"warning_threshold" mapstructure:"warning_threshold" validate:"omitempty,min=0,max=100"`

	// BufferSize is the number of recent records kept in memory for queries
	// when the store is stdout or file backed. Defaults to 1000.
	BufferSize int `yaml:"buffer_size" mapstructure:"buffer_size" validate:"omitempty,min=1"`
}

// AgentConfig defines a seeded agent identity with a hashed API key.
type AgentConfig struct {
	// ID is the unique identifier for this agent.
	ID string `yaml:"id" mapstructure:"id" validate:"required"`

	// Name is the human-readable name for this agent.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// KeyHash is the stored hash of the agent's API key.
	// Either a SHA-256 hex digest (optionally "sha256:" prefixed) or an
	// Argon2id PHC string produced by the hash-key command.
	KeyHash string `yaml:"key_hash" mapstructure:"key_hash" validate:"required"`

	// Scopes lists the permission scopes granted to this agent.
	Scopes []string `yaml:"scopes" mapstructure:"scopes"`

	// RateLimitOverride replaces the global per-window request limit for
	// this agent. Zero means the global limit applies.
	RateLimitOverride int `yaml:"rate_limit_override" mapstructure:"rate_limit_override" validate:"omitempty,min=1"`
}

// SetDevDefaults applies permissive defaults for development mode.
// These defaults are applied BEFORE validation so required fields are satisfied.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	// Provide a default dev agent if none configured.
	// SHA-256 of "agent_sk_dev"
	if len(c.Agents) == 0 {
		c.Agents = []AgentConfig{
			{
				ID:      "dev-agent",
				Name:    "Development Agent",
				KeyHash: "sha256:16821dbd041db46f774f315817d5e02af19f2c1c0670bd0f19a220bfe838ccb1",
			},
		}
	}

	c.Server.LogLevel = "debug"
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Server defaults: bind to localhost only.
	// Network access requires an explicit http_addr: ":8080" or "0.0.0.0:8080".
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.ExternalURL == "" {
		c.Server.ExternalURL = "http://" + c.Server.HTTPAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	// Gateway defaults
	if c.Gateway.Mode == "" {
		c.Gateway.Mode = "enforce"
	}
	if c.Gateway.ApprovalThreshold == 0 {
		c.Gateway.ApprovalThreshold = 0.8
	}
	if c.Gateway.BlockThreshold == 0 {
		c.Gateway.BlockThreshold = 1.0
	}

	// Rate limit defaults
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = 1000
	}
	if c.RateLimit.WindowSeconds == 0 {
		c.RateLimit.WindowSeconds = 60
	}
	if c.RateLimit.CounterStoreURL == "" {
		c.RateLimit.CounterStoreURL = "memory://"
	}
	if c.RateLimit.CleanupInterval == "" {
		c.RateLimit.CleanupInterval = "5m"
	}

	// Approval defaults
	if c.Approval.ExpirySeconds == 0 {
		c.Approval.ExpirySeconds = 86400
	}
	if c.Approval.SweepInterval == "" {
		c.Approval.SweepInterval = "30s"
	}

	// Audit defaults
	if c.Audit.StoreURL == "" {
		c.Audit.StoreURL = "stdout"
	}
	if c.Audit.ChannelSize == 0 {
		c.Audit.ChannelSize = 1000
	}
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = 100
	}
	if c.Audit.FlushInterval == "" {
		c.Audit.FlushInterval = "1s"
	}
	if c.Audit.WarningThreshold == 0 {
		c.Audit.WarningThreshold = 80
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = 1000
	}
}

// ApprovalExpiry returns the approval expiry as a duration.
func (c *Config) ApprovalExpiry() time.Duration {
	return time.Duration(c.Approval.ExpirySeconds) * time.Second
}

// RateLimitWindow returns the rate limit window as a duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}
