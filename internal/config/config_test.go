package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

func TestSetDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()

	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Server.ExternalURL != "http://127.0.0.1:8080" {
		t.Errorf("ExternalURL = %q", cfg.Server.ExternalURL)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel = %q", cfg.Server.LogLevel)
	}
	if cfg.Gateway.Mode != "enforce" {
		t.Errorf("Mode = %q", cfg.Gateway.Mode)
	}
	if cfg.Gateway.ApprovalThreshold != 0.8 {
		t.Errorf("ApprovalThreshold = %v", cfg.Gateway.ApprovalThreshold)
	}
	if cfg.Gateway.BlockThreshold != 1.0 {
		t.Errorf("BlockThreshold = %v", cfg.Gateway.BlockThreshold)
	}
	if cfg.RateLimit.Requests != 1000 || cfg.RateLimit.WindowSeconds != 60 {
		t.Errorf("rate limit = %d/%ds", cfg.RateLimit.Requests, cfg.RateLimit.WindowSeconds)
	}
	if cfg.RateLimit.CounterStoreURL != "memory://" {
		t.Errorf("CounterStoreURL = %q", cfg.RateLimit.CounterStoreURL)
	}
	if cfg.Approval.ExpirySeconds != 86400 {
		t.Errorf("ExpirySeconds = %d", cfg.Approval.ExpirySeconds)
	}
	if cfg.Audit.StoreURL != "stdout" {
		t.Errorf("StoreURL = %q", cfg.Audit.StoreURL)
	}
	if cfg.Audit.ChannelSize != 1000 || cfg.Audit.BatchSize != 100 {
		t.Errorf("audit sizes = %d/%d", cfg.Audit.ChannelSize, cfg.Audit.BatchSize)
	}
	if cfg.Audit.WarningThreshold != 80 {
		t.Errorf("WarningThreshold = %d", cfg.Audit.WarningThreshold)
	}
}

func TestSetDefaults_PreservesExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	cfg.Server.HTTPAddr = "0.0.0.0:9090"
	cfg.Gateway.ApprovalThreshold = 0.5
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != "0.0.0.0:9090" {
		t.Errorf("HTTPAddr = %q, explicit value overwritten", cfg.Server.HTTPAddr)
	}
	if cfg.Server.ExternalURL != "http://0.0.0.0:9090" {
		t.Errorf("ExternalURL = %q", cfg.Server.ExternalURL)
	}
	if cfg.Gateway.ApprovalThreshold != 0.5 {
		t.Errorf("ApprovalThreshold = %v, explicit value overwritten", cfg.Gateway.ApprovalThreshold)
	}
}

func TestSetDevDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.SetDevDefaults()
	if len(cfg.Agents) != 0 {
		t.Error("dev agent seeded without dev_mode")
	}

	cfg = validConfig()
	cfg.DevMode = true
	cfg.SetDevDefaults()
	if len(cfg.Agents) != 1 || cfg.Agents[0].ID != "dev-agent" {
		t.Errorf("Agents = %+v, want seeded dev-agent", cfg.Agents)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.Server.LogLevel)
	}

	// An explicitly configured agent is not replaced.
	cfg = validConfig()
	cfg.DevMode = true
	cfg.Agents = []AgentConfig{{ID: "a1", Name: "Agent", KeyHash: "sha256:abc"}}
	cfg.SetDevDefaults()
	if len(cfg.Agents) != 1 || cfg.Agents[0].ID != "a1" {
		t.Errorf("Agents = %+v, configured agent replaced", cfg.Agents)
	}
}

func TestValidate_Defaults(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"bad mode", func(c *Config) { c.Gateway.Mode = "audit" }, "must be one of"},
		{"threshold above one", func(c *Config) { c.Gateway.ApprovalThreshold = 1.5 }, "must be <= 1"},
		{"inverted thresholds", func(c *Config) {
			c.Gateway.ApprovalThreshold = 0.9
			c.Gateway.BlockThreshold = 0.5
		}, "block_threshold"},
		{"zero rate limit", func(c *Config) { c.RateLimit.Requests = -1 }, "must be at least 1"},
		{"bad counter store", func(c *Config) { c.RateLimit.CounterStoreURL = "redis://localhost" }, "memory://"},
		{"bad audit store", func(c *Config) { c.Audit.StoreURL = "kafka://topic" }, "stdout"},
		{"relative file audit path", func(c *Config) { c.Audit.StoreURL = "file://relative/audit.log" }, "stdout"},
		{"bad webhook url", func(c *Config) { c.Approval.WebhookURL = "not a url" }, "valid URL"},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "verbose" }, "must be one of"},
		{"agent missing name", func(c *Config) {
			c.Agents = []AgentConfig{{ID: "a1", KeyHash: "sha256:abc"}}
		}, "required"},
		{"duplicate agent ids", func(c *Config) {
			c.Agents = []AgentConfig{
				{ID: "a1", Name: "One", KeyHash: "sha256:abc"},
				{ID: "a1", Name: "Two", KeyHash: "sha256:def"},
			}
		}, "duplicate agent id"},
		{"duplicate key hashes", func(c *Config) {
			c.Agents = []AgentConfig{
				{ID: "a1", Name: "One", KeyHash: "sha256:abc"},
				{ID: "a2", Name: "Two", KeyHash: "sha256:abc"},
			}
		}, "duplicate key hash"},
		{"negative rate limit override", func(c *Config) {
			c.Agents = []AgentConfig{
				{ID: "a1", Name: "One", KeyHash: "sha256:abc", RateLimitOverride: -5},
			}
		}, "must be at least 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestValidate_AcceptedVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"observe mode", func(c *Config) { c.Gateway.Mode = "observe" }},
		{"equal thresholds", func(c *Config) {
			c.Gateway.ApprovalThreshold = 0.8
			c.Gateway.BlockThreshold = 0.8
		}},
		{"file audit store", func(c *Config) { c.Audit.StoreURL = "file:///var/log/sentinel/audit.log" }},
		{"sqlite audit store", func(c *Config) { c.Audit.StoreURL = "sqlite://data/audit.db" }},
		{"webhook url", func(c *Config) { c.Approval.WebhookURL = "https://hooks.internal/approvals" }},
		{"agent scopes and override", func(c *Config) {
			c.Agents = []AgentConfig{
				{ID: "a1", Name: "One", KeyHash: "sha256:abc", Scopes: []string{"payments"}, RateLimitOverride: 50},
			}
		}},
		{"tls pair", func(c *Config) {
			c.Server.TLSCertFile = "/etc/sentinel/tls.crt"
			c.Server.TLSKeyFile = "/etc/sentinel/tls.key"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() error: %v", err)
			}
		})
	}
}

func TestDurationAccessors(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if got := cfg.ApprovalExpiry(); got != 24*time.Hour {
		t.Errorf("ApprovalExpiry() = %v, want 24h", got)
	}
	if got := cfg.RateLimitWindow(); got != time.Minute {
		t.Errorf("RateLimitWindow() = %v, want 1m", got)
	}
}
