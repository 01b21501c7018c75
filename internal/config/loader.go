// Package config provides configuration loading for Sentinel.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for sentinel.yaml/.yml in standard locations.
// The search requires an explicit YAML extension to avoid matching the binary itself,
// which Viper's built-in SetConfigName would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location.
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("sentinel")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: SENTINEL_SERVER_HTTP_ADDR
	viper.SetEnvPrefix("SENTINEL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Bind nested keys for env var support
	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a sentinel config file
// with an explicit YAML extension (.yaml or .yml). This prevents Viper from
// matching the binary "sentinel" (no extension) in the current directory.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".sentinel"),
	}
	if runtime.GOOS == "windows" {
		// %ProgramData%\sentinel (typically C:\ProgramData\sentinel)
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "sentinel"))
		}
	} else {
		paths = append(paths, "/etc/sentinel")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for sentinel.yaml or .yml.
// Returns the full path of the first match, or empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "sentinel"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds all config keys for environment variable support.
// Each key binds its prefixed form (SENTINEL_GATEWAY_MODE) plus, for the
// operational knobs, a bare alias (MODE) so container deployments can use
// the short names.
func bindNestedEnvKeys() {
	// Server config
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.external_url")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.tls_cert_file")
	_ = viper.BindEnv("server.tls_key_file")

	// Gateway config
	_ = viper.BindEnv("gateway.mode", "SENTINEL_GATEWAY_MODE", "MODE")
	_ = viper.BindEnv("gateway.approval_threshold", "SENTINEL_GATEWAY_APPROVAL_THRESHOLD", "APPROVAL_THRESHOLD")
	_ = viper.BindEnv("gateway.block_threshold", "SENTINEL_GATEWAY_BLOCK_THRESHOLD", "BLOCK_THRESHOLD")
	_ = viper.BindEnv("gateway.seed_default_rules")

	// Rate limit config
	_ = viper.BindEnv("rate_limit.requests", "SENTINEL_RATE_LIMIT_REQUESTS", "RATE_LIMIT_REQUESTS")
	_ = viper.BindEnv("rate_limit.window_seconds", "SENTINEL_RATE_LIMIT_WINDOW_SECONDS", "RATE_LIMIT_WINDOW_SECONDS")
	_ = viper.BindEnv("rate_limit.counter_store_url", "SENTINEL_RATE_LIMIT_COUNTER_STORE_URL", "COUNTER_STORE_URL")
	_ = viper.BindEnv("rate_limit.cleanup_interval")

	// Approval config
	_ = viper.BindEnv("approval.webhook_url", "SENTINEL_APPROVAL_WEBHOOK_URL", "APPROVAL_WEBHOOK_URL")
	_ = viper.BindEnv("approval.expiry_seconds", "SENTINEL_APPROVAL_EXPIRY_SECONDS", "APPROVAL_EXPIRY_SECONDS")
	_ = viper.BindEnv("approval.sweep_interval")

	// Audit config
	_ = viper.BindEnv("audit.store_url", "SENTINEL_AUDIT_STORE_URL", "AUDIT_STORE_URL")
	_ = viper.BindEnv("audit.channel_size")
	_ = viper.BindEnv("audit.batch_size")
	_ = viper.BindEnv("audit.flush_interval")

	// Note: agents is an array, complex to override via env.
	// Use the config file for seeded agents.

	// Dev mode
	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and returns the Config.
// Note: Caller should apply any CLI flag overrides (e.g. --dev), then call
// cfg.SetDevDefaults() and cfg.Validate() to complete initialization.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults,
// but does NOT apply dev defaults or validate.
// Use this when CLI flags may override DevMode before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
