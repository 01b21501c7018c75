// Package cmd provides the CLI commands for Sentinel.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sentinel-project/sentinel/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Sentinel - Policy Gateway for Autonomous Agents",
	Long: `Sentinel is a zero-trust policy gateway between autonomous agents
and backend systems.

Agents submit intended actions to the gateway, which scores them against
a configurable rule set, masks PII from parameters, and returns a verdict:
allow, deny, or escalate to a human reviewer for approval. Every decision
is written to a tamper-evident audit trail.

Quick start:
  1. Create a config file: sentinel.yaml
  2. Seed an agent key: sentinel hash-key "agent_sk_..."
  3. Run: sentinel start

Configuration:
  Config is loaded from sentinel.yaml in the current directory,
  $HOME/.sentinel/, or /etc/sentinel/.

  Environment variables can override config values with the SENTINEL_ prefix.
  Example: SENTINEL_SERVER_HTTP_ADDR=:9090

  Operational knobs also bind short names for container deployments:
  MODE, APPROVAL_THRESHOLD, BLOCK_THRESHOLD, RATE_LIMIT_REQUESTS,
  RATE_LIMIT_WINDOW_SECONDS, APPROVAL_WEBHOOK_URL, APPROVAL_EXPIRY_SECONDS,
  COUNTER_STORE_URL, AUDIT_STORE_URL.

Commands:
  start       Start the gateway server
  stop        Stop the running server
  hash-key    Generate a stored hash for an agent API key
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./sentinel.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
