package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sentinel-project/sentinel/internal/domain/agent"
)

var hashKeyArgon2id bool

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [api-key]",
	Short: "Generate a stored hash for an agent API key",
	Long: `Generate a stored hash of an agent API key for use in config.

The key must carry the agent_sk_ prefix. By default the output is
"sha256:<hex>", which can be used directly in the agents[].key_hash
config field. With --argon2id the output is an Argon2id PHC string,
which is slower to verify but resistant to offline brute force.

Example:
  sentinel hash-key "agent_sk_my-secret-key"
  # Output: sha256:7d5e8c...

  sentinel hash-key --argon2id "agent_sk_my-secret-key"
  # Output: $argon2id$v=19$m=48128,t=1,p=1$...

Security note: The key will appear in shell history.
Consider clearing history after use or using an environment variable:
  sentinel hash-key "$MY_AGENT_KEY"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if !strings.HasPrefix(key, agent.KeyPrefix) {
			return fmt.Errorf("key must start with %q", agent.KeyPrefix)
		}

		if hashKeyArgon2id {
			hash, err := agent.HashKeyArgon2id(key)
			if err != nil {
				return fmt.Errorf("failed to hash key: %w", err)
			}
			fmt.Println(hash)
			return nil
		}

		fmt.Printf("sha256:%s\n", agent.HashKey(key))
		return nil
	},
}

func init() {
	hashKeyCmd.Flags().BoolVar(&hashKeyArgon2id, "argon2id", false, "Produce an Argon2id PHC hash instead of SHA-256")
	rootCmd.AddCommand(hashKeyCmd)
}
