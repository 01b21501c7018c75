package agent

import "context"

// KeyStore is the outbound port for agent key and identity persistence.
type KeyStore interface {
	// GetAPIKey retrieves an API key by its stored hash.
	GetAPIKey(ctx context.Context, keyHash string) (*APIKey, error)

	// ListAPIKeys returns all stored API keys for iteration-based verification.
	ListAPIKeys(ctx context.Context) ([]*APIKey, error)

	// GetAgent retrieves an agent by ID.
	GetAgent(ctx context.Context, id string) (*Agent, error)
}
