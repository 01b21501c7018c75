package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sentinel-project/sentinel/internal/domain/agent"
)

// ErrKeyNotFound is returned when no API key matches the given hash.
var ErrKeyNotFound = errors.New("api key not found")

// ErrAgentNotFound is returned when no agent matches the given ID.
var ErrAgentNotFound = errors.New("agent not found")

// AgentStore implements agent.KeyStore in memory.
// Thread-safe for concurrent access.
type AgentStore struct {
	keys   map[string]*agent.APIKey // stored hash -> key
	agents map[string]*agent.Agent
	mu     sync.RWMutex
}

// NewAgentStore creates an empty in-memory agent store.
func NewAgentStore() *AgentStore {
	return &AgentStore{
		keys:   make(map[string]*agent.APIKey),
		agents: make(map[string]*agent.Agent),
	}
}

// SeedAgent registers an agent with a hashed API key.
// keyHash may be a bare SHA-256 hex digest or an Argon2id PHC string.
func (s *AgentStore) SeedAgent(a *agent.Agent, keyHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *a
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.agents[stored.ID] = &stored
	s.keys[keyHash] = &agent.APIKey{
		Key:       keyHash,
		AgentID:   stored.ID,
		CreatedAt: stored.CreatedAt,
	}
}

// RevokeKey marks the key with the given stored hash as revoked.
func (s *AgentStore) RevokeKey(keyHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[keyHash]
	if !ok {
		return ErrKeyNotFound
	}
	key.Revoked = true
	return nil
}

// GetAPIKey retrieves an API key by its stored hash.
func (s *AgentStore) GetAPIKey(ctx context.Context, keyHash string) (*agent.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[keyHash]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := *key
	return &out, nil
}

// ListAPIKeys returns all stored API keys.
func (s *AgentStore) ListAPIKeys(ctx context.Context) ([]*agent.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*agent.APIKey, 0, len(s.keys))
	for _, key := range s.keys {
		k := *key
		out = append(out, &k)
	}
	return out, nil
}

// GetAgent retrieves an agent by ID.
func (s *AgentStore) GetAgent(ctx context.Context, id string) (*agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	out := *a
	return &out, nil
}

// Compile-time interface verification.
var _ agent.KeyStore = (*AgentStore)(nil)
