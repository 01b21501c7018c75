// Package agent contains the domain types and logic for agent authentication.
package agent

import (
	"time"
)

// KeyPrefix is the required prefix for all agent API keys.
const KeyPrefix = "agent_sk_"

// Agent represents a registered autonomous agent.
type Agent struct {
	// ID is the unique identifier for this agent.
	ID string
	// Name is the display name for this agent.
	Name string
	// Scopes lists the permission scopes granted to this agent.
	Scopes []string
	// RateLimitOverride replaces the global per-window request limit for
	// this agent when set. Nil means the global limit applies.
	RateLimitOverride *int
	// CreatedAt is when the agent was registered (UTC).
	CreatedAt time.Time
}

// HasScope reports whether the agent holds the given scope.
func (a *Agent) HasScope(scope string) bool {
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// APIKey represents an agent API key.
type APIKey struct {
	// Key is the hashed key value (SHA-256 hex or Argon2id PHC format).
	Key string
	// AgentID maps this key to an Agent.
	AgentID string
	// CreatedAt is when the key was created (UTC).
	CreatedAt time.Time
	// ExpiresAt is when the key expires (nil = never expires).
	ExpiresAt *time.Time
	// Revoked indicates if the key has been revoked.
	Revoked bool
}

// IsExpired returns true if the API key has expired.
// A key with nil ExpiresAt never expires.
func (k *APIKey) IsExpired() bool {
	if k.ExpiresAt == nil {
		return false
	}
	return time.Now().UTC().After(*k.ExpiresAt)
}
