package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/sentinel-project/sentinel/internal/domain/agent"
)

func TestAgentStore_SeedAndLookup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewAgentStore()
	hash := agent.HashKey("agent_sk_seeded")

	store.SeedAgent(&agent.Agent{ID: "agent-1", Name: "Billing Agent"}, hash)

	key, err := store.GetAPIKey(ctx, hash)
	if err != nil {
		t.Fatalf("GetAPIKey() error: %v", err)
	}
	if key.AgentID != "agent-1" {
		t.Errorf("AgentID = %q, want agent-1", key.AgentID)
	}

	a, err := store.GetAgent(ctx, "agent-1")
	if err != nil {
		t.Fatalf("GetAgent() error: %v", err)
	}
	if a.Name != "Billing Agent" {
		t.Errorf("Name = %q, want Billing Agent", a.Name)
	}
	if a.CreatedAt.IsZero() {
		t.Error("CreatedAt not set on seed")
	}
}

func TestAgentStore_UnknownLookups(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewAgentStore()

	if _, err := store.GetAPIKey(ctx, "missing-hash"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("GetAPIKey() error = %v, want ErrKeyNotFound", err)
	}
	if _, err := store.GetAgent(ctx, "missing-agent"); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("GetAgent() error = %v, want ErrAgentNotFound", err)
	}
}

func TestAgentStore_RevokeKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewAgentStore()
	hash := agent.HashKey("agent_sk_revocable")
	store.SeedAgent(&agent.Agent{ID: "agent-1", Name: "Agent"}, hash)

	if err := store.RevokeKey(hash); err != nil {
		t.Fatalf("RevokeKey() error: %v", err)
	}

	key, err := store.GetAPIKey(ctx, hash)
	if err != nil {
		t.Fatalf("GetAPIKey() error: %v", err)
	}
	if !key.Revoked {
		t.Error("Revoked = false after RevokeKey")
	}

	if err := store.RevokeKey("missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("RevokeKey(missing) error = %v, want ErrKeyNotFound", err)
	}
}

func TestAgentStore_ListAPIKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewAgentStore()
	store.SeedAgent(&agent.Agent{ID: "a1", Name: "One"}, agent.HashKey("agent_sk_one"))
	store.SeedAgent(&agent.Agent{ID: "a2", Name: "Two"}, agent.HashKey("agent_sk_two"))

	keys, err := store.ListAPIKeys(ctx)
	if err != nil {
		t.Fatalf("ListAPIKeys() error: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("ListAPIKeys() = %d keys, want 2", len(keys))
	}
}
