package policy

import (
	"context"
	"errors"
)

// Error types for policy store operations.
var (
	ErrRuleNotFound = errors.New("policy rule not found")
	ErrRuleExists   = errors.New("policy rule already exists")
)

// ChangeOp describes the kind of rule change in a ChangeEvent.
type ChangeOp string

const (
	ChangeCreate ChangeOp = "create"
	ChangeUpdate ChangeOp = "update"
	ChangeDelete ChangeOp = "delete"
)

// ChangeEvent notifies subscribers that a rule was mutated.
// Consumers treat any event as a snapshot invalidation signal.
type ChangeEvent struct {
	Op     ChangeOp
	RuleID string
}

// Store is the outbound port for policy rule persistence.
type Store interface {
	// GetRule retrieves a rule by ID. Returns ErrRuleNotFound if absent.
	GetRule(ctx context.Context, id string) (*Rule, error)

	// ListRules returns all rules.
	ListRules(ctx context.Context) ([]Rule, error)

	// CreateRule persists a new rule. Returns ErrRuleExists on duplicate ID.
	CreateRule(ctx context.Context, rule *Rule) error

	// UpdateRule replaces an existing rule. Returns ErrRuleNotFound if absent.
	UpdateRule(ctx context.Context, rule *Rule) error

	// DeleteRule removes a rule by ID. Returns ErrRuleNotFound if absent.
	DeleteRule(ctx context.Context, id string) error
}

// ChangeNotifier is implemented by stores that publish rule change events.
// Subscribers use the events to invalidate compiled snapshots.
type ChangeNotifier interface {
	// Subscribe registers a change listener. The returned cancel function
	// unsubscribes; after cancel returns, the channel is closed.
	Subscribe() (<-chan ChangeEvent, func())
}
