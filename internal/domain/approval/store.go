package approval

import (
	"context"
	"errors"
	"time"
)

// Error types for approval store operations.
var (
	ErrNotFound        = errors.New("approval not found")
	ErrAlreadyResolved = errors.New("approval already resolved")
)

// Filter narrows List results. Zero-value fields are ignored.
type Filter struct {
	Status  Status
	AgentID string
	Limit   int
}

// Store is the outbound port for approval persistence.
type Store interface {
	// Create persists a new approval.
	Create(ctx context.Context, a *Approval) error

	// Get retrieves an approval by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*Approval, error)

	// List returns approvals matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*Approval, error)

	// Resolve transitions a pending approval to the given terminal status.
	// Returns ErrAlreadyResolved if the approval is already terminal; the
	// stored status is unchanged in that case.
	Resolve(ctx context.Context, id string, status Status, reviewer, reason string, at time.Time) (*Approval, error)

	// ExpireBefore transitions every pending approval whose deadline is at
	// or before the cutoff to EXPIRED, returning the expired approvals.
	ExpireBefore(ctx context.Context, cutoff time.Time) ([]*Approval, error)
}
