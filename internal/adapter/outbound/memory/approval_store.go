package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sentinel-project/sentinel/internal/domain/approval"
)

// ApprovalStore implements approval.Store in memory.
// Thread-safe for concurrent access.
type ApprovalStore struct {
	approvals map[string]*approval.Approval
	mu        sync.RWMutex
}

// NewApprovalStore creates an empty in-memory approval store.
func NewApprovalStore() *ApprovalStore {
	return &ApprovalStore{
		approvals: make(map[string]*approval.Approval),
	}
}

// Create persists a new approval.
func (s *ApprovalStore) Create(ctx context.Context, a *approval.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.approvals[a.ID] = a.Clone()
	return nil
}

// Get retrieves an approval by ID.
func (s *ApprovalStore) Get(ctx context.Context, id string) (*approval.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.approvals[id]
	if !ok {
		return nil, approval.ErrNotFound
	}
	return a.Clone(), nil
}

// List returns approvals matching the filter, newest first.
func (s *ApprovalStore) List(ctx context.Context, filter approval.Filter) ([]*approval.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*approval.Approval, 0, len(s.approvals))
	for _, a := range s.approvals {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.AgentID != "" && a.AgentID != filter.AgentID {
			continue
		}
		out = append(out, a.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.After(out[j].RequestedAt)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Resolve transitions a pending approval to a terminal status.
// A terminal approval stays unchanged and ErrAlreadyResolved is returned
// alongside its current state, so callers can report the conflict.
func (s *ApprovalStore) Resolve(ctx context.Context, id string, status approval.Status, reviewer, reason string, at time.Time) (*approval.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.approvals[id]
	if !ok {
		return nil, approval.ErrNotFound
	}
	if a.Status.IsTerminal() {
		return a.Clone(), approval.ErrAlreadyResolved
	}

	a.Status = status
	a.Reviewer = reviewer
	a.Reason = reason
	resolved := at
	a.ResolvedAt = &resolved
	return a.Clone(), nil
}

// ExpireBefore transitions pending approvals whose deadline passed to EXPIRED.
func (s *ApprovalStore) ExpireBefore(ctx context.Context, cutoff time.Time) ([]*approval.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*approval.Approval
	for _, a := range s.approvals {
		if a.Status != approval.StatusPending {
			continue
		}
		if a.ExpiresAt.After(cutoff) {
			continue
		}
		a.Status = approval.StatusExpired
		resolved := cutoff
		a.ResolvedAt = &resolved
		expired = append(expired, a.Clone())
	}
	return expired, nil
}

// Size returns the number of stored approvals.
func (s *ApprovalStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.approvals)
}

// Compile-time interface verification.
var _ approval.Store = (*ApprovalStore)(nil)
