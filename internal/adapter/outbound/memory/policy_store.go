package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sentinel-project/sentinel/internal/domain/policy"
)

// PolicyStore implements policy.Store and policy.ChangeNotifier in memory.
// Thread-safe for concurrent access. Mutations publish change events to
// subscribers so snapshot caches can invalidate.
type PolicyStore struct {
	rules       map[string]*policy.Rule
	subscribers map[int]chan policy.ChangeEvent
	nextSub     int
	mu          sync.RWMutex
}

// NewPolicyStore creates an empty in-memory policy store.
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{
		rules:       make(map[string]*policy.Rule),
		subscribers: make(map[int]chan policy.ChangeEvent),
	}
}

// GetRule retrieves a rule by ID.
func (s *PolicyStore) GetRule(ctx context.Context, id string) (*policy.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[id]
	if !ok {
		return nil, policy.ErrRuleNotFound
	}
	return rule.Clone(), nil
}

// ListRules returns all rules sorted by ascending priority.
func (s *PolicyStore) ListRules(ctx context.Context) ([]policy.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]policy.Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		out = append(out, *rule.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CreateRule persists a new rule. Duplicate IDs are rejected.
func (s *PolicyStore) CreateRule(ctx context.Context, rule *policy.Rule) error {
	s.mu.Lock()
	if _, exists := s.rules[rule.ID]; exists {
		s.mu.Unlock()
		return policy.ErrRuleExists
	}
	stored := rule.Clone()
	stored.CreatedAt = time.Now().UTC()
	stored.UpdatedAt = stored.CreatedAt
	s.rules[rule.ID] = stored
	s.mu.Unlock()

	s.publish(policy.ChangeEvent{Op: policy.ChangeCreate, RuleID: rule.ID})
	return nil
}

// UpdateRule replaces an existing rule, preserving its creation time.
func (s *PolicyStore) UpdateRule(ctx context.Context, rule *policy.Rule) error {
	s.mu.Lock()
	existing, ok := s.rules[rule.ID]
	if !ok {
		s.mu.Unlock()
		return policy.ErrRuleNotFound
	}
	stored := rule.Clone()
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now().UTC()
	s.rules[rule.ID] = stored
	s.mu.Unlock()

	s.publish(policy.ChangeEvent{Op: policy.ChangeUpdate, RuleID: rule.ID})
	return nil
}

// DeleteRule removes a rule by ID.
func (s *PolicyStore) DeleteRule(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.rules[id]; !ok {
		s.mu.Unlock()
		return policy.ErrRuleNotFound
	}
	delete(s.rules, id)
	s.mu.Unlock()

	s.publish(policy.ChangeEvent{Op: policy.ChangeDelete, RuleID: id})
	return nil
}

// Subscribe registers a change listener. The returned cancel function
// unsubscribes and closes the channel. Events are delivered best-effort;
// a subscriber that is not draining loses events rather than blocking
// store mutations.
func (s *PolicyStore) Subscribe() (<-chan policy.ChangeEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan policy.ChangeEvent, 16)
	s.subscribers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// publish fans an event out to all subscribers without blocking.
func (s *PolicyStore) publish(event policy.ChangeEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Size returns the number of stored rules.
func (s *PolicyStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// Compile-time interface verification.
var (
	_ policy.Store          = (*PolicyStore)(nil)
	_ policy.ChangeNotifier = (*PolicyStore)(nil)
)
