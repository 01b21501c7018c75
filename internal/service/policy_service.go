// Package service contains application services.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/sentinel-project/sentinel/internal/domain/action"
	"github.com/sentinel-project/sentinel/internal/domain/policy"
)

// RuleSnapshot is the immutable compiled ruleset stored in atomic.Value.
// Rules are sorted by ascending priority, ready for evaluation.
type RuleSnapshot struct {
	Rules       []policy.CompiledRule
	Fingerprint uint64
	BuiltAt     time.Time
}

// PolicyService owns the policy rule lifecycle: CRUD with validation,
// snapshot compilation, and change-driven snapshot invalidation.
type PolicyService struct {
	store    policy.Store
	compiler policy.ExprCompiler
	logger   *slog.Logger

	snapshot atomic.Value // *RuleSnapshot
	mu       sync.Mutex   // serializes Reload

	unsubscribe func()
	wg          sync.WaitGroup
}

// PolicyServiceOption configures PolicyService.
type PolicyServiceOption func(*PolicyService)

// WithExprCompiler sets the compiler for expression conditions.
// Without one, rules carrying expression conditions are rejected at write time.
func WithExprCompiler(compiler policy.ExprCompiler) PolicyServiceOption {
	return func(s *PolicyService) { s.compiler = compiler }
}

// NewPolicyService creates the service and compiles the initial snapshot.
// The ctx parameter covers the initial rule loading and can be cancelled to abort startup.
func NewPolicyService(ctx context.Context, store policy.Store, logger *slog.Logger, opts ...PolicyServiceOption) (*PolicyService, error) {
	s := &PolicyService{
		store:  store,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.Reload(ctx); err != nil {
		return nil, fmt.Errorf("failed to build initial rule snapshot: %w", err)
	}
	return s, nil
}

// Watch subscribes to store change events and reloads the snapshot on each.
// Stop unsubscribes and waits for the watcher to exit.
func (s *PolicyService) Watch(notifier policy.ChangeNotifier) {
	events, cancel := notifier.Subscribe()
	s.unsubscribe = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for event := range events {
			if err := s.Reload(context.Background()); err != nil {
				s.logger.Error("snapshot reload failed after rule change",
					"op", string(event.Op),
					"rule_id", event.RuleID,
					"error", err)
			}
		}
	}()
}

// Stop stops the change watcher, if one was started.
func (s *PolicyService) Stop() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.wg.Wait()
}

// Snapshot returns the current compiled ruleset.
func (s *PolicyService) Snapshot() *RuleSnapshot {
	return s.snapshot.Load().(*RuleSnapshot)
}

// Reload recompiles the snapshot from the store.
// Thread-safe and callable concurrently with Snapshot; readers always see
// either the old or the new snapshot, never a partial one.
func (s *PolicyService) Reload(ctx context.Context) error {
	rules, err := s.store.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	compiled := s.compileRules(rules)
	snapshot := &RuleSnapshot{
		Rules:       compiled,
		Fingerprint: fingerprintRules(rules),
		BuiltAt:     time.Now().UTC(),
	}

	s.mu.Lock()
	s.snapshot.Store(snapshot)
	s.mu.Unlock()

	s.logger.Info("policy snapshot rebuilt",
		"rules_total", len(rules),
		"rules_compiled", len(compiled),
		"fingerprint", fmt.Sprintf("%016x", snapshot.Fingerprint))
	return nil
}

// compileRules parses condition documents into typed variants and sorts by
// priority. Disabled rules are excluded. Condition documents were validated
// at write time; a document that no longer parses is kept with its keys
// marked unknown so evaluation surfaces a warning instead of failing.
func (s *PolicyService) compileRules(rules []policy.Rule) []policy.CompiledRule {
	compiled := make([]policy.CompiledRule, 0, len(rules))
	for i := range rules {
		rule := &rules[i]
		if !rule.Enabled {
			continue
		}

		conditions, unknown, err := policy.ParseConditions(rule.Conditions, s.compiler)
		if err != nil {
			s.logger.Warn("rule condition no longer parses, marking non-matching",
				"rule_id", rule.ID, "error", err)
			unknown = conditionKeys(rule.Conditions)
			conditions = nil
		}

		compiled = append(compiled, policy.CompiledRule{
			ID:                rule.ID,
			ActionTypes:       rule.ActionTypes,
			Priority:          rule.Priority,
			RiskScoreModifier: rule.RiskScoreModifier,
			Conditions:        conditions,
			UnknownKeys:       unknown,
		})
	}

	// Evaluation precedence: ascending priority value, rule ID as the
	// deterministic tie-break.
	sort.SliceStable(compiled, func(i, j int) bool {
		if compiled[i].Priority != compiled[j].Priority {
			return compiled[i].Priority < compiled[j].Priority
		}
		return compiled[i].ID < compiled[j].ID
	})
	return compiled
}

// ValidateRule checks a rule before it is persisted.
func (s *PolicyService) ValidateRule(rule *policy.Rule) error {
	if rule.ID == "" {
		return errors.New("rule id is required")
	}
	// An empty action type set is valid and matches every action type.
	for _, at := range rule.ActionTypes {
		if !at.IsValid() {
			return fmt.Errorf("invalid action type %q", string(at))
		}
	}
	if rule.RiskScoreModifier < 0 || rule.RiskScoreModifier > 1 {
		return fmt.Errorf("risk_score_modifier %v out of range [0, 1]", rule.RiskScoreModifier)
	}
	if rule.Priority < 0 {
		return fmt.Errorf("priority %d must be non-negative", rule.Priority)
	}

	// Known condition keys must carry well-formed values. Unknown keys are
	// accepted here and surface as evaluation warnings instead.
	if _, _, err := policy.ParseConditions(rule.Conditions, s.compiler); err != nil {
		return fmt.Errorf("invalid conditions: %w", err)
	}
	return nil
}

// GetRule retrieves a rule by ID.
func (s *PolicyService) GetRule(ctx context.Context, id string) (*policy.Rule, error) {
	return s.store.GetRule(ctx, id)
}

// ListRules returns all rules sorted by ascending priority.
func (s *PolicyService) ListRules(ctx context.Context) ([]policy.Rule, error) {
	return s.store.ListRules(ctx)
}

// CreateRule validates and persists a new rule.
func (s *PolicyService) CreateRule(ctx context.Context, rule *policy.Rule) error {
	if err := s.ValidateRule(rule); err != nil {
		return err
	}
	if err := s.store.CreateRule(ctx, rule); err != nil {
		return err
	}
	return s.Reload(ctx)
}

// UpdateRule validates and replaces an existing rule.
func (s *PolicyService) UpdateRule(ctx context.Context, rule *policy.Rule) error {
	if err := s.ValidateRule(rule); err != nil {
		return err
	}
	if err := s.store.UpdateRule(ctx, rule); err != nil {
		return err
	}
	return s.Reload(ctx)
}

// DeleteRule removes a rule by ID.
func (s *PolicyService) DeleteRule(ctx context.Context, id string) error {
	if err := s.store.DeleteRule(ctx, id); err != nil {
		return err
	}
	return s.Reload(ctx)
}

// SeedDefaultRules inserts the built-in ruleset, skipping rules that
// already exist so operator customizations survive restarts.
func (s *PolicyService) SeedDefaultRules(ctx context.Context) error {
	seeded := 0
	for _, rule := range DefaultRules() {
		err := s.store.CreateRule(ctx, &rule)
		if errors.Is(err, policy.ErrRuleExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed rule %s: %w", rule.ID, err)
		}
		seeded++
	}
	if seeded > 0 {
		s.logger.Info("default rules seeded", "count", seeded)
	}
	return s.Reload(ctx)
}

// DefaultRules returns the built-in ruleset covering the highest-risk
// action categories.
func DefaultRules() []policy.Rule {
	return []policy.Rule{
		{
			ID:                "admin_action_high_risk",
			Description:       "Any administrative action requires approval",
			ActionTypes:       []action.Type{action.TypeAdminAction},
			RiskScoreModifier: 0.85,
			Priority:          5,
			Enabled:           true,
		},
		{
			ID:                "refund_limit_500",
			Description:       "Refunds above $500 are blocked",
			ActionTypes:       []action.Type{action.TypeRefund},
			Conditions:        map[string]interface{}{"max_amount": 500.0},
			RiskScoreModifier: 1.0,
			Priority:          10,
			Enabled:           true,
		},
		{
			ID:          "database_write_protection",
			Description: "Writes to sensitive tables are blocked",
			ActionTypes: []action.Type{action.TypeDatabaseWrite},
			Conditions: map[string]interface{}{
				"protected_tables": []string{"users", "payments", "credentials"},
			},
			RiskScoreModifier: 1.0,
			Priority:          15,
			Enabled:           true,
		},
		{
			ID:                "payment_limit_10000",
			Description:       "Payments above $10,000 require approval",
			ActionTypes:       []action.Type{action.TypePayment},
			Conditions:        map[string]interface{}{"max_amount": 10000.0},
			RiskScoreModifier: 0.85,
			Priority:          20,
			Enabled:           true,
		},
		{
			ID:                "bulk_operation_limit",
			Description:       "Bulk database operations touching many rows require approval",
			ActionTypes:       []action.Type{action.TypeDatabaseWrite, action.TypeDatabaseQuery},
			Conditions:        map[string]interface{}{"max_affected_rows": 1000},
			RiskScoreModifier: 0.9,
			Priority:          25,
			Enabled:           true,
		},
		{
			ID:                "user_data_access",
			Description:       "User data access without justification raises risk",
			ActionTypes:       []action.Type{action.TypeUserDataAccess},
			Conditions:        map[string]interface{}{"requires_fields": []string{"justification"}},
			RiskScoreModifier: 0.3,
			Priority:          30,
			Enabled:           true,
		},
	}
}

// fingerprintRules hashes the canonical JSON of the ruleset.
// Used to detect whether two snapshots were built from the same rules.
func fingerprintRules(rules []policy.Rule) uint64 {
	digest := xxhash.New()
	enc := json.NewEncoder(digest)
	for i := range rules {
		// Encode errors cannot occur for Rule's field types.
		_ = enc.Encode(&rules[i])
	}
	return digest.Sum64()
}

// conditionKeys returns the keys of a condition document.
func conditionKeys(doc map[string]interface{}) []string {
	if len(doc) == 0 {
		return nil
	}
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
