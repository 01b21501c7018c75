// Package policy contains domain types for risk-based policy evaluation.
package policy

import (
	"time"

	"github.com/sentinel-project/sentinel/internal/domain/action"
)

// Rule defines a single policy rule as stored and exchanged over the API.
// Conditions holds the raw condition document (key -> value); it is parsed
// into typed Condition variants when a rule snapshot is compiled.
type Rule struct {
	// ID is the unique identifier for this rule (e.g., "refund_limit_500").
	ID string `json:"id"`
	// Description is human-readable context for the rule.
	Description string `json:"description,omitempty"`
	// ActionTypes restricts the rule to requests of these action types.
	// An empty set matches every action type.
	ActionTypes []action.Type `json:"action_types,omitempty"`
	// Conditions is the raw condition document. An empty document matches
	// every request of the rule's action type.
	Conditions map[string]interface{} `json:"conditions,omitempty"`
	// RiskScoreModifier is added to the request's risk score when the rule matches.
	RiskScoreModifier float64 `json:"risk_score_modifier"`
	// Priority determines evaluation order (lower value = evaluated earlier).
	Priority int `json:"priority"`
	// Enabled indicates if this rule participates in evaluation.
	Enabled bool `json:"enabled"`
	// CreatedAt is when the rule was created (UTC).
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the rule was last modified (UTC).
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the rule.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	out := *r
	if r.ActionTypes != nil {
		out.ActionTypes = make([]action.Type, len(r.ActionTypes))
		copy(out.ActionTypes, r.ActionTypes)
	}
	if r.Conditions != nil {
		out.Conditions = make(map[string]interface{}, len(r.Conditions))
		for k, v := range r.Conditions {
			out.Conditions[k] = v
		}
	}
	return &out
}

// CompiledRule is a rule with its condition document parsed into typed
// variants, ready for evaluation.
type CompiledRule struct {
	ID                string
	ActionTypes       []action.Type
	Priority          int
	RiskScoreModifier float64
	// Conditions are the parsed condition variants; all must match.
	Conditions []Condition
	// UnknownKeys lists condition keys that did not parse into a known
	// variant. A rule with unknown keys never matches and surfaces a
	// warning in the evaluation result.
	UnknownKeys []string
}

// AppliesTo reports whether the rule covers the given action type.
// A rule with no action types covers every type.
func (r *CompiledRule) AppliesTo(t action.Type) bool {
	if len(r.ActionTypes) == 0 {
		return true
	}
	for _, at := range r.ActionTypes {
		if at == t {
			return true
		}
	}
	return false
}

// RuleMatch records one rule that matched during evaluation.
type RuleMatch struct {
	RuleID            string  `json:"rule_id"`
	RiskScoreModifier float64 `json:"risk_score_modifier"`
}
