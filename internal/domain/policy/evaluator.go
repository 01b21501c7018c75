package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/sentinel-project/sentinel/internal/domain/action"
)

// RiskLevel buckets a risk score for reporting.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// LevelForScore derives the risk level from a score.
// < 0.3 low, < 0.8 medium, else high.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score < 0.3:
		return RiskLow
	case score < 0.8:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// Assessment is the result of evaluating a request against compiled rules.
type Assessment struct {
	// Score is the accumulated risk score, clamped to [0, 1].
	Score float64
	// Level is the bucketed risk level for Score.
	Level RiskLevel
	// Matched lists the rules that matched, in evaluation order.
	Matched []RuleMatch
	// Reason describes why the highest-precedence matched rule fired.
	// Empty when nothing matched.
	Reason string
	// Warnings carries non-fatal evaluation notes (unknown condition keys).
	Warnings []string
}

// Evaluate scores a request against the given compiled rules.
//
// This is a pure function: it reads only its arguments and allocates only
// the returned Assessment. Rules must be sorted by evaluation precedence:
// ascending Priority value, ties broken by rule ID. The lowest Priority
// value is the highest-precedence rule, and the first match supplies the
// reason string. Each rule covering the request's action type whose
// conditions all hold contributes its RiskScoreModifier; the sum is
// clamped to [0, 1] with a warning when the clamp fires.
//
// Rules carrying unknown condition keys never match; each produces a warning.
func Evaluate(req *action.Request, rules []CompiledRule, now time.Time) Assessment {
	var result Assessment

	for i := range rules {
		rule := &rules[i]
		if !rule.AppliesTo(req.ActionType) {
			continue
		}

		if len(rule.UnknownKeys) > 0 {
			for _, key := range rule.UnknownKeys {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("rule %s skipped: unknown condition key %q", rule.ID, key))
			}
			continue
		}

		if !conditionsMatch(req, rule.Conditions, now) {
			continue
		}

		result.Matched = append(result.Matched, RuleMatch{
			RuleID:            rule.ID,
			RiskScoreModifier: rule.RiskScoreModifier,
		})
		result.Score += rule.RiskScoreModifier
		if result.Reason == "" {
			result.Reason = matchReason(req, rule, now)
		}
	}

	if result.Score > 1.0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("risk score %.2f clamped to 1.0", result.Score))
		result.Score = 1.0
	}
	if result.Score < 0 {
		result.Score = 0
	}
	result.Level = LevelForScore(result.Score)

	return result
}

// matchReason composes the human-readable reason for a matched rule from
// its condition descriptions, tagged with the rule ID.
func matchReason(req *action.Request, rule *CompiledRule, now time.Time) string {
	if len(rule.Conditions) == 0 {
		return fmt.Sprintf("action type flagged by policy (%s)", rule.ID)
	}
	parts := make([]string, len(rule.Conditions))
	for i, c := range rule.Conditions {
		parts[i] = c.Reason(req, now)
	}
	return fmt.Sprintf("%s (%s)", strings.Join(parts, "; "), rule.ID)
}

// conditionsMatch reports whether every condition holds for the request.
// An empty condition list matches.
func conditionsMatch(req *action.Request, conditions []Condition, now time.Time) bool {
	for _, c := range conditions {
		if !c.Matches(req, now) {
			return false
		}
	}
	return true
}
