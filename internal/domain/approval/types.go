// Package approval holds the human-in-the-loop approval workflow types.
// A pending evaluation creates an Approval; a reviewer resolves it through
// the callback endpoint, or the expiry sweeper times it out.
package approval

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an approval.
type Status string

const (
	// StatusPending means the approval awaits a reviewer decision.
	StatusPending Status = "PENDING"
	// StatusApproved means a reviewer approved the action.
	StatusApproved Status = "APPROVED"
	// StatusRejected means a reviewer rejected the action.
	StatusRejected Status = "REJECTED"
	// StatusExpired means no decision arrived before the deadline.
	StatusExpired Status = "EXPIRED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusExpired
}

// Decision is a reviewer's callback verdict.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Status maps the reviewer decision to the resulting approval status.
func (d Decision) Status() (Status, error) {
	switch d {
	case DecisionApproved:
		return StatusApproved, nil
	case DecisionRejected:
		return StatusRejected, nil
	default:
		return "", fmt.Errorf("invalid decision %q", string(d))
	}
}

// Approval tracks one action awaiting human review.
type Approval struct {
	ID             string                 `json:"approval_id"`
	RequestID      string                 `json:"request_id"`
	AgentID        string                 `json:"agent_id"`
	ActionType     string                 `json:"action_type"`
	TargetResource string                 `json:"target_resource"`
	Parameters     map[string]interface{} `json:"parameters,omitempty"`
	Context        map[string]interface{} `json:"context,omitempty"`
	RiskScore      float64                `json:"risk_score"`
	RiskLevel      string                 `json:"risk_level"`
	MatchedRules   []string               `json:"matched_rules,omitempty"`
	Status         Status                 `json:"status"`
	Reviewer       string                 `json:"reviewer,omitempty"`
	Reason         string                 `json:"reason,omitempty"`
	RequestedAt    time.Time              `json:"requested_at"`
	ExpiresAt      time.Time              `json:"expires_at"`
	ResolvedAt     *time.Time             `json:"resolved_at,omitempty"`
}

// Clone returns a deep copy of the approval.
func (a *Approval) Clone() *Approval {
	if a == nil {
		return nil
	}
	out := *a
	if a.Parameters != nil {
		out.Parameters = make(map[string]interface{}, len(a.Parameters))
		for k, v := range a.Parameters {
			out.Parameters[k] = v
		}
	}
	if a.Context != nil {
		out.Context = make(map[string]interface{}, len(a.Context))
		for k, v := range a.Context {
			out.Context[k] = v
		}
	}
	if a.MatchedRules != nil {
		out.MatchedRules = make([]string, len(a.MatchedRules))
		copy(out.MatchedRules, a.MatchedRules)
	}
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		out.ResolvedAt = &t
	}
	return &out
}
