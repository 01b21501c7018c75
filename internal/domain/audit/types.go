// Package audit defines the immutable decision trail written for every
// evaluated request, policy mutation, and approval transition.
package audit

import (
	"context"
	"time"
)

// EventType distinguishes the audit record families.
type EventType string

const (
	// EventDecision records a gateway evaluation outcome.
	EventDecision EventType = "decision"
	// EventPolicyChange records a policy rule mutation.
	EventPolicyChange EventType = "policy_change"
	// EventApproval records an approval lifecycle transition.
	EventApproval EventType = "approval"
)

// Record is one audit log entry.
type Record struct {
	ID             string                 `json:"id"`
	Event          EventType              `json:"event"`
	Timestamp      time.Time              `json:"timestamp"`
	RequestID      string                 `json:"request_id,omitempty"`
	AgentID        string                 `json:"agent_id,omitempty"`
	ActionType     string                 `json:"action_type,omitempty"`
	TargetResource string                 `json:"target_resource,omitempty"`
	Decision       string                 `json:"decision,omitempty"`
	ObservedMode   bool                   `json:"observed_mode,omitempty"`
	RiskScore      float64                `json:"risk_score"`
	RiskLevel      string                 `json:"risk_level,omitempty"`
	MatchedRules   []string               `json:"matched_rules,omitempty"`
	PIIEntities    []string               `json:"pii_entities,omitempty"`
	Forwarded      bool                   `json:"forwarded,omitempty"`
	LatencyMS      float64                `json:"latency_ms,omitempty"`
	Detail         map[string]interface{} `json:"detail,omitempty"`
}

// Filter narrows Query results. Zero-value fields are ignored.
type Filter struct {
	Event    EventType
	AgentID  string
	Decision string
	Since    time.Time
	Until    time.Time
	Limit    int
}

// Store is the outbound port for durable audit persistence.
type Store interface {
	// WriteBatch persists records in order. Partial failure drops the batch.
	WriteBatch(ctx context.Context, records []Record) error

	// Query returns records matching the filter, newest first.
	Query(ctx context.Context, filter Filter) ([]Record, error)

	// Close releases the underlying resources.
	Close() error
}
