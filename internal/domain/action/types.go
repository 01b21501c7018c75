// Package action contains the domain types for agent action requests.
package action

import (
	"encoding/json"
	"time"
)

// Type classifies the kind of backend operation an agent wants to perform.
type Type string

const (
	TypeDatabaseQuery  Type = "database_query"
	TypeDatabaseWrite  Type = "database_write"
	TypeAPICall        Type = "api_call"
	TypeFileAccess     Type = "file_access"
	TypePayment        Type = "payment"
	TypeRefund         Type = "refund"
	TypeUserDataAccess Type = "user_data_access"
	TypeAdminAction    Type = "admin_action"
)

// IsValid returns true if the type is one of the known action types.
func (t Type) IsValid() bool {
	switch t {
	case TypeDatabaseQuery, TypeDatabaseWrite, TypeAPICall, TypeFileAccess,
		TypePayment, TypeRefund, TypeUserDataAccess, TypeAdminAction:
		return true
	default:
		return false
	}
}

// Request is a proposed action submitted by an agent for evaluation.
// Parameters and Context are free-form maps; both are treated as empty
// when absent so rule conditions can assume non-nil maps.
type Request struct {
	// RequestID is assigned by the gateway (UUID).
	RequestID string
	// AgentID identifies the authenticated agent.
	AgentID string
	// ActionType is the kind of operation being proposed.
	ActionType Type
	// TargetResource names the backend resource the action touches
	// (e.g., "orders", "payments_api").
	TargetResource string
	// Parameters are the action's arguments (amount, table, affected_rows, ...).
	Parameters map[string]interface{}
	// Context is caller-supplied metadata (session, reason, ...).
	Context map[string]interface{}
	// ReceivedAt is when the gateway accepted the request (UTC).
	ReceivedAt time.Time
}

// Amount extracts parameters["amount"] as a float64.
// Returns (0, false) when the key is absent or not numeric.
func (r *Request) Amount() (float64, bool) {
	v, ok := r.Parameters["amount"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// StringParam extracts a string-valued parameter.
func (r *Request) StringParam(key string) (string, bool) {
	v, ok := r.Parameters[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// IntParam extracts an integer-valued parameter (JSON numbers decode as float64).
func (r *Request) IntParam(key string) (int, bool) {
	v, ok := r.Parameters[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
