package http

import (
	"net/http"
	"time"

	"github.com/sentinel-project/sentinel/internal/domain/action"
	"github.com/sentinel-project/sentinel/internal/domain/mode"
	"github.com/sentinel-project/sentinel/internal/domain/policy"
	"github.com/sentinel-project/sentinel/internal/service"
)

// evaluateRequest is the JSON body for POST /api/v1/gateway/evaluate.
type evaluateRequest struct {
	RequestID      string                 `json:"request_id,omitempty"`
	AgentID        string                 `json:"agent_id,omitempty"`
	ActionType     string                 `json:"action_type"`
	TargetResource string                 `json:"target_resource,omitempty"`
	Parameters     map[string]interface{} `json:"parameters,omitempty"`
	Context        map[string]interface{} `json:"context,omitempty"`
}

// evaluateResponse is the JSON body returned by the evaluate endpoint.
// Forwarded is true when the effective decision is allow and the request
// was handed to the forwarding sink (or no sink is installed).
type evaluateResponse struct {
	RequestID        string             `json:"request_id"`
	Status           string             `json:"status"`
	Decision         string             `json:"decision"`
	ObservedDecision string             `json:"observed_decision,omitempty"`
	Message          string             `json:"message"`
	Mode             string             `json:"mode"`
	RiskScore        float64            `json:"risk_score"`
	RiskLevel        string             `json:"risk_level"`
	MatchedPolicies  []policy.RuleMatch `json:"matched_policies,omitempty"`
	Warnings         []string           `json:"warnings,omitempty"`
	PIIEntities      []string           `json:"pii_entities,omitempty"`
	ApprovalID       string             `json:"approval_id,omitempty"`
	ApprovalURL      string             `json:"approval_url,omitempty"`
	ExpiresAt        *time.Time         `json:"expires_at,omitempty"`
	Forwarded        bool               `json:"forwarded"`
}

// handleEvaluate runs a request through the evaluation pipeline.
// Status maps the effective decision: allow 200, pending 202, deny 403.
func (h *APIHandler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var body evaluateRequest
	if err := h.readJSON(w, r, &body); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.ActionType == "" {
		h.respondError(w, http.StatusBadRequest, "action_type is required")
		return
	}

	actionType := action.Type(body.ActionType)
	if !actionType.IsValid() {
		h.respondError(w, http.StatusBadRequest, "unknown action_type "+body.ActionType)
		return
	}

	agentID := AgentIDFromContext(r.Context())
	if agentID == "" {
		agentID = body.AgentID
	}

	requestID := body.RequestID
	if requestID == "" {
		requestID = RequestIDFromContext(r.Context())
	}

	result, err := h.gateway.Evaluate(r.Context(), &action.Request{
		RequestID:      requestID,
		AgentID:        agentID,
		ActionType:     actionType,
		TargetResource: body.TargetResource,
		Parameters:     body.Parameters,
		Context:        body.Context,
	})
	if err != nil {
		LoggerFromContext(r.Context()).Error("evaluation failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "evaluation failed")
		return
	}

	resp := evaluateResponse{
		RequestID:        result.RequestID,
		Status:           statusLabel(result.Decision),
		Decision:         string(result.Decision),
		ObservedDecision: string(result.ObservedDecision),
		Message:          decisionMessage(result),
		Mode:             string(result.Mode),
		RiskScore:        result.RiskScore,
		RiskLevel:        string(result.RiskLevel),
		MatchedPolicies:  result.MatchedRules,
		Warnings:         result.Warnings,
		PIIEntities:      result.PIIEntities,
		Forwarded:        result.Forwarded,
	}
	if result.Approval != nil {
		resp.ApprovalID = result.Approval.ID
		resp.ApprovalURL = "/api/v1/approvals/" + result.Approval.ID
		expires := result.Approval.ExpiresAt
		resp.ExpiresAt = &expires
	}

	if h.metrics != nil {
		h.metrics.Evaluations.WithLabelValues(string(result.Decision)).Inc()
		h.metrics.RiskScore.Observe(result.RiskScore)
		for _, entity := range result.PIIEntities {
			h.metrics.PIIDetections.WithLabelValues(entity).Inc()
		}
	}

	h.respondJSON(w, decisionStatus(result.Decision), resp)
}

// decisionStatus maps a verdict to its HTTP status code.
func decisionStatus(v policy.Verdict) int {
	switch v {
	case policy.VerdictPending:
		return http.StatusAccepted
	case policy.VerdictDeny:
		return http.StatusForbidden
	default:
		return http.StatusOK
	}
}

// statusLabel maps a verdict to the response status field.
func statusLabel(v policy.Verdict) string {
	switch v {
	case policy.VerdictPending:
		return "pending_approval"
	case policy.VerdictDeny:
		return "denied"
	default:
		return "allowed"
	}
}

// decisionMessage builds the human-readable summary for an evaluation result.
// Deny and pending verdicts carry the reason from the highest-precedence
// matched rule.
func decisionMessage(result *service.EvaluationResult) string {
	switch result.Decision {
	case policy.VerdictDeny:
		if result.Reason != "" {
			return "action denied: " + result.Reason
		}
		return "action denied by policy"
	case policy.VerdictPending:
		if result.Reason != "" {
			return "action requires approval: " + result.Reason
		}
		return "action requires approval before execution"
	}
	switch result.ObservedDecision {
	case policy.VerdictDeny:
		return "action allowed (observe mode, enforcement would deny)"
	case policy.VerdictPending:
		return "action allowed (observe mode, enforcement would require approval)"
	}
	return "action allowed"
}

// modeResponse is the JSON body for the mode endpoints.
type modeResponse struct {
	Mode      string     `json:"mode"`
	ChangedAt *time.Time `json:"changed_at,omitempty"`
}

// handleGetMode returns the current enforcement mode.
func (h *APIHandler) handleGetMode(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.modeResponse())
}

// handlePutMode switches the enforcement mode at runtime.
// The mode comes from the ?mode= query parameter or the JSON body.
func (h *APIHandler) handlePutMode(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("mode")
	if raw == "" {
		var body struct {
			Mode string `json:"mode"`
		}
		if err := h.readJSON(w, r, &body); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		raw = body.Mode
	}

	parsed, err := mode.Parse(raw)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	prev := h.gateway.Mode().Set(parsed, time.Now().UTC())
	if prev != parsed {
		LoggerFromContext(r.Context()).Info("enforcement mode changed",
			"from", string(prev), "to", string(parsed))
	}

	h.respondJSON(w, http.StatusOK, h.modeResponse())
}

func (h *APIHandler) modeResponse() modeResponse {
	resp := modeResponse{Mode: string(h.gateway.Mode().Current())}
	if changed := h.gateway.Mode().ChangedAt(); !changed.IsZero() {
		resp.ChangedAt = &changed
	}
	return resp
}
