package http

import (
	"errors"
	"net/http"

	"github.com/sentinel-project/sentinel/internal/domain/action"
	"github.com/sentinel-project/sentinel/internal/domain/policy"
)

// handleListPolicies returns all rules sorted by ascending priority.
func (h *APIHandler) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	rules, err := h.policies.ListRules(r.Context())
	if err != nil {
		LoggerFromContext(r.Context()).Error("list rules failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"count": len(rules),
	})
}

// handleGetPolicy returns one rule by ID.
func (h *APIHandler) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	id := h.pathParam(r, "id")

	rule, err := h.policies.GetRule(r.Context(), id)
	if errors.Is(err, policy.ErrRuleNotFound) {
		h.respondError(w, http.StatusNotFound, "rule not found")
		return
	}
	if err != nil {
		LoggerFromContext(r.Context()).Error("get rule failed", "rule_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get rule")
		return
	}
	h.respondJSON(w, http.StatusOK, rule)
}

// ruleRequest mirrors policy.Rule with a nullable enabled flag, so an
// absent "enabled" field defaults to true instead of false.
type ruleRequest struct {
	ID                string                 `json:"id"`
	Description       string                 `json:"description"`
	ActionTypes       []string               `json:"action_types"`
	Conditions        map[string]interface{} `json:"conditions"`
	RiskScoreModifier float64                `json:"risk_score_modifier"`
	Priority          int                    `json:"priority"`
	Enabled           *bool                  `json:"enabled"`
}

func (req *ruleRequest) toRule() policy.Rule {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	var types []action.Type
	for _, t := range req.ActionTypes {
		types = append(types, action.Type(t))
	}
	return policy.Rule{
		ID:                req.ID,
		Description:       req.Description,
		ActionTypes:       types,
		Conditions:        req.Conditions,
		RiskScoreModifier: req.RiskScoreModifier,
		Priority:          req.Priority,
		Enabled:           enabled,
	}
}

// handleCreatePolicy creates a new rule. Duplicate IDs return 409.
func (h *APIHandler) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var body ruleRequest
	if err := h.readJSON(w, r, &body); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	rule := body.toRule()

	err := h.policies.CreateRule(r.Context(), &rule)
	if errors.Is(err, policy.ErrRuleExists) {
		h.respondError(w, http.StatusConflict, "rule already exists: "+rule.ID)
		return
	}
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	LoggerFromContext(r.Context()).Info("rule created", "rule_id", rule.ID)
	created, getErr := h.policies.GetRule(r.Context(), rule.ID)
	if getErr != nil {
		created = &rule
	}
	h.respondJSON(w, http.StatusCreated, created)
}

// handleUpdatePolicy replaces an existing rule. Unknown IDs return 404.
func (h *APIHandler) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	id := h.pathParam(r, "id")

	var body ruleRequest
	if err := h.readJSON(w, r, &body); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	rule := body.toRule()
	if rule.ID == "" {
		rule.ID = id
	}
	if rule.ID != id {
		h.respondError(w, http.StatusBadRequest, "rule id does not match path")
		return
	}

	err := h.policies.UpdateRule(r.Context(), &rule)
	if errors.Is(err, policy.ErrRuleNotFound) {
		h.respondError(w, http.StatusNotFound, "rule not found")
		return
	}
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	LoggerFromContext(r.Context()).Info("rule updated", "rule_id", id)
	updated, getErr := h.policies.GetRule(r.Context(), id)
	if getErr != nil {
		updated = &rule
	}
	h.respondJSON(w, http.StatusOK, updated)
}

// handleDeletePolicy removes a rule. Unknown IDs return 404.
func (h *APIHandler) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	id := h.pathParam(r, "id")

	err := h.policies.DeleteRule(r.Context(), id)
	if errors.Is(err, policy.ErrRuleNotFound) {
		h.respondError(w, http.StatusNotFound, "rule not found")
		return
	}
	if err != nil {
		LoggerFromContext(r.Context()).Error("delete rule failed", "rule_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to delete rule")
		return
	}

	LoggerFromContext(r.Context()).Info("rule deleted", "rule_id", id)
	w.WriteHeader(http.StatusNoContent)
}
