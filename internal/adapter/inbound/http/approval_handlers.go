package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/sentinel-project/sentinel/internal/domain/approval"
)

// handleListApprovals returns approvals, optionally filtered by status
// and agent_id query parameters.
func (h *APIHandler) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	filter := approval.Filter{
		AgentID: r.URL.Query().Get("agent_id"),
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = approval.Status(status)
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			h.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	approvals, err := h.approvals.List(r.Context(), filter)
	if err != nil {
		LoggerFromContext(r.Context()).Error("list approvals failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list approvals")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"approvals": approvals,
		"count":     len(approvals),
	})
}

// handleGetApproval returns one approval by ID.
func (h *APIHandler) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	id := h.pathParam(r, "id")

	a, err := h.approvals.Get(r.Context(), id)
	if errors.Is(err, approval.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "approval not found")
		return
	}
	if err != nil {
		LoggerFromContext(r.Context()).Error("get approval failed", "approval_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get approval")
		return
	}
	h.respondJSON(w, http.StatusOK, a)
}

// callbackRequest is the reviewer's verdict body.
type callbackRequest struct {
	Decision string `json:"decision"`
	Reviewer string `json:"reviewer,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// handleApprovalCallback applies a reviewer decision.
// Approvals already in a terminal state return 409 with their current state.
func (h *APIHandler) handleApprovalCallback(w http.ResponseWriter, r *http.Request) {
	id := h.pathParam(r, "id")

	var body callbackRequest
	if err := h.readJSON(w, r, &body); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resolved, err := h.approvals.Resolve(r.Context(), id, approval.Decision(body.Decision), body.Reviewer, body.Reason)
	switch {
	case errors.Is(err, approval.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "approval not found")
	case errors.Is(err, approval.ErrAlreadyResolved):
		h.respondJSON(w, http.StatusConflict, map[string]interface{}{
			"error":    "approval already " + string(resolved.Status),
			"approval": resolved,
		})
	case err != nil:
		h.respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.respondJSON(w, http.StatusOK, resolved)
	}
}
