package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sentinel-project/sentinel/internal/domain/audit"
)

const defaultAuditLimit = 100

// handleQueryAudit returns audit records matching the query parameters:
// event, agent_id, decision, since, until (RFC 3339), limit.
func (h *APIHandler) handleQueryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		Event:    audit.EventType(q.Get("event")),
		AgentID:  q.Get("agent_id"),
		Decision: q.Get("decision"),
		Limit:    defaultAuditLimit,
	}

	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		filter.Since = t
	}
	if until := q.Get("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid until timestamp")
			return
		}
		filter.Until = t
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			h.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	records, err := h.auditSvc.Query(r.Context(), filter)
	if err != nil {
		LoggerFromContext(r.Context()).Error("audit query failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to query audit logs")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}
