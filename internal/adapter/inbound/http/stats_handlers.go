package http

import "net/http"

// handleMetricsSummary returns the aggregate decision rollup.
// Prometheus metrics live on /metrics; this endpoint is the human-readable
// counterpart for dashboards without a scraper.
func (h *APIHandler) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.stats.Summary())
}
