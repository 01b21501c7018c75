package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sentinel-project/sentinel/internal/domain/agent"
	"github.com/sentinel-project/sentinel/internal/domain/ratelimit"
	"github.com/sentinel-project/sentinel/internal/service"
)

// maxBodyBytes caps request body size for all API endpoints.
const maxBodyBytes = 1 << 20 // 1 MiB

// APIHandler provides the gateway's JSON API endpoints.
type APIHandler struct {
	gateway   *service.GatewayService
	policies  *service.PolicyService
	approvals *service.ApprovalService
	auditSvc  *service.AuditService
	stats     *service.StatsService
	keys      *agent.KeyService
	limiter   *ratelimit.Limiter
	metrics   *Metrics
	logger    *slog.Logger
}

// APIOption configures an APIHandler dependency.
type APIOption func(*APIHandler)

// WithGatewayService sets the evaluation pipeline service.
func WithGatewayService(s *service.GatewayService) APIOption {
	return func(h *APIHandler) { h.gateway = s }
}

// WithPolicyService sets the policy CRUD service.
func WithPolicyService(s *service.PolicyService) APIOption {
	return func(h *APIHandler) { h.policies = s }
}

// WithApprovalService sets the approval workflow service.
func WithApprovalService(s *service.ApprovalService) APIOption {
	return func(h *APIHandler) { h.approvals = s }
}

// WithAuditService sets the audit logging service.
func WithAuditService(s *service.AuditService) APIOption {
	return func(h *APIHandler) { h.auditSvc = s }
}

// WithStatsService sets the stats rollup service.
func WithStatsService(s *service.StatsService) APIOption {
	return func(h *APIHandler) { h.stats = s }
}

// WithKeyService sets the agent API key validator.
func WithKeyService(s *agent.KeyService) APIOption {
	return func(h *APIHandler) { h.keys = s }
}

// WithRateLimiter sets the per-agent rate limiter.
func WithRateLimiter(l *ratelimit.Limiter) APIOption {
	return func(h *APIHandler) { h.limiter = l }
}

// WithMetrics sets the Prometheus metrics collection.
func WithMetrics(m *Metrics) APIOption {
	return func(h *APIHandler) { h.metrics = m }
}

// WithAPILogger sets the logger.
func WithAPILogger(l *slog.Logger) APIOption {
	return func(h *APIHandler) { h.logger = l }
}

// NewAPIHandler creates an APIHandler with the given options.
func NewAPIHandler(opts ...APIOption) *APIHandler {
	h := &APIHandler{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns an http.Handler with all API routes registered.
// Agent-facing routes require a valid API key and pass through the
// rate limiter; the callback route is reviewer-facing and skips both.
func (h *APIHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	// Reviewer callback - not agent-authenticated; reviewers act on
	// approval IDs handed out via webhook.
	mux.HandleFunc("POST /api/v1/approvals/{id}/callback", h.handleApprovalCallback)

	// Agent-facing routes behind auth + rate limiting.
	agentMux := http.NewServeMux()

	agentMux.HandleFunc("POST /api/v1/gateway/evaluate", h.handleEvaluate)
	agentMux.HandleFunc("GET /api/v1/gateway/mode", h.handleGetMode)
	agentMux.HandleFunc("PUT /api/v1/gateway/mode", h.handlePutMode)

	agentMux.HandleFunc("GET /api/v1/policies", h.handleListPolicies)
	agentMux.HandleFunc("POST /api/v1/policies", h.handleCreatePolicy)
	agentMux.HandleFunc("GET /api/v1/policies/{id}", h.handleGetPolicy)
	agentMux.HandleFunc("PUT /api/v1/policies/{id}", h.handleUpdatePolicy)
	agentMux.HandleFunc("DELETE /api/v1/policies/{id}", h.handleDeletePolicy)

	agentMux.HandleFunc("GET /api/v1/approvals", h.handleListApprovals)
	agentMux.HandleFunc("GET /api/v1/approvals/{id}", h.handleGetApproval)

	agentMux.HandleFunc("GET /api/v1/audit/logs", h.handleQueryAudit)
	agentMux.HandleFunc("GET /api/v1/metrics/summary", h.handleMetricsSummary)

	protected := http.Handler(agentMux)
	if h.limiter != nil {
		onLimited := func() {
			if h.stats != nil {
				h.stats.RecordRateLimited()
			}
			if h.metrics != nil {
				h.metrics.RateLimitedTotal.Inc()
			}
		}
		protected = RateLimitMiddleware(h.limiter, onLimited)(protected)
	}
	if h.keys != nil {
		protected = AgentAuthMiddleware(h.keys)(protected)
	}
	mux.Handle("/api/v1/", protected)

	return RequestIDMiddleware(h.logger)(mux)
}

// --- JSON helper methods ---

// respondJSON writes a JSON response with the given status code and data.
func (h *APIHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response with the given status code and message.
func (h *APIHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// readJSON decodes the request body into the given value.
// The body is capped at maxBodyBytes.
func (h *APIHandler) readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// pathParam extracts a named path parameter from the request URL.
// Uses Go 1.22+ PathValue.
func (h *APIHandler) pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// writeError is the package-level JSON error helper used by middleware.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
