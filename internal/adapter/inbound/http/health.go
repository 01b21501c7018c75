package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sentinel-project/sentinel/internal/adapter/outbound/memory"
	"github.com/sentinel-project/sentinel/internal/service"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Mode    string            `json:"mode,omitempty"`    // Current enforcement mode
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// HealthChecker verifies component health.
type HealthChecker struct {
	counterStore *memory.CounterStore
	policyStore  *memory.PolicyStore
	auditService *service.AuditService
	gateway      *service.GatewayService
	version      string
}

// NewHealthChecker creates a HealthChecker with optional components.
// Pass nil for components that aren't available.
func NewHealthChecker(
	counterStore *memory.CounterStore,
	policyStore *memory.PolicyStore,
	auditService *service.AuditService,
	gateway *service.GatewayService,
	version string,
) *HealthChecker {
	return &HealthChecker{
		counterStore: counterStore,
		policyStore:  policyStore,
		auditService: auditService,
		gateway:      gateway,
		version:      version,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.counterStore != nil {
		// Size() acquires the store lock - if this hangs, we have a problem
		_ = h.counterStore.Size()
		checks["counter_store"] = "ok"
	} else {
		checks["counter_store"] = "not configured"
	}

	if h.policyStore != nil {
		checks["policy_store"] = fmt.Sprintf("ok: %d rules", h.policyStore.Size())
	} else {
		checks["policy_store"] = "not configured"
	}

	if h.auditService != nil {
		depth := h.auditService.ChannelDepth()
		capacity := h.auditService.ChannelCapacity()
		percentFull := 0
		if capacity > 0 {
			percentFull = depth * 100 / capacity
		}

		if percentFull > 90 {
			// >90% full means the writer cannot keep up
			checks["audit"] = fmt.Sprintf("degraded: %d/%d (%d%%)", depth, capacity, percentFull)
			healthy = false
		} else {
			checks["audit"] = fmt.Sprintf("ok: %d/%d (%d%%)", depth, capacity, percentFull)
		}
	} else {
		checks["audit"] = "not configured"
	}

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	resp := HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
	if h.gateway != nil {
		resp.Mode = string(h.gateway.Mode().Current())
	}
	return resp
}

// Handler returns the /health endpoint handler.
// Returns 200 when healthy, 503 when any component is degraded.
func (h *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := h.Check()

		status := http.StatusOK
		if resp.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
