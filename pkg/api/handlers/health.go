// Package handlers implements the HTTP handlers of the management API.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wheelseye/devicegateway/pkg/session"
)

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Is the session registry reachable?
type HealthHandler struct {
	registry *session.Registry
}

// NewHealthHandler creates a new health handler. The registry may be nil, in
// which case readiness reports unhealthy.
func NewHealthHandler(registry *session.Registry) *HealthHandler {
	return &HealthHandler{registry: registry}
}

// Liveness handles GET /health. Always succeeds while the HTTP server is
// responsive, which is what a liveness probe should measure.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "devicegateway",
	}))
}

// Readiness handles GET /health/ready. Ready means the session registry and
// its backing store answer a listing within a short deadline.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("session registry not initialized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	sessions, err := h.registry.List(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("session store unreachable: "+err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"sessions": len(sessions),
	}))
}
