package handler

import (
	"net/http"

	"github.com/emberchat/emberchat/internal/gateway"
	"github.com/emberchat/emberchat/internal/persist"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	persist *persist.Store
	gateway *gateway.Gateway // nil when no credential is configured
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(p *persist.Store, gw *gateway.Gateway) *HealthHandler {
	return &HealthHandler{
		persist: p,
		gateway: gw,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.persist == nil || h.persist.Ping(r.Context()) != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "persistence unavailable",
		})
		return
	}

	resp := map[string]string{"status": "ready"}
	if h.gateway == nil {
		// Stored state is still served; only network features are off.
		resp["llm"] = "unconfigured"
	}
	writeJSON(w, http.StatusOK, resp)
}

// Models handles GET /api/v1/models
func (h *HealthHandler) Models(w http.ResponseWriter, r *http.Request) {
	if h.gateway == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"models": []gateway.ModelInfo{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": h.gateway.Models()})
}
