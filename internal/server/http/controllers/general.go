package controllers

import (
	"net/http"

	"github.com/oxbow-io/oxbow/internal/runtime"
	bufsvc "github.com/oxbow-io/oxbow/internal/services/buffers"
)

// GeneralController handles health and instrumentation endpoints.
type GeneralController struct {
	rt  *runtime.Runtime
	svc *bufsvc.Service
}

// NewGeneralController creates a new general controller.
func NewGeneralController(rt *runtime.Runtime, svc *bufsvc.Service) *GeneralController {
	return &GeneralController{rt: rt, svc: svc}
}

// RegisterRoutes registers general routes with the given mux.
func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/healthz", c.handleHealth)
	mux.Handle("/metrics", c.rt.Metrics().Handler())
}

// handleHealth returns the health status of the service.
//
// Returns 200 OK with {"status": "ok"} if healthy, 503 otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]any{"status": "ok", "openBuffers": c.svc.Open()})
}
