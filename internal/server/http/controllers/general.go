package controllers

import (
	"net/http"

	bussvc "github.com/rzbill/eventbus/internal/services/bus"
	"github.com/rzbill/eventbus/pkg/errmodel"
)

// GeneralController handles health, overview and administrative endpoints.
type GeneralController struct {
	svc *bussvc.Service
}

// NewGeneralController creates a new general controller.
func NewGeneralController(svc *bussvc.Service) *GeneralController {
	return &GeneralController{svc: svc}
}

// RegisterRoutes registers general routes with the given mux.
func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/healthz", c.handleHealth)
	mux.HandleFunc("/v1/overview", c.handleOverview)
	mux.HandleFunc("/v1/admin/reset", c.handleReset)
}

// handleHealth returns 200 {"status":"ok","instance":...} when storage
// answers, 503 otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.svc.Health(r.Context()); err != nil {
		writeError(w, r, errmodel.Storage("not_serving", err))
		return
	}
	writeJSON(w, map[string]string{"status": "ok", "instance": c.svc.InstanceID()})
}

// handleOverview returns the monitoring snapshot; ?channel= selects a channel.
func (c *GeneralController) handleOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	snap, err := c.svc.Overview(r.Context(), r.URL.Query().Get("channel"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, snap)
}

// handleReset wipes every channel and consumer.
func (c *GeneralController) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	if err := c.svc.Reset(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}
