package controllers

import (
	"net/http"

	"github.com/rzbill/eventbus/internal/eventlog"
	bussvc "github.com/rzbill/eventbus/internal/services/bus"
	"github.com/rzbill/eventbus/pkg/errmodel"
)

// ConsumersController handles consumer cursor endpoints.
type ConsumersController struct {
	svc *bussvc.Service
}

// NewConsumersController creates a new consumers controller.
func NewConsumersController(svc *bussvc.Service) *ConsumersController {
	return &ConsumersController{svc: svc}
}

// RegisterRoutes registers consumer routes with the given mux.
func (c *ConsumersController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/consumers/poll", c.handlePoll)
	mux.HandleFunc("/v1/consumers/commit", c.handleCommit)
	mux.HandleFunc("/v1/consumers/reset", c.handleReset)
	mux.HandleFunc("/v1/consumers/offset", c.handleOffset)
}

// handlePoll returns the next batch. Omitted or zero limits are capped at the
// configured maximum; autoCommit defaults to true.
func (c *ConsumersController) handlePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	limits := c.svc.Config().Limits
	var req pollReq
	if err := decodeBody(w, r, limits.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Limit < 0 {
		writeError(w, r, errmodel.Validation("invalid_limit", "limit must be a non-negative integer", map[string]any{"limit": req.Limit}))
		return
	}
	opts := eventlog.PollOptions{
		Limit:        clampLimit(req.Limit, limits.MaxPollLimit),
		ManualCommit: req.AutoCommit != nil && !*req.AutoCommit,
	}
	batch, err := c.svc.Poll(r.Context(), req.Consumer, req.Channel, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, pollResp{Consumer: req.Consumer, Channel: req.Channel, Events: batch.Events, Offset: batch.Offset})
}

func (c *ConsumersController) handleCommit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	var req commitReq
	if err := decodeBody(w, r, c.svc.Config().Limits.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.LastEventID == nil {
		writeError(w, r, errmodel.Validation("invalid_offset", "lastEventId is required", nil))
		return
	}
	if err := c.svc.Commit(r.Context(), req.Consumer, req.Channel, *req.LastEventID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, offsetResp{Consumer: req.Consumer, Channel: req.Channel, Offset: *req.LastEventID})
}

func (c *ConsumersController) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	var req consumerReq
	if err := decodeBody(w, r, c.svc.Config().Limits.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := c.svc.ResetConsumer(r.Context(), req.Consumer, req.Channel); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, offsetResp{Consumer: req.Consumer, Channel: req.Channel, Offset: 0})
}

func (c *ConsumersController) handleOffset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	consumer := r.URL.Query().Get("consumer")
	channel := r.URL.Query().Get("channel")
	off, err := c.svc.Offset(r.Context(), consumer, channel)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, offsetResp{Consumer: consumer, Channel: channel, Offset: off})
}
