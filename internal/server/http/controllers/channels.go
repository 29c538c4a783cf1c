package controllers

import (
	"net/http"
	"time"

	bussvc "github.com/rzbill/eventbus/internal/services/bus"
)

// ChannelsController handles channel management, publishing and reads.
type ChannelsController struct {
	svc *bussvc.Service
}

// NewChannelsController creates a new channels controller.
func NewChannelsController(svc *bussvc.Service) *ChannelsController {
	return &ChannelsController{svc: svc}
}

// RegisterRoutes registers all channel routes with the given mux.
func (c *ChannelsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/channels", c.handleList)
	mux.HandleFunc("/v1/channels/create", c.handleCreate)
	mux.HandleFunc("/v1/channels/publish", c.handlePublish)
	mux.HandleFunc("/v1/channels/events", c.handleEvents)
	mux.HandleFunc("/v1/channels/subscribe", c.handleSubscribeSSE)
	mux.HandleFunc("/v1/channels/ws", c.handleSubscribeWS)
}

// handleList returns channel summaries; ?windowMs= overrides the throughput window.
func (c *ChannelsController) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	windowMs, err := queryInt64(r.URL.Query(), "windowMs", "invalid_window", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sums, err := c.svc.Channels(r.Context(), time.Duration(windowMs)*time.Millisecond)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"channels": sums})
}

func (c *ChannelsController) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	var req createReq
	if err := decodeBody(w, r, c.svc.Config().Limits.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := c.svc.EnsureChannel(r.Context(), req.Channel); err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, map[string]string{"channel": req.Channel})
}

// handlePublish appends an event and answers 201 with the stored record.
func (c *ChannelsController) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	var req publishReq
	if err := decodeBody(w, r, c.svc.Config().Limits.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ev, err := c.svc.Publish(r.Context(), req.Channel, req.Type, req.Payload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, ev)
}

// handleEvents lists events of ?channel= with id > ?since=. A ?filter= CEL
// expression and ?limit= turn it into a search.
func (c *ChannelsController) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	q := r.URL.Query()
	channel := q.Get("channel")
	since, err := queryInt64(q, "since", "invalid_offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt64(q, "limit", "invalid_limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter := q.Get("filter")
	if filter == "" && limit == 0 {
		evs, err := c.svc.ListEvents(r.Context(), channel, since)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, eventsResp{Channel: channel, Events: evs})
		return
	}
	maxLimit := c.svc.Config().Limits.MaxPollLimit
	evs, err := c.svc.Search(r.Context(), channel, since, filter, clampLimit(int(min(limit, int64(maxLimit))), maxLimit))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, eventsResp{Channel: channel, Events: evs})
}
