package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rzbill/eventbus/internal/eventlog"
	bussvc "github.com/rzbill/eventbus/internal/services/bus"
	"github.com/rzbill/eventbus/pkg/errmodel"
)

// sseSink implements bussvc.EventSink for Server-Sent Events.
type sseSink struct {
	w http.ResponseWriter
}

// Send writes one event frame; the SSE id is the event id so clients can
// resume with ?since=.
func (s sseSink) Send(ev eventlog.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("id: " + strconv.FormatInt(ev.ID, 10) + "\ndata: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	s.flush()
	return nil
}

// Heartbeat writes an SSE comment to keep idle connections open.
func (s sseSink) Heartbeat() error {
	if _, err := s.w.Write([]byte(": keepalive\n\n")); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s sseSink) flush() {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}

// subscribeOptions reads ?channel=, ?since= (default: current head), ?filter=
// and ?heartbeatMs=. Last-Event-ID takes precedence over ?since= on reconnect.
// The filter is validated here so errors surface before the stream starts.
func subscribeOptions(r *http.Request) (string, bussvc.SubscribeOptions, error) {
	q := r.URL.Query()
	opts := bussvc.SubscribeOptions{Since: -1, Filter: q.Get("filter")}
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		q.Set("since", v)
	}
	if q.Get("since") != "" {
		since, err := queryInt64(q, "since", "invalid_offset", 0)
		if err != nil {
			return "", opts, err
		}
		opts.Since = since
	}
	if v := q.Get("heartbeatMs"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return "", opts, errmodel.Validation("invalid_request", "heartbeatMs must be a positive integer", nil)
		}
		opts.Wait = time.Duration(ms) * time.Millisecond
	}
	if err := bussvc.ValidateFilter(opts.Filter); err != nil {
		return "", opts, err
	}
	return q.Get("channel"), opts, nil
}

// handleSubscribeSSE tails a channel as Server-Sent Events.
func (c *ChannelsController) handleSubscribeSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	channel, opts, err := subscribeOptions(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := c.svc.EnsureChannel(r.Context(), channel); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	sink := sseSink{w: w}
	sink.flush()
	// Headers are already sent; failures end the stream.
	_ = c.svc.Subscribe(r.Context(), channel, opts, sink)
}
