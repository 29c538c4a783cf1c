package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rzbill/eventbus/internal/eventlog"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096}

// wsSink implements bussvc.EventSink over a WebSocket: one JSON text
// message per event, pings as heartbeats.
type wsSink struct {
	conn *websocket.Conn
}

func (s wsSink) Send(ev eventlog.Event) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteJSON(ev)
}

func (s wsSink) Heartbeat() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

// handleSubscribeWS tails a channel over a WebSocket. Query parameters match
// the SSE endpoint. Incoming client messages are discarded; a read error or
// close frame ends the subscription.
func (c *ChannelsController) handleSubscribeWS(w http.ResponseWriter, r *http.Request) {
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
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	err = c.svc.Subscribe(ctx, channel, opts, wsSink{conn: conn})
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err != nil && ctx.Err() == nil {
		msg = websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "stream failed")
	}
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
}
