package controllers

import (
	"encoding/json"

	"github.com/rzbill/eventbus/internal/eventlog"
)

// Common request/response types for HTTP controllers

type createReq struct {
	Channel string `json:"channel"`
}

type publishReq struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type pollReq struct {
	Consumer string `json:"consumer"`
	Channel  string `json:"channel"`
	Limit    int    `json:"limit"`
	// AutoCommit defaults to true when omitted.
	AutoCommit *bool `json:"autoCommit"`
}

type commitReq struct {
	Consumer    string `json:"consumer"`
	Channel     string `json:"channel"`
	LastEventID *int64 `json:"lastEventId"`
}

type consumerReq struct {
	Consumer string `json:"consumer"`
	Channel  string `json:"channel"`
}

type eventsResp struct {
	Channel string           `json:"channel"`
	Events  []eventlog.Event `json:"events"`
}

type pollResp struct {
	Consumer string           `json:"consumer"`
	Channel  string           `json:"channel"`
	Events   []eventlog.Event `json:"events"`
	Offset   int64            `json:"offset"`
}

type offsetResp struct {
	Consumer string `json:"consumer"`
	Channel  string `json:"channel"`
	Offset   int64  `json:"offset"`
}
