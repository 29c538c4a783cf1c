package grpcserver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rzbill/eventbus/internal/eventlog"
	bussvc "github.com/rzbill/eventbus/internal/services/bus"
	"github.com/rzbill/eventbus/pkg/errmodel"
	"google.golang.org/protobuf/types/known/structpb"
)

// Request envelopes. Field names match the HTTP API.
type (
	channelReq struct {
		Channel string `json:"channel"`
	}
	publishReq struct {
		Channel string          `json:"channel"`
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	channelsReq struct {
		WindowMs int64 `json:"windowMs"`
	}
	eventsReq struct {
		Channel string `json:"channel"`
		Since   int64  `json:"since"`
		Filter  string `json:"filter"`
		Limit   int    `json:"limit"`
	}
	pollReq struct {
		Consumer   string `json:"consumer"`
		Channel    string `json:"channel"`
		Limit      int    `json:"limit"`
		AutoCommit *bool  `json:"autoCommit"`
	}
	commitReq struct {
		Consumer    string `json:"consumer"`
		Channel     string `json:"channel"`
		LastEventID *int64 `json:"lastEventId"`
	}
	consumerReq struct {
		Consumer string `json:"consumer"`
		Channel  string `json:"channel"`
	}
)

type offsetResp struct {
	Consumer string `json:"consumer"`
	Channel  string `json:"channel"`
	Offset   int64  `json:"offset"`
}

type busServer struct {
	svc *bussvc.Service
}

var _ EventBusServer = (*busServer)(nil)

func reply(v any, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := Encode(v)
	if err != nil {
		return nil, toStatus(err)
	}
	return out, nil
}

func empty() (*structpb.Struct, error) { return &structpb.Struct{}, nil }

func (b *busServer) maxPoll(limit int) int {
	maxLimit := b.svc.Config().Limits.MaxPollLimit
	if maxLimit > 0 && (limit == 0 || limit > maxLimit) {
		return maxLimit
	}
	return limit
}

func (b *busServer) Health(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := b.svc.Health(ctx); err != nil {
		return reply(map[string]string{"status": "not_serving", "instance": b.svc.InstanceID()}, nil)
	}
	return reply(map[string]string{"status": "ok", "instance": b.svc.InstanceID()}, nil)
}

func (b *busServer) Publish(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req publishReq
	if err := Decode(in, &req); err != nil {
		return nil, invalidRequest(err)
	}
	return reply(b.svc.Publish(ctx, req.Channel, req.Type, req.Payload))
}

func (b *busServer) Channels(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req channelsReq
	if err := Decode(in, &req); err != nil {
		return nil, invalidRequest(err)
	}
	if req.WindowMs < 0 {
		return nil, toStatus(errmodel.Validation("invalid_window", "windowMs must be a non-negative integer", nil))
	}
	sums, err := b.svc.Channels(ctx, time.Duration(req.WindowMs)*time.Millisecond)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]any{"channels": sums}, nil)
}

func (b *busServer) Events(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req eventsReq
	if err := Decode(in, &req); err != nil {
		return nil, invalidRequest(err)
	}
	var (
		evs []eventlog.Event
		err error
	)
	if req.Filter == "" && req.Limit == 0 {
		evs, err = b.svc.ListEvents(ctx, req.Channel, req.Since)
	} else {
		if req.Limit < 0 {
			return nil, toStatus(errmodel.Validation("invalid_limit", "limit must be a non-negative integer", nil))
		}
		evs, err = b.svc.Search(ctx, req.Channel, req.Since, req.Filter, b.maxPoll(req.Limit))
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]any{"channel": req.Channel, "events": evs}, nil)
}

func (b *busServer) Poll(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req pollReq
	if err := Decode(in, &req); err != nil {
		return nil, invalidRequest(err)
	}
	if req.Limit < 0 {
		return nil, toStatus(errmodel.Validation("invalid_limit", "limit must be a non-negative integer", map[string]any{"limit": req.Limit}))
	}
	opts := eventlog.PollOptions{Limit: b.maxPoll(req.Limit), ManualCommit: req.AutoCommit != nil && !*req.AutoCommit}
	batch, err := b.svc.Poll(ctx, req.Consumer, req.Channel, opts)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]any{"consumer": req.Consumer, "channel": req.Channel, "events": batch.Events, "offset": batch.Offset}, nil)
}

func (b *busServer) Commit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req commitReq
	if err := Decode(in, &req); err != nil {
		return nil, invalidRequest(err)
	}
	if req.LastEventID == nil {
		return nil, toStatus(errmodel.Validation("invalid_offset", "lastEventId is required", nil))
	}
	if err := b.svc.Commit(ctx, req.Consumer, req.Channel, *req.LastEventID); err != nil {
		return nil, toStatus(err)
	}
	return reply(offsetResp{Consumer: req.Consumer, Channel: req.Channel, Offset: *req.LastEventID}, nil)
}

func (b *busServer) ResetConsumer(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req consumerReq
	if err := Decode(in, &req); err != nil {
		return nil, invalidRequest(err)
	}
	if err := b.svc.ResetConsumer(ctx, req.Consumer, req.Channel); err != nil {
		return nil, toStatus(err)
	}
	return reply(offsetResp{Consumer: req.Consumer, Channel: req.Channel}, nil)
}

func (b *busServer) Offset(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req consumerReq
	if err := Decode(in, &req); err != nil {
		return nil, invalidRequest(err)
	}
	off, err := b.svc.Offset(ctx, req.Consumer, req.Channel)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(offsetResp{Consumer: req.Consumer, Channel: req.Channel, Offset: off}, nil)
}

func (b *busServer) Overview(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req channelReq
	if err := Decode(in, &req); err != nil {
		return nil, invalidRequest(err)
	}
	return reply(b.svc.Overview(ctx, req.Channel))
}

func (b *busServer) Reset(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := b.svc.Reset(ctx); err != nil {
		return nil, toStatus(err)
	}
	return empty()
}
