// Package transports provides pluggable transport implementations for the CLI.
package transports

import (
	"context"
	"encoding/json"

	"github.com/rzbill/eventbus/internal/eventlog"
	"github.com/rzbill/eventbus/internal/overview"
	grpcserver "github.com/rzbill/eventbus/internal/server/grpc"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// GrpcTransport implements BusTransport over gRPC.
type GrpcTransport struct {
	dial func(ctx context.Context) (*grpc.ClientConn, error)
}

var _ BusTransport = (*GrpcTransport)(nil)

// NewGrpcTransport constructs a new GrpcTransport using the provided dialer.
func NewGrpcTransport(dial func(ctx context.Context) (*grpc.ClientConn, error)) *GrpcTransport {
	return &GrpcTransport{dial: dial}
}

// invoke encodes req, calls method and decodes the reply into out (if non-nil).
// Server errors come back as errmodel errors when the status carries one.
func (t *GrpcTransport) invoke(ctx context.Context, method string, req, out any) error {
	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	in, err := grpcserver.Encode(req)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := conn.Invoke(ctx, grpcserver.FullMethod(method), in, resp); err != nil {
		return grpcserver.FromStatus(err)
	}
	if out == nil {
		return nil
	}
	return grpcserver.Decode(resp, out)
}

// Health returns the server's health status string.
func (t *GrpcTransport) Health(ctx context.Context) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	err := t.invoke(ctx, grpcserver.MethodHealth, map[string]any{}, &out)
	return out.Status, err
}

// Publish appends an event and returns the stored record.
func (t *GrpcTransport) Publish(ctx context.Context, channel, eventType string, payload json.RawMessage) (eventlog.Event, error) {
	req := map[string]any{"channel": channel, "type": eventType}
	if len(payload) > 0 {
		req["payload"] = payload
	}
	var ev eventlog.Event
	err := t.invoke(ctx, grpcserver.MethodPublish, req, &ev)
	return ev, err
}

// Channels lists channel summaries.
func (t *GrpcTransport) Channels(ctx context.Context, windowMs int64) ([]eventlog.ChannelSummary, error) {
	var out struct {
		Channels []eventlog.ChannelSummary `json:"channels"`
	}
	err := t.invoke(ctx, grpcserver.MethodChannels, map[string]any{"windowMs": windowMs}, &out)
	return out.Channels, err
}

// Events reads a channel, optionally filtered.
func (t *GrpcTransport) Events(ctx context.Context, req EventsRequest) ([]eventlog.Event, error) {
	var out struct {
		Events []eventlog.Event `json:"events"`
	}
	err := t.invoke(ctx, grpcserver.MethodEvents, map[string]any{
		"channel": req.Channel,
		"since":   req.Since,
		"filter":  req.Filter,
		"limit":   req.Limit,
	}, &out)
	return out.Events, err
}

// Poll reads the next batch for a consumer.
func (t *GrpcTransport) Poll(ctx context.Context, req PollRequest) (PollResult, error) {
	var out PollResult
	err := t.invoke(ctx, grpcserver.MethodPoll, map[string]any{
		"consumer":   req.Consumer,
		"channel":    req.Channel,
		"limit":      req.Limit,
		"autoCommit": !req.ManualCommit,
	}, &out)
	return out, err
}

// Commit moves the consumer cursor to lastEventID.
func (t *GrpcTransport) Commit(ctx context.Context, consumer, channel string, lastEventID int64) error {
	return t.invoke(ctx, grpcserver.MethodCommit, map[string]any{
		"consumer":    consumer,
		"channel":     channel,
		"lastEventId": lastEventID,
	}, nil)
}

// ResetConsumer rewinds a consumer to 0.
func (t *GrpcTransport) ResetConsumer(ctx context.Context, consumer, channel string) error {
	return t.invoke(ctx, grpcserver.MethodResetConsumer, map[string]any{"consumer": consumer, "channel": channel}, nil)
}

// Offset returns a consumer's offset.
func (t *GrpcTransport) Offset(ctx context.Context, consumer, channel string) (int64, error) {
	var out struct {
		Offset int64 `json:"offset"`
	}
	err := t.invoke(ctx, grpcserver.MethodOffset, map[string]any{"consumer": consumer, "channel": channel}, &out)
	return out.Offset, err
}

// Overview fetches the monitoring snapshot.
func (t *GrpcTransport) Overview(ctx context.Context, channel string) (overview.Snapshot, error) {
	var snap overview.Snapshot
	err := t.invoke(ctx, grpcserver.MethodOverview, map[string]any{"channel": channel}, &snap)
	return snap, err
}

// Reset wipes the bus.
func (t *GrpcTransport) Reset(ctx context.Context) error {
	return t.invoke(ctx, grpcserver.MethodReset, map[string]any{}, nil)
}
