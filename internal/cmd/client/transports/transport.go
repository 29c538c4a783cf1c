package transports

import (
	"context"
	"encoding/json"

	"github.com/rzbill/eventbus/internal/eventlog"
	"github.com/rzbill/eventbus/internal/overview"
)

// PollRequest describes one poll call.
type PollRequest struct {
	Consumer string
	Channel  string
	Limit    int
	// ManualCommit leaves the cursor untouched.
	ManualCommit bool
}

// PollResult is the batch plus the cursor after the call.
type PollResult struct {
	Events []eventlog.Event `json:"events"`
	Offset int64            `json:"offset"`
}

// EventsRequest describes a read or search of a channel.
type EventsRequest struct {
	Channel string
	Since   int64
	Filter  string
	Limit   int
}

// BusTransport abstracts the transport used by the CLI.
type BusTransport interface {
	Health(ctx context.Context) (string, error)
	Publish(ctx context.Context, channel, eventType string, payload json.RawMessage) (eventlog.Event, error)
	Channels(ctx context.Context, windowMs int64) ([]eventlog.ChannelSummary, error)
	Events(ctx context.Context, req EventsRequest) ([]eventlog.Event, error)
	Poll(ctx context.Context, req PollRequest) (PollResult, error)
	Commit(ctx context.Context, consumer, channel string, lastEventID int64) error
	ResetConsumer(ctx context.Context, consumer, channel string) error
	Offset(ctx context.Context, consumer, channel string) (int64, error)
	Overview(ctx context.Context, channel string) (overview.Snapshot, error)
	Reset(ctx context.Context) error
}
