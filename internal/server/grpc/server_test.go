package grpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/eventbus/internal/config"
	"github.com/rzbill/eventbus/internal/eventlog"
	"github.com/rzbill/eventbus/internal/runtime"
	bussvc "github.com/rzbill/eventbus/internal/services/bus"
	pebblestore "github.com/rzbill/eventbus/internal/storage/pebble"
	"github.com/rzbill/eventbus/pkg/errmodel"
	logpkg "github.com/rzbill/eventbus/pkg/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

const bufSize = 1 << 20

func newConn(t *testing.T) *grpc.ClientConn {
	t.Helper()
	rt, err := runtime.Open(context.Background(), runtime.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	logger := logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	srv := New(bussvc.NewWithLogger(rt, logger), logger)
	lis := bufconn.Listen(bufSize)
	go func() { _ = srv.grpc.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		srv.Close()
		_ = rt.Close()
	})
	return conn
}

func call(t *testing.T, conn *grpc.ClientConn, method string, req any, out any) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	in, err := Encode(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	resp := new(structpb.Struct)
	if err := conn.Invoke(ctx, FullMethod(method), in, resp); err != nil {
		return err
	}
	if out != nil {
		if err := Decode(resp, out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return nil
}

func TestHealthOverGRPC(t *testing.T) {
	conn := newConn(t)
	var res struct {
		Status string `json:"status"`
	}
	if err := call(t, conn, MethodHealth, map[string]any{}, &res); err != nil {
		t.Fatalf("health: %v", err)
	}
	if res.Status != "ok" {
		t.Fatalf("status: %q", res.Status)
	}
}

func TestPublishPollCommitOverGRPC(t *testing.T) {
	conn := newConn(t)
	for _, ch := range []string{"general", "general", "ventas"} {
		var ev eventlog.Event
		if err := call(t, conn, MethodPublish, map[string]any{"channel": ch, "type": "order.created", "payload": map[string]any{"total": 12.5}}, &ev); err != nil {
			t.Fatalf("publish: %v", err)
		}
		if ch == "ventas" && ev.ID != 1 {
			t.Fatalf("ventas numbering should start at 1, got %d", ev.ID)
		}
	}

	var poll struct {
		Events []eventlog.Event `json:"events"`
		Offset int64            `json:"offset"`
	}
	if err := call(t, conn, MethodPoll, map[string]any{"consumer": "crm", "channel": "general", "limit": 1, "autoCommit": false}, &poll); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(poll.Events) != 1 || poll.Events[0].ID != 1 || poll.Offset != 0 {
		t.Fatalf("manual poll: %+v", poll)
	}
	if string(poll.Events[0].Payload) != `{"total":12.5}` {
		t.Fatalf("payload: %s", poll.Events[0].Payload)
	}

	if err := call(t, conn, MethodCommit, map[string]any{"consumer": "crm", "channel": "general", "lastEventId": 1}, nil); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := call(t, conn, MethodPoll, map[string]any{"consumer": "crm", "channel": "general"}, &poll); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(poll.Events) != 1 || poll.Events[0].ID != 2 || poll.Offset != 2 {
		t.Fatalf("auto poll: %+v", poll)
	}

	var off struct {
		Offset int64 `json:"offset"`
	}
	if err := call(t, conn, MethodResetConsumer, map[string]any{"consumer": "crm", "channel": "general"}, nil); err != nil {
		t.Fatalf("reset consumer: %v", err)
	}
	if err := call(t, conn, MethodOffset, map[string]any{"consumer": "crm", "channel": "general"}, &off); err != nil || off.Offset != 0 {
		t.Fatalf("offset: %d %v", off.Offset, err)
	}
}

func TestValidationMapsToInvalidArgument(t *testing.T) {
	conn := newConn(t)
	err := call(t, conn, MethodPublish, map[string]any{"channel": "bad/name", "payload": 1}, nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	ce := errmodel.From(FromStatus(err))
	if ce.Category != errmodel.CategoryValidation || ce.Code != "invalid_channel" {
		t.Fatalf("detail lost: %+v", ce)
	}

	err = call(t, conn, MethodCommit, map[string]any{"consumer": "crm", "channel": "general"}, nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("missing lastEventId: %v", err)
	}
	err = call(t, conn, MethodPoll, map[string]any{"consumer": "crm", "channel": "general", "limit": "many"}, nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("bad envelope: %v", err)
	}
}

func TestOverviewEventsAndResetOverGRPC(t *testing.T) {
	conn := newConn(t)
	_ = call(t, conn, MethodPublish, map[string]any{"channel": "ventas", "type": "a", "payload": map[string]any{}}, nil)
	_ = call(t, conn, MethodPublish, map[string]any{"channel": "ventas", "type": "b", "payload": map[string]any{}}, nil)

	var snap struct {
		Channel       string `json:"channel"`
		HighWatermark int64  `json:"highWatermark"`
	}
	if err := call(t, conn, MethodOverview, map[string]any{}, &snap); err != nil {
		t.Fatalf("overview: %v", err)
	}
	if snap.Channel != "ventas" || snap.HighWatermark != 2 {
		t.Fatalf("snapshot: %+v", snap)
	}

	var evs struct {
		Events []eventlog.Event `json:"events"`
	}
	if err := call(t, conn, MethodEvents, map[string]any{"channel": "ventas", "filter": `event_type == "b"`}, &evs); err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evs.Events) != 1 || evs.Events[0].ID != 2 {
		t.Fatalf("filtered: %+v", evs.Events)
	}

	if err := call(t, conn, MethodReset, map[string]any{}, nil); err != nil {
		t.Fatalf("reset: %v", err)
	}
	var chans struct {
		Channels []eventlog.ChannelSummary `json:"channels"`
	}
	if err := call(t, conn, MethodChannels, map[string]any{}, &chans); err != nil {
		t.Fatalf("channels: %v", err)
	}
	if len(chans.Channels) != 1 || chans.Channels[0].Name != "general" {
		t.Fatalf("channels after reset: %+v", chans.Channels)
	}
}

func TestRequestIDHeader(t *testing.T) {
	conn := newConn(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), RequestIDKey, "req-1")
	var header metadata.MD
	if err := conn.Invoke(ctx, FullMethod(MethodHealth), &structpb.Struct{}, new(structpb.Struct), grpc.Header(&header)); err != nil {
		t.Fatalf("health: %v", err)
	}
	if got := header.Get(RequestIDKey); len(got) != 1 || got[0] != "req-1" {
		t.Fatalf("request id header: %v", got)
	}
}

func TestChannelsWindowBeyondRetention(t *testing.T) {
	conn := newConn(t)
	err := call(t, conn, MethodChannels, map[string]any{"windowMs": 24 * 60 * 60 * 1000}, nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if ce := errmodel.From(FromStatus(err)); ce.Code != "invalid_window" {
		t.Fatalf("detail lost: %+v", ce)
	}
}
