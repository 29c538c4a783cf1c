package bussvc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/eventbus/internal/config"
	"github.com/rzbill/eventbus/internal/eventlog"
	"github.com/rzbill/eventbus/internal/runtime"
	pebblestore "github.com/rzbill/eventbus/internal/storage/pebble"
	"github.com/rzbill/eventbus/pkg/errmodel"
	logpkg "github.com/rzbill/eventbus/pkg/log"
)

func newServiceForTest(t *testing.T) *Service {
	t.Helper()
	rt, err := runtime.Open(context.Background(), runtime.Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeAlways,
		Config:  cfgpkg.Default(),
	})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return NewWithLogger(rt, logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{})))
}

func publish(t *testing.T, svc *Service, channel, typ, payload string) eventlog.Event {
	t.Helper()
	ev, err := svc.Publish(context.Background(), channel, typ, json.RawMessage(payload))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	return ev
}

func TestPublishPollCommit(t *testing.T) {
	svc := newServiceForTest(t)
	ctx := context.Background()
	publish(t, svc, "general", "order.created", `{"orderId":"A-1"}`)
	publish(t, svc, "general", "order.paid", `{"orderId":"A-1"}`)

	batch, err := svc.Poll(ctx, "worker", "general", eventlog.PollOptions{})
	if err != nil || len(batch.Events) != 2 || batch.Offset != 2 {
		t.Fatalf("poll: %+v %v", batch, err)
	}
	off, err := svc.Offset(ctx, "worker", "general")
	if err != nil || off != 2 {
		t.Fatalf("offset: %d %v", off, err)
	}
	if err := svc.Commit(ctx, "worker", "general", 1); err != nil {
		t.Fatalf("commit: %v", err)
	}
	batch, err = svc.Poll(ctx, "worker", "general", eventlog.PollOptions{})
	if err != nil || len(batch.Events) != 1 || batch.Events[0].Type != "order.paid" || batch.Offset != 2 {
		t.Fatalf("poll after commit: %+v %v", batch, err)
	}
	if err := svc.ResetConsumer(ctx, "worker", "general"); err != nil {
		t.Fatalf("reset consumer: %v", err)
	}
	if off, _ := svc.Offset(ctx, "worker", "general"); off != 0 {
		t.Fatalf("offset after reset: %d", off)
	}
	if err := svc.Commit(ctx, "worker", "general", -3); !errmodel.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSearchWithCELFilter(t *testing.T) {
	svc := newServiceForTest(t)
	ctx := context.Background()
	publish(t, svc, "ventas", "order.created", `{"orderId":"A-1","total":10}`)
	publish(t, svc, "ventas", "order.created", `{"orderId":"A-2","total":90}`)
	publish(t, svc, "ventas", "order.cancelled", `{"orderId":"A-1"}`)

	hits, err := svc.Search(ctx, "ventas", 0, `event_type == "order.created" && payload.total > 50`, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != 2 {
		t.Fatalf("unexpected hits: %+v", hits)
	}
	hits, err = svc.Search(ctx, "ventas", 1, "", 1)
	if err != nil || len(hits) != 1 || hits[0].ID != 2 {
		t.Fatalf("since/limit: %+v %v", hits, err)
	}
	if _, err := svc.Search(ctx, "ventas", 0, `event_type ==`, 0); !errmodel.IsValidation(err) {
		t.Fatalf("expected invalid filter validation error, got %v", err)
	}
	if off, _ := svc.Offset(ctx, "reader", "ventas"); off != 0 {
		t.Fatalf("search must not move cursors")
	}
}

func TestOverviewAndReset(t *testing.T) {
	svc := newServiceForTest(t)
	ctx := context.Background()
	publish(t, svc, "ventas", "order.created", `{}`)
	if _, err := svc.Poll(ctx, "crm", "ventas", eventlog.PollOptions{ManualCommit: true}); err != nil {
		t.Fatalf("poll: %v", err)
	}

	snap, err := svc.Overview(ctx, "")
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if snap.Channel != "ventas" || len(snap.Consumers) != 1 || snap.Consumers[0].Pending != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	if err := svc.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	sums, err := svc.Channels(ctx, 0)
	if err != nil || len(sums) != 1 || sums[0].Name != "general" {
		t.Fatalf("expected only general after reset: %+v", sums)
	}
}

type collectSink struct {
	mu     sync.Mutex
	events []eventlog.Event
	got    chan struct{}
}

func (s *collectSink) Send(ev eventlog.Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	s.got <- struct{}{}
	return nil
}

func (s *collectSink) Heartbeat() error { return nil }

func TestSubscribeStreamsFilteredEvents(t *testing.T) {
	svc := newServiceForTest(t)
	publish(t, svc, "general", "old", `{}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &collectSink{got: make(chan struct{}, 8)}
	done := make(chan error, 1)
	go func() {
		done <- svc.Subscribe(ctx, "general", SubscribeOptions{Since: -1, Filter: `event_type != "skip"`, Wait: 50 * time.Millisecond}, sink)
	}()

	time.Sleep(50 * time.Millisecond)
	publish(t, svc, "general", "skip", `{}`)
	publish(t, svc, "general", "keep", `{}`)

	select {
	case <-sink.got:
	case <-time.After(2 * time.Second):
		t.Fatalf("no event delivered")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) != 1 || sink.events[0].Type != "keep" || sink.events[0].ID != 3 {
		t.Fatalf("unexpected events: %+v", sink.events)
	}
}

type failingSink struct{}

func (failingSink) Send(eventlog.Event) error { return errors.New("gone") }
func (failingSink) Heartbeat() error          { return errors.New("gone") }

func TestSubscribeStopsOnSinkError(t *testing.T) {
	svc := newServiceForTest(t)
	publish(t, svc, "general", "a", `{}`)
	err := svc.Subscribe(context.Background(), "general", SubscribeOptions{Since: 0}, failingSink{})
	if err == nil || err.Error() != "gone" {
		t.Fatalf("expected sink error, got %v", err)
	}
}

// gateSink parks inside Send on the event with id blockOn until release is
// closed.
type gateSink struct {
	mu      sync.Mutex
	events  []eventlog.Event
	blockOn int64
	reached chan struct{}
	release chan struct{}
	got     chan struct{}
}

func (s *gateSink) Send(ev eventlog.Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	if ev.Type == "before" && ev.ID == s.blockOn {
		close(s.reached)
		<-s.release
	}
	s.got <- struct{}{}
	return nil
}

func (s *gateSink) Heartbeat() error { return nil }

func TestSubscribeRestartsAfterResetDuringSend(t *testing.T) {
	svc := newServiceForTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for i := 0; i < 3; i++ {
		publish(t, svc, "general", "before", `{}`)
	}

	sink := &gateSink{
		blockOn: 3,
		reached: make(chan struct{}),
		release: make(chan struct{}),
		got:     make(chan struct{}, 16),
	}
	done := make(chan error, 1)
	go func() {
		done <- svc.Subscribe(ctx, "general", SubscribeOptions{Since: 0, Wait: 50 * time.Millisecond}, sink)
	}()

	select {
	case <-sink.reached:
	case <-time.After(2 * time.Second):
		t.Fatalf("subscriber never reached event 3")
	}
	if err := svc.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	for i := 0; i < 5; i++ {
		publish(t, svc, "general", "after", `{}`)
	}
	close(sink.release)

	for i := 0; i < 8; i++ {
		select {
		case <-sink.got:
		case <-time.After(2 * time.Second):
			sink.mu.Lock()
			t.Fatalf("only %d events delivered: %+v", len(sink.events), sink.events)
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) != 8 {
		t.Fatalf("want 8 events, got %+v", sink.events)
	}
	for i, ev := range sink.events[3:] {
		if ev.Type != "after" || ev.ID != int64(i+1) {
			t.Fatalf("event %d after reset: %+v", i, ev)
		}
	}
}

func TestChannelsRejectsWindowBeyondRetention(t *testing.T) {
	svc := newServiceForTest(t)
	ctx := context.Background()
	window := svc.Config().ThroughputWindow()
	if _, err := svc.Channels(ctx, window); err != nil {
		t.Fatalf("configured window: %v", err)
	}
	_, err := svc.Channels(ctx, window+time.Millisecond)
	if ce := errmodel.From(err); ce.Category != errmodel.CategoryValidation || ce.Code != "invalid_window" {
		t.Fatalf("expected invalid_window, got %v", err)
	}
}
