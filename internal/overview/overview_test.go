package overview

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rzbill/eventbus/internal/eventlog"
	pebblestore "github.com/rzbill/eventbus/internal/storage/pebble"
)

func newStore(t *testing.T, initial ...string) *eventlog.Store {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s, err := eventlog.Open(context.Background(), db, eventlog.Options{
		InitialChannels:  initial,
		ThroughputWindow: time.Minute,
		Clock:            func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func summaries(t *testing.T, s *eventlog.Store) []eventlog.ChannelSummary {
	t.Helper()
	sums, err := s.ListChannelSummaries(0)
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	return sums
}

func appendN(t *testing.T, s *eventlog.Store, channel string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := s.Append(context.Background(), channel, "tick", json.RawMessage(fmt.Sprintf(`{"n":%d}`, i))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func TestBuildPrefersFirstChannelWithEvents(t *testing.T) {
	s := newStore(t, "general", "ventas")
	appendN(t, s, "ventas", 12)
	agg := New(s, Options{})

	snap, err := agg.Build(context.Background(), "")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if snap.Channel != "ventas" {
		t.Fatalf("want ventas, got %s", snap.Channel)
	}
	if snap.EventCount != 12 || snap.HighWatermark != 12 || snap.TotalEvents != 12 || snap.ChannelCount != 2 {
		t.Fatalf("unexpected counts: %+v", snap)
	}
	if len(snap.RecentEvents) != 10 || snap.RecentEvents[0].ID != 12 || snap.RecentEvents[9].ID != 3 {
		t.Fatalf("recent events should be the newest 10, newest first")
	}
	if snap.LastEvent == nil || snap.LastEvent.ID != 12 {
		t.Fatalf("last event: %+v", snap.LastEvent)
	}
	if snap.Throughput != 12 {
		t.Fatalf("throughput: %d", snap.Throughput)
	}
}

func TestBuildFallsBackToFirstRegisteredThenDefault(t *testing.T) {
	s := newStore(t, "alpha", "beta")
	snap, err := New(s, Options{}).Build(context.Background(), "")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if snap.Channel != "alpha" || snap.LastEvent != nil || snap.HighWatermark != 0 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	empty := newStore(t)
	snap, err = New(empty, Options{FallbackChannel: "general"}).Build(context.Background(), "")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if snap.Channel != "general" || snap.ChannelCount != 0 {
		t.Fatalf("unexpected fallback snapshot: %+v", snap)
	}
	if got := summaries(t, empty); len(got) != 0 {
		t.Fatalf("overview must not create channels, got %+v", got)
	}
}

func TestBuildAnnotatesPending(t *testing.T) {
	s := newStore(t, "general")
	ctx := context.Background()
	appendN(t, s, "general", 5)
	fast, _ := s.Consumer(ctx, "fast", "general")
	slow, _ := s.Consumer(ctx, "slow", "general")
	if _, err := fast.Poll(ctx, eventlog.PollOptions{}); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if err := slow.Commit(ctx, 2); err != nil {
		t.Fatalf("commit: %v", err)
	}
	ahead, _ := s.Consumer(ctx, "ahead", "general")
	if err := ahead.Commit(ctx, 50); err != nil {
		t.Fatalf("commit: %v", err)
	}

	snap, err := New(s, Options{}).Build(ctx, "general")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := map[string]int64{"fast": 0, "slow": 3, "ahead": 0}
	if len(snap.Consumers) != len(want) {
		t.Fatalf("consumers: %+v", snap.Consumers)
	}
	for _, c := range snap.Consumers {
		if c.Pending != want[c.Consumer] {
			t.Fatalf("%s pending %d, want %d", c.Consumer, c.Pending, want[c.Consumer])
		}
	}
}

func TestBuildDoesNotRecordThroughput(t *testing.T) {
	s := newStore(t, "general")
	appendN(t, s, "general", 1)
	agg := New(s, Options{})
	for i := 0; i < 3; i++ {
		if _, err := agg.Build(context.Background(), "general"); err != nil {
			t.Fatalf("build: %v", err)
		}
	}
	if got := summaries(t, s)[0].Throughput; got != 1 {
		t.Fatalf("overview reads counted as throughput: %d", got)
	}
	if _, err := agg.Build(context.Background(), "unknown"); err != nil {
		t.Fatalf("build unknown: %v", err)
	}
	if len(summaries(t, s)) != 1 {
		t.Fatalf("explicit unknown channel must not be created")
	}
}
