package eventlog

import (
	"context"
	"reflect"
	"sync"
	"testing"

	"github.com/rzbill/eventbus/pkg/errmodel"
)

func TestWorkerPollScenario(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	mustAppend(t, s, "general", "a", `1`)
	mustAppend(t, s, "general", "a", `2`)

	c, err := s.Consumer(ctx, "worker", "general")
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	batch, err := c.Poll(ctx, PollOptions{})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if !reflect.DeepEqual(ids(batch), []int64{1, 2}) {
		t.Fatalf("first poll: %v", ids(batch))
	}
	if off, _ := c.Offset(ctx); off != 2 {
		t.Fatalf("offset after poll: %d", off)
	}
	batch, err = c.Poll(ctx, PollOptions{})
	if err != nil || len(batch) != 0 {
		t.Fatalf("second poll should be empty: %v %v", ids(batch), err)
	}
	mustAppend(t, s, "general", "a", `3`)
	batch, err = c.Poll(ctx, PollOptions{})
	if err != nil || !reflect.DeepEqual(ids(batch), []int64{3}) {
		t.Fatalf("third poll: %v %v", ids(batch), err)
	}
}

func TestManualCommitScenario(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		mustAppend(t, s, "general", "a", `{}`)
	}
	c, err := s.Consumer(ctx, "crm", "general")
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	opts := PollOptions{Limit: 1, ManualCommit: true}
	first, err := c.Poll(ctx, opts)
	if err != nil || !reflect.DeepEqual(ids(first), []int64{1}) {
		t.Fatalf("first: %v %v", ids(first), err)
	}
	again, err := c.Poll(ctx, opts)
	if err != nil || !reflect.DeepEqual(again, first) {
		t.Fatalf("repeat poll should return the same event: %v %v", ids(again), err)
	}
	if off, _ := c.Offset(ctx); off != 0 {
		t.Fatalf("manual poll advanced offset to %d", off)
	}
	if err := c.Commit(ctx, first[0].ID); err != nil {
		t.Fatalf("commit: %v", err)
	}
	next, err := c.Poll(ctx, opts)
	if err != nil || !reflect.DeepEqual(ids(next), []int64{2}) {
		t.Fatalf("after commit: %v %v", ids(next), err)
	}
}

func TestCommitThenPollReturnsLaterEvents(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		mustAppend(t, s, "general", "a", `{}`)
	}
	c, err := s.Consumer(ctx, "w", "general")
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	if _, err := c.Poll(ctx, PollOptions{}); err != nil {
		t.Fatalf("poll: %v", err)
	}
	// Moving backwards replays.
	if err := c.Commit(ctx, 3); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, err := c.Poll(ctx, PollOptions{ManualCommit: true})
	if err != nil || !reflect.DeepEqual(ids(got), []int64{4, 5}) {
		t.Fatalf("poll after commit(3): %v %v", ids(got), err)
	}
	// Permissive mode accepts offsets past the head.
	if err := c.Commit(ctx, 99); err != nil {
		t.Fatalf("commit past head: %v", err)
	}
	if got, _ := c.Poll(ctx, PollOptions{}); len(got) != 0 {
		t.Fatalf("expected nothing after committing past head, got %v", ids(got))
	}
	if err := c.Commit(ctx, -1); !errmodel.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStrictCommitRejectsBeyondHead(t *testing.T) {
	s, _ := newTestStore(t, Options{StrictCommit: true})
	ctx := context.Background()
	mustAppend(t, s, "general", "a", `{}`)
	c, err := s.Consumer(ctx, "w", "general")
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	err = c.Commit(ctx, 2)
	if ce := errmodel.From(err); ce == nil || ce.Code != "commit_beyond_head" {
		t.Fatalf("expected commit_beyond_head, got %v", err)
	}
	if err := c.Commit(ctx, 1); err != nil {
		t.Fatalf("commit at head: %v", err)
	}
}

func TestPollRejectsNegativeLimit(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	c, err := s.Consumer(ctx, "w", "general")
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	if _, err := c.Poll(ctx, PollOptions{Limit: -1}); !errmodel.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := s.Consumer(ctx, "", "general"); !errmodel.IsValidation(err) {
		t.Fatalf("expected validation error for empty consumer, got %v", err)
	}
}

func TestConsumerResetReplays(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	mustAppend(t, s, "general", "a", `{}`)
	mustAppend(t, s, "general", "a", `{}`)
	c, _ := s.Consumer(ctx, "w", "general")
	if _, err := c.Poll(ctx, PollOptions{}); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if err := c.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	got, err := c.Poll(ctx, PollOptions{})
	if err != nil || len(got) != 2 {
		t.Fatalf("expected full replay, got %v %v", ids(got), err)
	}
}

func TestSameConsumerNameOnTwoChannels(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	mustAppend(t, s, "general", "a", `{}`)
	mustAppend(t, s, "general", "a", `{}`)
	mustAppend(t, s, "ventas", "a", `{}`)

	onGeneral, _ := s.Consumer(ctx, "worker", "general")
	onVentas, _ := s.Consumer(ctx, "worker", "ventas")
	if _, err := onGeneral.Poll(ctx, PollOptions{}); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if off, _ := onGeneral.Offset(ctx); off != 2 {
		t.Fatalf("general offset %d", off)
	}
	if off, _ := onVentas.Offset(ctx); off != 0 {
		t.Fatalf("ventas offset should be untouched, got %d", off)
	}
}

func TestConsumerCreationIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	mustAppend(t, s, "general", "a", `{}`)
	c, _ := s.Consumer(ctx, "w", "general")
	if err := c.Commit(ctx, 1); err != nil {
		t.Fatalf("commit: %v", err)
	}
	again, err := s.Consumer(ctx, "w", "general")
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	if off, _ := again.Offset(ctx); off != 1 {
		t.Fatalf("re-creating a consumer must keep its offset, got %d", off)
	}
}

func TestInspectHasNoSideEffects(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	mustAppend(t, s, "general", "a", `{}`)
	before := mustSummaries(t, s, 0)

	err := s.Inspect(ctx, func(v View) error {
		if evs, err := v.Events("ghost"); err != nil || len(evs) != 0 {
			t.Fatalf("ghost events: %v %v", evs, err)
		}
		recent, err := v.Recent("general", 10)
		if err != nil || len(recent) != 1 {
			t.Fatalf("recent: %v %v", recent, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	after := mustSummaries(t, s, 0)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("inspect changed state: %+v -> %+v", before, after)
	}
}

func TestCursorsListedPerChannel(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	_, _ = s.Consumer(ctx, "b", "general")
	_, _ = s.Consumer(ctx, "a", "general")
	_, _ = s.Consumer(ctx, "a", "general2")
	var got []CursorState
	_ = s.Inspect(ctx, func(v View) error {
		var err error
		got, err = v.Cursors("general")
		return err
	})
	if len(got) != 2 || got[0].Consumer != "a" || got[1].Consumer != "b" {
		t.Fatalf("unexpected cursors: %+v", got)
	}
}

func TestConcurrentPollsDeliverEachIDOnce(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	const total, pollers = 200, 8
	for i := 0; i < total; i++ {
		mustAppend(t, s, "general", "a", `{}`)
	}

	var (
		mu   sync.Mutex
		seen = make(map[int64]int)
		wg   sync.WaitGroup
	)
	for p := 0; p < pollers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := s.Consumer(ctx, "worker", "general")
			if err != nil {
				t.Errorf("consumer: %v", err)
				return
			}
			for {
				batch, err := c.Poll(ctx, PollOptions{Limit: 3})
				if err != nil {
					t.Errorf("poll: %v", err)
					return
				}
				if len(batch) == 0 {
					return
				}
				mu.Lock()
				for _, ev := range batch {
					seen[ev.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != total {
		t.Fatalf("want %d distinct ids, got %d", total, len(seen))
	}
	for id := int64(1); id <= total; id++ {
		if seen[id] != 1 {
			t.Fatalf("id %d delivered %d times", id, seen[id])
		}
	}
}

func TestFetchReportsOffsetOfBatch(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		mustAppend(t, s, "general", "a", `{}`)
	}
	c, err := s.Consumer(ctx, "worker", "general")
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	if err := c.Commit(ctx, 1); err != nil {
		t.Fatalf("commit: %v", err)
	}
	manual, err := c.Fetch(ctx, PollOptions{Limit: 2, ManualCommit: true})
	if err != nil || len(manual.Events) != 2 || manual.Offset != 1 {
		t.Fatalf("manual fetch: %+v %v", manual, err)
	}
	auto, err := c.Fetch(ctx, PollOptions{Limit: 2})
	if err != nil || len(auto.Events) != 2 || auto.Offset != 3 {
		t.Fatalf("auto fetch: %+v %v", auto, err)
	}
	tail, err := c.Fetch(ctx, PollOptions{Limit: 5})
	if err != nil || len(tail.Events) != 1 || tail.Offset != 4 {
		t.Fatalf("tail fetch: %+v %v", tail, err)
	}
}

func TestHeldConsumerReregistersChannelAfterReset(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	db := openTestDB(t, dir)
	t.Cleanup(func() { _ = db.Close() })
	opts := Options{InitialChannels: []string{"general"}}
	s, err := Open(ctx, db, opts)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	c, err := s.Consumer(ctx, "worker", "ventas")
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	mustAppend(t, s, "ventas", "a", `1`)
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if off, err := c.Offset(ctx); err != nil || off != 0 {
		t.Fatalf("offset after reset: %d %v", off, err)
	}
	if err := c.Commit(ctx, 2); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := c.Reset(ctx); err != nil {
		t.Fatalf("consumer reset: %v", err)
	}

	s2, err := Open(ctx, db, opts)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	sums := mustSummaries(t, s2, 0)
	if len(sums) != 2 || sums[1].Name != "ventas" {
		t.Fatalf("ventas not re-registered: %+v", sums)
	}
	err = s2.Inspect(ctx, func(v View) error {
		cursors, err := v.Cursors("ventas")
		if err != nil {
			return err
		}
		if len(cursors) != 1 || cursors[0].Consumer != "worker" || cursors[0].Offset != 0 {
			t.Fatalf("cursors: %+v", cursors)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
}
