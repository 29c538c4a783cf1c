package eventlog

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	pebblestore "github.com/rzbill/eventbus/internal/storage/pebble"
	"github.com/rzbill/eventbus/pkg/errmodel"
)

// Consumer is a durable read cursor for one (consumer, channel) pair. Two
// consumers sharing a name on different channels are independent.
type Consumer struct {
	store   *Store
	name    string
	channel string
}

// PollOptions controls a single poll. The zero value polls everything and
// commits automatically.
type PollOptions struct {
	// Limit caps the batch size; 0 means unbounded.
	Limit int
	// ManualCommit leaves the offset untouched until Commit is called.
	ManualCommit bool
}

// Consumer returns the cursor for (name, channelName), creating it with
// offset 0 when it does not exist yet. The channel is created as well.
func (s *Store) Consumer(ctx context.Context, name, channelName string) (*Consumer, error) {
	if err := validateConsumer(name); err != nil {
		return nil, err
	}
	if err := s.ValidateChannel(channelName); err != nil {
		return nil, err
	}
	s.resetMu.RLock()
	defer s.resetMu.RUnlock()
	if _, err := s.ensure(ctx, channelName); err != nil {
		return nil, err
	}
	c := &Consumer{store: s, name: name, channel: channelName}
	mu := s.cursorLock(name, channelName)
	mu.Lock()
	defer mu.Unlock()
	if _, found, err := s.loadCursor(channelName, name); err != nil {
		return nil, err
	} else if !found {
		if err := s.saveCursor(ctx, channelName, name, 0); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func validateConsumer(name string) error {
	if name == "" {
		return errmodel.Validation("invalid_consumer", "consumer name is required", nil)
	}
	if len(name) > 256 {
		return errmodel.Validation("invalid_consumer", "consumer name is too long", map[string]any{"max": 256})
	}
	return nil
}

func (s *Store) cursorLock(consumer, channelName string) *sync.Mutex {
	k := cursorKey{consumer: consumer, channel: channelName}
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.cursorLocks[k]
	if !ok {
		mu = &sync.Mutex{}
		s.cursorLocks[k] = mu
	}
	return mu
}

// Name returns the consumer name.
func (c *Consumer) Name() string { return c.name }

// Channel returns the channel the cursor reads.
func (c *Consumer) Channel() string { return c.channel }

// Batch is the outcome of one poll. Offset is the cursor value once the poll
// finished, read under the same lock that produced Events.
type Batch struct {
	Events []Event `json:"events"`
	Offset int64   `json:"offset"`
}

// Poll returns the events after the current offset, truncated to Limit. With
// auto-commit the offset advances to the last returned id before returning.
func (c *Consumer) Poll(ctx context.Context, opts PollOptions) ([]Event, error) {
	b, err := c.Fetch(ctx, opts)
	return b.Events, err
}

// Fetch is Poll returning the resulting offset alongside the events.
func (c *Consumer) Fetch(ctx context.Context, opts PollOptions) (Batch, error) {
	if opts.Limit < 0 {
		return Batch{}, errmodel.Validation("invalid_limit", "limit must be a non-negative integer", map[string]any{"limit": opts.Limit})
	}
	s := c.store
	s.resetMu.RLock()
	defer s.resetMu.RUnlock()
	ch, err := s.ensure(ctx, c.channel)
	if err != nil {
		return Batch{}, err
	}
	mu := s.cursorLock(c.name, c.channel)
	mu.Lock()
	defer mu.Unlock()

	offset, _, err := s.loadCursor(c.channel, c.name)
	if err != nil {
		return Batch{}, err
	}
	events, err := s.readSince(c.channel, offset, opts.Limit)
	if err != nil {
		return Batch{}, err
	}
	ch.ops.record(s.now())
	if !opts.ManualCommit && len(events) > 0 {
		offset = events[len(events)-1].ID
		if err := s.saveCursor(ctx, c.channel, c.name, offset); err != nil {
			return Batch{}, err
		}
	}
	return Batch{Events: events, Offset: offset}, nil
}

// Commit sets the offset to lastEventID. Moving backwards is allowed and
// replays from that point.
func (c *Consumer) Commit(ctx context.Context, lastEventID int64) error {
	if lastEventID < 0 {
		return errmodel.Validation("invalid_offset", "lastEventId must be a non-negative integer", map[string]any{"lastEventId": lastEventID})
	}
	s := c.store
	s.resetMu.RLock()
	defer s.resetMu.RUnlock()
	if _, err := s.ensure(ctx, c.channel); err != nil {
		return err
	}
	if s.opts.StrictCommit {
		if hwm := s.HighWatermark(c.channel); lastEventID > hwm {
			return errmodel.Validation("commit_beyond_head", "lastEventId is beyond the channel high-watermark",
				map[string]any{"lastEventId": lastEventID, "highWatermark": hwm})
		}
	}
	mu := s.cursorLock(c.name, c.channel)
	mu.Lock()
	defer mu.Unlock()
	return s.saveCursor(ctx, c.channel, c.name, lastEventID)
}

// Reset rewinds the offset to 0.
func (c *Consumer) Reset(ctx context.Context) error {
	s := c.store
	s.resetMu.RLock()
	defer s.resetMu.RUnlock()
	if _, err := s.ensure(ctx, c.channel); err != nil {
		return err
	}
	mu := s.cursorLock(c.name, c.channel)
	mu.Lock()
	defer mu.Unlock()
	return s.saveCursor(ctx, c.channel, c.name, 0)
}

// Offset returns the id of the last acknowledged event.
func (c *Consumer) Offset(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s := c.store
	s.resetMu.RLock()
	defer s.resetMu.RUnlock()
	if _, err := s.ensure(ctx, c.channel); err != nil {
		return 0, err
	}
	off, _, err := s.loadCursor(c.channel, c.name)
	return off, err
}

// Cursor values: offset (be8) | updated unix ms (be8).
func (s *Store) saveCursor(ctx context.Context, channelName, consumer string, offset int64) error {
	val := appendBE8(make([]byte, 0, 16), uint64(offset))
	val = appendBE8(val, uint64(s.now().UnixMilli()))
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(KeyCursor(channelName, consumer), val, nil); err != nil {
		return err
	}
	return s.db.CommitBatch(ctx, b)
}

func (s *Store) loadCursor(channelName, consumer string) (int64, bool, error) {
	raw, err := s.db.Get(KeyCursor(channelName, consumer))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	st, ok := decodeCursor(consumer, channelName, raw)
	if !ok {
		return 0, false, errmodel.Storage("corrupt_cursor", ErrCorruptRecord)
	}
	return st.Offset, true, nil
}

func decodeCursor(consumer, channelName string, raw []byte) (CursorState, bool) {
	if len(raw) < 8 {
		return CursorState{}, false
	}
	st := CursorState{
		Consumer: consumer,
		Channel:  channelName,
		Offset:   int64(binary.BigEndian.Uint64(raw[:8])),
	}
	if len(raw) >= 16 {
		st.UpdatedAt = time.UnixMilli(int64(binary.BigEndian.Uint64(raw[8:16]))).UTC()
	}
	return st, true
}

// cursorsOn lists every persisted cursor of a channel ordered by consumer name.
func (s *Store) cursorsOn(channelName string) (out []CursorState, err error) {
	prefix := KeyCursorPrefix(channelName)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: pebblestore.PrefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := iter.Close(); err == nil {
			err = cerr
		}
	}()
	for iter.First(); iter.Valid(); iter.Next() {
		consumer := string(iter.Key()[len(prefix):])
		st, ok := decodeCursor(consumer, channelName, iter.Value())
		if !ok {
			return nil, errmodel.Storage("corrupt_cursor", ErrCorruptRecord)
		}
		out = append(out, st)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return out, nil
}
