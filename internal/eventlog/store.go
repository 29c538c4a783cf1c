package eventlog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	pebblestore "github.com/rzbill/eventbus/internal/storage/pebble"
	"github.com/rzbill/eventbus/pkg/errmodel"
	logpkg "github.com/rzbill/eventbus/pkg/log"
)

// DefaultChannelPattern accepts the names the store can key safely.
const DefaultChannelPattern = `^[A-Za-z0-9._:-]{1,128}$`

// Options configures a Store.
type Options struct {
	// InitialChannels are registered on open and re-created by Reset.
	InitialChannels []string
	// ChannelPattern overrides DefaultChannelPattern. Names containing '/'
	// are rejected regardless of the pattern.
	ChannelPattern string
	// ThroughputWindow is the longest window summaries can report on; longer
	// windows are rejected.
	ThroughputWindow time.Duration
	// StrictCommit rejects commits beyond a channel's high-watermark.
	StrictCommit bool
	// Clock supplies capture times. Defaults to time.Now.
	Clock  func() time.Time
	Logger logpkg.Logger
}

// channel is the in-memory state of one registered channel.
type channel struct {
	name      string
	order     uint64
	createdAt time.Time

	mu       sync.Mutex // serializes appends
	lastID   atomic.Int64
	notifyCh chan struct{}
	ops      *opWindow
}

type channelMeta struct {
	Name        string `json:"name"`
	CreatedAtMs int64  `json:"createdAtMs"`
	Order       uint64 `json:"order"`
}

type cursorKey struct{ consumer, channel string }

// Store is the durable channel store. Appends are serialized per channel,
// cursor writes per (consumer, channel), and Reset excludes everything else.
type Store struct {
	db      *pebblestore.DB
	opts    Options
	nameRE  *regexp.Regexp
	now     func() time.Time
	logger  logpkg.Logger
	resetMu sync.RWMutex
	// generation counts resets; it only changes with resetMu held for writing.
	generation atomic.Uint64

	mu          sync.Mutex // guards channels, nextOrder, cursorLocks
	channels    map[string]*channel
	nextOrder   uint64
	cursorLocks map[cursorKey]*sync.Mutex
}

// Open loads the channel registry from db and registers the initial channels.
func Open(ctx context.Context, db *pebblestore.DB, opts Options) (*Store, error) {
	pattern := opts.ChannelPattern
	if pattern == "" {
		pattern = DefaultChannelPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if opts.ThroughputWindow <= 0 {
		opts.ThroughputWindow = time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	s := &Store{
		db:          db,
		opts:        opts,
		nameRE:      re,
		now:         opts.Clock,
		logger:      logger.WithComponent("eventlog"),
		channels:    make(map[string]*channel),
		cursorLocks: make(map[cursorKey]*sync.Mutex),
	}
	if err := s.loadRegistry(); err != nil {
		return nil, err
	}
	if err := s.ensureInitial(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadRegistry() error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: chanMetaPref,
		UpperBound: pebblestore.PrefixUpperBound(chanMetaPref),
	})
	if err != nil {
		return err
	}
	for iter.First(); iter.Valid(); iter.Next() {
		var m channelMeta
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			_ = iter.Close()
			return errmodel.Storage("corrupt_channel_meta", err)
		}
		last, err := s.db.Get(KeyLastID(m.Name))
		if err != nil && !errors.Is(err, pebblestore.ErrNotFound) {
			_ = iter.Close()
			return err
		}
		ch := s.newChannel(m.Name, m.Order, time.UnixMilli(m.CreatedAtMs))
		if len(last) >= 8 {
			ch.lastID.Store(int64(binary.BigEndian.Uint64(last[:8])))
		}
		s.channels[m.Name] = ch
		if m.Order >= s.nextOrder {
			s.nextOrder = m.Order + 1
		}
	}
	if err := iter.Error(); err != nil {
		_ = iter.Close()
		return err
	}
	return iter.Close()
}

func (s *Store) newChannel(name string, order uint64, createdAt time.Time) *channel {
	return &channel{
		name:      name,
		order:     order,
		createdAt: createdAt,
		notifyCh:  make(chan struct{}),
		ops:       newOpWindow(s.opts.ThroughputWindow),
	}
}

func (s *Store) ensureInitial(ctx context.Context) error {
	for _, name := range s.opts.InitialChannels {
		if _, err := s.ensure(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// ValidateChannel reports whether name is usable as a channel name.
func (s *Store) ValidateChannel(name string) error {
	if name == "" {
		return errmodel.Validation("invalid_channel", "channel name is required", nil)
	}
	if strings.ContainsRune(name, '/') {
		return errmodel.Validation("invalid_channel", "channel name must not contain '/'", map[string]any{"channel": name})
	}
	if !s.nameRE.MatchString(name) {
		return errmodel.Validation("invalid_channel", "channel name is not allowed", map[string]any{"channel": name, "pattern": s.nameRE.String()})
	}
	return nil
}

// EnsureChannel registers name if it is not known yet. Existing channels are
// left untouched.
func (s *Store) EnsureChannel(ctx context.Context, name string) error {
	if err := s.ValidateChannel(name); err != nil {
		return err
	}
	s.resetMu.RLock()
	defer s.resetMu.RUnlock()
	_, err := s.ensure(ctx, name)
	return err
}

// ensure must be called with resetMu held (either mode) and a validated name.
func (s *Store) ensure(ctx context.Context, name string) (*channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.channels[name]; ok {
		return ch, nil
	}
	now := s.now()
	meta, err := json.Marshal(channelMeta{Name: name, CreatedAtMs: now.UnixMilli(), Order: s.nextOrder})
	if err != nil {
		return nil, err
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(KeyChannelMeta(name), meta, nil); err != nil {
		return nil, err
	}
	if err := b.Set(KeyLastID(name), appendBE8(nil, 0), nil); err != nil {
		return nil, err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return nil, err
	}
	ch := s.newChannel(name, s.nextOrder, now)
	s.nextOrder++
	s.channels[name] = ch
	s.logger.Debug("channel registered", logpkg.Str("channel", name))
	return ch, nil
}

func (s *Store) lookup(name string) *channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[name]
}

// ordered returns the registered channels in registration order.
func (s *Store) ordered() []*channel {
	s.mu.Lock()
	out := make([]*channel, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, ch)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}

// Append assigns the next id on channel and persists the event together with
// the updated counter in one batch. The id becomes visible only after the
// batch commits.
func (s *Store) Append(ctx context.Context, channelName, eventType string, payload json.RawMessage) (Event, error) {
	if err := s.ValidateChannel(channelName); err != nil {
		return Event{}, err
	}
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	if !json.Valid(payload) {
		return Event{}, errmodel.Validation("invalid_payload", "payload must be valid JSON", map[string]any{"channel": channelName})
	}

	s.resetMu.RLock()
	defer s.resetMu.RUnlock()
	ch, err := s.ensure(ctx, channelName)
	if err != nil {
		return Event{}, err
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	id := ch.lastID.Load() + 1
	ts := s.now()
	b := s.db.NewBatch()
	defer b.Close()
	rec := EncodeRecord(encodeHeader(ts.UnixNano(), eventType), payload)
	if err := b.Set(KeyEntry(channelName, uint64(id)), rec, nil); err != nil {
		return Event{}, err
	}
	if err := b.Set(KeyLastID(channelName), appendBE8(nil, uint64(id)), nil); err != nil {
		return Event{}, err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return Event{}, err
	}
	ch.lastID.Store(id)
	close(ch.notifyCh)
	ch.notifyCh = make(chan struct{})
	ch.ops.record(ts)

	return Event{
		ID:        id,
		Channel:   channelName,
		Type:      eventType,
		Payload:   append(json.RawMessage(nil), payload...),
		Timestamp: time.Unix(0, ts.UnixNano()).UTC(),
	}, nil
}

// ListEvents returns every event of channel in id order. Unknown channels are
// created.
func (s *Store) ListEvents(ctx context.Context, channelName string) ([]Event, error) {
	return s.EventsSince(ctx, channelName, 0)
}

// EventsSince returns the events with id > offset in ascending order.
// Unknown channels are created.
func (s *Store) EventsSince(ctx context.Context, channelName string, offset int64) ([]Event, error) {
	events, _, err := s.EventsSinceGeneration(ctx, channelName, offset)
	return events, err
}

// EventsSinceGeneration is EventsSince that also reports the reset
// generation the events were read under.
func (s *Store) EventsSinceGeneration(ctx context.Context, channelName string, offset int64) ([]Event, uint64, error) {
	if err := s.ValidateChannel(channelName); err != nil {
		return nil, 0, err
	}
	if offset < 0 {
		return nil, 0, errmodel.Validation("invalid_offset", "offset must be a non-negative integer", map[string]any{"offset": offset})
	}
	s.resetMu.RLock()
	defer s.resetMu.RUnlock()
	gen := s.generation.Load()
	ch, err := s.ensure(ctx, channelName)
	if err != nil {
		return nil, gen, err
	}
	events, err := s.readSince(channelName, offset, 0)
	if err != nil {
		return nil, gen, err
	}
	ch.ops.record(s.now())
	return events, gen, nil
}

// Generation returns the number of resets since the store was opened.
func (s *Store) Generation() uint64 { return s.generation.Load() }

// HighWatermark returns the last assigned id of channel, 0 when unknown.
func (s *Store) HighWatermark(channelName string) int64 {
	if ch := s.lookup(channelName); ch != nil {
		return ch.lastID.Load()
	}
	return 0
}

// ListChannelSummaries reports every channel in registration order. A
// non-positive window uses the configured throughput window; a longer one
// is a validation error.
func (s *Store) ListChannelSummaries(window time.Duration) ([]ChannelSummary, error) {
	s.resetMu.RLock()
	defer s.resetMu.RUnlock()
	return s.summaries(window)
}

// ThroughputWindow returns the longest window summaries can report on.
func (s *Store) ThroughputWindow() time.Duration { return s.opts.ThroughputWindow }

func (s *Store) summaries(window time.Duration) ([]ChannelSummary, error) {
	if window <= 0 {
		window = s.opts.ThroughputWindow
	}
	if window > s.opts.ThroughputWindow {
		return nil, errmodel.Validation("invalid_window", "window is longer than the retained throughput history",
			map[string]any{"windowMs": window.Milliseconds(), "maxWindowMs": s.opts.ThroughputWindow.Milliseconds()})
	}
	now := s.now()
	chans := s.ordered()
	out := make([]ChannelSummary, 0, len(chans))
	for _, ch := range chans {
		out = append(out, ChannelSummary{
			Name:       ch.name,
			Count:      ch.lastID.Load(),
			Throughput: ch.ops.count(now, window),
		})
	}
	return out, nil
}

// Reset wipes every channel, event and cursor, then re-registers the initial
// channels. No other operation runs while a reset is in progress.
func (s *Store) Reset(ctx context.Context) error {
	s.resetMu.Lock()
	defer s.resetMu.Unlock()

	if err := s.db.DeletePrefixes(ctx, resetPrefixes()...); err != nil {
		return err
	}
	s.mu.Lock()
	for _, ch := range s.channels {
		ch.mu.Lock()
		close(ch.notifyCh)
		ch.notifyCh = make(chan struct{})
		ch.mu.Unlock()
	}
	s.channels = make(map[string]*channel)
	s.cursorLocks = make(map[cursorKey]*sync.Mutex)
	s.nextOrder = 0
	s.mu.Unlock()
	s.generation.Add(1)

	s.logger.Info("store reset", logpkg.Int("initial_channels", len(s.opts.InitialChannels)))
	return s.ensureInitial(ctx)
}
