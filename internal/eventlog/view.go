package eventlog

import (
	"context"
	"time"
)

// View is a read-only window onto the store. Nothing read through a View
// creates channels or counts towards throughput.
type View struct {
	s *Store
}

// Inspect runs fn against a consistent View; Reset cannot interleave with fn.
func (s *Store) Inspect(ctx context.Context, fn func(View) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.resetMu.RLock()
	defer s.resetMu.RUnlock()
	return fn(View{s: s})
}

// Channels returns channel names in registration order.
func (v View) Channels() []string {
	chans := v.s.ordered()
	out := make([]string, len(chans))
	for i, ch := range chans {
		out[i] = ch.name
	}
	return out
}

// HighWatermark returns the last id of channel, 0 when empty or unknown.
func (v View) HighWatermark(channel string) int64 { return v.s.HighWatermark(channel) }

// Events returns every event of channel; unknown channels read as empty.
func (v View) Events(channel string) ([]Event, error) {
	if v.s.lookup(channel) == nil {
		return nil, nil
	}
	return v.s.readSince(channel, 0, 0)
}

// Recent returns up to n events newest first.
func (v View) Recent(channel string, n int) ([]Event, error) {
	if n <= 0 || v.s.lookup(channel) == nil {
		return nil, nil
	}
	return v.s.readRecent(channel, n)
}

// Cursors returns every consumer cursor on channel.
func (v View) Cursors(channel string) ([]CursorState, error) {
	return v.s.cursorsOn(channel)
}

// Summaries reports all channels with throughput over window.
func (v View) Summaries(window time.Duration) ([]ChannelSummary, error) {
	return v.s.summaries(window)
}

// Now is the store clock.
func (v View) Now() time.Time { return v.s.now() }
