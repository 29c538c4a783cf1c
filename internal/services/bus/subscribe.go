package bussvc

import (
	"context"
	"time"

	"github.com/rzbill/eventbus/internal/eventlog"
	logpkg "github.com/rzbill/eventbus/pkg/log"
)

// EventSink receives events streamed by Subscribe.
type EventSink interface {
	Send(eventlog.Event) error
	// Heartbeat is called when no event arrived within the wait interval.
	Heartbeat() error
}

// SubscribeOptions controls a tail subscription.
type SubscribeOptions struct {
	// Since streams events with id > Since; negative starts at the current head.
	Since  int64
	Filter string
	// Wait bounds each blocking wait before a heartbeat.
	Wait time.Duration
}

// Subscribe streams events of channel to sink until ctx is done or the sink
// fails. It holds no cursor; callers resume with the last id they saw.
func (s *Service) Subscribe(ctx context.Context, channel string, opts SubscribeOptions, sink EventSink) error {
	f, err := newCELFilter(opts.Filter)
	if err != nil {
		return err
	}
	store := s.rt.Store()
	if err := store.EnsureChannel(ctx, channel); err != nil {
		return err
	}
	wait := opts.Wait
	if wait <= 0 {
		wait = 15 * time.Second
	}
	seen := store.Generation()
	last := opts.Since
	if last < 0 {
		last = store.HighWatermark(channel)
	}
	logger := s.logger.WithContext(ctx).With(logpkg.Str("channel", channel))
	logger.Debug("subscriber attached", logpkg.Int64("since", last))
	defer logger.Debug("subscriber detached", logpkg.Int64("last_id", last))

	for {
		if ctx.Err() != nil {
			return nil
		}
		// A reset restarts numbering at 1; start over on the new sequence.
		if gen := store.Generation(); gen != seen {
			logger.Debug("store reset observed", logpkg.Int64("last_id", last))
			seen, last = gen, 0
		}
		if store.HighWatermark(channel) > last {
			evs, gen, err := store.EventsSinceGeneration(ctx, channel, last)
			if err != nil {
				return err
			}
			if gen != seen {
				continue
			}
			now := time.Now()
			for _, ev := range evs {
				last = ev.ID
				if !f.Eval(ev, now) {
					continue
				}
				if err := sink.Send(ev); err != nil {
					return err
				}
			}
			continue
		}
		if !store.WaitForAppend(ctx, channel, wait) {
			if ctx.Err() != nil {
				return nil
			}
			if err := sink.Heartbeat(); err != nil {
				return err
			}
		}
	}
}
