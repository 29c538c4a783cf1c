// Package overview builds read-only monitoring snapshots of the event bus.
package overview

import (
	"context"
	"time"

	"github.com/rzbill/eventbus/internal/eventlog"
)

// Source is the store surface the aggregator reads through.
type Source interface {
	Inspect(ctx context.Context, fn func(eventlog.View) error) error
}

// Options tunes snapshot construction.
type Options struct {
	// FallbackChannel names the snapshot when no channel is registered.
	FallbackChannel string
	// RecentEvents caps the newest-first event list.
	RecentEvents int
	// Window is the throughput window.
	Window time.Duration
}

// ConsumerLag is a cursor annotated with how far it trails the head.
type ConsumerLag struct {
	Consumer  string    `json:"consumer"`
	Offset    int64     `json:"offset"`
	Pending   int64     `json:"pending"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Snapshot is the derived view returned to dashboards.
type Snapshot struct {
	Channel       string                    `json:"channel"`
	EventCount    int                       `json:"eventCount"`
	HighWatermark int64                     `json:"highWatermark"`
	LastEvent     *eventlog.Event           `json:"lastEvent"`
	RecentEvents  []eventlog.Event          `json:"recentEvents"`
	Consumers     []ConsumerLag             `json:"consumers"`
	ChannelCount  int                       `json:"channelCount"`
	TotalEvents   int64                     `json:"totalEvents"`
	Throughput    int                       `json:"throughput"`
	Channels      []eventlog.ChannelSummary `json:"channels"`
	GeneratedAt   time.Time                 `json:"generatedAt"`
}

// Aggregator computes snapshots on demand and keeps no state of its own.
type Aggregator struct {
	src  Source
	opts Options
}

func New(src Source, opts Options) *Aggregator {
	if opts.FallbackChannel == "" {
		opts.FallbackChannel = "general"
	}
	if opts.RecentEvents <= 0 {
		opts.RecentEvents = 10
	}
	return &Aggregator{src: src, opts: opts}
}

// Build returns the snapshot for channel, or for the resolved default
// channel when channel is empty.
func (a *Aggregator) Build(ctx context.Context, channel string) (Snapshot, error) {
	var snap Snapshot
	err := a.src.Inspect(ctx, func(v eventlog.View) error {
		summaries, err := v.Summaries(a.opts.Window)
		if err != nil {
			return err
		}
		name := channel
		if name == "" {
			name = resolve(summaries, a.opts.FallbackChannel)
		}

		events, err := v.Events(name)
		if err != nil {
			return err
		}
		recent, err := v.Recent(name, a.opts.RecentEvents)
		if err != nil {
			return err
		}
		cursors, err := v.Cursors(name)
		if err != nil {
			return err
		}

		var hwm int64
		if len(events) > 0 {
			hwm = events[len(events)-1].ID
		}
		consumers := make([]ConsumerLag, 0, len(cursors))
		for _, c := range cursors {
			consumers = append(consumers, ConsumerLag{
				Consumer:  c.Consumer,
				Offset:    c.Offset,
				Pending:   max(0, hwm-c.Offset),
				UpdatedAt: c.UpdatedAt,
			})
		}

		snap = Snapshot{
			Channel:       name,
			EventCount:    len(events),
			HighWatermark: hwm,
			RecentEvents:  recent,
			Consumers:     consumers,
			ChannelCount:  len(summaries),
			Channels:      summaries,
			GeneratedAt:   v.Now(),
		}
		if snap.RecentEvents == nil {
			snap.RecentEvents = []eventlog.Event{}
		}
		if len(events) > 0 {
			last := events[len(events)-1]
			snap.LastEvent = &last
		}
		for _, s := range summaries {
			snap.TotalEvents += s.Count
			if s.Name == name {
				snap.Throughput = s.Throughput
			}
		}
		return nil
	})
	return snap, err
}

// resolve picks the first channel with events, else the first registered
// channel, else fallback. summaries are in registration order.
func resolve(summaries []eventlog.ChannelSummary, fallback string) string {
	for _, s := range summaries {
		if s.Count > 0 {
			return s.Name
		}
	}
	if len(summaries) > 0 {
		return summaries[0].Name
	}
	return fallback
}
