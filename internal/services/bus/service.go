package bussvc

import (
	"context"
	"encoding/json"
	"time"

	cfgpkg "github.com/rzbill/eventbus/internal/config"
	"github.com/rzbill/eventbus/internal/eventlog"
	"github.com/rzbill/eventbus/internal/overview"
	"github.com/rzbill/eventbus/internal/runtime"
	"github.com/rzbill/eventbus/pkg/errmodel"
	logpkg "github.com/rzbill/eventbus/pkg/log"
	otelpkg "github.com/rzbill/eventbus/pkg/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Service is the publish/consume facade shared by the HTTP and gRPC
// transports. It adds tracing and logging around the channel store.
type Service struct {
	rt     *runtime.Runtime
	logger logpkg.Logger
	tracer trace.Tracer
}

// New returns a Service using a default logger.
func New(rt *runtime.Runtime) *Service {
	return NewWithLogger(rt, nil)
}

// NewWithLogger returns a Service using the provided logger.
func NewWithLogger(rt *runtime.Runtime, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("bus"))
	}
	return &Service{rt: rt, logger: logger, tracer: otelpkg.Tracer("bus")}
}

func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "bus."+op, trace.WithAttributes(attrs...))
}

// finish records err on span. Validation errors are not span errors.
func finish(span trace.Span, err error) {
	if err != nil && !errmodel.IsValidation(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Health checks that storage is reachable.
func (s *Service) Health(ctx context.Context) error {
	return s.rt.CheckHealth(ctx)
}

// InstanceID identifies the running process.
func (s *Service) InstanceID() string { return s.rt.InstanceID() }

// EnsureChannel registers a channel if it does not exist.
func (s *Service) EnsureChannel(ctx context.Context, name string) (err error) {
	ctx, span := s.start(ctx, "ensure_channel", attribute.String("bus.channel", name))
	defer func() { finish(span, err) }()
	return s.rt.Store().EnsureChannel(ctx, name)
}

// Publish appends an event and returns the stored record.
func (s *Service) Publish(ctx context.Context, channel, eventType string, payload json.RawMessage) (ev eventlog.Event, err error) {
	ctx, span := s.start(ctx, "publish", attribute.String("bus.channel", channel), attribute.String("bus.type", eventType))
	defer func() { finish(span, err) }()

	ev, err = s.rt.Store().Append(ctx, channel, eventType, payload)
	if err != nil {
		if !errmodel.IsValidation(err) {
			s.logger.WithContext(ctx).Error("publish failed", logpkg.Str("channel", channel), logpkg.Err(err))
		}
		return eventlog.Event{}, err
	}
	span.SetAttributes(attribute.Int64("bus.id", ev.ID))
	s.logger.WithContext(ctx).Debug("published", logpkg.Str("channel", channel), logpkg.Int64("id", ev.ID), logpkg.Str("type", eventType))
	return ev, nil
}

// ListEvents returns the channel's events with id > since.
func (s *Service) ListEvents(ctx context.Context, channel string, since int64) (evs []eventlog.Event, err error) {
	ctx, span := s.start(ctx, "list_events", attribute.String("bus.channel", channel), attribute.Int64("bus.since", since))
	defer func() { finish(span, err) }()
	return s.rt.Store().EventsSince(ctx, channel, since)
}

// Search returns events with id > since matching the CEL filter, up to limit
// (0 = all). It never touches consumer cursors.
func (s *Service) Search(ctx context.Context, channel string, since int64, filter string, limit int) (out []eventlog.Event, err error) {
	ctx, span := s.start(ctx, "search", attribute.String("bus.channel", channel), attribute.String("bus.filter", filter))
	defer func() { finish(span, err) }()

	if limit < 0 {
		return nil, errmodel.Validation("invalid_limit", "limit must be a non-negative integer", map[string]any{"limit": limit})
	}
	f, err := newCELFilter(filter)
	if err != nil {
		return nil, err
	}
	evs, err := s.rt.Store().EventsSince(ctx, channel, since)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out = make([]eventlog.Event, 0, len(evs))
	for _, ev := range evs {
		if !f.Eval(ev, now) {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Channels lists channel summaries with throughput over window. A window
// longer than the configured throughput window is rejected.
func (s *Service) Channels(ctx context.Context, window time.Duration) (sums []eventlog.ChannelSummary, err error) {
	_, span := s.start(ctx, "channels", attribute.Int64("bus.window_ms", window.Milliseconds()))
	defer func() { finish(span, err) }()
	return s.rt.Store().ListChannelSummaries(window)
}

// CreateConsumer returns the (idempotent) cursor for consumer on channel.
func (s *Service) CreateConsumer(ctx context.Context, consumer, channel string) (c *eventlog.Consumer, err error) {
	ctx, span := s.start(ctx, "create_consumer", attribute.String("bus.channel", channel), attribute.String("bus.consumer", consumer))
	defer func() { finish(span, err) }()
	return s.rt.Store().Consumer(ctx, consumer, channel)
}

// Poll reads the next batch for consumer on channel. The returned offset is
// the cursor value the batch was produced against, after any auto-commit.
func (s *Service) Poll(ctx context.Context, consumer, channel string, opts eventlog.PollOptions) (batch eventlog.Batch, err error) {
	ctx, span := s.start(ctx, "poll",
		attribute.String("bus.channel", channel),
		attribute.String("bus.consumer", consumer),
		attribute.Int("bus.limit", opts.Limit),
		attribute.Bool("bus.auto_commit", !opts.ManualCommit))
	defer func() { finish(span, err) }()

	c, err := s.rt.Store().Consumer(ctx, consumer, channel)
	if err != nil {
		return eventlog.Batch{}, err
	}
	batch, err = c.Fetch(ctx, opts)
	if err != nil {
		return eventlog.Batch{}, err
	}
	evs := batch.Events
	span.SetAttributes(attribute.Int("bus.batch", len(evs)), attribute.Int64("bus.offset", batch.Offset))
	if len(evs) > 0 {
		s.logger.WithContext(ctx).Debug("polled",
			logpkg.Str("channel", channel),
			logpkg.Str("consumer", consumer),
			logpkg.Int("count", len(evs)),
			logpkg.Int64("last_id", evs[len(evs)-1].ID))
	}
	return batch, nil
}

// Commit sets the consumer offset to lastEventID.
func (s *Service) Commit(ctx context.Context, consumer, channel string, lastEventID int64) (err error) {
	ctx, span := s.start(ctx, "commit",
		attribute.String("bus.channel", channel),
		attribute.String("bus.consumer", consumer),
		attribute.Int64("bus.offset", lastEventID))
	defer func() { finish(span, err) }()

	if lastEventID < 0 {
		return errmodel.Validation("invalid_offset", "lastEventId must be a non-negative integer", map[string]any{"lastEventId": lastEventID})
	}
	c, err := s.rt.Store().Consumer(ctx, consumer, channel)
	if err != nil {
		return err
	}
	return c.Commit(ctx, lastEventID)
}

// ResetConsumer rewinds the consumer to offset 0.
func (s *Service) ResetConsumer(ctx context.Context, consumer, channel string) (err error) {
	ctx, span := s.start(ctx, "reset_consumer", attribute.String("bus.channel", channel), attribute.String("bus.consumer", consumer))
	defer func() { finish(span, err) }()

	c, err := s.rt.Store().Consumer(ctx, consumer, channel)
	if err != nil {
		return err
	}
	if err := c.Reset(ctx); err != nil {
		return err
	}
	s.logger.WithContext(ctx).Info("consumer reset", logpkg.Str("channel", channel), logpkg.Str("consumer", consumer))
	return nil
}

// Offset returns the consumer's current offset.
func (s *Service) Offset(ctx context.Context, consumer, channel string) (off int64, err error) {
	ctx, span := s.start(ctx, "offset", attribute.String("bus.channel", channel), attribute.String("bus.consumer", consumer))
	defer func() { finish(span, err) }()

	c, err := s.rt.Store().Consumer(ctx, consumer, channel)
	if err != nil {
		return 0, err
	}
	return c.Offset(ctx)
}

// Overview builds the monitoring snapshot; an empty channel resolves the default.
func (s *Service) Overview(ctx context.Context, channel string) (snap overview.Snapshot, err error) {
	ctx, span := s.start(ctx, "overview", attribute.String("bus.channel", channel))
	defer func() { finish(span, err) }()
	return s.rt.Overview().Build(ctx, channel)
}

// Reset wipes every channel and consumer and re-creates the initial channels.
func (s *Service) Reset(ctx context.Context) (err error) {
	ctx, span := s.start(ctx, "reset")
	defer func() { finish(span, err) }()

	if err := s.rt.Store().Reset(ctx); err != nil {
		s.logger.WithContext(ctx).Error("reset failed", logpkg.Err(err))
		return err
	}
	s.logger.WithContext(ctx).Warn("event bus reset")
	return nil
}

// Config exposes transport limits to the servers.
func (s *Service) Config() cfgpkg.Config { return s.rt.Config() }
