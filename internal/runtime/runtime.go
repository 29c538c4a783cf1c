package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	cfgpkg "github.com/rzbill/eventbus/internal/config"
	"github.com/rzbill/eventbus/internal/eventlog"
	"github.com/rzbill/eventbus/internal/overview"
	pebblestore "github.com/rzbill/eventbus/internal/storage/pebble"
	logpkg "github.com/rzbill/eventbus/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	Logger        logpkg.Logger
	// Clock overrides the capture clock; tests inject a fake.
	Clock func() time.Time
	// SlowCommit is the batch commit latency above which a debug line is logged.
	SlowCommit time.Duration
}

// Runtime wires storage, config, and the bus core for a single-node instance.
type Runtime struct {
	db       *pebblestore.DB
	config   cfgpkg.Config
	store    *eventlog.Store
	overview *overview.Aggregator
	logger   logpkg.Logger
	instance string
}

// Open initializes the underlying storage, loads the channel registry and,
// when configured, resets the store to a clean slate.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	slow := opts.SlowCommit
	if slow <= 0 {
		slow = 50 * time.Millisecond
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Logger:        logger.WithComponent("pebble"),
		Metrics:       &storageMetrics{logger: logger.WithComponent("storage"), slow: slow},
	})
	if err != nil {
		return nil, err
	}
	cfg := opts.Config
	store, err := eventlog.Open(ctx, db, eventlog.Options{
		InitialChannels:  cfg.InitialChannels,
		ChannelPattern:   cfg.ChannelNameRegex,
		ThroughputWindow: cfg.ThroughputWindow(),
		StrictCommit:     cfg.StrictCommit,
		Clock:            opts.Clock,
		Logger:           logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if cfg.ResetOnStart {
		if err := store.Reset(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	rt := &Runtime{
		db:     db,
		config: cfg,
		store:  store,
		overview: overview.New(store, overview.Options{
			FallbackChannel: cfg.FallbackChannel,
			RecentEvents:    cfg.RecentEvents,
			Window:          cfg.ThroughputWindow(),
		}),
		logger:   logger,
		instance: uuid.NewString(),
	}
	// The configured window never fails validation.
	sums, _ := store.ListChannelSummaries(0)
	logger.Info("runtime opened", logpkg.Str("instance", rt.instance), logpkg.Int("channels", len(sums)))
	return rt, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// Store returns the channel store.
func (r *Runtime) Store() *eventlog.Store { return r.store }

// Overview returns the snapshot aggregator bound to the store.
func (r *Runtime) Overview() *overview.Aggregator { return r.overview }

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// InstanceID identifies this process; it changes on every restart.
func (r *Runtime) InstanceID() string { return r.instance }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// storageMetrics logs storage operations slower than a threshold.
type storageMetrics struct {
	logger logpkg.Logger
	slow   time.Duration
}

func (m *storageMetrics) ObserveRead(elapsed time.Duration, bytes int) {
	if elapsed >= m.slow {
		m.logger.Debug("slow read", logpkg.Duration("elapsed", elapsed), logpkg.Int("bytes", bytes))
	}
}

func (m *storageMetrics) ObserveBatchCommit(elapsed time.Duration, bytes int) {
	if elapsed >= m.slow {
		m.logger.Debug("slow batch commit", logpkg.Duration("elapsed", elapsed), logpkg.Int("bytes", bytes))
	}
}
