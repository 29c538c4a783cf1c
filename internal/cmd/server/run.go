package serverrun

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	cfgpkg "github.com/rzbill/eventbus/internal/config"
	"github.com/rzbill/eventbus/internal/runtime"
	grpcserver "github.com/rzbill/eventbus/internal/server/grpc"
	httpserver "github.com/rzbill/eventbus/internal/server/http"
	bussvc "github.com/rzbill/eventbus/internal/services/bus"
	pebblestore "github.com/rzbill/eventbus/internal/storage/pebble"
	logpkg "github.com/rzbill/eventbus/pkg/log"
	otelpkg "github.com/rzbill/eventbus/pkg/otel"
	"golang.org/x/sync/errgroup"
)

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// small wrapper to allow testing
var getenv = os.Getenv

type Options struct {
	DataDir       string
	GRPCAddr      string
	HTTPAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	// Logger overrides the process logger built from BUS_LOG_LEVEL/BUS_LOG_FORMAT.
	Logger logpkg.Logger
	// TraceWriter, when set, receives spans from the stdout exporter.
	TraceWriter io.Writer
	// Ready is called with the bound addresses once both listeners are open.
	Ready func(httpAddr, grpcAddr net.Addr)
}

// Run starts the gRPC and HTTP servers and blocks until ctx is cancelled
// or either server fails.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := opts.Logger
	if logger == nil {
		cfg := &logpkg.Config{
			Level:  getenvDefault("BUS_LOG_LEVEL", "info"),
			Format: getenvDefault("BUS_LOG_FORMAT", "text"),
		}
		l, err := logpkg.ApplyConfig(cfg)
		if err != nil {
			return err
		}
		logger = l
	}
	slog.SetDefault(logpkg.Slog(logger))

	if opts.TraceWriter != nil {
		shutdown, err := otelpkg.Init(sctx, otelpkg.Config{UseStdout: true, Writer: opts.TraceWriter})
		if err != nil {
			return err
		}
		defer func() {
			cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = shutdown(cctx)
		}()
	}

	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	rt, err := runtime.Open(sctx, runtime.Options{
		DataDir:       filepath.Join(opts.DataDir, "store"),
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Config:        opts.Config,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	httpLis, err := net.Listen("tcp", opts.HTTPAddr)
	if err != nil {
		return err
	}
	grpcLis, err := net.Listen("tcp", opts.GRPCAddr)
	if err != nil {
		_ = httpLis.Close()
		return err
	}

	logger.Info("starting event bus",
		logpkg.Str("http", httpLis.Addr().String()),
		logpkg.Str("grpc", grpcLis.Addr().String()),
		logpkg.Str("data_dir", opts.DataDir),
		logpkg.Str("fsync", opts.Fsync.String()),
	)

	svc := bussvc.NewWithLogger(rt, logger.WithComponent("bus"))
	hsrv := httpserver.New(svc, logger)
	gsrv := grpcserver.New(svc, logger)

	if opts.Ready != nil {
		opts.Ready(httpLis.Addr(), grpcLis.Addr())
	}

	g, gctx := errgroup.WithContext(sctx)
	g.Go(func() error { return hsrv.Serve(gctx, httpLis) })
	g.Go(func() error { return gsrv.Serve(gctx, grpcLis) })
	err = g.Wait()
	logger.Info("event bus stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
