package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	clientcmd "github.com/rzbill/eventbus/internal/cmd/client"
	serverrun "github.com/rzbill/eventbus/internal/cmd/server"
	cfgpkg "github.com/rzbill/eventbus/internal/config"
	pebblestore "github.com/rzbill/eventbus/internal/storage/pebble"
	logpkg "github.com/rzbill/eventbus/pkg/log"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "eventbus",
		Short: "Event bus runtime CLI",
		Long:  "eventbus is a single-binary event bus. This CLI runs the server and performs basic operations over gRPC.",
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the event bus server (gRPC and HTTP)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			grpcAddr, _ := cmd.Flags().GetString("grpc")
			httpAddr, _ := cmd.Flags().GetString("http")
			configPath, _ := cmd.Flags().GetString("config")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			fsyncIntervalMs, _ := cmd.Flags().GetInt("fsync-interval-ms")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")
			resetOnStart, _ := cmd.Flags().GetBool("reset-on-start")
			trace, _ := cmd.Flags().GetBool("trace")

			mode, err := pebblestore.ParseFsyncMode(fsyncMode)
			if err != nil {
				return fmt.Errorf("invalid --fsync: %w", err)
			}

			cfg := cfgpkg.Default()
			if configPath != "" {
				if cfg, err = cfgpkg.Load(configPath); err != nil {
					return err
				}
			}
			cfgpkg.FromEnv(&cfg)
			if cmd.Flags().Changed("reset-on-start") {
				cfg.ResetOnStart = resetOnStart
			}

			logger, err := logpkg.ApplyConfig(&logpkg.Config{Level: logLevel, Format: logFormat})
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			opts := serverrun.Options{
				DataDir:       dataDir,
				GRPCAddr:      grpcAddr,
				HTTPAddr:      httpAddr,
				Fsync:         mode,
				FsyncInterval: time.Duration(fsyncIntervalMs) * time.Millisecond,
				Config:        cfg,
				Logger:        logger,
			}
			if trace {
				opts.TraceWriter = os.Stderr
			}
			if err := serverrun.Run(ctx, opts); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	serverStartCmd.Flags().String("data-dir", os.Getenv("BUS_DATA_DIR"), "Data directory (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("grpc", ":50051", "gRPC listen address")
	serverStartCmd.Flags().String("http", ":8080", "HTTP listen address")
	serverStartCmd.Flags().String("config", "", "Path to a JSON config file")
	serverStartCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	serverStartCmd.Flags().Int("fsync-interval-ms", 5, "When --fsync=interval, group-commit window in ms (default 5)")
	serverStartCmd.Flags().String("log-level", envOr("BUS_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", envOr("BUS_LOG_FORMAT", "text"), "Log format: text|json")
	serverStartCmd.Flags().Bool("reset-on-start", false, "Wipe all channels and consumers before serving")
	serverStartCmd.Flags().Bool("trace", false, "Export OpenTelemetry spans to stderr")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	for _, c := range clientcmd.Commands(clientcmd.GRPCAddrFromEnv) {
		rootCmd.AddCommand(c)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
