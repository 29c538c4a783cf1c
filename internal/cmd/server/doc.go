// Package serverrun exposes the Run entrypoint used by `eventbus server start`.
// Run opens the runtime, serves HTTP and gRPC side by side under an errgroup
// and shuts both down when the context ends or either listener fails.
//
// Example:
//
//	opts := serverrun.Options{DataDir: "./data", GRPCAddr: ":50051", HTTPAddr: ":8080", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()}
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, opts)
package serverrun
