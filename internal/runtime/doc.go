// Package runtime wires storage, config, and the bus core into a single-node
// event bus instance. It exposes Open/Close, basic health checks, and the
// channel store and overview aggregator used by higher-level services.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(ctx, runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(ctx)
//	ev, _ := rt.Store().Append(ctx, "general", "order.created", json.RawMessage(`{"orderId":"A-1"}`))
//	snap, _ := rt.Overview().Build(ctx, "")
package runtime
