// Package grpcserver exposes the event bus over gRPC as the unary service
// eventbus.v1.EventBus. Messages are google.protobuf.Struct envelopes with
// the same JSON shapes as the HTTP API, so no generated stubs are needed;
// clients call conn.Invoke with FullMethod and the Encode/Decode helpers.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()})
//	s := grpcserver.New(bussvc.New(rt), logger)
//	_ = s.ListenAndServe(ctx, ":50051")
package grpcserver
