// Package httpserver provides the REST gateway for the event bus with SSE
// tailing and JSON endpoints for channels, consumers and the overview.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()})
//	s := httpserver.New(bussvc.NewWithLogger(rt, logger), logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
