// Package config provides loading and environment overlay for the event bus
// configuration. It exposes a Default() baseline that the runtime and the
// servers read their settings from.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/eventbus.json"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil { /* handle */ }
//	rt, _ := runtime.Open(ctx, runtime.Options{DataDir: "/var/lib/eventbus", Config: cfg})
//	defer rt.Close()
package config
