// Package log provides the bus's structured logging facade and utilities.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Internally records are built as
// slog.Records and handed to a bridge handler that runs our formatter and
// outputs, so code can also obtain a *slog.Logger via Slog when a library
// wants one.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("server"), log.Str("channel", "general"))
//	l.Info("server started", log.Int("port", 8080))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config, supporting JSON
// or text formatting and console, stdout, null or file outputs. Redaction and
// sampling are applied in the handler.
//
// The printf-style methods (Infof, Errorf, Fatalf) make any Logger usable as
// a pebble.Logger, which is how the storage engine's own messages reach the
// same outputs.
package log
