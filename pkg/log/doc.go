// Package log provides mailroom's structured logging facade and utilities.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Internally it is backed by Go's
// standard library slog via a custom handler that preserves our
// formatter/outputs pipeline, so slog-aware libraries and our own code share
// consistent output.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("dispatcher"), log.Str("worker", "w1"))
//	l.Info("worker started", log.Int("count", 4))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config, supporting
// text or JSON formatting.
//
// # Interop
//
// RedirectStdLog routes the standard library's global logger (used by
// Pebble) through a Logger instance.
package log
