// Package logging provides a minimal logging interface and adapters for chatmesh.
//
// The Logger interface defines the leveled methods (Debug, Info, Warn, Error)
// that advisors, stores and the orchestrator use for observability. Arguments
// after the message are alternating key/value pairs, as with log/slog. This
// package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping a *slog.Logger
//   - ZerologAdapter wrapping a zerolog.Logger
//   - ChatLogger, a configurable slog logger with conversation context helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	orchestrator := chatmesh.New(models, func(o *chatmesh.Options) { o.Logger = logger })
package logging
