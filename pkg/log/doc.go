// Package log provides structured protocol logging for the lock relay fleet.
//
// This package defines the Logger interface and Event type for capturing
// protocol-level events (frames written/read, session state changes,
// transport errors) separately from operational logging (slog). It exists
// so the device-control core can emit a machine-readable event trace
// without importing net/http or any HTTP-layer logging concerns.
//
// Applications configure logging by providing a Logger implementation:
//
//	// Development: events go to slog.
//	logger := log.NewSlogAdapter(slog.Default())
//
//	// Production: events go to a JSON-lines file, or both.
//	fileLogger, _ := log.NewFileLogger("/var/log/lockd/relay.jsonl")
//	logger := log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fileLogger)
//
// Pass log.NoopLogger{} (the zero value) to disable event capture entirely.
package log
