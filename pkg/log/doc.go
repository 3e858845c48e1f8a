// Package log provides structured protocol logging for the mesh gateway.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, notify, gateway).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable event trace for debugging and analysis.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	logger := log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	logger, _ := log.NewFileLogger("/var/log/meshgw/gateway.mlog")
//
//	// Both: use MultiLogger
//	logger := log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
//	// Ad-hoc: adapt a plain function with LoggerFunc
//	logger := log.LoggerFunc(func(e log.Event) { fmt.Println(e.Category) })
//
// MultiLogger isolates each registered Logger from the others' panics, so a
// misbehaving console adapter can never take down file logging on a
// battery-powered gateway that may already be running unattended.
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: Raw frame bytes (FrameEvent)
//   - Notify: Reassembled and classified messages (MessageEvent)
//   - Gateway: State changes (StateChangeEvent)
//
// Errors have a dedicated event type at every layer.
//
// # File Format
//
// Log files use CBOR encoding. Reader provides filtered playback for
// offline analysis.
package log
