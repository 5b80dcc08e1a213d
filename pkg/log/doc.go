// Package log provides structured protocol logging for the TV control engine.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events (connects, published and received messages, pairing
// and session state changes, errors). It is separate from operational logging
// (slog) - protocol capture provides a complete machine-readable event trace
// for debugging against real devices.
//
// # Basic Usage
//
// Components accept an optional Logger; nil disables capture:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For long captures: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("session.vlog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # File Format
//
// Log files use CBOR encoding with .vlog extension; Reader streams and
// filters them back out.
package log
