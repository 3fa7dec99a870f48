// Package audit relays reset lifecycle events to a pluggable sink.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON lines, slog, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full accounting.
//   - [Event]: timestamp, type, account, IP, outcome, redacted metadata.
//
// The package does not decide which events to emit and performs no I/O
// beyond what a caller-supplied Sink does.
package audit
