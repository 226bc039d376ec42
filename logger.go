package opc

import "log/slog"

// Logger is the interface for structured logging used by connections and servers.
// *slog.Logger satisfies it. The codec itself never logs.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, args ...any)
	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, args ...any)
	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, args ...any)
	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, args ...any)
}

// defaultLogger returns the default slog logger from the standard library.
func defaultLogger() Logger {
	return slog.Default()
}

// messageAttrs returns key-value pairs describing msg for debug logs.
func messageAttrs(msg Message) []any {
	h := msg.Header()
	attrs := []any{"channel", h.Channel, "command", h.Command, "length", msg.Length()}
	switch p := msg.Payload.(type) {
	case Pixels:
		attrs = append(attrs, "pixels", p.Len())
	case SystemExclusive:
		attrs = append(attrs, "system_id", p.SystemID())
	}
	return attrs
}
