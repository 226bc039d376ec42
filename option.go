package opc

import (
	"time"
)

// ErrorAction defines the action to take when an error occurs.
type ErrorAction int

const (
	// Disconnect closes the connection when an error occurs.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and continues processing.
	Continue
)

// options holds the configuration for a connection.
type options struct {
	codec   *Codec
	logger  Logger
	metrics *Metrics

	onMessage func(message Message) error
	// onError is called when an error occurs.
	// Returns Disconnect to close the connection, Continue to suppress the error.
	onError func(error) ErrorAction

	bufferSize     int           // size of the send channel
	readBufferSize int           // size of a single socket read
	maxMessageSize int           // largest WebSocket message accepted
	heartbeat      time.Duration // heartbeat interval for read/write deadlines
}

// Option is a function that configures connection options.
type Option func(*options)

// CustomCodecOption returns an Option that sets the codec.
// If not set, a codec with the Truncate policy is used.
func CustomCodecOption(codec *Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// BufferSizeOption returns an Option that sets the size of the send channel buffer.
// A larger buffer allows more frames to be queued before blocking.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// HeartbeatOption returns an Option that sets the heartbeat interval.
// This determines the read/write deadline timeout (heartbeat * 2).
func HeartbeatOption(heartbeat time.Duration) Option {
	return func(o *options) {
		o.heartbeat = heartbeat
	}
}

// ReadBufferSizeOption returns an Option that sets how many bytes are read
// from the socket at a time. Frames larger than this are assembled over
// several reads.
func ReadBufferSizeOption(size int) Option {
	return func(o *options) {
		o.readBufferSize = size
	}
}

// MessageMaxSizeOption returns an Option that sets the largest WebSocket
// message a WebSocketHandler accepts. A client that sends more is disconnected
// with a message-too-big close. Frames may span messages, so the limit does not
// bound frame size. A TCP Conn ignores it.
func MessageMaxSizeOption(size int) Option {
	return func(o *options) {
		o.maxMessageSize = size
	}
}

// OnErrorOption returns an Option that sets the error callback.
// The callback is invoked when a read/write error occurs.
// Return Disconnect to close the connection, or Continue to suppress the error.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// OnMessageOption returns an Option that sets the message handler callback.
// This callback is required and is invoked for each decoded frame, in arrival order.
func OnMessageOption(cb func(Message) error) Option {
	return func(o *options) {
		o.onMessage = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// MetricsOption returns an Option that sets the Prometheus metrics
// updated by the connection.
func MetricsOption(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
