// Package opc implements the Open Pixel Control wire protocol: a codec that
// turns a byte stream into frames addressed to RGB pixel devices, and TCP and
// WebSocket transports built on it.
package opc

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Errors returned by connection operations.
var (
	// ErrInvalidOnMessage is returned when no message handler is provided.
	ErrInvalidOnMessage = errors.New("invalid on message callback")
	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
)

// Conn carries OPC frames over a stream connection.
// It reads raw bytes into a pending buffer, drains every complete frame from it
// with the codec, and queues encoded frames for a dedicated write loop.
type Conn struct {
	rawConn net.Conn
	logger  Logger

	opts options

	readBuf []byte
	pending []byte

	sendMsg chan []byte
	closed  atomic.Bool
	done    chan struct{} // closed by Close
}

// Default configuration values.
const (
	// defaultBufferSize is the default size of the send channel buffer.
	defaultBufferSize = 1
	// defaultReadBufferSize fits one maximum-size frame in a single read.
	defaultReadBufferSize = HeaderLen + MaxPayloadLen
	// defaultMaxMessageSize is the default largest WebSocket message (1MB).
	defaultMaxMessageSize = 1024 * 1024
	// defaultHeartbeat is the default heartbeat interval.
	defaultHeartbeat = 30 * time.Second
)

// NewConn creates a new connection wrapper around the given stream connection.
// It applies the provided options and validates them before returning.
// Returns an error if the onMessage callback is missing.
func NewConn(conn net.Conn, opt ...Option) (*Conn, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	err := checkOptions(&opts)
	if err != nil {
		return nil, err
	}

	return newConnWithOptions(conn, opts), nil
}

// checkOptions validates and sets default values for connection options.
func checkOptions(opts *options) error {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.readBufferSize <= 0 {
		opts.readBufferSize = defaultReadBufferSize
	}

	if opts.maxMessageSize <= 0 {
		opts.maxMessageSize = defaultMaxMessageSize
	}

	if opts.onMessage == nil {
		return ErrInvalidOnMessage
	}

	if opts.heartbeat <= 0 {
		opts.heartbeat = defaultHeartbeat
	}

	if opts.codec == nil {
		opts.codec = NewCodec(Truncate)
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}

// newConnWithOptions creates a new Conn with already validated options.
func newConnWithOptions(c net.Conn, opts options) *Conn {
	return &Conn{
		rawConn: c,
		logger:  opts.logger,
		opts:    opts,
		readBuf: make([]byte, opts.readBufferSize),
		sendMsg: make(chan []byte, opts.bufferSize),
		done:    make(chan struct{}),
	}
}

// Run starts the connection's read and write loops.
// It blocks until an error occurs or the context is canceled.
// The connection is automatically closed when Run returns.
func (c *Conn) Run(ctx context.Context) error {
	c.logger.Info("connection established", "addr", c.Addr())
	c.logger.Debug("connection options", "addr", c.Addr(),
		"buffer_size", c.opts.bufferSize,
		"read_buffer_size", c.opts.readBufferSize,
		"heartbeat", c.opts.heartbeat,
		"oversize_policy", c.opts.codec.Policy())

	c.opts.metrics.connOpened()
	defer c.opts.metrics.connClosed()

	group, child := errgroup.WithContext(ctx)

	// Unblock a pending Read once either loop stops.
	stop := context.AfterFunc(child, func() {
		_ = c.rawConn.SetReadDeadline(time.Now())
	})
	defer stop()

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	err := group.Wait()
	c.closeConn()

	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Info("connection closed with error", "addr", c.Addr(), "error", err)
	} else {
		c.logger.Info("connection closed", "addr", c.Addr())
	}

	return err
}

// Close closes the connection and makes a running Run return
// ErrConnectionClosed. Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)
	return c.rawConn.Close()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// ErrBufferFull is returned when the send buffer is full and cannot accept more frames.
// OPC has no flow control, so dropping a pixel frame under load is usually fine:
// the next frame overwrites it anyway.
var ErrBufferFull = errors.New("send buffer full")

// Write encodes msg and queues it without blocking.
//
// Returns:
//   - nil: the frame was queued (not yet sent)
//   - ErrBufferFull: the send buffer is full, the frame was NOT queued
//   - ErrConnectionClosed: the connection is closed
//   - ErrPayloadTooLarge: the codec is Strict and the payload does not fit
func (c *Conn) Write(msg Message) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	b, err := c.opts.codec.Encode(msg)
	if err != nil {
		return err
	}
	return c.enqueue(msg, b)
}

// WriteBlocking encodes msg and blocks until it is queued or ctx is done.
func (c *Conn) WriteBlocking(ctx context.Context, msg Message) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	b, err := c.opts.codec.Encode(msg)
	if err != nil {
		return err
	}

	select {
	case c.sendMsg <- b:
		c.queued(msg)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteTimeout encodes msg and waits up to timeout for it to be queued.
// Returns ErrBufferFull if the timeout expires first.
func (c *Conn) WriteTimeout(msg Message, timeout time.Duration) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	b, err := c.opts.codec.Encode(msg)
	if err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.sendMsg <- b:
		c.queued(msg)
		return nil
	case <-timer.C:
		return ErrBufferFull
	}
}

// enqueue queues frame, the encoding of msg, without blocking.
// frame is only read, so one encoding may be shared by many connections.
func (c *Conn) enqueue(msg Message, frame []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.sendMsg <- frame:
		c.queued(msg)
		return nil
	default:
		return ErrBufferFull
	}
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// queued records a frame that made it onto the send queue.
func (c *Conn) queued(msg Message) {
	if msg.Length() > MaxPayloadLen {
		c.logger.Debug("payload truncated", "addr", c.Addr(),
			"length", msg.Length(), "max", MaxPayloadLen)
	}
	c.opts.metrics.encoded(msg)
}

// readLoop reads from the connection until the context is canceled or an
// unrecoverable error occurs. A partial frame left when the peer closes the
// stream is dropped.
func (c *Conn) readLoop(ctx context.Context) error {
	for {
		_ = c.rawConn.SetReadDeadline(time.Now().Add(c.opts.heartbeat * 2))
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := c.rawConn.Read(c.readBuf)
		if n > 0 {
			c.opts.metrics.read(n)
			c.pending = append(c.pending, c.readBuf[:n]...)
			if herr := c.drain(); herr != nil {
				return herr
			}
		}

		if err == nil {
			continue
		}

		if c.closed.Load() {
			return ErrConnectionClosed
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if errors.Is(err, io.EOF) {
			if len(c.pending) > 0 {
				c.logger.Debug("stream ended inside a frame", "addr", c.Addr(), "pending", len(c.pending))
			}
			return err
		}

		c.logger.Debug("read error", "addr", c.Addr(), "error", err)
		if c.opts.onError(err) == Disconnect {
			return errors.Wrap(err, "read")
		}
	}
}

// drain hands every complete frame in the pending buffer to onMessage.
func (c *Conn) drain() error {
	var err error
	c.pending, err = drainFrames(c.opts.codec, c.pending, func(msg Message) error {
		c.opts.metrics.decoded(msg)
		c.logger.Debug("frame received", append([]any{"addr", c.Addr()}, messageAttrs(msg)...)...)
		return c.opts.onMessage(msg)
	})
	return err
}

// drainFrames decodes every complete frame at the front of buf, passing each
// to fn in order, and returns buf with the consumed frames removed. The bytes
// left over are the start of the next frame. It stops at the first error
// returned by fn.
func drainFrames(codec *Codec, buf []byte, fn func(Message) error) ([]byte, error) {
	var (
		off int
		err error
	)
	for err == nil {
		msg, n, ok := codec.Decode(buf[off:])
		if !ok {
			break
		}
		off += n
		err = fn(msg)
	}

	return buf[:copy(buf, buf[off:])], err
}

// writeLoop sends queued frames until the context is canceled or an
// unrecoverable error occurs.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrConnectionClosed
		case data := <-c.sendMsg:
			if err := c.write(data); err != nil {
				return err
			}
		}
	}
}

// write sends data with a deadline. The error is returned only if
// onError asks to disconnect.
func (c *Conn) write(data []byte) error {
	_ = c.rawConn.SetWriteDeadline(time.Now().Add(c.opts.heartbeat * 2))

	n, err := c.rawConn.Write(data)
	c.opts.metrics.written(n)

	if err != nil {
		c.logger.Debug("write error", "addr", c.Addr(), "error", err)
		if c.opts.onError(err) == Disconnect {
			return errors.Wrap(err, "write")
		}
	}

	return nil
}

// closeConn marks the connection as closed and closes the underlying connection.
func (c *Conn) closeConn() {
	c.closed.Store(true)
	c.rawConn.Close()
}
