package opc

import (
	"context"
	"io"
	"log/slog"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Handler is the interface for handling incoming TCP connections.
type Handler interface {
	// Handle is called in its own goroutine for each new connection.
	// The implementation owns the connection.
	Handle(ctx context.Context, conn *net.TCPConn)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(ctx context.Context, conn *net.TCPConn)

// Handle calls f(ctx, conn).
func (f HandlerFunc) Handle(ctx context.Context, conn *net.TCPConn) {
	f(ctx, conn)
}

// Server is a TCP server that accepts OPC clients.
type Server struct {
	listener        *net.TCPListener
	logger          Logger
	shutdownTimeout time.Duration

	mu          sync.Mutex
	shutdown    bool
	shutdownNow chan struct{} // signals immediate shutdown, bypassing timeout
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server.
func ServerLoggerOption(logger Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// ServerShutdownTimeoutOption sets the graceful shutdown timeout.
// When the context is canceled, the server waits up to this duration
// before closing the listener. Default is 0 (immediate shutdown).
func ServerShutdownTimeoutOption(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.shutdownTimeout = timeout
	}
}

// New creates a new TCP server bound to the specified address.
func New(addr *net.TCPAddr, opts ...ServerOption) (*Server, error) {
	listener, err := net.ListenTCP(addr.Network(), addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", addr)
	}

	s := &Server{
		listener:    listener,
		logger:      slog.Default(),
		shutdownNow: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Serve accepts connections and dispatches them to the handler.
// It blocks until the context is canceled or an unrecoverable error occurs.
// If ServerShutdownTimeoutOption is set, the server waits up to that duration
// after cancellation before it stops accepting; Close skips the wait.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	s.logger.Info("server started", "addr", s.listener.Addr())

	go func() {
		<-ctx.Done()

		if s.shutdownTimeout > 0 {
			s.logger.Info("graceful shutdown initiated", "timeout", s.shutdownTimeout)
			select {
			case <-time.After(s.shutdownTimeout):
			case <-s.shutdownNow:
				s.logger.Debug("shutdown timeout bypassed via Close()")
			}
		}

		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		// Unblock Accept.
		_ = s.listener.SetDeadline(time.Now())
	}()

	for {
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			s.mu.Lock()
			isShutdown := s.shutdown
			s.mu.Unlock()

			if isShutdown {
				s.logger.Info("server stopped", "addr", s.listener.Addr())
				return ctx.Err()
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("accept error", "error", err)
			return err
		}

		s.logger.Debug("accepted connection", "remote_addr", conn.RemoteAddr())
		// Pixel frames are latency sensitive.
		_ = conn.SetNoDelay(true)
		go handler.Handle(ctx, conn)
	}
}

// Close stops the server by closing the underlying listener.
// If a shutdown timeout is configured, Close bypasses the remaining timeout.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	select {
	case s.shutdownNow <- struct{}{}:
	default:
	}

	return s.listener.Close()
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// MessageHandler is a Handler that runs a Conn for every accepted connection
// and keeps track of the live ones.
type MessageHandler struct {
	onMessage func(id int64, msg Message) error
	opts      []Option
	codec     *Codec
	logger    Logger
	nextID    atomic.Int64

	mu    sync.RWMutex
	conns map[int64]*Conn
}

// NewMessageHandler returns a MessageHandler that builds each Conn with opts.
// onMessage is called for every frame received on any connection, along with
// the id of the connection it arrived on. An OnMessageOption in opts is ignored.
func NewMessageHandler(onMessage func(id int64, msg Message) error, opts ...Option) (*MessageHandler, error) {
	if onMessage == nil {
		return nil, ErrInvalidOnMessage
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = defaultLogger()
	}
	// Every Conn shares the codec Broadcast encodes with.
	if o.codec == nil {
		o.codec = NewCodec(Truncate)
		opts = append(slices.Clone(opts), CustomCodecOption(o.codec))
	}

	return &MessageHandler{
		onMessage: onMessage,
		opts:      opts,
		codec:     o.codec,
		logger:    o.logger,
		conns:     make(map[int64]*Conn),
	}, nil
}

// Handle runs a Conn over tcp until it fails or ctx is canceled.
func (h *MessageHandler) Handle(ctx context.Context, tcp *net.TCPConn) {
	id := h.nextID.Add(1)

	opts := append(slices.Clone(h.opts), OnMessageOption(func(msg Message) error {
		return h.onMessage(id, msg)
	}))
	conn, err := NewConn(tcp, opts...)
	if err != nil {
		h.logger.Error("failed to create connection", "error", err)
		_ = tcp.Close()
		return
	}

	h.add(id, conn)
	defer h.remove(id)

	if err := conn.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		h.logger.Debug("connection finished", "id", id, "error", err)
	}
}

// Broadcast encodes msg once and queues it on every live connection except
// the ones listed. A connection whose send buffer is full drops the frame.
// The only error returned is an encode error such as ErrPayloadTooLarge.
func (h *MessageHandler) Broadcast(msg Message, except ...int64) error {
	frame, err := h.codec.Encode(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, conn := range h.conns {
		if slices.Contains(except, id) {
			continue
		}

		if err := conn.enqueue(msg, frame); err != nil {
			h.logger.Debug("broadcast frame dropped", "id", id, "error", err)
		}
	}

	return nil
}

// Conn returns the live connection with the given id.
func (h *MessageHandler) Conn(id int64) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conn, ok := h.conns[id]
	return conn, ok
}

// Len returns the number of live connections.
func (h *MessageHandler) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.conns)
}

// CloseAll closes every live connection.
func (h *MessageHandler) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.conns {
		_ = conn.Close()
	}
}

func (h *MessageHandler) add(id int64, conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.logger.Info("add new conn", "id", id, "addr", conn.Addr())
	h.conns[id] = conn
}

func (h *MessageHandler) remove(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.conns, id)
}
