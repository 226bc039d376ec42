package opc

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"testing"
)

func TestLogger_Interface(t *testing.T) {
	var _ Logger = slog.Default()
}

func TestDefaultLogger(t *testing.T) {
	if defaultLogger() != slog.Default() {
		t.Error("defaultLogger did not return slog.Default()")
	}
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

// mockLogger records every call. It is safe for use by a running Conn.
type mockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *mockLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *mockLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *mockLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *mockLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *mockLogger) Error(msg string, args ...any) { l.record("error", msg, args) }

// find returns the first entry with the given level and message.
func (l *mockLogger) find(level, msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

func TestConn_LogsFrames(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	logger := &mockLogger{}
	received := make(chan Message, 1)
	conn, err := NewConn(serverConn,
		LoggerOption(logger),
		OnMessageOption(func(msg Message) error {
			received <- msg
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runConn(ctx, conn)

	if _, err := clientConn.Write([]byte{5, 0, 0, 6, 1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	waitMessage(t, received)

	e, ok := logger.find("debug", "frame received")
	if !ok {
		t.Fatal("no frame received log")
	}
	if i := slices.Index(e.args, any("pixels")); i < 0 || e.args[i+1] != 2 {
		t.Errorf("frame log args = %v, want pixels=2", e.args)
	}

	cancel()
	waitDone(t, done)

	if _, ok := logger.find("info", "connection established"); !ok {
		t.Error("no connection established log")
	}
	if _, ok := logger.find("info", "connection closed"); !ok {
		t.Error("no connection closed log")
	}
}

func TestMessageAttrs(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		key  string
		want any
	}{
		{"pixels", NewMessage(1, NewPixels(4)), "pixels", 4},
		{"sysex", NewMessage(2, NewSystemExclusive(7, []byte{1})), "system_id", uint16(7)},
		{"other", NewMessage(3, NewOther(42, []byte{1, 2})), "length", 2},
		{"nil payload", NewMessage(4, nil), "command", byte(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := messageAttrs(tt.msg)
			if len(attrs)%2 != 0 {
				t.Fatalf("odd number of attrs: %v", attrs)
			}

			i := slices.Index(attrs, any(tt.key))
			if i < 0 {
				t.Fatalf("key %q missing from %v", tt.key, attrs)
			}
			if attrs[i+1] != tt.want {
				t.Errorf("%s = %v, want %v", tt.key, attrs[i+1], tt.want)
			}
		})
	}
}
