package main

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Zereker/opc"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		r, g, b byte
		wantErr bool
	}{
		{"ff8000", 0xff, 0x80, 0x00, false},
		{"000000", 0, 0, 0, false},
		{"ABCDEF", 0xab, 0xcd, 0xef, false},
		{"fff", 0, 0, 0, true},
		{"ff80000", 0, 0, 0, true},
		{"gg0000", 0, 0, 0, true},
		{"", 0, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r, g, b, err := parseColor(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseColor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if r != tt.r || g != tt.g || b != tt.b {
				t.Errorf("parseColor(%q) = %d,%d,%d, want %d,%d,%d", tt.in, r, g, b, tt.r, tt.g, tt.b)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "WARN", "error"} {
		if _, err := newLogger(level); err != nil {
			t.Errorf("newLogger(%q) failed: %v", level, err)
		}
	}

	if _, err := newLogger("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNewRouter(t *testing.T) {
	registry := prometheus.NewRegistry()
	opc.NewMetrics(registry, "opcd", "")

	handler, err := opc.NewMessageHandler(func(int64, opc.Message) error { return nil })
	if err != nil {
		t.Fatalf("NewMessageHandler failed: %v", err)
	}

	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	ts := httptest.NewServer(newRouter(ws, registry, handler))
	defer ts.Close()

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	if code, body := get("/healthz"); code != http.StatusOK || body != "ok\n" {
		t.Errorf("/healthz = %d %q", code, body)
	}

	if code, body := get("/metrics"); code != http.StatusOK || !strings.Contains(body, "opcd_connections") {
		t.Errorf("/metrics = %d, body missing opcd_connections", code)
	}

	code, body := get("/connections")
	if code != http.StatusOK {
		t.Errorf("/connections status = %d", code)
	}
	var counts map[string]int
	if err := json.Unmarshal([]byte(body), &counts); err != nil {
		t.Fatalf("decode /connections: %v", err)
	}
	if counts["tcp"] != 0 {
		t.Errorf("tcp connections = %d, want 0", counts["tcp"])
	}

	if code, _ := get("/ws"); code != http.StatusTeapot {
		t.Errorf("/ws status = %d, want %d", code, http.StatusTeapot)
	}
}

func TestClientFlags_Send(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()

	received := make(chan opc.Message, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		msg, err := opc.NewCodec(opc.Truncate).ReadMessage(conn)
		if err == nil {
			received <- msg
		}
	}()

	client := clientFlags{addr: ln.Addr().String(), channel: 3, timeout: time.Second}
	px := opc.NewPixels(2)
	px.Fill(1, 2, 3)
	if err := client.send(context.Background(), px); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Channel != 3 {
			t.Errorf("channel = %d, want 3", msg.Channel)
		}
		pixels, ok := msg.Payload.(opc.Pixels)
		if !ok {
			t.Fatalf("payload is %T, want opc.Pixels", msg.Payload)
		}
		if pixels.Len() != 2 {
			t.Fatalf("pixel count = %d, want 2", pixels.Len())
		}
		if r, g, b := pixels.At(1).RGB(); r != 1 || g != 2 || b != 3 {
			t.Errorf("pixel 1 = %d,%d,%d, want 1,2,3", r, g, b)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for frame")
	}
}

func TestClientFlags_SendStrictOversize(t *testing.T) {
	// Nothing listens here; a Strict failure must happen before dialing.
	client := clientFlags{addr: "127.0.0.1:1", strict: true, timeout: time.Second}

	err := client.send(context.Background(), opc.NewOther(7, make([]byte, opc.MaxPayloadLen+1)))
	if !errors.Is(err, opc.ErrPayloadTooLarge) {
		t.Errorf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestVersionCmd_Short(t *testing.T) {
	var out strings.Builder
	cmd := versionCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--short"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != version {
		t.Errorf("version --short = %q, want %q", got, version)
	}
}
