package opc

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// ErrMessageTooLarge is returned when a WebSocket message exceeds the
// configured maximum size.
var ErrMessageTooLarge = errors.New("message too large")

// WebSocketHandler accepts OPC frames over WebSocket. Each binary message
// carries raw OPC bytes; frames may span messages or share one. Text messages
// are ignored.
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	opts     options
}

// NewWebSocketHandler returns an http.Handler that decodes OPC frames from
// WebSocket clients with the same options a Conn takes. Send-side options are
// unused since the handler only receives.
func NewWebSocketHandler(opt ...Option) (*WebSocketHandler, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize: opts.readBufferSize,
			// OPC clients are usually local tools and browser pages served from elsewhere.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		opts: opts,
	}, nil
}

// ServeHTTP upgrades the request and reads frames until the client goes away.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.opts.logger.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	defer ws.Close()
	ws.SetReadLimit(int64(h.opts.maxMessageSize))

	h.opts.logger.Info("websocket connection established", "addr", ws.RemoteAddr())
	h.opts.metrics.connOpened()
	defer h.opts.metrics.connClosed()

	err = h.readLoop(ws)
	if err != nil {
		h.opts.logger.Info("websocket connection closed with error", "addr", ws.RemoteAddr(), "error", err)
		return
	}
	h.opts.logger.Info("websocket connection closed", "addr", ws.RemoteAddr())
}

// readLoop returns nil when the client closes the connection normally.
func (h *WebSocketHandler) readLoop(ws *websocket.Conn) error {
	var pending []byte
	for {
		_ = ws.SetReadDeadline(time.Now().Add(h.opts.heartbeat * 2))

		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			if errors.Is(err, websocket.ErrReadLimit) {
				return errors.Wrapf(ErrMessageTooLarge, "limit %d bytes", h.opts.maxMessageSize)
			}
			return err
		}

		if mt != websocket.BinaryMessage {
			h.opts.logger.Debug("ignoring non-binary websocket message", "addr", ws.RemoteAddr(), "type", mt)
			continue
		}

		h.opts.metrics.read(len(data))
		pending = append(pending, data...)

		pending, err = drainFrames(h.opts.codec, pending, func(msg Message) error {
			h.opts.metrics.decoded(msg)
			h.opts.logger.Debug("frame received", append([]any{"addr", ws.RemoteAddr()}, messageAttrs(msg)...)...)
			return h.opts.onMessage(msg)
		})
		if err != nil {
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()),
				time.Now().Add(time.Second))
			return err
		}
	}
}
