package netsync

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/statesync/internal/core/observability/log"
)

const closeGracePeriod = time.Second

// WebSocketTransport sends each payload as one binary message.
type WebSocketTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool
}

func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{conn: conn}
}

// DialWebSocket connects to a snapshot endpoint such as ws://host/sync.
func DialWebSocket(ctx context.Context, url string) (*WebSocketTransport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return NewWebSocketTransport(conn), nil
}

func (t *WebSocketTransport) Send(ctx context.Context, payload []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := t.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Receive blocks until a binary message arrives. A context deadline bounds
// the read; cancellation without a deadline is observed only after Close.
func (t *WebSocketTransport) Receive(ctx context.Context) ([]byte, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	deadline, _ := ctx.Deadline()
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}

	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || t.closed.Load() {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("failed to read message: %w", err)
		}
		if kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (t *WebSocketTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	t.writeMu.Unlock()
	return t.conn.Close()
}

// WebSocketHandler upgrades HTTP requests and hands each connection to
// accept.
type WebSocketHandler struct {
	logger   log.Log
	upgrader websocket.Upgrader
	accept   func(r *http.Request, t *WebSocketTransport)
}

func NewWebSocketHandler(logger log.Log, accept func(r *http.Request, t *WebSocketTransport)) *WebSocketHandler {
	return &WebSocketHandler{
		logger: logger.Named("websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		accept: accept,
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			log.String("remote", r.RemoteAddr),
			log.Error(err),
		)
		return
	}
	h.logger.Debug("websocket connected", log.String("remote", r.RemoteAddr))
	h.accept(r, NewWebSocketTransport(conn))
}
