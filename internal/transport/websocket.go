package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Firebrandv3/game/internal/protocol"
)

const closeGracePeriod = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  readBufferSize,
	WriteBufferSize: readBufferSize,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocket carries one frame per binary WebSocket message.
type WebSocket struct {
	ws  *websocket.Conn
	wmu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewWebSocket wraps an established WebSocket connection.
func NewWebSocket(ws *websocket.Conn) *WebSocket {
	ws.SetReadLimit(protocol.MaxFrameSize)
	return &WebSocket{ws: ws}
}

// DialWebSocket connects to a ws:// or wss:// URL.
func DialWebSocket(ctx context.Context, url string) (*WebSocket, error) {
	dialer := websocket.Dialer{HandshakeTimeout: DefaultDialTimeout}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WS server: %w", err)
	}
	return NewWebSocket(ws), nil
}

// UpgradeWebSocket upgrades an HTTP request. On failure the upgrader has
// already written an HTTP error response.
func UpgradeWebSocket(w http.ResponseWriter, r *http.Request) (*WebSocket, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocket(ws), nil
}

func (t *WebSocket) Send(f protocol.Frame) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	return Classify(t.ws.WriteMessage(websocket.BinaryMessage, protocol.Encode(f)))
}

// Recv skips text and control messages.
func (t *WebSocket) Recv() (protocol.Frame, error) {
	for {
		mt, data, err := t.ws.ReadMessage()
		if err != nil {
			return protocol.Frame{}, Classify(err)
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		return protocol.Decode(data)
	}
}

// Close sends a normal close message and closes the socket.
func (t *WebSocket) Close() error {
	t.closeOnce.Do(func() {
		// WriteControl may run concurrently with a blocked WriteMessage.
		_ = t.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod))
		t.closeErr = t.ws.Close()
	})
	return t.closeErr
}

func (t *WebSocket) Reliable() bool { return true }

func (t *WebSocket) LocalAddr() net.Addr  { return t.ws.LocalAddr() }
func (t *WebSocket) RemoteAddr() net.Addr { return t.ws.RemoteAddr() }
