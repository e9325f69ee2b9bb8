package signaling

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

const handshakeTimeout = 10 * time.Second

// connect dials the given WebSocket URL and returns the connection. The URL
// carries the session token as a query parameter, e.g.:
//
//	ws://example.com:7778/signal?session=6f1c...
func connect(ctx context.Context, url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WS server: %w", err)
	}
	return conn, nil
}
