package signaling

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/Firebrandv3/game/internal/transport"
	"github.com/Firebrandv3/game/internal/util"
)

// readyGrace is how long a peer may still open after the WebSocket dropped.
// The other side closes its end as soon as its own channel opens.
const readyGrace = 5 * time.Second

// Dial connects to a signaling endpoint, sends the offer and returns the
// peer once its datagram channel is open. The WebSocket is closed on return.
func Dial(ctx context.Context, url string, opts transport.PeerOptions) (*transport.Peer, error) {
	wsConn, err := connect(ctx, url)
	if err != nil {
		return nil, err
	}
	defer wsConn.Close()
	util.LogDebug("signaling WS connected: %s", url)

	return establish(ctx, wsConn, opts, true)
}

// Answer runs the answering side on an accepted WebSocket.
func Answer(ctx context.Context, wsConn *websocket.Conn, opts transport.PeerOptions) (*transport.Peer, error) {
	return establish(ctx, wsConn, opts, false)
}

func establish(ctx context.Context, wsConn *websocket.Conn, opts transport.PeerOptions, offer bool) (*transport.Peer, error) {
	peer, err := transport.NewPeer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer: %w", err)
	}

	s := &sender{peer: peer, conn: wsConn}
	r := &receiver{peer: peer, conn: wsConn, sender: s}

	peer.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		// best-effort: the WS may already be gone once the channel is open
		_ = s.sendCandidate(string(data))
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.watch()
	}()

	if offer {
		if err := s.sendOffer(); err != nil {
			peer.Close()
			return nil, fmt.Errorf("failed to send offer: %w", err)
		}
	}

	select {
	case <-peer.Ready():
		util.LogDebug("WebRTC datagram channel established")
		return peer, nil

	case err := <-errCh:
		select {
		case <-peer.Ready():
			return peer, nil
		case <-time.After(readyGrace):
		case <-ctx.Done():
		}
		peer.Close()
		return nil, fmt.Errorf("signaling failed: %w", err)

	case <-ctx.Done():
		peer.Close()
		return nil, ctx.Err()
	}
}
