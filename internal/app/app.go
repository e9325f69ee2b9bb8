// Package app contains the demo game server and client built on conn.
package app

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/Firebrandv3/game/internal/conn"
	"github.com/Firebrandv3/game/internal/message"
)

// ProtocolVersion must match between client and server.
const ProtocolVersion = "1"

// Lanes used by the game layer. Control traffic overtakes chat, and chat
// overtakes bulk entity state on the stream.
const (
	LaneControl = 0
	LaneChat    = conn.DefaultLane
	LaneEntity  = 32
)

const (
	handshakeTimeout = 10 * time.Second
	flushTimeout     = time.Second
)

// ErrRejected is returned by Connect when the server answers with Disconnect.
var ErrRejected = errors.New("rejected by server")

type gameConn = conn.Connection[message.Message]

// flushAndStop sends last on the control lane, waits briefly for the queue to
// drain and stops c.
func flushAndStop(c *gameConn, last message.Message) {
	if err := c.Send(last, conn.Lane(LaneControl)); err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()

		tick := time.NewTicker(5 * time.Millisecond)
		defer tick.Stop()
		for c.Outstanding() > 0 {
			select {
			case <-tick.C:
			case <-ctx.Done():
				c.Stop()
				return
			}
		}
		// the last frame is written, give the peer a moment to read it
		time.Sleep(20 * time.Millisecond)
	}
	c.Stop()
}

// datagramTarget replaces an unspecified host in announced with fallback.
func datagramTarget(announced, fallback string) (string, error) {
	host, port, err := net.SplitHostPort(announced)
	if err != nil {
		return "", err
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = fallback
	}
	return net.JoinHostPort(host, port), nil
}

func hostOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return ""
	}
	return host
}
