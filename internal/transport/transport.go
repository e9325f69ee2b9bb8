// Package transport hides concrete sockets behind a frame-oriented interface.
//
// Stream adapters (TCP, QUIC, WebSocket) are ordered and reliable. Datagram
// adapters (UDP, WebRTC DataChannel) send one frame per datagram and may drop,
// duplicate or reorder frames. Every adapter translates its I/O errors into a
// *Fault so callers only deal with two failure classes.
package transport

import (
	"net"

	"github.com/Firebrandv3/game/internal/protocol"
)

// Transport sends and receives single frames.
//
// Send may be called concurrently with Recv. Implementations serialize
// concurrent Send calls; Recv is only ever called from one goroutine.
type Transport interface {
	// Send writes one frame. Errors are *Fault values or protocol errors.
	Send(f protocol.Frame) error

	// Recv blocks until one frame arrives. Errors are *Fault values or
	// protocol errors (malformed frames).
	Recv() (protocol.Frame, error)

	// Close releases the socket and unblocks a pending Recv.
	Close() error

	// Reliable reports whether frames arrive exactly once and in order.
	Reliable() bool
}

// Addressed is implemented by transports bound to a network endpoint.
type Addressed interface {
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}
