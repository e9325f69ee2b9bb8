package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/quic-go/quic-go"

	"github.com/Firebrandv3/game/internal/protocol"
)

// FaultKind separates a vanished peer from any other I/O failure.
type FaultKind int

const (
	PeerDisconnected FaultKind = iota + 1 // reset, aborted, refused or closed by the peer
	Fatal                                 // any other I/O failure
)

func (k FaultKind) String() string {
	switch k {
	case PeerDisconnected:
		return "peer disconnected"
	case Fatal:
		return "fatal transport error"
	default:
		return fmt.Sprintf("FaultKind(%d)", int(k))
	}
}

// Sentinels matched by errors.Is against a *Fault.
var (
	ErrPeerDisconnected = errors.New("peer disconnected")
	ErrFatal            = errors.New("fatal transport error")
)

// ErrChannelClosed is reported by datagram channels once they are closed.
var ErrChannelClosed = errors.New("channel closed")

// Fault is a classified transport error.
type Fault struct {
	Kind FaultKind
	Err  error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

// Unwrap exposes both the kind sentinel and the underlying error.
func (f *Fault) Unwrap() []error {
	return []error{f.sentinel(), f.Err}
}

func (f *Fault) sentinel() error {
	if f.Kind == PeerDisconnected {
		return ErrPeerDisconnected
	}
	return ErrFatal
}

// IsPeerDisconnect reports whether err is a peer-disconnect fault.
func IsPeerDisconnect(err error) bool {
	return errors.Is(err, ErrPeerDisconnected)
}

// Classify turns a raw I/O error into a *Fault. Nil, existing faults and
// protocol errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var f *Fault
	if errors.As(err, &f) {
		return err
	}
	if protocol.IsProtocolError(err) {
		return err
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		return fmt.Errorf("%w: %v", protocol.ErrDecode, err)
	}

	if isPeerDisconnect(err) {
		return &Fault{Kind: PeerDisconnected, Err: err}
	}
	return &Fault{Kind: Fatal, Err: err}
}

func isPeerDisconnect(err error) bool {
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, ErrChannelClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE):
		return true
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}

	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) {
		return true
	}
	var idleErr *quic.IdleTimeoutError
	if errors.As(err, &idleErr) {
		return true
	}
	var streamErr *quic.StreamError
	return errors.As(err, &streamErr)
}
