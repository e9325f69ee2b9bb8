package conn

import (
	"context"
	"errors"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Firebrandv3/game/internal/message"
	"github.com/Firebrandv3/game/internal/protocol"
	"github.com/Firebrandv3/game/internal/transport"
)

const waitFor = 5 * time.Second

type chatMsg struct {
	Text string
}

// chatCodec encodes a chat message as its raw text.
type chatCodec struct{}

func (chatCodec) Marshal(m chatMsg) ([]byte, error) {
	if m.Text == "" {
		return nil, errors.New("empty chat")
	}
	return []byte(m.Text), nil
}

func (chatCodec) Unmarshal(data []byte) (chatMsg, error) {
	if string(data) == "bad" {
		return chatMsg{}, errors.New("rejected")
	}
	return chatMsg{Text: string(data)}, nil
}

func newPipePair[M any](t *testing.T, codec message.Codec[M], opts ...Option) (*Connection[M], *Connection[M]) {
	t.Helper()
	a, b := net.Pipe()
	ca := New[M](transport.NewStream(a), codec, opts...)
	cb := New[M](transport.NewStream(b), codec, opts...)
	t.Cleanup(func() {
		ca.Stop()
		cb.Stop()
	})
	return ca, cb
}

func receive[M any](t *testing.T, c *Connection[M]) M {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	m, err := c.ReceiveContext(ctx)
	require.NoError(t, err)
	return m
}

func receiveErr[M any](t *testing.T, c *Connection[M]) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	_, err := c.ReceiveContext(ctx)
	require.Error(t, err)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return err
}

// recorder wraps a transport and keeps every frame it sends.
type recorder struct {
	transport.Transport

	mu     sync.Mutex
	frames []protocol.Frame
}

func (r *recorder) Send(f protocol.Frame) error {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
	return r.Transport.Send(f)
}

func (r *recorder) sent() []protocol.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Frame(nil), r.frames...)
}

// memDatagram is an in-memory unreliable transport. filter decides which
// copies of a sent frame reach the peer; a full inbox drops the frame.
type memDatagram struct {
	in     chan protocol.Frame
	peer   *memDatagram
	errs   chan error
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	filter func(protocol.Frame) []protocol.Frame
}

func newMemDatagramPair() (*memDatagram, *memDatagram) {
	a := &memDatagram{in: make(chan protocol.Frame, 256), errs: make(chan error, 1), closed: make(chan struct{})}
	b := &memDatagram{in: make(chan protocol.Frame, 256), errs: make(chan error, 1), closed: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

func (d *memDatagram) setFilter(fn func(protocol.Frame) []protocol.Frame) {
	d.mu.Lock()
	d.filter = fn
	d.mu.Unlock()
}

func (d *memDatagram) Send(f protocol.Frame) error {
	select {
	case <-d.closed:
		return &transport.Fault{Kind: transport.PeerDisconnected, Err: transport.ErrChannelClosed}
	default:
	}

	d.mu.Lock()
	filter := d.filter
	d.mu.Unlock()

	out := []protocol.Frame{f}
	if filter != nil {
		out = filter(f)
	}
	for _, f := range out {
		d.peer.inject(f)
	}
	return nil
}

// inject delivers f as if the peer had sent it.
func (d *memDatagram) inject(f protocol.Frame) {
	select {
	case d.in <- f:
	default:
	}
}

func (d *memDatagram) Recv() (protocol.Frame, error) {
	select {
	case f := <-d.in:
		return f, nil
	case err := <-d.errs:
		return protocol.Frame{}, err
	case <-d.closed:
		return protocol.Frame{}, &transport.Fault{Kind: transport.PeerDisconnected, Err: transport.ErrChannelClosed}
	}
}

func (d *memDatagram) Close() error {
	d.once.Do(func() { close(d.closed) })
	return nil
}

func (d *memDatagram) isClosed() bool {
	select {
	case <-d.closed:
		return true
	default:
		return false
	}
}

func (d *memDatagram) Reliable() bool { return false }

// resetTransport fails both directions with a connection reset once released.
type resetTransport struct {
	release chan struct{}
	closed  chan struct{}
	once    sync.Once
}

func newResetTransport() *resetTransport {
	return &resetTransport{release: make(chan struct{}), closed: make(chan struct{})}
}

func (r *resetTransport) fault() error {
	return transport.Classify(&net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET})
}

func (r *resetTransport) Send(protocol.Frame) error {
	select {
	case <-r.release:
	case <-r.closed:
	}
	return r.fault()
}

func (r *resetTransport) Recv() (protocol.Frame, error) {
	select {
	case <-r.release:
	case <-r.closed:
	}
	return protocol.Frame{}, r.fault()
}

func (r *resetTransport) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

func (r *resetTransport) Reliable() bool { return true }

// brokenDatagram fails every Send with a fatal fault. Recv blocks until
// Close.
type brokenDatagram struct {
	closed chan struct{}
	once   sync.Once
}

func newBrokenDatagram() *brokenDatagram {
	return &brokenDatagram{closed: make(chan struct{})}
}

func (d *brokenDatagram) Send(protocol.Frame) error {
	return &transport.Fault{Kind: transport.Fatal, Err: errors.New("sendto: no buffer space available")}
}

func (d *brokenDatagram) Recv() (protocol.Frame, error) {
	<-d.closed
	return protocol.Frame{}, &transport.Fault{Kind: transport.PeerDisconnected, Err: transport.ErrChannelClosed}
}

func (d *brokenDatagram) Close() error {
	d.once.Do(func() { close(d.closed) })
	return nil
}

func (d *brokenDatagram) isClosed() bool {
	select {
	case <-d.closed:
		return true
	default:
		return false
	}
}

func (d *brokenDatagram) Reliable() bool { return false }
