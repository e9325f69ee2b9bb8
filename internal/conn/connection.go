// Package conn multiplexes whole messages over a reliable stream transport
// and an optional unreliable datagram transport.
//
// Messages are serialized by a message.Codec, queued on one of LaneCount
// priority lanes and split into frames by a send worker. A receive worker per
// transport reassembles frames into messages and publishes them, together
// with errors and the final disconnect, as one ordered event stream.
package conn

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/Firebrandv3/game/internal/message"
	"github.com/Firebrandv3/game/internal/protocol"
	"github.com/Firebrandv3/game/internal/transport"
	"github.com/Firebrandv3/game/internal/util"
)

// State is the lifecycle position of a Connection.
type State int32

const (
	StateOpen State = iota
	StateRunning
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateRunning:
		return "running"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Connection carries messages of type M to one peer.
type Connection[M any] struct {
	id    uint32
	log   util.ConnLogger
	codec message.Codec[M]
	opts  Options
	seq   SeqGen

	state     atomic.Int32
	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}

	mu       sync.Mutex
	cause    error
	datagram *path

	stream *path
	events *eventQueue[M]

	handlerOnce sync.Once
	wg          sync.WaitGroup
}

// Dial opens a TCP connection to addr.
func Dial[M any](ctx context.Context, addr string, codec message.Codec[M], opts ...Option) (*Connection[M], error) {
	nc, err := transport.Dial(ctx, addr)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Err: err}
	}
	return New[M](transport.NewStream(nc), codec, opts...), nil
}

// FromStream wraps an accepted stream, typically a *net.TCPConn.
func FromStream[M any](rwc io.ReadWriteCloser, codec message.Codec[M], opts ...Option) (*Connection[M], error) {
	if rwc == nil {
		return nil, &ConnectError{Addr: "<nil>", Err: net.ErrClosed}
	}
	if tcp, ok := rwc.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(true); err != nil {
			return nil, &ConnectError{Addr: tcp.RemoteAddr().String(), Err: err}
		}
	}
	return New[M](transport.NewStream(rwc), codec, opts...), nil
}

// New builds a connection over any reliable stream transport. The
// connection owns stream and closes it on shutdown.
func New[M any](stream transport.Transport, codec message.Codec[M], opts ...Option) *Connection[M] {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.sanitize()

	var id uint32
	if a, ok := stream.(transport.Addressed); ok {
		id = util.ConnID(a.LocalAddr(), a.RemoteAddr())
	} else {
		id = util.ConnID(nil, nil)
	}

	c := &Connection[M]{
		id:     id,
		log:    util.NewConnLogger(id),
		codec:  codec,
		opts:   o,
		done:   make(chan struct{}),
		stream: newPath("stream", stream, o),
		events: newEventQueue[M](),
	}
	util.Stats.AddConn()
	return c
}

// ID identifies the connection in logs.
func (c *Connection[M]) ID() uint32 { return c.id }

func (c *Connection[M]) State() State { return State(c.state.Load()) }

// Done is closed once the connection is disconnected.
func (c *Connection[M]) Done() <-chan struct{} { return c.done }

// Err returns the shutdown cause: nil while running and after Stop.
func (c *Connection[M]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// Outstanding returns the number of queued messages not yet fully sent.
func (c *Connection[M]) Outstanding() int {
	n := 0
	for _, p := range c.paths() {
		n += p.lanes.pending()
	}
	return n
}

// Start spawns the workers. It has no effect after the first call or once
// the connection is disconnected.
func (c *Connection[M]) Start() {
	c.startOnce.Do(func() {
		if !c.state.CompareAndSwap(int32(StateOpen), int32(StateRunning)) {
			return
		}
		c.log.Debug("connection started")

		c.spawn(c.stream)
		if dg := c.datagramPath(); dg != nil {
			c.spawn(dg)
		}

		c.wg.Add(1)
		go c.janitor()
	})
}

// Stop disconnects without flushing queued messages. It does not wait for
// the workers to exit.
func (c *Connection[M]) Stop() {
	c.shutdown(nil)
}

// Wait blocks until every worker has exited. Call it after Stop.
func (c *Connection[M]) Wait() {
	c.wg.Wait()
}

// shutdown runs once: it closes every path, which unblocks the workers, and
// publishes the single disconnect event.
func (c *Connection[M]) shutdown(cause error) {
	c.stopOnce.Do(func() {
		c.state.Store(int32(StateDisconnected))

		c.mu.Lock()
		c.cause = cause
		c.mu.Unlock()

		for _, p := range c.paths() {
			if err := p.close(); err != nil {
				c.log.Debug("close %s: %v", p.name, err)
			}
		}

		switch {
		case cause == nil:
			c.log.Debug("connection stopped")
		case transport.IsPeerDisconnect(cause):
			c.log.Info("peer disconnected")
		default:
			c.log.Error("connection failed: %v", cause)
		}

		c.events.push(Event[M]{Kind: EventDisconnected, Err: c.disconnectErr()})
		close(c.done)
		util.Stats.RemoveConn()
	})
}

func (c *Connection[M]) disconnectErr() error {
	cause := c.Err()
	if cause == nil {
		return ErrDisconnected
	}
	return fmt.Errorf("%w: %w", ErrDisconnected, cause)
}

func (c *Connection[M]) datagramPath() *path {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.datagram
}

func (c *Connection[M]) paths() []*path {
	if dg := c.datagramPath(); dg != nil {
		return []*path{c.stream, dg}
	}
	return []*path{c.stream}
}

// OpenDatagramChannel binds a UDP socket on listen and attaches it as the
// datagram path towards peer.
func (c *Connection[M]) OpenDatagramChannel(listen, peer string) error {
	if dg := c.datagramPath(); dg != nil && !dg.stopped() {
		c.log.Error("datagram channel already open")
		return ErrDatagramAlreadyOpen
	}

	tr, err := transport.ListenDatagram(listen, peer)
	if err != nil {
		return &ConnectError{Addr: listen, Err: err}
	}
	return c.OpenDatagram(tr)
}

// OpenDatagram attaches tr as the datagram path. Only one datagram path may
// be open at a time; a path closed by a transport failure may be replaced.
// On error tr is closed.
func (c *Connection[M]) OpenDatagram(tr transport.Transport) error {
	c.mu.Lock()
	if c.State() == StateDisconnected {
		c.mu.Unlock()
		tr.Close()
		return ErrDisconnected
	}
	if c.datagram != nil && !c.datagram.stopped() {
		c.mu.Unlock()
		tr.Close()
		c.log.Error("datagram channel already open")
		return ErrDatagramAlreadyOpen
	}

	p := newPath("datagram", tr, c.opts)
	c.datagram = p
	c.mu.Unlock()

	if c.State() == StateRunning {
		c.spawn(p)
	}
	// Stop may have run between the check and the assignment.
	if c.State() == StateDisconnected {
		p.close()
	}

	c.log.Debug("datagram channel open")
	return nil
}

// Send serializes msg and queues it. It returns before any frame is written,
// so the bytes produced by the codec must not change after the call.
func (c *Connection[M]) Send(msg M, opts ...SendOption) error {
	so := sendOptions{lane: c.opts.DefaultLane}
	for _, opt := range opts {
		opt(&so)
	}
	if so.lane < 0 || so.lane >= LaneCount {
		return fmt.Errorf("%w: %d", ErrInvalidLane, so.lane)
	}

	if c.State() == StateDisconnected {
		c.log.Error("send on disconnected connection")
		return ErrDisconnected
	}

	data, err := c.codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	if uint64(len(data)) > c.opts.MaxMessageSize {
		return fmt.Errorf("%w: %w: %d bytes", ErrSerialization, protocol.ErrTooLarge, len(data))
	}

	pkt := protocol.NewOutgoingPacket(data, c.seq.Next())
	queued := false
	if so.unreliable {
		// a datagram path closed since the lookup refuses the packet
		if dg := c.datagramPath(); dg != nil {
			queued = dg.lanes.push(so.lane, pkt)
		}
	}
	if !queued && !c.stream.lanes.push(so.lane, pkt) {
		return ErrDisconnected
	}

	util.Stats.AddMessageSent()
	return nil
}

// Receive blocks until the next message. Error events are returned as
// errors. Once disconnected and drained it returns ErrDisconnected wrapping
// the cause.
func (c *Connection[M]) Receive() (M, error) {
	return c.ReceiveContext(context.Background())
}

// ReceiveContext is Receive with cancellation.
func (c *Connection[M]) ReceiveContext(ctx context.Context) (M, error) {
	var zero M
	for {
		if ev, ok := c.events.pop(); ok {
			return ev.Message, ev.Err
		}
		if c.State() == StateDisconnected {
			return zero, c.disconnectErr()
		}

		select {
		case <-c.events.notify:
		case <-c.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// TryReceive returns the next queued message without blocking. Error events
// ahead of it are consumed and logged. The disconnect event is left queued
// for Receive or an OnEvent handler; check State or Done to tell a
// disconnected connection from an idle one.
func (c *Connection[M]) TryReceive() (M, bool) {
	var zero M
	for {
		ev, ok := c.events.popUnless(EventDisconnected)
		if !ok {
			return zero, false
		}
		switch ev.Kind {
		case EventMessage:
			return ev.Message, true
		case EventError:
			c.log.Debug("dropped error event: %v", ev.Err)
		}
	}
}

// OnEvent registers fn to receive every event, starting with those already
// queued. fn runs on a dedicated goroutine, one event at a time, and is
// called for the last time with EventDisconnected. Receive and TryReceive
// see nothing once a handler is registered. Only the first handler counts.
func (c *Connection[M]) OnEvent(fn func(Event[M])) {
	c.handlerOnce.Do(func() {
		go c.dispatch(fn)
	})
}

func (c *Connection[M]) dispatch(fn func(Event[M])) {
	for {
		if ev, ok := c.events.pop(); ok {
			fn(ev)
			if ev.Kind == EventDisconnected {
				return
			}
			continue
		}

		select {
		case <-c.events.notify:
		case <-c.done:
			for {
				ev, ok := c.events.pop()
				if !ok {
					return
				}
				fn(ev)
			}
		}
	}
}
