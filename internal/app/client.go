package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/Firebrandv3/game/internal/config"
	"github.com/Firebrandv3/game/internal/conn"
	"github.com/Firebrandv3/game/internal/message"
	"github.com/Firebrandv3/game/internal/signaling"
	"github.com/Firebrandv3/game/internal/transport"
	"github.com/Firebrandv3/game/internal/util"
)

// Handlers receive game events on the connection's dispatch goroutine.
type Handlers struct {
	OnChat   func(message.Chat)
	OnEntity func(message.EntityUpdate)
}

// Client is one player connected to a game server.
type Client struct {
	conn     *gameConn
	session  string
	handlers Handlers

	mu    sync.Mutex
	nonce uint64
	pings map[uint64]chan struct{}

	closeOnce sync.Once
	done      chan struct{}
	reason    string
}

// Connect dials the configured server, completes the Connect/Welcome
// handshake and opens the configured datagram channel.
func Connect(ctx context.Context, cfg *config.Config, h Handlers) (*Client, error) {
	c, serverHost, err := dialServer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.Start()

	cl := &Client{
		conn:     c,
		handlers: h,
		pings:    make(map[uint64]chan struct{}),
		done:     make(chan struct{}),
	}

	welcome, err := cl.handshake(ctx, cfg.Client.Alias)
	if err != nil {
		c.Stop()
		return nil, err
	}
	cl.session = welcome.Session
	util.LogSuccess("Connected to %s as %s", cfg.Client.Server, cfg.Client.Alias)

	switch cfg.Client.Datagram {
	case config.DatagramUDP:
		err = cl.openUDP(welcome.DatagramAddr, serverHost)
	case config.DatagramWebRTC:
		err = cl.openWebRTC(ctx, cfg.Client.SignalURL, cfg.Client.ICEServers)
	}
	if err != nil {
		c.Stop()
		return nil, fmt.Errorf("failed to open datagram channel: %w", err)
	}

	c.OnEvent(cl.handle)
	return cl, nil
}

// dialServer opens the configured stream transport and returns the host the
// server was reached at.
func dialServer(ctx context.Context, cfg *config.Config) (*gameConn, string, error) {
	addr := cfg.Client.Server
	opts := cfg.ConnOptions()

	switch cfg.Client.Transport {
	case config.TransportWebSocket:
		u, err := url.Parse(addr)
		if err != nil {
			return nil, "", &conn.ConnectError{Addr: addr, Err: err}
		}
		ws, err := transport.DialWebSocket(ctx, addr)
		if err != nil {
			return nil, "", &conn.ConnectError{Addr: addr, Err: err}
		}
		return conn.New[message.Message](ws, message.GameCodec{}, opts...), u.Hostname(), nil

	case config.TransportQUIC:
		st, err := transport.DialQUIC(ctx, addr, transport.ClientTLS(cfg.Client.Insecure))
		if err != nil {
			return nil, "", &conn.ConnectError{Addr: addr, Err: err}
		}
		host, _, _ := net.SplitHostPort(addr)
		return conn.New[message.Message](st, message.GameCodec{}, opts...), host, nil

	default:
		c, err := conn.Dial[message.Message](ctx, addr, message.GameCodec{}, opts...)
		if err != nil {
			return nil, "", err
		}
		host, _, _ := net.SplitHostPort(addr)
		return c, host, nil
	}
}

func (cl *Client) handshake(ctx context.Context, alias string) (*message.Welcome, error) {
	if err := cl.conn.Send(message.NewConnect(alias, ProtocolVersion), conn.Lane(LaneControl)); err != nil {
		return nil, err
	}

	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	msg, err := cl.conn.ReceiveContext(hctx)
	if err != nil {
		return nil, fmt.Errorf("no welcome: %w", err)
	}
	switch msg.Kind {
	case message.KindWelcome:
		return msg.Welcome, nil
	case message.KindDisconnect:
		return nil, fmt.Errorf("%w: %s", ErrRejected, msg.Disconnect.Reason)
	default:
		return nil, fmt.Errorf("expected welcome, got %s", msg.Kind)
	}
}

// openUDP binds a local socket towards the session address and announces it.
func (cl *Client) openUDP(announced, serverHost string) error {
	if announced == "" {
		return errors.New("server has UDP disabled")
	}
	target, err := datagramTarget(announced, serverHost)
	if err != nil {
		return err
	}

	tr, err := transport.ListenDatagram(":0", target)
	if err != nil {
		return err
	}
	local := tr.LocalAddr().String()
	if err := cl.conn.OpenDatagram(tr); err != nil {
		return err
	}
	return cl.conn.Send(message.NewDatagramOpened(local), conn.Lane(LaneControl))
}

func (cl *Client) openWebRTC(ctx context.Context, signalURL string, iceServers []string) error {
	u, err := url.Parse(signalURL)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("session", cl.session)
	u.RawQuery = q.Encode()

	peer, err := signaling.Dial(ctx, u.String(), transport.PeerOptions{ICEServers: iceServers})
	if err != nil {
		return err
	}
	return cl.conn.OpenDatagram(peer.Channel())
}

func (cl *Client) handle(ev conn.Event[message.Message]) {
	switch ev.Kind {
	case conn.EventError:
		util.LogWarning("%v", ev.Err)
		return
	case conn.EventDisconnected:
		cl.finish("connection closed")
		return
	}

	msg := ev.Message
	switch msg.Kind {
	case message.KindChat:
		if cl.handlers.OnChat != nil {
			cl.handlers.OnChat(*msg.Chat)
		}
	case message.KindEntityUpdate:
		if cl.handlers.OnEntity != nil {
			cl.handlers.OnEntity(*msg.EntityUpdate)
		}
	case message.KindPong:
		cl.mu.Lock()
		if ch, ok := cl.pings[msg.Pong.Nonce]; ok {
			close(ch)
			delete(cl.pings, msg.Pong.Nonce)
		}
		cl.mu.Unlock()
	case message.KindDisconnect:
		util.LogWarning("Server closed the session: %s", msg.Disconnect.Reason)
		cl.finish(msg.Disconnect.Reason)
		cl.conn.Stop()
	default:
		util.LogDebug("ignored %s", msg)
	}
}

func (cl *Client) finish(reason string) {
	cl.closeOnce.Do(func() {
		cl.reason = reason
		close(cl.done)
	})
}

// Session is the id assigned by the server.
func (cl *Client) Session() string { return cl.session }

// Done is closed once the session ended.
func (cl *Client) Done() <-chan struct{} { return cl.done }

// Reason describes why the session ended. Valid after Done is closed.
func (cl *Client) Reason() string {
	<-cl.done
	return cl.reason
}

// Chat sends a chat line to everyone.
func (cl *Client) Chat(text string) error {
	return cl.conn.Send(message.NewChat("", text), conn.Lane(LaneChat))
}

// UpdateEntity publishes a position over the datagram channel when one is
// open.
func (cl *Client) UpdateEntity(entity uint64, pos message.Vec3) error {
	return cl.conn.Send(message.NewEntityUpdate(entity, pos), conn.Unreliable(), conn.Lane(LaneEntity))
}

// Ping measures the round trip over the control lane.
func (cl *Client) Ping(ctx context.Context) (time.Duration, error) {
	cl.mu.Lock()
	cl.nonce++
	nonce := cl.nonce
	ch := make(chan struct{})
	cl.pings[nonce] = ch
	cl.mu.Unlock()

	defer func() {
		cl.mu.Lock()
		delete(cl.pings, nonce)
		cl.mu.Unlock()
	}()

	start := time.Now()
	if err := cl.conn.Send(message.NewPing(nonce), conn.Lane(LaneControl)); err != nil {
		return 0, err
	}

	select {
	case <-ch:
		return time.Since(start), nil
	case <-cl.done:
		return 0, conn.ErrDisconnected
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Close says goodbye to the server and disconnects.
func (cl *Client) Close() error {
	select {
	case <-cl.done:
	default:
		flushAndStop(cl.conn, message.NewDisconnect("bye"))
	}
	cl.conn.Wait()
	<-cl.done
	return nil
}
