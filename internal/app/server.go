package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Firebrandv3/game/internal/config"
	"github.com/Firebrandv3/game/internal/conn"
	"github.com/Firebrandv3/game/internal/message"
	"github.com/Firebrandv3/game/internal/signaling"
	"github.com/Firebrandv3/game/internal/transport"
	"github.com/Firebrandv3/game/internal/util"
)

// ServerName is the sender of chat notices generated by the server.
const ServerName = "server"

type session struct {
	id      string
	alias   string
	host    string // remote host of the stream
	conn    *gameConn
	limiter *rate.Limiter

	mu  sync.Mutex
	udp *net.UDPConn // bound for the session until handed to a datagram path
}

// takeUDP hands the pre-bound socket to the caller exactly once.
func (s *session) takeUDP() *net.UDPConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	udp := s.udp
	s.udp = nil
	return udp
}

// Server accepts game clients over TCP and, when configured, WebSocket and
// QUIC. HTTP also serves /signal for WebRTC datagram channels.
type Server struct {
	cfg  config.ServerConfig
	opts []conn.Option

	tcp  net.Listener
	http net.Listener
	quic *transport.QUICListener

	mu       sync.Mutex
	sessions map[string]*session
	wg       sync.WaitGroup
}

// NewServer prepares a server. Nothing is bound until Listen.
func NewServer(cfg *config.Config) *Server {
	return &Server{
		cfg:      cfg.Server,
		opts:     cfg.ConnOptions(),
		sessions: make(map[string]*session),
	}
}

// Listen binds every configured listener.
func (s *Server) Listen() (err error) {
	defer func() {
		if err != nil {
			s.closeListeners()
		}
	}()

	if s.tcp, err = net.Listen("tcp", s.cfg.Listen); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	util.LogInfo("Listening for TCP on %s", s.tcp.Addr())

	if s.cfg.HTTP != "" {
		if s.http, err = net.Listen("tcp", s.cfg.HTTP); err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.cfg.HTTP, err)
		}
		util.LogInfo("Serving /ws and /signal on %s", s.http.Addr())
	}

	if s.cfg.QUIC != "" {
		var tlsConf *tls.Config
		if tlsConf, err = transport.SelfSignedTLS(); err != nil {
			return err
		}
		if s.quic, err = transport.ListenQUIC(s.cfg.QUIC, tlsConf); err != nil {
			return err
		}
		util.LogInfo("Listening for QUIC on %s", s.quic.Addr())
	}
	return nil
}

func (s *Server) closeListeners() {
	if s.tcp != nil {
		s.tcp.Close()
	}
	if s.http != nil {
		s.http.Close()
	}
	if s.quic != nil {
		s.quic.Close()
	}
}

// TCPAddr returns the bound TCP address, nil before Listen.
func (s *Server) TCPAddr() net.Addr {
	if s.tcp == nil {
		return nil
	}
	return s.tcp.Addr()
}

// HTTPAddr returns the bound WebSocket/signaling address, nil when disabled.
func (s *Server) HTTPAddr() net.Addr {
	if s.http == nil {
		return nil
	}
	return s.http.Addr()
}

// QUICAddr returns the bound QUIC address, nil when disabled.
func (s *Server) QUICAddr() net.Addr {
	if s.quic == nil {
		return nil
	}
	return s.quic.Addr()
}

// Sessions returns the number of welcomed clients.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Run binds and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts clients until ctx is cancelled, then disconnects every
// session and waits for them to finish.
func (s *Server) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.acceptTCP(ctx) })

	var srv *http.Server
	if s.http != nil {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
			ws, err := transport.UpgradeWebSocket(w, r)
			if err != nil {
				util.LogWarning("WebSocket upgrade from %s failed: %v", r.RemoteAddr, err)
				return
			}
			s.wg.Add(1)
			defer s.wg.Done()

			host, _, _ := net.SplitHostPort(r.RemoteAddr)
			s.serveConn(ctx, conn.New[message.Message](ws, message.GameCodec{}, s.opts...), host)
		})
		mux.Handle("/signal", &signaling.Handler{
			Peer:      transport.PeerOptions{ICEServers: s.cfg.ICEServers},
			Authorize: s.authorizeSignal,
			OnPeer:    s.attachPeer,
		})
		srv = &http.Server{Handler: mux}

		g.Go(func() error {
			if err := srv.Serve(s.http); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if s.quic != nil {
		g.Go(func() error { return s.acceptQUIC(ctx) })
	}

	g.Go(func() error {
		<-ctx.Done()
		s.closeListeners()
		if srv != nil {
			srv.Close()
		}
		s.disconnectAll("server shutting down")
		return nil
	})

	err := g.Wait()
	s.wg.Wait()
	return err
}

func (s *Server) acceptTCP(ctx context.Context) error {
	for {
		nc, err := s.tcp.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		c, err := conn.FromStream[message.Message](nc, message.GameCodec{}, s.opts...)
		if err != nil {
			util.LogWarning("failed to set up %s: %v", nc.RemoteAddr(), err)
			nc.Close()
			continue
		}

		host := hostOf(nc.RemoteAddr())
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, c, host)
		}()
	}
}

func (s *Server) acceptQUIC(ctx context.Context) error {
	for {
		st, err := s.quic.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("QUIC accept failed: %w", err)
		}

		host := hostOf(st.RemoteAddr())
		c := conn.New[message.Message](st, message.GameCodec{}, s.opts...)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, c, host)
		}()
	}
}

// serveConn runs one client from handshake to disconnect.
func (s *Server) serveConn(ctx context.Context, c *gameConn, host string) {
	c.Start()
	defer c.Stop()

	sess, err := s.handshake(ctx, c, host)
	if err != nil {
		util.LogWarning("[%08x] handshake failed: %v", c.ID(), err)
		return
	}
	defer s.leave(sess)

	for {
		msg, err := c.Receive()
		if err != nil {
			if errors.Is(err, conn.ErrDisconnected) {
				return
			}
			util.LogWarning("[%s] %v", sess.alias, err)
			continue
		}
		if !s.dispatch(sess, msg) {
			return
		}
	}
}

// handshake expects Connect, answers Welcome and registers the session.
func (s *Server) handshake(ctx context.Context, c *gameConn, host string) (*session, error) {
	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	msg, err := c.ReceiveContext(hctx)
	if err != nil {
		return nil, err
	}
	if msg.Kind != message.KindConnect {
		flushAndStop(c, message.NewDisconnect("expected connect"))
		return nil, fmt.Errorf("first message was %s", msg.Kind)
	}
	if msg.Connect.Version != ProtocolVersion {
		flushAndStop(c, message.NewDisconnect("version mismatch"))
		return nil, fmt.Errorf("client version %q", msg.Connect.Version)
	}

	sess := &session{
		id:      uuid.NewString(),
		alias:   msg.Connect.Alias,
		host:    host,
		conn:    c,
		limiter: rate.NewLimiter(rate.Limit(s.cfg.ChatRate), s.cfg.ChatBurst),
	}

	var udpAddr string
	if s.cfg.UDPHost != "" {
		udp, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(s.cfg.UDPHost)})
		if err != nil {
			return nil, fmt.Errorf("failed to bind session socket: %w", err)
		}
		sess.udp = udp
		udpAddr = udp.LocalAddr().String()
	}

	if err := c.Send(message.NewWelcome(sess.id, udpAddr), conn.Lane(LaneControl)); err != nil {
		if udp := sess.takeUDP(); udp != nil {
			udp.Close()
		}
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	util.LogSuccess("%s joined from %s", sess.alias, host)
	s.broadcast(message.NewChat(ServerName, sess.alias+" joined"), nil)
	return sess, nil
}

func (s *Server) leave(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()

	if udp := sess.takeUDP(); udp != nil {
		udp.Close()
	}
	util.LogInfo("%s left", sess.alias)
	s.broadcast(message.NewChat(ServerName, sess.alias+" left"), nil)
}

// dispatch handles one message and reports whether the session continues.
func (s *Server) dispatch(sess *session, msg message.Message) bool {
	switch msg.Kind {
	case message.KindChat:
		if !sess.limiter.Allow() {
			util.LogWarning("[%s] chat rate exceeded, message dropped", sess.alias)
			return true
		}
		s.broadcast(message.NewChat(sess.alias, msg.Chat.Text), nil)

	case message.KindEntityUpdate:
		s.broadcast(msg, sess, conn.Unreliable(), conn.Lane(LaneEntity))

	case message.KindPing:
		if err := sess.conn.Send(message.NewPong(msg.Ping.Nonce), conn.Lane(LaneControl)); err != nil {
			util.LogDebug("[%s] pong: %v", sess.alias, err)
		}

	case message.KindDatagramOpened:
		if err := s.openDatagram(sess, msg.DatagramOpened.Addr); err != nil {
			util.LogWarning("[%s] datagram channel: %v", sess.alias, err)
		}

	case message.KindDisconnect:
		util.LogInfo("[%s] disconnecting: %s", sess.alias, msg.Disconnect.Reason)
		return false

	default:
		util.LogWarning("[%s] unexpected %s message", sess.alias, msg.Kind)
	}
	return true
}

func (s *Server) openDatagram(sess *session, announced string) error {
	udp := sess.takeUDP()
	if udp == nil {
		return errors.New("no UDP socket for this session")
	}

	target, err := datagramTarget(announced, sess.host)
	if err == nil {
		var peer *net.UDPAddr
		if peer, err = net.ResolveUDPAddr("udp", target); err == nil {
			return sess.conn.OpenDatagram(transport.NewDatagram(udp, peer))
		}
	}
	udp.Close()
	return err
}

// broadcast sends msg to every session except skip.
func (s *Server) broadcast(msg message.Message, skip *session, opts ...conn.SendOption) {
	s.mu.Lock()
	targets := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess != skip {
			targets = append(targets, sess)
		}
	}
	s.mu.Unlock()

	for _, sess := range targets {
		if err := sess.conn.Send(msg, opts...); err != nil {
			util.LogDebug("[%s] broadcast %s: %v", sess.alias, msg, err)
		}
	}
}

func (s *Server) disconnectAll(reason string) {
	s.mu.Lock()
	targets := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		targets = append(targets, sess)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, sess := range targets {
		sess := sess
		wg.Add(1)
		go func() {
			defer wg.Done()
			flushAndStop(sess.conn, message.NewDisconnect(reason))
		}()
	}
	wg.Wait()
}

func (s *Server) lookup(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) authorizeSignal(r *http.Request) error {
	if _, ok := s.lookup(r.URL.Query().Get("session")); !ok {
		return errors.New("unknown session")
	}
	return nil
}

func (s *Server) attachPeer(r *http.Request, peer *transport.Peer) {
	sess, ok := s.lookup(r.URL.Query().Get("session"))
	if !ok {
		peer.Close()
		return
	}
	if err := sess.conn.OpenDatagram(peer.Channel()); err != nil {
		util.LogWarning("[%s] WebRTC datagram channel: %v", sess.alias, err)
		return
	}
	util.LogInfo("[%s] WebRTC datagram channel open", sess.alias)
}
