package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Firebrandv3/game/internal/protocol"
)

func sendAsync(tr Transport, f protocol.Frame) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- tr.Send(f) }()
	return errCh
}

func assertFrame(t *testing.T, got, want protocol.Frame) {
	t.Helper()
	if got.Kind != want.Kind || got.ID != want.ID || got.TotalSize != want.TotalSize || !bytes.Equal(got.Payload, want.Payload) {
		t.Fatalf("frame mismatch: got %v, want %v", got, want)
	}
}

func TestStreamRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	left, right := NewStream(a), NewStream(b)
	defer left.Close()
	defer right.Close()

	frames := []protocol.Frame{
		protocol.HeaderFrame(1, 3),
		protocol.DataFrame(1, []byte("abc")),
		protocol.HeaderFrame(2, 0),
	}

	for _, f := range frames {
		errCh := sendAsync(left, f)
		got, err := right.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if err := <-errCh; err != nil {
			t.Fatalf("Send: %v", err)
		}
		assertFrame(t, got, f)
	}

	if !left.Reliable() {
		t.Error("stream must be reliable")
	}
}

func TestStreamPeerClosed(t *testing.T) {
	a, b := net.Pipe()
	left, right := NewStream(a), NewStream(b)

	left.Close()

	_, err := right.Recv()
	if !IsPeerDisconnect(err) {
		t.Fatalf("Recv after peer close: got %v, want peer disconnect", err)
	}

	err = right.Send(protocol.HeaderFrame(1, 0))
	if !IsPeerDisconnect(err) {
		t.Fatalf("Send after peer close: got %v, want peer disconnect", err)
	}
}

func TestStreamMalformedLength(t *testing.T) {
	a, b := net.Pipe()
	right := NewStream(b)
	defer right.Close()

	go func() {
		a.Write([]byte{0, 0, 0, 0})
		a.Close()
	}()

	_, err := right.Recv()
	if !errors.Is(err, protocol.ErrDecode) {
		t.Fatalf("got %v, want ErrDecode", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind FaultKind
	}{
		{"eof", io.EOF, PeerDisconnected},
		{"unexpected eof", io.ErrUnexpectedEOF, PeerDisconnected},
		{"closed", net.ErrClosed, PeerDisconnected},
		{"reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, PeerDisconnected},
		{"aborted", syscall.ECONNABORTED, PeerDisconnected},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), PeerDisconnected},
		{"broken pipe", syscall.EPIPE, PeerDisconnected},
		{"ws close", &websocket.CloseError{Code: websocket.CloseGoingAway}, PeerDisconnected},
		{"channel closed", ErrChannelClosed, PeerDisconnected},
		{"other", errors.New("disk on fire"), Fatal},
		{"timeout", syscall.ETIMEDOUT, Fatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.err)

			var f *Fault
			if !errors.As(err, &f) {
				t.Fatalf("Classify(%v) = %T, want *Fault", tt.err, err)
			}
			if f.Kind != tt.kind {
				t.Fatalf("kind = %v, want %v", f.Kind, tt.kind)
			}
			if !errors.Is(err, tt.err) {
				t.Fatal("underlying error is not wrapped")
			}

			sentinel := ErrFatal
			if tt.kind == PeerDisconnected {
				sentinel = ErrPeerDisconnected
			}
			if !errors.Is(err, sentinel) {
				t.Fatalf("errors.Is(%v, %v) = false", err, sentinel)
			}
		})
	}
}

func TestClassifyPassThrough(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatal("Classify(nil) != nil")
	}

	decodeErr := fmt.Errorf("%w: short", protocol.ErrDecode)
	if got := Classify(decodeErr); got != decodeErr {
		t.Fatalf("protocol error changed: %v", got)
	}

	fault := &Fault{Kind: Fatal, Err: errors.New("x")}
	if got := Classify(fault); got != fault {
		t.Fatal("fault was re-wrapped")
	}
}

func newUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	return conn
}

func TestDatagramRoundTrip(t *testing.T) {
	ca, cb, stranger := newUDP(t), newUDP(t), newUDP(t)
	defer stranger.Close()

	a := NewDatagram(ca, cb.LocalAddr().(*net.UDPAddr))
	b := NewDatagram(cb, ca.LocalAddr().(*net.UDPAddr))
	defer a.Close()
	defer b.Close()

	if a.Reliable() {
		t.Error("datagram must be unreliable")
	}

	if _, err := stranger.WriteToUDP(protocol.Encode(protocol.HeaderFrame(99, 0)), ca.LocalAddr().(*net.UDPAddr)); err != nil {
		t.Fatalf("stranger write: %v", err)
	}

	want := protocol.DataFrame(7, []byte("payload"))
	if err := b.Send(want); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ca.SetReadDeadline(time.Now().Add(5 * time.Second))
	got, err := a.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	assertFrame(t, got, want)
}

func TestDatagramMalformed(t *testing.T) {
	ca, cb := newUDP(t), newUDP(t)
	a := NewDatagram(ca, cb.LocalAddr().(*net.UDPAddr))
	defer a.Close()
	defer cb.Close()

	cb.WriteToUDP([]byte{0x7f, 1, 2}, ca.LocalAddr().(*net.UDPAddr))

	ca.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err := a.Recv()
	if !errors.Is(err, protocol.ErrDecode) {
		t.Fatalf("got %v, want ErrDecode", err)
	}
}

func TestDatagramCloseUnblocksRecv(t *testing.T) {
	ca, cb := newUDP(t), newUDP(t)
	defer cb.Close()
	a := NewDatagram(ca, cb.LocalAddr().(*net.UDPAddr))

	errCh := make(chan error, 1)
	go func() {
		_, err := a.Recv()
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	a.Close()

	select {
	case err := <-errCh:
		if !IsPeerDisconnect(err) {
			t.Fatalf("got %v, want peer disconnect", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Recv still blocked after Close")
	}
}

func TestWebSocketRoundTrip(t *testing.T) {
	serverSide := make(chan *WebSocket, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := UpgradeWebSocket(w, r)
		if err != nil {
			return
		}
		serverSide <- ws
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := DialWebSocket(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("DialWebSocket: %v", err)
	}
	defer client.Close()

	server := <-serverSide
	want := protocol.DataFrame(3, []byte("over websocket"))
	if err := client.Send(want); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := server.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	assertFrame(t, got, want)

	client.Close()
	if _, err := server.Recv(); !IsPeerDisconnect(err) {
		t.Fatalf("got %v, want peer disconnect", err)
	}
}

func TestQUICRoundTrip(t *testing.T) {
	tlsConf, err := SelfSignedTLS()
	if err != nil {
		t.Fatalf("SelfSignedTLS: %v", err)
	}

	ln, err := ListenQUIC("127.0.0.1:0", tlsConf)
	if err != nil {
		t.Fatalf("ListenQUIC: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	accepted := make(chan *Stream, 1)
	go func() {
		s, err := ln.Accept(ctx)
		if err != nil {
			close(accepted)
			return
		}
		accepted <- s
	}()

	client, err := DialQUIC(ctx, ln.Addr().String(), ClientTLS(true))
	if err != nil {
		t.Fatalf("DialQUIC: %v", err)
	}

	first := protocol.HeaderFrame(1, 4)
	if err := client.Send(first); err != nil {
		t.Fatalf("Send: %v", err)
	}

	server, ok := <-accepted
	if !ok {
		t.Fatal("Accept failed")
	}
	defer server.Close()

	got, err := server.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	assertFrame(t, got, first)

	reply := protocol.DataFrame(1, []byte("pong"))
	if err := server.Send(reply); err != nil {
		t.Fatalf("Send reply: %v", err)
	}
	got, err = client.Recv()
	if err != nil {
		t.Fatalf("Recv reply: %v", err)
	}
	assertFrame(t, got, reply)

	if server.RemoteAddr() == nil {
		t.Error("QUIC stream has no remote address")
	}

	client.Close()
	if _, err := server.Recv(); !IsPeerDisconnect(err) {
		t.Fatalf("got %v, want peer disconnect", err)
	}
}
