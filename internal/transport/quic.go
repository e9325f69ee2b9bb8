package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// ALPN is the application protocol negotiated on QUIC connections.
const ALPN = "voxnet"

const (
	quicIdleTimeout = 30 * time.Second
	quicKeepAlive   = 10 * time.Second
)

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  quicIdleTimeout,
		KeepAlivePeriod: quicKeepAlive,
	}
}

// quicStream joins a QUIC stream with its connection so closing the
// transport tears down both.
type quicStream struct {
	quic.Stream
	conn quic.Connection
}

func (s *quicStream) Close() error {
	return errors.Join(s.Stream.Close(), s.conn.CloseWithError(0, "closed"))
}

func (s *quicStream) LocalAddr() net.Addr  { return s.conn.LocalAddr() }
func (s *quicStream) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// DialQUIC connects to addr and opens one bidirectional stream.
//
// The listener only observes the stream once the first frame is written, so
// the dialing side must speak first.
func DialQUIC(ctx context.Context, addr string, tlsConf *tls.Config) (*Stream, error) {
	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to dial QUIC %s: %w", addr, err)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "")
		return nil, fmt.Errorf("failed to open QUIC stream: %w", err)
	}

	return NewStream(&quicStream{Stream: stream, conn: conn}), nil
}

// QUICListener accepts QUIC connections carrying one stream each.
type QUICListener struct {
	ln *quic.Listener
}

// ListenQUIC listens for QUIC connections on a UDP address.
func ListenQUIC(addr string, tlsConf *tls.Config) (*QUICListener, error) {
	ln, err := quic.ListenAddr(addr, tlsConf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to listen QUIC on %s: %w", addr, err)
	}
	return &QUICListener{ln: ln}, nil
}

// Accept waits for the next connection and its first stream.
func (l *QUICListener) Accept(ctx context.Context) (*Stream, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, err
	}

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "")
		return nil, fmt.Errorf("failed to accept QUIC stream: %w", err)
	}

	return NewStream(&quicStream{Stream: stream, conn: conn}), nil
}

func (l *QUICListener) Addr() net.Addr { return l.ln.Addr() }

func (l *QUICListener) Close() error { return l.ln.Close() }

// SelfSignedTLS returns a server config with a throwaway certificate for
// localhost, for demos and tests.
func SelfSignedTLS() (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, err
	}

	tmpl := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "voxnet"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		NextProtos:   []string{ALPN},
	}, nil
}

// ClientTLS returns a client config for ALPN. insecure skips certificate
// verification, which is required against SelfSignedTLS servers.
func ClientTLS(insecure bool) *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: insecure,
		NextProtos:         []string{ALPN},
	}
}
