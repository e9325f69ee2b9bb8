package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/Firebrandv3/game/internal/protocol"
)

// DefaultDialTimeout bounds TCP connection establishment.
const DefaultDialTimeout = 10 * time.Second

const readBufferSize = 64 * 1024

// Stream frames a continuous byte stream by length-prefixing every frame.
// It works over any io.ReadWriteCloser: TCP connections, QUIC streams, pipes.
type Stream struct {
	rwc io.ReadWriteCloser
	r   *bufio.Reader

	wmu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps rwc.
func NewStream(rwc io.ReadWriteCloser) *Stream {
	return &Stream{
		rwc: rwc,
		r:   bufio.NewReaderSize(rwc, readBufferSize),
	}
}

// Dial opens a TCP connection to addr.
func Dial(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: DefaultDialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return conn, nil
}

// Send writes one length-prefixed frame.
func (s *Stream) Send(f protocol.Frame) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return Classify(protocol.WriteFrame(s.rwc, f))
}

// Recv reads one length-prefixed frame.
func (s *Stream) Recv() (protocol.Frame, error) {
	f, err := protocol.ReadFrame(s.r)
	if err != nil {
		return protocol.Frame{}, Classify(err)
	}
	return f, nil
}

// Close closes the underlying stream once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.rwc.Close()
	})
	return s.closeErr
}

// Reliable is always true for streams.
func (s *Stream) Reliable() bool { return true }

// LocalAddr returns the local address when the stream is a network connection.
func (s *Stream) LocalAddr() net.Addr {
	if a, ok := s.rwc.(Addressed); ok {
		return a.LocalAddr()
	}
	return nil
}

// RemoteAddr returns the remote address when the stream is a network connection.
func (s *Stream) RemoteAddr() net.Addr {
	if a, ok := s.rwc.(Addressed); ok {
		return a.RemoteAddr()
	}
	return nil
}
