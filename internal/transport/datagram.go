package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/Firebrandv3/game/internal/protocol"
)

// Datagram sends one frame per UDP datagram to a single peer. Datagrams from
// any other source are ignored.
type Datagram struct {
	conn *net.UDPConn
	peer *net.UDPAddr
	buf  []byte

	closeOnce sync.Once
	closeErr  error
}

// ListenDatagram binds local and targets peer.
func ListenDatagram(local, peer string) (*Datagram, error) {
	laddr, err := net.ResolveUDPAddr("udp", local)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", local, err)
	}
	raddr, err := net.ResolveUDPAddr("udp", peer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", peer, err)
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", local, err)
	}
	return NewDatagram(conn, raddr), nil
}

// NewDatagram wraps an already bound socket.
func NewDatagram(conn *net.UDPConn, peer *net.UDPAddr) *Datagram {
	return &Datagram{
		conn: conn,
		peer: peer,
		buf:  make([]byte, protocol.MaxFrameSize+1),
	}
}

func (d *Datagram) Send(f protocol.Frame) error {
	_, err := d.conn.WriteToUDP(protocol.Encode(f), d.peer)
	return Classify(err)
}

// Recv must not be called concurrently; it reuses one read buffer.
func (d *Datagram) Recv() (protocol.Frame, error) {
	for {
		n, from, err := d.conn.ReadFromUDP(d.buf)
		if err != nil {
			return protocol.Frame{}, Classify(err)
		}
		if !d.fromPeer(from) {
			continue
		}
		return protocol.Decode(d.buf[:n])
	}
}

func (d *Datagram) fromPeer(from *net.UDPAddr) bool {
	if from == nil || from.Port != d.peer.Port {
		return false
	}
	if d.peer.IP == nil || d.peer.IP.IsUnspecified() {
		return true
	}
	return d.peer.IP.Equal(from.IP)
}

func (d *Datagram) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.conn.Close()
	})
	return d.closeErr
}

func (d *Datagram) Reliable() bool { return false }

func (d *Datagram) LocalAddr() net.Addr  { return d.conn.LocalAddr() }
func (d *Datagram) RemoteAddr() net.Addr { return d.peer }
