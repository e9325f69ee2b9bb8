package transport

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/Firebrandv3/game/internal/protocol"
	"github.com/Firebrandv3/game/internal/util"
)

const (
	highWaterMark = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark  = 64 * 1024  // resume sending when bufferedAmount drops below this
	inboxSize     = 256        // inbound frames buffered ahead of Recv
)

// DataChannel adapts an unreliable, unordered pion DataChannel to the
// Transport interface. Inbound messages that overflow the inbox are dropped.
type DataChannel struct {
	raw *webrtc.DataChannel
	pc  *webrtc.PeerConnection // closed with the channel when set

	inbox     chan []byte
	sendReady chan struct{}
	closed    chan struct{}

	closeOnce sync.Once
	doneOnce  sync.Once
	closeErr  error
}

// NewDataChannel wraps raw and installs the message, close and backpressure
// callbacks. raw does not need to be open yet; Send and Recv work once it is.
func NewDataChannel(raw *webrtc.DataChannel) *DataChannel {
	c := &DataChannel{
		raw:       raw,
		inbox:     make(chan []byte, inboxSize),
		sendReady: make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}

	raw.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	raw.OnBufferedAmountLow(func() {
		select {
		case c.sendReady <- struct{}{}:
		default:
		}
	})

	raw.OnMessage(func(msg webrtc.DataChannelMessage) {
		if msg.IsString {
			return
		}
		data := make([]byte, len(msg.Data))
		copy(data, msg.Data)

		select {
		case c.inbox <- data:
		case <-c.closed:
		default:
			util.LogDebug("datachannel %q inbox full, dropping %d bytes", raw.Label(), len(data))
		}
	})

	raw.OnClose(c.markClosed)

	return c
}

func (c *DataChannel) markClosed() {
	c.doneOnce.Do(func() { close(c.closed) })
}

// Send blocks while the SCTP buffer is above the high water mark.
func (c *DataChannel) Send(f protocol.Frame) error {
	if c.raw.BufferedAmount() > uint64(highWaterMark) {
		select {
		case <-c.sendReady:
		case <-c.closed:
			return &Fault{Kind: PeerDisconnected, Err: ErrChannelClosed}
		}
	}

	select {
	case <-c.closed:
		return &Fault{Kind: PeerDisconnected, Err: ErrChannelClosed}
	default:
	}

	return Classify(c.raw.Send(protocol.Encode(f)))
}

func (c *DataChannel) Recv() (protocol.Frame, error) {
	select {
	case data := <-c.inbox:
		return protocol.Decode(data)
	case <-c.closed:
		return protocol.Frame{}, &Fault{Kind: PeerDisconnected, Err: ErrChannelClosed}
	}
}

// Close closes the channel and, if it owns one, the PeerConnection.
func (c *DataChannel) Close() error {
	c.closeOnce.Do(func() {
		c.markClosed()
		c.closeErr = c.raw.Close()
		if c.pc != nil {
			if err := c.pc.Close(); err != nil && c.closeErr == nil {
				c.closeErr = err
			}
		}
	})
	return c.closeErr
}

func (c *DataChannel) Reliable() bool { return false }

// Done is closed once the channel is closed by either side.
func (c *DataChannel) Done() <-chan struct{} { return c.closed }
