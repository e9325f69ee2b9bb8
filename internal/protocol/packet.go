// Package protocol defines the frame format exchanged between two connection
// endpoints and the packets that split messages into frames and put them back
// together.
package protocol

import "fmt"

// Frame kind constants.
const (
	KindHeader uint8 = 0x01 // Announces a message and its total size
	KindData   uint8 = 0x02 // Carries one chunk of a message
)

const (
	// MaxChunk is the default number of payload bytes carried by one Data frame.
	MaxChunk = 2000

	// PrefixSize is the fixed part of every frame: Kind(1) + ID(8).
	PrefixSize = 9

	// HeaderFrameSize is the encoded size of a Header frame: prefix + TotalSize(8).
	HeaderFrameSize = PrefixSize + 8

	// MaxFrameSize bounds a single encoded frame. It keeps stream length
	// prefixes sane and every frame small enough for one datagram.
	MaxFrameSize = 64 * 1024

	// MaxChunkLimit is the largest chunk size a Data frame may carry.
	MaxChunkLimit = MaxFrameSize - PrefixSize
)

// Frame is the smallest unit written to or read from a transport.
type Frame struct {
	Kind      uint8  // KindHeader or KindData
	ID        uint64 // Message id, unique per sending connection
	TotalSize uint64 // Only used for KindHeader
	Payload   []byte // Only used for KindData
}

// HeaderFrame returns a Header frame announcing message id of total bytes.
func HeaderFrame(id, total uint64) Frame {
	return Frame{Kind: KindHeader, ID: id, TotalSize: total}
}

// DataFrame returns a Data frame carrying payload for message id.
func DataFrame(id uint64, payload []byte) Frame {
	return Frame{Kind: KindData, ID: id, Payload: payload}
}

// IsHeader reports whether f is a Header frame.
func (f Frame) IsHeader() bool { return f.Kind == KindHeader }

// IsData reports whether f is a Data frame.
func (f Frame) IsData() bool { return f.Kind == KindData }

// Size returns the encoded frame size, without any stream length prefix.
func (f Frame) Size() int { return encodedSize(f) }

func (f Frame) String() string {
	switch f.Kind {
	case KindHeader:
		return fmt.Sprintf("Header{id=%d size=%d}", f.ID, f.TotalSize)
	case KindData:
		return fmt.Sprintf("Data{id=%d len=%d}", f.ID, len(f.Payload))
	default:
		return fmt.Sprintf("Frame{kind=%#02x id=%d}", f.Kind, f.ID)
	}
}
