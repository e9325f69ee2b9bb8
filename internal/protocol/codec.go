package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// lengthSize is the size of the stream length prefix.
const lengthSize = 4

// Encode serializes a Frame into a byte slice. Over datagram transports the
// result is sent as-is; stream transports use WriteFrame to add a length prefix.
func Encode(f Frame) []byte {
	buf := make([]byte, encodedSize(f))
	putFrame(buf, f)
	return buf
}

// Decode deserializes a byte slice into a Frame. The returned payload never
// aliases data.
func Decode(data []byte) (Frame, error) {
	if len(data) < PrefixSize {
		return Frame{}, decodeError("frame too short: %d bytes (need at least %d)", len(data), PrefixSize)
	}
	if len(data) > MaxFrameSize {
		return Frame{}, decodeError("frame too large: %d bytes (limit %d)", len(data), MaxFrameSize)
	}

	f := Frame{
		Kind: data[0],
		ID:   binary.BigEndian.Uint64(data[1:PrefixSize]),
	}

	switch f.Kind {
	case KindHeader:
		if len(data) != HeaderFrameSize {
			return Frame{}, decodeError("header frame has %d bytes (want %d)", len(data), HeaderFrameSize)
		}
		f.TotalSize = binary.BigEndian.Uint64(data[PrefixSize:HeaderFrameSize])
	case KindData:
		f.Payload = make([]byte, len(data)-PrefixSize)
		copy(f.Payload, data[PrefixSize:])
	default:
		return Frame{}, decodeError("unknown frame kind %#02x", f.Kind)
	}

	return f, nil
}

// WriteFrame writes f to w as [4B length][frame] using a single Write call,
// so concurrent writers serialized by a mutex never interleave partial frames.
func WriteFrame(w io.Writer, f Frame) error {
	size := encodedSize(f)
	if size > MaxFrameSize {
		return fmt.Errorf("%w: frame of %d bytes exceeds %d", ErrDecode, size, MaxFrameSize)
	}

	buf := make([]byte, lengthSize+size)
	binary.BigEndian.PutUint32(buf[:lengthSize], uint32(size))
	putFrame(buf[lengthSize:], f)

	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame from r. I/O errors are returned
// unchanged so the caller can classify them; malformed frames wrap ErrDecode.
func ReadFrame(r io.Reader) (Frame, error) {
	var prefix [lengthSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return Frame{}, err
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size < PrefixSize || size > MaxFrameSize {
		return Frame{}, decodeError("invalid frame length %d", size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, err
	}

	return Decode(body)
}

func encodedSize(f Frame) int {
	if f.Kind == KindHeader {
		return HeaderFrameSize
	}
	return PrefixSize + len(f.Payload)
}

func putFrame(buf []byte, f Frame) {
	buf[0] = f.Kind
	binary.BigEndian.PutUint64(buf[1:PrefixSize], f.ID)
	if f.Kind == KindHeader {
		binary.BigEndian.PutUint64(buf[PrefixSize:HeaderFrameSize], f.TotalSize)
		return
	}
	copy(buf[PrefixSize:], f.Payload)
}
