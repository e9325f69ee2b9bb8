package protocol

import "time"

// IncomingPacket accumulates the Data frames of one message until the size
// announced by its Header has been received.
type IncomingPacket struct {
	id      uint64
	buf     []byte
	cursor  int
	taken   bool
	created time.Time
}

// NewIncomingPacket creates a reassembly buffer from a Header frame. A limit
// greater than zero rejects headers announcing more than limit bytes before
// anything is allocated.
func NewIncomingPacket(header Frame, limit uint64) (*IncomingPacket, error) {
	if !header.IsHeader() {
		return nil, sequenceError(ErrUnexpectedFrame, header.ID)
	}
	if limit > 0 && header.TotalSize > limit {
		return nil, sequenceError(ErrTooLarge, header.ID)
	}

	return &IncomingPacket{
		id:      header.ID,
		buf:     make([]byte, header.TotalSize),
		created: time.Now(),
	}, nil
}

// ID returns the message id.
func (p *IncomingPacket) ID() uint64 { return p.id }

// Created returns when the Header for this packet arrived.
func (p *IncomingPacket) Created() time.Time { return p.created }

// Received returns how many payload bytes have been absorbed so far.
func (p *IncomingPacket) Received() int { return p.cursor }

// Size returns the announced total size.
func (p *IncomingPacket) Size() int { return len(p.buf) }

// Complete reports whether every announced byte has arrived. A zero-length
// message is complete as soon as its Header is seen.
func (p *IncomingPacket) Complete() bool { return p.cursor == len(p.buf) }

// Absorb appends a Data frame's payload at the write cursor and reports
// whether the message is now complete. The packet is left untouched on error.
func (p *IncomingPacket) Absorb(f Frame) (bool, error) {
	if !f.IsData() {
		return false, sequenceError(ErrUnexpectedFrame, f.ID)
	}
	if f.ID != p.id {
		return false, sequenceError(ErrUnknownID, f.ID)
	}
	if p.taken {
		return false, sequenceError(ErrTaken, f.ID)
	}
	if p.cursor+len(f.Payload) > len(p.buf) {
		return false, sequenceError(ErrOverflow, f.ID)
	}

	p.cursor += copy(p.buf[p.cursor:], f.Payload)
	return p.Complete(), nil
}

// Take hands over the completed buffer. It may be called once.
func (p *IncomingPacket) Take() ([]byte, error) {
	if p.taken {
		return nil, sequenceError(ErrTaken, p.id)
	}
	if !p.Complete() {
		return nil, sequenceError(ErrIncomplete, p.id)
	}
	p.taken = true
	buf := p.buf
	p.buf = nil
	return buf, nil
}
