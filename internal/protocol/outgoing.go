package protocol

// OutgoingPacket holds one serialized message that has not been fully framed
// yet. It is owned by a single priority lane until NextFrame reports
// ErrSendDone.
type OutgoingPacket struct {
	id         uint64
	data       []byte
	cursor     int
	headerSent bool
}

// NewOutgoingPacket wraps data as message id.
func NewOutgoingPacket(data []byte, id uint64) *OutgoingPacket {
	return &OutgoingPacket{id: id, data: data}
}

// ID returns the message id.
func (p *OutgoingPacket) ID() uint64 { return p.id }

// Len returns the serialized message length.
func (p *OutgoingPacket) Len() int { return len(p.data) }

// NextFrame returns the Header frame on the first call and Data frames of at
// most maxChunk bytes afterwards. Once every byte has been framed it returns
// ErrSendDone; no trailing marker frame is produced.
func (p *OutgoingPacket) NextFrame(maxChunk int) (Frame, error) {
	if !p.headerSent {
		p.headerSent = true
		return HeaderFrame(p.id, uint64(len(p.data))), nil
	}

	if p.cursor >= len(p.data) {
		return Frame{}, ErrSendDone
	}

	if maxChunk <= 0 || maxChunk > MaxChunkLimit {
		maxChunk = MaxChunk
	}

	end := min(p.cursor+maxChunk, len(p.data))
	chunk := p.data[p.cursor:end]
	p.cursor = end

	return DataFrame(p.id, chunk), nil
}

// FrameCount returns how many frames a message of size bytes produces with
// the given chunk size: one Header plus ceil(size/chunk) Data frames.
func FrameCount(size, chunk int) int {
	if chunk <= 0 {
		chunk = MaxChunk
	}
	return 1 + (size+chunk-1)/chunk
}
