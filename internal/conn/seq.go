package conn

import "sync/atomic"

// SeqGen allocates message ids. It is shared by every path of a connection
// so ids stay unique across the stream and datagram transports.
type SeqGen struct {
	val atomic.Uint64
}

// Next returns the next id (monotonically increasing from 1).
func (s *SeqGen) Next() uint64 {
	return s.val.Add(1)
}
