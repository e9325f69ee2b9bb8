package conn

import (
	"fmt"
	"sync"
	"time"

	"github.com/Firebrandv3/game/internal/protocol"
	"github.com/Firebrandv3/game/internal/util"
)

type entry struct {
	pkt     *protocol.IncomingPacket
	touched time.Time
}

// inflight holds the incomplete messages of one path and remembers recently
// completed ids so duplicated datagrams are dropped. Buffers are sized from
// Headers, so both their count and their total size are bounded.
type inflight struct {
	mu      sync.Mutex
	packets map[uint64]*entry
	limit   int
	maxSize uint64
	budget  uint64 // bytes reserved by all buffers, 0 for no bound
	bytes   uint64

	window int
	recent map[uint64]struct{}
	ring   []uint64
	pos    int
}

func newInflight(opts Options) *inflight {
	return &inflight{
		packets: make(map[uint64]*entry),
		limit:   opts.MaxInFlight,
		maxSize: opts.MaxMessageSize,
		budget:  opts.MaxInFlightBytes,
		window:  opts.DuplicateWindow,
		recent:  make(map[uint64]struct{}),
	}
}

// absorb feeds one frame. It returns the payload of the message f completes,
// or nil with done false. Frames of recently completed ids are dropped.
func (in *inflight) absorb(f protocol.Frame, now time.Time) (payload []byte, done bool, err error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if _, dup := in.recent[f.ID]; dup {
		util.Stats.AddDropped()
		return nil, false, nil
	}

	switch f.Kind {
	case protocol.KindHeader:
		if f.TotalSize <= in.maxSize {
			// a repeated Header restarts the message
			in.drop(f.ID)
			if f.TotalSize > 0 {
				in.makeRoom(f.TotalSize)
			}
		}

		pkt, err := protocol.NewIncomingPacket(f, in.maxSize)
		if err != nil {
			return nil, false, err
		}
		if pkt.Complete() {
			return in.finish(pkt)
		}

		in.packets[f.ID] = &entry{pkt: pkt, touched: now}
		in.bytes += f.TotalSize
		return nil, false, nil

	case protocol.KindData:
		e, ok := in.packets[f.ID]
		if !ok {
			return nil, false, &protocol.Error{Err: protocol.ErrUnknownID, ID: f.ID}
		}

		complete, err := e.pkt.Absorb(f)
		if err != nil {
			in.drop(f.ID)
			return nil, false, err
		}
		e.touched = now
		if !complete {
			return nil, false, nil
		}

		in.drop(f.ID)
		return in.finish(e.pkt)

	default:
		return nil, false, fmt.Errorf("%w: kind %#02x", protocol.ErrDecode, f.Kind)
	}
}

func (in *inflight) finish(pkt *protocol.IncomingPacket) ([]byte, bool, error) {
	in.remember(pkt.ID())
	payload, err := pkt.Take()
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (in *inflight) remember(id uint64) {
	if in.window == 0 {
		return
	}

	if len(in.ring) < in.window {
		in.ring = append(in.ring, id)
	} else {
		delete(in.recent, in.ring[in.pos])
		in.ring[in.pos] = id
		in.pos = (in.pos + 1) % in.window
	}
	in.recent[id] = struct{}{}
}

// drop forgets id and releases its bytes. Called with mu held.
func (in *inflight) drop(id uint64) *entry {
	e, ok := in.packets[id]
	if !ok {
		return nil
	}
	delete(in.packets, id)
	in.bytes -= uint64(e.pkt.Size())
	return e
}

// makeRoom evicts until one more message of size bytes fits. Called with mu
// held.
func (in *inflight) makeRoom(size uint64) {
	for len(in.packets) > 0 && (len(in.packets) >= in.limit || (in.budget > 0 && in.bytes+size > in.budget)) {
		in.evictOldest()
	}
}

// evictOldest drops the least recently touched message. Called with mu held.
func (in *inflight) evictOldest() {
	var (
		oldest uint64
		at     time.Time
		found  bool
	)
	for id, e := range in.packets {
		if !found || e.touched.Before(at) {
			oldest, at, found = id, e.touched, true
		}
	}
	if !found {
		return
	}

	e := in.drop(oldest)
	util.Stats.AddDropped()
	util.LogDebug("evicted incomplete message %d (%d/%d bytes)", oldest, e.pkt.Received(), e.pkt.Size())
}

// sweep drops messages idle for longer than ttl and returns how many.
func (in *inflight) sweep(now time.Time, ttl time.Duration) int {
	in.mu.Lock()
	defer in.mu.Unlock()

	n := 0
	for id, e := range in.packets {
		if now.Sub(e.touched) > ttl {
			in.drop(id)
			util.Stats.AddDropped()
			n++
		}
	}
	return n
}

// reserved returns the bytes held by incomplete messages.
func (in *inflight) reserved() uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.bytes
}

func (in *inflight) len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.packets)
}
