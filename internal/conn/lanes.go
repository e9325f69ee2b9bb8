package conn

import (
	"sync"

	"github.com/Firebrandv3/game/internal/protocol"
)

// lanes is the priority queue set of one path. The queues and the
// outstanding counter share one mutex. Closed lanes hold nothing and refuse
// new packets.
type lanes struct {
	mu          sync.Mutex
	queues      [LaneCount][]*protocol.OutgoingPacket
	outstanding int
	closed      bool

	wake chan struct{} // capacity 1, signalled on push
}

func newLanes() *lanes {
	return &lanes{wake: make(chan struct{}, 1)}
}

// push queues pkt on lane. It reports false once the lanes are closed.
func (l *lanes) push(lane int, pkt *protocol.OutgoingPacket) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queues[lane] = append(l.queues[lane], pkt)
	l.outstanding++
	l.mu.Unlock()

	l.signal()
	return true
}

// close discards every queued packet and returns how many were dropped.
func (l *lanes) close() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := l.outstanding
	l.queues = [LaneCount][]*protocol.OutgoingPacket{}
	l.outstanding = 0
	l.closed = true
	return dropped
}

func (l *lanes) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// head returns the first packet of the highest priority non-empty lane.
func (l *lanes) head() (*protocol.OutgoingPacket, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.outstanding == 0 {
		return nil, -1
	}
	for i := range l.queues {
		if len(l.queues[i]) > 0 {
			return l.queues[i][0], i
		}
	}
	return nil, -1
}

// retire pops the head of lane once it is fully sent.
func (l *lanes) retire(lane int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	q := l.queues[lane]
	if len(q) == 0 {
		// cleared by close while the last frame was being written
		return
	}
	q[0] = nil
	l.queues[lane] = q[1:]
	if len(l.queues[lane]) == 0 {
		l.queues[lane] = nil
	}
	l.outstanding--
}

func (l *lanes) pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outstanding
}
