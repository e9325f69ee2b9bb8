package conn

import "sync"

// EventKind classifies an Event.
type EventKind int

const (
	EventMessage      EventKind = iota // a message was received
	EventError                         // a non-terminal error; the connection keeps running
	EventDisconnected                  // terminal; published exactly once
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is one entry of the ordered stream a connection delivers: a
// message, an error, or the final disconnect.
type Event[M any] struct {
	Kind    EventKind
	Message M
	Err     error
}

// eventQueue is an unbounded FIFO. Receive workers never block on a slow
// consumer.
type eventQueue[M any] struct {
	mu     sync.Mutex
	items  []Event[M]
	notify chan struct{}
}

func newEventQueue[M any]() *eventQueue[M] {
	return &eventQueue[M]{notify: make(chan struct{}, 1)}
}

func (q *eventQueue[M]) push(ev Event[M]) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	q.signal()
}

func (q *eventQueue[M]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop removes the oldest event. It re-signals when more remain so a second
// waiter is not left parked.
func (q *eventQueue[M]) pop() (Event[M], bool) {
	return q.popUnless(-1)
}

// popUnless is pop, except that an oldest event of kind keep stays queued.
func (q *eventQueue[M]) popUnless(keep EventKind) (Event[M], bool) {
	q.mu.Lock()
	if len(q.items) == 0 || q.items[0].Kind == keep {
		q.mu.Unlock()
		return Event[M]{}, false
	}

	ev := q.items[0]
	q.items[0] = Event[M]{}
	q.items = q.items[1:]
	more := len(q.items) > 0
	if !more {
		q.items = nil
	}
	q.mu.Unlock()

	if more {
		q.signal()
	}
	return ev, true
}

func (q *eventQueue[M]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
