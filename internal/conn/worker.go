package conn

import (
	"errors"
	"fmt"
	"time"

	"github.com/Firebrandv3/game/internal/protocol"
	"github.com/Firebrandv3/game/internal/transport"
	"github.com/Firebrandv3/game/internal/util"
)

// spawn starts the send and receive workers of p once.
func (c *Connection[M]) spawn(p *path) {
	p.spawnOnce.Do(func() {
		c.wg.Add(2)
		go c.sendLoop(p)
		go c.recvLoop(p)
	})
}

// sendLoop parks while p has nothing outstanding. Otherwise it frames the
// head of the highest priority lane one frame at a time, so a packet queued
// on a lower lane overtakes a large message already in progress.
func (c *Connection[M]) sendLoop(p *path) {
	defer c.wg.Done()

	for {
		if p.stopped() || c.State() == StateDisconnected {
			return
		}

		pkt, lane := p.lanes.head()
		if pkt == nil {
			select {
			case <-p.lanes.wake:
				continue
			case <-p.stop:
				return
			}
		}

		f, err := pkt.NextFrame(c.opts.ChunkSize)
		if errors.Is(err, protocol.ErrSendDone) {
			p.lanes.retire(lane)
			continue
		}

		if err := p.tr.Send(f); err != nil {
			if p.stopped() {
				return
			}
			if c.fail(p, err) {
				return
			}
			continue
		}

		util.Stats.AddSent(f.Size())
	}
}

// recvLoop reads frames from p until the transport fails.
func (c *Connection[M]) recvLoop(p *path) {
	defer c.wg.Done()

	for {
		f, err := p.tr.Recv()
		if err != nil {
			if p.stopped() {
				return
			}
			if c.fail(p, err) {
				return
			}
			continue
		}
		util.Stats.AddRecv(f.Size())

		payload, done, err := p.inflight.absorb(f, time.Now())
		if err != nil {
			if c.fail(p, err) {
				return
			}
			continue
		}
		if done {
			c.deliver(payload)
		}
	}
}

// fail handles an error seen by a worker of p and reports whether the
// worker must exit.
//
// A vanished peer ends the connection on either path. On the stream path any
// other error ends it too: a protocol error there means the framing is out
// of sync. On the datagram path protocol errors are reported and skipped,
// and other I/O errors close only the datagram path.
func (c *Connection[M]) fail(p *path, err error) bool {
	switch {
	case transport.IsPeerDisconnect(err):
		c.shutdown(err)
		return true

	case p.reliable():
		c.shutdown(err)
		return true

	case protocol.IsProtocolError(err):
		c.log.Debug("%s path: %v", p.name, err)
		c.publishError(fmt.Errorf("%s path: %w", p.name, err))
		return false

	default:
		c.log.Error("%s path failed: %v", p.name, err)
		c.publishError(fmt.Errorf("%s path: %w", p.name, err))
		p.close()
		return true
	}
}

// deliver decodes a completed payload and publishes it.
func (c *Connection[M]) deliver(payload []byte) {
	msg, err := c.codec.Unmarshal(payload)
	if err != nil {
		c.log.Warning("failed to decode %d byte message: %v", len(payload), err)
		c.publishError(fmt.Errorf("%w: %w", ErrDeserialization, err))
		return
	}

	util.Stats.AddMessageReceived()
	c.events.push(Event[M]{Kind: EventMessage, Message: msg})
}

func (c *Connection[M]) publishError(err error) {
	c.events.push(Event[M]{Kind: EventError, Err: err})
}

// janitor drops incomplete messages that stopped making progress.
func (c *Connection[M]) janitor() {
	defer c.wg.Done()

	ttl := c.opts.ReassemblyTTL
	ticker := time.NewTicker(max(ttl/10, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			for _, p := range c.paths() {
				if n := p.inflight.sweep(now, ttl); n > 0 {
					c.log.Debug("%s path: dropped %d stalled messages", p.name, n)
				}
			}
		case <-c.done:
			return
		}
	}
}
