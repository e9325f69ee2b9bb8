package conn

import (
	"sync"

	"github.com/Firebrandv3/game/internal/transport"
	"github.com/Firebrandv3/game/internal/util"
)

// path is one transport with its own lanes and reassembly state. A message
// is framed entirely on the path it was queued on.
type path struct {
	name     string
	tr       transport.Transport
	lanes    *lanes
	inflight *inflight

	stop      chan struct{}
	stopOnce  sync.Once
	spawnOnce sync.Once
}

func newPath(name string, tr transport.Transport, opts Options) *path {
	return &path{
		name:     name,
		tr:       tr,
		lanes:    newLanes(),
		inflight: newInflight(opts),
		stop:     make(chan struct{}),
	}
}

// reliable reports whether protocol errors on this path mean desync.
func (p *path) reliable() bool { return p.tr.Reliable() }

func (p *path) stopped() bool {
	select {
	case <-p.stop:
		return true
	default:
		return false
	}
}

// close stops the path workers, drops the packets still queued on it and
// closes the transport, which unblocks a pending Recv.
func (p *path) close() error {
	var err error
	p.stopOnce.Do(func() {
		close(p.stop)
		util.Stats.Dropped.Add(int64(p.lanes.close()))
		p.lanes.signal()
		err = p.tr.Close()
	})
	return err
}
