package conn

import (
	"time"

	"github.com/Firebrandv3/game/internal/protocol"
)

const (
	// LaneCount is the number of priority lanes. Lane 0 is drained first.
	LaneCount = 255

	// DefaultLane is used by Send without a Lane option.
	DefaultLane = 16

	DefaultMaxMessageSize   = 16 << 20
	DefaultMaxInFlight      = 1024
	DefaultMaxInFlightBytes = 64 << 20
	DefaultReassemblyTTL    = 30 * time.Second
	DefaultDuplicateWindow  = 1024
)

// Options tune a Connection. The zero value of a field selects its default.
type Options struct {
	DefaultLane      int           // lane used by Send without Lane
	ChunkSize        int           // payload bytes per Data frame
	MaxMessageSize   uint64        // largest message accepted in either direction
	MaxInFlight      int           // incomplete messages kept per path
	MaxInFlightBytes uint64        // buffer bytes reserved by incomplete messages per path
	ReassemblyTTL    time.Duration // incomplete messages idle longer than this are dropped
	DuplicateWindow  int           // completed ids remembered per path to drop duplicates
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		DefaultLane:      DefaultLane,
		ChunkSize:        protocol.MaxChunk,
		MaxMessageSize:   DefaultMaxMessageSize,
		MaxInFlight:      DefaultMaxInFlight,
		MaxInFlightBytes: DefaultMaxInFlightBytes,
		ReassemblyTTL:    DefaultReassemblyTTL,
		DuplicateWindow:  DefaultDuplicateWindow,
	}
}

// Option changes one connection setting.
type Option func(*Options)

// WithOptions replaces every setting. Zero fields keep their defaults.
func WithOptions(o Options) Option {
	return func(dst *Options) {
		if o.DefaultLane > 0 {
			dst.DefaultLane = o.DefaultLane
		}
		if o.ChunkSize > 0 {
			dst.ChunkSize = o.ChunkSize
		}
		if o.MaxMessageSize > 0 {
			dst.MaxMessageSize = o.MaxMessageSize
		}
		if o.MaxInFlight > 0 {
			dst.MaxInFlight = o.MaxInFlight
		}
		if o.MaxInFlightBytes > 0 {
			dst.MaxInFlightBytes = o.MaxInFlightBytes
		}
		if o.ReassemblyTTL > 0 {
			dst.ReassemblyTTL = o.ReassemblyTTL
		}
		if o.DuplicateWindow > 0 {
			dst.DuplicateWindow = o.DuplicateWindow
		}
	}
}

func WithDefaultLane(lane int) Option {
	return func(o *Options) { o.DefaultLane = lane }
}

func WithChunkSize(n int) Option {
	return func(o *Options) { o.ChunkSize = n }
}

func WithMaxMessageSize(n uint64) Option {
	return func(o *Options) { o.MaxMessageSize = n }
}

func WithMaxInFlight(n int) Option {
	return func(o *Options) { o.MaxInFlight = n }
}

func WithMaxInFlightBytes(n uint64) Option {
	return func(o *Options) { o.MaxInFlightBytes = n }
}

func WithReassemblyTTL(d time.Duration) Option {
	return func(o *Options) { o.ReassemblyTTL = d }
}

func WithDuplicateWindow(n int) Option {
	return func(o *Options) { o.DuplicateWindow = n }
}

// sanitize replaces out-of-range values with defaults.
func (o *Options) sanitize() {
	d := DefaultOptions()
	if o.DefaultLane < 0 || o.DefaultLane >= LaneCount {
		o.DefaultLane = d.DefaultLane
	}
	if o.ChunkSize <= 0 || o.ChunkSize > protocol.MaxChunkLimit {
		o.ChunkSize = d.ChunkSize
	}
	if o.MaxMessageSize == 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = d.MaxInFlight
	}
	if o.MaxInFlightBytes == 0 {
		o.MaxInFlightBytes = d.MaxInFlightBytes
	}
	// one message of the largest size must always fit
	o.MaxInFlightBytes = max(o.MaxInFlightBytes, o.MaxMessageSize)
	if o.ReassemblyTTL <= 0 {
		o.ReassemblyTTL = d.ReassemblyTTL
	}
	if o.DuplicateWindow < 0 {
		o.DuplicateWindow = d.DuplicateWindow
	}
}

type sendOptions struct {
	lane       int
	unreliable bool
}

// SendOption changes how one message is sent.
type SendOption func(*sendOptions)

// Lane queues the message on lane n (0 is the highest priority).
func Lane(n int) SendOption {
	return func(o *sendOptions) { o.lane = n }
}

// Unreliable routes the message over the datagram channel when one is open.
// Without one the message goes over the stream.
func Unreliable() SendOption {
	return func(o *sendOptions) { o.unreliable = true }
}
