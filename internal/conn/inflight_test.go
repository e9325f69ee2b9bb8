package conn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Firebrandv3/game/internal/protocol"
)

func TestInflightEvictsOldest(t *testing.T) {
	in := newInflight(Options{MaxInFlight: 2, MaxMessageSize: 1 << 20, DuplicateWindow: 4})
	base := time.Now()

	for i := 0; i < 3; i++ {
		_, done, err := in.absorb(protocol.HeaderFrame(uint64(i+1), 10), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.False(t, done)
	}
	assert.Equal(t, 2, in.len())

	_, _, err := in.absorb(protocol.DataFrame(1, []byte("x")), base)
	assert.ErrorIs(t, err, protocol.ErrUnknownID, "oldest message must be evicted")

	_, _, err = in.absorb(protocol.DataFrame(3, []byte("x")), base)
	assert.NoError(t, err)
}

func TestInflightRejectsOversized(t *testing.T) {
	in := newInflight(Options{MaxInFlight: 4, MaxMessageSize: 8})

	_, _, err := in.absorb(protocol.HeaderFrame(1, 9), time.Now())
	assert.ErrorIs(t, err, protocol.ErrTooLarge)
	assert.Zero(t, in.len())
}

func TestInflightOverflowDiscards(t *testing.T) {
	in := newInflight(Options{MaxInFlight: 4, MaxMessageSize: 64})
	now := time.Now()

	_, _, err := in.absorb(protocol.HeaderFrame(5, 3), now)
	require.NoError(t, err)

	_, _, err = in.absorb(protocol.DataFrame(5, []byte("toolong")), now)
	assert.ErrorIs(t, err, protocol.ErrOverflow)
	assert.Zero(t, in.len())
}

func TestInflightByteBudget(t *testing.T) {
	in := newInflight(Options{MaxInFlight: 8, MaxMessageSize: 10, MaxInFlightBytes: 20})
	base := time.Now()

	for i := 0; i < 3; i++ {
		_, _, err := in.absorb(protocol.HeaderFrame(uint64(i+1), 10), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, in.len())
	assert.Equal(t, uint64(20), in.reserved())

	_, _, err := in.absorb(protocol.DataFrame(1, []byte("x")), base)
	assert.ErrorIs(t, err, protocol.ErrUnknownID, "oldest message must be evicted")

	payload, done, err := in.absorb(protocol.DataFrame(2, []byte("0123456789")), base)
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, []byte("0123456789"), payload)
	assert.Equal(t, uint64(10), in.reserved())

	in.sweep(base.Add(time.Hour), time.Second)
	assert.Zero(t, in.reserved())
}

func TestSanitizeFitsLargestMessage(t *testing.T) {
	o := Options{MaxMessageSize: 1 << 20, MaxInFlightBytes: 1024}
	o.sanitize()
	assert.Equal(t, uint64(1<<20), o.MaxInFlightBytes)

	o = Options{}
	o.sanitize()
	assert.Equal(t, uint64(DefaultMaxInFlightBytes), o.MaxInFlightBytes)
}

func TestInflightDuplicateWindow(t *testing.T) {
	in := newInflight(Options{MaxInFlight: 4, MaxMessageSize: 64, DuplicateWindow: 2})
	now := time.Now()

	for id := uint64(1); id <= 3; id++ {
		payload, done, err := in.absorb(protocol.HeaderFrame(id, 0), now)
		require.NoError(t, err)
		require.True(t, done)
		require.Empty(t, payload)
	}

	// id 1 fell out of the window, ids 2 and 3 are still remembered
	_, done, _ := in.absorb(protocol.HeaderFrame(1, 0), now)
	assert.True(t, done)
	_, done, _ = in.absorb(protocol.HeaderFrame(3, 0), now)
	assert.False(t, done)
}

func TestInflightSweep(t *testing.T) {
	in := newInflight(Options{MaxInFlight: 4, MaxMessageSize: 64})
	now := time.Now()

	in.absorb(protocol.HeaderFrame(1, 4), now.Add(-time.Minute))
	in.absorb(protocol.HeaderFrame(2, 4), now)

	assert.Equal(t, 1, in.sweep(now, 30*time.Second))
	assert.Equal(t, 1, in.len())
}

func TestLanesRetireOrder(t *testing.T) {
	l := newLanes()
	l.push(3, protocol.NewOutgoingPacket([]byte("a"), 1))
	l.push(1, protocol.NewOutgoingPacket([]byte("b"), 2))
	l.push(1, protocol.NewOutgoingPacket([]byte("c"), 3))

	var ids []uint64
	for l.pending() > 0 {
		pkt, lane := l.head()
		require.NotNil(t, pkt)
		ids = append(ids, pkt.ID())
		l.retire(lane)
	}
	assert.Equal(t, []uint64{2, 3, 1}, ids)

	pkt, _ := l.head()
	assert.Nil(t, pkt)
}
