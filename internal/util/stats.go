package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// DefaultReportInterval is the StartStatsReporter period used by the CLI.
const DefaultReportInterval = 10 * time.Second

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide traffic/connection counter.
var Stats = &stats{}

type stats struct {
	TotalConns   atomic.Int64 // cumulative count of connections since process start
	ClosedConns  atomic.Int64 // cumulative count of closed connections since process start
	FramesSent   atomic.Int64
	FramesRecv   atomic.Int64
	BytesSent    atomic.Int64 // cumulative frame bytes written to transports
	BytesRecv    atomic.Int64 // cumulative frame bytes read from transports
	MessagesSent atomic.Int64
	MessagesRecv atomic.Int64 // messages reassembled and delivered
	Dropped      atomic.Int64 // discarded datagram frames and packets queued on a closed path
}

func (s *stats) AddConn()    { s.TotalConns.Add(1) }
func (s *stats) RemoveConn() { s.ClosedConns.Add(1) }

func (s *stats) AddSent(n int) {
	s.FramesSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *stats) AddRecv(n int) {
	s.FramesRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

func (s *stats) AddMessageSent()     { s.MessagesSent.Add(1) }
func (s *stats) AddMessageReceived() { s.MessagesRecv.Add(1) }
func (s *stats) AddDropped()         { s.Dropped.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs traffic statistics
// every interval. Quiet intervals are not logged. It stops when ctx is
// cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		secs := interval.Seconds()
		var prevSent, prevRecv, prevTotal, prevClosed, prevMsgs int64
		for {
			select {
			case <-ticker.C:
				total := Stats.TotalConns.Load()
				closed := Stats.ClosedConns.Load()
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()
				msgs := Stats.MessagesRecv.Load()

				outS := float64(sent-prevSent) / secs
				inS := float64(recv-prevRecv) / secs
				inC := total - prevTotal
				outC := closed - prevClosed
				msgS := float64(msgs-prevMsgs) / secs

				if inC > 0 || outC > 0 || inS > 10 || outS > 10 {
					pterm.DefaultLogger.Info(formatStats(inS, outS, msgS, inC, outC))
				}

				prevSent = sent
				prevRecv = recv
				prevTotal = total
				prevClosed = closed
				prevMsgs = msgs

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS, msgS float64, inC, outC int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Msg: %6.1f/s | Conn: %2d↑ %2d↓",
		formatBytes(inS),
		formatBytes(outS),
		msgS,
		inC,
		outC,
	)
}
