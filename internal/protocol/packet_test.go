package protocol_test

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/Firebrandv3/game/internal/protocol"
)

// makeTestData generates deterministic test data of the given size.
func makeTestData(size int, seed byte) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i%251) ^ seed
	}
	return data
}

// drain pulls every frame out of p until ErrSendDone.
func drain(t *testing.T, p *protocol.OutgoingPacket, chunk int) []protocol.Frame {
	t.Helper()
	var frames []protocol.Frame
	for {
		f, err := p.NextFrame(chunk)
		if errors.Is(err, protocol.ErrSendDone) {
			return frames
		}
		if err != nil {
			t.Fatalf("NextFrame: %v", err)
		}
		frames = append(frames, f)
		if len(frames) > 100000 {
			t.Fatal("packet never finished")
		}
	}
}

// TestFragmentationRoundTrip fragments messages of various sizes relative to
// the chunk size and reassembles them, checking the frame count and content.
func TestFragmentationRoundTrip(t *testing.T) {
	const chunk = protocol.MaxChunk

	sizes := []int{0, 1, 5, chunk - 1, chunk, chunk + 1, 5000, 3*chunk + 17, 64 * 1024}

	for _, size := range sizes {
		t.Run(fmt.Sprintf("%d bytes", size), func(t *testing.T) {
			data := makeTestData(size, byte(size))
			frames := drain(t, protocol.NewOutgoingPacket(data, 1), chunk)

			wantFrames := protocol.FrameCount(size, chunk)
			if len(frames) != wantFrames {
				t.Fatalf("got %d frames, want %d", len(frames), wantFrames)
			}
			if !frames[0].IsHeader() || frames[0].TotalSize != uint64(size) {
				t.Fatalf("first frame is %v, want Header of size %d", frames[0], size)
			}

			in, err := protocol.NewIncomingPacket(frames[0], 0)
			if err != nil {
				t.Fatalf("NewIncomingPacket: %v", err)
			}

			for i, f := range frames[1:] {
				if len(f.Payload) > chunk {
					t.Fatalf("data frame %d carries %d bytes (chunk %d)", i, len(f.Payload), chunk)
				}
				done, err := in.Absorb(f)
				if err != nil {
					t.Fatalf("Absorb #%d: %v", i, err)
				}
				if done != (i == len(frames)-2) {
					t.Fatalf("Absorb #%d reported done=%v", i, done)
				}
			}

			if !in.Complete() {
				t.Fatal("packet not complete after all frames")
			}

			got, err := in.Take()
			if err != nil {
				t.Fatalf("Take: %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Errorf("reassembled data mismatch (sent %d bytes, got %d bytes)", len(data), len(got))
			}
		})
	}
}

// TestFiveThousandBytes checks the worked example: 5000 bytes at chunk 2000
// gives one Header and Data frames of 2000, 2000 and 1000 bytes.
func TestFiveThousandBytes(t *testing.T) {
	frames := drain(t, protocol.NewOutgoingPacket(make([]byte, 5000), 9), protocol.MaxChunk)

	if len(frames) != 4 {
		t.Fatalf("got %d frames, want 4", len(frames))
	}
	for i, want := range []int{2000, 2000, 1000} {
		if got := len(frames[i+1].Payload); got != want {
			t.Errorf("data frame %d: got %d bytes, want %d", i, got, want)
		}
		if frames[i+1].ID != 9 {
			t.Errorf("data frame %d: got id %d, want 9", i, frames[i+1].ID)
		}
	}
}

// TestZeroLengthMessage verifies that an empty message is a lone Header that
// completes immediately on the receiving side.
func TestZeroLengthMessage(t *testing.T) {
	p := protocol.NewOutgoingPacket(nil, 3)

	header, err := p.NextFrame(protocol.MaxChunk)
	if err != nil {
		t.Fatalf("NextFrame: %v", err)
	}
	if !header.IsHeader() || header.TotalSize != 0 {
		t.Fatalf("got %v, want empty Header", header)
	}
	if _, err := p.NextFrame(protocol.MaxChunk); !errors.Is(err, protocol.ErrSendDone) {
		t.Fatalf("expected ErrSendDone, got %v", err)
	}

	in, err := protocol.NewIncomingPacket(header, 0)
	if err != nil {
		t.Fatalf("NewIncomingPacket: %v", err)
	}
	if !in.Complete() {
		t.Fatal("empty message should be complete on Header")
	}
	data, err := in.Take()
	if err != nil || len(data) != 0 {
		t.Fatalf("Take: %v (%d bytes)", err, len(data))
	}
}

// TestIncomingPacketErrors covers the sequencing violations.
func TestIncomingPacketErrors(t *testing.T) {
	t.Run("data instead of header", func(t *testing.T) {
		_, err := protocol.NewIncomingPacket(protocol.DataFrame(1, []byte("x")), 0)
		if !errors.Is(err, protocol.ErrUnexpectedFrame) {
			t.Fatalf("got %v, want ErrUnexpectedFrame", err)
		}
	})

	t.Run("header above limit", func(t *testing.T) {
		_, err := protocol.NewIncomingPacket(protocol.HeaderFrame(1, 1025), 1024)
		if !errors.Is(err, protocol.ErrTooLarge) {
			t.Fatalf("got %v, want ErrTooLarge", err)
		}
	})

	t.Run("wrong id", func(t *testing.T) {
		in, _ := protocol.NewIncomingPacket(protocol.HeaderFrame(1, 4), 0)
		_, err := in.Absorb(protocol.DataFrame(2, []byte("ab")))
		if !errors.Is(err, protocol.ErrUnknownID) {
			t.Fatalf("got %v, want ErrUnknownID", err)
		}
		var perr *protocol.Error
		if !errors.As(err, &perr) || perr.ID != 2 {
			t.Fatalf("expected *protocol.Error for id 2, got %v", err)
		}
	})

	t.Run("overflow leaves packet untouched", func(t *testing.T) {
		in, _ := protocol.NewIncomingPacket(protocol.HeaderFrame(1, 4), 0)
		if _, err := in.Absorb(protocol.DataFrame(1, []byte("abc"))); err != nil {
			t.Fatalf("Absorb: %v", err)
		}
		_, err := in.Absorb(protocol.DataFrame(1, []byte("de")))
		if !errors.Is(err, protocol.ErrOverflow) {
			t.Fatalf("got %v, want ErrOverflow", err)
		}
		if in.Received() != 3 {
			t.Fatalf("received %d bytes after overflow, want 3", in.Received())
		}
	})

	t.Run("header fed to absorb", func(t *testing.T) {
		in, _ := protocol.NewIncomingPacket(protocol.HeaderFrame(1, 4), 0)
		_, err := in.Absorb(protocol.HeaderFrame(1, 4))
		if !errors.Is(err, protocol.ErrUnexpectedFrame) {
			t.Fatalf("got %v, want ErrUnexpectedFrame", err)
		}
	})

	t.Run("take twice", func(t *testing.T) {
		in, _ := protocol.NewIncomingPacket(protocol.HeaderFrame(1, 1), 0)
		if _, err := in.Take(); !errors.Is(err, protocol.ErrIncomplete) {
			t.Fatalf("got %v, want ErrIncomplete", err)
		}
		in.Absorb(protocol.DataFrame(1, []byte{1}))
		if _, err := in.Take(); err != nil {
			t.Fatalf("Take: %v", err)
		}
		if _, err := in.Take(); !errors.Is(err, protocol.ErrTaken) {
			t.Fatalf("got %v, want ErrTaken", err)
		}
	})
}

func TestIsProtocolError(t *testing.T) {
	if !protocol.IsProtocolError(&protocol.Error{Err: protocol.ErrOverflow, ID: 1}) {
		t.Error("overflow should be a protocol error")
	}
	if protocol.IsProtocolError(protocol.ErrSendDone) {
		t.Error("ErrSendDone is not a protocol error")
	}
}
