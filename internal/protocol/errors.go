package protocol

import (
	"errors"
	"fmt"
)

// ErrDecode marks a malformed or truncated frame.
var ErrDecode = errors.New("frame decode error")

// Frame sequencing errors.
var (
	ErrUnexpectedFrame = errors.New("unexpected frame")
	ErrUnknownID       = errors.New("unknown message id")
	ErrOverflow        = errors.New("data exceeds declared message size")
	ErrTooLarge        = errors.New("declared message size exceeds limit")
)

// Packet lifecycle errors.
var (
	ErrSendDone   = errors.New("packet fully sent")
	ErrIncomplete = errors.New("packet is not complete")
	ErrTaken      = errors.New("packet buffer already taken")
)

// Error is a frame sequencing violation for one message id.
type Error struct {
	Err error
	ID  uint64
}

func (e *Error) Error() string {
	return fmt.Sprintf("message %d: %v", e.ID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsProtocolError reports whether err is a frame decode or sequencing error.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrDecode) ||
		errors.Is(err, ErrUnexpectedFrame) ||
		errors.Is(err, ErrUnknownID) ||
		errors.Is(err, ErrOverflow) ||
		errors.Is(err, ErrTooLarge)
}

func decodeError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}

func sequenceError(err error, id uint64) error {
	return &Error{Err: err, ID: id}
}
