package conn

import (
	"errors"
	"fmt"
)

var (
	// ErrConnect marks a failure to establish a transport.
	ErrConnect = errors.New("connect failed")

	// ErrDisconnected is returned by Send and Receive once the connection has
	// shut down. Receive wraps the shutdown cause, if any.
	ErrDisconnected = errors.New("connection disconnected")

	ErrSerialization   = errors.New("serialization error")
	ErrDeserialization = errors.New("deserialization error")

	ErrDatagramAlreadyOpen = errors.New("datagram channel already open")
	ErrInvalidLane         = errors.New("invalid lane")
)

// ConnectError reports which address could not be reached.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() []error { return []error{ErrConnect, e.Err} }
