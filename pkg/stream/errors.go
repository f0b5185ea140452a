package stream

import "errors"

var (
	// ErrConnectionLost is returned by Run and Err once the peer is gone.
	ErrConnectionLost = errors.New("stream: connection lost")

	// ErrClosed is returned when writing to an adapter that has shut down.
	ErrClosed = errors.New("stream: closed")
)
