package esp

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned when a command is issued before a writer is attached.
var ErrNotConnected = errors.New("esp: control channel not connected")

// UnknownTelemetryError reports frames whose id byte is not recognized.
type UnknownTelemetryError struct {
	IDs []byte
}

// Error implements the error interface.
func (e *UnknownTelemetryError) Error() string {
	return fmt.Sprintf("esp: %d telemetry frame(s) with unknown id % x", len(e.IDs), e.IDs)
}

// CommandError wraps a failed write of a command frame.
type CommandError struct {
	Op  Opcode
	Err error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf("esp: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Err
}
