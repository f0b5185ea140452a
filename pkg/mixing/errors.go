package mixing

import (
	"errors"
	"fmt"
)

var (
	// ErrNoHardware is returned when the dispatcher has no board to drive.
	ErrNoHardware = errors.New("mixing: no hardware")

	// ErrNoSessions is returned when no session factory is provided.
	ErrNoSessions = errors.New("mixing: no session factory")

	// ErrQueueFull is returned when an input queue cannot take more items.
	ErrQueueFull = errors.New("mixing: queue full")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("mixing: already running")
)

// StateError reports an operation that is invalid in the current mode.
// It is fed back to the agent like a validation error.
type StateError struct {
	Op   string
	Mode Mode
}

// Error implements the error interface.
func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s in %s mode", e.Op, e.Mode)
}

// UnknownToolError reports a tool call that has no handler in the current mode.
type UnknownToolError struct {
	Name string
	Mode Mode
}

// Error implements the error interface.
func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("function %s is not available in %s mode", e.Name, e.Mode)
}
