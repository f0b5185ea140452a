package recipe

import (
	"errors"
	"fmt"
)

// ErrMalformedJSON is returned when tool arguments are not JSON even after repair.
var ErrMalformedJSON = errors.New("recipe: malformed JSON")

// ValidationError reports tool arguments that do not match their schema.
// The message is fed back to the agent so it can correct the call.
type ValidationError struct {
	Tool string
	Err  error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %v", e.Tool, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}
