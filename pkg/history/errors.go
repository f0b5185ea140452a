package history

import (
	"errors"
)

// ErrNotFound is returned when no session has the requested ID.
var ErrNotFound = errors.New("history: session not found")
