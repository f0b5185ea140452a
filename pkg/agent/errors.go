package agent

import (
	"errors"
)

// ErrNoProvider is returned when a session is used without a backend.
var ErrNoProvider = errors.New("agent: no inference provider")
