// Package history persists finished and aborted mix sessions.
package history

import (
	"time"
)

// Outcome is how a mix session ended.
type Outcome string

const (
	// Finished means every step was completed.
	Finished Outcome = "finished"

	// Aborted means the guest or the agent stopped early.
	Aborted Outcome = "aborted"
)

// Session is one recorded mix session.
type Session struct {
	ID             string    `json:"id"`
	Recipe         string    `json:"recipe"`
	Steps          int       `json:"steps"`
	StepsCompleted int       `json:"steps_completed"`
	Outcome        Outcome   `json:"outcome"`
	Reason         string    `json:"reason,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
}

// Duration returns how long the session ran.
func (s *Session) Duration() time.Duration {
	if s.EndedAt.Before(s.StartedAt) {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Store records mix sessions.
type Store interface {
	// Save creates or replaces a session. An empty ID is generated.
	Save(s *Session) error

	// Get retrieves a session by ID.
	Get(id string) (*Session, error)

	// List returns all sessions, newest first.
	List() ([]*Session, error)

	// Count returns the number of recorded sessions.
	Count() int
}
