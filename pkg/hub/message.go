// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

import (
	"encoding/json"
	"time"
)

// Envelope wraps every message sent to clients.
type Envelope struct {
	// Type names the payload, e.g. "event" or "status".
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// Encode marshals v inside an envelope of the given type.
func Encode(typ string, v any) ([]byte, error) {
	return json.Marshal(Envelope{Type: typ, Time: time.Now(), Data: v})
}
