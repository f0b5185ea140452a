package mixing

import (
	"time"
)

// EventType names a workflow event.
type EventType string

const (
	EventMode      EventType = "mode"
	EventStep      EventType = "step"
	EventScale     EventType = "scale"
	EventUtterance EventType = "utterance"
	EventBargeIn   EventType = "barge_in"
	EventDispatch  EventType = "dispatch"
)

// Event is published for observers such as the status server.
type Event struct {
	Type   EventType `json:"type"`
	Time   time.Time `json:"time"`
	Mode   Mode      `json:"mode"`
	Recipe string    `json:"recipe,omitempty"`
	Step   int       `json:"step"`
	Steps  int       `json:"steps,omitempty"`
	Text   string    `json:"text,omitempty"`
	Tool   string    `json:"tool,omitempty"`
	Weight float64   `json:"weight,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Status is a snapshot of the workflow.
type Status struct {
	Mode       Mode   `json:"mode"`
	Recipe     string `json:"recipe,omitempty"`
	Step       int    `json:"step"`
	Steps      int    `json:"steps"`
	StepText   string `json:"step_text,omitempty"`
	MixID      string `json:"mix_id,omitempty"`
	Emitting   bool   `json:"emitting"`
	Muted      bool   `json:"muted"`
	Generating int    `json:"generating"`
}

// eventLocked returns an event stamped with the current state. Callers hold mu.
func (d *Dispatcher) eventLocked(typ EventType) Event {
	ev := Event{
		Type:  typ,
		Time:  d.cfg.Now(),
		Mode:  d.state.Mode,
		Step:  d.state.Step,
		Steps: d.state.Steps(),
	}
	if d.state.Recipe != nil {
		ev.Recipe = d.state.Recipe.Name
	}
	return ev
}

func (d *Dispatcher) emit(ev Event) {
	ev.Mode = Mode(d.mode.Load())
	if ev.Time.IsZero() {
		ev.Time = d.cfg.Now()
	}
	d.events.Publish(ev)
}
