package esp

import (
	"log/slog"

	"github.com/teslashibe/go-distillo/pkg/node"
)

// EventKind classifies a settled scale reading.
type EventKind int

const (
	// TargetStable means the scale settled and the current step is satisfied.
	TargetStable EventKind = iota

	// TargetSurpassed means the scale settled above the pour target.
	TargetSurpassed

	// TargetPending means the scale settled below the pour target, as it
	// does right after taring.
	TargetPending

	// TargetNone means the scale settled while no pour is expected: an
	// instruction step, an ingredient without an amount, or no recipe.
	TargetNone
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case TargetStable:
		return "stable"
	case TargetSurpassed:
		return "surpassed"
	case TargetPending:
		return "pending"
	case TargetNone:
		return "none"
	default:
		return "unknown"
	}
}

// ScaleEvent is a settled reading delivered to the mixing workflow.
type ScaleEvent struct {
	Kind   EventKind
	Weight float64
	Target float64
}

// TargetSource reports the pour target of the active step.
type TargetSource interface {
	Target() (float64, bool)
}

// Classifier turns stable weights into scale events. A weight above the
// active target by more than margin grams is a TargetSurpassed event, one
// below it by more than margin is TargetPending. Without a positive target
// every reading is TargetNone.
// Readings are taken relative to the scale zeroed at the start of the step.
type Classifier struct {
	node.Broadcaster[ScaleEvent]

	targets TargetSource
	margin  float64
}

// NewClassifier creates a classifier reading targets from src.
func NewClassifier(name string, src TargetSource, margin float64, logger *slog.Logger) *Classifier {
	c := &Classifier{targets: src, margin: margin}
	c.Init(name, logger)
	return c
}

// Receive classifies a stable weight and publishes the event.
func (c *Classifier) Receive(weight float64, _ string) error {
	ev := ScaleEvent{Kind: TargetNone, Weight: weight}
	if c.targets != nil {
		if target, ok := c.targets.Target(); ok {
			ev.Target = target
			switch {
			case target <= 0:
			case weight > target+c.margin:
				ev.Kind = TargetSurpassed
			case weight < target-c.margin:
				ev.Kind = TargetPending
			default:
				ev.Kind = TargetStable
			}
		}
	}
	c.Publish(ev)
	return nil
}

var _ node.Receiver[float64] = (*Classifier)(nil)
