package mixing

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/teslashibe/go-distillo/pkg/agent"
	"github.com/teslashibe/go-distillo/pkg/esp"
	"github.com/teslashibe/go-distillo/pkg/history"
	"github.com/teslashibe/go-distillo/pkg/recipe"
)

// Spoken and reported texts.
const (
	skippedCall    = "Skipped this function call. Please call only one function at a time."
	ackUtterance   = "Okay."
	doneUtterance  = "Done."
	tooMuchWarning = "Careful, that is more than the recipe asks for."
	stableNote     = "User added expected amount of ingredient. Next step initiated."
	successReason  = "The recipe was mixed successfully."
)

// handler executes one tool call with mu held and returns the text reported
// to the calling session.
type handler func(d *Dispatcher, call CallRef, args string) (string, error)

// handlers lists the tools available in each mode.
var handlers = map[Mode]map[string]handler{
	RecipeSearch: {
		agent.ToolStartMixing: (*Dispatcher).startMixing,
	},
	Mixing: {
		agent.ToolStopMixing: (*Dispatcher).stopMixing,
		agent.ToolNextStep:   (*Dispatcher).nextStep,
	},
}

func (d *Dispatcher) startMixing(call CallRef, raw string) (string, error) {
	if d.state.Mode != RecipeSearch {
		return "", &StateError{Op: "start mixing", Mode: d.state.Mode}
	}
	args, err := recipe.ParseStartArgs(raw)
	if err != nil {
		return "", err
	}
	r := args.Recipe

	if err := d.hw.StartRecipe(r.Name); err != nil {
		return "", fmt.Errorf("mixing: start recipe: %w", err)
	}

	d.setStateLocked(State{
		Mode:      Mixing,
		Recipe:    &r,
		Origin:    call,
		MixID:     uuid.New().String(),
		StartedAt: d.cfg.Now(),
	})
	d.mixing = d.sessions(Mixing)

	d.logger.Info("mixing started",
		"recipe", r.Name,
		"steps", len(r.Steps),
		"mix_id", d.state.MixID,
	)
	d.runStepLocked()
	return "Mixing mode started", nil
}

func (d *Dispatcher) stopMixing(_ CallRef, raw string) (string, error) {
	if d.state.Mode != Mixing {
		return "", &StateError{Op: "stop mixing", Mode: d.state.Mode}
	}
	args, err := recipe.ParseStopArgs(raw)
	if err != nil {
		return "", err
	}
	d.endLocked(history.Aborted, args.Reason)
	return "Mixing mode stopped", nil
}

func (d *Dispatcher) nextStep(_ CallRef, _ string) (string, error) {
	n := d.state.Steps()
	finished, err := d.advanceLocked()
	if err != nil {
		return "", err
	}
	if finished {
		return "No steps left; recipe now finished.", nil
	}
	return fmt.Sprintf("Next step initiated (%d/%d)", d.state.Step+1, n), nil
}

// advanceLocked moves to the next step, finishing the recipe after the last.
func (d *Dispatcher) advanceLocked() (finished bool, err error) {
	if d.state.Mode != Mixing || d.state.Recipe == nil {
		return false, &StateError{Op: "advance to the next step", Mode: d.state.Mode}
	}
	d.state.Step++
	if d.state.Step >= len(d.state.Recipe.Steps) {
		d.endLocked(history.Finished, successReason)
		return true, nil
	}
	d.runStepLocked()
	return false, nil
}

// runStepLocked announces the current step and sets up the board for it.
func (d *Dispatcher) runStepLocked() {
	step, ok := d.state.Current()
	if !ok {
		return
	}

	d.say(step.Description)
	if err := d.hw.ZeroScale(); err != nil {
		d.logger.Warn("zero scale failed", "error", err)
	}

	var err error
	switch step.Type {
	case recipe.Ingredient:
		err = d.hw.DoIngredientStep(step.Grams(), step.Description)
	default:
		err = d.hw.DoInstructionStep(step.Description)
	}
	if err != nil {
		d.logger.Warn("step command failed",
			"step", d.state.Step,
			"error", err,
		)
	}

	d.logger.Info("step started",
		"step", d.state.Step+1,
		"of", d.state.Steps(),
		"type", step.Type,
	)
	ev := d.eventLocked(EventStep)
	ev.Text = step.Description
	d.emit(ev)
}

// endLocked leaves Mixing, reports the outcome to the call that started it
// and records the mix.
func (d *Dispatcher) endLocked(outcome history.Outcome, reason string) {
	d.say(doneUtterance)

	var err error
	completed := d.state.Step
	if outcome == history.Finished {
		err = d.hw.FinishRecipe()
		completed = d.state.Steps()
	} else {
		err = d.hw.AbortRecipe()
	}
	if err != nil {
		d.logger.Warn("end command failed", "outcome", outcome, "error", err)
	}

	if d.state.Origin.ID != "" {
		d.search.ReportToolOutput(d.state.Origin.ID, reason)
	}
	d.record(outcome, reason, completed)

	d.logger.Info("mixing ended",
		"recipe", d.state.Recipe.Name,
		"outcome", outcome,
		"reason", reason,
	)
	d.setStateLocked(State{Mode: RecipeSearch})
	d.mixing = nil
}

func (d *Dispatcher) record(outcome history.Outcome, reason string, completed int) {
	if d.cfg.History == nil || d.state.Recipe == nil {
		return
	}
	err := d.cfg.History.Save(&history.Session{
		ID:             d.state.MixID,
		Recipe:         d.state.Recipe.Name,
		Steps:          d.state.Steps(),
		StepsCompleted: completed,
		Outcome:        outcome,
		Reason:         reason,
		StartedAt:      d.state.StartedAt,
		EndedAt:        d.cfg.Now(),
	})
	if err != nil {
		d.logger.Warn("failed to record mix", "error", err)
	}
}

func (d *Dispatcher) setStateLocked(s State) {
	d.state = s
	d.mode.Store(int32(s.Mode))
	d.emit(d.eventLocked(EventMode))
}

// processEvent handles a settled scale reading.
func (d *Dispatcher) processEvent(ev esp.ScaleEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := d.eventLocked(EventScale)
	out.Text = ev.Kind.String()
	out.Weight = ev.Weight
	d.emit(out)

	if d.state.Mode != Mixing {
		d.logger.Debug("scale event ignored", "kind", ev.Kind, "mode", d.state.Mode)
		return
	}

	switch ev.Kind {
	case esp.TargetStable:
		d.say(ackUtterance)
		d.mixing.AddSystemMessage(stableNote)
		if _, err := d.advanceLocked(); err != nil {
			d.logger.Warn("advance failed", "error", err)
		}
	case esp.TargetSurpassed:
		d.say(tooMuchWarning)
		d.mixing.AddSystemMessage(fmt.Sprintf(
			"User added more than expected: %.0f g instead of %.0f g.", ev.Weight, ev.Target))
	case esp.TargetPending:
		d.logger.Debug("waiting for pour", "weight", ev.Weight, "target", ev.Target)
	default:
		d.logger.Debug("scale settled without a pour target", "weight", ev.Weight)
	}
}
