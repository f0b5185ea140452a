// Package mixing runs the bartending workflow. It routes recognized sentences
// to the agent session of the current mode, executes the agent's tool calls
// against the board and guides the guest through a recipe step by step.
//
// The workflow has two modes. In RecipeSearch the agent helps the guest pick
// a drink and may call start_mixing_mode. In Mixing a fresh session walks
// through the recipe; steps advance on next_recipe_step or when the scale
// settles on the poured amount.
//
//	d, err := mixing.New(control, tts, sessions,
//	    mixing.WithHistory(store),
//	    mixing.WithLogger(logger),
//	)
//	stt.Subscribe(d)
//	classifier.Subscribe(d.ScaleInput())
//	d.Subscribe(tts)
//	go d.Run(ctx)
package mixing

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-distillo/pkg/agent"
	"github.com/teslashibe/go-distillo/pkg/recipe"
)

// Mode is the workflow mode.
type Mode int

const (
	// RecipeSearch is the initial mode: choosing a drink.
	RecipeSearch Mode = iota

	// Mixing guides the guest through the chosen recipe.
	Mixing
)

// String returns the mode name. It matches the agent profile names.
func (m Mode) String() string {
	switch m {
	case RecipeSearch:
		return "RECIPE_SEARCH"
	case Mixing:
		return "MIXING"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a mode name.
func (m *Mode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "RECIPE_SEARCH":
		*m = RecipeSearch
	case "MIXING":
		*m = Mixing
	default:
		return fmt.Errorf("mixing: unknown mode %q", text)
	}
	return nil
}

// Hardware is the board command surface the workflow drives.
type Hardware interface {
	StartRecipe(name string) error
	DoIngredientStep(deltaGrams float64, text string) error
	DoInstructionStep(text string) error
	FinishRecipe() error
	AbortRecipe() error
	ZeroScale() error
}

// Speaker is the synthesis output whose playback the workflow tracks.
type Speaker interface {
	IsEmitting(slack time.Duration) bool
	SetMuted(muted bool)
	Muted() bool
}

// SessionFactory creates a fresh agent session for a mode.
type SessionFactory func(mode Mode) agent.Session

// CallRef identifies a tool call.
type CallRef struct {
	ID   string
	Name string
}

// State is the workflow state. In RecipeSearch Recipe is nil and Step is 0;
// in Mixing 0 <= Step < len(Recipe.Steps).
type State struct {
	Mode   Mode
	Recipe *recipe.Recipe
	Step   int

	// Origin is the start_mixing_mode call that entered Mixing. The outcome
	// of the mix is reported back to it.
	Origin CallRef

	MixID     string
	StartedAt time.Time
}

// Steps returns the number of steps of the active recipe.
func (s State) Steps() int {
	if s.Recipe == nil {
		return 0
	}
	return len(s.Recipe.Steps)
}

// Current returns the active step.
func (s State) Current() (recipe.Step, bool) {
	if s.Recipe == nil || s.Step < 0 || s.Step >= len(s.Recipe.Steps) {
		return recipe.Step{}, false
	}
	return s.Recipe.Steps[s.Step], true
}
