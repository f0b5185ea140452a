// Package recipe defines cocktail recipes as the agent submits them and
// validates tool arguments against a strict schema.
package recipe

import "fmt"

// StepType distinguishes weighed ingredients from free-form instructions.
type StepType string

const (
	// Ingredient steps are poured onto the scale.
	Ingredient StepType = "ingredient"

	// Instruction steps have no weight target (shake, garnish, ...).
	Instruction StepType = "instruction"
)

// GramsPerCentilitre converts recipe amounts to a scale target. Every amount
// is treated as centilitres of a water-like liquid regardless of unit.
const GramsPerCentilitre = 10

// Step is one entry in a recipe.
type Step struct {
	Type        StepType `json:"type"`
	Description string   `json:"description"`

	// Ingredient only.
	Name   string   `json:"name,omitempty"`
	Amount *float64 `json:"amount,omitempty"`
	Unit   *string  `json:"unit,omitempty"`
}

// Grams returns the pour target for an ingredient step. A missing amount
// yields 0.
func (s Step) Grams() float64 {
	if s.Amount == nil {
		return 0
	}
	return *s.Amount * GramsPerCentilitre
}

// String returns a short human-readable form for logs.
func (s Step) String() string {
	if s.Type == Ingredient {
		amount, unit := "?", ""
		if s.Amount != nil {
			amount = fmt.Sprintf("%g", *s.Amount)
		}
		if s.Unit != nil {
			unit = *s.Unit
		}
		return fmt.Sprintf("%s %s%s", s.Name, amount, unit)
	}
	return s.Description
}

// Recipe is a named, ordered list of steps.
type Recipe struct {
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

// StartArgs are the arguments of start_mixing_mode.
type StartArgs struct {
	Recipe Recipe `json:"recipe"`
}

// StopArgs are the arguments of stop_mixing_mode.
type StopArgs struct {
	Reason string `json:"reason"`
}
