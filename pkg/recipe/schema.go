package recipe

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// falseSchema rejects every value. Used for additionalProperties.
func falseSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Not: &jsonschema.Schema{}}
}

func intPtr(n int) *int { return &n }

func nonEmptyString(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", MinLength: intPtr(1), Description: desc}
}

func ingredientSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"type":        {Type: "string", Enum: []any{string(Ingredient)}},
			"description": nonEmptyString("What the guest should do, spoken aloud."),
			"name":        nonEmptyString("Ingredient name."),
			"amount":      {Types: []string{"number", "null"}, Description: "Amount to pour."},
			"unit":        {Types: []string{"string", "null"}, Description: "Unit of the amount."},
		},
		Required:             []string{"type", "description", "name"},
		AdditionalProperties: falseSchema(),
	}
}

func instructionSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"type":        {Type: "string", Enum: []any{string(Instruction)}},
			"description": nonEmptyString("What the guest should do, spoken aloud."),
		},
		Required:             []string{"type", "description"},
		AdditionalProperties: falseSchema(),
	}
}

// RecipeSchema describes a recipe object.
func RecipeSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"name": nonEmptyString("Name of the cocktail."),
			"steps": {
				Type:     "array",
				MinItems: intPtr(1),
				Items: &jsonschema.Schema{
					OneOf: []*jsonschema.Schema{ingredientSchema(), instructionSchema()},
				},
			},
		},
		Required:             []string{"name", "steps"},
		AdditionalProperties: falseSchema(),
	}
}

// StartArgsSchema describes the start_mixing_mode arguments.
func StartArgsSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"recipe": RecipeSchema(),
		},
		Required:             []string{"recipe"},
		AdditionalProperties: falseSchema(),
	}
}

// StopArgsSchema describes the stop_mixing_mode arguments.
func StopArgsSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"reason": {Type: "string", Description: "Why mixing stops."},
		},
		Required:             []string{"reason"},
		AdditionalProperties: falseSchema(),
	}
}

// EmptyArgsSchema describes a tool without arguments.
func EmptyArgsSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{},
	}
}
