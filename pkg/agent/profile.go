package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/teslashibe/go-distillo/pkg/inference"
	"github.com/teslashibe/go-distillo/pkg/recipe"
)

// Tool names understood by the mixing workflow.
const (
	ToolStartMixing = "start_mixing_mode"
	ToolStopMixing  = "stop_mixing_mode"
	ToolNextStep    = "next_recipe_step"
)

// Profile is the system prompt and tool set of one workflow mode.
type Profile struct {
	// Name is also the resource directory the prompt override is read from.
	Name         string
	SystemPrompt string
	Tools        []inference.Tool
}

const recipeSearchPrompt = `You are Don Distillo, a friendly cocktail robot.
Help the guest pick a drink. Suggest one to three recipes that fit their taste and what they have at hand.
Only when the guest clearly confirms a recipe, answer with a short confirmation and call start_mixing_mode with the complete recipe.
Call at most one function per answer. If a function call returns an error, fix the arguments and call it again without telling the guest.
When mixing ends you receive the outcome; congratulate the guest or suggest how to continue.
Keep answers short, they are spoken aloud.`

const mixingPrompt = `You are Don Distillo, a cocktail robot guiding the guest through a recipe step by step.
The scale advances ingredient steps automatically. Call next_recipe_step when the guest says a step is done.
Call stop_mixing_mode with a reason when the guest wants to stop.
Call at most one function per answer. Keep answers very short, they are spoken aloud.`

// RecipeSearchProfile returns the built-in profile for choosing a recipe.
func RecipeSearchProfile() Profile {
	return Profile{
		Name:         "RECIPE_SEARCH",
		SystemPrompt: recipeSearchPrompt,
		Tools: []inference.Tool{
			mustTool(ToolStartMixing,
				"Start mixing a recipe the guest has explicitly chosen and confirmed.",
				recipe.StartArgsSchema()),
		},
	}
}

// MixingProfile returns the built-in profile for guiding a recipe.
func MixingProfile() Profile {
	return Profile{
		Name:         "MIXING",
		SystemPrompt: mixingPrompt,
		Tools: []inference.Tool{
			mustTool(ToolStopMixing,
				"Stop mixing before the recipe is finished.",
				recipe.StopArgsSchema()),
			mustTool(ToolNextStep,
				"Advance to the next recipe step.",
				recipe.EmptyArgsSchema()),
		},
	}
}

// WithPromptFrom replaces the system prompt with <dir>/<Name>/system_prompt.md
// when that file exists.
func (p Profile) WithPromptFrom(dir string) (Profile, error) {
	if dir == "" {
		return p, nil
	}
	path := filepath.Join(dir, p.Name, "system_prompt.md")
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("agent: read prompt %s: %w", path, err)
	}
	if prompt := strings.TrimSpace(string(data)); prompt != "" {
		p.SystemPrompt = prompt
	}
	return p, nil
}

// ToolNames lists the names of the profile's tools.
func (p Profile) ToolNames() []string {
	names := make([]string, len(p.Tools))
	for i, t := range p.Tools {
		names[i] = t.Name
	}
	return names
}

// SchemaParameters converts a JSON schema into the plain map form tools carry.
func SchemaParameters(s *jsonschema.Schema) (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var params map[string]any
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, err
	}
	return params, nil
}

func mustTool(name, description string, s *jsonschema.Schema) inference.Tool {
	params, err := SchemaParameters(s)
	if err != nil {
		panic(fmt.Sprintf("agent: schema for %s: %v", name, err))
	}
	return inference.NewTool(name, description, params)
}
