package recipe

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

var (
	resolveOnce sync.Once
	startSchema *jsonschema.Resolved
	stopSchema  *jsonschema.Resolved
	resolveErr  error
)

func resolved() (start, stop *jsonschema.Resolved, err error) {
	resolveOnce.Do(func() {
		startSchema, resolveErr = StartArgsSchema().Resolve(nil)
		if resolveErr != nil {
			return
		}
		stopSchema, resolveErr = StopArgsSchema().Resolve(nil)
	})
	return startSchema, stopSchema, resolveErr
}

// ParseStartArgs validates and decodes start_mixing_mode arguments.
func ParseStartArgs(raw string) (*StartArgs, error) {
	start, _, err := resolved()
	if err != nil {
		return nil, fmt.Errorf("recipe: resolve schema: %w", err)
	}

	data, err := validate(start, raw)
	if err != nil {
		return nil, &ValidationError{Tool: "start_mixing_mode", Err: err}
	}

	var args StartArgs
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, &ValidationError{Tool: "start_mixing_mode", Err: err}
	}
	return &args, nil
}

// ParseStopArgs validates and decodes stop_mixing_mode arguments.
func ParseStopArgs(raw string) (*StopArgs, error) {
	_, stop, err := resolved()
	if err != nil {
		return nil, fmt.Errorf("recipe: resolve schema: %w", err)
	}

	data, err := validate(stop, raw)
	if err != nil {
		return nil, &ValidationError{Tool: "stop_mixing_mode", Err: err}
	}

	var args StopArgs
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, &ValidationError{Tool: "stop_mixing_mode", Err: err}
	}
	return &args, nil
}

// validate parses raw, repairing it once if it is not well-formed JSON, and
// checks it against the schema. It returns the bytes that passed.
func validate(schema *jsonschema.Resolved, raw string) ([]byte, error) {
	data := []byte(raw)

	var instance any
	err := json.Unmarshal(data, &instance)
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		fixed, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
		}
		data = []byte(fixed)
		err = json.Unmarshal(data, &instance)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	if err := schema.Validate(instance); err != nil {
		return nil, err
	}
	return data, nil
}
