package agent

import (
	"context"
	"sync"

	"github.com/teslashibe/go-distillo/pkg/inference"
)

// ToolOutput is a recorded tool result.
type ToolOutput struct {
	CallID string
	Output string
}

// Mock implements Session for testing. Turns come from GenerateFunc if set,
// otherwise from Script in order; an exhausted script yields empty turns.
type Mock struct {
	Name string

	// GenerateFunc overrides the script.
	GenerateFunc func(ctx context.Context, text string) (*Response, error)

	// Script is consumed one response per Generate.
	Script []*Response

	mu      sync.Mutex
	inputs  []string
	outputs []ToolOutput
	notes   []string
}

// NewMock creates a mock session that replays script.
func NewMock(name string, script ...*Response) *Mock {
	return &Mock{Name: name, Script: script}
}

// Generate records text and returns the next scripted turn. Its text is
// passed to onPartial in one piece.
func (m *Mock) Generate(ctx context.Context, text string, onPartial PartialFunc) (*Response, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, text)
	fn := m.GenerateFunc
	var resp *Response
	if fn == nil {
		resp = &Response{}
		if len(m.Script) > 0 {
			resp = m.Script[0]
			m.Script = m.Script[1:]
		}
	}
	m.mu.Unlock()

	if fn != nil {
		var err error
		resp, err = fn(ctx, text)
		if err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if onPartial != nil && resp.Text != "" {
		onPartial(resp.Text)
	}
	return resp, nil
}

// ReportToolOutput records the output.
func (m *Mock) ReportToolOutput(callID, output string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs = append(m.outputs, ToolOutput{CallID: callID, Output: output})
}

// AddSystemMessage records the note.
func (m *Mock) AddSystemMessage(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = append(m.notes, text)
}

// Inputs returns the text passed to each Generate call.
func (m *Mock) Inputs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.inputs...)
}

// Generations returns how many turns were requested.
func (m *Mock) Generations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

// Outputs returns the recorded tool outputs.
func (m *Mock) Outputs() []ToolOutput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ToolOutput(nil), m.outputs...)
}

// Notes returns the recorded system notes.
func (m *Mock) Notes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.notes...)
}

// Call builds a one-call response, for scripts.
func Call(id, name, args string) *Response {
	return &Response{ToolCalls: []inference.ToolCall{{ID: id, Name: name, Arguments: args}}}
}

var _ Session = (*Mock)(nil)
