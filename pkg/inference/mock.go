package inference

import (
	"context"
	"strings"
	"sync"
)

// Mock is a scriptable Provider for tests. Without StreamFunc every turn
// answers "Mock response".
type Mock struct {
	StreamFunc func(ctx context.Context, req *Request) (Stream, error)
	HealthFunc func(ctx context.Context) error
	CloseFunc  func() error

	mu    sync.Mutex
	calls []string
}

func NewMock() *Mock {
	return &Mock{}
}

// NewFailingMock returns a mock whose every method fails with err.
func NewFailingMock(err error) *Mock {
	return &Mock{
		StreamFunc: func(context.Context, *Request) (Stream, error) { return nil, err },
		HealthFunc: func(context.Context) error { return err },
		CloseFunc:  func() error { return err },
	}
}

func (m *Mock) Stream(ctx context.Context, req *Request) (Stream, error) {
	m.record("Stream")
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	return Replay(&Reply{Message: NewAssistantMessage("Mock response")}), nil
}

func (m *Mock) Health(ctx context.Context) error {
	m.record("Health")
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

func (m *Mock) Close() error {
	m.record("Close")
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *Mock) record(method string) {
	m.mu.Lock()
	m.calls = append(m.calls, method)
	m.mu.Unlock()
}

// Calls returns the invoked method names in order.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how often method was invoked.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == method {
			n++
		}
	}
	return n
}

// Replay streams a complete reply one word per chunk. Tool calls arrive on
// the final chunk as they do from a server.
func Replay(reply *Reply) Stream {
	reason := reply.FinishReason
	if reason == "" {
		reason = "stop"
	}
	var words []string
	if reply.Message.Content != "" {
		words = strings.SplitAfter(reply.Message.Content, " ")
	}
	return &replayStream{
		words:  words,
		calls:  reply.Message.ToolCalls,
		reason: reason,
	}
}

type replayStream struct {
	words  []string
	calls  []ToolCall
	reason string
	done   bool
}

func (s *replayStream) Recv() (*Chunk, error) {
	if s.done {
		return nil, ErrStreamClosed
	}
	if len(s.words) > 0 {
		w := s.words[0]
		s.words = s.words[1:]
		return &Chunk{Delta: w}, nil
	}
	s.done = true
	return &Chunk{
		ToolCalls:    s.calls,
		FinishReason: s.reason,
		Done:         true,
	}, nil
}

func (s *replayStream) Close() error {
	return nil
}

var _ Provider = (*Mock)(nil)
