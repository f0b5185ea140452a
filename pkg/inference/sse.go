package inference

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// sseStream reads a turn from an OpenAI style event stream.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	calls   toolCallBuilder
	done    bool
}

func newSSEStream(body io.ReadCloser) *sseStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	return &sseStream{body: body, scanner: scanner}
}

func (s *sseStream) Recv() (*Chunk, error) {
	if s.done {
		return nil, ErrStreamClosed
	}
	for s.scanner.Scan() {
		data, ok := strings.CutPrefix(strings.TrimSpace(s.scanner.Text()), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return s.finish("", ""), nil
		}

		var chunk wireChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil || len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		for _, tc := range choice.Delta.ToolCalls {
			s.calls.add(tc.Index, tc.ID, tc.Function.Name, tc.Function.Arguments)
		}
		if choice.FinishReason != "" {
			return s.finish(choice.FinishReason, choice.Delta.Content), nil
		}
		if choice.Delta.Content != "" {
			return &Chunk{Delta: choice.Delta.Content}, nil
		}
	}
	if err := s.scanner.Err(); err != nil {
		return nil, wrap(providerClient, fmt.Errorf("read stream: %w", err))
	}
	return s.finish("", ""), nil
}

func (s *sseStream) finish(reason, delta string) *Chunk {
	s.done = true
	return &Chunk{
		Delta:        delta,
		ToolCalls:    s.calls.build(),
		FinishReason: reason,
		Done:         true,
	}
}

func (s *sseStream) Close() error {
	return s.body.Close()
}

// toolCallBuilder joins tool call fragments keyed by index. ID and name
// arrive once; arguments are concatenated.
type toolCallBuilder map[int]*ToolCall

func (b *toolCallBuilder) add(index int, id, name, args string) {
	if *b == nil {
		*b = make(toolCallBuilder)
	}
	tc, ok := (*b)[index]
	if !ok {
		tc = &ToolCall{}
		(*b)[index] = tc
	}
	if id != "" {
		tc.ID = id
	}
	if name != "" {
		tc.Name = name
	}
	tc.Arguments += args
}

func (b toolCallBuilder) build() []ToolCall {
	if len(b) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(b))
	for i := range b {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	out := make([]ToolCall, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, *b[i])
	}
	return out
}
