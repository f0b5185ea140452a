package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/teslashibe/go-distillo/pkg/inference"
)

// notExecuted answers tool calls nobody reported on, so the history stays
// valid for the next request.
const notExecuted = "This function call was not executed."

// ChatSession is a Session backed by an inference.Provider. Generations are
// serialized: a second caller waits for the first to finish.
type ChatSession struct {
	provider inference.Provider
	profile  Profile
	config   *Config
	logger   *slog.Logger

	genMu sync.Mutex

	mu       sync.Mutex
	history  []inference.Message
	pending  []string // tool call IDs awaiting output, in call order
	answered map[string]bool
	deferred []string // system notes held back while calls are pending
}

// NewChatSession creates a session with an empty history.
func NewChatSession(provider inference.Provider, profile Profile, opts ...Option) *ChatSession {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	return &ChatSession{
		provider: provider,
		profile:  profile,
		config:   cfg,
		logger:   cfg.Logger.With("component", "agent.session", "profile", profile.Name),
		answered: make(map[string]bool),
	}
}

// Generate runs one assistant turn.
func (s *ChatSession) Generate(ctx context.Context, text string, onPartial PartialFunc) (*Response, error) {
	if s.provider == nil {
		return nil, ErrNoProvider
	}

	s.genMu.Lock()
	defer s.genMu.Unlock()

	s.mu.Lock()
	s.closePending()
	if text != "" {
		s.history = append(s.history, inference.NewUserMessage(text))
	}
	msgs := make([]inference.Message, 0, len(s.history)+1)
	msgs = append(msgs, inference.NewSystemMessage(s.profile.SystemPrompt))
	msgs = append(msgs, s.history...)
	s.mu.Unlock()

	req := &inference.Request{
		Messages:    msgs,
		Model:       s.config.Model,
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
		Tools:       s.profile.Tools,
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = "auto"
	}

	stream, err := s.provider.Stream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("agent: start generation: %w", err)
	}
	defer stream.Close()

	var (
		full   strings.Builder
		speech sentenceBuffer
		calls  []inference.ToolCall
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk, err := stream.Recv()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("agent: generation: %w", err)
		}
		full.WriteString(chunk.Delta)
		if onPartial != nil {
			for _, sentence := range speech.add(chunk.Delta) {
				onPartial(sentence)
			}
		}
		if chunk.Done {
			calls = chunk.ToolCalls
			break
		}
	}
	if onPartial != nil {
		if rest := speech.flush(); rest != "" {
			onPartial(rest)
		}
	}

	resp := &Response{Text: full.String(), ToolCalls: calls}

	s.mu.Lock()
	s.history = append(s.history, inference.Message{
		Role:      inference.RoleAssistant,
		Content:   resp.Text,
		ToolCalls: calls,
	})
	for _, c := range calls {
		s.pending = append(s.pending, c.ID)
	}
	s.mu.Unlock()

	s.logger.Debug("turn generated",
		"chars", len(resp.Text),
		"tool_calls", len(calls),
	)
	return resp, nil
}

// ReportToolOutput records a tool result. A second result for the same call
// becomes a system note, since the backend accepts one output per call.
func (s *ChatSession) ReportToolOutput(callID, output string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.answered[callID] || !s.isPending(callID) {
		s.addNoteLocked(fmt.Sprintf("Result of function call %s: %s", callID, output))
		return
	}
	s.history = append(s.history, inference.NewToolMessage(callID, output))
	s.answered[callID] = true
	s.removePending(callID)
	if len(s.pending) == 0 {
		s.flushDeferred()
	}
}

// AddSystemMessage records a note for the next turn.
func (s *ChatSession) AddSystemMessage(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addNoteLocked(text)
}

// History returns a copy of the message history, without the system prompt.
func (s *ChatSession) History() []inference.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inference.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Profile returns the session's profile.
func (s *ChatSession) Profile() Profile {
	return s.profile
}

// addNoteLocked appends a system note, or holds it back while tool calls are
// unanswered so tool results stay adjacent to their call.
func (s *ChatSession) addNoteLocked(text string) {
	if len(s.pending) > 0 {
		s.deferred = append(s.deferred, text)
		return
	}
	s.history = append(s.history, inference.NewSystemMessage(text))
}

// closePending answers calls left without output and releases held notes.
func (s *ChatSession) closePending() {
	for _, id := range s.pending {
		s.history = append(s.history, inference.NewToolMessage(id, notExecuted))
		s.answered[id] = true
	}
	s.pending = nil
	s.flushDeferred()
}

func (s *ChatSession) flushDeferred() {
	for _, note := range s.deferred {
		s.history = append(s.history, inference.NewSystemMessage(note))
	}
	s.deferred = nil
}

func (s *ChatSession) isPending(id string) bool {
	for _, p := range s.pending {
		if p == id {
			return true
		}
	}
	return false
}

func (s *ChatSession) removePending(id string) {
	for i, p := range s.pending {
		if p == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// sentenceBuffer splits streamed text at sentence ends so speech synthesis
// gets whole sentences.
type sentenceBuffer struct {
	buf strings.Builder
}

func (b *sentenceBuffer) add(delta string) []string {
	var out []string
	for _, r := range delta {
		b.buf.WriteRune(r)
		switch r {
		case '.', '!', '?', ':', ';', '\n':
			if s := strings.TrimSpace(b.buf.String()); s != "" {
				out = append(out, s)
			}
			b.buf.Reset()
		}
	}
	return out
}

func (b *sentenceBuffer) flush() string {
	s := strings.TrimSpace(b.buf.String())
	b.buf.Reset()
	return s
}

var _ Session = (*ChatSession)(nil)
