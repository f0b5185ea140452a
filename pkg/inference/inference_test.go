package inference

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMock(t *testing.T) {
	ctx := context.Background()
	mock := NewMock()

	stream, err := mock.Stream(ctx, &Request{Messages: []Message{NewUserMessage("Hello")}})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if text, last := drain(t, stream); text != "Mock response" || last.FinishReason != "stop" {
		t.Errorf("unexpected default turn %q (%s)", text, last.FinishReason)
	}
	if err := mock.Health(ctx); err != nil {
		t.Errorf("Health: %v", err)
	}
	mock.Close()

	if diff := cmp.Diff([]string{"Stream", "Health", "Close"}, mock.Calls()); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
	if got := mock.CallCount("Stream"); got != 1 {
		t.Errorf("expected 1 Stream call, got %d", got)
	}
}

func TestFailingMock(t *testing.T) {
	ctx := context.Background()
	testErr := errors.New("model offline")
	mock := NewFailingMock(testErr)

	if _, err := mock.Stream(ctx, &Request{}); !errors.Is(err, testErr) {
		t.Errorf("Stream: expected %v, got %v", testErr, err)
	}
	if err := mock.Health(ctx); !errors.Is(err, testErr) {
		t.Errorf("Health: expected %v, got %v", testErr, err)
	}
	if err := mock.Close(); !errors.Is(err, testErr) {
		t.Errorf("Close: expected %v, got %v", testErr, err)
	}
}

func TestReplay(t *testing.T) {
	calls := []ToolCall{{ID: "c1", Name: "next_recipe_step", Arguments: "{}"}}
	stream := Replay(&Reply{
		Message: Message{Role: RoleAssistant, Content: "Add the rum.", ToolCalls: calls},
	})

	var deltas []string
	var last *Chunk
	for last == nil {
		chunk, err := stream.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if chunk.Done {
			last = chunk
			continue
		}
		deltas = append(deltas, chunk.Delta)
	}

	if diff := cmp.Diff([]string{"Add ", "the ", "rum."}, deltas); diff != "" {
		t.Errorf("deltas (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(calls, last.ToolCalls); diff != "" {
		t.Errorf("tool calls (-want +got):\n%s", diff)
	}
	if last.FinishReason != "stop" {
		t.Errorf("expected default finish reason stop, got %q", last.FinishReason)
	}
	if _, err := stream.Recv(); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("expected ErrStreamClosed, got %v", err)
	}
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
	if cfg.Model != DefaultModel || cfg.MaxRetries != 3 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}

	cfg.Apply(
		WithBaseURL("http://localhost:11434/v1"),
		WithAPIKey("test-key"),
		WithModel("llama3.1"),
		WithMaxTokens(512),
		WithTemperature(0.5),
		WithLogger(nil),
	)
	if cfg.BaseURL != "http://localhost:11434/v1" || cfg.APIKey != "test-key" || cfg.Model != "llama3.1" {
		t.Errorf("connection options not applied: %+v", cfg)
	}
	if cfg.MaxTokens != 512 || cfg.Temperature != 0.5 {
		t.Errorf("request defaults not applied: %+v", cfg)
	}
	if cfg.Logger == nil {
		t.Error("nil logger must fall back to the default")
	}

	tests := []struct {
		name string
		opt  Option
		want error
	}{
		{"no base url", WithBaseURL(""), ErrNoBaseURL},
		{"no model", WithModel(""), ErrNoModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Apply(tt.opt)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{429, true},
		{400, false},
		{401, false},
		{404, false},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		err := &APIError{Provider: "test", StatusCode: tt.status, Message: "x"}
		if got := err.Retryable(); got != tt.retryable {
			t.Errorf("status %d: Retryable() = %v, want %v", tt.status, got, tt.retryable)
		}
	}

	err := &APIError{Provider: "test", StatusCode: 400, Code: "invalid_api_key", Message: "bad request"}
	if got := err.Error(); got != "inference [test]: API error 400 (invalid_api_key): bad request" {
		t.Errorf("unexpected error string: %s", got)
	}
}

func TestMessageHelpers(t *testing.T) {
	tests := []struct {
		got  Message
		want Message
	}{
		{NewSystemMessage("You are a bartender"), Message{Role: RoleSystem, Content: "You are a bartender"}},
		{NewUserMessage("Hello"), Message{Role: RoleUser, Content: "Hello"}},
		{NewAssistantMessage("Hi there"), Message{Role: RoleAssistant, Content: "Hi there"}},
		{NewToolMessage("call-123", "result"), Message{Role: RoleTool, ToolCallID: "call-123", Content: "result"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, tt.got); diff != "" {
			t.Errorf("message (-want +got):\n%s", diff)
		}
	}
}

func TestOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAI(); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestOpenAIParams(t *testing.T) {
	o, err := NewOpenAI(WithAPIKey("k"), WithModel("gpt-test"), WithMaxTokens(64))
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	defer o.Close()

	params, err := o.params(&Request{
		Messages: []Message{
			NewSystemMessage("You are a bartender."),
			NewUserMessage("Hi"),
			{Role: RoleAssistant, Content: "Hello", ToolCalls: []ToolCall{{ID: "c1", Name: "next_recipe_step", Arguments: "{}"}}},
			NewToolMessage("c1", "Next step initiated (1/2)"),
		},
		Tools:      []Tool{startTool()},
		ToolChoice: "auto",
	})
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.Model != "gpt-test" || len(params.Messages) != 4 || len(params.Tools) != 1 {
		t.Errorf("unexpected params: model %s, %d messages, %d tools",
			params.Model, len(params.Messages), len(params.Tools))
	}
	if got := params.MaxCompletionTokens.Value; got != 64 {
		t.Errorf("expected max tokens 64, got %d", got)
	}

	if _, err := o.params(&Request{Messages: []Message{{Role: "narrator"}}}); err == nil {
		t.Error("expected error for unknown role")
	}
}
