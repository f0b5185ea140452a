package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func startTool() Tool {
	return NewTool("start_mixing_mode", "Start mixing a recipe", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"recipe": map[string]any{"type": "object"},
		},
		"required": []string{"recipe"},
	})
}

// drain reads a stream to its final chunk.
func drain(t *testing.T, s Stream) (string, *Chunk) {
	t.Helper()
	var text string
	for {
		chunk, err := s.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		text += chunk.Delta
		if chunk.Done {
			return text, chunk
		}
	}
}

// sseServer answers every completion with the given events.
func sseServer(t *testing.T, check func(r *http.Request, body wireRequest), events ...string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body wireRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if check != nil {
			check(r, body)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClientStreamAssemblesToolCalls(t *testing.T) {
	server := sseServer(t, nil,
		`{"choices":[{"delta":{"content":"Sure, "}}]}`,
		`{"choices":[{"delta":{"content":"one moment."}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call-1","function":{"name":"next_recipe_step","arguments":""}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":1,"id":"call-2","function":{"name":"stop_mixing_mode","arguments":"{\"rea"}}]}}]}`,
		`not json`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{}"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":1,"function":{"arguments":"son\":\"done\"}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	)

	client, _ := NewClient(WithBaseURL(server.URL))
	defer client.Close()

	stream, err := client.Stream(context.Background(), &Request{
		Messages: []Message{NewUserMessage("next")},
		Tools:    []Tool{startTool()},
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	text, last := drain(t, stream)
	if text != "Sure, one moment." {
		t.Errorf("unexpected text: %q", text)
	}
	if last.FinishReason != "tool_calls" {
		t.Errorf("expected finish reason tool_calls, got %q", last.FinishReason)
	}
	want := []ToolCall{
		{ID: "call-1", Name: "next_recipe_step", Arguments: "{}"},
		{ID: "call-2", Name: "stop_mixing_mode", Arguments: `{"reason":"done"}`},
	}
	if diff := cmp.Diff(want, last.ToolCalls); diff != "" {
		t.Errorf("tool calls (-want +got):\n%s", diff)
	}
	if _, err := stream.Recv(); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Recv after done: expected ErrStreamClosed, got %v", err)
	}
}

func TestClientRequestBody(t *testing.T) {
	server := sseServer(t, func(r *http.Request, body wireRequest) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("expected bearer key, got %q", auth)
		}
		want := wireRequest{
			Model:       "llama3.1",
			Stream:      true,
			MaxTokens:   256,
			Temperature: 0.7,
			Messages: []wireMessage{
				{Role: "system", Content: "You are a bartender."},
				{Role: "user", Content: "Something strong."},
				{Role: "assistant", ToolCalls: []wireToolCall{{
					ID:       "call-0",
					Type:     "function",
					Function: wireFunctionCall{Name: "start_mixing_mode", Arguments: "{}"},
				}}},
				{Role: "tool", Content: "invalid arguments", ToolCallID: "call-0"},
			},
			Tools: []wireTool{{
				Type: "function",
				Function: wireFunction{
					Name:        "start_mixing_mode",
					Description: "Start mixing a recipe",
					Parameters: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"recipe": map[string]any{"type": "object"},
						},
						"required": []any{"recipe"},
					},
				},
			}},
			ToolChoice: "auto",
		}
		if diff := cmp.Diff(want, body); diff != "" {
			t.Errorf("request (-want +got):\n%s", diff)
		}
	}, `{"choices":[{"delta":{"content":"Coming up."},"finish_reason":"stop"}]}`)

	client, _ := NewClient(
		WithBaseURL(server.URL+"/"),
		WithAPIKey("test-key"),
		WithModel("llama3.1"),
	)
	defer client.Close()

	stream, err := client.Stream(context.Background(), &Request{
		Messages: []Message{
			NewSystemMessage("You are a bartender."),
			NewUserMessage("Something strong."),
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call-0", Name: "start_mixing_mode", Arguments: "{}"}}},
			NewToolMessage("call-0", "invalid arguments"),
		},
		MaxTokens:  256,
		Tools:      []Tool{startTool()},
		ToolChoice: "auto",
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	text, last := drain(t, stream)
	if text != "Coming up." || last.FinishReason != "stop" {
		t.Errorf("unexpected turn %q (%s)", text, last.FinishReason)
	}
}

func TestClientToolChoiceNeedsTools(t *testing.T) {
	server := sseServer(t, func(_ *http.Request, body wireRequest) {
		if body.ToolChoice != "" || len(body.Tools) != 0 {
			t.Errorf("expected no tool fields, got %q %v", body.ToolChoice, body.Tools)
		}
	})
	client, _ := NewClient(WithBaseURL(server.URL))
	defer client.Close()

	stream, err := client.Stream(context.Background(), &Request{ToolChoice: "auto"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()
	drain(t, stream)
}

func TestClientRetriesOpening(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
		calls   int32
	}{
		{"server error recovers", http.StatusBadGateway, false, 3},
		{"rate limit recovers", http.StatusTooManyRequests, false, 3},
		{"unauthorized fails at once", http.StatusUnauthorized, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) < 3 {
					w.WriteHeader(tt.status)
					fmt.Fprint(w, `{"error":{"message":"nope","code":"test_code"}}`)
					return
				}
				fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"},\"finish_reason\":\"stop\"}]}\n\n")
			}))
			defer server.Close()

			client, _ := NewClient(WithBaseURL(server.URL), WithRetry(3, 0))
			defer client.Close()

			stream, err := client.Stream(context.Background(), &Request{Messages: []Message{NewUserMessage("hi")}})
			if got := calls.Load(); got != tt.calls {
				t.Errorf("expected %d requests, got %d", tt.calls, got)
			}
			if tt.wantErr {
				var apiErr *APIError
				if !errors.As(err, &apiErr) {
					t.Fatalf("expected APIError, got %v", err)
				}
				if apiErr.StatusCode != tt.status || apiErr.Code != "test_code" || apiErr.Message != "nope" {
					t.Errorf("unexpected error: %+v", apiErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Stream: %v", err)
			}
			defer stream.Close()
			if text, _ := drain(t, stream); text != "ok" {
				t.Errorf("expected ok, got %q", text)
			}
		})
	}
}

func TestClientStreamEndsWithoutDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, ": keep-alive\n\ndata: {\"choices\":[{\"delta\":{\"content\":\"Cheers\"}}]}\n\n")
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL))
	defer client.Close()

	stream, err := client.Stream(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	text, last := drain(t, stream)
	if text != "Cheers" || last.FinishReason != "" || last.ToolCalls != nil {
		t.Errorf("unexpected end of turn: %q %+v", text, last)
	}
}

func TestClientHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("expected /models, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, "bad key")
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL))
	defer client.Close()
	if err := client.Health(context.Background()); err != nil {
		t.Errorf("Health: %v", err)
	}

	keyed, _ := NewClient(WithBaseURL(server.URL), WithAPIKey("bad"))
	defer keyed.Close()
	var apiErr *APIError
	if err := keyed.Health(context.Background()); !errors.As(err, &apiErr) || apiErr.Message != "bad key" {
		t.Errorf("expected plain-text APIError, got %v", err)
	}
}

func TestNewClientValidates(t *testing.T) {
	if _, err := NewClient(WithModel("")); !errors.Is(err, ErrNoModel) {
		t.Errorf("expected ErrNoModel, got %v", err)
	}
	if _, err := NewClient(WithBaseURL("")); !errors.Is(err, ErrNoBaseURL) {
		t.Errorf("expected ErrNoBaseURL, got %v", err)
	}
	if _, err := NewClient(WithBaseURL("http://localhost:11434/v1")); err != nil {
		t.Errorf("a local server needs no key: %v", err)
	}
}
