// Package inference streams assistant turns from a language model that can
// call tools.
//
// Two backends implement Provider: OpenAI, built on the official SDK, and
// Client, which speaks the OpenAI wire format to any compatible server
// (Ollama, vLLM, a local proxy). A Chain opens each turn on the first
// backend that answers.
//
//	provider, _ := inference.NewClient(
//	    inference.WithBaseURL("http://localhost:11434/v1"),
//	    inference.WithModel("llama3.1"),
//	)
//	defer provider.Close()
//
//	stream, _ := provider.Stream(ctx, &inference.Request{
//	    Messages: []inference.Message{inference.NewUserMessage("A daiquiri, please.")},
//	    Tools:    tools,
//	})
//	defer stream.Close()
package inference

import "context"

// Provider opens streamed assistant turns.
type Provider interface {
	// Stream starts one assistant turn. Text arrives as it is generated;
	// tool calls arrive assembled on the final chunk.
	Stream(ctx context.Context, req *Request) (Stream, error)

	// Health checks that the endpoint is reachable and accepts the key.
	Health(ctx context.Context) error

	// Close releases pooled connections.
	Close() error
}

// Stream is one assistant turn being generated.
type Stream interface {
	// Recv returns the next chunk. After the chunk with Done set it
	// returns ErrStreamClosed.
	Recv() (*Chunk, error)

	Close() error
}

// Chunk is a piece of a turn.
type Chunk struct {
	Delta string

	// ToolCalls is only set on the final chunk, since arguments are
	// streamed in fragments.
	ToolCalls []ToolCall

	// FinishReason is "stop", "length" or "tool_calls" on the final chunk,
	// and empty if the server closed the stream without one.
	FinishReason string

	Done bool
}

// Request describes one turn.
type Request struct {
	Messages []Message

	// Model, MaxTokens and Temperature override the provider defaults when
	// set.
	Model       string
	MaxTokens   int
	Temperature float64

	Tools []Tool

	// ToolChoice is "auto", "none" or "required". Ignored without tools.
	ToolChoice string
}

// Reply is a complete turn, used to script streams in tests.
type Reply struct {
	Message      Message
	FinishReason string
}
