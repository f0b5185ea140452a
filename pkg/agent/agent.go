// Package agent holds the conversational sessions the mixing workflow talks
// to. A session keeps one message history and turns user text into spoken
// text and tool calls through an inference.Provider.
//
// Example usage:
//
//	provider, _ := inference.NewOpenAI(inference.WithAPIKey(key))
//	session := agent.NewChatSession(provider, agent.RecipeSearchProfile())
//
//	resp, _ := session.Generate(ctx, "Something with rum, please.", func(sentence string) {
//	    tts.Receive(sentence, "agent")
//	})
//	for _, call := range resp.ToolCalls {
//	    session.ReportToolOutput(call.ID, "Mixing mode started")
//	}
package agent

import (
	"context"

	"github.com/teslashibe/go-distillo/pkg/inference"
)

// Session is one conversation with the agent backend.
type Session interface {
	// Generate appends text as a user message (unless empty) and produces
	// the next assistant turn. onPartial, if set, receives spoken text as it
	// is generated.
	Generate(ctx context.Context, text string, onPartial PartialFunc) (*Response, error)

	// ReportToolOutput records the result of a tool call for the next turn.
	ReportToolOutput(callID, output string)

	// AddSystemMessage records an out-of-band note for the next turn.
	AddSystemMessage(text string)
}

// PartialFunc receives generated text in sentence-sized pieces.
type PartialFunc func(text string)

// Response is one assistant turn.
type Response struct {
	Text      string
	ToolCalls []inference.ToolCall
}
