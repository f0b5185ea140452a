package inference

import (
	"context"
	"errors"
	"testing"

	"github.com/teslashibe/go-distillo/internal/log"
)

func TestChainFallback(t *testing.T) {
	down := errors.New("cloud down")
	working := NewMock()
	working.StreamFunc = func(ctx context.Context, req *Request) (Stream, error) {
		if len(req.Tools) != 1 {
			t.Errorf("tools not forwarded: %v", req.Tools)
		}
		return Replay(&Reply{Message: NewAssistantMessage("From the local model")}), nil
	}
	failing := NewFailingMock(down)

	chain, err := NewChain(log.Discard(), failing, working)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}

	stream, err := chain.Stream(context.Background(), &Request{
		Messages: []Message{NewUserMessage("A mojito")},
		Tools:    []Tool{startTool()},
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	if text, _ := drain(t, stream); text != "From the local model" {
		t.Errorf("unexpected text: %q", text)
	}
	if failing.CallCount("Stream") != 1 || working.CallCount("Stream") != 1 {
		t.Errorf("expected one attempt each, got %v and %v", failing.Calls(), working.Calls())
	}
}

func TestChainAllFail(t *testing.T) {
	err1 := errors.New("provider 1 failed")
	err2 := errors.New("provider 2 failed")
	chain, _ := NewChain(log.Discard(), NewFailingMock(err1), NewFailingMock(err2))

	_, err := chain.Stream(context.Background(), &Request{})
	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("expected ChainError, got %v", err)
	}
	if len(chainErr.Errors) != 2 {
		t.Errorf("expected 2 errors, got %d", len(chainErr.Errors))
	}
	if !errors.Is(err, err1) || !errors.Is(err, err2) {
		t.Error("ChainError must unwrap to every provider error")
	}
}

func TestChainStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := NewMock()
	first.StreamFunc = func(context.Context, *Request) (Stream, error) {
		cancel()
		return nil, errors.New("interrupted")
	}
	second := NewMock()
	chain, _ := NewChain(log.Discard(), first, second)

	if _, err := chain.Stream(ctx, &Request{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if second.CallCount("Stream") != 0 {
		t.Error("cancelled turn must not fall back")
	}
}

func TestChainHealth(t *testing.T) {
	tests := []struct {
		name      string
		providers []Provider
		wantErr   bool
	}{
		{"one healthy", []Provider{NewFailingMock(errors.New("down")), NewMock()}, false},
		{"all unhealthy", []Provider{NewFailingMock(errors.New("a")), NewFailingMock(errors.New("b"))}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, _ := NewChain(log.Discard(), tt.providers...)
			if err := chain.Health(context.Background()); (err != nil) != tt.wantErr {
				t.Errorf("Health() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestChainClose(t *testing.T) {
	closeErr := errors.New("close failed")
	ok := NewMock()
	chain, _ := NewChain(nil, NewFailingMock(closeErr), ok)

	if err := chain.Close(); !errors.Is(err, closeErr) {
		t.Errorf("expected close error, got %v", err)
	}
	if ok.CallCount("Close") != 1 {
		t.Error("every provider must be closed")
	}
}

func TestChainEmpty(t *testing.T) {
	if _, err := NewChain(nil); !errors.Is(err, ErrNoProviders) {
		t.Errorf("expected ErrNoProviders, got %v", err)
	}
}
