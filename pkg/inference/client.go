package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-distillo/internal/httpc"
)

const providerClient = "compatible"

// Client streams turns from an OpenAI-compatible server over plain HTTP.
type Client struct {
	baseURL string
	config  *Config
	health  *http.Client
	stream  *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for the configured server. An API key is
// optional.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		config:  cfg,
		health:  httpc.NewClient(cfg.HealthTimeout),
		stream:  httpc.NewClient(cfg.StreamTimeout),
		logger:  cfg.Logger.With("component", "inference.client"),
	}, nil
}

// Stream posts req to /chat/completions and reads the answer as server-sent
// events. Opening the turn is retried; a turn that has started is not.
func (c *Client) Stream(ctx context.Context, req *Request) (Stream, error) {
	body, err := json.Marshal(c.wireRequest(req))
	if err != nil {
		return nil, wrap(providerClient, fmt.Errorf("marshal request: %w", err))
	}

	resp, err := c.open(ctx, body)
	if err != nil {
		return nil, err
	}
	return newSSEStream(resp.Body), nil
}

func (c *Client) open(ctx context.Context, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := c.newRequest(ctx, http.MethodPost, "/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.stream.Do(req)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = wrap(providerClient, err)
		case resp.StatusCode == http.StatusOK:
			return resp, nil
		default:
			lastErr = c.readError(resp)
			resp.Body.Close()
			if !retryableStatus(resp.StatusCode) {
				return nil, lastErr
			}
		}
		c.logger.Warn("opening turn failed",
			"attempt", attempt+1,
			"error", lastErr,
		)
	}
	return nil, lastErr
}

// Health lists the server's models.
func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return err
	}
	resp, err := c.health.Do(req)
	if err != nil {
		return wrap(providerClient, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.readError(resp)
	}
	return nil
}

// Close drops idle connections.
func (c *Client) Close() error {
	httpc.CloseIdle()
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, wrap(providerClient, fmt.Errorf("create request: %w", err))
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	return req, nil
}

// readError decodes an OpenAI style error body, falling back to the raw
// text.
func (c *Client) readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var parsed struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	apiErr := &APIError{
		Provider:   providerClient,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		apiErr.Message = parsed.Error.Message
		apiErr.Code = parsed.Error.Code
	}
	return apiErr
}

func (c *Client) wireRequest(req *Request) wireRequest {
	w := wireRequest{
		Model:       req.Model,
		Stream:      true,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if w.Model == "" {
		w.Model = c.config.Model
	}
	if w.MaxTokens == 0 {
		w.MaxTokens = c.config.MaxTokens
	}
	if w.Temperature == 0 {
		w.Temperature = c.config.Temperature
	}

	w.Messages = make([]wireMessage, len(req.Messages))
	for i, m := range req.Messages {
		wm := wireMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: wireFunctionCall{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		w.Messages[i] = wm
	}

	for _, t := range req.Tools {
		w.Tools = append(w.Tools, wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if len(w.Tools) > 0 {
		w.ToolChoice = req.ToolChoice
	}
	return w
}

// Wire format of /chat/completions.
type (
	wireRequest struct {
		Model       string        `json:"model"`
		Messages    []wireMessage `json:"messages"`
		Stream      bool          `json:"stream"`
		MaxTokens   int           `json:"max_tokens,omitempty"`
		Temperature float64       `json:"temperature,omitempty"`
		Tools       []wireTool    `json:"tools,omitempty"`
		ToolChoice  string        `json:"tool_choice,omitempty"`
	}

	wireMessage struct {
		Role       string         `json:"role"`
		Content    string         `json:"content"`
		ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
		ToolCallID string         `json:"tool_call_id,omitempty"`
	}

	wireToolCall struct {
		Index    int              `json:"index,omitempty"`
		ID       string           `json:"id,omitempty"`
		Type     string           `json:"type,omitempty"`
		Function wireFunctionCall `json:"function"`
	}

	wireFunctionCall struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments"`
	}

	wireTool struct {
		Type     string       `json:"type"`
		Function wireFunction `json:"function"`
	}

	wireFunction struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	}

	wireChunk struct {
		Choices []struct {
			Delta struct {
				Content   string         `json:"content"`
				ToolCalls []wireToolCall `json:"tool_calls"`
			} `json:"delta"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
)

var _ Provider = (*Client)(nil)
