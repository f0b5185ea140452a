package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/teslashibe/go-distillo/internal/httpc"
)

const providerOpenAI = "openai"

// OpenAI is a provider backed by the official OpenAI SDK. The SDK handles
// retries and SSE framing.
type OpenAI struct {
	client *openai.Client
	config *Config
	logger *slog.Logger
}

// NewOpenAI creates an SDK-backed provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(httpc.NewClient(0)),
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithRequestTimeout(cfg.StreamTimeout),
	)

	return &OpenAI{
		client: &client,
		config: cfg,
		logger: cfg.Logger.With("component", "inference.openai"),
	}, nil
}

// Stream opens a streamed turn. The SDK retries while connecting.
func (o *OpenAI) Stream(ctx context.Context, req *Request) (Stream, error) {
	params, err := o.params(req)
	if err != nil {
		return nil, wrap(providerOpenAI, err)
	}
	o.logger.Debug("opening turn", "model", params.Model, "tools", len(params.Tools))
	return &openAIStream{
		stream: o.client.Chat.Completions.NewStreaming(ctx, params),
		conv:   o.convError,
	}, nil
}

// Health checks API connectivity and the key.
func (o *OpenAI) Health(ctx context.Context) error {
	if o.config.HealthTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.HealthTimeout)
		defer cancel()
	}
	if _, err := o.client.Models.List(ctx); err != nil {
		return o.convError(err)
	}
	return nil
}

// Close releases resources.
func (o *OpenAI) Close() error {
	httpc.CloseIdle()
	return nil
}

func (o *OpenAI) params(req *Request) (openai.ChatCompletionNewParams, error) {
	model := req.Model
	if model == "" {
		model = o.config.Model
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		mp, err := convMessage(m)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		msgs = append(msgs, mp)
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: msgs,
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = o.config.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(maxTokens))
	}

	temp := req.Temperature
	if temp == 0 {
		temp = o.config.Temperature
	}
	if temp > 0 {
		params.Temperature = param.NewOpt(temp)
	}

	for _, t := range req.Tools {
		fp, err := convParameters(t.Parameters)
		if err != nil {
			return openai.ChatCompletionNewParams{}, fmt.Errorf("tool %s: %w", t.Name, err)
		}
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				Parameters:  fp,
			},
		})
	}
	if req.ToolChoice != "" && len(params.Tools) > 0 {
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: param.NewOpt(req.ToolChoice),
		}
	}

	return params, nil
}

func convMessage(m Message) (openai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case RoleSystem:
		return openai.SystemMessage(m.Content), nil
	case RoleUser:
		return openai.UserMessage(m.Content), nil
	case RoleTool:
		return openai.ToolMessage(m.Content, m.ToolCallID), nil
	case RoleAssistant:
		am := &openai.ChatCompletionAssistantMessageParam{}
		if m.Content != "" {
			am.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
				OfString: param.NewOpt(m.Content),
			}
		}
		for _, tc := range m.ToolCalls {
			am.ToolCalls = append(am.ToolCalls, openai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: am}, nil
	default:
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unexpected message role: %s", m.Role)
	}
}

// convParameters round-trips a JSON schema map through encoding/json so
// typed schema values end up as plain maps.
func convParameters(p map[string]any) (openai.FunctionParameters, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var fp openai.FunctionParameters
	if err := json.Unmarshal(b, &fp); err != nil {
		return nil, err
	}
	return fp, nil
}

func (o *OpenAI) convError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Code:       apiErr.Code,
			Provider:   providerOpenAI,
		}
	}
	return wrap(providerOpenAI, err)
}

// openAIStream adapts an SDK stream to Stream.
type openAIStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	conv   func(error) error
	calls  toolCallBuilder
	done   bool
}

// Recv returns the next stream chunk.
func (s *openAIStream) Recv() (*Chunk, error) {
	if s.done {
		return nil, ErrStreamClosed
	}
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		for _, tc := range choice.Delta.ToolCalls {
			s.calls.add(int(tc.Index), tc.ID, tc.Function.Name, tc.Function.Arguments)
		}
		if choice.FinishReason != "" {
			return s.finish(string(choice.FinishReason), choice.Delta.Content), nil
		}
		if choice.Delta.Content == "" {
			continue
		}
		return &Chunk{Delta: choice.Delta.Content}, nil
	}
	if err := s.stream.Err(); err != nil {
		return nil, s.conv(err)
	}
	return s.finish("", ""), nil
}

func (s *openAIStream) finish(reason, delta string) *Chunk {
	s.done = true
	return &Chunk{
		Delta:        delta,
		ToolCalls:    s.calls.build(),
		FinishReason: reason,
		Done:         true,
	}
}

// Close stops the stream.
func (s *openAIStream) Close() error {
	return s.stream.Close()
}

var _ Provider = (*OpenAI)(nil)
