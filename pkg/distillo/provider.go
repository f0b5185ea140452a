package distillo

import (
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-distillo/pkg/inference"
)

// NewProvider builds the inference backend described by cfg. A fallback URL
// chains an OpenAI-compatible server behind the primary.
func NewProvider(cfg AgentConfig, logger *slog.Logger) (inference.Provider, error) {
	opts := []inference.Option{inference.WithLogger(logger)}
	if cfg.Model != "" {
		opts = append(opts, inference.WithModel(cfg.Model))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, inference.WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.Temperature > 0 {
		opts = append(opts, inference.WithTemperature(cfg.Temperature))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, inference.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, inference.WithAPIKey(cfg.APIKey))
	}

	var (
		primary inference.Provider
		err     error
	)
	switch cfg.Provider {
	case "openai":
		primary, err = inference.NewOpenAI(opts...)
	case "compatible":
		primary, err = inference.NewClient(opts...)
	default:
		return nil, fmt.Errorf("distillo: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("distillo: %s provider: %w", cfg.Provider, err)
	}
	if cfg.FallbackURL == "" {
		return primary, nil
	}

	model := cfg.FallbackModel
	if model == "" {
		model = cfg.Model
	}
	fallbackOpts := []inference.Option{
		inference.WithBaseURL(cfg.FallbackURL),
		inference.WithLogger(logger),
	}
	if model != "" {
		fallbackOpts = append(fallbackOpts, inference.WithModel(model))
	}
	fallback, err := inference.NewClient(fallbackOpts...)
	if err != nil {
		primary.Close()
		return nil, fmt.Errorf("distillo: fallback provider: %w", err)
	}
	return inference.NewChain(logger, primary, fallback)
}
