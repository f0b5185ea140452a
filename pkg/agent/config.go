package agent

import (
	"log/slog"
)

// Config holds session configuration.
type Config struct {
	// Model overrides the provider's default model.
	Model string

	// MaxTokens limits each turn. Zero uses the provider default.
	MaxTokens int

	// Temperature controls randomness. Zero uses the provider default.
	Temperature float64

	Logger *slog.Logger
}

// Option is a functional option for configuring sessions.
type Option func(*Config)

// WithModel sets the model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithMaxTokens limits the length of each turn.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns defaults that defer to the provider.
func DefaultConfig() *Config {
	return &Config{
		Logger: slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
