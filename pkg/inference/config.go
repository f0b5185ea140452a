package inference

import (
	"log/slog"
	"time"
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "gpt-4.1-mini"

// Config holds provider configuration.
type Config struct {
	BaseURL string
	APIKey  string // optional for local servers
	Model   string

	// Defaults for requests that leave them unset.
	MaxTokens   int
	Temperature float64

	// HealthTimeout bounds Health; StreamTimeout bounds a whole turn.
	HealthTimeout time.Duration
	StreamTimeout time.Duration

	// MaxRetries and RetryDelay apply while opening a turn, to transport
	// failures and retryable statuses. The delay grows linearly.
	MaxRetries int
	RetryDelay time.Duration

	Logger *slog.Logger
}

// Option is a functional option for configuring providers.
type Option func(*Config)

// WithBaseURL sets the API base URL, e.g. "http://localhost:11434/v1".
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithStreamTimeout bounds a whole streamed turn.
func WithStreamTimeout(d time.Duration) Option {
	return func(c *Config) { c.StreamTimeout = d }
}

// WithRetry configures retries while opening a turn.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the configuration for the OpenAI API.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       "https://api.openai.com/v1",
		Model:         DefaultModel,
		MaxTokens:     1024,
		Temperature:   0.7,
		HealthTimeout: 10 * time.Second,
		StreamTimeout: 2 * time.Minute,
		MaxRetries:    3,
		RetryDelay:    100 * time.Millisecond,
		Logger:        slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate checks that an endpoint and a model are set.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoBaseURL
	}
	if c.Model == "" {
		return ErrNoModel
	}
	return nil
}
