package stream

import (
	"log/slog"
	"time"
)

// Config holds adapter configuration.
type Config struct {
	// Name identifies the adapter as a publisher.
	Name string

	// ReadBufferSize is the maximum chunk size read from the socket.
	ReadBufferSize int

	// DialTimeout bounds connection setup in Dial.
	DialTimeout time.Duration

	// SampleRate enables emission tracking when > 0.
	// Published chunks are treated as 16-bit mono PCM at this rate.
	SampleRate int

	// Now is the clock used for emission tracking.
	Now func() time.Time

	// Logger for connection events.
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:           "stream",
		ReadBufferSize: 4096,
		DialTimeout:    5 * time.Second,
		Now:            time.Now,
		Logger:         slog.Default(),
	}
}

// Option is a functional option for configuring adapters.
type Option func(*Config)

// WithName sets the publisher name.
func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// WithReadBufferSize sets the read chunk size.
func WithReadBufferSize(n int) Option {
	return func(c *Config) { c.ReadBufferSize = n }
}

// WithDialTimeout sets the connect timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) { c.DialTimeout = d }
}

// WithEmission enables playback tracking for PCM output at sampleRate.
func WithEmission(sampleRate int) Option {
	return func(c *Config) { c.SampleRate = sampleRate }
}

// WithClock replaces the clock. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.Now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
