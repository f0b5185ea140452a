package mixing

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-distillo/pkg/history"
)

// Config holds dispatcher configuration.
type Config struct {
	// Attempts bounds the regenerations of one tool dispatch.
	Attempts int

	// EmissionSlack is added to the speaker's playback estimate when
	// deciding whether the robot is talking.
	EmissionSlack time.Duration

	// InterruptWords cancel the current answer when heard while talking.
	// Matching is by whole word and case-sensitive.
	InterruptWords []string

	// QueueSize is the capacity of the sentence and scale event queues.
	QueueSize int

	// History records finished and aborted mixes. Nil disables it.
	History history.Store

	Now    func() time.Time
	Logger *slog.Logger
}

// DefaultInterruptWords are the barge-in words.
var DefaultInterruptWords = []string{"stop", "Stop", "Abort", "abort", "Aufhören", "aufhören"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Attempts:       3,
		EmissionSlack:  500 * time.Millisecond,
		InterruptWords: DefaultInterruptWords,
		QueueSize:      32,
		Now:            time.Now,
		Logger:         slog.Default(),
	}
}

// Option is a functional option for configuring the dispatcher.
type Option func(*Config)

// WithAttempts sets the tool dispatch budget.
func WithAttempts(n int) Option {
	return func(c *Config) { c.Attempts = n }
}

// WithEmissionSlack sets the talking detection slack.
func WithEmissionSlack(d time.Duration) Option {
	return func(c *Config) { c.EmissionSlack = d }
}

// WithInterruptWords sets the barge-in words.
func WithInterruptWords(words ...string) Option {
	return func(c *Config) { c.InterruptWords = words }
}

// WithQueueSize sets the input queue capacity.
func WithQueueSize(n int) Option {
	return func(c *Config) { c.QueueSize = n }
}

// WithHistory records mixes in store.
func WithHistory(store history.Store) Option {
	return func(c *Config) { c.History = store }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.Now = now }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.Attempts < 0 {
		c.Attempts = 0
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
