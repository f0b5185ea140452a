package inference

import (
	"context"
	"errors"
	"log/slog"
)

// Chain opens each turn on the first provider that accepts it, so a local
// server can stand in when the primary endpoint is down. Once a turn has
// started it stays on its provider.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

// NewChain creates a chain trying providers in order.
func NewChain(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		providers: providers,
		logger:    logger.With("component", "inference.chain"),
	}, nil
}

// Stream opens the turn on the first provider that succeeds.
func (c *Chain) Stream(ctx context.Context, req *Request) (Stream, error) {
	var errs []error
	for i, p := range c.providers {
		stream, err := p.Stream(ctx, req)
		if err == nil {
			if i > 0 {
				c.logger.Info("turn opened on fallback provider", "provider", i)
			}
			return stream, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		errs = append(errs, err)
		c.logger.Warn("provider failed to open turn",
			"provider", i,
			"error", err,
		)
	}
	return nil, &ChainError{Errors: errs}
}

// Health succeeds when at least one provider is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var errs []error
	for i, p := range c.providers {
		if err := p.Health(ctx); err != nil {
			c.logger.Warn("provider unhealthy", "provider", i, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) == len(c.providers) {
		return &ChainError{Errors: errs}
	}
	return nil
}

// Close closes every provider.
func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.providers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

var _ Provider = (*Chain)(nil)
