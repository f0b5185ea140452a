// Package stream adapts raw TCP connections into graph nodes.
//
// A Conn publishes what it reads from its socket and writes what it
// receives from upstream. The speech services and the ESP board all speak
// this way: STT takes PCM and returns text, TTS takes text and returns PCM,
// and the ESP carries audio on one port and control frames on another.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-distillo/pkg/node"
)

// Conn is a node backed by one TCP connection.
type Conn[In, Out any] struct {
	node.Broadcaster[Out]

	conn   net.Conn
	decode DecodeFunc[Out]
	encode EncodeFunc[In]
	config *Config
	logger *slog.Logger

	writeMu sync.Mutex
	muted   atomic.Bool

	emitMu      sync.Mutex
	emissionEnd time.Time

	done     chan struct{}
	lostOnce sync.Once
	err      error
}

// Dial connects to addr and wraps the connection.
func Dial[In, Out any](ctx context.Context, addr string, decode DecodeFunc[Out], encode EncodeFunc[In], opts ...Option) (*Conn[In, Out], error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	d := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("stream: dial %s (%s): %w", cfg.Name, addr, err)
	}
	return New(conn, decode, encode, opts...), nil
}

// New wraps an established connection.
func New[In, Out any](conn net.Conn, decode DecodeFunc[Out], encode EncodeFunc[In], opts ...Option) *Conn[In, Out] {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Conn[In, Out]{
		conn:   conn,
		decode: decode,
		encode: encode,
		config: cfg,
		logger: cfg.Logger.With("component", "stream.conn", "name", cfg.Name),
		done:   make(chan struct{}),
	}
	c.Init(cfg.Name, cfg.Logger)
	return c
}

// Run reads from the connection until it fails or ctx is cancelled.
// It returns nil on cancellation and ErrConnectionLost otherwise.
func (c *Conn[In, Out]) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		c.conn.Close()
	})
	defer stop()

	buf := make([]byte, c.config.ReadBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.handleChunk(buf[:n])
		}
		if err == nil {
			continue
		}

		if ctx.Err() != nil {
			c.lost(ctx.Err())
			return nil
		}
		if prev := c.Err(); prev != nil {
			return prev
		}
		if errors.Is(err, io.EOF) {
			c.logger.Warn("peer closed connection")
		} else {
			c.logger.Error("read failed", "error", err)
		}
		c.lost(err)
		return c.err
	}
}

func (c *Conn[In, Out]) handleChunk(p []byte) {
	v, ok := c.decode(p)
	if !ok || c.muted.Load() {
		return
	}
	if c.config.SampleRate > 0 {
		c.advanceEmission(len(p))
	}
	c.Publish(v)
}

// Receive encodes v and writes it to the connection.
func (c *Conn[In, Out]) Receive(v In, _ string) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	data, err := c.encode(v)
	if err != nil {
		return fmt.Errorf("stream: encode for %s: %w", c.config.Name, err)
	}
	return c.Write(data)
}

// Write sends raw bytes as one write.
func (c *Conn[In, Out]) Write(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	c.writeMu.Lock()
	_, err := c.conn.Write(data)
	c.writeMu.Unlock()

	if err != nil {
		c.lost(err)
		return fmt.Errorf("stream: write to %s: %w", c.config.Name, err)
	}
	return nil
}

// lost fires the connection-lost signal. Only the first call has an effect.
func (c *Conn[In, Out]) lost(cause error) {
	c.lostOnce.Do(func() {
		c.err = fmt.Errorf("%w: %s: %v", ErrConnectionLost, c.config.Name, cause)
		c.conn.Close()
		close(c.done)
	})
}

// Done is closed when the connection is lost.
func (c *Conn[In, Out]) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection was lost, or nil while it is up.
func (c *Conn[In, Out]) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close shuts the connection down and fires the connection-lost signal.
func (c *Conn[In, Out]) Close() error {
	c.lost(ErrClosed)
	return nil
}

// SetMuted suppresses publishing while true.
func (c *Conn[In, Out]) SetMuted(muted bool) {
	if c.muted.Swap(muted) != muted {
		c.logger.Debug("mute changed", "muted", muted)
	}
}

// Muted reports whether publishing is suppressed.
func (c *Conn[In, Out]) Muted() bool {
	return c.muted.Load()
}

// advanceEmission extends the playback estimate by n bytes of 16-bit PCM.
func (c *Conn[In, Out]) advanceEmission(n int) {
	d := time.Duration(float64(n) / float64(2*c.config.SampleRate) * float64(time.Second))

	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	now := c.config.Now()
	if c.emissionEnd.Before(now) {
		c.emissionEnd = now
	}
	c.emissionEnd = c.emissionEnd.Add(d)
}

// IsEmitting reports whether published audio is still playing, allowing
// slack after the estimated end.
func (c *Conn[In, Out]) IsEmitting(slack time.Duration) bool {
	c.emitMu.Lock()
	end := c.emissionEnd
	c.emitMu.Unlock()
	return c.config.Now().Before(end.Add(slack))
}

var _ node.Receiver[string] = (*Conn[string, []byte])(nil)
