package pcm

import (
	"log/slog"
	"sync"

	"github.com/teslashibe/go-distillo/pkg/node"
)

// Resampler converts PCM chunks between sample rates.
type Resampler struct {
	node.Broadcaster[[]byte]

	from, to int

	mu    sync.Mutex
	carry []byte
}

// NewResampler creates a resampling node from one rate to another.
func NewResampler(name string, fromRate, toRate int, logger *slog.Logger) *Resampler {
	r := &Resampler{from: fromRate, to: toRate}
	r.Init(name, logger)
	return r
}

// Receive resamples the chunk and publishes it.
func (r *Resampler) Receive(p []byte, _ string) error {
	data := alignSamples(&r.mu, &r.carry, p)
	if len(data) == 0 {
		return nil
	}
	if r.from == r.to {
		r.Publish(data)
		return nil
	}

	out := Resample(BytesToSamples(data), r.from, r.to)
	if len(out) > 0 {
		r.Publish(SamplesToBytes(out))
	}
	return nil
}

var _ node.Receiver[[]byte] = (*Resampler)(nil)
