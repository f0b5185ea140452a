package pcm

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-distillo/pkg/node"
)

// Gain scales PCM chunks by a constant factor.
type Gain struct {
	node.Broadcaster[[]byte]

	factor atomic.Uint64 // float64 bits
	level  atomic.Uint64 // float64 bits, RMS of the last output chunk

	mu    sync.Mutex
	carry []byte
}

// NewGain creates a gain node.
func NewGain(name string, factor float64, logger *slog.Logger) *Gain {
	g := &Gain{}
	g.Init(name, logger)
	g.SetFactor(factor)
	return g
}

// SetFactor changes the gain applied to subsequent chunks.
func (g *Gain) SetFactor(factor float64) {
	g.factor.Store(math.Float64bits(factor))
}

// Factor returns the current gain.
func (g *Gain) Factor() float64 {
	return math.Float64frombits(g.factor.Load())
}

// Level returns the RMS level (0..1) of the last published chunk.
func (g *Gain) Level() float64 {
	return math.Float64frombits(g.level.Load())
}

// Receive scales the chunk and publishes it. A byte left over from an odd
// length chunk is prepended to the next one.
func (g *Gain) Receive(p []byte, _ string) error {
	data := alignSamples(&g.mu, &g.carry, p)
	if len(data) == 0 {
		return nil
	}

	samples := Scale(BytesToSamples(data), g.Factor())
	g.level.Store(math.Float64bits(CalculateRMS(samples)))
	g.Publish(SamplesToBytes(samples))
	return nil
}

// alignSamples joins a pending byte with p and stores any new odd byte.
func alignSamples(mu *sync.Mutex, carry *[]byte, p []byte) []byte {
	mu.Lock()
	defer mu.Unlock()

	data := p
	if len(*carry) > 0 {
		data = append(*carry, p...)
		*carry = nil
	}
	if len(data)%2 == 1 {
		*carry = []byte{data[len(data)-1]}
		data = data[:len(data)-1]
	}
	return data
}

var _ node.Receiver[[]byte] = (*Gain)(nil)
