package esp

import (
	"log/slog"
	"math"
	"sync"

	"github.com/teslashibe/go-distillo/pkg/node"
)

// Default stability parameters.
const (
	DefaultWindow    = 5
	DefaultTolerance = 1.0
)

// WeightWatcher detects when the scale reading has settled.
//
// The reading is stable when the window is full and every sample lies
// strictly within tolerance of the window mean. The mean is published once
// on each transition into the stable state.
type WeightWatcher struct {
	node.Broadcaster[float64]

	window    int
	tolerance float64
	logger    *slog.Logger

	mu      sync.Mutex
	samples []float64 // oldest first
	stable  bool
	mean    float64
}

// NewWeightWatcher creates a watcher with the given window and tolerance.
// Non-positive values fall back to the defaults.
func NewWeightWatcher(name string, window int, tolerance float64, logger *slog.Logger) *WeightWatcher {
	if window <= 0 {
		window = DefaultWindow
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &WeightWatcher{
		window:    window,
		tolerance: tolerance,
		logger:    logger.With("component", "esp.watcher"),
		samples:   make([]float64, 0, window),
	}
	w.Init(name, logger)
	return w
}

// Receive adds a weight reading. Frames other than NotifyWeight are ignored.
func (w *WeightWatcher) Receive(t Telemetry, _ string) error {
	if t.ID != NotifyWeight || math.IsNaN(t.Value) || math.IsInf(t.Value, 0) {
		return nil
	}

	w.mu.Lock()
	if len(w.samples) == w.window {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:w.window-1]
	}
	w.samples = append(w.samples, t.Value)

	mean, stable := w.evaluate()
	became := stable && !w.stable
	w.stable, w.mean = stable, mean
	w.mu.Unlock()

	if became {
		w.logger.Debug("weight stable", "grams", mean)
		w.Publish(mean)
	}
	return nil
}

// evaluate must be called with mu held.
func (w *WeightWatcher) evaluate() (float64, bool) {
	if len(w.samples) != w.window {
		return 0, false
	}

	var sum float64
	for _, s := range w.samples {
		sum += s
	}
	mean := sum / float64(len(w.samples))

	for _, s := range w.samples {
		if math.Abs(s-mean) >= w.tolerance {
			return mean, false
		}
	}
	return mean, true
}

// Stable returns the current stable weight.
func (w *WeightWatcher) Stable() (float64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stable {
		return 0, false
	}
	return w.mean, true
}

// Reset clears the sample window.
func (w *WeightWatcher) Reset() {
	w.mu.Lock()
	w.samples = w.samples[:0]
	w.stable = false
	w.mu.Unlock()
}

var (
	_ node.Receiver[Telemetry] = (*WeightWatcher)(nil)
	_ StableSource             = (*WeightWatcher)(nil)
)
