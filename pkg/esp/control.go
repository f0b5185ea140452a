package esp

import (
	"errors"
	"log/slog"
	"math"
	"sync"

	"github.com/teslashibe/go-distillo/pkg/node"
)

// Writer sends one complete frame to the board.
type Writer interface {
	Write(p []byte) error
}

// StableSource reports the current stable scale weight, if any. Reset is
// called when the scale is tared so a weight from before the tare is never
// reported as stable.
type StableSource interface {
	Stable() (float64, bool)
	Reset()
}

// Control encodes commands for the board and decodes its telemetry.
// Raw bytes from the control socket are fed to Receive; decoded frames are
// published to subscribers such as the WeightWatcher.
type Control struct {
	node.Broadcaster[Telemetry]

	logger *slog.Logger
	stable StableSource

	writeMu sync.Mutex
	out     Writer

	readMu  sync.Mutex
	decoder FrameDecoder

	stateMu    sync.RWMutex
	target     float64
	hasTarget  bool
	lastWeight float64
	hasWeight  bool
}

// NewControl creates a control node. stable supplies the offset sent with
// ingredient steps and may be nil.
func NewControl(name string, stable StableSource, logger *slog.Logger) *Control {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Control{
		logger: logger.With("component", "esp.control"),
		stable: stable,
	}
	c.Init(name, logger)
	return c
}

// Attach sets the writer used for commands.
func (c *Control) Attach(w Writer) {
	c.writeMu.Lock()
	c.out = w
	c.writeMu.Unlock()
}

// Receive consumes raw telemetry bytes and publishes each complete frame.
func (c *Control) Receive(p []byte, _ string) error {
	c.readMu.Lock()
	frames, err := c.decoder.Feed(p)
	c.readMu.Unlock()

	var unknown *UnknownTelemetryError
	if errors.As(err, &unknown) {
		c.logger.Warn("skipped telemetry", "error", err)
	}

	for _, f := range frames {
		if f.ID == NotifyWeight {
			c.stateMu.Lock()
			c.lastWeight, c.hasWeight = f.Value, true
			c.stateMu.Unlock()
		}
		c.Publish(f)
	}
	return nil
}

// StartRecipe announces a new recipe by name.
func (c *Control) StartRecipe(name string) error {
	c.clearTarget()
	return c.send(OpStartRecipe, EncodeStartRecipe(name))
}

// DoIngredientStep asks the board to track a pour of deltaGrams.
// The offset is the current stable weight, or Sentinel when the scale has
// not settled so the board falls back to its own zeroing.
func (c *Control) DoIngredientStep(deltaGrams float64, text string) error {
	offset := Sentinel
	if c.stable != nil {
		if w, ok := c.stable.Stable(); ok {
			offset = w
		}
	}

	c.stateMu.Lock()
	c.target, c.hasTarget = deltaGrams, true
	c.stateMu.Unlock()

	return c.send(OpDoStep, EncodeStep(offset, deltaGrams, text))
}

// DoInstructionStep shows a step that has no weight target.
func (c *Control) DoInstructionStep(text string) error {
	c.clearTarget()
	return c.send(OpDoStep, EncodeStep(Sentinel, Sentinel, text))
}

// FinishRecipe tells the board the recipe completed.
func (c *Control) FinishRecipe() error {
	c.clearTarget()
	return c.send(OpFinish, EncodeCommand(OpFinish))
}

// AbortRecipe tells the board the recipe was cancelled.
func (c *Control) AbortRecipe() error {
	c.clearTarget()
	return c.send(OpAbort, EncodeCommand(OpAbort))
}

// ZeroScale tares the scale and forgets the stable weight.
func (c *Control) ZeroScale() error {
	if c.stable != nil {
		c.stable.Reset()
	}
	return c.send(OpZeroScale, EncodeCommand(OpZeroScale))
}

// Target returns the pour target of the active ingredient step.
func (c *Control) Target() (float64, bool) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.target, c.hasTarget
}

// LastWeight returns the most recent weight reading.
func (c *Control) LastWeight() (float64, bool) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if !c.hasWeight || math.IsNaN(c.lastWeight) {
		return 0, false
	}
	return c.lastWeight, true
}

func (c *Control) clearTarget() {
	c.stateMu.Lock()
	c.target, c.hasTarget = 0, false
	c.stateMu.Unlock()
}

func (c *Control) send(op Opcode, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.out == nil {
		return &CommandError{Op: op, Err: ErrNotConnected}
	}
	c.logger.Debug("sending command", "op", op, "bytes", len(frame))
	if err := c.out.Write(frame); err != nil {
		return &CommandError{Op: op, Err: err}
	}
	return nil
}

var _ node.Receiver[[]byte] = (*Control)(nil)
