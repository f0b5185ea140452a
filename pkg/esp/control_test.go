package esp

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/teslashibe/go-distillo/internal/log"
	"github.com/teslashibe/go-distillo/pkg/node"
)

// frameRecorder captures written frames.
type frameRecorder struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (r *frameRecorder) Write(p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, append([]byte(nil), p...))
	return nil
}

type fixedStable struct {
	w      float64
	ok     bool
	resets int
}

func (f *fixedStable) Stable() (float64, bool) { return f.w, f.ok }
func (f *fixedStable) Reset()                  { f.resets++ }

func newTestControl(stable StableSource) (*Control, *frameRecorder) {
	c := NewControl("esp", stable, log.Discard())
	rec := &frameRecorder{}
	c.Attach(rec)
	return c, rec
}

func TestControlIngredientStepOffset(t *testing.T) {
	tests := []struct {
		name   string
		stable StableSource
		offset float64
	}{
		{"stable weight", &fixedStable{w: 152.5, ok: true}, 152.5},
		{"not settled", &fixedStable{}, Sentinel},
		{"no watcher", nil, Sentinel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newTestControl(tt.stable)

			if err := c.DoIngredientStep(40, "Add rum"); err != nil {
				t.Fatalf("DoIngredientStep: %v", err)
			}

			want := EncodeStep(tt.offset, 40, "Add rum")
			if len(rec.frames) != 1 || !bytes.Equal(rec.frames[0], want) {
				t.Errorf("frame = % x, want % x", rec.frames, want)
			}
			if target, ok := c.Target(); !ok || target != 40 {
				t.Errorf("Target() = %v, %v; want 40, true", target, ok)
			}
		})
	}
}

func TestControlInstructionStepSentinels(t *testing.T) {
	c, rec := newTestControl(&fixedStable{w: 10, ok: true})
	c.DoIngredientStep(20, "Add lime")

	if err := c.DoInstructionStep("Shake"); err != nil {
		t.Fatalf("DoInstructionStep: %v", err)
	}

	want := EncodeStep(Sentinel, Sentinel, "Shake")
	if !bytes.Equal(rec.frames[1], want) {
		t.Errorf("frame = % x, want % x", rec.frames[1], want)
	}
	if _, ok := c.Target(); ok {
		t.Error("Expected no target after instruction step")
	}
}

func TestControlLifecycleCommands(t *testing.T) {
	stable := &fixedStable{w: 12, ok: true}
	c, rec := newTestControl(stable)

	c.StartRecipe("Mojito")
	c.ZeroScale()
	c.FinishRecipe()
	c.AbortRecipe()

	want := [][]byte{
		EncodeStartRecipe("Mojito"),
		{0x04},
		{0x02},
		{0x03},
	}
	if diff := cmp.Diff(want, rec.frames); diff != "" {
		t.Errorf("frames (-want +got):\n%s", diff)
	}
	if stable.resets != 1 {
		t.Errorf("Expected taring to reset the stable weight once, got %d", stable.resets)
	}
}

func TestControlNotConnected(t *testing.T) {
	c := NewControl("esp", nil, log.Discard())

	err := c.ZeroScale()
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) || cmdErr.Op != OpZeroScale {
		t.Errorf("Expected CommandError for zeroScale, got %v", err)
	}
}

func TestControlWriteFailure(t *testing.T) {
	c, rec := newTestControl(nil)
	boom := errors.New("broken pipe")
	rec.err = boom

	if err := c.FinishRecipe(); !errors.Is(err, boom) {
		t.Errorf("Expected wrapped write error, got %v", err)
	}
}

func TestControlPublishesTelemetry(t *testing.T) {
	c, _ := newTestControl(nil)

	var got []Telemetry
	c.Subscribe(node.ReceiverFunc[Telemetry](func(v Telemetry, _ string) error {
		got = append(got, v)
		return nil
	}))

	frame := EncodeTelemetry(Telemetry{ID: NotifyWeight, Value: 33})
	c.Receive(frame[:5], "ctrl")
	if len(got) != 0 {
		t.Fatal("published a partial frame")
	}
	c.Receive(frame[5:], "ctrl")

	if diff := cmp.Diff([]Telemetry{{NotifyWeight, 33}}, got); diff != "" {
		t.Errorf("telemetry (-want +got):\n%s", diff)
	}
	if w, ok := c.LastWeight(); !ok || w != 33 {
		t.Errorf("LastWeight() = %v, %v; want 33, true", w, ok)
	}
}

func TestClassifier(t *testing.T) {
	c, _ := newTestControl(nil)
	cl := NewClassifier("classifier", c, 5, log.Discard())

	var got []ScaleEvent
	cl.Subscribe(node.ReceiverFunc[ScaleEvent](func(v ScaleEvent, _ string) error {
		got = append(got, v)
		return nil
	}))

	cl.Receive(0.2, "watcher") // no active target
	c.DoIngredientStep(40, "Add rum")
	cl.Receive(0, "watcher")  // tared, nothing poured
	cl.Receive(41, "watcher") // within margin
	cl.Receive(60, "watcher") // over target
	c.DoInstructionStep("Stir")
	cl.Receive(60, "watcher") // target cleared
	c.DoIngredientStep(0, "Add a dash of bitters")
	cl.Receive(0, "watcher") // ingredient without an amount

	want := []ScaleEvent{
		{Kind: TargetNone, Weight: 0.2},
		{Kind: TargetPending, Weight: 0, Target: 40},
		{Kind: TargetStable, Weight: 41, Target: 40},
		{Kind: TargetSurpassed, Weight: 60, Target: 40},
		{Kind: TargetNone, Weight: 60},
		{Kind: TargetNone, Weight: 0, Target: 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}
