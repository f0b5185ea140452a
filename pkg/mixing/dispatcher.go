package mixing

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-distillo/pkg/agent"
	"github.com/teslashibe/go-distillo/pkg/esp"
	"github.com/teslashibe/go-distillo/pkg/node"
	"github.com/teslashibe/go-distillo/pkg/recipe"
)

// Dispatcher owns the workflow state and the agent sessions. It receives
// recognized sentences as a node and publishes the text to speak.
//
// Sentences and scale events are queued and consumed by two loops, each
// finishing one item before taking the next. A sentence turn runs in the
// pool so the sentence loop can still hear interrupt words and cancel it.
// All state changes happen under mu.
type Dispatcher struct {
	node.Broadcaster[string]

	cfg      *Config
	logger   *slog.Logger
	hw       Hardware
	speaker  Speaker
	sessions SessionFactory
	events   *node.Broadcaster[Event]

	sentences chan string
	scale     chan esp.ScaleEvent
	pool      errgroup.Group
	running   atomic.Bool

	mu     sync.Mutex
	state  State
	search agent.Session
	mixing agent.Session
	mode   atomic.Int32

	speechMu  sync.Mutex
	interrupt map[string]bool
	spent     map[string]bool

	genMu    sync.Mutex
	inflight map[uint64]context.CancelFunc
	nextGen  uint64
}

// New creates a dispatcher in RecipeSearch mode. speaker may be nil, in which
// case the robot is never considered to be talking.
func New(hw Hardware, speaker Speaker, sessions SessionFactory, opts ...Option) (*Dispatcher, error) {
	if hw == nil {
		return nil, ErrNoHardware
	}
	if sessions == nil {
		return nil, ErrNoSessions
	}

	cfg := DefaultConfig()
	cfg.Apply(opts...)

	d := &Dispatcher{
		cfg:       cfg,
		logger:    cfg.Logger.With("component", "mixing.dispatcher"),
		hw:        hw,
		speaker:   speaker,
		sessions:  sessions,
		events:    node.NewBroadcaster[Event]("workflow-events", cfg.Logger),
		sentences: make(chan string, cfg.QueueSize),
		scale:     make(chan esp.ScaleEvent, cfg.QueueSize),
		interrupt: make(map[string]bool, len(cfg.InterruptWords)),
		spent:     make(map[string]bool),
		inflight:  make(map[uint64]context.CancelFunc),
	}
	d.Init("dispatcher", cfg.Logger)
	for _, w := range cfg.InterruptWords {
		d.interrupt[w] = true
	}
	d.search = sessions(RecipeSearch)
	d.state = State{Mode: RecipeSearch}
	return d, nil
}

// Receive queues a recognized sentence.
func (d *Dispatcher) Receive(text string, _ string) error {
	return d.HandleSentence(text)
}

// HandleSentence queues a recognized sentence.
func (d *Dispatcher) HandleSentence(text string) error {
	select {
	case d.sentences <- text:
		return nil
	default:
		d.logger.Warn("sentence dropped, queue full", "text", text)
		return ErrQueueFull
	}
}

// HandleScaleEvent queues a settled scale reading.
func (d *Dispatcher) HandleScaleEvent(ev esp.ScaleEvent) error {
	select {
	case d.scale <- ev:
		return nil
	default:
		d.logger.Warn("scale event dropped, queue full", "kind", ev.Kind)
		return ErrQueueFull
	}
}

// ScaleInput returns the receiver scale events are delivered to.
func (d *Dispatcher) ScaleInput() node.Receiver[esp.ScaleEvent] {
	return node.ReceiverFunc[esp.ScaleEvent](func(ev esp.ScaleEvent, _ string) error {
		return d.HandleScaleEvent(ev)
	})
}

// Events returns the workflow event feed.
func (d *Dispatcher) Events() node.Publisher[Event] {
	return d.events
}

// Run consumes both queues until ctx is done, then cancels in-flight
// generations and waits for them.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	d.logger.Info("dispatcher started", "attempts", d.cfg.Attempts)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.sentenceLoop(ctx)
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-d.scale:
				d.processEvent(ev)
			}
		}
	})
	err := g.Wait()

	d.cancelGenerations()
	d.pool.Wait()
	d.logger.Info("dispatcher stopped")
	return err
}

// State returns a copy of the workflow state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.state
	if s.Recipe != nil {
		r := *s.Recipe
		s.Recipe = &r
	}
	return s
}

// Status returns a snapshot for the status API.
func (d *Dispatcher) Status() Status {
	d.mu.Lock()
	st := Status{
		Mode:  d.state.Mode,
		Step:  d.state.Step,
		Steps: d.state.Steps(),
		MixID: d.state.MixID,
	}
	if d.state.Recipe != nil {
		st.Recipe = d.state.Recipe.Name
	}
	if step, ok := d.state.Current(); ok {
		st.StepText = step.Description
	}
	d.mu.Unlock()

	if d.speaker != nil {
		st.Emitting = d.speaker.IsEmitting(d.cfg.EmissionSlack)
		st.Muted = d.speaker.Muted()
	}
	d.genMu.Lock()
	st.Generating = len(d.inflight)
	d.genMu.Unlock()
	return st
}

// sentenceLoop answers one sentence at a time. While a turn is running,
// sentences with interrupt words barge in and the rest wait for the turn to
// finish, in arrival order.
func (d *Dispatcher) sentenceLoop(ctx context.Context) {
	var (
		turn <-chan struct{}
		held []string
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-turn:
			turn = nil
			for turn == nil && len(held) > 0 {
				text := held[0]
				held = held[1:]
				turn = d.processSentence(ctx, text)
			}
		case text := <-d.sentences:
			if turn == nil {
				turn = d.processSentence(ctx, text)
				continue
			}
			if hits := d.unspentInterrupts(trimSentence(text)); len(hits) > 0 {
				d.bargeIn(hits)
				held = nil
				continue
			}
			if len(held) >= d.cfg.QueueSize {
				d.logger.Warn("sentence dropped, turn in progress", "text", text)
				continue
			}
			held = append(held, text)
		}
	}
}

// processSentence starts a turn for text. The returned channel is closed
// once the turn's generation and tool dispatch are done; it is nil when no
// turn was started.
func (d *Dispatcher) processSentence(ctx context.Context, text string) <-chan struct{} {
	text = trimSentence(text)
	if text == "" {
		return nil
	}

	if d.speaker != nil && d.speaker.IsEmitting(d.cfg.EmissionSlack) {
		if hits := d.unspentInterrupts(text); len(hits) > 0 {
			d.bargeIn(hits)
		} else {
			d.logger.Debug("sentence dropped while talking", "text", text)
		}
		return nil
	}

	d.clearSpent()
	sess := d.activeSession()
	genCtx, untrack := d.track(ctx)
	finished := make(chan struct{})
	d.pool.Go(func() error {
		defer close(finished)
		defer untrack()
		d.converse(genCtx, sess, text)
		return nil
	})
	return finished
}

// converse runs one turn for a sentence and dispatches its tool calls.
func (d *Dispatcher) converse(ctx context.Context, sess agent.Session, text string) {
	resp, err := sess.Generate(ctx, text, d.speakFunc(ctx))
	if err != nil {
		d.generationFailed(ctx, err)
		return
	}
	d.dispatch(ctx, sess, resp)
}

// dispatch executes the first tool call of resp and regenerates while the
// failure is recoverable, at most Attempts times.
func (d *Dispatcher) dispatch(ctx context.Context, sess agent.Session, resp *agent.Response) {
	for attempts := d.cfg.Attempts; attempts > 0; attempts-- {
		if resp == nil || len(resp.ToolCalls) == 0 {
			return
		}

		call := resp.ToolCalls[0]
		for _, extra := range resp.ToolCalls[1:] {
			sess.ReportToolOutput(extra.ID, skippedCall)
		}

		result, err := d.execute(call.ID, call.Name, call.Arguments)

		ev := Event{Type: EventDispatch, Tool: call.Name}
		if err != nil {
			ev.Error = err.Error()
		}
		d.emit(ev)

		var unknown *UnknownToolError
		switch {
		case err == nil:
			sess.ReportToolOutput(call.ID, result)
			return
		case errors.As(err, &unknown):
			// The error goes to whichever session is active now.
			sess = d.activeSession()
			sess.ReportToolOutput(call.ID, err.Error())
		case recoverable(err):
			sess.ReportToolOutput(call.ID, err.Error())
			if sess != d.activeSession() {
				return
			}
		default:
			d.logger.Error("tool call failed",
				"tool", call.Name,
				"error", err,
			)
			return
		}

		d.logger.Info("tool call rejected, regenerating",
			"tool", call.Name,
			"error", err,
			"attempts_left", attempts-1,
		)
		resp, err = sess.Generate(ctx, "", d.speakFunc(ctx))
		if err != nil {
			d.generationFailed(ctx, err)
			return
		}
	}

	if resp != nil && len(resp.ToolCalls) > 0 {
		d.logger.Warn("dispatch attempts exhausted", "pending", len(resp.ToolCalls))
	}
}

// execute runs the handler for name in the current mode.
func (d *Dispatcher) execute(id, name, args string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	h, ok := handlers[d.state.Mode][name]
	if !ok {
		return "", &UnknownToolError{Name: name, Mode: d.state.Mode}
	}
	return h(d, CallRef{ID: id, Name: name}, args)
}

func recoverable(err error) bool {
	var validation *recipe.ValidationError
	var state *StateError
	return errors.As(err, &validation) || errors.As(err, &state)
}

func (d *Dispatcher) generationFailed(ctx context.Context, err error) {
	if ctx.Err() != nil {
		d.logger.Debug("generation cancelled")
		return
	}
	d.logger.Error("generation failed", "error", err)
}

func (d *Dispatcher) activeSession() agent.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activeSessionLocked()
}

func (d *Dispatcher) activeSessionLocked() agent.Session {
	if d.state.Mode == Mixing && d.mixing != nil {
		return d.mixing
	}
	return d.search
}

// track registers a cancellable generation context.
func (d *Dispatcher) track(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	d.genMu.Lock()
	id := d.nextGen
	d.nextGen++
	d.inflight[id] = cancel
	d.genMu.Unlock()

	return ctx, func() {
		d.genMu.Lock()
		delete(d.inflight, id)
		d.genMu.Unlock()
		cancel()
	}
}

func (d *Dispatcher) cancelGenerations() int {
	d.genMu.Lock()
	defer d.genMu.Unlock()
	for _, cancel := range d.inflight {
		cancel()
	}
	return len(d.inflight)
}

var _ node.Receiver[string] = (*Dispatcher)(nil)
