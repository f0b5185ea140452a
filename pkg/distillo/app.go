package distillo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-distillo/internal/config"
	"github.com/teslashibe/go-distillo/pkg/agent"
	"github.com/teslashibe/go-distillo/pkg/esp"
	"github.com/teslashibe/go-distillo/pkg/history"
	"github.com/teslashibe/go-distillo/pkg/inference"
	"github.com/teslashibe/go-distillo/pkg/mixing"
	"github.com/teslashibe/go-distillo/pkg/node"
	"github.com/teslashibe/go-distillo/pkg/pcm"
	"github.com/teslashibe/go-distillo/pkg/stream"
	"github.com/teslashibe/go-distillo/pkg/web"
)

// ErrNotConnected is returned by Run before Connect succeeded.
var ErrNotConnected = errors.New("distillo: not connected")

// App is the robot orchestrator. It owns the four connections and the node
// graph between them:
//
//	ESP audio -> mic gain -> STT -> sentences -> dispatcher -> TTS
//	TTS audio -> speaker gain -> ESP audio
//	ESP control -> control -> watcher -> classifier -> dispatcher
//	dispatcher -> control -> ESP control
type App struct {
	config Config
	logger *slog.Logger

	provider inference.Provider
	history  history.Store
	profiles map[mixing.Mode]agent.Profile

	espAudio *stream.Conn[[]byte, []byte]
	espCtrl  *stream.Conn[[]byte, []byte]
	stt      *stream.Conn[[]byte, string]
	tts      *stream.Conn[string, []byte]

	micGain     *pcm.Gain
	speakerGain *pcm.Gain
	control     *esp.Control
	watcher     *esp.WeightWatcher
	classifier  *esp.Classifier
	dispatcher  *mixing.Dispatcher
	web         *web.Server

	shutdownOnce sync.Once
}

// Option configures an App.
type Option func(*App)

// WithProvider uses p instead of building a provider from the config.
func WithProvider(p inference.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithHistory records mixes in h instead of the configured file.
func WithHistory(h history.Store) Option {
	return func(a *App) { a.history = h }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// New validates cfg and prepares the agent backend, prompts and history.
// Nothing is dialed until Connect.
func New(cfg Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		config: cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "distillo.app")

	a.profiles = make(map[mixing.Mode]agent.Profile, 2)
	for mode, p := range map[mixing.Mode]agent.Profile{
		mixing.RecipeSearch: agent.RecipeSearchProfile(),
		mixing.Mixing:       agent.MixingProfile(),
	} {
		profile, err := p.WithPromptFrom(cfg.Agent.PromptDir)
		if err != nil {
			return nil, err
		}
		a.profiles[mode] = profile
	}

	if a.history == nil {
		path := cfg.HistoryPath
		if path == "" {
			var err error
			if path, err = history.DefaultPath(); err != nil {
				return nil, err
			}
		}
		store, err := history.NewJSONStore(path)
		if err != nil {
			return nil, err
		}
		a.history = store
	}

	if a.provider == nil {
		p, err := NewProvider(cfg.Agent, a.logger)
		if err != nil {
			return nil, err
		}
		a.provider = p
	}
	return a, nil
}

// Connect dials the board and the speech services and wires the graph.
// On failure every connection made so far is closed.
func (a *App) Connect(ctx context.Context) (err error) {
	cfg := a.config
	defer func() {
		if err != nil {
			a.closeConns()
		}
	}()

	if err := a.provider.Health(ctx); err != nil {
		a.logger.Warn("agent backend not reachable", "error", err)
	}

	a.logger.Info("connecting",
		"esp", cfg.ESP.Host,
		"stt", cfg.STT.Addr,
		"tts", cfg.TTS.Addr,
	)

	a.espAudio, err = stream.Dial(ctx, config.Addr(cfg.ESP.Host, cfg.ESP.AudioPort),
		stream.Bytes(), stream.RawBytes(),
		stream.WithName("esp-audio"), stream.WithLogger(a.logger))
	if err != nil {
		return err
	}
	a.espCtrl, err = stream.Dial(ctx, config.Addr(cfg.ESP.Host, cfg.ESP.ControlPort),
		stream.Bytes(), stream.RawBytes(),
		stream.WithName("esp-control"), stream.WithLogger(a.logger))
	if err != nil {
		return err
	}
	a.stt, err = stream.Dial(ctx, cfg.STT.Addr,
		stream.Text(), stream.RawBytes(),
		stream.WithName("stt"), stream.WithLogger(a.logger))
	if err != nil {
		return err
	}
	a.tts, err = stream.Dial(ctx, cfg.TTS.Addr,
		stream.Bytes(), stream.TextEncoder(),
		stream.WithName("tts"), stream.WithEmission(cfg.TTS.SampleRate), stream.WithLogger(a.logger))
	if err != nil {
		return err
	}

	return a.wire()
}

func (a *App) wire() error {
	cfg := a.config

	a.watcher = esp.NewWeightWatcher("weight-watcher", cfg.ESP.Window, cfg.ESP.Tolerance, a.logger)
	a.control = esp.NewControl("esp-control", a.watcher, a.logger)
	a.control.Attach(a.espCtrl)
	a.classifier = esp.NewClassifier("scale-classifier", a.control, cfg.ESP.Margin, a.logger)

	d, err := mixing.New(a.control, a.tts, a.newSession,
		mixing.WithAttempts(cfg.Mixing.Attempts),
		mixing.WithEmissionSlack(cfg.Mixing.EmissionSlack),
		mixing.WithInterruptWords(cfg.Mixing.InterruptWords...),
		mixing.WithHistory(a.history),
		mixing.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("distillo: dispatcher: %w", err)
	}
	a.dispatcher = d

	// Microphone to speech recognition
	a.micGain = pcm.NewGain("mic-gain", cfg.ESP.MicGain, a.logger)
	a.espAudio.Subscribe(a.micGain)
	a.micGain.Subscribe(resampleTo("mic-resampler", cfg.ESP.MicRate, cfg.STT.SampleRate, a.stt, a.logger))

	// Recognized sentences to the workflow, answers to synthesis
	sentences := node.NewFunc("sentences", func(s string) (string, bool) {
		s = strings.TrimSpace(s)
		return s, s != ""
	}, a.logger)
	a.stt.Subscribe(sentences)
	sentences.Subscribe(a.dispatcher)
	if cfg.Debug {
		sentences.Subscribe(node.NewDebug[string]("heard", nil, a.logger))
		a.dispatcher.Subscribe(node.NewDebug[string]("said", nil, a.logger))
	}
	a.dispatcher.Subscribe(a.tts)

	// Synthesized speech to the speaker
	a.speakerGain = pcm.NewGain("speaker-gain", cfg.ESP.SpeakerGain, a.logger)
	a.tts.Subscribe(a.speakerGain)
	a.speakerGain.Subscribe(resampleTo("speaker-resampler", cfg.TTS.SampleRate, cfg.ESP.SpeakerRate, a.espAudio, a.logger))

	// Scale telemetry to the workflow
	a.espCtrl.Subscribe(a.control)
	a.control.Subscribe(a.watcher)
	a.watcher.Subscribe(a.classifier)
	a.classifier.Subscribe(a.dispatcher.ScaleInput())

	if cfg.WebAddr != "" {
		a.web = web.NewServer(a.dispatcher,
			web.WithScale(a.control),
			web.WithHistory(a.history),
			web.WithLogger(a.logger),
		)
	}
	return nil
}

// resampleTo returns dst, behind a resampler when the rates differ.
func resampleTo(name string, from, to int, dst node.Receiver[[]byte], logger *slog.Logger) node.Receiver[[]byte] {
	if from == to {
		return dst
	}
	r := pcm.NewResampler(name, from, to, logger)
	r.Subscribe(dst)
	return r
}

func (a *App) newSession(mode mixing.Mode) agent.Session {
	return agent.NewChatSession(a.provider, a.profiles[mode],
		agent.WithModel(a.config.Agent.Model),
		agent.WithMaxTokens(a.config.Agent.MaxTokens),
		agent.WithTemperature(a.config.Agent.Temperature),
		agent.WithLogger(a.logger),
	)
}

// Run serves until ctx is cancelled or any connection is lost, then shuts
// everything down. There is no reconnection.
func (a *App) Run(ctx context.Context) error {
	if a.dispatcher == nil {
		return ErrNotConnected
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, c := range []interface{ Run(context.Context) error }{a.espAudio, a.espCtrl, a.stt, a.tts} {
		g.Go(func() error { return c.Run(ctx) })
	}
	g.Go(func() error { return a.dispatcher.Run(ctx) })
	if a.web != nil {
		g.Go(func() error { return a.web.ListenAndServe(ctx, a.config.WebAddr) })
	}

	a.logger.Info("distillo is listening")
	err := g.Wait()
	if err != nil {
		a.logger.Error("pipeline stopped", "error", err)
	}
	a.Shutdown()
	return err
}

// Dispatcher returns the workflow, or nil before Connect.
func (a *App) Dispatcher() *mixing.Dispatcher {
	return a.dispatcher
}

// History returns the mix history store.
func (a *App) History() history.Store {
	return a.history
}

// Shutdown closes every connection and the agent backend.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		a.closeConns()
		if a.provider != nil {
			a.provider.Close()
		}
		a.logger.Info("shut down")
	})
}

func (a *App) closeConns() {
	if a.espAudio != nil {
		a.espAudio.Close()
	}
	if a.espCtrl != nil {
		a.espCtrl.Close()
	}
	if a.stt != nil {
		a.stt.Close()
	}
	if a.tts != nil {
		a.tts.Close()
	}
}
