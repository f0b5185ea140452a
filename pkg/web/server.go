// Package web serves the operator status API: the workflow state, the mix
// history, a websocket stream of workflow events and a text console whose
// messages are handled like recognized speech.
package web

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	contribws "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-distillo/pkg/history"
	"github.com/teslashibe/go-distillo/pkg/hub"
	"github.com/teslashibe/go-distillo/pkg/mixing"
	"github.com/teslashibe/go-distillo/pkg/node"
)

// Workflow is the dispatcher surface the server exposes.
type Workflow interface {
	Status() mixing.Status
	HandleSentence(text string) error
	Events() node.Publisher[mixing.Event]
}

// Scale reports the latest weight reading.
type Scale interface {
	LastWeight() (float64, bool)
}

// Status is the /api/status payload.
type Status struct {
	mixing.Status
	Weight  *float64 `json:"weight,omitempty"`
	Viewers int      `json:"viewers"`
	Uptime  string   `json:"uptime"`
}

// maxEvents is how many recent events /api/events returns.
const maxEvents = 200

// Server is the status API server.
type Server struct {
	app    *fiber.App
	logger *slog.Logger

	workflow Workflow
	scale    Scale
	history  history.Store
	started  time.Time

	events *hub.Hub

	recentMu sync.RWMutex
	recent   []mixing.Event
}

// Option configures a Server.
type Option func(*Server)

// WithScale adds the weight reading to the status.
func WithScale(s Scale) Option {
	return func(srv *Server) { srv.scale = s }
}

// WithHistory serves recorded mixes.
func WithHistory(h history.Store) Option {
	return func(srv *Server) { srv.history = h }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) { srv.logger = l }
}

// NewServer creates a server for wf and subscribes to its events.
func NewServer(wf Workflow, opts ...Option) *Server {
	s := &Server{
		workflow: wf,
		started:  time.Now(),
		logger:   slog.Default(),
		recent:   make([]mixing.Event, 0, maxEvents),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web.server")
	s.events = hub.New("events", s.logger)

	app := fiber.New(fiber.Config{
		AppName:               "Distillo",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/history", s.handleHistory)
	api.Get("/history/:id", s.handleHistoryEntry)
	api.Get("/events", s.handleEvents)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))
	app.Get("/ws/console", contribws.New(s.handleConsoleWS))

	s.app = app
	wf.Events().Subscribe(s)
	return s
}

// Receive records a workflow event and broadcasts it to event clients.
func (s *Server) Receive(ev mixing.Event, _ string) error {
	s.recentMu.Lock()
	if len(s.recent) == maxEvents {
		copy(s.recent, s.recent[1:])
		s.recent = s.recent[:maxEvents-1]
	}
	s.recent = append(s.recent, ev)
	s.recentMu.Unlock()

	return s.events.BroadcastJSON("event", ev)
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hubCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.events.Run(hubCtx)

	s.logger.Info("status server listening", "addr", ln.Addr().String())

	errc := make(chan error, 1)
	go func() { errc <- s.app.Listener(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		cancel()
		err := s.app.ShutdownWithTimeout(5 * time.Second)
		<-errc
		return err
	}
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

var _ node.Receiver[mixing.Event] = (*Server)(nil)
