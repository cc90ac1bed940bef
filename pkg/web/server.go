// Package web mirrors a session's screen to browsers and accepts mic taps,
// so the same controller can be driven from a page.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/parley/internal/log"
	"github.com/teslashibe/parley/pkg/hub"
	"github.com/teslashibe/parley/pkg/render"
)

//go:embed static
var static embed.FS

// Session is the controller surface the dashboard needs.
type Session interface {
	TapMic(ctx context.Context) error
	Screen() render.Screen
}

// Server is the dashboard server.
type Server struct {
	app         *fiber.App
	addr        string
	session     Session
	screenHub   *hub.Hub
	productsDir string
	metrics     http.Handler
	logger      *slog.Logger
	tapTimeout  time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithProductsDir serves product images from dir.
func WithProductsDir(dir string) Option {
	return func(s *Server) {
		s.productsDir = dir
	}
}

// WithMetrics exposes h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a dashboard for session listening on addr (":8181").
func NewServer(addr string, session Session, opts ...Option) *Server {
	s := &Server{
		addr:       addr,
		session:    session,
		tapTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.Or(s.logger, "web")
	s.screenHub = hub.New("screen", s.logger)
	s.screenHub.OnMessage = s.handleInbound

	app := fiber.New(fiber.Config{
		AppName:               "parley dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	app.Get("/", s.handleIndex)
	app.Get("/health", s.handleHealth)
	app.Get("/products/:name", s.handleProduct)
	if s.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(s.metrics))
	}

	// API routes
	api := app.Group("/api")
	api.Get("/screen", s.handleScreen)
	api.Post("/mic", s.handleMic)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/screen", websocket.New(s.handleScreenWS))

	s.app = app
	return s
}

// Present broadcasts a screen to every connected browser.
func (s *Server) Present(screen render.Screen) {
	if err := s.screenHub.BroadcastJSON(screen); err != nil {
		s.logger.Error("encode screen", "error", err)
	}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.screenHub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "addr", s.addr)
		errCh <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("dashboard: %w", err)
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("dashboard shutdown: %w", err)
		}
		return nil
	}
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the screen hub.
func (s *Server) Hub() *hub.Hub {
	return s.screenHub
}
