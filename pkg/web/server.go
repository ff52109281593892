// Package web serves the doorbell's HTTP surface: the proximity sensor
// endpoint, a status API and the live activity feed.
package web

import (
	"context"
	"log/slog"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-doorbell/pkg/events"
	"github.com/teslashibe/go-doorbell/pkg/hub"
	"github.com/teslashibe/go-doorbell/pkg/proximity"
	"github.com/teslashibe/go-doorbell/pkg/session"
)

// Proximity is the heartbeat side of the server.
type Proximity interface {
	Handler() fiber.Handler
	Status() proximity.Status
}

// Calls reports the live call.
type Calls interface {
	Current() (*session.Session, bool)
	LampOn() bool
}

// Config wires a Server.
type Config struct {
	Addr      string
	Proximity Proximity
	Calls     Calls
	Journal   *events.Journal
	Hub       *hub.Hub

	// Backlog is how many recent events a new feed client receives.
	Backlog int

	Logger *slog.Logger
}

// Server is the HTTP server.
type Server struct {
	cfg    Config
	app    *fiber.App
	logger *slog.Logger
}

// NewServer creates a Server with every route mounted.
func NewServer(cfg Config) *Server {
	if cfg.Backlog == 0 {
		cfg.Backlog = 20
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{cfg: cfg, logger: cfg.Logger.With("component", "web")}

	app := fiber.New(fiber.Config{
		AppName:               "Doorbell",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	if cfg.Proximity != nil {
		app.All("/proximity", cfg.Proximity.Handler())
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/events", s.handleEvents)

	if cfg.Hub != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/events", websocket.New(s.handleEventsWS))
	}

	s.app = app
	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
