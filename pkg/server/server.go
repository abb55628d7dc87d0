// Package server exposes the relay over HTTP and websockets.
//
// Routes:
//
//	GET /ws           client voice session (first message configures keys)
//	GET /ws/monitor   live session and turn events
//	GET /voices       synthesis voice catalog
//	GET /health       liveness and active session count
//	GET /api/sessions live session snapshot with gate and audio stats
//	GET /metrics      Prometheus exposition
//	GET /             static UI
package server

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fws "github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-vocalix/pkg/hub"
	"github.com/teslashibe/go-vocalix/pkg/relay"
	"github.com/teslashibe/go-vocalix/pkg/tts"
)

// DefaultConfigureWait bounds how long a new client has to send its key
// configuration.
const DefaultConfigureWait = 30 * time.Second

// VoiceLister supplies the voice catalog.
type VoiceLister interface {
	List(ctx context.Context) ([]tts.Voice, error)
}

// Config holds server dependencies.
type Config struct {
	Relay         *relay.Relay
	Hub           *hub.Hub
	Voices        VoiceLister
	Gatherer      prometheus.Gatherer
	StaticDir     string
	Version       string
	Debug         bool
	ConfigureWait time.Duration
	Logger        *slog.Logger
}

// Option configures a Server.
type Option func(*Config)

// WithHub serves h on /ws/monitor.
func WithHub(h *hub.Hub) Option {
	return func(c *Config) {
		c.Hub = h
	}
}

// WithVoices sets the voice catalog.
func WithVoices(v VoiceLister) Option {
	return func(c *Config) {
		c.Voices = v
	}
}

// WithGatherer exposes g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(c *Config) {
		c.Gatherer = g
	}
}

// WithStaticDir sets the directory holding index.html and assets.
func WithStaticDir(dir string) Option {
	return func(c *Config) {
		c.StaticDir = dir
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(c *Config) {
		c.Version = v
	}
}

// WithDebug enables request logging.
func WithDebug(debug bool) Option {
	return func(c *Config) {
		c.Debug = debug
	}
}

// WithConfigureWait sets how long a client may take to configure keys.
func WithConfigureWait(d time.Duration) Option {
	return func(c *Config) {
		c.ConfigureWait = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// Server is the HTTP front end of the relay.
type Server struct {
	cfg    Config
	app    *fiber.App
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds the fiber app and registers every route.
func New(r *relay.Relay, opts ...Option) *Server {
	cfg := Config{
		Relay:         r,
		Gatherer:      prometheus.DefaultGatherer,
		Version:       "dev",
		ConfigureWait: DefaultConfigureWait,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "server"),
		ctx:    ctx,
		cancel: cancel,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "vocalix",
		DisableStartupMessage: true,
	})
	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if cfg.Debug {
		s.app.Use(logger.New())
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// WebSocket upgrade middleware
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.handleSession))
	if s.cfg.Hub != nil {
		s.app.Get("/ws/monitor", fws.New(s.cfg.Hub.Handler))
	}

	s.app.Get("/voices", s.handleVoices)
	s.app.Get("/health", s.handleHealth)

	api := s.app.Group("/api")
	api.Get("/sessions", s.handleSessions)

	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})))

	if s.cfg.StaticDir != "" {
		s.app.Static("/static", s.cfg.StaticDir)
		s.app.Get("/", s.handleIndex)
	}
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown closes every live session and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	s.cfg.Relay.Shutdown()
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleIndex(c *fiber.Ctx) error {
	index := filepath.Join(s.cfg.StaticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		return fiber.ErrNotFound
	}
	return c.SendFile(index)
}
