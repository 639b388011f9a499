// Package dashboard serves a live view of the headset's markers.
//
// GET /api/markers returns the current snapshot, GET /api/state adds the
// host's counters, and /ws/markers pushes a snapshot on every change.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-soundmap/pkg/markers"
)

const shutdownTimeout = 5 * time.Second

// Snapshot is the marker set at one point in time.
type Snapshot struct {
	Count     int              `json:"count"`
	Markers   []markers.Marker `json:"markers"`
	Version   uint64           `json:"version"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Config holds dashboard settings.
type Config struct {
	Stats  func() any
	Logger *slog.Logger
}

// Option configures a Server.
type Option func(*Config)

// WithStats sets a func whose result is included in /api/state. It is
// called from HTTP handlers and must be safe for concurrent use.
func WithStats(fn func() any) Option {
	return func(c *Config) { c.Stats = fn }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Server is the dashboard HTTP server.
type Server struct {
	cfg     Config
	app     *fiber.App
	markers *Broadcaster
	log     *slog.Logger

	mu       sync.RWMutex
	snapshot Snapshot
}

// New creates a dashboard with an empty marker set.
func New(opts ...Option) *Server {
	cfg := Config{Logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		markers:  NewBroadcaster("markers", cfg.Logger),
		log:      cfg.Logger.With("component", "dashboard"),
		snapshot: Snapshot{Markers: []markers.Marker{}},
	}

	app := fiber.New(fiber.Config{
		AppName:               "soundmap-dashboard",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/markers", s.handleMarkers)
	api.Get("/state", s.handleState)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/markers", websocket.New(s.handleMarkersWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Update replaces the snapshot with ms and pushes it to WebSocket clients.
func (s *Server) Update(ms []markers.Marker) {
	s.mu.Lock()
	list := make([]markers.Marker, len(ms))
	copy(list, ms)
	s.snapshot = Snapshot{
		Count:     len(list),
		Markers:   list,
		Version:   s.snapshot.Version + 1,
		UpdatedAt: time.Now(),
	}
	data, err := json.Marshal(s.snapshot)
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("encode snapshot failed", "error", err)
		return
	}
	s.markers.Broadcast(data)
}

// Snapshot returns the current marker snapshot.
func (s *Server) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	return s.markers.ClientCount()
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.markers.Run(ctx)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			s.log.Warn("dashboard shutdown failed", "error", err)
		}
	}()

	s.log.Info("dashboard listening", "addr", ln.Addr().String())
	err := s.app.Listener(ln)
	if ctx.Err() != nil {
		<-stopped
		return nil
	}
	return err
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("dashboard: empty listen address")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) handleMarkers(c *fiber.Ctx) error {
	return c.JSON(s.Snapshot())
}

func (s *Server) handleState(c *fiber.Ctx) error {
	snap := s.Snapshot()
	state := fiber.Map{
		"count":      snap.Count,
		"version":    snap.Version,
		"updated_at": snap.UpdatedAt,
		"clients":    s.markers.ClientCount(),
	}
	if s.cfg.Stats != nil {
		state["stats"] = s.cfg.Stats()
	}
	return c.JSON(state)
}

func (s *Server) handleMarkersWS(c *websocket.Conn) {
	s.mu.RLock()
	initial, err := json.Marshal(s.snapshot)
	s.mu.RUnlock()
	if err != nil {
		initial = nil
	}
	s.markers.Serve(c, initial)
}
