package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"bot-arena/internal/game"
	"bot-arena/internal/gameconfig"
)

const eventStatsInterval = 5 * time.Second

// ServerConfig wires the API server.
type ServerConfig struct {
	Lobby   Lobby
	Hub     *WebSocketHub // Required; also the lobby's publisher
	Catalog *gameconfig.Catalog
	Events  *game.EventLog

	RateLimit    RateLimitConfig
	CORSOrigins  []string
	MaxCodeBytes int64

	Logger zerolog.Logger
}

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with WebSocket hub for real-time updates.
type Server struct {
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	events      *game.EventLog
	mu          sync.Mutex
	httpServer  *http.Server
	stopChan    chan struct{}
	stopOnce    sync.Once
	log         zerolog.Logger
}

// NewServer creates the API server.
//
// IMPORTANT: Background workers do NOT start until Start() is called.
// Tests can construct the server and use Router() without any goroutines
// beyond the rate limiter's cleanup loop.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		wsHub:       cfg.Hub,
		rateLimiter: NewIPRateLimiter(cfg.RateLimit),
		events:      cfg.Events,
		stopChan:    make(chan struct{}),
		log:         cfg.Logger,
	}

	s.router = NewRouter(RouterConfig{
		Lobby:        cfg.Lobby,
		Catalog:      cfg.Catalog,
		Events:       cfg.Events,
		RateLimiter:  s.rateLimiter,
		CORSOrigins:  cfg.CORSOrigins,
		MaxCodeBytes: cfg.MaxCodeBytes,
		Logger:       cfg.Logger,
	})

	// WebSocket route needs the hub instance
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	return s
}

// Start begins the HTTP server AND starts background workers. It blocks
// until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	go s.wsHub.Run()
	if s.events != nil {
		go s.eventStatsLoop()
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.log.Info().Str("addr", addr).Msg("🌐 API server starting")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
//
// Example:
//
//	server := api.NewServer(cfg)
//	ts := httptest.NewServer(server.Router())
//	defer ts.Close()
//	resp, _ := http.Get(ts.URL + "/api/games")
func (s *Server) Router() http.Handler {
	return s.router
}

// Shutdown stops the listener, disconnects WebSocket clients and stops the
// background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wsHub.Stop()
	s.rateLimiter.Stop()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// eventStatsLoop mirrors the journal counters into Prometheus.
func (s *Server) eventStatsLoop() {
	ticker := time.NewTicker(eventStatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			stats := s.events.Stats()
			UpdateEventLogStats(stats.Total, stats.Dropped)
		}
	}
}
