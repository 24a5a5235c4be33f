package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"bot-arena/internal/game"
	"bot-arena/internal/gameconfig"
	"bot-arena/internal/lobby"
)

// Lobby is the part of the game registry the API calls. *lobby.Registry
// implements it.
type Lobby interface {
	Create(mode gameconfig.Mode, mapName string, teamMode lobby.TeamMode) (*lobby.Room, error)
	Get(id string) (*lobby.Room, error)
	List() []lobby.Info
	Join(gameID, playerID, nickname string) (lobby.Player, error)
	Leave(gameID, playerID string) error
	SubmitCode(gameID, playerID, code string) error
	Start(gameID string) error
	Stop(gameID string) error
	Reset(gameID string) error
	Remove(gameID string) error
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	router := api.NewRouter(api.RouterConfig{
//	    Lobby: lobby.NewRegistry(lobby.Options{}),
//	    RateLimitConfig: &api.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Lobby is the game registry (required)
	Lobby Lobby

	// Catalog lists maps. Nil uses gameconfig.Default().
	Catalog *gameconfig.Catalog

	// Events serves the per-game journal. Optional.
	Events *game.EventLog

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is used only when RateLimiter is nil.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is the list of allowed CORS origins. Nil allows local
	// development origins only.
	CORSOrigins []string

	// MaxCodeBytes caps a code submission body. Defaults to 256 KiB.
	MaxCodeBytes int64

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool

	Logger zerolog.Logger
}

// DefaultCORSOrigins are allowed when RouterConfig.CORSOrigins is nil.
var DefaultCORSOrigins = []string{
	"http://localhost:*",
	"http://127.0.0.1:*",
}

const defaultMaxCodeBytes = 256 << 10

type routerHandlers struct {
	lobby        Lobby
	catalog      *gameconfig.Catalog
	events       *game.EventLog
	maxCodeBytes int64
	log          zerolog.Logger
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// NewRouter starts nothing but the rate limiter's cleanup goroutine when it
// has to create one, so it is safe to use with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	r.Use(middleware.RequestID)
	if !cfg.DisableLogging {
		r.Use(requestLogger(cfg.Logger))
	}
	r.Use(middleware.Recoverer)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig()
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = DefaultCORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	catalog := cfg.Catalog
	if catalog == nil {
		catalog = gameconfig.Default()
	}
	maxCode := cfg.MaxCodeBytes
	if maxCode <= 0 {
		maxCode = defaultMaxCodeBytes
	}
	h := &routerHandlers{
		lobby:        cfg.Lobby,
		catalog:      catalog,
		events:       cfg.Events,
		maxCodeBytes: maxCode,
		log:          cfg.Logger,
	}

	r.Get("/health", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/modes", h.handleListModes)
		r.Get("/maps", h.handleListMaps)

		r.Route("/games", func(r chi.Router) {
			r.Get("/", h.handleListGames)
			r.Post("/", h.handleCreateGame)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.handleGetGame)
				r.Delete("/", h.handleRemoveGame)
				r.Get("/state", h.handleGetState)
				r.Get("/standings", h.handleGetStandings)
				r.Get("/events", h.handleGetEvents)

				r.Post("/join", h.handleJoin)
				r.Post("/leave", h.handleLeave)
				r.Post("/code", h.handleSubmitCode)
				r.Post("/start", h.handleStart)
				r.Post("/stop", h.handleStop)
				r.Post("/reset", h.handleReset)
			})
		})
	})

	return r
}

// requestLogger logs each request and records its metrics under the route
// pattern.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)

			endpoint := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				endpoint = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			RecordRequest(r.Method, endpoint, status, elapsed)

			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("took", elapsed).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http")
		})
	}
}
