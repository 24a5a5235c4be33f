package api

import (
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics with bounded cardinality (no per-game or per-player labels)
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "botarena_tick_duration_seconds",
		Help:    "Time spent in one game tick, bot calls included",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	activeGames = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "botarena_active_games",
		Help: "Games currently registered",
	})

	botCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "botarena_bots",
		Help: "Bots across all games",
	})

	// kind is one of sandbox.Kind's values
	sandboxFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botarena_sandbox_failures_total",
		Help: "Bot decision calls that failed",
	}, []string{"kind"})

	eventLogTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botarena_event_log_total",
		Help: "Gameplay events journaled",
	})

	eventLogDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botarena_event_log_dropped_total",
		Help: "Gameplay events dropped by rate limiting",
	})

	// reason: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botarena_connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"})

	// endpoint is the route pattern, never the raw path
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "botarena_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botarena_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "botarena_websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botarena_websocket_messages_total",
		Help: "Total WebSocket frames sent",
	})
)

// PromMetrics reports room telemetry to the process Prometheus registry.
// It satisfies lobby.Metrics.
type PromMetrics struct{}

func (PromMetrics) ObserveTick(d time.Duration) { tickDuration.Observe(d.Seconds()) }
func (PromMetrics) SetActiveGames(n int)        { activeGames.Set(float64(n)) }
func (PromMetrics) SetBots(n int)               { botCount.Set(float64(n)) }
func (PromMetrics) SandboxFailure(kind string)  { sandboxFailures.WithLabelValues(kind).Inc() }

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // Loopback unless AllowExternal
	AllowExternal bool
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// isLoopback reports whether addr binds to a loopback interface only.
func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// NewDebugHandler returns the pprof and /metrics mux.
func NewDebugHandler(cfg ObservabilityConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.BasicAuthUser != "" {
		return basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}
	return mux
}

// StartDebugServer starts the internal observability server in the
// background. It returns nil when disabled. pprof must never face the
// internet, so a non-loopback address is replaced unless AllowExternal.
func StartDebugServer(cfg ObservabilityConfig, log zerolog.Logger) *http.Server {
	if !cfg.Enabled {
		log.Info().Msg("📊 Debug server disabled")
		return nil
	}

	if !isLoopback(cfg.ListenAddr) && !cfg.AllowExternal {
		log.Warn().Str("requested", cfg.ListenAddr).Msg("⚠️ Debug server forced to localhost")
		cfg.ListenAddr = DefaultObservabilityConfig().ListenAddr
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           NewDebugHandler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().
			Str("pprof", "http://"+cfg.ListenAddr+"/debug/pprof/").
			Str("metrics", "http://"+cfg.ListenAddr+"/metrics").
			Msg("📊 Debug server starting")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("⚠️ Debug server error")
		}
	}()

	return srv
}

// basicAuthMiddleware adds basic authentication to the handler
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// eventLogCounters turns the journal's running totals into counter deltas.
type eventLogCounters struct {
	mu      sync.Mutex
	total   uint64
	dropped uint64
}

var eventLogSeen eventLogCounters

// UpdateEventLogStats publishes journal totals. Totals that went backwards
// (a fresh log) are taken as a new baseline.
func UpdateEventLogStats(total, dropped uint64) {
	eventLogSeen.mu.Lock()
	defer eventLogSeen.mu.Unlock()

	if total >= eventLogSeen.total {
		eventLogTotal.Add(float64(total - eventLogSeen.total))
	}
	if dropped >= eventLogSeen.dropped {
		eventLogDropped.Add(float64(dropped - eventLogSeen.dropped))
	}
	eventLogSeen.total = total
	eventLogSeen.dropped = dropped
}

// RecordConnectionRejected increments the rejection counter
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments WebSocket message counter
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}
