package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"bot-arena/internal/api"
	"bot-arena/internal/config"
	"bot-arena/internal/game"
	"bot-arena/internal/gameconfig"
	"bot-arena/internal/lobby"
	"bot-arena/internal/logging"
	"bot-arena/internal/sandbox"
	"bot-arena/internal/wire"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load .env before viper reads the environment
	envErr := godotenv.Load(".env")

	appConfig, err := config.Load()
	if err != nil {
		boot := logging.New(config.DefaultLog(), os.Stderr)
		boot.Fatal().Err(err).Msg("❌ Invalid configuration")
	}
	log := logging.New(appConfig.Log, os.Stdout)

	if envErr != nil {
		log.Debug().Msg("💡 No .env file found, using environment variables only")
	} else {
		log.Info().Msg("✅ Loaded environment from .env")
	}

	log.Info().Msg("🎮 ================================")
	log.Info().Msg("🎮  BOT ARENA")
	log.Info().Msg("🎮 ================================")

	// Map catalog: embedded maps plus any from the maps dir
	catalog := gameconfig.Default()
	if dir := appConfig.Game.MapsDir; dir != "" {
		catalog = catalog.Clone()
		if err := catalog.LoadDir(dir); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("❌ Failed to load maps")
		}
	}
	log.Info().Int("maps", len(catalog.All())).Msg("🗺️ Map catalog loaded")

	// Start event log
	events := game.NewEventLog()
	if err := events.Start(appConfig.Game.EventLogPath); err != nil {
		log.Warn().Err(err).Msg("⚠️ Event log file disabled")
		events.Start("")
	} else if appConfig.Game.EventLogPath != "" {
		log.Info().Str("path", appConfig.Game.EventLogPath).Msg("📝 Event log")
	}

	hub := api.NewWebSocketHub(api.HubConfig{
		AllowedOrigins: appConfig.Server.CORSOrigins,
		Logger:         log.With().Str("component", "ws").Logger(),
	})

	registry := lobby.NewRegistry(lobby.Options{
		Catalog:        catalog,
		TickRate:       appConfig.Game.TickRate,
		BroadcastEvery: appConfig.Game.BroadcastEvery,
		MaxGames:       appConfig.Server.MaxGames,
		CodeRate:       codeRate(appConfig.Game.CodeRatePerMin),
		CodeBurst:      appConfig.Game.CodeBurst,
		Sandbox: sandbox.Options{
			Timeout:          appConfig.Sandbox.Timeout(),
			MemoryLimit:      appConfig.Sandbox.MemoryLimit(),
			MaxCallStackSize: appConfig.Sandbox.MaxCallStackSize,
		},
		Events:    events,
		Metrics:   api.PromMetrics{},
		Publisher: hub,
		Logger:    log.With().Str("component", "lobby").Logger(),
	})

	hub.SetSnapshot(func(gameID string) (json.RawMessage, bool) {
		room, err := registry.Get(gameID)
		if err != nil {
			return nil, false
		}
		data, err := wire.EncodeState(room.State())
		return data, err == nil
	})

	server := api.NewServer(api.ServerConfig{
		Lobby:   registry,
		Hub:     hub,
		Catalog: catalog,
		Events:  events,
		RateLimit: api.RateLimitConfig{
			RequestsPerSecond: appConfig.Server.RateLimitRPS,
			Burst:             appConfig.Server.RateBurst,
		},
		CORSOrigins:  appConfig.Server.CORSOrigins,
		MaxCodeBytes: int64(appConfig.Server.MaxCodeKB) << 10,
		Logger:       log.With().Str("component", "http").Logger(),
	})

	// Start debug server
	debugServer := api.StartDebugServer(api.ObservabilityConfig{
		Enabled:       appConfig.Debug.Enabled,
		ListenAddr:    appConfig.Debug.ListenAddr,
		AllowExternal: appConfig.Debug.AllowExternal,
		BasicAuthUser: appConfig.Debug.User,
		BasicAuthPass: appConfig.Debug.Password,
	}, log)

	// Start API server in goroutine
	go func() {
		if err := server.Start(appConfig.Server.Addr()); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Str("addr", appConfig.Server.Addr()).Msg("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Info().Msg("🛑 Shutting down...")
	shutdown(log, server, debugServer, registry, events)
	log.Info().Msg("👋 Goodbye!")
}

func shutdown(log zerolog.Logger, server *api.Server, debug *http.Server, registry *lobby.Registry, events *game.EventLog) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("⚠️ API server shutdown")
	}
	registry.Close()
	events.Stop()
	if debug != nil {
		if err := debug.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("⚠️ Debug server shutdown")
		}
	}
}

// codeRate turns a per-minute budget into a limiter rate.
func codeRate(perMin int) rate.Limit {
	if perMin <= 0 {
		return 0
	}
	return rate.Every(time.Minute / time.Duration(perMin))
}
