// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for server, sandbox and game settings.
//
// Values come from the defaults below, an optional botarena.yaml, and
// BOTARENA_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// BOTARENA_SERVER_PORT.
const EnvPrefix = "BOTARENA"

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	CORSOrigins  []string `mapstructure:"corsOrigins"`
	RateLimitRPS float64  `mapstructure:"rateLimitRps"` // Per client IP
	RateBurst    int      `mapstructure:"rateBurst"`
	MaxGames     int      `mapstructure:"maxGames"`
	MaxCodeKB    int      `mapstructure:"maxCodeKb"` // Code submission body cap
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:         3000,
		CORSOrigins:  []string{"http://localhost:*", "http://127.0.0.1:*"},
		RateLimitRPS: 20,
		RateBurst:    40,
		MaxGames:     64,
		MaxCodeKB:    256,
	}
}

// Addr is the listen address for Port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// =============================================================================
// DEBUG SERVER CONFIGURATION
// =============================================================================

// DebugConfig controls the pprof and /metrics listener.
type DebugConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ListenAddr    string `mapstructure:"listenAddr"` // Forced to loopback unless AllowExternal
	AllowExternal bool   `mapstructure:"allowExternal"`
	User          string `mapstructure:"user"` // Optional basic auth
	Password      string `mapstructure:"password"`
}

// DefaultDebug returns the default debug configuration.
func DefaultDebug() DebugConfig {
	return DebugConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// =============================================================================
// LOG CONFIGURATION
// =============================================================================

// LogConfig selects the logger level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// DefaultLog returns the default log configuration.
func DefaultLog() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "console",
	}
}

// =============================================================================
// SANDBOX CONFIGURATION
// =============================================================================

// SandboxConfig bounds each bot decision call.
type SandboxConfig struct {
	TimeoutMs        int `mapstructure:"timeoutMs"`
	MemoryLimitMB    int `mapstructure:"memoryLimitMb"`
	MaxCallStackSize int `mapstructure:"maxCallStackSize"`
}

// DefaultSandbox returns the default sandbox configuration.
func DefaultSandbox() SandboxConfig {
	return SandboxConfig{
		TimeoutMs:        25,
		MemoryLimitMB:    32,
		MaxCallStackSize: 1024,
	}
}

// Timeout returns TimeoutMs as a duration.
func (c SandboxConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// MemoryLimit returns MemoryLimitMB in bytes.
func (c SandboxConfig) MemoryLimit() uint64 {
	return uint64(c.MemoryLimitMB) << 20
}

// =============================================================================
// GAME CONFIGURATION
// =============================================================================

// GameConfig holds room defaults.
type GameConfig struct {
	TickRate       int    `mapstructure:"tickRate"` // 0 keeps each mode's own rate
	BroadcastEvery int    `mapstructure:"broadcastEvery"`
	MapsDir        string `mapstructure:"mapsDir"`      // Extra *.yaml map files
	EventLogPath   string `mapstructure:"eventLogPath"` // Empty keeps the journal in memory only
	CodeRatePerMin int    `mapstructure:"codeRatePerMin"`
	CodeBurst      int    `mapstructure:"codeBurst"`
}

// DefaultGame returns the default game configuration.
func DefaultGame() GameConfig {
	return GameConfig{
		BroadcastEvery: 1,
		EventLogPath:   "events.jsonl",
		CodeRatePerMin: 60,
		CodeBurst:      3,
	}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server  ServerConfig  `mapstructure:"server"`
	Debug   DebugConfig   `mapstructure:"debug"`
	Log     LogConfig     `mapstructure:"log"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	Game    GameConfig    `mapstructure:"game"`
}

// Default returns the built-in configuration.
func Default() AppConfig {
	return AppConfig{
		Server:  DefaultServer(),
		Debug:   DefaultDebug(),
		Log:     DefaultLog(),
		Sandbox: DefaultSandbox(),
		Game:    DefaultGame(),
	}
}

// Load reads the configuration into the global viper instance and decodes
// it. A missing config file is not an error.
func Load() (AppConfig, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load against a caller-owned viper instance.
func LoadFrom(v *viper.Viper) (AppConfig, error) {
	setDefaults(v)

	v.SetConfigName("botarena")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return AppConfig{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides are picked up
// by Unmarshal.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.corsOrigins", d.Server.CORSOrigins)
	v.SetDefault("server.rateLimitRps", d.Server.RateLimitRPS)
	v.SetDefault("server.rateBurst", d.Server.RateBurst)
	v.SetDefault("server.maxGames", d.Server.MaxGames)
	v.SetDefault("server.maxCodeKb", d.Server.MaxCodeKB)

	v.SetDefault("debug.enabled", d.Debug.Enabled)
	v.SetDefault("debug.listenAddr", d.Debug.ListenAddr)
	v.SetDefault("debug.allowExternal", d.Debug.AllowExternal)
	v.SetDefault("debug.user", d.Debug.User)
	v.SetDefault("debug.password", d.Debug.Password)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("sandbox.timeoutMs", d.Sandbox.TimeoutMs)
	v.SetDefault("sandbox.memoryLimitMb", d.Sandbox.MemoryLimitMB)
	v.SetDefault("sandbox.maxCallStackSize", d.Sandbox.MaxCallStackSize)

	v.SetDefault("game.tickRate", d.Game.TickRate)
	v.SetDefault("game.broadcastEvery", d.Game.BroadcastEvery)
	v.SetDefault("game.mapsDir", d.Game.MapsDir)
	v.SetDefault("game.eventLogPath", d.Game.EventLogPath)
	v.SetDefault("game.codeRatePerMin", d.Game.CodeRatePerMin)
	v.SetDefault("game.codeBurst", d.Game.CodeBurst)
}

// Validate rejects values the server cannot run with.
func (c AppConfig) Validate() error {
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	case c.Server.RateLimitRPS <= 0 || c.Server.RateBurst <= 0:
		return errors.New("config: server rate limit must be positive")
	case c.Server.MaxGames <= 0:
		return errors.New("config: server.maxGames must be positive")
	case c.Sandbox.TimeoutMs <= 0:
		return errors.New("config: sandbox.timeoutMs must be positive")
	case c.Game.TickRate < 0:
		return errors.New("config: game.tickRate must not be negative")
	case c.Log.Format != "console" && c.Log.Format != "json":
		return fmt.Errorf("config: log.format %q is not console or json", c.Log.Format)
	}
	return nil
}
