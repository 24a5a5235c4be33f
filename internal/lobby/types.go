package lobby

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"bot-arena/internal/game"
	"bot-arena/internal/gameconfig"
	"bot-arena/internal/sandbox"
)

var (
	ErrUnknownMode = gameconfig.ErrUnknownMode
	ErrUnknownMap  = gameconfig.ErrUnknownMap

	ErrGameNotFound    = errors.New("game not found")
	ErrGameFull        = errors.New("game is full")
	ErrGameInProgress  = errors.New("game already in progress")
	ErrPlayerNotFound  = errors.New("player not in game")
	ErrTooManyGames    = errors.New("game limit reached")
	ErrRateLimited     = errors.New("too many code submissions")
	ErrUnknownTeamMode = errors.New("unknown team mode")
	ErrRegistryClosed  = errors.New("registry closed")
)

// Status is the lifecycle stage of a room.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusInGame   Status = "in-game"
	StatusFinished Status = "finished"
)

// TeamMode decides how joining players are split.
type TeamMode string

const (
	TeamModeFFA   TeamMode = "ffa"
	TeamModeTeams TeamMode = "teams"
)

// ParseTeamMode accepts "ffa" and "teams" in any case. Empty means ffa.
func ParseTeamMode(s string) (TeamMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ffa":
		return TeamModeFFA, nil
	case "teams":
		return TeamModeTeams, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTeamMode, s)
}

// Published event names.
const (
	EventState   = "game:state"
	EventStarted = "game:started"
	EventEnded   = "game:ended"
	EventStopped = "game:stopped"
	EventReset   = "game:reset"
)

// Metrics receives room telemetry. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ObserveTick(d time.Duration)
	SetActiveGames(n int)
	SetBots(n int)
	SandboxFailure(kind string)
}

// Publisher fans room events out to subscribers of one game.
type Publisher interface {
	Publish(gameID, event string, data any)
}

type nopMetrics struct{}

func (nopMetrics) ObserveTick(time.Duration) {}
func (nopMetrics) SetActiveGames(int)        {}
func (nopMetrics) SetBots(int)               {}
func (nopMetrics) SandboxFailure(string)     {}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string, any) {}

// Options configure a Registry. The zero value is usable.
type Options struct {
	// Catalog resolves map names. Nil uses gameconfig.Default().
	Catalog *gameconfig.Catalog

	// Overrides is passed to gameconfig.Build for every new game.
	Overrides func(*gameconfig.GameConfig)

	// TickRate overrides the mode's tick rate when positive.
	TickRate int

	// BroadcastEvery publishes state every N ticks. Defaults to 1.
	BroadcastEvery int

	// MaxGames caps concurrently registered rooms. Defaults to 64.
	MaxGames int

	// CodeRate and CodeBurst limit code submissions per player.
	CodeRate  rate.Limit
	CodeBurst int

	Sandbox   sandbox.Options
	Events    *game.EventLog
	Metrics   Metrics
	Publisher Publisher
	Logger    zerolog.Logger

	// Seed returns the seed for a new game. Defaults to the wall clock.
	Seed func() int64
}

// DefaultMaxGames is used when Options.MaxGames is zero.
const DefaultMaxGames = 64

func (o Options) withDefaults() Options {
	if o.Catalog == nil {
		o.Catalog = gameconfig.Default()
	}
	if o.BroadcastEvery <= 0 {
		o.BroadcastEvery = 1
	}
	if o.MaxGames <= 0 {
		o.MaxGames = DefaultMaxGames
	}
	if o.CodeRate <= 0 {
		o.CodeRate = rate.Every(time.Second)
	}
	if o.CodeBurst <= 0 {
		o.CodeBurst = 3
	}
	if o.Metrics == nil {
		o.Metrics = nopMetrics{}
	}
	if o.Publisher == nil {
		o.Publisher = nopPublisher{}
	}
	if o.Seed == nil {
		o.Seed = func() int64 { return time.Now().UnixNano() }
	}
	return o
}

// Player is a member of a room.
type Player struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Team     *int   `json:"team"`
	BotID    string `json:"botId"`
	HasCode  bool   `json:"hasCode"`
}

// Info is the listing view of a room.
type Info struct {
	ID           string                  `json:"id"`
	Mode         gameconfig.Mode         `json:"mode"`
	MapName      string                  `json:"mapName,omitempty"`
	TeamMode     TeamMode                `json:"teamMode"`
	Status       Status                  `json:"status"`
	MaxPlayers   int                     `json:"maxPlayers"`
	TickRate     int                     `json:"tickRate"`
	TickCount    int                     `json:"tickCount"`
	Winner       *string                 `json:"winner"`
	WinCondition gameconfig.WinCondition `json:"winCondition"`
	Players      []Player                `json:"players"`
	CreatedAt    time.Time               `json:"createdAt"`
}
