// Package game is the authoritative simulation engine. A Game owns one
// GameState and advances it one fixed step per Tick, calling every bot's
// decision function along the way.
//
// A Game is not safe for concurrent use. The caller (lobby.Room) serializes
// access; the engine itself never spawns goroutines.
package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"bot-arena/internal/game/spatial"
	"bot-arena/internal/gameconfig"
	"bot-arena/internal/sandbox"
)

// ErrUnknownPlayer is returned for operations on a player that never joined.
var ErrUnknownPlayer = errors.New("unknown player")

// emptyStore is the persisted memory every bot starts with.
var emptyStore = json.RawMessage(`{}`)

const (
	teamColorBlue = "#3b82f6"
	teamColorRed  = "#ef4444"
	soloColor     = "#22c55e"
)

// Options configure a Game. The zero value is usable.
type Options struct {
	ID         string
	Logger     zerolog.Logger
	Sandbox    sandbox.Options // Applied to code compiled by SetBotCode
	Events     *EventLog       // Optional journal
	OnBotError func(botID string, err error)
}

// Game is one running match.
type Game struct {
	id  string
	cfg *gameconfig.GameConfig
	log zerolog.Logger

	sandboxOpts sandbox.Options
	events      *EventLog
	onBotError  func(botID string, err error)

	world    *world
	deciders map[string]Decider         // by bot id
	stores   map[string]json.RawMessage // by bot id
	errLogs  map[string]*botErrorLog

	rng      *rand.Rand
	nextID   int // orb, projectile and power-up counter
	nextSlot int

	grid    *spatial.SpatialGrid
	scratch []*Bot
}

// botErrorLog throttles sandbox failure lines for one bot.
type botErrorLog struct {
	limiter    *rate.Limiter
	suppressed int
}

// New creates a game for cfg. cfg must not be nil and is treated as
// read-only from here on.
func New(cfg *gameconfig.GameConfig, opts Options) *Game {
	if cfg == nil {
		panic("game: nil config")
	}

	g := &Game{
		id:          opts.ID,
		cfg:         cfg,
		log:         opts.Logger.With().Str("game", opts.ID).Str("mode", string(cfg.Mode)).Logger(),
		sandboxOpts: opts.Sandbox,
		events:      opts.Events,
		onBotError:  opts.OnBotError,
		deciders:    make(map[string]Decider),
		stores:      make(map[string]json.RawMessage),
		errLogs:     make(map[string]*botErrorLog),
		grid:        spatial.NewSpatialGrid(cfg.ArenaWidth, cfg.ArenaHeight, 50),
	}
	g.init()
	return g
}

// init puts the world into its freshly constructed state.
func (g *Game) init() {
	g.world = newWorld(g.cfg.InitialSpeed)
	g.rng = rand.New(rand.NewSource(g.cfg.Seed))
	g.nextID = 0
	g.spawnInitial()
}

// ID returns the id given in Options.
func (g *Game) ID() string { return g.id }

// Config returns the game's configuration. Callers must not modify it.
func (g *Game) Config() *gameconfig.GameConfig { return g.cfg }

func botID(playerID string) string  { return "bot-" + playerID }
func baseID(playerID string) string { return "base-" + playerID }

func teamColor(team *int) string {
	if team == nil {
		return soloColor
	}
	if *team == 0 {
		return teamColorBlue
	}
	if *team == 1 {
		return teamColorRed
	}
	return soloColor
}

// =============================================================================
// ROSTER
// =============================================================================

// AddPlayer creates the bot for playerID and returns a copy of it. Joining
// twice returns the existing bot. An empty nickname defaults to playerID.
func (g *Game) AddPlayer(playerID string, team *int, nickname string) Bot {
	id := botID(playerID)
	if existing, ok := g.world.bots.Get(id); ok {
		return copyBot(existing)
	}
	if nickname == "" {
		nickname = playerID
	}

	slot := g.nextSlot
	g.nextSlot++

	b := &Bot{
		ID:       id,
		PlayerID: playerID,
		Nickname: nickname,
		Team:     copyTeam(team),
		Color:    teamColor(team),
		slot:     slot,
	}
	g.resetBot(b)
	g.world.bots.Set(id, b)
	g.world.progress.Set(id, g.newProgress())
	g.stores[id] = emptyStore

	if g.cfg.AllowedActions.Deposit {
		g.world.bases.Set(baseID(playerID), &Base{
			ID:       baseID(playerID),
			Position: g.baseSpawn(),
			Team:     copyTeam(team),
			PlayerID: playerID,
		})
	}

	g.emit(EventTypeJoin, playerID, JoinPayload{
		BotID:    id,
		Nickname: nickname,
		Team:     copyTeam(team),
		SpawnX:   b.Position.X,
		SpawnY:   b.Position.Y,
	})
	g.log.Info().Str("player", playerID).Str("nickname", nickname).Msg("👤 bot joined")
	return copyBot(b)
}

// RemovePlayer deletes the player's bot, its progress, base, memory and
// sandbox. Returns false when the player is unknown.
func (g *Game) RemovePlayer(playerID string) bool {
	id := botID(playerID)
	if !g.world.bots.Has(id) {
		return false
	}
	if d, ok := g.deciders[id]; ok {
		disposeDecider(d)
		delete(g.deciders, id)
	}
	g.world.bots.Delete(id)
	g.world.progress.Delete(id)
	g.world.bases.Delete(baseID(playerID))
	delete(g.stores, id)
	delete(g.errLogs, id)

	g.emit(EventTypeLeave, playerID, nil)
	g.log.Info().Str("player", playerID).Msg("👋 bot left")
	return true
}

// HasPlayer reports whether playerID has a bot in this game.
func (g *Game) HasPlayer(playerID string) bool {
	return g.world.bots.Has(botID(playerID))
}

// PlayerCount returns the number of bots.
func (g *Game) PlayerCount() int {
	return g.world.bots.Len()
}

// SetBotCode compiles code and installs it as the player's decision
// function. On failure the previous function stays in place and the
// compile error is returned.
func (g *Game) SetBotCode(playerID, code string) error {
	if !g.HasPlayer(playerID) {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}
	d, err := Compile(code, g.sandboxOpts)
	if err != nil {
		g.log.Warn().Err(err).Str("player", playerID).Msg("bot code rejected")
		return err
	}
	return g.SetBotLoop(playerID, d)
}

// SetBotLoop installs an already built decider, disposing the one it
// replaces. A decider for an unknown player is disposed and rejected.
func (g *Game) SetBotLoop(playerID string, d Decider) error {
	id := botID(playerID)
	if !g.world.bots.Has(id) {
		disposeDecider(d)
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}
	if old, ok := g.deciders[id]; ok {
		disposeDecider(old)
	}
	g.deciders[id] = d
	g.emit(EventTypeCode, playerID, nil)
	g.log.Info().Str("player", playerID).Msg("🧠 bot code installed")
	return nil
}

// Dispose releases every bot's sandbox. The game must not be ticked
// afterwards.
func (g *Game) Dispose() {
	for id, d := range g.deciders {
		disposeDecider(d)
		delete(g.deciders, id)
	}
}

// =============================================================================
// QUERIES
// =============================================================================

// State returns a snapshot that shares nothing with the engine.
func (g *Game) State() GameState {
	return g.snapshot()
}

// Winner returns the winner's name once a win condition has fired.
func (g *Game) Winner() (string, bool) {
	return g.world.winner, g.world.winner != ""
}

// TickCount returns the number of ticks run since construction or Reset.
func (g *Game) TickCount() int {
	return g.world.tickCount
}

// Bot returns a copy of the player's bot.
func (g *Game) Bot(playerID string) (Bot, bool) {
	b, ok := g.world.bots.Get(botID(playerID))
	if !ok {
		return Bot{}, false
	}
	return copyBot(b), true
}

func copyBot(b *Bot) Bot {
	c := *b
	c.Team = copyTeam(b.Team)
	return c
}

// =============================================================================
// RESET
// =============================================================================

// Reset restarts the match with the same roster: entities respawn, every
// bot returns to its start, bases and progress clear, and persisted memory
// is emptied. Installed decision functions are kept.
func (g *Game) Reset() {
	bots := g.world.bots
	bases := g.world.bases

	g.init()

	bots.Range(func(id string, b *Bot) bool {
		b.HasOrb = false
		g.resetBot(b)
		g.world.bots.Set(id, b)
		g.world.progress.Set(id, g.newProgress())
		g.stores[id] = emptyStore
		return true
	})
	bases.Range(func(id string, base *Base) bool {
		base.OrbsDeposited = 0
		g.world.bases.Set(id, base)
		return true
	})

	g.emit(EventTypeReset, "", nil)
	g.log.Info().Msg("🔄 game reset")
}

// resetBot puts b at its start with full health, lives and cooldowns.
func (g *Game) resetBot(b *Bot) {
	b.Position = g.startPosition(b.slot)
	b.Velocity = zeroVec
	b.Rotation = 0
	b.Health = g.cfg.MaxHealth
	b.Lives = g.cfg.Lives
	b.LastFiredTick = neverTick
	b.LastFlapTick = neverTick
}

func (g *Game) newProgress() *Progress {
	next := 0
	if len(g.cfg.Checkpoints) > 1 {
		next = 1
	}
	return &Progress{
		NextCheckpoint: next,
		Lives:          g.cfg.Lives,
		LastFlapTick:   neverTick,
	}
}

// =============================================================================
// EVENTS & ERRORS
// =============================================================================

func (g *Game) emit(t EventType, playerID string, payload any) {
	if g.events == nil {
		return
	}
	g.events.EmitSimple(t, g.id, g.world.tickCount, playerID, payload)
}

// botFailed contains one bot's sandbox failure: it is reported and logged at
// a bounded rate, and the tick carries on.
func (g *Game) botFailed(b *Bot, err error) {
	if g.onBotError != nil {
		g.onBotError(b.ID, err)
	}

	el, ok := g.errLogs[b.ID]
	if !ok {
		el = &botErrorLog{limiter: rate.NewLimiter(rate.Every(2*time.Second), 1)}
		g.errLogs[b.ID] = el
	}
	if !el.limiter.Allow() {
		el.suppressed++
		return
	}
	g.log.Warn().
		Err(err).
		Str("bot", b.ID).
		Str("kind", sandbox.Kind(err)).
		Int("tick", g.world.tickCount).
		Int("suppressed", el.suppressed).
		Msg("⚠️ bot loop failed")
	el.suppressed = 0
}
