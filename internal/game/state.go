package game

import (
	"math"

	"bot-arena/internal/gameconfig"
	"bot-arena/internal/physics"
)

// neverTick marks a cooldown that has never been used.
const neverTick = math.MinInt32

// Bot is one player's agent.
type Bot struct {
	ID       string      `json:"id"`
	PlayerID string      `json:"playerId"`
	Nickname string      `json:"nickname"`
	Position physics.Vec `json:"position"`
	Velocity physics.Vec `json:"velocity"`
	Rotation float64     `json:"rotation"` // Degrees, 0 = right, 90 = down
	Health   int         `json:"health"`
	HasOrb   bool        `json:"hasOrb"`
	Team     *int        `json:"team"`
	Color    string      `json:"color"`
	Lives    int         `json:"lives"`

	LastFiredTick int `json:"lastFiredTick"`
	LastFlapTick  int `json:"lastFlapTick"`

	slot int // join order, used for start positions
}

// Orb is a collectible.
type Orb struct {
	ID       string      `json:"id"`
	Position physics.Vec `json:"position"`
}

// Base is where a player deposits orbs.
type Base struct {
	ID            string      `json:"id"`
	Position      physics.Vec `json:"position"`
	Team          *int        `json:"team"`
	PlayerID      string      `json:"playerId"`
	OrbsDeposited int         `json:"orbsDeposited"`
}

// Projectile is a tank shell.
type Projectile struct {
	ID       string      `json:"id"`
	OwnerID  string      `json:"ownerId"` // Player id of the shooter
	Position physics.Vec `json:"position"`
	Velocity physics.Vec `json:"velocity"`
	Life     int         `json:"life"` // Ticks left
}

// Pipe is an endless runner obstacle pair.
type Pipe struct {
	X    float64 `json:"x"`    // Left edge
	GapY float64 `json:"gapY"` // Centre of the opening
}

// PowerUp is a live power-up in the arena.
type PowerUp struct {
	ID       string                 `json:"id"`
	Type     gameconfig.PowerUpType `json:"type"`
	Position physics.Vec            `json:"position"`
}

// Progress is the per-bot transient record. It lives exactly as long as its
// bot.
type Progress struct {
	CurrentLap     int `json:"currentLap"`
	NextCheckpoint int `json:"nextCheckpoint"`
	StarTicks      int `json:"starTicks"`
	BoostTicks     int `json:"boostTicks"`
	Lives          int `json:"lives"`
	LastFlapTick   int `json:"lastFlapTick"`
	RespawnTicks   int `json:"respawnTicks"`
}

// Arena is the playfield size.
type Arena struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// GameState is a snapshot of a game. Snapshots returned by Game.State share
// nothing with the engine.
type GameState struct {
	Bots        *Keyed[Bot]        `json:"bots"`
	Orbs        *Keyed[Orb]        `json:"orbs"`
	Bases       *Keyed[Base]       `json:"bases"`
	Projectiles *Keyed[Projectile] `json:"projectiles"`
	PowerUps    *Keyed[PowerUp]    `json:"powerUps"`
	BotProgress *Keyed[Progress]   `json:"botProgress"`
	Pipes       []Pipe             `json:"pipes"`

	Arena       Arena             `json:"arena"`
	Walls       []physics.Segment `json:"walls"`
	Blocks      []physics.Rect    `json:"blocks"`
	Checkpoints []physics.Vec     `json:"checkpoints"`
	MapASCII    []string          `json:"mapAscii,omitempty"`

	TickCount int     `json:"tickCount"`
	Winner    *string `json:"winner"`
	Speed     float64 `json:"speed"`
	OrbsToWin int     `json:"orbsToWin,omitempty"`
	LapsToWin int     `json:"lapsToWin,omitempty"`
}

// world is the engine-owned mutable aggregate.
type world struct {
	bots        *Keyed[*Bot]
	orbs        *Keyed[Orb]
	bases       *Keyed[*Base]
	projectiles *Keyed[*Projectile]
	powerUps    *Keyed[PowerUp]
	progress    *Keyed[*Progress]
	pipes       []Pipe

	tickCount int
	winner    string
	speed     float64
}

func newWorld(initialSpeed float64) *world {
	return &world{
		bots:        NewKeyed[*Bot](),
		orbs:        NewKeyed[Orb](),
		bases:       NewKeyed[*Base](),
		projectiles: NewKeyed[*Projectile](),
		powerUps:    NewKeyed[PowerUp](),
		progress:    NewKeyed[*Progress](),
		speed:       initialSpeed,
	}
}

func copyTeam(t *int) *int {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func (g *Game) snapshot() GameState {
	w := g.world
	s := GameState{
		Bots: Map(w.bots, func(b *Bot) Bot {
			c := *b
			c.Team = copyTeam(b.Team)
			return c
		}),
		Orbs: Map(w.orbs, func(o Orb) Orb { return o }),
		Bases: Map(w.bases, func(b *Base) Base {
			c := *b
			c.Team = copyTeam(b.Team)
			return c
		}),
		Projectiles: Map(w.projectiles, func(p *Projectile) Projectile { return *p }),
		PowerUps:    Map(w.powerUps, func(p PowerUp) PowerUp { return p }),
		BotProgress: Map(w.progress, func(p *Progress) Progress { return *p }),
		Pipes:       append([]Pipe{}, w.pipes...),

		Arena:       Arena{Width: g.cfg.ArenaWidth, Height: g.cfg.ArenaHeight},
		Walls:       append([]physics.Segment{}, g.cfg.Walls...),
		Blocks:      append([]physics.Rect{}, g.cfg.Blocks...),
		Checkpoints: append([]physics.Vec{}, g.cfg.Checkpoints...),
		MapASCII:    append([]string(nil), g.cfg.MapASCII...),

		TickCount: w.tickCount,
		Speed:     w.speed,
	}
	if w.winner != "" {
		winner := w.winner
		s.Winner = &winner
	}
	if g.cfg.WinCondition.Type == gameconfig.WinOrbs {
		s.OrbsToWin = g.cfg.WinCondition.Value
	}
	if g.cfg.WinCondition.Type == gameconfig.WinLaps {
		s.LapsToWin = g.cfg.WinCondition.Value
	}
	return s
}
