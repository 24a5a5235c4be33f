// Package gameconfig builds the immutable per-game configuration: mode
// rules, physics tunables and the static geometry of the chosen map.
//
// A GameConfig is produced once by Build and never mutated afterwards. The
// engine reads it; nothing writes it.
package gameconfig

import "bot-arena/internal/physics"

// =============================================================================
// ENTITY SIZES
// =============================================================================

const (
	TileSize      = 20.0 // Pixels per ASCII map cell
	BotRadius     = 8.0
	OrbRadius     = 6.0
	BaseRadius    = 20.0
	PowerUpRadius = 8.0
	GroundHeight  = 20.0 // Endless runner floor
	PipeWidth     = 50.0
)

// =============================================================================
// CAPABILITIES & WIN CONDITIONS
// =============================================================================

// AllowedActions is the capability set of a mode. It gates which action
// variants a bot may issue and which engine subsystems run.
type AllowedActions struct {
	Move    bool `json:"move"`
	Turn    bool `json:"turn"`
	Fire    bool `json:"fire"`
	Pickup  bool `json:"pickup"`
	Deposit bool `json:"deposit"`
	Flap    bool `json:"flap"`
}

// WinType discriminates win conditions.
type WinType string

const (
	WinOrbs        WinType = "orbs"
	WinElimination WinType = "elimination"
	WinSurvival    WinType = "survival"
	WinLaps        WinType = "laps"
)

// WinCondition is a win rule with its threshold.
type WinCondition struct {
	Type  WinType `json:"type"`
	Value int     `json:"value"`
}

// PowerUpType names a power-up effect.
type PowerUpType string

const (
	PowerUpSpeed PowerUpType = "speed"
	PowerUpStar  PowerUpType = "star"
)

// PowerUpSpawn is a fixed location where a power-up of one type appears.
type PowerUpSpawn struct {
	Position physics.Vec `json:"position"`
	Type     PowerUpType `json:"type"`
}

// =============================================================================
// GAME CONFIG
// =============================================================================

// GameConfig is the immutable configuration of one game instance.
type GameConfig struct {
	Mode    Mode   `json:"mode"`
	MapName string `json:"mapName,omitempty"`

	// Core
	ArenaWidth   float64 `json:"arenaWidth"`
	ArenaHeight  float64 `json:"arenaHeight"`
	MaxSpeed     float64 `json:"maxSpeed"`
	Acceleration float64 `json:"acceleration"`
	Friction     float64 `json:"friction"`
	TickRate     int     `json:"tickRate"`

	// Orbs
	PickupRadius  float64 `json:"pickupRadius"`
	DepositRadius float64 `json:"depositRadius"`
	OrbsToWin     int     `json:"orbsToWin"`
	InitialOrbs   int     `json:"initialOrbs"`

	// Tanks
	MaxHealth    int     `json:"maxHealth"`
	MaxPlayers   int     `json:"maxPlayers"`
	BulletSpeed  float64 `json:"bulletSpeed"`
	TurnRate     float64 `json:"turnRate"` // Degrees per tick at turn velocity 1
	FireCooldown int     `json:"fireCooldown"`
	RespawnDelay int     `json:"respawnDelay"`

	// Endless runner
	Gravity        float64 `json:"gravity"`
	FlapStrength   float64 `json:"flapStrength"`
	FlapCooldown   int     `json:"flapCooldown"`
	PipeFrequency  int     `json:"pipeFrequency"`
	PipeGap        float64 `json:"pipeGap"`
	Lives          int     `json:"lives"`
	InitialSpeed   float64 `json:"initialSpeed"`
	SpeedIncrement float64 `json:"speedIncrement"` // Added every 100 ticks

	// Race
	PowerUpRespawn int `json:"powerUpRespawn"` // Ticks between respawn sweeps
	LapsToWin      int `json:"lapsToWin"`

	AllowedActions AllowedActions `json:"allowedActions"`
	WinCondition   WinCondition   `json:"winCondition"`

	// Static geometry
	Walls         []physics.Segment `json:"walls"`
	Blocks        []physics.Rect    `json:"blocks"`
	Checkpoints   []physics.Vec     `json:"checkpoints"`
	PowerUpSpawns []PowerUpSpawn    `json:"powerUpSpawns"`
	BaseSpawns    []physics.Vec     `json:"baseSpawns,omitempty"` // Map B cells, used in order
	MapASCII      []string          `json:"mapAscii,omitempty"`

	// Seed drives every random choice the engine makes.
	Seed int64 `json:"seed"`
}

// HasCheckpoints reports whether lap tracking is active.
func (c *GameConfig) HasCheckpoints() bool {
	return len(c.Checkpoints) > 0
}

// HasPowerUps reports whether power-ups are part of the game.
func (c *GameConfig) HasPowerUps() bool {
	return len(c.PowerUpSpawns) > 0
}
