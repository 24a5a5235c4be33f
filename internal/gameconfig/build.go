package gameconfig

import (
	"fmt"

	"bot-arena/internal/physics"
)

// BuildOptions selects the map and tweaks the result of Build.
type BuildOptions struct {
	// MapName picks a catalog map. Empty picks one for the mode from Seed.
	MapName string

	// Catalog to resolve maps from. Nil uses Default().
	Catalog *Catalog

	// Seed is copied into the config and drives the map pick.
	Seed int64

	// Overrides runs after defaults, mode settings and the map are applied.
	// The win threshold is derived afterwards, so overriding OrbsToWin or
	// LapsToWin moves it.
	Overrides func(*GameConfig)
}

// Defaults returns the settings shared by every mode.
func Defaults() GameConfig {
	return GameConfig{
		ArenaWidth:   600,
		ArenaHeight:  400,
		MaxSpeed:     8,
		Acceleration: 3,
		Friction:     0.6,
		TickRate:     30,

		PickupRadius:  20,
		DepositRadius: 30,
		OrbsToWin:     20,

		MaxHealth:    100,
		MaxPlayers:   16,
		BulletSpeed:  15,
		TurnRate:     10,
		FireCooldown: 90,
		RespawnDelay: 90,

		Gravity:        0.8,
		FlapStrength:   10,
		FlapCooldown:   15,
		PipeFrequency:  60,
		PipeGap:        120,
		Lives:          3,
		InitialSpeed:   2,
		SpeedIncrement: 0.1,

		PowerUpRespawn: 600,
		LapsToWin:      3,
	}
}

// simpleCircuit is the race layout used when the chosen map has no
// checkpoints.
var simpleCircuit = struct {
	walls       []physics.Segment
	checkpoints []physics.Vec
	powerUps    []PowerUpSpawn
}{
	walls: []physics.Segment{
		{Start: physics.Vec{X: 50, Y: 50}, End: physics.Vec{X: 550, Y: 50}},
		{Start: physics.Vec{X: 550, Y: 50}, End: physics.Vec{X: 550, Y: 350}},
		{Start: physics.Vec{X: 550, Y: 350}, End: physics.Vec{X: 50, Y: 350}},
		{Start: physics.Vec{X: 50, Y: 350}, End: physics.Vec{X: 50, Y: 50}},
	},
	checkpoints: []physics.Vec{
		{X: 100, Y: 200}, // start/finish
		{X: 300, Y: 60},
		{X: 500, Y: 200},
		{X: 300, Y: 340},
	},
	powerUps: []PowerUpSpawn{
		{Position: physics.Vec{X: 300, Y: 200}, Type: PowerUpSpeed},
		{Position: physics.Vec{X: 300, Y: 120}, Type: PowerUpStar},
	},
}

// Build assembles the configuration for one game of mode.
func Build(mode Mode, opts BuildOptions) (*GameConfig, error) {
	info, ok := mode.Info()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	cfg := Defaults()
	cfg.Mode = mode
	cfg.Seed = opts.Seed
	applyModeSettings(&cfg)

	catalog := opts.Catalog
	if catalog == nil {
		catalog = Default()
	}

	switch {
	case info.UsesMaps && opts.MapName != "":
		m, ok := catalog.Lookup(opts.MapName)
		if !ok || !m.Supports(mode) {
			return nil, fmt.Errorf("%w: %q for mode %s", ErrUnknownMap, opts.MapName, mode)
		}
		applyMap(&cfg, m)
	case info.UsesMaps:
		if m, ok := catalog.Pick(mode, opts.Seed); ok {
			applyMap(&cfg, m)
		}
	case opts.MapName != "":
		return nil, fmt.Errorf("%w: mode %s takes no map", ErrUnknownMap, mode)
	}

	if mode == ModeRace && !cfg.HasCheckpoints() {
		cfg.Walls = append(cfg.Walls, simpleCircuit.walls...)
		cfg.Checkpoints = append([]physics.Vec(nil), simpleCircuit.checkpoints...)
		if !cfg.HasPowerUps() {
			cfg.PowerUpSpawns = append([]PowerUpSpawn(nil), simpleCircuit.powerUps...)
		}
	}

	if opts.Overrides != nil {
		opts.Overrides(&cfg)
	}
	cfg.WinCondition = winConditionFor(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyModeSettings(cfg *GameConfig) {
	switch cfg.Mode {
	case ModeOrbs:
		cfg.AllowedActions = AllowedActions{Move: true, Pickup: true, Deposit: true}
		cfg.InitialOrbs = 10
	case ModeOrbsPlus:
		cfg.AllowedActions = AllowedActions{Move: true, Pickup: true, Deposit: true}
		cfg.InitialOrbs = 15
	case ModeTanks:
		cfg.AllowedActions = AllowedActions{Move: true, Turn: true, Fire: true}
	case ModeFlappy:
		cfg.AllowedActions = AllowedActions{Flap: true}
		cfg.MaxSpeed = 0
		cfg.Acceleration = 0
		cfg.Friction = 0
	case ModeRace:
		cfg.AllowedActions = AllowedActions{Move: true, Turn: true}
		cfg.MaxSpeed = 10
		cfg.TurnRate = 6
	}
}

func winConditionFor(cfg *GameConfig) WinCondition {
	switch cfg.Mode {
	case ModeOrbs, ModeOrbsPlus:
		return WinCondition{Type: WinOrbs, Value: cfg.OrbsToWin}
	case ModeTanks:
		return WinCondition{Type: WinElimination, Value: 1}
	case ModeFlappy:
		return WinCondition{Type: WinSurvival, Value: 1}
	default:
		return WinCondition{Type: WinLaps, Value: cfg.LapsToWin}
	}
}

// applyMap copies the geometry of m into cfg. The arena takes the size of
// the grid. Power-up types alternate speed, star in reading order.
func applyMap(cfg *GameConfig, m Map) {
	rows := NormalizeRows(m.ASCII)
	parsed := ParseMap(rows)

	cols, nrows := GridSize(rows)
	cfg.ArenaWidth = float64(cols) * TileSize
	cfg.ArenaHeight = float64(nrows) * TileSize

	cfg.MapName = m.Name
	cfg.MapASCII = rows
	cfg.Walls = parsed.Walls
	cfg.Blocks = parsed.Blocks
	cfg.Checkpoints = parsed.Checkpoints
	cfg.BaseSpawns = parsed.Bases

	cfg.PowerUpSpawns = nil
	for i, pos := range parsed.PowerUps {
		t := PowerUpSpeed
		if i%2 == 1 {
			t = PowerUpStar
		}
		cfg.PowerUpSpawns = append(cfg.PowerUpSpawns, PowerUpSpawn{Position: pos, Type: t})
	}
}

// Validate rejects configurations the engine cannot run.
func (c *GameConfig) Validate() error {
	switch {
	case c.ArenaWidth <= 0 || c.ArenaHeight <= 0:
		return fmt.Errorf("gameconfig: arena %gx%g must be positive", c.ArenaWidth, c.ArenaHeight)
	case c.TickRate <= 0:
		return fmt.Errorf("gameconfig: tick rate %d must be positive", c.TickRate)
	case c.AllowedActions.Flap && c.PipeFrequency <= 0:
		return fmt.Errorf("gameconfig: pipe frequency %d must be positive", c.PipeFrequency)
	case c.MaxPlayers <= 0:
		return fmt.Errorf("gameconfig: max players %d must be positive", c.MaxPlayers)
	}
	return nil
}
