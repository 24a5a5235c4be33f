package game

import (
	"sort"

	"bot-arena/internal/gameconfig"
	"bot-arena/internal/physics"
)

// BotInput is the sensory snapshot handed to a bot's decision function.
// Lists are sorted nearest first. Vision is unbounded.
type BotInput struct {
	BotPosition physics.Vec `json:"botPosition"`
	Velocity    physics.Vec `json:"velocity"`
	Rotation    float64     `json:"rotation"`
	Health      int         `json:"health"`
	Lives       int         `json:"lives"`
	HasOrb      bool        `json:"hasOrb"`
	CanFire     bool        `json:"canFire"`

	Orbs        []SeenOrb        `json:"orbs"`
	Base        *SeenBase        `json:"base,omitempty"` // Own base only
	Enemies     []SeenEnemy      `json:"enemies"`
	Tanks       []SeenTank       `json:"tanks"`
	Projectiles []SeenProjectile `json:"projectiles"`
	PowerUps    []SeenPowerUp    `json:"powerUps"`

	MapASCII     []string `json:"mapAscii,omitempty"`
	GridPosition *GridPos `json:"gridPosition,omitempty"`

	NextCheckpoint *physics.Vec  `json:"nextCheckpoint,omitempty"`
	CurrentLap     *int          `json:"currentLap,omitempty"`
	Checkpoints    []physics.Vec `json:"checkpoints,omitempty"`
}

type SeenOrb struct {
	ID       string      `json:"id"`
	Position physics.Vec `json:"position"`
	Distance float64     `json:"distance"`
}

type SeenBase struct {
	ID       string      `json:"id"`
	Position physics.Vec `json:"position"`
	Team     *int        `json:"team,omitempty"`
	Distance float64     `json:"distance"`
}

type SeenEnemy struct {
	ID       string      `json:"id"`
	Position physics.Vec `json:"position"`
	Team     *int        `json:"team,omitempty"`
	Distance float64     `json:"distance"`
}

type SeenTank struct {
	ID       string      `json:"id"`
	Position physics.Vec `json:"position"`
	Rotation float64     `json:"rotation"`
	Health   int         `json:"health"`
	Distance float64     `json:"distance"`
}

type SeenProjectile struct {
	ID       string      `json:"id"`
	Position physics.Vec `json:"position"`
	Velocity physics.Vec `json:"velocity"`
	Distance float64     `json:"distance"`
}

type SeenPowerUp struct {
	ID       string                 `json:"id"`
	Position physics.Vec            `json:"position"`
	Type     gameconfig.PowerUpType `json:"type"`
	Distance float64                `json:"distance"`
}

// GridPos is a cell of the ASCII map.
type GridPos struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func sortByDistance[T any](items []T, dist func(T) float64) {
	sort.SliceStable(items, func(i, j int) bool { return dist(items[i]) < dist(items[j]) })
}

// buildInput assembles the snapshot for bot b.
func (g *Game) buildInput(b *Bot, prog *Progress) BotInput {
	cfg := g.cfg
	w := g.world
	pos := b.Position

	in := BotInput{
		BotPosition: pos,
		Velocity:    b.Velocity,
		Rotation:    b.Rotation,
		Health:      b.Health,
		Lives:       b.Lives,
		HasOrb:      b.HasOrb,
		CanFire:     cfg.AllowedActions.Fire && g.offCooldown(b),
		Orbs:        []SeenOrb{},
		Enemies:     []SeenEnemy{},
		Tanks:       []SeenTank{},
		Projectiles: []SeenProjectile{},
		PowerUps:    []SeenPowerUp{},
	}

	if cfg.AllowedActions.Pickup {
		w.orbs.Range(func(_ string, o Orb) bool {
			in.Orbs = append(in.Orbs, SeenOrb{ID: o.ID, Position: o.Position, Distance: physics.Distance(pos, o.Position)})
			return true
		})
		sortByDistance(in.Orbs, func(o SeenOrb) float64 { return o.Distance })
	}

	if cfg.AllowedActions.Deposit {
		if base, ok := w.bases.Get(baseID(b.PlayerID)); ok {
			in.Base = &SeenBase{
				ID:       base.ID,
				Position: base.Position,
				Team:     copyTeam(base.Team),
				Distance: physics.Distance(pos, base.Position),
			}
		}
	}

	w.bots.Range(func(_ string, other *Bot) bool {
		if other.ID == b.ID || sameTeam(b.Team, other.Team) {
			return true
		}
		d := physics.Distance(pos, other.Position)
		if cfg.AllowedActions.Fire {
			in.Tanks = append(in.Tanks, SeenTank{ID: other.ID, Position: other.Position, Rotation: other.Rotation, Health: other.Health, Distance: d})
		} else {
			in.Enemies = append(in.Enemies, SeenEnemy{ID: other.ID, Position: other.Position, Team: copyTeam(other.Team), Distance: d})
		}
		return true
	})
	sortByDistance(in.Tanks, func(t SeenTank) float64 { return t.Distance })
	sortByDistance(in.Enemies, func(e SeenEnemy) float64 { return e.Distance })

	if cfg.AllowedActions.Fire {
		w.projectiles.Range(func(_ string, p *Projectile) bool {
			in.Projectiles = append(in.Projectiles, SeenProjectile{ID: p.ID, Position: p.Position, Velocity: p.Velocity, Distance: physics.Distance(pos, p.Position)})
			return true
		})
		sortByDistance(in.Projectiles, func(p SeenProjectile) float64 { return p.Distance })
	}

	if cfg.HasPowerUps() {
		w.powerUps.Range(func(_ string, p PowerUp) bool {
			in.PowerUps = append(in.PowerUps, SeenPowerUp{ID: p.ID, Position: p.Position, Type: p.Type, Distance: physics.Distance(pos, p.Position)})
			return true
		})
		sortByDistance(in.PowerUps, func(p SeenPowerUp) float64 { return p.Distance })
	}

	if len(cfg.MapASCII) > 0 {
		in.MapASCII = cfg.MapASCII
		in.GridPosition = g.gridPos(pos)
	}

	if cfg.HasCheckpoints() {
		lap := prog.CurrentLap
		in.CurrentLap = &lap
		if prog.NextCheckpoint >= 0 && prog.NextCheckpoint < len(cfg.Checkpoints) {
			next := cfg.Checkpoints[prog.NextCheckpoint]
			in.NextCheckpoint = &next
		}
		in.Checkpoints = append([]physics.Vec(nil), cfg.Checkpoints...)
	}

	return in
}

// gridPos maps a position to its map cell, clamped to the grid.
func (g *Game) gridPos(p physics.Vec) *GridPos {
	cw, ch := g.cellSize()
	cols, rows := gameconfig.GridSize(g.cfg.MapASCII)
	return &GridPos{
		Col: clampInt(int(p.X/cw), 0, cols-1),
		Row: clampInt(int(p.Y/ch), 0, rows-1),
	}
}

// cellSize is the pixel size of one map cell on this arena.
func (g *Game) cellSize() (w, h float64) {
	cols, rows := gameconfig.GridSize(g.cfg.MapASCII)
	if cols == 0 || rows == 0 {
		return gameconfig.TileSize, gameconfig.TileSize
	}
	return g.cfg.ArenaWidth / float64(cols), g.cfg.ArenaHeight / float64(rows)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sameTeam(a, b *int) bool {
	return a != nil && b != nil && *a == *b
}
