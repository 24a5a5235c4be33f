package game

import (
	"fmt"
	"math"

	"bot-arena/internal/gameconfig"
	"bot-arena/internal/physics"
)

const (
	spawnAttempts = 100
	spawnMargin   = 50.0
)

func (g *Game) newID(prefix string) string {
	g.nextID++
	return fmt.Sprintf("%s-%d", prefix, g.nextID)
}

// spawnInitial creates the entities a fresh game starts with.
func (g *Game) spawnInitial() {
	if g.cfg.AllowedActions.Pickup {
		for i := 0; i < g.cfg.InitialOrbs; i++ {
			g.spawnOrb()
		}
	}
	for _, spawn := range g.cfg.PowerUpSpawns {
		g.addPowerUp(spawn)
	}
}

// =============================================================================
// ORBS
// =============================================================================

// spawnOrb places one orb on a random free walkable tile. Without a map it
// uses a random open position. Returns false when no free tile was found
// within the retry budget.
func (g *Game) spawnOrb() bool {
	if len(g.cfg.MapASCII) == 0 {
		g.addOrb(g.randomSpawn())
		return true
	}

	tiles := g.walkableTiles()
	if len(tiles) == 0 {
		return false
	}

	occupied := make(map[GridPos]bool, g.world.orbs.Len())
	g.world.orbs.Range(func(_ string, o Orb) bool {
		occupied[*g.gridPos(o.Position)] = true
		return true
	})

	for attempt := 0; attempt < 2*len(tiles); attempt++ {
		t := tiles[g.rng.Intn(len(tiles))]
		if occupied[t] {
			continue
		}
		g.addOrb(g.tileCenter(t))
		return true
	}
	return false
}

func (g *Game) addOrb(pos physics.Vec) {
	id := g.newID("orb")
	g.world.orbs.Set(id, Orb{ID: id, Position: pos})
}

// walkableTiles lists the empty map cells in reading order.
func (g *Game) walkableTiles() []GridPos {
	var tiles []GridPos
	for r, row := range g.cfg.MapASCII {
		for c, ch := range []byte(row) {
			if ch == '.' || ch == ' ' {
				tiles = append(tiles, GridPos{Row: r, Col: c})
			}
		}
	}
	return tiles
}

func (g *Game) tileCenter(t GridPos) physics.Vec {
	cw, ch := g.cellSize()
	return physics.Vec{X: (float64(t.Col) + 0.5) * cw, Y: (float64(t.Row) + 0.5) * ch}
}

// =============================================================================
// POWER-UPS
// =============================================================================

func (g *Game) addPowerUp(spawn gameconfig.PowerUpSpawn) {
	id := g.newID("pu-" + string(spawn.Type))
	g.world.powerUps.Set(id, PowerUp{ID: id, Type: spawn.Type, Position: spawn.Position})
}

// respawnPowerUps restores every configured power-up that is not live.
func (g *Game) respawnPowerUps() {
	for _, spawn := range g.cfg.PowerUpSpawns {
		live := false
		g.world.powerUps.Range(func(_ string, p PowerUp) bool {
			if p.Type == spawn.Type && physics.Distance(p.Position, spawn.Position) < 1 {
				live = true
				return false
			}
			return true
		})
		if !live {
			g.addPowerUp(spawn)
		}
	}
}

// =============================================================================
// BOTS & BASES
// =============================================================================

// startPosition is where the bot in join slot starts. Racers line up
// behind the first checkpoint, runners stack at the left edge, everyone
// else gets a random open position.
func (g *Game) startPosition(slot int) physics.Vec {
	switch {
	case g.cfg.HasCheckpoints():
		cp := g.cfg.Checkpoints[0]
		return physics.Vec{X: cp.X - float64(slot)*gameconfig.BotRadius*1.5, Y: cp.Y}
	case g.cfg.AllowedActions.Flap:
		return physics.Vec{X: 50, Y: g.cfg.ArenaHeight/2 + float64(slot)*30}
	default:
		return g.randomSpawn()
	}
}

// baseSpawn returns the first map base cell not yet taken, or a random
// open position.
func (g *Game) baseSpawn() physics.Vec {
	for _, p := range g.cfg.BaseSpawns {
		taken := false
		g.world.bases.Range(func(_ string, b *Base) bool {
			if physics.Distance(b.Position, p) < 1 {
				taken = true
				return false
			}
			return true
		})
		if !taken {
			return p
		}
	}
	return g.randomSpawn()
}

// randomSpawn picks a position clear of blocks and walls, falling back to
// the arena centre after spawnAttempts tries.
func (g *Game) randomSpawn() physics.Vec {
	w, h := g.cfg.ArenaWidth, g.cfg.ArenaHeight
	mx := math.Min(spawnMargin, w/4)
	my := math.Min(spawnMargin, h/4)

	for attempt := 0; attempt < spawnAttempts; attempt++ {
		p := physics.Vec{
			X: mx + g.rng.Float64()*(w-2*mx),
			Y: my + g.rng.Float64()*(h-2*my),
		}
		if g.isOpen(p, gameconfig.BotRadius) {
			return p
		}
	}
	return physics.Vec{X: w / 2, Y: h / 2}
}

func (g *Game) isOpen(p physics.Vec, radius float64) bool {
	for _, b := range g.cfg.Blocks {
		if physics.CircleOverlapsRect(p, radius, b) {
			return false
		}
	}
	for _, wall := range g.cfg.Walls {
		if physics.DistancePointToSegment(p, wall) < radius {
			return false
		}
	}
	return true
}
