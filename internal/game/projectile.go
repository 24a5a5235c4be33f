package game

import (
	"bot-arena/internal/gameconfig"
	"bot-arena/internal/physics"
)

// Projectile system constants
const (
	MaxProjectiles     = 256 // Hard cap per game
	ProjectileLifetime = 200 // Ticks
	ProjectileDamage   = 20
	ProjectileHitRange = gameconfig.BotRadius + 2
)

// spawnProjectile fires a shell from b along the unit vector dir.
func (g *Game) spawnProjectile(b *Bot, dir physics.Vec) {
	if g.world.projectiles.Len() >= MaxProjectiles {
		return
	}
	id := g.newID("proj")
	g.world.projectiles.Set(id, &Projectile{
		ID:       id,
		OwnerID:  b.PlayerID,
		Position: b.Position,
		Velocity: physics.Scale(dir, g.cfg.BulletSpeed),
		Life:     ProjectileLifetime,
	})
}

// updateProjectiles moves every shell, applies hits and removes shells that
// hit, expired, left the arena or struck static geometry.
func (g *Game) updateProjectiles() {
	if g.world.projectiles.Len() == 0 {
		return
	}

	// Broad phase over living bots; indices follow join order.
	g.scratch = g.scratch[:0]
	g.grid.Clear()
	g.world.bots.Range(func(_ string, b *Bot) bool {
		if b.Health > 0 {
			g.grid.Insert(uint32(len(g.scratch)), b.Position.X, b.Position.Y)
		}
		g.scratch = append(g.scratch, b)
		return true
	})

	var spent []string
	g.world.projectiles.Range(func(id string, p *Projectile) bool {
		from := p.Position
		p.Position = physics.Add(p.Position, p.Velocity)
		p.Life--

		if victim := g.projectileHit(p); victim != nil {
			g.damage(victim, p)
			spent = append(spent, id)
			return true
		}
		if p.Life <= 0 || !g.inArena(p.Position) || g.hitsGeometry(from, p.Position) {
			spent = append(spent, id)
		}
		return true
	})

	for _, id := range spent {
		g.world.projectiles.Delete(id)
	}
}

// projectileHit returns the first bot in join order that p touches. Owners
// and their teammates are never hit.
func (g *Game) projectileHit(p *Projectile) *Bot {
	var ownerTeam *int
	if owner, ok := g.world.bots.Get(botID(p.OwnerID)); ok {
		ownerTeam = owner.Team
	}

	// NO FRIENDLY FIRE: same-team bots are skipped
	for _, idx := range g.grid.QueryRadius(p.Position.X, p.Position.Y, ProjectileHitRange) {
		target := g.scratch[idx]
		if target.PlayerID == p.OwnerID || target.Health <= 0 || sameTeam(ownerTeam, target.Team) {
			continue
		}
		if physics.Distance(target.Position, p.Position) < ProjectileHitRange {
			return target
		}
	}
	return nil
}

// damage applies one shell to victim. A lethal hit costs a life and starts
// the respawn countdown while lives remain.
func (g *Game) damage(victim *Bot, p *Projectile) {
	victim.Health = max(victim.Health-ProjectileDamage, 0)
	g.emit(EventTypeHit, p.OwnerID, HitPayload{
		ShooterID: botID(p.OwnerID),
		VictimID:  victim.ID,
		Damage:    ProjectileDamage,
		VictimHP:  victim.Health,
	})
	if victim.Health > 0 {
		return
	}

	victim.Lives--
	victim.Velocity = zeroVec
	victim.HasOrb = false
	prog, ok := g.world.progress.Get(victim.ID)
	if ok {
		prog.Lives = victim.Lives
		if victim.Lives > 0 {
			prog.RespawnTicks = max(g.cfg.RespawnDelay, 1)
		}
	}

	g.emit(EventTypeEliminate, victim.PlayerID, EliminatePayload{BotID: victim.ID, LivesLeft: victim.Lives})
	g.log.Info().Str("bot", victim.ID).Int("lives", victim.Lives).Msg("💀 bot destroyed")
}

// respawnTank brings a destroyed tank back at its start.
func (g *Game) respawnTank(b *Bot) {
	b.Health = g.cfg.MaxHealth
	b.Position = g.startPosition(b.slot)
	b.Velocity = zeroVec
	b.Rotation = 0
	b.LastFiredTick = neverTick
	g.emit(EventTypeRespawn, b.PlayerID, nil)
}

func (g *Game) inArena(p physics.Vec) bool {
	return p.X >= 0 && p.X <= g.cfg.ArenaWidth && p.Y >= 0 && p.Y <= g.cfg.ArenaHeight
}

// hitsGeometry reports whether the step from→to crosses a wall or ends in a
// block.
func (g *Game) hitsGeometry(from, to physics.Vec) bool {
	step := physics.Segment{Start: from, End: to}
	for _, wall := range g.cfg.Walls {
		if _, ok := physics.SegmentIntersection(step, wall); ok {
			return true
		}
	}
	for _, blk := range g.cfg.Blocks {
		if physics.CircleOverlapsRect(to, 0, blk) {
			return true
		}
	}
	return false
}
