package game

import (
	"math"

	"bot-arena/internal/gameconfig"
	"bot-arena/internal/physics"
)

const (
	boostMultiplier  = 1.5
	powerUpTicks     = 200 // Duration of speed and star effects
	stunBoostPenalty = 50
	checkpointRadius = 20.0
	speedUpInterval  = 100 // Ticks between runner speed increases
)

var zeroVec physics.Vec

// Tick advances the game one step. It is a no-op once a winner is set.
func (g *Game) Tick() {
	w := g.world
	if w.winner != "" {
		return
	}
	w.tickCount++

	if g.cfg.AllowedActions.Flap {
		g.advanceRunner()
	}

	w.bots.Range(func(id string, b *Bot) bool {
		prog, ok := w.progress.Get(id)
		if !ok {
			prog = g.newProgress()
			w.progress.Set(id, prog)
		}
		g.stepBot(b, prog)
		return true
	})

	if g.cfg.AllowedActions.Fire {
		g.updateProjectiles()
	}
	if g.cfg.AllowedActions.Flap {
		g.updatePipes()
	}

	g.checkWin()

	if g.cfg.HasPowerUps() && g.cfg.PowerUpRespawn > 0 && w.tickCount%g.cfg.PowerUpRespawn == 0 {
		g.respawnPowerUps()
	}
}

// stepBot runs one bot through decision, physics and collisions.
func (g *Game) stepBot(b *Bot, prog *Progress) {
	cfg := g.cfg

	if prog.RespawnTicks > 0 {
		prog.RespawnTicks--
		if prog.RespawnTicks == 0 {
			g.respawnTank(b)
		}
		return
	}
	if cfg.AllowedActions.Fire && b.Health <= 0 {
		return
	}
	if cfg.AllowedActions.Flap && b.Lives <= 0 {
		return
	}

	if prog.StarTicks > 0 {
		prog.StarTicks--
	}
	if prog.BoostTicks > 0 {
		prog.BoostTicks--
	}

	if d, ok := g.deciders[b.ID]; ok {
		decision, err := d.Decide(g.buildInput(b, prog), g.stores[b.ID])
		if err != nil {
			g.botFailed(b, err)
		} else {
			g.applyAction(b, prog, DecodeAction(decision.Action, cfg.AllowedActions))
			g.stores[b.ID] = decision.Store
		}
	}

	prev := b.Position
	if cfg.AllowedActions.Flap {
		b.Velocity.Y += cfg.Gravity
	} else {
		limit := cfg.MaxSpeed
		if prog.BoostTicks > 0 {
			limit *= boostMultiplier
		}
		b.Velocity = physics.ClampMagnitude(b.Velocity, limit)
		b.Velocity = physics.ApplyFriction(b.Velocity, cfg.Friction)
	}
	b.Position = physics.Add(b.Position, b.Velocity)

	if cfg.AllowedActions.Flap {
		g.collideRunner(b, prog)
		return
	}
	g.collideStatic(b, prev)

	if cfg.HasCheckpoints() {
		g.advanceCheckpoint(b, prog)
	}
	if cfg.HasPowerUps() {
		g.collectPowerUps(b, prog)
	}
}

// =============================================================================
// ACTIONS
// =============================================================================

func (g *Game) applyAction(b *Bot, prog *Progress, a Action) {
	cfg := g.cfg
	accel := cfg.Acceleration
	if prog.BoostTicks > 0 {
		accel *= boostMultiplier
	}

	switch a.Kind {
	case ActionMoveVector:
		dir := physics.Normalize(physics.Vec{X: a.DX, Y: a.DY})
		b.Velocity = physics.Add(b.Velocity, physics.Scale(dir, accel))

	case ActionMoveForward:
		b.Velocity = physics.Add(b.Velocity, physics.Scale(facing(b.Rotation), accel*a.Velocity))

	case ActionTurn:
		rot := math.Mod(b.Rotation+a.Velocity*cfg.TurnRate, 360)
		if rot < 0 {
			rot += 360
		}
		b.Rotation = rot

	case ActionFire:
		if !g.offCooldown(b) {
			return
		}
		dir := facing(b.Rotation)
		if a.Aimed && (a.DX != 0 || a.DY != 0) {
			dir = physics.Normalize(physics.Vec{X: a.DX, Y: a.DY})
		}
		g.spawnProjectile(b, dir)
		b.LastFiredTick = g.world.tickCount

	case ActionPickup:
		g.pickup(b)

	case ActionDeposit:
		g.deposit(b)

	case ActionFlap:
		tick := g.world.tickCount
		if tick-b.LastFlapTick < cfg.FlapCooldown {
			return
		}
		b.Velocity.Y = -cfg.FlapStrength
		b.LastFlapTick = tick
		prog.LastFlapTick = tick
	}
}

// offCooldown reports whether b may fire this tick.
func (g *Game) offCooldown(b *Bot) bool {
	return g.world.tickCount-b.LastFiredTick >= g.cfg.FireCooldown
}

// facing is the unit vector for a rotation in degrees.
func facing(deg float64) physics.Vec {
	rad := deg * math.Pi / 180
	return physics.Vec{X: math.Cos(rad), Y: math.Sin(rad)}
}

// pickup takes the nearest orb within reach.
func (g *Game) pickup(b *Bot) {
	if b.HasOrb {
		return
	}
	nearest := ""
	best := g.cfg.PickupRadius
	g.world.orbs.Range(func(id string, o Orb) bool {
		if d := physics.Distance(b.Position, o.Position); d <= best {
			nearest, best = id, d
		}
		return true
	})
	if nearest == "" {
		return
	}
	g.world.orbs.Delete(nearest)
	b.HasOrb = true
}

// deposit drops the carried orb at the bot's own base and spawns a
// replacement orb.
func (g *Game) deposit(b *Bot) {
	if !b.HasOrb {
		return
	}
	base, ok := g.world.bases.Get(baseID(b.PlayerID))
	if !ok || physics.Distance(b.Position, base.Position) > g.cfg.DepositRadius {
		return
	}
	b.HasOrb = false
	base.OrbsDeposited++
	g.spawnOrb()

	g.emit(EventTypeDeposit, b.PlayerID, DepositPayload{BaseID: base.ID, OrbsDeposited: base.OrbsDeposited})
}

// =============================================================================
// COLLISIONS
// =============================================================================

// collideStatic keeps b inside the arena and out of walls and blocks. prev
// is the position before this tick's move.
func (g *Game) collideStatic(b *Bot, prev physics.Vec) {
	const r = gameconfig.BotRadius
	cfg := g.cfg

	b.Position, b.Velocity = physics.KeepInBounds(b.Position, b.Velocity, r, cfg.ArenaWidth, cfg.ArenaHeight)

	for _, wall := range cfg.Walls {
		closest := physics.ClosestPointOnSegment(b.Position, wall)
		if physics.Distance(b.Position, closest) >= r {
			continue
		}
		b.Position = physics.Add(closest, physics.Scale(wallNormal(wall, closest, b.Position, prev), r))
		b.Velocity = zeroVec
	}

	for _, blk := range cfg.Blocks {
		if !physics.CircleOverlapsRect(b.Position, r, blk) {
			continue
		}
		left := b.Position.X + r - blk.X
		right := blk.X + blk.Width - (b.Position.X - r)
		top := b.Position.Y + r - blk.Y
		bottom := blk.Y + blk.Height - (b.Position.Y - r)

		switch math.Min(math.Min(left, right), math.Min(top, bottom)) {
		case left:
			b.Position.X -= left
		case right:
			b.Position.X += right
		case top:
			b.Position.Y -= top
		default:
			b.Position.Y += bottom
		}
		b.Velocity = zeroVec
	}
}

// wallNormal is the unit push-out direction from a wall. Along the body of
// the wall it points to the side prev was on, so a bot that crossed the line
// in one step is pushed back rather than through.
func wallNormal(wall physics.Segment, closest, pos, prev physics.Vec) physics.Vec {
	d := physics.Sub(wall.End, wall.Start)
	if closest == wall.Start || closest == wall.End || physics.Magnitude(d) == 0 {
		n := physics.Normalize(physics.Sub(pos, closest))
		if n == zeroVec {
			return physics.Normalize(physics.Vec{X: -d.Y, Y: d.X})
		}
		return n
	}

	n := physics.Normalize(physics.Vec{X: -d.Y, Y: d.X})
	side := dot(physics.Sub(prev, wall.Start), n)
	if side == 0 {
		side = dot(physics.Sub(pos, wall.Start), n)
	}
	if side < 0 {
		return physics.Scale(n, -1)
	}
	return n
}

func dot(a, b physics.Vec) float64 {
	return a.X*b.X + a.Y*b.Y
}

// =============================================================================
// RACE
// =============================================================================

func (g *Game) advanceCheckpoint(b *Bot, prog *Progress) {
	cps := g.cfg.Checkpoints
	if prog.NextCheckpoint < 0 || prog.NextCheckpoint >= len(cps) {
		prog.NextCheckpoint = 0
	}
	if physics.Distance(b.Position, cps[prog.NextCheckpoint]) >= checkpointRadius {
		return
	}
	prog.NextCheckpoint = (prog.NextCheckpoint + 1) % len(cps)
	if prog.NextCheckpoint == 0 {
		prog.CurrentLap++
		g.emit(EventTypeLap, b.PlayerID, LapPayload{BotID: b.ID, Lap: prog.CurrentLap})
	}
}

// collectPowerUps applies any power-up b touches, then lets a starred bot
// stun the bots around it.
func (g *Game) collectPowerUps(b *Bot, prog *Progress) {
	reach := gameconfig.BotRadius * 1.5

	var taken []PowerUp
	g.world.powerUps.Range(func(_ string, p PowerUp) bool {
		if physics.Distance(b.Position, p.Position) < reach {
			taken = append(taken, p)
		}
		return true
	})
	for _, p := range taken {
		switch p.Type {
		case gameconfig.PowerUpSpeed:
			prog.BoostTicks = powerUpTicks
		case gameconfig.PowerUpStar:
			prog.StarTicks = powerUpTicks
		}
		g.world.powerUps.Delete(p.ID)
		g.emit(EventTypePowerUp, b.PlayerID, PowerUpPayload{BotID: b.ID, Type: string(p.Type)})
	}

	if prog.StarTicks <= 0 {
		return
	}
	g.world.bots.Range(func(id string, other *Bot) bool {
		if id == b.ID || physics.Distance(b.Position, other.Position) >= reach {
			return true
		}
		op, ok := g.world.progress.Get(id)
		if !ok || op.StarTicks > 0 {
			return true
		}
		other.Velocity = zeroVec
		op.BoostTicks = max(op.BoostTicks-stunBoostPenalty, 0)
		return true
	})
}

// =============================================================================
// ENDLESS RUNNER
// =============================================================================

// advanceRunner speeds the course up and spawns pipes on schedule.
func (g *Game) advanceRunner() {
	w := g.world
	if w.tickCount%speedUpInterval == 0 {
		w.speed += g.cfg.SpeedIncrement
	}
	if w.tickCount%g.cfg.PipeFrequency == 0 {
		h := g.cfg.ArenaHeight
		w.pipes = append(w.pipes, Pipe{
			X:    g.cfg.ArenaWidth,
			GapY: 50 + g.rng.Float64()*(h-gameconfig.GroundHeight-100),
		})
	}
}

// updatePipes scrolls pipes left and drops those fully off screen.
func (g *Game) updatePipes() {
	w := g.world
	kept := w.pipes[:0]
	for _, p := range w.pipes {
		p.X -= w.speed
		if p.X+gameconfig.PipeWidth > 0 {
			kept = append(kept, p)
		}
	}
	w.pipes = kept
}

// collideRunner handles ceiling, ground and pipes for a runner.
func (g *Game) collideRunner(b *Bot, prog *Progress) {
	const r = gameconfig.BotRadius
	cfg := g.cfg

	if b.Position.Y < r {
		b.Position.Y = r
		b.Velocity.Y = 0
	}
	if b.Position.Y > cfg.ArenaHeight-gameconfig.GroundHeight {
		g.loseLife(b, prog)
		return
	}

	const hit = r + 2
	half := cfg.PipeGap / 2
	for _, p := range g.world.pipes {
		if b.Position.X+hit <= p.X || b.Position.X-hit >= p.X+gameconfig.PipeWidth {
			continue
		}
		if b.Position.Y-hit < p.GapY-half || b.Position.Y+hit > p.GapY+half {
			g.loseLife(b, prog)
			return
		}
	}

	b.Rotation = math.Max(-30, math.Min(90, b.Velocity.Y/10*90))
}

// loseLife costs a runner one life and respawns it in place.
func (g *Game) loseLife(b *Bot, prog *Progress) {
	b.Lives--
	prog.Lives = b.Lives
	b.Position.Y = g.cfg.ArenaHeight / 2
	b.Velocity = zeroVec
	b.Rotation = 0

	g.emit(EventTypeEliminate, b.PlayerID, EliminatePayload{BotID: b.ID, LivesLeft: b.Lives})
}
