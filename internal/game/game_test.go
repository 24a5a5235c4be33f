package game

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bot-arena/internal/gameconfig"
	"bot-arena/internal/physics"
	"bot-arena/internal/sandbox"
)

// =============================================================================
// HELPERS
// =============================================================================

func openCatalog(t *testing.T) *gameconfig.Catalog {
	t.Helper()
	c, err := gameconfig.ParseCatalog([]byte("maps: []"))
	require.NoError(t, err)
	return c
}

func newTestGame(t *testing.T, mode gameconfig.Mode, opts gameconfig.BuildOptions, gameOpts Options) *Game {
	t.Helper()
	if opts.Seed == 0 {
		opts.Seed = 42
	}
	cfg, err := gameconfig.Build(mode, opts)
	require.NoError(t, err)
	if gameOpts.ID == "" {
		gameOpts.ID = "test"
	}
	g := New(cfg, gameOpts)
	t.Cleanup(g.Dispose)
	return g
}

// fixed returns a decider that always issues action.
func fixed(action string) Decider {
	return DeciderFunc(func(BotInput, json.RawMessage) (Decision, error) {
		return Decision{Action: json.RawMessage(action), Store: json.RawMessage(`{}`)}, nil
	})
}

// once issues action on the first call and idles afterwards.
func once(action string) Decider {
	done := false
	return DeciderFunc(func(BotInput, json.RawMessage) (Decision, error) {
		if done {
			return Decision{Action: json.RawMessage(`{"type":"idle"}`)}, nil
		}
		done = true
		return Decision{Action: json.RawMessage(action)}, nil
	})
}

type trackingDecider struct {
	calls    int
	disposed bool
}

func (d *trackingDecider) Decide(BotInput, json.RawMessage) (Decision, error) {
	d.calls++
	return Decision{Action: json.RawMessage(`{"type":"idle"}`)}, nil
}

func (d *trackingDecider) Dispose() { d.disposed = true }

func (g *Game) testBot(t *testing.T, playerID string) *Bot {
	t.Helper()
	b, ok := g.world.bots.Get(botID(playerID))
	require.True(t, ok, "bot %s", playerID)
	return b
}

func (g *Game) testProgress(t *testing.T, playerID string) *Progress {
	t.Helper()
	p, ok := g.world.progress.Get(botID(playerID))
	require.True(t, ok, "progress %s", playerID)
	return p
}

func tickN(g *Game, n int) {
	for i := 0; i < n; i++ {
		g.Tick()
	}
}

// =============================================================================
// ROSTER
// =============================================================================

func TestAddPlayer(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{MapName: "Classic Arena"}, Options{})

	bot := g.AddPlayer("p1", nil, "Alice")
	assert.Equal(t, "bot-p1", bot.ID)
	assert.Equal(t, "Alice", bot.Nickname)
	assert.Equal(t, soloColor, bot.Color)
	assert.Equal(t, 100, bot.Health)

	again := g.AddPlayer("p1", nil, "Someone else")
	assert.Equal(t, "Alice", again.Nickname, "joining twice returns the existing bot")
	assert.Equal(t, 1, g.PlayerCount())

	anon := g.AddPlayer("p2", nil, "")
	assert.Equal(t, "p2", anon.Nickname)

	state := g.State()
	assert.Equal(t, state.Bots.Len(), state.BotProgress.Len())
	base, ok := state.Bases.Get("base-p1")
	require.True(t, ok)
	assert.Equal(t, physics.Vec{X: 10, Y: 10}, base.Position, "first base takes the first map base cell")
}

func TestTeamBases(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{MapName: "Team Fortress"}, Options{})

	blue, red := 0, 1
	g.AddPlayer("a", &blue, "A")
	g.AddPlayer("b", &red, "B")
	g.AddPlayer("c", &blue, "C")

	state := g.State()
	require.Equal(t, 3, state.Bases.Len())
	for _, pid := range []string{"a", "b", "c"} {
		bot, _ := state.Bots.Get(botID(pid))
		base, ok := state.Bases.Get(baseID(pid))
		require.True(t, ok)
		require.NotNil(t, base.Team)
		assert.Equal(t, *bot.Team, *base.Team)
		assert.Equal(t, pid, base.PlayerID)
	}

	a, _ := state.Bots.Get("bot-a")
	b, _ := state.Bots.Get("bot-b")
	assert.Equal(t, teamColorBlue, a.Color)
	assert.Equal(t, teamColorRed, b.Color)
}

func TestRemovePlayerDisposesDecider(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{}, Options{})
	g.AddPlayer("p1", nil, "Alice")

	d := &trackingDecider{}
	require.NoError(t, g.SetBotLoop("p1", d))
	g.Tick()
	assert.Equal(t, 1, d.calls)

	assert.True(t, g.RemovePlayer("p1"))
	assert.True(t, d.disposed)
	assert.False(t, g.RemovePlayer("p1"))

	state := g.State()
	assert.Equal(t, 0, state.Bots.Len())
	assert.Equal(t, 0, state.BotProgress.Len())
	assert.Equal(t, 0, state.Bases.Len())
}

func TestSetBotLoopUnknownPlayer(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{}, Options{})

	d := &trackingDecider{}
	err := g.SetBotLoop("ghost", d)
	assert.ErrorIs(t, err, ErrUnknownPlayer)
	assert.True(t, d.disposed)
}

func TestReplacingDeciderDisposesOld(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{}, Options{})
	g.AddPlayer("p1", nil, "Alice")

	first := &trackingDecider{}
	second := &trackingDecider{}
	require.NoError(t, g.SetBotLoop("p1", first))
	require.NoError(t, g.SetBotLoop("p1", second))

	assert.True(t, first.disposed)
	assert.False(t, second.disposed)
}

// =============================================================================
// ORBS
// =============================================================================

func TestPickupAndDeposit(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{MapName: "Classic Arena"}, Options{})
	g.AddPlayer("p1", nil, "Alice")
	bot := g.testBot(t, "p1")

	orbs := g.world.orbs.Values()
	require.NotEmpty(t, orbs)
	bot.Position = orbs[0].Position
	before := g.world.orbs.Len()

	require.NoError(t, g.SetBotLoop("p1", fixed(`{"type":"pickup"}`)))
	g.Tick()

	assert.Equal(t, before-1, g.world.orbs.Len())
	assert.True(t, bot.HasOrb)
	assert.False(t, g.world.orbs.Has(orbs[0].ID))

	base, ok := g.world.bases.Get(baseID("p1"))
	require.True(t, ok)
	bot.Position = base.Position
	bot.Velocity = physics.Vec{}
	onField := g.world.orbs.Len()
	known := make(map[string]bool)
	for _, id := range g.world.orbs.Keys() {
		known[id] = true
	}

	require.NoError(t, g.SetBotLoop("p1", fixed(`{"type":"deposit"}`)))
	g.Tick()

	assert.False(t, bot.HasOrb)
	assert.Equal(t, 1, base.OrbsDeposited)
	require.Equal(t, onField+1, g.world.orbs.Len())

	var fresh []Orb
	g.world.orbs.Range(func(id string, o Orb) bool {
		if !known[id] {
			fresh = append(fresh, o)
		}
		return true
	})
	require.Len(t, fresh, 1)
	cell := g.gridPos(fresh[0].Position)
	assert.Contains(t, ". ", string(g.cfg.MapASCII[cell.Row][cell.Col]), "replacement orb sits on a walkable tile")

	_, won := g.Winner()
	assert.False(t, won)
}

func TestDepositNeedsOrbAndRange(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{MapName: "Classic Arena"}, Options{})
	g.AddPlayer("p1", nil, "Alice")
	bot := g.testBot(t, "p1")
	base, _ := g.world.bases.Get(baseID("p1"))

	require.NoError(t, g.SetBotLoop("p1", fixed(`{"type":"deposit"}`)))

	bot.Position = base.Position
	g.Tick()
	assert.Equal(t, 0, base.OrbsDeposited, "no orb carried")

	bot.HasOrb = true
	bot.Position = physics.Vec{X: 300, Y: 200}
	g.Tick()
	assert.Equal(t, 0, base.OrbsDeposited, "out of range")
	assert.True(t, bot.HasOrb)
}

func TestOrbsWinOnDeposit(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{
		MapName:   "Classic Arena",
		Overrides: func(c *gameconfig.GameConfig) { c.OrbsToWin = 1 },
	}, Options{})
	g.AddPlayer("p1", nil, "Alice")
	g.AddPlayer("p2", nil, "Bob")

	bot := g.testBot(t, "p1")
	base, _ := g.world.bases.Get(baseID("p1"))
	bot.Position = base.Position
	bot.HasOrb = true
	require.NoError(t, g.SetBotLoop("p1", fixed(`{"type":"deposit"}`)))

	g.Tick()

	winner, ok := g.Winner()
	require.True(t, ok)
	assert.Equal(t, "Alice", winner)
	assert.Equal(t, 1, g.TickCount())

	g.Tick()
	assert.Equal(t, 1, g.TickCount(), "ticking after a win is a no-op")
	require.NotNil(t, g.State().Winner)
	assert.Equal(t, "Alice", *g.State().Winner)
}

func TestInitialOrbsOnWalkableTiles(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeOrbsPlus, gameconfig.BuildOptions{MapName: "The Maze"}, Options{})

	assert.Equal(t, g.cfg.InitialOrbs, g.world.orbs.Len())
	cells := make(map[GridPos]bool)
	g.world.orbs.Range(func(_ string, o Orb) bool {
		cell := *g.gridPos(o.Position)
		assert.False(t, cells[cell], "one orb per tile")
		cells[cell] = true
		ch := g.cfg.MapASCII[cell.Row][cell.Col]
		assert.True(t, ch == '.' || ch == ' ', "orb on %q", ch)
		return true
	})
}

// =============================================================================
// MOVEMENT & COLLISIONS
// =============================================================================

func TestCollisionContainment(t *testing.T) {
	tests := []struct {
		name   string
		action string
	}{
		{"right", `{"type":"move","dx":1,"dy":0}`},
		{"down", `{"type":"move","dx":0,"dy":1}`},
		{"left up", `{"type":"move","dx":-1,"dy":-1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{Catalog: openCatalog(t)}, Options{})
			g.AddPlayer("p1", nil, "Alice")
			require.NoError(t, g.SetBotLoop("p1", fixed(tt.action)))

			bot := g.testBot(t, "p1")
			r := gameconfig.BotRadius
			for i := 0; i < 300; i++ {
				g.Tick()
				require.GreaterOrEqual(t, bot.Position.X, r)
				require.LessOrEqual(t, bot.Position.X, g.cfg.ArenaWidth-r)
				require.GreaterOrEqual(t, bot.Position.Y, r)
				require.LessOrEqual(t, bot.Position.Y, g.cfg.ArenaHeight-r)
			}
		})
	}
}

func TestMoveRespectsMaxSpeed(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{Catalog: openCatalog(t)}, Options{})
	g.AddPlayer("p1", nil, "Alice")
	bot := g.testBot(t, "p1")
	bot.Position = physics.Vec{X: 50, Y: 200}
	require.NoError(t, g.SetBotLoop("p1", fixed(`{"type":"move","dx":1,"dy":0}`)))

	for i := 0; i < 20; i++ {
		g.Tick()
		assert.LessOrEqual(t, physics.Magnitude(bot.Velocity), g.cfg.MaxSpeed)
	}
	assert.Greater(t, bot.Position.X, 50.0)
}

func TestMoveVectorIsNormalized(t *testing.T) {
	velocityAfterOneTick := func(action string) physics.Vec {
		g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{Catalog: openCatalog(t)}, Options{})
		g.AddPlayer("p1", nil, "Alice")
		bot := g.testBot(t, "p1")
		bot.Position = physics.Vec{X: 300, Y: 200}
		require.NoError(t, g.SetBotLoop("p1", fixed(action)))
		g.Tick()
		return bot.Velocity
	}

	unit := velocityAfterOneTick(`{"type":"move","dx":1,"dy":0}`)
	huge := velocityAfterOneTick(`{"type":"move","dx":50,"dy":0}`)
	assert.Greater(t, unit.X, 0.0)
	assert.InDelta(t, unit.X, huge.X, 1e-9)
	assert.InDelta(t, unit.Y, huge.Y, 1e-9)

	zero := velocityAfterOneTick(`{"type":"move","dx":0,"dy":0}`)
	assert.Equal(t, physics.Vec{}, zero)
}

func TestWallsStopBots(t *testing.T) {
	wall := physics.Segment{Start: physics.Vec{X: 300, Y: 0}, End: physics.Vec{X: 300, Y: 400}}
	g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{
		Catalog:   openCatalog(t),
		Overrides: func(c *gameconfig.GameConfig) { c.Walls = []physics.Segment{wall} },
	}, Options{})
	g.AddPlayer("p1", nil, "Alice")
	bot := g.testBot(t, "p1")
	bot.Position = physics.Vec{X: 250, Y: 200}
	require.NoError(t, g.SetBotLoop("p1", fixed(`{"type":"move","dx":1,"dy":0}`)))

	for i := 0; i < 100; i++ {
		g.Tick()
		require.LessOrEqual(t, bot.Position.X, 300-gameconfig.BotRadius+1e-9, "tick %d", i)
	}
}

func TestBlocksPushOut(t *testing.T) {
	block := physics.Rect{X: 280, Y: 180, Width: 40, Height: 40}
	g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{
		Catalog:   openCatalog(t),
		Overrides: func(c *gameconfig.GameConfig) { c.Blocks = []physics.Rect{block} },
	}, Options{})
	g.AddPlayer("p1", nil, "Alice")
	bot := g.testBot(t, "p1")
	bot.Position = physics.Vec{X: 200, Y: 200}
	require.NoError(t, g.SetBotLoop("p1", fixed(`{"type":"move","dx":1,"dy":0}`)))

	for i := 0; i < 100; i++ {
		g.Tick()
		require.False(t, physics.CircleOverlapsRect(bot.Position, gameconfig.BotRadius-1e-9, block), "tick %d", i)
	}
	assert.InDelta(t, 280-gameconfig.BotRadius, bot.Position.X, 1e-9)
}

func TestTurnWraps(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeTanks, gameconfig.BuildOptions{Catalog: openCatalog(t)}, Options{})
	g.AddPlayer("p1", nil, "Alice")
	bot := g.testBot(t, "p1")
	require.NoError(t, g.SetBotLoop("p1", fixed(`{"type":"turn","velocity":-1}`)))

	g.Tick()
	assert.InDelta(t, 350, bot.Rotation, 1e-9)

	require.NoError(t, g.SetBotLoop("p1", fixed(`{"type":"turn","velocity":5}`)))
	bot.Rotation = 355
	g.Tick()
	assert.InDelta(t, 5, bot.Rotation, 1e-9, "velocity clamps to 1")
}

// =============================================================================
// SANDBOXED BOTS
// =============================================================================

func TestInfiniteLoopDoesNotStallOthers(t *testing.T) {
	var failures []string
	g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{Catalog: openCatalog(t)}, Options{
		Sandbox:    sandbox.Options{Timeout: 20 * time.Millisecond},
		OnBotError: func(id string, err error) { failures = append(failures, id) },
	})
	g.AddPlayer("bad", nil, "Loopy")
	g.AddPlayer("good", nil, "Steady")

	require.NoError(t, g.SetBotCode("bad", `function loop(input, store) { while (true) {} }`))
	require.NoError(t, g.SetBotLoop("good", fixed(`{"type":"move","dx":1,"dy":0}`)))

	good := g.testBot(t, "good")
	good.Position = physics.Vec{X: 100, Y: 200}

	start := time.Now()
	tickN(g, 3)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Equal(t, 3, g.TickCount())
	assert.Greater(t, good.Position.X, 100.0)
	assert.Equal(t, []string{"bot-bad", "bot-bad", "bot-bad"}, failures)
}

func TestThrowingBotIsContained(t *testing.T) {
	var failures []error
	g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{Catalog: openCatalog(t)}, Options{
		OnBotError: func(_ string, err error) { failures = append(failures, err) },
	})
	g.AddPlayer("p1", nil, "Alice")
	require.NoError(t, g.SetBotCode("p1", `function loop() { throw new Error("boom"); }`))

	g.Tick()
	require.Len(t, failures, 1)
	var execErr *sandbox.ExecutionError
	assert.True(t, errors.As(failures[0], &execErr))
}

func TestScriptStoreRoundTrips(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{Catalog: openCatalog(t)}, Options{
		Sandbox: sandbox.Options{Timeout: time.Second},
	})
	g.AddPlayer("p1", nil, "Alice")
	require.NoError(t, g.SetBotCode("p1", `
		function loop(input, store) {
			store.count = (store.count || 0) + 1;
			store.seen = input.botPosition.x > 0;
			return { action: { type: "idle" }, store: store };
		}`))

	tickN(g, 3)

	var store struct {
		Count int  `json:"count"`
		Seen  bool `json:"seen"`
	}
	require.NoError(t, json.Unmarshal(g.stores["bot-p1"], &store))
	assert.Equal(t, 3, store.Count)
	assert.True(t, store.Seen)

	g.Reset()
	assert.JSONEq(t, `{}`, string(g.stores["bot-p1"]))
}

func TestBadCodeKeepsPreviousLoop(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{}, Options{})
	g.AddPlayer("p1", nil, "Alice")

	prev := &trackingDecider{}
	require.NoError(t, g.SetBotLoop("p1", prev))

	err := g.SetBotCode("p1", `function loop( {`)
	var compileErr *sandbox.CompileError
	require.True(t, errors.As(err, &compileErr))

	err = g.SetBotCode("p1", `function notLoop() {}`)
	var missing *sandbox.FunctionNotFoundError
	require.True(t, errors.As(err, &missing))

	g.Tick()
	assert.Equal(t, 1, prev.calls)
	assert.False(t, prev.disposed)

	assert.ErrorIs(t, g.SetBotCode("ghost", `function loop() {}`), ErrUnknownPlayer)
}

const orbCollector = `
function loop(input, store) {
	var target;
	if (!input.hasOrb) {
		if (input.orbs.length === 0) {
			return { action: { type: "idle" }, store: store };
		}
		var orb = input.orbs[0];
		if (orb.distance < 15) {
			return { action: { type: "pickup" }, store: store };
		}
		target = orb.position;
	} else {
		if (input.base.distance < 25) {
			store.deposits = (store.deposits || 0) + 1;
			return { action: { type: "deposit" }, store: store };
		}
		target = input.base.position;
	}
	var dir = pathFind(input.mapAscii, input.botPosition, target);
	if (dir.dx === 0 && dir.dy === 0) {
		dir = { dx: target.x - input.botPosition.x, dy: target.y - input.botPosition.y };
	}
	return { action: { type: "move", dx: dir.dx, dy: dir.dy }, store: store };
}`

func TestOrbCollectorScoresWithPathFind(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{MapName: "Classic Arena"}, Options{
		Sandbox: sandbox.Options{Timeout: time.Second},
	})
	g.AddPlayer("p1", nil, "Collector")
	require.NoError(t, g.SetBotCode("p1", orbCollector))

	base, _ := g.world.bases.Get(baseID("p1"))
	for i := 0; i < 1500 && base.OrbsDeposited == 0; i++ {
		g.Tick()
	}
	assert.GreaterOrEqual(t, base.OrbsDeposited, 1)
}

// =============================================================================
// INPUT
// =============================================================================

func TestBuildInput(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{MapName: "Classic Arena"}, Options{})
	g.AddPlayer("p1", nil, "Alice")
	g.AddPlayer("p2", nil, "Bob")

	bot := g.testBot(t, "p1")
	in := g.buildInput(bot, g.testProgress(t, "p1"))

	require.NotEmpty(t, in.Orbs)
	for i := 1; i < len(in.Orbs); i++ {
		assert.LessOrEqual(t, in.Orbs[i-1].Distance, in.Orbs[i].Distance)
	}
	require.NotNil(t, in.Base)
	assert.Equal(t, "base-p1", in.Base.ID)
	require.Len(t, in.Enemies, 1)
	assert.Equal(t, "bot-p2", in.Enemies[0].ID)
	assert.Empty(t, in.Tanks)
	assert.False(t, in.CanFire)
	assert.Equal(t, g.cfg.MapASCII, in.MapASCII)
	require.NotNil(t, in.GridPosition)
	assert.Nil(t, in.CurrentLap)
}

func TestBuildInputTanksAndTeams(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeTanks, gameconfig.BuildOptions{Catalog: openCatalog(t)}, Options{})
	blue, red := 0, 1
	g.AddPlayer("a", &blue, "A")
	g.AddPlayer("b", &blue, "B")
	g.AddPlayer("c", &red, "C")

	in := g.buildInput(g.testBot(t, "a"), g.testProgress(t, "a"))
	require.Len(t, in.Tanks, 1, "teammates are not opponents")
	assert.Equal(t, "bot-c", in.Tanks[0].ID)
	assert.Empty(t, in.Enemies)
	assert.True(t, in.CanFire)
	assert.Nil(t, in.Base)
}

func TestBuildInputRace(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeRace, gameconfig.BuildOptions{}, Options{})
	g.AddPlayer("p1", nil, "Racer")

	in := g.buildInput(g.testBot(t, "p1"), g.testProgress(t, "p1"))
	require.NotNil(t, in.CurrentLap)
	assert.Equal(t, 0, *in.CurrentLap)
	require.NotNil(t, in.NextCheckpoint)
	assert.Equal(t, g.cfg.Checkpoints[1], *in.NextCheckpoint)
	assert.Equal(t, g.cfg.Checkpoints, in.Checkpoints)
	assert.NotEmpty(t, in.PowerUps)
}

// =============================================================================
// TANKS
// =============================================================================

func tankDuel(t *testing.T, teamA, teamB *int) (*Game, *Bot, *Bot) {
	t.Helper()
	g := newTestGame(t, gameconfig.ModeTanks, gameconfig.BuildOptions{Catalog: openCatalog(t)}, Options{})
	g.AddPlayer("a", teamA, "Shooter")
	g.AddPlayer("b", teamB, "Target")

	a := g.testBot(t, "a")
	b := g.testBot(t, "b")
	a.Position = physics.Vec{X: 100, Y: 200}
	b.Position = physics.Vec{X: 200, Y: 200}
	a.Rotation = 0
	return g, a, b
}

func TestTankShellHits(t *testing.T) {
	g, a, b := tankDuel(t, nil, nil)
	require.NoError(t, g.SetBotLoop("a", fixed(`{"type":"fire"}`)))

	g.Tick()
	assert.Equal(t, 1, g.world.projectiles.Len())
	assert.Equal(t, 1, a.LastFiredTick)

	tickN(g, 20)
	assert.Equal(t, 100-ProjectileDamage, b.Health, "cooldown allows a single shell")
	assert.Equal(t, 0, g.world.projectiles.Len())
}

func TestTankAimedFire(t *testing.T) {
	g, a, b := tankDuel(t, nil, nil)
	a.Rotation = 180
	b.Position = physics.Vec{X: 100, Y: 300}
	require.NoError(t, g.SetBotLoop("a", once(`{"type":"fire","dx":0,"dy":1}`)))

	tickN(g, 15)
	assert.Equal(t, 100-ProjectileDamage, b.Health)
}

func TestTankRespawnAndElimination(t *testing.T) {
	g, _, b := tankDuel(t, nil, nil)
	b.Health = ProjectileDamage
	require.NoError(t, g.SetBotLoop("a", once(`{"type":"fire"}`)))

	tickN(g, 10)
	prog := g.testProgress(t, "b")
	assert.Equal(t, 0, b.Health)
	assert.Equal(t, g.cfg.Lives-1, b.Lives)
	assert.Greater(t, prog.RespawnTicks, 0)
	_, won := g.Winner()
	assert.False(t, won, "respawning bots are still in the game")

	tickN(g, g.cfg.RespawnDelay)
	assert.Equal(t, g.cfg.MaxHealth, b.Health)
	assert.Equal(t, 0, prog.RespawnTicks)

	// Last life.
	b.Lives = 1
	b.Health = ProjectileDamage
	b.Position = physics.Vec{X: 200, Y: 200}
	require.NoError(t, g.SetBotLoop("a", once(`{"type":"fire"}`)))
	g.testBot(t, "a").LastFiredTick = neverTick
	tickN(g, 10)

	winner, won := g.Winner()
	require.True(t, won)
	assert.Equal(t, "Shooter", winner)
}

func TestNoFriendlyFire(t *testing.T) {
	team := 0
	g, _, b := tankDuel(t, &team, &team)
	require.NoError(t, g.SetBotLoop("a", fixed(`{"type":"fire"}`)))

	tickN(g, 40)
	assert.Equal(t, 100, b.Health)
	assert.Equal(t, 0, g.world.projectiles.Len(), "shell flew past and left the arena")
}

func TestShellsStopAtWalls(t *testing.T) {
	g, _, b := tankDuel(t, nil, nil)
	cfg := *g.cfg
	cfg.Walls = []physics.Segment{{Start: physics.Vec{X: 150, Y: 0}, End: physics.Vec{X: 150, Y: 400}}}
	g.cfg = &cfg
	require.NoError(t, g.SetBotLoop("a", once(`{"type":"fire"}`)))

	tickN(g, 20)
	assert.Equal(t, 100, b.Health)
	assert.Equal(t, 0, g.world.projectiles.Len())
}

// =============================================================================
// ENDLESS RUNNER
// =============================================================================

func TestFlap(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeFlappy, gameconfig.BuildOptions{}, Options{})
	g.AddPlayer("p1", nil, "Birdie")
	bot := g.testBot(t, "p1")
	startY := bot.Position.Y
	require.NoError(t, g.SetBotLoop("p1", fixed(`{"type":"flap"}`)))

	g.Tick()
	assert.InDelta(t, -g.cfg.FlapStrength+g.cfg.Gravity, bot.Velocity.Y, 1e-9)
	assert.InDelta(t, startY-g.cfg.FlapStrength+g.cfg.Gravity, bot.Position.Y, 1e-9)
	assert.Equal(t, 1, g.testProgress(t, "p1").LastFlapTick)

	g.Tick()
	assert.InDelta(t, -g.cfg.FlapStrength+2*g.cfg.Gravity, bot.Velocity.Y, 1e-9, "flap is on cooldown")
}

func TestPipesSpawnAndScroll(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeFlappy, gameconfig.BuildOptions{}, Options{})

	tickN(g, g.cfg.PipeFrequency)
	pipes := g.State().Pipes
	require.Len(t, pipes, 1)
	assert.InDelta(t, g.cfg.ArenaWidth-g.cfg.InitialSpeed, pipes[0].X, 1e-9)

	tickN(g, 100-g.cfg.PipeFrequency)
	assert.InDelta(t, g.cfg.InitialSpeed+g.cfg.SpeedIncrement, g.State().Speed, 1e-9)
}

func TestRunnerGroundCostsLife(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeFlappy, gameconfig.BuildOptions{}, Options{})
	g.AddPlayer("p1", nil, "Birdie")
	g.AddPlayer("p2", nil, "Robin")

	bot := g.testBot(t, "p1")
	bot.Position.Y = g.cfg.ArenaHeight - 1
	g.Tick()
	assert.Equal(t, g.cfg.Lives-1, bot.Lives)
	assert.Equal(t, g.cfg.ArenaHeight/2, bot.Position.Y)

	bot.Lives = 1
	bot.Position.Y = g.cfg.ArenaHeight - 1
	g.Tick()
	winner, won := g.Winner()
	require.True(t, won)
	assert.Equal(t, "Robin", winner)
}

func TestSurvivalEveryoneOut(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeFlappy, gameconfig.BuildOptions{}, Options{})
	g.Tick()
	_, won := g.Winner()
	assert.False(t, won, "no winner without bots")

	g.AddPlayer("p1", nil, "Birdie")
	bot := g.testBot(t, "p1")
	bot.Lives = 1
	bot.Position.Y = g.cfg.ArenaHeight - 1
	g.Tick()

	winner, won := g.Winner()
	require.True(t, won)
	assert.Equal(t, NoWinner, winner)
}

// =============================================================================
// RACE
// =============================================================================

func TestLapsWin(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeRace, gameconfig.BuildOptions{}, Options{})
	g.AddPlayer("p1", nil, "Racer")
	g.AddPlayer("p2", nil, "Other")

	g.testProgress(t, "p1").CurrentLap = g.cfg.LapsToWin
	g.Tick()

	winner, ok := g.Winner()
	require.True(t, ok)
	assert.Equal(t, "Racer", winner)
}

func TestCheckpointsAdvanceAndWrap(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeRace, gameconfig.BuildOptions{}, Options{})
	g.AddPlayer("p1", nil, "Racer")
	bot := g.testBot(t, "p1")
	prog := g.testProgress(t, "p1")
	cps := g.cfg.Checkpoints
	require.GreaterOrEqual(t, len(cps), 2)

	for i := 1; i <= len(cps); i++ {
		idx := i % len(cps)
		bot.Position = cps[idx]
		bot.Velocity = physics.Vec{}
		g.Tick()
		assert.Equal(t, (idx+1)%len(cps), prog.NextCheckpoint)
	}
	assert.Equal(t, 1, prog.CurrentLap)
}

func TestSpeedPowerUp(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeRace, gameconfig.BuildOptions{
		Overrides: func(c *gameconfig.GameConfig) { c.PowerUpRespawn = 10 },
	}, Options{})
	g.AddPlayer("p1", nil, "Racer")
	bot := g.testBot(t, "p1")

	var speed PowerUp
	for _, p := range g.world.powerUps.Values() {
		if p.Type == gameconfig.PowerUpSpeed {
			speed = p
		}
	}
	require.NotEmpty(t, speed.ID)

	bot.Position = speed.Position
	g.Tick()
	assert.Equal(t, powerUpTicks, g.testProgress(t, "p1").BoostTicks)
	assert.False(t, g.world.powerUps.Has(speed.ID))

	bot.Position = g.cfg.Checkpoints[0]
	tickN(g, 9)
	respawned := false
	g.world.powerUps.Range(func(_ string, p PowerUp) bool {
		if p.Type == gameconfig.PowerUpSpeed && p.Position == speed.Position {
			respawned = true
		}
		return true
	})
	assert.True(t, respawned)
}

func TestStarStunsNeighbours(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeRace, gameconfig.BuildOptions{}, Options{})
	g.AddPlayer("star", nil, "Star")
	g.AddPlayer("victim", nil, "Victim")

	star := g.testBot(t, "star")
	victim := g.testBot(t, "victim")
	g.testProgress(t, "star").StarTicks = 100
	victimProg := g.testProgress(t, "victim")
	victimProg.BoostTicks = 60

	victim.Position = physics.Add(star.Position, physics.Vec{X: -5})
	victim.Velocity = physics.Vec{X: 3}
	g.Tick()

	assert.Equal(t, physics.Vec{}, victim.Velocity)
	assert.Equal(t, 60-stunBoostPenalty-1, victimProg.BoostTicks)
}

// =============================================================================
// RESET & STATE
// =============================================================================

func TestReset(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{
		MapName:   "Classic Arena",
		Overrides: func(c *gameconfig.GameConfig) { c.OrbsToWin = 1 },
	}, Options{})
	g.AddPlayer("p1", nil, "Alice")
	bot := g.testBot(t, "p1")
	base, _ := g.world.bases.Get(baseID("p1"))
	bot.Position = base.Position
	bot.HasOrb = true
	d := &trackingDecider{}
	require.NoError(t, g.SetBotLoop("p1", fixed(`{"type":"deposit"}`)))
	g.Tick()
	_, won := g.Winner()
	require.True(t, won)

	require.NoError(t, g.SetBotLoop("p1", d))
	g.Reset()

	state := g.State()
	assert.Equal(t, 0, state.TickCount)
	assert.Nil(t, state.Winner)
	assert.Equal(t, g.cfg.InitialOrbs, state.Orbs.Len())
	assert.Equal(t, len(g.cfg.PowerUpSpawns), state.PowerUps.Len())
	assert.Equal(t, 0, state.Projectiles.Len())
	assert.Empty(t, state.Pipes)

	rb, ok := state.Bots.Get("bot-p1")
	require.True(t, ok)
	assert.False(t, rb.HasOrb)
	assert.Equal(t, physics.Vec{}, rb.Velocity)
	assert.Equal(t, g.cfg.MaxHealth, rb.Health)
	rbase, _ := state.Bases.Get("base-p1")
	assert.Equal(t, 0, rbase.OrbsDeposited)
	assert.Equal(t, base.Position, rbase.Position)

	g.Tick()
	assert.Equal(t, 1, d.calls, "decision functions survive reset")
	assert.False(t, d.disposed)
}

func TestStateIsACopy(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{}, Options{})
	team := 1
	g.AddPlayer("p1", &team, "Alice")

	state := g.State()
	b, _ := state.Bots.Get("bot-p1")
	b.Position = physics.Vec{X: -1, Y: -1}
	*b.Team = 7
	state.Bots.Set("bot-p1", b)
	state.Bots.Delete("bot-p1")
	state.Orbs.Clear()

	fresh := g.State()
	again, ok := fresh.Bots.Get("bot-p1")
	require.True(t, ok)
	assert.NotEqual(t, physics.Vec{X: -1, Y: -1}, again.Position)
	assert.Equal(t, 1, *again.Team)
	assert.Equal(t, g.cfg.InitialOrbs, fresh.Orbs.Len())
}

func TestStateJSON(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{MapName: "Classic Arena"}, Options{})
	g.AddPlayer("p1", nil, "Alice")
	g.AddPlayer("p2", nil, "Bob")

	data, err := json.Marshal(g.State())
	require.NoError(t, err)

	var back GameState
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []string{"bot-p1", "bot-p2"}, back.Bots.Keys())
	assert.Equal(t, g.State().Orbs.Keys(), back.Orbs.Keys())
	assert.Equal(t, 20, back.OrbsToWin)
}

func TestStandings(t *testing.T) {
	g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{MapName: "Classic Arena"}, Options{})
	g.AddPlayer("p1", nil, "Alice")
	g.AddPlayer("p2", nil, "Bob")
	g.AddPlayer("p3", nil, "Cleo")

	base, _ := g.world.bases.Get(baseID("p2"))
	base.OrbsDeposited = 4

	rows := g.Standings()
	require.Len(t, rows, 3)
	assert.Equal(t, "Bob", rows[0].Nickname)
	assert.Equal(t, 1, rows[0].Rank)
	assert.Equal(t, 4, rows[0].Orbs)
	assert.Equal(t, "Alice", rows[1].Nickname, "ties keep join order")
	assert.Equal(t, "Cleo", rows[2].Nickname)
}

func TestEventsRecorded(t *testing.T) {
	log := NewEventLog()
	require.NoError(t, log.Start(""))
	t.Cleanup(log.Stop)

	g := newTestGame(t, gameconfig.ModeOrbs, gameconfig.BuildOptions{
		MapName:   "Classic Arena",
		Overrides: func(c *gameconfig.GameConfig) { c.OrbsToWin = 1 },
	}, Options{ID: "g1", Events: log})
	g.AddPlayer("p1", nil, "Alice")
	bot := g.testBot(t, "p1")
	base, _ := g.world.bases.Get(baseID("p1"))
	bot.Position = base.Position
	bot.HasOrb = true
	require.NoError(t, g.SetBotLoop("p1", fixed(`{"type":"deposit"}`)))
	g.Tick()

	var names []string
	for _, ev := range log.Recent("g1", 10) {
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{"join", "code", "deposit", "win"}, names)
}
