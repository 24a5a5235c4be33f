package gameconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bot-arena/internal/physics"
)

func TestParseMapLegend(t *testing.T) {
	parsed := ParseMap([]string{
		"B.-\r",
		"",
		"|HP",
		"2.1",
		".0+",
		"..|",
	})

	assert.Equal(t, []physics.Vec{{X: 10, Y: 10}}, parsed.Bases)
	assert.Equal(t, []physics.Vec{{X: 50, Y: 30}}, parsed.PowerUps)
	assert.Equal(t, []physics.Rect{{X: 20, Y: 20, Width: 20, Height: 20}}, parsed.Blocks)
	assert.Equal(t, []physics.Vec{{X: 30, Y: 70}, {X: 50, Y: 50}, {X: 10, Y: 50}}, parsed.Checkpoints,
		"checkpoints sorted by glyph rank")

	require.Len(t, parsed.Walls, 4)
	assert.Equal(t, physics.Segment{Start: physics.Vec{X: 40, Y: 10}, End: physics.Vec{X: 60, Y: 10}}, parsed.Walls[0])
	assert.Equal(t, physics.Segment{Start: physics.Vec{X: 10, Y: 20}, End: physics.Vec{X: 10, Y: 40}}, parsed.Walls[1])
	assert.Equal(t, physics.Segment{Start: physics.Vec{X: 50, Y: 70}, End: physics.Vec{X: 50, Y: 90}}, parsed.Walls[2],
		"connector joins the wall below it")
	assert.Equal(t, physics.Segment{Start: physics.Vec{X: 50, Y: 80}, End: physics.Vec{X: 50, Y: 100}}, parsed.Walls[3])
}

func TestParseMapConnectorJoinsAllNeighbours(t *testing.T) {
	parsed := ParseMap([]string{
		".|.",
		"-+H",
		"...",
	})

	// | and - produce one segment each, the connector one per wall neighbour.
	assert.Len(t, parsed.Walls, 5)
	assert.Len(t, parsed.Blocks, 1)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"orbs", ModeOrbs},
		{" Tanks ", ModeTanks},
		{"RaceGame", ModeRace},
		{"orbgameplus", ModeOrbsPlus},
		{"flappy", ModeFlappy},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseMode("chess")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	classic, ok := c.Lookup("Classic Arena")
	require.True(t, ok)
	assert.Len(t, classic.ASCII, 20)
	assert.True(t, classic.Supports(ModeTanks))
	assert.False(t, classic.Supports(ModeRace))

	_, ok = c.Lookup("classic arena")
	assert.True(t, ok, "lookup falls back to case-insensitive")

	for _, m := range c.ForMode(ModeRace) {
		assert.NotEmpty(t, ParseMap(m.ASCII).Checkpoints, m.Name)
	}
	assert.NotEmpty(t, c.ForMode(ModeRace))
	assert.Empty(t, c.ForMode(ModeFlappy))
}

func TestCatalogPickIsDeterministic(t *testing.T) {
	c := Default()
	a, ok := c.Pick(ModeOrbs, 42)
	require.True(t, ok)
	b, _ := c.Pick(ModeOrbs, 42)
	assert.Equal(t, a.Name, b.Name)

	neg, ok := c.Pick(ModeOrbs, -7)
	assert.True(t, ok)
	assert.NotEmpty(t, neg.Name)
}

func TestCatalogLoadDir(t *testing.T) {
	dir := t.TempDir()
	extra := `
maps:
  - name: Tiny
    description: two by two
    modes: [orbs]
    ascii: ['B.', '.B']
  - name: Classic Arena
    description: replaced
    modes: [tanks]
    ascii: ['....']
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.yaml"), []byte(extra), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	c := Default().Clone()
	require.NoError(t, c.LoadDir(dir))

	tiny, ok := c.Lookup("Tiny")
	require.True(t, ok)
	assert.Equal(t, []string{"B.", ".B"}, tiny.ASCII)

	classic, _ := c.Lookup("Classic Arena")
	assert.Equal(t, "replaced", classic.Description)

	original, _ := Default().Lookup("Classic Arena")
	assert.NotEqual(t, "replaced", original.Description, "clone leaves the default catalog alone")
}

func TestCatalogRejectsBadMaps(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no name", "maps: [{modes: [orbs], ascii: ['..']}]"},
		{"no rows", "maps: [{name: x, modes: [orbs], ascii: []}]"},
		{"unknown mode", "maps: [{name: x, modes: [golf], ascii: ['..']}]"},
		{"not yaml", "maps: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestBuildOrbs(t *testing.T) {
	cfg, err := Build(ModeOrbs, BuildOptions{MapName: "Classic Arena"})
	require.NoError(t, err)

	assert.Equal(t, AllowedActions{Move: true, Pickup: true, Deposit: true}, cfg.AllowedActions)
	assert.Equal(t, WinCondition{Type: WinOrbs, Value: 20}, cfg.WinCondition)
	assert.Equal(t, 10, cfg.InitialOrbs)
	assert.Equal(t, 600.0, cfg.ArenaWidth)
	assert.Equal(t, 400.0, cfg.ArenaHeight)
	assert.Equal(t, "Classic Arena", cfg.MapName)
	assert.Len(t, cfg.BaseSpawns, 4)

	require.Len(t, cfg.PowerUpSpawns, 5)
	assert.Equal(t, PowerUpSpeed, cfg.PowerUpSpawns[0].Type)
	assert.Equal(t, PowerUpStar, cfg.PowerUpSpawns[1].Type)
}

func TestBuildOverridesMoveWinThreshold(t *testing.T) {
	cfg, err := Build(ModeOrbsPlus, BuildOptions{
		MapName:   "Crossfire",
		Overrides: func(c *GameConfig) { c.OrbsToWin = 1 },
	})
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.InitialOrbs)
	assert.Equal(t, 1, cfg.WinCondition.Value)
	assert.NotEmpty(t, cfg.Blocks)
}

func TestBuildModes(t *testing.T) {
	tests := []struct {
		mode    Mode
		actions AllowedActions
		win     WinType
	}{
		{ModeTanks, AllowedActions{Move: true, Turn: true, Fire: true}, WinElimination},
		{ModeFlappy, AllowedActions{Flap: true}, WinSurvival},
		{ModeRace, AllowedActions{Move: true, Turn: true}, WinLaps},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			cfg, err := Build(tt.mode, BuildOptions{Seed: 3})
			require.NoError(t, err)
			assert.Equal(t, tt.actions, cfg.AllowedActions)
			assert.Equal(t, tt.win, cfg.WinCondition.Type)
			assert.Equal(t, int64(3), cfg.Seed)
		})
	}
}

func TestBuildRaceFallsBackToCircuit(t *testing.T) {
	empty, err := ParseCatalog([]byte("maps: []"))
	require.NoError(t, err)

	cfg, err := Build(ModeRace, BuildOptions{Catalog: empty})
	require.NoError(t, err)

	assert.Equal(t, 10.0, cfg.MaxSpeed)
	assert.Equal(t, 6.0, cfg.TurnRate)
	assert.Equal(t, physics.Vec{X: 100, Y: 200}, cfg.Checkpoints[0])
	assert.Len(t, cfg.Checkpoints, 4)
	assert.Len(t, cfg.Walls, 4)
	assert.Len(t, cfg.PowerUpSpawns, 2)
	assert.Equal(t, WinCondition{Type: WinLaps, Value: 3}, cfg.WinCondition)
}

func TestBuildRaceUsesMapCheckpoints(t *testing.T) {
	cfg, err := Build(ModeRace, BuildOptions{MapName: "Ring Road"})
	require.NoError(t, err)
	require.Len(t, cfg.Checkpoints, 4)
	assert.Equal(t, physics.Vec{X: 50, Y: 190}, cfg.Checkpoints[0])
	assert.NotEmpty(t, cfg.MapASCII)
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(Mode("golf"), BuildOptions{})
	assert.ErrorIs(t, err, ErrUnknownMode)

	_, err = Build(ModeOrbs, BuildOptions{MapName: "Nowhere"})
	assert.ErrorIs(t, err, ErrUnknownMap)

	_, err = Build(ModeRace, BuildOptions{MapName: "Classic Arena"})
	assert.True(t, errors.Is(err, ErrUnknownMap), "map exists but not for race")

	_, err = Build(ModeFlappy, BuildOptions{MapName: "Classic Arena"})
	assert.ErrorIs(t, err, ErrUnknownMap)

	_, err = Build(ModeOrbs, BuildOptions{Overrides: func(c *GameConfig) { c.TickRate = 0 }})
	assert.Error(t, err)
}
