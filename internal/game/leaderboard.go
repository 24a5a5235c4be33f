package game

import (
	"sort"

	"bot-arena/internal/gameconfig"
)

// Standing is one bot's row on the scoreboard.
type Standing struct {
	Rank     int     `json:"rank"`
	BotID    string  `json:"botId"`
	PlayerID string  `json:"playerId"`
	Nickname string  `json:"nickname"`
	Team     *int    `json:"team,omitempty"`
	Score    float64 `json:"score"`
	Lap      int     `json:"lap"`
	Lives    int     `json:"lives"`
	Health   int     `json:"health"`
	Orbs     int     `json:"orbs"`
}

// Standings ranks the bots by the measure the win condition uses:
// deposited orbs, race progress, remaining health and lives, or lives.
// Ties keep join order.
func (g *Game) Standings() []Standing {
	w := g.world
	out := make([]Standing, 0, w.bots.Len())

	w.bots.Range(func(id string, b *Bot) bool {
		s := Standing{
			BotID:    id,
			PlayerID: b.PlayerID,
			Nickname: b.Nickname,
			Team:     copyTeam(b.Team),
			Lives:    b.Lives,
			Health:   b.Health,
		}
		if base, ok := w.bases.Get(baseID(b.PlayerID)); ok {
			s.Orbs = base.OrbsDeposited
		}
		prog, _ := w.progress.Get(id)
		if prog != nil {
			s.Lap = prog.CurrentLap
		}
		s.Score = g.score(b, prog, s.Orbs)
		out = append(out, s)
		return true
	})

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func (g *Game) score(b *Bot, prog *Progress, orbs int) float64 {
	switch g.cfg.WinCondition.Type {
	case gameconfig.WinOrbs:
		return float64(orbs)
	case gameconfig.WinLaps:
		n := len(g.cfg.Checkpoints)
		if prog == nil || n == 0 {
			return 0
		}
		// Checkpoints passed this lap, with the start line counting last.
		passed := (prog.NextCheckpoint - 1 + n) % n
		return float64(prog.CurrentLap*n + passed)
	case gameconfig.WinElimination:
		return float64(b.Lives*g.cfg.MaxHealth + b.Health)
	default:
		return float64(b.Lives)
	}
}
