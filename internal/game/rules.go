package game

import (
	"bot-arena/internal/gameconfig"
)

// NoWinner is the winner name when every bot is out at once.
const NoWinner = "No one"

// checkWin evaluates the win condition and records the first winner.
func (g *Game) checkWin() {
	winner := g.findWinner()
	if winner == "" {
		return
	}
	g.world.winner = winner
	g.emit(EventTypeWin, "", WinPayload{Winner: winner})
	g.log.Info().Str("winner", winner).Int("tick", g.world.tickCount).Msg("🏆 game won")
}

func (g *Game) findWinner() string {
	w := g.world
	cond := g.cfg.WinCondition

	switch cond.Type {
	case gameconfig.WinOrbs:
		winner := ""
		w.bases.Range(func(_ string, base *Base) bool {
			if base.OrbsDeposited < cond.Value {
				return true
			}
			winner = base.PlayerID
			if b, ok := w.bots.Get(botID(base.PlayerID)); ok {
				winner = b.Nickname
			}
			return false
		})
		return winner

	case gameconfig.WinElimination:
		// A lone bot has nobody to eliminate.
		if w.bots.Len() < 2 {
			return ""
		}
		return g.lastStanding(func(b *Bot) bool {
			if b.Health > 0 {
				return true
			}
			p, ok := w.progress.Get(b.ID)
			return ok && p.RespawnTicks > 0
		})

	case gameconfig.WinSurvival:
		if w.bots.Len() == 0 {
			return ""
		}
		alive := 0
		last := ""
		w.bots.Range(func(_ string, b *Bot) bool {
			if b.Lives > 0 {
				alive++
				last = b.Nickname
			}
			return true
		})
		switch {
		case alive == 0:
			return NoWinner
		case alive == 1 && w.bots.Len() >= 2:
			return last
		}
		return ""

	case gameconfig.WinLaps:
		winner := ""
		w.bots.Range(func(id string, b *Bot) bool {
			if p, ok := w.progress.Get(id); ok && p.CurrentLap >= cond.Value {
				winner = b.Nickname
				return false
			}
			return true
		})
		return winner
	}
	return ""
}

// lastStanding returns the only bot for which alive holds, NoWinner when
// none does, and "" while two or more remain.
func (g *Game) lastStanding(alive func(*Bot) bool) string {
	count := 0
	last := ""
	g.world.bots.Range(func(_ string, b *Bot) bool {
		if alive(b) {
			count++
			last = b.Nickname
		}
		return count < 2
	})
	switch count {
	case 0:
		return NoWinner
	case 1:
		return last
	}
	return ""
}
