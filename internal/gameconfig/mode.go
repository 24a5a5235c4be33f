package gameconfig

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMode is returned for a mode name that is not registered.
var ErrUnknownMode = errors.New("unknown game mode")

// Mode identifies a game mode.
type Mode string

const (
	ModeOrbs     Mode = "orbs"
	ModeOrbsPlus Mode = "orbs-plus"
	ModeTanks    Mode = "tanks"
	ModeFlappy   Mode = "flappy"
	ModeRace     Mode = "race"
)

// ModeInfo describes a mode for listings.
type ModeInfo struct {
	Mode          Mode   `json:"mode"`
	DisplayName   string `json:"displayName"`
	Description   string `json:"description"`
	SupportsTeams bool   `json:"supportsTeams"`
	UsesMaps      bool   `json:"usesMaps"`
}

var modes = []ModeInfo{
	{ModeOrbs, "Orb Collection", "Collect orbs and deposit them at your base", true, true},
	{ModeOrbsPlus, "Orb Collection+", "Orb collection with a denser orb field", true, true},
	{ModeTanks, "Tank Combat", "Turn, drive and shoot; last tank standing wins", true, true},
	{ModeFlappy, "Endless Runner", "Flap through the pipes and outlive everyone", false, false},
	{ModeRace, "Race", "Drive through the checkpoints in order to finish laps", false, true},
}

// legacy spellings accepted by ParseMode
var modeAliases = map[string]Mode{
	"orbgame":     ModeOrbs,
	"orbgameplus": ModeOrbsPlus,
	"tankcombat":  ModeTanks,
	"flappygame":  ModeFlappy,
	"racegame":    ModeRace,
}

// Modes lists every registered mode in display order.
func Modes() []ModeInfo {
	out := make([]ModeInfo, len(modes))
	copy(out, modes)
	return out
}

// Info returns the listing entry for m.
func (m Mode) Info() (ModeInfo, bool) {
	for _, info := range modes {
		if info.Mode == m {
			return info, true
		}
	}
	return ModeInfo{}, false
}

// Valid reports whether m is registered.
func (m Mode) Valid() bool {
	_, ok := m.Info()
	return ok
}

// ParseMode resolves a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if m := Mode(key); m.Valid() {
		return m, nil
	}
	if m, ok := modeAliases[key]; ok {
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}
