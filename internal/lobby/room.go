package lobby

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bot-arena/internal/game"
	"bot-arena/internal/gameconfig"
	"bot-arena/internal/sandbox"
	"bot-arena/internal/wire"
)

// Room drives one game: it owns the engine, the roster and the tick loop,
// and serializes every access to the engine.
type Room struct {
	id        string
	mode      gameconfig.Mode
	teamMode  TeamMode
	createdAt time.Time
	cfg       *gameconfig.GameConfig

	tickRate       int
	broadcastEvery int
	metrics        Metrics
	publisher      Publisher
	log            zerolog.Logger

	mu      sync.Mutex
	game    *game.Game
	players *game.Keyed[*Player]
	status  Status

	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// endedPayload is published once when a round is won.
type endedPayload struct {
	Winner string          `json:"winner"`
	State  json.RawMessage `json:"state"`
}

func newRoom(id string, cfg *gameconfig.GameConfig, teamMode TeamMode, opts Options) *Room {
	tickRate := cfg.TickRate
	if opts.TickRate > 0 {
		tickRate = opts.TickRate
	}
	log := opts.Logger.With().Str("game", id).Logger()
	metrics := opts.Metrics

	r := &Room{
		id:             id,
		mode:           cfg.Mode,
		teamMode:       teamMode,
		createdAt:      time.Now().UTC(),
		cfg:            cfg,
		tickRate:       tickRate,
		broadcastEvery: opts.BroadcastEvery,
		metrics:        metrics,
		publisher:      opts.Publisher,
		log:            log,
		players:        game.NewKeyed[*Player](),
		status:         StatusWaiting,
	}
	r.game = game.New(cfg, game.Options{
		ID:      id,
		Logger:  opts.Logger,
		Sandbox: opts.Sandbox,
		Events:  opts.Events,
		OnBotError: func(_ string, err error) {
			metrics.SandboxFailure(sandbox.Kind(err))
		},
	})
	return r
}

// ID returns the room id.
func (r *Room) ID() string { return r.id }

// Status returns the lifecycle stage.
func (r *Room) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Info returns the listing view.
func (r *Room) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := Info{
		ID:           r.id,
		Mode:         r.mode,
		MapName:      r.cfg.MapName,
		TeamMode:     r.teamMode,
		Status:       r.status,
		MaxPlayers:   r.cfg.MaxPlayers,
		TickRate:     r.tickRate,
		TickCount:    r.game.TickCount(),
		WinCondition: r.cfg.WinCondition,
		Players:      make([]Player, 0, r.players.Len()),
		CreatedAt:    r.createdAt,
	}
	if w, ok := r.game.Winner(); ok {
		info.Winner = &w
	}
	r.players.Range(func(_ string, p *Player) bool {
		c := *p
		if p.Team != nil {
			t := *p.Team
			c.Team = &t
		}
		info.Players = append(info.Players, c)
		return true
	})
	return info
}

// Config returns the game configuration. It must not be modified.
func (r *Room) Config() *gameconfig.GameConfig { return r.cfg }

// State returns a snapshot of the game.
func (r *Room) State() game.GameState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.game.State()
}

// Standings returns the current ranking.
func (r *Room) Standings() []game.Standing {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.game.Standings()
}

// PlayerCount returns the roster size.
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.players.Len()
}

// =============================================================================
// ROSTER
// =============================================================================

func (r *Room) join(playerID, nickname string) (Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.players.Get(playerID); ok {
		return *p, nil
	}
	if r.status == StatusInGame {
		return Player{}, ErrGameInProgress
	}
	if r.players.Len() >= r.cfg.MaxPlayers {
		return Player{}, ErrGameFull
	}

	team := r.assignTeam()
	bot := r.game.AddPlayer(playerID, team, nickname)
	p := &Player{
		ID:       playerID,
		Nickname: bot.Nickname,
		Team:     team,
		BotID:    bot.ID,
	}
	r.players.Set(playerID, p)

	r.log.Info().Str("player", playerID).Interface("team", team).Msg("👤 player joined")
	return *p, nil
}

// assignTeam balances teams 0 and 1 by head count; ties go to team 0.
func (r *Room) assignTeam() *int {
	if r.teamMode != TeamModeTeams {
		return nil
	}
	var counts [2]int
	r.players.Range(func(_ string, p *Player) bool {
		if p.Team != nil && *p.Team >= 0 && *p.Team < len(counts) {
			counts[*p.Team]++
		}
		return true
	})
	team := 0
	if counts[1] < counts[0] {
		team = 1
	}
	return &team
}

// leave removes playerID and returns the remaining roster size.
func (r *Room) leave(playerID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.players.Delete(playerID) {
		return r.players.Len(), ErrPlayerNotFound
	}
	r.game.RemovePlayer(playerID)
	r.log.Info().Str("player", playerID).Msg("👋 player left")
	return r.players.Len(), nil
}

func (r *Room) hasPlayer(playerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.players.Has(playerID)
}

// setDecider installs a compiled decider. d is disposed if the player is
// gone by now.
func (r *Room) setDecider(playerID string, d game.Decider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players.Get(playerID)
	if !ok {
		if dd, ok := d.(interface{ Dispose() }); ok {
			dd.Dispose()
		}
		return ErrPlayerNotFound
	}
	if err := r.game.SetBotLoop(playerID, d); err != nil {
		return err
	}
	p.HasCode = true
	return nil
}

// =============================================================================
// LOOP
// =============================================================================

// start begins the tick loop. A finished round is reset first.
func (r *Room) start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrGameInProgress
	}
	if r.status == StatusFinished {
		r.game.Reset()
	}
	r.running = true
	r.status = StatusInGame
	r.stopChan = make(chan struct{})
	r.done = make(chan struct{})
	stop, done := r.stopChan, r.done
	r.mu.Unlock()

	ticker := time.NewTicker(time.Second / time.Duration(r.tickRate))
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !r.step() {
					return
				}
			case <-stop:
				return
			}
		}
	}()

	r.log.Info().Int("tps", r.tickRate).Msg("🎮 game started")
	r.publisher.Publish(r.id, EventStarted, nil)
	return nil
}

// step runs one tick and reports whether the loop should continue.
func (r *Room) step() bool {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return false
	}

	began := time.Now()
	r.game.Tick()
	r.metrics.ObserveTick(time.Since(began))

	winner, won := r.game.Winner()
	var frame []byte
	if won || r.game.TickCount()%r.broadcastEvery == 0 {
		frame = r.encodeLocked()
	}
	if won {
		r.running = false
		r.status = StatusFinished
	}
	r.mu.Unlock()

	if frame != nil {
		r.publisher.Publish(r.id, EventState, json.RawMessage(frame))
	}
	if won {
		r.log.Info().Str("winner", winner).Msg("🏁 game finished")
		r.publisher.Publish(r.id, EventEnded, endedPayload{Winner: winner, State: frame})
		return false
	}
	return true
}

// stop halts the loop and waits for it to exit. It reports whether the loop
// was running.
func (r *Room) stop() bool {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return false
	}
	r.running = false
	r.status = StatusFinished
	close(r.stopChan)
	done := r.done
	r.mu.Unlock()

	<-done
	r.log.Info().Msg("🛑 game stopped")
	r.publisher.Publish(r.id, EventStopped, nil)
	return true
}

func (r *Room) reset() {
	r.stop()

	r.mu.Lock()
	r.game.Reset()
	r.status = StatusWaiting
	frame := r.encodeLocked()
	r.mu.Unlock()

	r.log.Info().Msg("🔄 game reset")
	if frame != nil {
		r.publisher.Publish(r.id, EventReset, json.RawMessage(frame))
	}
}

func (r *Room) close() {
	r.stop()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.game.Dispose()
}

func (r *Room) encodeLocked() []byte {
	data, err := wire.EncodeState(r.game.State())
	if err != nil {
		r.log.Error().Err(err).Msg("❌ state encode failed")
		return nil
	}
	return data
}
