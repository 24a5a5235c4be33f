// Package lobby owns the set of running games. A Registry is created by the
// caller and passed to whatever needs it; nothing here is process-global, so
// independent registries can live side by side.
package lobby

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"bot-arena/internal/game"
	"bot-arena/internal/gameconfig"
)

// gameIDLength is the number of base-36 characters in a game id.
const gameIDLength = 6

// Registry tracks rooms by id.
type Registry struct {
	opts Options
	log  zerolog.Logger

	mu     sync.RWMutex
	rooms  map[string]*Room
	rng    *rand.Rand
	closed bool

	codeLimiters sync.Map // gameID/playerID -> *rate.Limiter
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	opts = opts.withDefaults()
	return &Registry{
		opts:  opts,
		log:   opts.Logger,
		rooms: make(map[string]*Room),
		rng:   rand.New(rand.NewSource(opts.Seed())),
	}
}

// Create registers a new waiting room.
func (r *Registry) Create(mode gameconfig.Mode, mapName string, teamMode TeamMode) (*Room, error) {
	if teamMode == "" {
		teamMode = TeamModeFFA
	}
	if teamMode != TeamModeFFA && teamMode != TeamModeTeams {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTeamMode, teamMode)
	}
	if info, ok := mode.Info(); ok && teamMode == TeamModeTeams && !info.SupportsTeams {
		return nil, fmt.Errorf("%w: mode %s has no teams", ErrUnknownTeamMode, mode)
	}

	cfg, err := gameconfig.Build(mode, gameconfig.BuildOptions{
		MapName:   mapName,
		Catalog:   r.opts.Catalog,
		Seed:      r.opts.Seed(),
		Overrides: r.opts.Overrides,
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if len(r.rooms) >= r.opts.MaxGames {
		r.mu.Unlock()
		return nil, ErrTooManyGames
	}
	id := r.newIDLocked()
	room := newRoom(id, cfg, teamMode, r.opts)
	r.rooms[id] = room
	count := len(r.rooms)
	r.mu.Unlock()

	r.opts.Metrics.SetActiveGames(count)
	r.log.Info().
		Str("game", id).
		Str("mode", string(mode)).
		Str("map", cfg.MapName).
		Str("teams", string(teamMode)).
		Msg("🆕 game created")
	return room, nil
}

func (r *Registry) newIDLocked() string {
	for {
		id := strings.ToUpper(strconv.FormatInt(r.rng.Int63(), 36))
		if len(id) > gameIDLength {
			id = id[:gameIDLength]
		}
		if _, taken := r.rooms[id]; !taken {
			return id
		}
	}
}

// Get returns the room with id.
func (r *Registry) Get(id string) (*Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, id)
	}
	return room, nil
}

// List returns every room, oldest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(rooms))
	for _, room := range rooms {
		infos = append(infos, room.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.Before(infos[j].CreatedAt)
		}
		return infos[i].ID < infos[j].ID
	})
	return infos
}

// Count returns the number of rooms.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Join adds playerID to a waiting room. Joining twice returns the existing
// membership.
func (r *Registry) Join(gameID, playerID, nickname string) (Player, error) {
	room, err := r.Get(gameID)
	if err != nil {
		return Player{}, err
	}
	p, err := room.join(playerID, nickname)
	if err != nil {
		return Player{}, err
	}
	r.updateBots()
	return p, nil
}

// Leave removes playerID. A room left empty is removed.
func (r *Registry) Leave(gameID, playerID string) error {
	room, err := r.Get(gameID)
	if err != nil {
		return err
	}
	remaining, err := room.leave(playerID)
	if err != nil {
		return err
	}
	r.codeLimiters.Delete(limiterKey(gameID, playerID))
	if remaining == 0 {
		return r.Remove(gameID)
	}
	r.updateBots()
	return nil
}

// SubmitCode compiles code and installs it as the player's bot. Compilation
// runs outside the room lock so a slow compile never stalls the tick loop.
// A compile failure leaves the previous bot in place.
func (r *Registry) SubmitCode(gameID, playerID, code string) error {
	room, err := r.Get(gameID)
	if err != nil {
		return err
	}
	if !room.hasPlayer(playerID) {
		return ErrPlayerNotFound
	}
	if !r.codeLimiter(gameID, playerID).Allow() {
		return ErrRateLimited
	}

	d, err := game.Compile(code, r.opts.Sandbox)
	if err != nil {
		r.log.Warn().Err(err).Str("game", gameID).Str("player", playerID).Msg("⚠️ bot code rejected")
		return err
	}
	if err := room.setDecider(playerID, d); err != nil {
		return err
	}
	r.log.Info().Str("game", gameID).Str("player", playerID).Int("bytes", len(code)).Msg("📜 bot code installed")
	return nil
}

func limiterKey(gameID, playerID string) string {
	return gameID + "/" + playerID
}

func (r *Registry) codeLimiter(gameID, playerID string) *rate.Limiter {
	key := limiterKey(gameID, playerID)
	if l, ok := r.codeLimiters.Load(key); ok {
		return l.(*rate.Limiter)
	}
	l, _ := r.codeLimiters.LoadOrStore(key, rate.NewLimiter(r.opts.CodeRate, r.opts.CodeBurst))
	return l.(*rate.Limiter)
}

// Start begins the room's tick loop.
func (r *Registry) Start(gameID string) error {
	room, err := r.Get(gameID)
	if err != nil {
		return err
	}
	return room.start()
}

// Stop halts the room's tick loop. Stopping an idle room is a no-op.
func (r *Registry) Stop(gameID string) error {
	room, err := r.Get(gameID)
	if err != nil {
		return err
	}
	room.stop()
	return nil
}

// Reset stops the room and restores its game to the starting state.
// Players and their bots stay.
func (r *Registry) Reset(gameID string) error {
	room, err := r.Get(gameID)
	if err != nil {
		return err
	}
	room.reset()
	return nil
}

// Remove stops and disposes a room.
func (r *Registry) Remove(gameID string) error {
	r.mu.Lock()
	room, ok := r.rooms[gameID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	delete(r.rooms, gameID)
	count := len(r.rooms)
	r.mu.Unlock()

	room.close()
	r.codeLimiters.Range(func(key, _ any) bool {
		if strings.HasPrefix(key.(string), gameID+"/") {
			r.codeLimiters.Delete(key)
		}
		return true
	})

	r.opts.Metrics.SetActiveGames(count)
	r.updateBots()
	r.log.Info().Str("game", gameID).Msg("🗑️ game removed")
	return nil
}

// Close removes every room and rejects further creates.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	rooms := r.rooms
	r.rooms = make(map[string]*Room)
	r.mu.Unlock()

	for _, room := range rooms {
		room.close()
	}
	r.opts.Metrics.SetActiveGames(0)
	r.opts.Metrics.SetBots(0)
	if len(rooms) > 0 {
		r.log.Info().Int("games", len(rooms)).Msg("🛑 registry closed")
	}
}

func (r *Registry) updateBots() {
	r.mu.RLock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.RUnlock()

	total := 0
	for _, room := range rooms {
		total += room.PlayerCount()
	}
	r.opts.Metrics.SetBots(total)
}
