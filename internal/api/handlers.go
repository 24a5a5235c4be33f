package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bot-arena/internal/game"
	"bot-arena/internal/gameconfig"
	"bot-arena/internal/lobby"
	"bot-arena/internal/sandbox"
	"bot-arena/internal/wire"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = game.EventBufferSize
)

func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// =============================================================================
// CATALOG
// =============================================================================

func (h *routerHandlers) handleListModes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, gameconfig.Modes())
}

func (h *routerHandlers) handleListMaps(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("mode")
	if q == "" {
		writeJSON(w, h.catalog.All())
		return
	}
	mode, err := gameconfig.ParseMode(q)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	maps := h.catalog.ForMode(mode)
	if maps == nil {
		maps = []gameconfig.Map{}
	}
	writeJSON(w, maps)
}

// =============================================================================
// GAMES
// =============================================================================

func (h *routerHandlers) handleListGames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.lobby.List())
}

func (h *routerHandlers) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode     string `json:"mode"`
		MapName  string `json:"mapName"`
		TeamMode string `json:"teamMode"`
	}
	if !decodeBody(w, r, &req, 4<<10) {
		return
	}

	mode, err := gameconfig.ParseMode(req.Mode)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	teamMode, err := lobby.ParseTeamMode(req.TeamMode)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	room, err := h.lobby.Create(mode, req.MapName, teamMode)
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	writeJSONStatus(w, room.Info(), http.StatusCreated)
}

func (h *routerHandlers) room(w http.ResponseWriter, r *http.Request) (*lobby.Room, bool) {
	room, err := h.lobby.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeLobbyError(w, err)
		return nil, false
	}
	return room, true
}

func (h *routerHandlers) handleGetGame(w http.ResponseWriter, r *http.Request) {
	room, ok := h.room(w, r)
	if !ok {
		return
	}
	writeJSON(w, room.Info())
}

func (h *routerHandlers) handleRemoveGame(w http.ResponseWriter, r *http.Request) {
	if err := h.lobby.Remove(chi.URLParam(r, "id")); err != nil {
		writeLobbyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	room, ok := h.room(w, r)
	if !ok {
		return
	}
	data, err := wire.EncodeState(room.State())
	if err != nil {
		h.log.Error().Err(err).Str("game", room.ID()).Msg("❌ state encode failed")
		writeError(w, "state unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (h *routerHandlers) handleGetStandings(w http.ResponseWriter, r *http.Request) {
	room, ok := h.room(w, r)
	if !ok {
		return
	}
	writeJSON(w, room.Standings())
}

func (h *routerHandlers) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	room, ok := h.room(w, r)
	if !ok {
		return
	}
	limit := defaultEventLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxEventLimit)
	}
	var events []game.Event
	if h.events != nil {
		events = h.events.Recent(room.ID(), limit)
	}
	if events == nil {
		events = []game.Event{}
	}
	writeJSON(w, events)
}

// =============================================================================
// PLAYERS
// =============================================================================

type playerRequest struct {
	PlayerID string `json:"playerId"`
	Nickname string `json:"nickname"`
	Code     string `json:"code"`
}

func (h *routerHandlers) decodePlayer(w http.ResponseWriter, r *http.Request, limit int64) (playerRequest, bool) {
	var req playerRequest
	if !decodeBody(w, r, &req, limit) {
		return req, false
	}
	if req.PlayerID == "" {
		writeError(w, "playerId is required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (h *routerHandlers) handleJoin(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePlayer(w, r, 4<<10)
	if !ok {
		return
	}
	p, err := h.lobby.Join(chi.URLParam(r, "id"), req.PlayerID, req.Nickname)
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	writeJSON(w, p)
}

func (h *routerHandlers) handleLeave(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePlayer(w, r, 4<<10)
	if !ok {
		return
	}
	if err := h.lobby.Leave(chi.URLParam(r, "id"), req.PlayerID); err != nil {
		writeLobbyError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleSubmitCode(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePlayer(w, r, h.maxCodeBytes)
	if !ok {
		return
	}
	if req.Code == "" {
		writeError(w, "code is required", http.StatusBadRequest)
		return
	}
	if err := h.lobby.SubmitCode(chi.URLParam(r, "id"), req.PlayerID, req.Code); err != nil {
		writeLobbyError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func (h *routerHandlers) lifecycle(op func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := op(id); err != nil {
			writeLobbyError(w, err)
			return
		}
		room, err := h.lobby.Get(id)
		if err != nil {
			writeLobbyError(w, err)
			return
		}
		writeJSON(w, room.Info())
	}
}

func (h *routerHandlers) handleStart(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(h.lobby.Start)(w, r)
}

func (h *routerHandlers) handleStop(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(h.lobby.Stop)(w, r)
}

func (h *routerHandlers) handleReset(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(h.lobby.Reset)(w, r)
}

// =============================================================================
// HELPERS
// =============================================================================

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		compileErr  *sandbox.CompileError
		notFoundErr *sandbox.FunctionNotFoundError
	)
	switch {
	case errors.Is(err, lobby.ErrGameNotFound), errors.Is(err, lobby.ErrPlayerNotFound):
		return http.StatusNotFound
	case errors.Is(err, lobby.ErrGameFull), errors.Is(err, lobby.ErrGameInProgress):
		return http.StatusConflict
	case errors.Is(err, lobby.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, lobby.ErrTooManyGames), errors.Is(err, lobby.ErrRegistryClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, lobby.ErrUnknownMode), errors.Is(err, lobby.ErrUnknownMap),
		errors.Is(err, lobby.ErrUnknownTeamMode),
		errors.As(err, &compileErr), errors.As(err, &notFoundErr):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeLobbyError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeError(w, msg, status)
}

// decodeBody reads a JSON body of at most limit bytes into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, limit int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, "request too large", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, "invalid request", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, data, http.StatusOK)
}

func writeJSONStatus(w http.ResponseWriter, data any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
