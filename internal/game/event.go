package game

import (
	"encoding/json"
	"time"
)

// EventType enum for event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeJoin
	EventTypeLeave
	EventTypeCode // Bot code replaced
	EventTypeDeposit
	EventTypeHit
	EventTypeEliminate
	EventTypeRespawn
	EventTypeLap
	EventTypePowerUp
	EventTypeWin
	EventTypeReset
)

// EventVersion for backwards compatibility in replay
const EventVersion uint8 = 1

// Event is one entry of the gameplay journal.
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Name      string          `json:"name"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`  // Monotonic per log
	GameID    string          `json:"gameId,omitempty"`
	Tick      int             `json:"tick"`
	PlayerID  string          `json:"playerId,omitempty"` // Source player, used for rate limiting
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeJoin:
		return "join"
	case EventTypeLeave:
		return "leave"
	case EventTypeCode:
		return "code"
	case EventTypeDeposit:
		return "deposit"
	case EventTypeHit:
		return "hit"
	case EventTypeEliminate:
		return "eliminate"
	case EventTypeRespawn:
		return "respawn"
	case EventTypeLap:
		return "lap"
	case EventTypePowerUp:
		return "power_up"
	case EventTypeWin:
		return "win"
	case EventTypeReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Typed payloads

type JoinPayload struct {
	BotID    string  `json:"botId"`
	Nickname string  `json:"nickname"`
	Team     *int    `json:"team,omitempty"`
	SpawnX   float64 `json:"spawnX"`
	SpawnY   float64 `json:"spawnY"`
}

type DepositPayload struct {
	BaseID        string `json:"baseId"`
	OrbsDeposited int    `json:"orbsDeposited"`
}

type HitPayload struct {
	ShooterID string `json:"shooterId"`
	VictimID  string `json:"victimId"`
	Damage    int    `json:"damage"`
	VictimHP  int    `json:"victimHp"`
}

type EliminatePayload struct {
	BotID     string `json:"botId"`
	LivesLeft int    `json:"livesLeft"`
}

type LapPayload struct {
	BotID string `json:"botId"`
	Lap   int    `json:"lap"`
}

type PowerUpPayload struct {
	BotID string `json:"botId"`
	Type  string `json:"type"`
}

type WinPayload struct {
	Winner string `json:"winner"`
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload any) json.RawMessage {
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, gameID string, tick int, playerID string, payload any) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Name:      eventType.String(),
		Timestamp: time.Now().UnixNano(),
		GameID:    gameID,
		Tick:      tick,
		PlayerID:  playerID,
		Payload:   EncodePayload(payload),
	}
}
