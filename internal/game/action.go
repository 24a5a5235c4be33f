package game

import (
	"encoding/json"

	"bot-arena/internal/gameconfig"
)

// ActionKind is the discriminant of Action.
type ActionKind uint8

const (
	ActionIdle        ActionKind = iota
	ActionMoveVector             // accelerate along (DX, DY)
	ActionMoveForward            // accelerate along the facing by Velocity
	ActionTurn                   // rotate by Velocity * turn rate
	ActionFire                   // shoot along (DX, DY), or the facing
	ActionPickup
	ActionDeposit
	ActionFlap
)

func (k ActionKind) String() string {
	switch k {
	case ActionMoveVector:
		return "move"
	case ActionMoveForward:
		return "move-forward"
	case ActionTurn:
		return "turn"
	case ActionFire:
		return "fire"
	case ActionPickup:
		return "pickup"
	case ActionDeposit:
		return "deposit"
	case ActionFlap:
		return "flap"
	default:
		return "idle"
	}
}

// Action is a validated bot command.
type Action struct {
	Kind     ActionKind
	DX, DY   float64
	Velocity float64 // -1..1, for ActionMoveForward and ActionTurn
	Aimed    bool    // ActionFire carries an explicit direction
}

// Idle is the action taken when a bot has nothing valid to do.
var Idle = Action{Kind: ActionIdle}

// DecodeAction validates a raw action against the capability set. The
// meaning of "move" is chosen by whether turning is allowed: with turning it
// is a forward/back scalar, without it a direction vector. Anything
// disallowed, unknown or malformed decodes to Idle.
func DecodeAction(raw json.RawMessage, allowed gameconfig.AllowedActions) Action {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Idle
	}
	kind, _ := fields["type"].(string)

	switch kind {
	case "move":
		if !allowed.Move {
			return Idle
		}
		if allowed.Turn {
			v, ok := number(fields, "velocity")
			if !ok {
				return Idle
			}
			return Action{Kind: ActionMoveForward, Velocity: clampUnit(v)}
		}
		dx, okX := number(fields, "dx")
		dy, okY := number(fields, "dy")
		if !okX || !okY {
			return Idle
		}
		return Action{Kind: ActionMoveVector, DX: dx, DY: dy}

	case "turn":
		v, ok := number(fields, "velocity")
		if !allowed.Turn || !ok {
			return Idle
		}
		return Action{Kind: ActionTurn, Velocity: clampUnit(v)}

	case "fire":
		if !allowed.Fire {
			return Idle
		}
		dx, okX := number(fields, "dx")
		dy, okY := number(fields, "dy")
		return Action{Kind: ActionFire, DX: dx, DY: dy, Aimed: okX && okY}

	case "pickup":
		if allowed.Pickup {
			return Action{Kind: ActionPickup}
		}
	case "deposit":
		if allowed.Deposit {
			return Action{Kind: ActionDeposit}
		}
	case "flap":
		if allowed.Flap {
			return Action{Kind: ActionFlap}
		}
	}
	return Idle
}

func number(fields map[string]any, key string) (float64, bool) {
	v, ok := fields[key].(float64)
	return v, ok
}

func clampUnit(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}
