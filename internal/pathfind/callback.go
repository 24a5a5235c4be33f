package pathfind

import (
	"fmt"

	"bot-arena/internal/physics"
	"bot-arena/internal/sandbox"
)

// CallbackName is the global under which bot code sees the pathfinder.
const CallbackName = "pathFind"

// Callback exposes Find to sandboxed code as
// pathFind(mapAscii, fromPosition, goalPosition) → {dx, dy, x, y}.
func Callback() sandbox.Callback {
	return func(call sandbox.Call) (any, error) {
		if len(call.Args) < 3 {
			return nil, fmt.Errorf("pathFind expects (mapAscii, from, to), got %d arguments", len(call.Args))
		}
		var (
			grid     []string
			from, to physics.Vec
		)
		if err := call.Decode(0, &grid); err != nil {
			return nil, fmt.Errorf("pathFind mapAscii: %w", err)
		}
		if err := call.Decode(1, &from); err != nil {
			return nil, fmt.Errorf("pathFind from: %w", err)
		}
		if err := call.Decode(2, &to); err != nil {
			return nil, fmt.Errorf("pathFind to: %w", err)
		}
		return Find(grid, from, to), nil
	}
}
