package game

import (
	"encoding/json"
	"fmt"
	"time"

	"bot-arena/internal/pathfind"
	"bot-arena/internal/sandbox"
)

// BotFunctionName is the function bot code must define.
const BotFunctionName = "loop"

// DefaultBotTimeout bounds one decision call.
const DefaultBotTimeout = 25 * time.Millisecond

// Decision is what a decision function returns for one tick. Store is kept
// verbatim and handed back on the next tick.
type Decision struct {
	Action json.RawMessage `json:"action"`
	Store  json.RawMessage `json:"store"`
}

// Decider produces a bot's decision for one tick.
type Decider interface {
	Decide(input BotInput, store json.RawMessage) (Decision, error)
}

// DeciderFunc adapts a plain function to Decider.
type DeciderFunc func(input BotInput, store json.RawMessage) (Decision, error)

func (f DeciderFunc) Decide(input BotInput, store json.RawMessage) (Decision, error) {
	return f(input, store)
}

// disposer is implemented by deciders that hold resources.
type disposer interface {
	Dispose()
}

func disposeDecider(d Decider) {
	if dd, ok := d.(disposer); ok {
		dd.Dispose()
	}
}

// scriptDecider runs sandboxed bot code.
type scriptDecider struct {
	fn *sandbox.Function
}

// Compile builds a Decider from bot source. The code must define
// `function loop(input, store)` returning `{action, store}`. The pathFind
// helper is available to it.
func Compile(code string, opts sandbox.Options) (Decider, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBotTimeout
	}
	callbacks := map[string]sandbox.Callback{
		pathfind.CallbackName: pathfind.Callback(),
	}
	for name, cb := range opts.Callbacks {
		callbacks[name] = cb
	}
	opts.Callbacks = callbacks

	fn, err := sandbox.New(code, BotFunctionName, opts)
	if err != nil {
		return nil, err
	}
	return &scriptDecider{fn: fn}, nil
}

func (s *scriptDecider) Decide(input BotInput, store json.RawMessage) (Decision, error) {
	raw, err := s.fn.Call(input, store)
	if err != nil {
		return Decision{}, err
	}
	var d Decision
	if err := json.Unmarshal(raw, &d); err != nil {
		return Decision{}, fmt.Errorf("decode decision: %w", err)
	}
	return d, nil
}

func (s *scriptDecider) Dispose() {
	s.fn.Dispose()
}
