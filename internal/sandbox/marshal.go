package sandbox

import (
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
	"github.com/go-viper/mapstructure/v2"
)

// Callback is a host function callable from sandboxed code. Its result is
// copied into the sandbox; a returned error is thrown inside the sandbox as
// an Error whose message is the error text.
type Callback func(call Call) (any, error)

// Call carries the arguments of one callback invocation, already copied out
// of the sandbox as plain Go values.
type Call struct {
	Args []any
}

// Arg returns argument i, or nil when it was not passed.
func (c Call) Arg(i int) any {
	if i < 0 || i >= len(c.Args) {
		return nil
	}
	return c.Args[i]
}

// Decode converts argument i into out using the json struct tags of out.
// Numeric strings and similar loose inputs are accepted.
func (c Call) Decode(i int, out any) error {
	if i < 0 || i >= len(c.Args) {
		return fmt.Errorf("argument %d missing", i)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(c.Args[i])
}

// toVM copies a host value into the runtime by encoding it as JSON and
// parsing it with the runtime's own JSON.parse.
func (f *Function) toVM(x any) (goja.Value, error) {
	var data []byte
	switch v := x.(type) {
	case nil:
		return goja.Null(), nil
	case goja.Value:
		return nil, fmt.Errorf("sandbox: refusing to pass a runtime value by reference")
	case json.RawMessage:
		if len(v) == 0 {
			return goja.Undefined(), nil
		}
		data = v
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return f.parse(goja.Undefined(), f.vm.ToValue(string(data)))
}

// fromVM copies a runtime value out as JSON. Undefined and functions
// become null; cyclic structures fail.
func (f *Function) fromVM(v goja.Value) (json.RawMessage, error) {
	if v == nil || goja.IsUndefined(v) {
		return json.RawMessage("null"), nil
	}
	s, err := f.stringify(goja.Undefined(), v)
	if err != nil {
		return nil, err
	}
	if goja.IsUndefined(s) {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(s.String()), nil
}

// hostFunction adapts a Callback to a runtime function. Arguments leave the
// runtime and results enter it through the same JSON copy as Call.
func (f *Function) hostFunction(name string, cb Callback) func(goja.FunctionCall) goja.Value {
	return func(fc goja.FunctionCall) (result goja.Value) {
		vm := f.vm
		defer func() {
			if r := recover(); r != nil {
				if v, ok := r.(goja.Value); ok {
					panic(v)
				}
				panic(vm.NewGoError(fmt.Errorf("%s: host callback panicked: %v", name, r)))
			}
		}()

		args := make([]any, len(fc.Arguments))
		for i, a := range fc.Arguments {
			raw, err := f.fromVM(a)
			if err != nil {
				panic(vm.NewGoError(fmt.Errorf("%s: argument %d: %w", name, i, err)))
			}
			if err := json.Unmarshal(raw, &args[i]); err != nil {
				panic(vm.NewGoError(fmt.Errorf("%s: argument %d: %w", name, i, err)))
			}
		}

		out, err := cb(Call{Args: args})
		if err != nil {
			panic(vm.NewGoError(err))
		}

		v, err := f.toVM(out)
		if err != nil {
			panic(vm.NewGoError(fmt.Errorf("%s: result: %w", name, err)))
		}
		return v
	}
}
