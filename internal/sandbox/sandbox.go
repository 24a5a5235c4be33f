// Package sandbox compiles untrusted JavaScript into host-safe functions.
//
// Every Function owns a private goja runtime. Nothing from the host process
// is reachable from inside it except the callbacks passed in Options, and
// every value crossing the boundary is copied as JSON-compatible data, so
// sandboxed code can never hold a live reference to a host object.
//
// Each call is bounded by a wall-clock timeout and a memory limit. The limit
// is enforced twice: built-ins that allocate in bulk are sized before they
// run, and process heap growth is sampled while the call is the only one in
// flight. A call that runs over either budget is interrupted and reported as
// an error; the Function stays usable for the next call.
package sandbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
)

const (
	DefaultTimeout          = time.Second
	DefaultMemoryLimit      = 32 << 20 // bytes of heap growth per call
	DefaultMaxCallStackSize = 1024
)

// Options configures a sandboxed function.
type Options struct {
	// Timeout bounds the wall-clock time of each call and of the initial
	// evaluation of the code.
	Timeout time.Duration

	// MemoryLimit bounds heap growth during a single call, in bytes.
	MemoryLimit uint64

	// MaxCallStackSize bounds recursion depth inside the runtime.
	MaxCallStackSize int

	// Callbacks are installed as globals under their map keys. They are the
	// only way sandboxed code can observe or affect anything outside itself.
	Callbacks map[string]Callback
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MemoryLimit == 0 {
		o.MemoryLimit = DefaultMemoryLimit
	}
	if o.MaxCallStackSize <= 0 {
		o.MaxCallStackSize = DefaultMaxCallStackSize
	}
	return o
}

// Function is a compiled sandboxed function. Calls are serialized; a
// Function may be shared between goroutines.
type Function struct {
	mu sync.Mutex

	name        string
	timeout     time.Duration
	memoryLimit uint64

	vm        *goja.Runtime
	fn        goja.Callable
	stringify goja.Callable
	parse     goja.Callable
}

// New compiles code, evaluates its top level once and looks up the global
// function called functionName.
//
// Syntax errors and exceptions thrown by top-level code are returned as
// *CompileError, a missing function as *FunctionNotFoundError. Top-level code
// that runs past the timeout returns *ExecutionTimeoutError.
func New(code, functionName string, opts Options) (*Function, error) {
	opts = opts.withDefaults()

	program, err := goja.Compile("bot.js", code, false)
	if err != nil {
		return nil, &CompileError{Message: err.Error(), Cause: err}
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(opts.MaxCallStackSize)

	f := &Function{
		name:        functionName,
		timeout:     opts.Timeout,
		memoryLimit: opts.MemoryLimit,
		vm:          vm,
	}

	// Capture the JSON codec before user code runs so a script replacing
	// JSON.parse cannot change how values cross the boundary.
	jsonObj := vm.Get("JSON").ToObject(vm)
	var ok bool
	if f.stringify, ok = goja.AssertFunction(jsonObj.Get("stringify")); !ok {
		return nil, errors.New("sandbox: runtime has no JSON.stringify")
	}
	if f.parse, ok = goja.AssertFunction(jsonObj.Get("parse")); !ok {
		return nil, errors.New("sandbox: runtime has no JSON.parse")
	}

	if err := installAllocationGuards(vm, opts.MemoryLimit); err != nil {
		return nil, err
	}

	for name, cb := range opts.Callbacks {
		if err := vm.Set(name, f.hostFunction(name, cb)); err != nil {
			return nil, fmt.Errorf("sandbox: register callback %q: %w", name, err)
		}
	}

	err = f.guard(func() error {
		_, err := vm.RunProgram(program)
		return err
	})
	if err != nil {
		var timeout *ExecutionTimeoutError
		if errors.As(err, &timeout) {
			return nil, err
		}
		return nil, &CompileError{Message: err.Error(), Cause: err}
	}

	fn, ok := goja.AssertFunction(vm.Get(functionName))
	if !ok {
		return nil, &FunctionNotFoundError{Name: functionName}
	}
	f.fn = fn
	return f, nil
}

// Name returns the name of the wrapped function.
func (f *Function) Name() string {
	return f.name
}

// Call invokes the function with deep copies of args and returns a deep copy
// of its result as JSON. A json.RawMessage argument is passed through
// without re-encoding. An undefined result is returned as null.
func (f *Function) Call(args ...any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.vm == nil {
		return nil, ErrDisposed
	}

	var out json.RawMessage
	err := f.guard(func() error {
		values := make([]goja.Value, len(args))
		for i, arg := range args {
			v, err := f.toVM(arg)
			if err != nil {
				return fmt.Errorf("argument %d: %w", i, err)
			}
			values[i] = v
		}

		result, err := f.fn(goja.Undefined(), values...)
		if err != nil {
			return err
		}
		out, err = f.fromVM(result)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CallValue is Call with the result decoded into plain Go values
// (map[string]any, []any, float64, string, bool, nil).
func (f *Function) CallValue(args ...any) (any, error) {
	raw, err := f.Call(args...)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, &ExecutionError{Message: "decode result: " + err.Error(), Cause: err}
	}
	return v, nil
}

// Dispose releases the runtime. It is safe to call more than once; later
// calls to Call return ErrDisposed.
func (f *Function) Dispose() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.vm = nil
	f.fn = nil
	f.stringify = nil
	f.parse = nil
}

// Disposed reports whether Dispose has been called.
func (f *Function) Disposed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vm == nil
}

// guard runs fn under the watchdog and converts whatever it returns or
// panics with into one of the package error types.
func (f *Function) guard(fn func() error) (err error) {
	inFlight.enter()
	meter := newHeapMeter(f.memoryLimit, heapObjectsBytes())

	done := make(chan struct{})
	exited := make(chan struct{})
	go f.watch(f.vm, meter, done, exited)

	defer func() {
		close(done)
		<-exited
		inFlight.exit()
		f.vm.ClearInterrupt()

		if r := recover(); r != nil {
			err = &ExecutionError{Message: fmt.Sprint(r)}
		}
		err = f.classify(err)
	}()

	return fn()
}

func (f *Function) classify(err error) error {
	if err == nil {
		return nil
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		switch interrupted.Value().(type) {
		case timeoutSignal:
			return &ExecutionTimeoutError{Timeout: f.timeout}
		case memorySignal:
			return &MemoryLimitError{Limit: f.memoryLimit}
		}
		return &ExecutionError{Message: interrupted.Error(), Cause: err}
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		msg := exception.Error()
		if v := exception.Value(); v != nil {
			msg = v.String()
		}
		return &ExecutionError{Message: msg, Cause: err}
	}

	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return err
	}
	return &ExecutionError{Message: err.Error(), Cause: err}
}
