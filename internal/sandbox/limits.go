package sandbox

import (
	"fmt"
	"math"
	"strconv"

	"github.com/dop251/goja"
)

// Upper bounds used to size bulk allocations: goja stores non-ASCII strings
// as UTF-16 and array slots as interface values.
const (
	bytesPerChar = 2
	bytesPerSlot = 16
)

// maxJoinDepth bounds Array.prototype.join recursing through nested or
// cyclic arrays, which goja does on the Go stack.
const maxJoinDepth = 128

// unboundedGlobals are removed from every runtime. Their constructors
// allocate backing stores in one step from a caller-chosen size and nothing
// a bot exchanges with the host needs them.
var unboundedGlobals = []string{
	"ArrayBuffer", "SharedArrayBuffer", "DataView",
	"Int8Array", "Uint8Array", "Uint8ClampedArray",
	"Int16Array", "Uint16Array", "Int32Array", "Uint32Array",
	"Float32Array", "Float64Array", "BigInt64Array", "BigUint64Array",
}

// allocationGuard wraps the built-ins that can allocate an arbitrary amount
// of memory in a single step. goja only honours Interrupt between bytecode
// instructions, so a call like 'x'.repeat(1<<30) would otherwise run to
// completion, and an allocation that large takes the whole process down.
//
// Each wrapper sizes the result before delegating to the original built-in.
// An oversized request interrupts the runtime with a memory signal, so it is
// reported as *MemoryLimitError and cannot be swallowed by try/catch.
type allocationGuard struct {
	vm        *goja.Runtime
	limit     float64
	rangeErr  goja.Constructor
	joinDepth int
}

// installAllocationGuards must run before any user code so the originals it
// captures are the pristine built-ins.
func installAllocationGuards(vm *goja.Runtime, limit uint64) error {
	rangeErr, ok := goja.AssertConstructor(vm.Get("RangeError"))
	if !ok {
		return fmt.Errorf("sandbox: runtime has no RangeError")
	}
	g := &allocationGuard{vm: vm, limit: float64(limit), rangeErr: rangeErr}

	global := vm.GlobalObject()
	for _, name := range unboundedGlobals {
		if err := global.Delete(name); err != nil {
			return fmt.Errorf("sandbox: remove %s: %w", name, err)
		}
	}

	stringProto := vm.Get("String").ToObject(vm).Get("prototype").ToObject(vm)
	arrayCtor := vm.Get("Array").ToObject(vm)
	arrayProto := arrayCtor.Get("prototype").ToObject(vm)
	functionProto := vm.Get("Function").ToObject(vm).Get("prototype").ToObject(vm)
	reflectObj := vm.Get("Reflect").ToObject(vm)

	wraps := []struct {
		target *goja.Object
		name   string
		size   func(goja.FunctionCall) float64
	}{
		{stringProto, "repeat", g.repeatSize},
		{stringProto, "padStart", g.padSize},
		{stringProto, "padEnd", g.padSize},
		{stringProto, "concat", g.concatSize},
		{arrayProto, "fill", g.fillSize},
		{arrayCtor, "from", g.fromSize},
		{functionProto, "apply", g.argListSize(1)},
		{reflectObj, "apply", g.argListSize(2)},
		{reflectObj, "construct", g.argListSize(1)},
	}
	for _, w := range wraps {
		if err := g.wrap(w.target, w.name, w.size); err != nil {
			return err
		}
	}

	orig, ok := goja.AssertFunction(arrayProto.Get("join"))
	if !ok {
		return fmt.Errorf("sandbox: Array.prototype.join is not a function")
	}
	return g.define(arrayProto, "join", g.join(orig))
}

func (g *allocationGuard) wrap(target *goja.Object, name string, size func(goja.FunctionCall) float64) error {
	orig, ok := goja.AssertFunction(target.Get(name))
	if !ok {
		return fmt.Errorf("sandbox: %s is not a function", name)
	}
	return g.define(target, name, func(call goja.FunctionCall) goja.Value {
		if n := size(call); n > g.limit {
			g.exceeded(name, n)
		}
		return g.delegate(orig, call.This, call.Arguments...)
	})
}

// define installs fn the way built-in methods are: writable, configurable
// and not enumerable.
func (g *allocationGuard) define(target *goja.Object, name string, fn func(goja.FunctionCall) goja.Value) error {
	return target.DefineDataProperty(name, g.vm.ToValue(fn), goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

// delegate calls a captured built-in and rethrows whatever it throws.
func (g *allocationGuard) delegate(fn goja.Callable, this goja.Value, args ...goja.Value) goja.Value {
	v, err := fn(this, args...)
	if err != nil {
		panic(err)
	}
	return v
}

// exceeded stops the current call. The interrupt is picked up on the next
// instruction; the RangeError keeps the built-in from running meanwhile.
func (g *allocationGuard) exceeded(name string, size float64) {
	g.vm.Interrupt(memorySignal{})
	g.throwRange(fmt.Sprintf("%s would allocate %.0f bytes, over the %.0f byte limit", name, size, g.limit))
}

func (g *allocationGuard) throwRange(msg string) {
	obj, err := g.rangeErr(nil, g.vm.ToValue(msg))
	if err != nil {
		panic(err)
	}
	panic(obj)
}

func (g *allocationGuard) repeatSize(call goja.FunctionCall) float64 {
	n := call.Argument(0).ToFloat()
	if math.IsInf(n, 0) || math.IsNaN(n) || n <= 0 {
		return 0 // the built-in rejects or short-circuits these
	}
	return stringLength(call.This) * math.Trunc(n) * bytesPerChar
}

func (g *allocationGuard) padSize(call goja.FunctionCall) float64 {
	n := call.Argument(0).ToFloat()
	if math.IsNaN(n) || n <= 0 {
		return 0
	}
	return n * bytesPerChar
}

func (g *allocationGuard) concatSize(call goja.FunctionCall) float64 {
	n := stringLength(call.This)
	for _, arg := range call.Arguments {
		n += stringLength(arg)
	}
	return n * bytesPerChar
}

func (g *allocationGuard) fillSize(call goja.FunctionCall) float64 {
	obj, ok := call.This.(*goja.Object)
	if !ok {
		return 0
	}
	l := lengthOf(obj)
	start := relativeIndex(call.Argument(1).ToInteger(), l)
	end := l
	if arg := call.Argument(2); !goja.IsUndefined(arg) {
		end = relativeIndex(arg.ToInteger(), l)
	}
	if end <= start {
		return 0
	}
	return float64(end-start) * bytesPerSlot
}

func (g *allocationGuard) fromSize(call goja.FunctionCall) float64 {
	switch items := call.Argument(0).(type) {
	case *goja.Object:
		return float64(lengthOf(items)) * bytesPerSlot
	case goja.String:
		return float64(items.Length()) * bytesPerSlot
	}
	return 0
}

// argListSize sizes the argument list spread out of the array-like at
// position i.
func (g *allocationGuard) argListSize(i int) func(goja.FunctionCall) float64 {
	return func(call goja.FunctionCall) float64 {
		if obj, ok := call.Argument(i).(*goja.Object); ok {
			return float64(lengthOf(obj)) * bytesPerSlot
		}
		return 0
	}
}

// join converts every element up front, charging each against the limit as
// it goes, then hands the plain strings to the original join.
func (g *allocationGuard) join(orig goja.Callable) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if g.joinDepth >= maxJoinDepth {
			g.throwRange("join: arrays nested too deeply")
		}
		g.joinDepth++
		defer func() { g.joinDepth-- }()

		obj := call.This.ToObject(g.vm)
		n := lengthOf(obj)
		if n == 0 {
			return g.vm.ToValue("")
		}
		if size := float64(n) * bytesPerSlot; size > g.limit {
			g.exceeded("join", size)
		}

		sep := call.Argument(0)
		sepLen := 1.0
		if !goja.IsUndefined(sep) {
			sep = sep.ToString()
			sepLen = stringLength(sep)
		}

		size := float64(n-1) * sepLen * bytesPerChar
		if size > g.limit {
			g.exceeded("join", size)
		}
		parts := make([]any, n)
		for i := range parts {
			el := obj.Get(strconv.FormatInt(int64(i), 10))
			if el == nil || goja.IsUndefined(el) || goja.IsNull(el) {
				parts[i] = ""
				continue
			}
			s := el.ToString()
			size += stringLength(s) * bytesPerChar
			if size > g.limit {
				g.exceeded("join", size)
			}
			parts[i] = s
		}
		return g.delegate(orig, g.vm.NewArray(parts...), sep)
	}
}

func stringLength(v goja.Value) float64 {
	if v == nil {
		return 0
	}
	if s, ok := v.ToString().(goja.String); ok {
		return float64(s.Length())
	}
	return float64(len(v.String()))
}

func lengthOf(obj *goja.Object) int64 {
	v := obj.Get("length")
	if v == nil {
		return 0
	}
	l := v.ToInteger()
	if l < 0 {
		return 0
	}
	return l
}

func relativeIndex(rel, l int64) int64 {
	if rel >= 0 {
		return min(rel, l)
	}
	return max(l+rel, 0)
}
