// Package wire converts engine values to and from the transport shape.
//
// Keyed collections travel as lists of [key, value] pairs so the receiving
// side can rebuild them in order. Everything else travels as plain JSON.
package wire

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"bot-arena/internal/game"
)

var (
	pairListerType = reflect.TypeOf((*game.PairLister)(nil)).Elem()
	rawMessageType = reflect.TypeOf(json.RawMessage(nil))
)

// ToWire returns a JSON-ready copy of v. Keyed collections and Go maps become
// [key, value] pair lists (map keys sorted), structs become ordered objects
// keyed by their json names.
func ToWire(v any) any {
	return toWire(reflect.ValueOf(v))
}

func toWire(rv reflect.Value) any {
	if !rv.IsValid() {
		return nil
	}

	if rv.Type().Implements(pairListerType) {
		if (rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface) && rv.IsNil() {
			return []any{}
		}
		pairs := rv.Interface().(game.PairLister).Pairs()
		out := make([]any, 0, len(pairs))
		for _, p := range pairs {
			out = append(out, [2]any{p.Key, toWire(reflect.ValueOf(p.Value))})
		}
		return out
	}
	if rv.Type() == rawMessageType {
		if rv.Len() == 0 {
			return nil
		}
		return json.RawMessage(append([]byte(nil), rv.Bytes()...))
	}

	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return toWire(rv.Elem())

	case reflect.Struct:
		obj := orderedmap.New[string, any]()
		writeFields(obj, rv)
		return obj

	case reflect.Map:
		if rv.IsNil() {
			return []any{}
		}
		keys := rv.MapKeys()
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = fmt.Sprint(k.Interface())
		}
		idx := make([]int, len(keys))
		for i := range idx {
			idx[i] = i
		}
		sort.Slice(idx, func(a, b int) bool { return names[idx[a]] < names[idx[b]] })
		out := make([]any, 0, len(keys))
		for _, i := range idx {
			out = append(out, [2]any{names[i], toWire(rv.MapIndex(keys[i]))})
		}
		return out

	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		fallthrough
	case reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = toWire(rv.Index(i))
		}
		return out

	default:
		return rv.Interface()
	}
}

// writeFields copies exported fields into obj following encoding/json tag
// rules. Untagged embedded structs are flattened.
func writeFields(obj *orderedmap.OrderedMap[string, any], rv reflect.Value) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		fv := rv.Field(i)

		if f.Anonymous && name == "" {
			inner := fv
			if inner.Kind() == reflect.Ptr {
				if inner.IsNil() {
					continue
				}
				inner = inner.Elem()
			}
			if inner.Kind() == reflect.Struct {
				writeFields(obj, inner)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		if strings.Contains(opts, "omitempty") && isEmpty(fv) {
			continue
		}
		obj.Set(name, toWire(fv))
	}
}

func isEmpty(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	}
	return false
}

// FromWire is the inverse of ToWire for generically decoded JSON. A
// non-empty list whose every element is a [string, value] pair becomes an
// ordered mapping; everything else keeps its shape.
func FromWire(v any) any {
	switch t := v.(type) {
	case []any:
		if m, ok := pairsToMap(t); ok {
			return m
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = FromWire(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = FromWire(e)
		}
		return out
	case *orderedmap.OrderedMap[string, any]:
		out := orderedmap.New[string, any]()
		for p := t.Oldest(); p != nil; p = p.Next() {
			out.Set(p.Key, FromWire(p.Value))
		}
		return out
	default:
		return v
	}
}

func pairsToMap(list []any) (*orderedmap.OrderedMap[string, any], bool) {
	if len(list) == 0 {
		return nil, false
	}
	m := orderedmap.New[string, any]()
	for _, e := range list {
		var key, val any
		switch p := e.(type) {
		case []any:
			if len(p) != 2 {
				return nil, false
			}
			key, val = p[0], p[1]
		case [2]any:
			key, val = p[0], p[1]
		default:
			return nil, false
		}
		k, ok := key.(string)
		if !ok {
			return nil, false
		}
		m.Set(k, FromWire(val))
	}
	return m, true
}

// EncodeState renders a snapshot in wire format.
func EncodeState(s game.GameState) ([]byte, error) {
	data, err := json.Marshal(ToWire(s))
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// DecodeState parses a wire-format snapshot.
func DecodeState(data []byte) (game.GameState, error) {
	var s game.GameState
	if err := json.Unmarshal(data, &s); err != nil {
		return game.GameState{}, fmt.Errorf("decode state: %w", err)
	}
	return s, nil
}
