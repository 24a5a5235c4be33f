package game

import (
	"bytes"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Pair is one entry of a keyed collection.
type Pair struct {
	Key   string
	Value any
}

// PairLister is implemented by keyed collections so transport code can walk
// them without knowing the element type.
type PairLister interface {
	Pairs() []Pair
}

// Keyed is a string-keyed collection that iterates in insertion order.
// Re-setting an existing key keeps its position. The zero value is empty and
// ready to use.
//
// It marshals to a JSON object in iteration order and unmarshals from either
// an object or a list of [key, value] pairs.
type Keyed[V any] struct {
	m *orderedmap.OrderedMap[string, V]
}

// NewKeyed returns an empty collection.
func NewKeyed[V any]() *Keyed[V] {
	return &Keyed[V]{m: orderedmap.New[string, V]()}
}

func (k *Keyed[V]) init() {
	if k.m == nil {
		k.m = orderedmap.New[string, V]()
	}
}

// Len returns the number of entries.
func (k *Keyed[V]) Len() int {
	if k == nil || k.m == nil {
		return 0
	}
	return k.m.Len()
}

// Get returns the value stored under key.
func (k *Keyed[V]) Get(key string) (V, bool) {
	if k == nil || k.m == nil {
		var zero V
		return zero, false
	}
	return k.m.Get(key)
}

// Has reports whether key is present.
func (k *Keyed[V]) Has(key string) bool {
	_, ok := k.Get(key)
	return ok
}

// Set stores v under key.
func (k *Keyed[V]) Set(key string, v V) {
	k.init()
	k.m.Set(key, v)
}

// Delete removes key and reports whether it was present.
func (k *Keyed[V]) Delete(key string) bool {
	if k == nil || k.m == nil {
		return false
	}
	_, ok := k.m.Delete(key)
	return ok
}

// Clear removes every entry.
func (k *Keyed[V]) Clear() {
	k.m = orderedmap.New[string, V]()
}

// Range calls fn for each entry in order until fn returns false. fn must not
// add or remove entries; collect keys first when deleting.
func (k *Keyed[V]) Range(fn func(key string, v V) bool) {
	if k == nil || k.m == nil {
		return
	}
	for p := k.m.Oldest(); p != nil; p = p.Next() {
		if !fn(p.Key, p.Value) {
			return
		}
	}
}

// Keys returns the keys in order.
func (k *Keyed[V]) Keys() []string {
	keys := make([]string, 0, k.Len())
	k.Range(func(key string, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// Values returns the values in order.
func (k *Keyed[V]) Values() []V {
	vals := make([]V, 0, k.Len())
	k.Range(func(_ string, v V) bool {
		vals = append(vals, v)
		return true
	})
	return vals
}

// Pairs implements PairLister.
func (k *Keyed[V]) Pairs() []Pair {
	pairs := make([]Pair, 0, k.Len())
	k.Range(func(key string, v V) bool {
		pairs = append(pairs, Pair{Key: key, Value: v})
		return true
	})
	return pairs
}

// Map copies the collection into a fresh collection, transforming values
// with fn.
func Map[V, W any](k *Keyed[V], fn func(V) W) *Keyed[W] {
	out := NewKeyed[W]()
	k.Range(func(key string, v V) bool {
		out.Set(key, fn(v))
		return true
	})
	return out
}

// MarshalJSON encodes the collection as an object in iteration order.
func (k *Keyed[V]) MarshalJSON() ([]byte, error) {
	if k == nil || k.m == nil {
		return []byte("{}"), nil
	}
	return k.m.MarshalJSON()
}

// UnmarshalJSON accepts an object or a list of [key, value] pairs.
func (k *Keyed[V]) UnmarshalJSON(data []byte) error {
	k.Clear()
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		return nil
	case len(trimmed) > 0 && trimmed[0] == '[':
		var pairs [][2]json.RawMessage
		if err := json.Unmarshal(trimmed, &pairs); err != nil {
			return fmt.Errorf("keyed pairs: %w", err)
		}
		for i, p := range pairs {
			var key string
			if err := json.Unmarshal(p[0], &key); err != nil {
				return fmt.Errorf("keyed pair %d: key: %w", i, err)
			}
			var v V
			if err := json.Unmarshal(p[1], &v); err != nil {
				return fmt.Errorf("keyed pair %d: value: %w", i, err)
			}
			k.m.Set(key, v)
		}
		return nil
	default:
		return k.m.UnmarshalJSON(trimmed)
	}
}
