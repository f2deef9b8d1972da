package domain

import (
	"encoding/json"
	"reflect"
)

// State is the dynamically shaped data threaded through a run.
// Values are JSON kinds: nil, bool, numbers, string, []any and map[string]any.
type State map[string]any

// Clone returns a deep copy of the state.
// Nested maps with string keys and slices are canonicalised into
// map[string]any and []any so the copy never aliases the original.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = CloneValue(v)
	}
	return out
}

// Get returns the value stored under key, or def if the key is missing.
func (s State) Get(key string, def any) any {
	if v, ok := s[key]; ok {
		return v
	}
	return def
}

// CloneValue deep copies a single state value.
func CloneValue(v any) any {
	switch t := v.(type) {
	case nil, bool, string, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return t
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = CloneValue(e)
		}
		return m
	case State:
		return map[string]any(t.Clone())
	case []any:
		l := make([]any, len(t))
		for i, e := range t {
			l[i] = CloneValue(e)
		}
		return l
	case []byte:
		return string(t)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = CloneValue(iter.Value().Interface())
		}
		return m
	case reflect.Slice, reflect.Array:
		l := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			l[i] = CloneValue(rv.Index(i).Interface())
		}
		return l
	}
	return v
}
