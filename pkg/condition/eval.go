package condition

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

func (e *literalExpr) eval(map[string]any) (any, error) { return e.value, nil }

func (e *lookupExpr) eval(state map[string]any) (any, error) {
	var cur any = state
	for _, key := range e.path {
		m, ok := asMap(cur)
		if !ok {
			return e.missing(), nil
		}
		v, found := m[key]
		if !found {
			return e.missing(), nil
		}
		cur = v
	}
	return normalize(cur), nil
}

func (e *lookupExpr) missing() any {
	if e.hasDef {
		return e.def
	}
	return nil
}

func (e *notExpr) eval(state map[string]any) (any, error) {
	v, err := e.x.eval(state)
	if err != nil {
		return nil, err
	}
	return !truthy(v), nil
}

func (e *negExpr) eval(state map[string]any) (any, error) {
	v, err := e.x.eval(state)
	if err != nil {
		return nil, err
	}
	switch n := v.(type) {
	case float64:
		return -n, nil
	case nil:
		return float64(0), nil
	}
	return nil, &Error{Pos: e.pos, Msg: fmt.Sprintf("cannot negate %s", kindOf(v))}
}

func (e *logicalExpr) eval(state map[string]any) (any, error) {
	l, err := e.l.eval(state)
	if err != nil {
		return nil, err
	}
	lt := truthy(l)
	if e.and && !lt {
		return false, nil
	}
	if !e.and && lt {
		return true, nil
	}
	r, err := e.r.eval(state)
	if err != nil {
		return nil, err
	}
	return truthy(r), nil
}

func (e *compareExpr) eval(state map[string]any) (any, error) {
	l, err := e.l.eval(state)
	if err != nil {
		return nil, err
	}
	r, err := e.r.eval(state)
	if err != nil {
		return nil, err
	}
	ok, err := compare(e.op, l, r)
	if err != nil {
		return nil, &Error{Pos: e.pos, Msg: err.Error()}
	}
	return ok, nil
}

// compare applies op to two normalized values. A nil operand stands for the
// zero value of the other operand's kind.
func compare(op string, l, r any) (bool, error) {
	if l == nil {
		l = zeroLike(r)
	}
	if r == nil {
		r = zeroLike(l)
	}

	switch lv := l.(type) {
	case float64:
		if rv, ok := r.(float64); ok {
			return order(op, cmpFloat(lv, rv)), nil
		}
	case string:
		if rv, ok := r.(string); ok {
			return order(op, strings.Compare(lv, rv)), nil
		}
	case bool:
		if rv, ok := r.(bool); ok {
			return order(op, cmpBool(lv, rv)), nil
		}
	default:
		if kindOf(l) == kindOf(r) {
			switch op {
			case "==":
				return reflect.DeepEqual(l, r), nil
			case "!=":
				return !reflect.DeepEqual(l, r), nil
			}
			return false, fmt.Errorf("operator %s is not defined for %s", op, kindOf(l))
		}
	}

	// Mismatched kinds are never equal and cannot be ordered.
	switch op {
	case "==":
		return false, nil
	case "!=":
		return true, nil
	}
	return false, fmt.Errorf("cannot compare %s %s %s", kindOf(l), op, kindOf(r))
}

func order(op string, c int) bool {
	switch op {
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	case "==":
		return c == 0
	default:
		return c != 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

func zeroLike(v any) any {
	switch v.(type) {
	case float64:
		return float64(0)
	case string:
		return ""
	case bool:
		return false
	case map[string]any:
		return map[string]any{}
	case []any:
		return []any{}
	}
	return nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() > 0
	}
	return true
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case float64:
		return "number"
	case string:
		return "string"
	case bool:
		return "bool"
	case map[string]any:
		return "object"
	case []any:
		return "list"
	}
	return fmt.Sprintf("%T", v)
}

func asMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	m := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		m[iter.Key().String()] = iter.Value().Interface()
	}
	return m, true
}

// normalize maps state values onto the evaluator's value kinds:
// every number becomes float64, named maps and slices become generic ones.
func normalize(v any) any {
	switch t := v.(type) {
	case nil, bool, string, float64, map[string]any, []any:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	}
	if m, ok := asMap(v); ok {
		return m
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		l := make([]any, rv.Len())
		for i := range l {
			l[i] = rv.Index(i).Interface()
		}
		return l
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}
	return v
}
