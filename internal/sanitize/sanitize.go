// Package sanitize converts arbitrary values returned by a vector store into
// JSON-safe values.
package sanitize

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// MaxDepth is the deepest level that is still traversed.
const MaxDepth = 10

// Sentinels substituted for values that cannot be traversed.
const (
	MaxDepthSentinel = "[max depth]"
	CyclicSentinel   = "[cyclic]"
)

// Value sanitizes v starting at depth zero.
//
// nil, booleans, numbers and strings pass through. Maps become
// map[string]any, slices and arrays become []any. Containers seen again on
// the current path are replaced by CyclicSentinel, and anything nested deeper
// than MaxDepth by MaxDepthSentinel. Other values become their display string.
func Value(v any) any {
	w := walker{seen: make(map[ref]struct{})}
	return w.value(reflect.ValueOf(v), 0)
}

// Map sanitizes v and returns it as a map. Non-map input yields an empty map.
func Map(v any) map[string]any {
	if m, ok := Value(v).(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

type ref struct {
	kind reflect.Kind
	ptr  uintptr
	len  int
}

type walker struct {
	seen map[ref]struct{}
}

func (w *walker) value(rv reflect.Value, depth int) any {
	if depth > MaxDepth {
		return MaxDepthSentinel
	}
	if !rv.IsValid() {
		return nil
	}

	switch rv.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.String:
		return rv.Interface()
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return rv.Interface()
	case reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return w.value(rv.Elem(), depth)
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		if describes(rv) {
			return display(rv)
		}
		return w.enter(rv, depth, func() any { return w.value(rv.Elem(), depth+1) })
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		return w.enter(rv, depth, func() any { return w.mapValue(rv, depth) })
	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes())
		}
		return w.enter(rv, depth, func() any { return w.sliceValue(rv, depth) })
	case reflect.Array:
		return w.sliceValue(rv, depth)
	}

	return display(rv)
}

// enter tracks rv on the current path while fn runs.
func (w *walker) enter(rv reflect.Value, depth int, fn func() any) any {
	r := ref{kind: rv.Kind(), ptr: rv.Pointer()}
	if rv.Kind() == reflect.Slice {
		r.len = rv.Len()
	}
	if _, ok := w.seen[r]; ok {
		return CyclicSentinel
	}
	w.seen[r] = struct{}{}
	defer delete(w.seen, r)
	return fn()
}

func (w *walker) mapValue(rv reflect.Value, depth int) any {
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[fmt.Sprint(iter.Key().Interface())] = w.value(iter.Value(), depth+1)
	}
	return out
}

func (w *walker) sliceValue(rv reflect.Value, depth int) any {
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = w.value(rv.Index(i), depth+1)
	}
	return out
}

// describes reports whether rv renders itself as text.
func describes(rv reflect.Value) bool {
	if !rv.CanInterface() {
		return false
	}
	switch rv.Interface().(type) {
	case error, fmt.Stringer:
		return true
	}
	return false
}

func display(rv reflect.Value) string {
	if !rv.CanInterface() {
		return rv.String()
	}
	switch v := rv.Interface().(type) {
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
