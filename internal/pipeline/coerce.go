package pipeline

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/efebarandurmaz/ragline/internal/sanitize"
	"github.com/efebarandurmaz/ragline/internal/vector"
)

func coerce(m vector.Match) Result {
	meta := sanitize.Map(m.Meta)
	return Result{
		ID:    coerceID(m.ID),
		Score: coerceScore(m.Similarity),
		Text:  coerceText(meta["text"]),
		Meta:  meta,
	}
}

// coerceID stringifies an id. Absent and zero ids (nil, "", 0, false) have no
// identity and become "".
func coerceID(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return ""
		}
		return coerceID(rv.Elem().Interface())
	}
	if rv.IsZero() && isScalar(rv.Kind()) {
		return ""
	}
	return fmt.Sprint(v)
}

func isScalar(k reflect.Kind) bool {
	return k == reflect.Bool || (k >= reflect.Int && k <= reflect.Complex128)
}

// coerceScore converts a similarity of any shape to a finite float64, or 0
// when it cannot be read as one. NaN and infinities become 0 so results stay
// JSON-encodable.
func coerceScore(v any) float64 {
	f := toFloat(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func toFloat(v any) float64 {
	if v == nil {
		return 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Bool:
		if rv.Bool() {
			return 1
		}
		return 0
	case reflect.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(rv.String()), 64)
		if err != nil {
			return 0
		}
		return f
	case reflect.Pointer:
		if rv.IsNil() {
			return 0
		}
		return toFloat(rv.Elem().Interface())
	}
	return 0
}

func coerceText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	}
	return fmt.Sprint(v)
}
