package sanitize

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Primitives(t *testing.T) {
	tests := []any{nil, true, false, 42, int64(-7), uint8(3), 3.5, float32(1.25), "text", ""}
	for _, in := range tests {
		assert.Equal(t, in, Value(in))
	}
}

func TestValue_NonFiniteFloats(t *testing.T) {
	assert.Equal(t, "NaN", Value(math.NaN()))
	assert.Equal(t, "+Inf", Value(math.Inf(1)))
}

func TestValue_NestedContainers(t *testing.T) {
	in := map[string]any{
		"text":  "hello",
		"list":  []any{1, "two", map[int]string{3: "three"}},
		"inner": map[string]any{"ok": true},
	}

	got := Value(in)

	assert.Equal(t, map[string]any{
		"text":  "hello",
		"list":  []any{1, "two", map[string]any{"3": "three"}},
		"inner": map[string]any{"ok": true},
	}, got)
}

func TestValue_SelfReferencingMap(t *testing.T) {
	m := map[string]any{}
	m["self"] = m

	got := Value(m)

	assert.Equal(t, map[string]any{"self": CyclicSentinel}, got)
}

func TestValue_SelfReferencingSlice(t *testing.T) {
	s := []any{"a", nil}
	s[1] = s

	assert.Equal(t, []any{"a", CyclicSentinel}, Value(s))
}

func TestValue_SharedSiblingIsNotCyclic(t *testing.T) {
	shared := map[string]any{"k": "v"}
	in := map[string]any{"x": shared, "y": shared}

	got := Value(in)

	assert.Equal(t, map[string]any{
		"x": map[string]any{"k": "v"},
		"y": map[string]any{"k": "v"},
	}, got)
}

func TestValue_MaxDepth(t *testing.T) {
	var v any = "leaf"
	for i := 0; i < 12; i++ {
		v = map[string]any{"n": v}
	}

	got := Value(v)

	for i := 0; i <= MaxDepth; i++ {
		m, ok := got.(map[string]any)
		require.True(t, ok, "level %d should still be a map", i)
		got = m["n"]
	}
	assert.Equal(t, MaxDepthSentinel, got)
}

func TestValue_ShallowNestingKeepsLeaf(t *testing.T) {
	var v any = "leaf"
	for i := 0; i < MaxDepth; i++ {
		v = []any{v}
	}

	got := Value(v)
	for i := 0; i < MaxDepth; i++ {
		got = got.([]any)[0]
	}
	assert.Equal(t, "leaf", got)
}

func TestValue_OtherTypesBecomeStrings(t *testing.T) {
	type point struct{ X, Y int }

	assert.Equal(t, "boom", Value(errors.New("boom")))
	assert.Equal(t, "(1+2i)", Value(complex(1, 2)))
	assert.Equal(t, "{1 2}", Value(point{1, 2}))
	assert.Equal(t, "raw", Value([]byte("raw")))
}

func TestValue_PointersAndTypedNils(t *testing.T) {
	n := 5
	var nilMap map[string]any
	var nilSlice []string

	assert.Equal(t, 5, Value(&n))
	assert.Nil(t, Value(nilMap))
	assert.Nil(t, Value(nilSlice))
}

func TestValue_ResultIsJSONSerializable(t *testing.T) {
	m := map[string]any{"err": errors.New("bad"), "nan": math.NaN(), "list": []int{1, 2}}
	m["loop"] = m

	_, err := json.Marshal(Value(m))
	assert.NoError(t, err)
}

func TestMap(t *testing.T) {
	assert.Equal(t, map[string]any{}, Map(nil))
	assert.Equal(t, map[string]any{}, Map("not a map"))
	assert.Equal(t, map[string]any{"a": 1}, Map(map[string]int{"a": 1}))
}
