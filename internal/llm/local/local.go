// Package local provides an in-process embedding model based on feature
// hashing. It needs no network and produces deterministic, unit-length
// vectors in which texts sharing words land close together.
package local

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDimension matches all-MiniLM-L6-v2.
const DefaultDimension = 384

// Model hashes word unigrams and bigrams into a fixed number of buckets.
type Model struct {
	dimension int
}

// New creates a hashing model with the given dimension.
func New(dimension int) *Model {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Model{dimension: dimension}
}

func (m *Model) Name() string { return "local" }

// Dimension returns the vector length produced by Embed.
func (m *Model) Dimension() int { return m.dimension }

// Embed returns one vector per text.
func (m *Model) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = m.vector(t)
	}
	return out, nil
}

func (m *Model) vector(text string) []float32 {
	v := make([]float32, m.dimension)
	words := tokens(text)
	for i, w := range words {
		m.add(v, w, 1)
		if i > 0 {
			m.add(v, words[i-1]+" "+w, 0.5)
		}
	}
	normalize(v)
	return v
}

// add folds one feature into v. The sign bit of the hash spreads collisions
// around zero instead of piling them up.
func (m *Model) add(v []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(m.dimension))
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}

func tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	mag := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= mag
	}
}
