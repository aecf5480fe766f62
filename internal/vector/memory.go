package vector

import (
	"context"
	"fmt"
	"maps"
	"math"
	"sort"
	"sync"
)

// MemoryClient is an in-process store using brute-force cosine similarity.
// It is meant for development and tests.
type MemoryClient struct {
	mu      sync.RWMutex
	indexes map[string]*memoryIndex
}

// NewMemoryClient creates an empty in-memory store.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{indexes: make(map[string]*memoryIndex)}
}

// MemoryConnector returns a Connector that always hands out c.
func MemoryConnector(c *MemoryClient) Connector {
	return func(context.Context, Endpoint) (Client, error) { return c, nil }
}

func (c *MemoryClient) ListIndexes(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.indexes))
	for name := range c.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *MemoryClient) CreateIndex(ctx context.Context, spec IndexSpec) error {
	if spec.Dimension <= 0 {
		return fmt.Errorf("memory: invalid dimension %d", spec.Dimension)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.indexes[spec.Name]; ok {
		return fmt.Errorf("memory: index %q already exists", spec.Name)
	}
	c.indexes[spec.Name] = &memoryIndex{spec: spec, records: make(map[string]Record)}
	return nil
}

func (c *MemoryClient) GetIndex(ctx context.Context, name string) (Index, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	idx, ok := c.indexes[name]
	if !ok {
		return nil, fmt.Errorf("memory: index %q not found", name)
	}
	return idx, nil
}

func (c *MemoryClient) Close() error { return nil }

type memoryIndex struct {
	spec    IndexSpec
	mu      sync.RWMutex
	records map[string]Record
}

// Len returns the number of stored records.
func (i *memoryIndex) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.records)
}

func (i *memoryIndex) Upsert(ctx context.Context, records []Record) error {
	for _, r := range records {
		if len(r.Vector) != i.spec.Dimension {
			return fmt.Errorf("memory: record %s has dimension %d, index expects %d", r.ID, len(r.Vector), i.spec.Dimension)
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		r.Meta = maps.Clone(r.Meta)
		i.records[r.ID] = r
	}
	return nil
}

func (i *memoryIndex) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if len(vector) != i.spec.Dimension {
		return nil, fmt.Errorf("memory: query has dimension %d, index expects %d", len(vector), i.spec.Dimension)
	}
	if topK <= 0 {
		return []Match{}, nil
	}

	i.mu.RLock()
	type scored struct {
		id    string
		score float64
		meta  map[string]any
	}
	hits := make([]scored, 0, len(i.records))
	for id, r := range i.records {
		hits = append(hits, scored{id: id, score: cosine(vector, r.Vector), meta: r.Meta})
	}
	i.mu.RUnlock()

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return hits[a].id < hits[b].id
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}

	out := make([]Match, len(hits))
	for n, h := range hits {
		out[n] = Match{ID: h.id, Similarity: h.score, Meta: maps.Clone(h.meta)}
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
