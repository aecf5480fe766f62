// Package embedding turns chunks and queries into fixed-dimension vectors
// using a lazily loaded, process-wide model.
package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/efebarandurmaz/ragline/internal/errortypes"
	"github.com/efebarandurmaz/ragline/internal/llm"
	"github.com/efebarandurmaz/ragline/internal/observability"
)

// Loader builds the model. It is expensive and runs at most once per
// successful load.
type Loader func(ctx context.Context) (llm.Provider, error)

// Embedder owns the model lifecycle: uninitialized, loading (exclusive), ready.
type Embedder struct {
	load      Loader
	dimension int
	model     string

	ready    atomic.Bool
	mu       sync.Mutex
	provider llm.Provider
}

// New creates an Embedder that checks every vector against dimension.
func New(load Loader, dimension int, model string) *Embedder {
	return &Embedder{load: load, dimension: dimension, model: model}
}

// FromFactory returns a Loader that creates the provider from cfg and pings
// it, so a successful load means the model is reachable.
func FromFactory(factory *llm.ProviderFactory, cfg llm.ProviderConfig) Loader {
	return func(ctx context.Context) (llm.Provider, error) {
		p, err := factory.Create(cfg)
		if err != nil {
			return nil, err
		}
		if err := llm.Ping(ctx, p); err != nil {
			return nil, err
		}
		return p, nil
	}
}

// Static returns a Loader that hands out p unchanged.
func Static(p llm.Provider) Loader {
	return func(context.Context) (llm.Provider, error) { return p, nil }
}

// Dimension returns the expected vector length.
func (e *Embedder) Dimension() int { return e.dimension }

// ModelName returns the configured model identifier.
func (e *Embedder) ModelName() string { return e.model }

// Acquire returns the loaded model, loading it on first use. Concurrent first
// callers share a single load. A failed load is not remembered.
func (e *Embedder) Acquire(ctx context.Context) (llm.Provider, error) {
	if e.ready.Load() {
		return e.provider, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ready.Load() {
		return e.provider, nil
	}

	ctx, span := observability.StartSpan(ctx, "embedding.load")
	defer span.End()

	observability.Logger(ctx).Info("loading embedding model", "model", e.model)
	p, err := e.load(ctx)
	if err != nil {
		observability.RecordError(span, err)
		return nil, errortypes.Embedding("load_model", fmt.Sprintf("could not load model %s", e.model), err)
	}
	if p == nil {
		return nil, errortypes.Embedding("load_model", "loader returned no model", nil)
	}

	e.provider = p
	e.ready.Store(true)
	observability.Logger(ctx).Info("embedding model ready", "model", e.model, "provider", p.Name())
	return p, nil
}

// Embed returns one vector per text in input order. Empty input returns empty
// output without loading the model. Any count or dimension mismatch fails the
// whole batch.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	p, err := e.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "embedding.encode")
	defer span.End()

	vectors, err := p.Embed(ctx, texts)
	if err != nil {
		observability.RecordError(span, err)
		return nil, errortypes.Embedding("embed", "model failed to encode batch", err)
	}
	if len(vectors) != len(texts) {
		return nil, errortypes.Embedding("embed",
			fmt.Sprintf("model returned %d vectors for %d texts", len(vectors), len(texts)), nil)
	}
	if err := e.checkDimensions("embed", vectors); err != nil {
		return nil, err
	}
	return vectors, nil
}

// EmbedOne embeds a single non-blank text.
func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errortypes.Input("embed_one", "text must be non-empty")
	}
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) checkDimensions(op string, vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != e.dimension {
			return errortypes.Embedding(op,
				fmt.Sprintf("dimension mismatch at %d: got %d, want %d", i, len(v), e.dimension), nil)
		}
	}
	return nil
}
