package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/efebarandurmaz/ragline/internal/errortypes"
	"github.com/efebarandurmaz/ragline/internal/observability"
)

// DefaultTimeout bounds every store call when none is configured.
const DefaultTimeout = 30 * time.Second

// Config configures a Gateway.
type Config struct {
	Backend   string
	Endpoint  Endpoint
	IndexName string
	Dimension int
	Precision Precision
	Timeout   time.Duration
}

// Gateway owns a lazily created client and a lazily ensured index.
type Gateway struct {
	cfg     Config
	connect Connector

	clientMu sync.Mutex
	client   atomic.Pointer[clientRef]

	indexReady atomic.Bool
	indexMu    sync.Mutex

	// OnIndexCreated is called after the gateway creates the index.
	OnIndexCreated func(ctx context.Context, spec IndexSpec)
}

type clientRef struct{ c Client }

// NewGateway creates a Gateway. No connection is made until first use.
func NewGateway(connect Connector, cfg Config) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Precision == "" {
		cfg.Precision = PrecisionInt8
	}
	return &Gateway{cfg: cfg, connect: connect}
}

// IndexName returns the configured index name.
func (g *Gateway) IndexName() string { return g.cfg.IndexName }

// Timeout returns the per-call deadline.
func (g *Gateway) Timeout() time.Duration { return g.cfg.Timeout }

// Spec returns the index specification the gateway ensures.
func (g *Gateway) Spec() IndexSpec {
	return IndexSpec{
		Name:      g.cfg.IndexName,
		Dimension: g.cfg.Dimension,
		Space:     SpaceCosine,
		Precision: g.cfg.Precision,
	}
}

// Client returns the connected client, connecting on first use.
func (g *Gateway) Client(ctx context.Context) (Client, error) {
	if ref := g.client.Load(); ref != nil {
		return ref.c, nil
	}

	g.clientMu.Lock()
	defer g.clientMu.Unlock()

	if ref := g.client.Load(); ref != nil {
		return ref.c, nil
	}

	c, err := guard(ctx, g, "connect", func(ctx context.Context) (Client, error) {
		return g.connect(ctx, g.cfg.Endpoint)
	})
	if err != nil {
		return nil, err
	}
	g.client.Store(&clientRef{c: c})
	slog.Debug("vector store connected", "backend", g.cfg.Backend)
	return c, nil
}

// EnsureIndex creates the configured index if it does not exist. Once the
// index is confirmed, later calls return immediately.
func (g *Gateway) EnsureIndex(ctx context.Context) error {
	if g.indexReady.Load() {
		return nil
	}

	g.indexMu.Lock()
	defer g.indexMu.Unlock()

	if g.indexReady.Load() {
		return nil
	}

	c, err := g.Client(ctx)
	if err != nil {
		return err
	}

	names, err := guard(ctx, g, "list_indexes", func(ctx context.Context) ([]string, error) {
		return c.ListIndexes(ctx)
	})
	if err != nil {
		return err
	}

	log := observability.Logger(ctx)
	if slices.Contains(names, g.cfg.IndexName) {
		log.Info("vector index exists", "index", g.cfg.IndexName)
	} else {
		spec := g.Spec()
		_, err := guard(ctx, g, "create_index", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.CreateIndex(ctx, spec)
		})
		if err != nil {
			return err
		}
		log.Info("vector index created", "index", spec.Name, "dimension", spec.Dimension, "precision", spec.Precision)
		if g.OnIndexCreated != nil {
			g.OnIndexCreated(ctx, spec)
		}
	}

	g.indexReady.Store(true)
	return nil
}

// Upsert writes records to the index in one call.
func (g *Gateway) Upsert(ctx context.Context, records []Record) error {
	idx, err := g.index(ctx)
	if err != nil {
		return err
	}

	ctx, span := observability.StartStoreSpan(ctx, g.cfg.Backend, "upsert", g.cfg.IndexName)
	defer span.End()

	_, err = guard(ctx, g, "upsert", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, idx.Upsert(ctx, records)
	})
	observability.RecordError(span, err)
	return err
}

// Query returns up to topK matches in the store's order.
func (g *Gateway) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	idx, err := g.index(ctx)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartStoreSpan(ctx, g.cfg.Backend, "query", g.cfg.IndexName)
	defer span.End()

	matches, err := guard(ctx, g, "query", func(ctx context.Context) ([]Match, error) {
		return idx.Query(ctx, vector, topK)
	})
	observability.RecordError(span, err)
	return matches, err
}

// Close closes the client if one was created. A later call reconnects and
// re-ensures the index.
func (g *Gateway) Close() error {
	g.indexMu.Lock()
	defer g.indexMu.Unlock()
	g.clientMu.Lock()
	defer g.clientMu.Unlock()

	g.indexReady.Store(false)
	ref := g.client.Swap(nil)
	if ref == nil {
		return nil
	}
	return ref.c.Close()
}

func (g *Gateway) index(ctx context.Context) (Index, error) {
	if err := g.EnsureIndex(ctx); err != nil {
		return nil, err
	}
	c, err := g.Client(ctx)
	if err != nil {
		return nil, err
	}
	return guard(ctx, g, "get_index", func(ctx context.Context) (Index, error) {
		return c.GetIndex(ctx, g.cfg.IndexName)
	})
}

type result[T any] struct {
	val T
	err error
}

// guard runs fn on its own goroutine and waits at most g.cfg.Timeout.
// On deadline it returns a store-timeout error and leaves fn to finish on
// its own; other failures become store errors.
func guard[T any](ctx context.Context, g *Gateway, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	tctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := fn(tctx)
		done <- result[T]{v, err}
	}()

	select {
	case r := <-done:
		if r.err == nil {
			return r.val, nil
		}
		if ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return zero, g.timeoutErr(ctx, op)
		}
		observability.Logger(ctx).Error("vector store call failed", "op", op, "error", r.err)
		return zero, errortypes.Store(op, r.err)
	case <-tctx.Done():
		if err := ctx.Err(); err != nil {
			return zero, errortypes.Store(op, fmt.Errorf("caller gave up: %w", err))
		}
		return zero, g.timeoutErr(ctx, op)
	}
}

func (g *Gateway) timeoutErr(ctx context.Context, op string) error {
	observability.Logger(ctx).Error("vector store call timed out", "op", op, "timeout", g.cfg.Timeout)
	return errortypes.StoreTimeout(op, g.cfg.Timeout)
}
