// Package pipeline composes chunking, embedding and the vector store into
// ingestion and search.
package pipeline

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/ragline/internal/chunker"
	"github.com/efebarandurmaz/ragline/internal/errortypes"
	"github.com/efebarandurmaz/ragline/internal/llm"
	"github.com/efebarandurmaz/ragline/internal/observability"
	"github.com/efebarandurmaz/ragline/internal/vector"
)

const (
	DefaultTopK = 5
	MaxTopK     = 50
)

// Encoder turns text into vectors.
type Encoder interface {
	Acquire(ctx context.Context) (llm.Provider, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Store persists and queries vectors.
type Store interface {
	EnsureIndex(ctx context.Context) error
	Upsert(ctx context.Context, records []vector.Record) error
	Query(ctx context.Context, vector []float32, topK int) ([]vector.Match, error)
}

// Config holds the search limits.
type Config struct {
	DefaultTopK int
	MaxTopK     int
}

// IngestResult reports what an ingestion stored.
type IngestResult struct {
	DocID        string `json:"doc_id"`
	ChunksStored int    `json:"chunks_stored"`
}

// Result is one search hit.
type Result struct {
	ID    string         `json:"id"`
	Score float64        `json:"score"`
	Text  string         `json:"text"`
	Meta  map[string]any `json:"meta"`
}

// Service runs ingestion and search.
type Service struct {
	chunker *chunker.Chunker
	encoder Encoder
	store   Store
	cfg     Config
	metrics *observability.PipelineMetrics
	audit   *observability.AuditLogger
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records call counts and durations on m.
func WithMetrics(m *observability.PipelineMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAudit writes one audit event per call to l.
func WithAudit(l *observability.AuditLogger) Option {
	return func(s *Service) { s.audit = l }
}

// New creates a Service.
func New(c *chunker.Chunker, enc Encoder, store Store, cfg Config, opts ...Option) *Service {
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = MaxTopK
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	cfg.DefaultTopK = min(cfg.DefaultTopK, cfg.MaxTopK)
	if c == nil {
		c = chunker.New()
	}

	s := &Service{chunker: c, encoder: enc, store: store, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest chunks text, embeds every chunk in one call and stores one record
// per chunk in one call. An empty docID gets a random UUID. Text with no
// content stores nothing and makes no embedding or store call.
func (s *Service) Ingest(ctx context.Context, text, docID string) (res IngestResult, err error) {
	if docID == "" {
		docID = uuid.NewString()
	}
	res.DocID = docID

	ctx, span := observability.StartIngestSpan(ctx, docID, utf8.RuneCountInString(text))
	start := time.Now()
	defer func() {
		observability.RecordError(span, err)
		observability.RecordIngestResult(span, res.ChunksStored)
		span.End()
		s.recordIngest(ctx, res, time.Since(start), err)
	}()

	segments := s.chunker.Split(docID, text)
	if len(segments) == 0 {
		return res, nil
	}

	log := observability.Logger(ctx)
	log.Info("ingestion started", "doc_id", docID, "chunks", len(segments))

	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}

	vectors, err := s.encoder.Embed(ctx, texts)
	if err != nil {
		return res, err
	}
	if len(vectors) != len(segments) {
		return res, errortypes.Embedding("ingest",
			fmt.Sprintf("got %d vectors for %d chunks", len(vectors), len(segments)), nil)
	}

	records := make([]vector.Record, len(segments))
	for i, seg := range segments {
		records[i] = vector.Record{
			ID:     vector.NewChunkID(docID, seg.Index),
			Vector: vectors[i],
			Meta: map[string]any{
				"text":        seg.Text,
				"doc_id":      docID,
				"chunk_index": seg.Index,
			},
		}
	}

	if err := s.store.Upsert(ctx, records); err != nil {
		return res, err
	}

	res.ChunksStored = len(records)
	log.Info("ingestion completed", "doc_id", docID, "chunks_stored", res.ChunksStored)
	return res, nil
}

// ClampTopK bounds topK to [1, MaxTopK], using the default for non-positive values.
func (s *Service) ClampTopK(topK int) int {
	if topK <= 0 {
		return s.cfg.DefaultTopK
	}
	return min(topK, s.cfg.MaxTopK)
}

// Search embeds query once, queries the store once and coerces each match.
func (s *Service) Search(ctx context.Context, query string, topK int) (results []Result, err error) {
	topK = s.ClampTopK(topK)

	ctx, span := observability.StartSearchSpan(ctx, topK)
	start := time.Now()
	defer func() {
		observability.RecordError(span, err)
		observability.RecordSearchResult(span, len(results))
		span.End()
		s.recordSearch(ctx, utf8.RuneCountInString(query), topK, len(results), time.Since(start), err)
	}()

	log := observability.Logger(ctx)
	log.Info("search started", "query", preview(query, 50), "top_k", topK)

	vec, err := s.encoder.EmbedOne(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := s.store.Query(ctx, vec, topK)
	if err != nil {
		return nil, err
	}

	results = make([]Result, len(matches))
	for i, m := range matches {
		results[i] = coerce(m)
	}
	log.Info("search completed", "results", len(results))
	return results, nil
}

func (s *Service) recordIngest(ctx context.Context, res IngestResult, d time.Duration, err error) {
	if s.metrics != nil {
		s.metrics.RecordIngest(d, res.ChunksStored, err)
	}
	if s.audit != nil {
		s.audit.LogIngest(ctx, res.DocID, res.ChunksStored, d, err)
	}
}

func (s *Service) recordSearch(ctx context.Context, queryLen, topK, n int, d time.Duration, err error) {
	if s.metrics != nil {
		s.metrics.RecordSearch(d, n, err)
	}
	if s.audit != nil {
		s.audit.LogSearch(ctx, queryLen, topK, n, d, err)
	}
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
