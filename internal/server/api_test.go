package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/ragline/internal/chunker"
	"github.com/efebarandurmaz/ragline/internal/embedding"
	"github.com/efebarandurmaz/ragline/internal/errortypes"
	"github.com/efebarandurmaz/ragline/internal/llm/local"
	"github.com/efebarandurmaz/ragline/internal/observability"
	"github.com/efebarandurmaz/ragline/internal/pipeline"
	"github.com/efebarandurmaz/ragline/internal/vector"
)

type fakePipeline struct {
	ingestErr error
	searchErr error
	results   []pipeline.Result
	health    pipeline.HealthReport

	ingests   atomic.Int64
	lastText  string
	lastDocID string
	lastTopK  int
}

func (f *fakePipeline) Ingest(ctx context.Context, text, docID string) (pipeline.IngestResult, error) {
	f.ingests.Add(1)
	f.lastText, f.lastDocID = text, docID
	if f.ingestErr != nil {
		return pipeline.IngestResult{}, f.ingestErr
	}
	if docID == "" {
		docID = "generated"
	}
	return pipeline.IngestResult{DocID: docID, ChunksStored: strings.Count(text, ".")}, nil
}

func (f *fakePipeline) Search(ctx context.Context, query string, topK int) ([]pipeline.Result, error) {
	f.lastTopK = topK
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results, nil
}

func (f *fakePipeline) Health(ctx context.Context) pipeline.HealthReport { return f.health }

type fakeAsync struct {
	err    error
	docIDs []string
}

func (f *fakeAsync) StartIngest(ctx context.Context, docID, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.docIDs = append(f.docIDs, docID)
	return "ingest-" + docID, nil
}

func newTestServer(p Pipeline, opts ...APIOption) *Server {
	return New(Config{}, NewAPI(p, opts...), observability.NewPipelineMetrics())
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRoot(t *testing.T) {
	rec := do(t, newTestServer(&fakePipeline{}), http.MethodGet, "/", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"message": "Knowledge Base API", "docs": "/api/v1"}, decodeBody[map[string]string](t, rec))
}

func TestIngest(t *testing.T) {
	p := &fakePipeline{}
	rec := do(t, newTestServer(p), http.MethodPost, "/api/v1/ingest", `{"text": "One. Two.", "doc_id": "doc_1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, IngestResponse{DocID: "doc_1", ChunksStored: 2, Message: "Stored 2 chunks"}, decodeBody[IngestResponse](t, rec))
	assert.Equal(t, "One. Two.", p.lastText)
}

func TestIngest_OmittedDocID(t *testing.T) {
	p := &fakePipeline{}
	rec := do(t, newTestServer(p), http.MethodPost, "/api/v1/ingest", `{"text": "Hello."}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", p.lastDocID)
	assert.Equal(t, "generated", decodeBody[IngestResponse](t, rec).DocID)
}

func TestIngestDocument(t *testing.T) {
	p := &fakePipeline{}
	rec := do(t, newTestServer(p), http.MethodPost, "/api/v1/ingest/document", `{"content": "A. B. C."}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Stored 3 chunks", decodeBody[IngestResponse](t, rec).Message)
}

func TestIngest_Validation(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		body  string
		field string
	}{
		{"missing text", "/api/v1/ingest", `{}`, "text"},
		{"empty text", "/api/v1/ingest", `{"text": ""}`, "text"},
		{"text too long", "/api/v1/ingest", `{"text": "` + strings.Repeat("a", MaxTextLen+1) + `"}`, "text"},
		{"doc id with space", "/api/v1/ingest", `{"text": "x", "doc_id": "bad id"}`, "doc_id"},
		{"empty doc id", "/api/v1/ingest", `{"text": "x", "doc_id": ""}`, "doc_id"},
		{"doc id too long", "/api/v1/ingest", `{"text": "x", "doc_id": "` + strings.Repeat("a", MaxDocIDLen+1) + `"}`, "doc_id"},
		{"missing content", "/api/v1/ingest/document", `{"text": "x"}`, "content"},
		{"malformed json", "/api/v1/ingest", `{"text": `, "body"},
		{"wrong type", "/api/v1/ingest", `{"text": 42}`, "body"},
		{"empty body", "/api/v1/ingest", ``, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipeline{}
			rec := do(t, newTestServer(p), http.MethodPost, tt.path, tt.body)

			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			body := decodeBody[ValidationError](t, rec)
			assert.Equal(t, "Validation failed", body.Message)
			require.NotEmpty(t, body.Detail)
			assert.Equal(t, tt.field, body.Detail[0].Field)
			assert.Zero(t, p.ingests.Load())
		})
	}
}

func TestIngest_DocIDAtLimit(t *testing.T) {
	id := strings.Repeat("a", MaxDocIDLen)
	rec := do(t, newTestServer(&fakePipeline{}), http.MethodPost, "/api/v1/ingest", `{"text": "x", "doc_id": "`+id+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngest_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		err    error
		status int
		detail string
	}{
		{"timeout", "/api/v1/ingest", `{"text": "x"}`, errortypes.StoreTimeout("upsert", 30 * time.Second), http.StatusGatewayTimeout, "Vector store request timed out"},
		{"store failure", "/api/v1/ingest", `{"text": "x"}`, errortypes.Store("upsert", errors.New("refused")), http.StatusInternalServerError, "Ingestion failed"},
		{"embedding failure", "/api/v1/ingest", `{"text": "x"}`, errortypes.Embedding("embed", "bad", nil), http.StatusInternalServerError, "Ingestion failed"},
		{"document failure", "/api/v1/ingest/document", `{"content": "x"}`, errors.New("boom"), http.StatusInternalServerError, "Document ingestion failed"},
		{"document timeout", "/api/v1/ingest/document", `{"content": "x"}`, errortypes.StoreTimeout("upsert", time.Second), http.StatusGatewayTimeout, "Vector store request timed out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestServer(&fakePipeline{ingestErr: tt.err}), http.MethodPost, tt.path, tt.body)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, ErrorResponse{Detail: tt.detail}, decodeBody[ErrorResponse](t, rec))
		})
	}
}

func TestSearch(t *testing.T) {
	p := &fakePipeline{results: []pipeline.Result{
		{ID: "c1", Score: 0.9, Text: "hello", Meta: map[string]any{"text": "hello"}},
	}}
	rec := do(t, newTestServer(p), http.MethodPost, "/api/v1/search", `{"query": "hi", "top_k": 3}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[SearchResponse](t, rec)
	assert.Equal(t, "hi", body.Query)
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "c1", body.Results[0].ID)
	assert.Equal(t, 3, p.lastTopK)
}

// nanStore returns one match whose similarity is not a finite number.
type nanStore struct{ similarity any }

func (nanStore) EnsureIndex(ctx context.Context) error { return nil }

func (nanStore) Upsert(ctx context.Context, records []vector.Record) error { return nil }

func (s nanStore) Query(ctx context.Context, v []float32, topK int) ([]vector.Match, error) {
	return []vector.Match{{ID: "a", Similarity: s.similarity, Meta: map[string]any{"text": "zero vector"}}}, nil
}

func TestSearch_NonFiniteSimilarityStillEncodes(t *testing.T) {
	for _, sim := range []any{"NaN", math.NaN(), float32(math.Inf(1))} {
		svc := pipeline.New(
			chunker.New(),
			embedding.New(embedding.Static(local.New(8)), 8, "local"),
			nanStore{similarity: sim},
			pipeline.Config{},
		)

		rec := do(t, newTestServer(svc), http.MethodPost, "/api/v1/search", `{"query": "..."}`)

		require.Equal(t, http.StatusOK, rec.Code, "similarity %v", sim)
		body := decodeBody[SearchResponse](t, rec)
		require.Len(t, body.Results, 1)
		assert.Equal(t, "a", body.Results[0].ID)
		assert.Zero(t, body.Results[0].Score)
		assert.Equal(t, "zero vector", body.Results[0].Text)
	}
}

func TestRespondJSON_UnencodableValue(t *testing.T) {
	rec := httptest.NewRecorder()

	respondJSON(rec, http.StatusOK, map[string]float64{"score": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to encode response", decodeBody[ErrorResponse](t, rec).Detail)
}

func TestSearch_DefaultTopK(t *testing.T) {
	p := &fakePipeline{}
	rec := do(t, newTestServer(p), http.MethodPost, "/api/v1/search", `{"query": "hi"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, DefaultTopK, p.lastTopK)

	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, []any{}, body["results"])
	assert.Equal(t, float64(0), body["count"])
}

func TestSearch_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing query", `{}`, "query"},
		{"empty query", `{"query": ""}`, "query"},
		{"query too long", `{"query": "` + strings.Repeat("q", MaxQueryLen+1) + `"}`, "query"},
		{"top_k zero", `{"query": "q", "top_k": 0}`, "top_k"},
		{"top_k above max", `{"query": "q", "top_k": 51}`, "top_k"},
		{"top_k negative", `{"query": "q", "top_k": -1}`, "top_k"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestServer(&fakePipeline{}), http.MethodPost, "/api/v1/search", tt.body)

			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Equal(t, tt.field, decodeBody[ValidationError](t, rec).Detail[0].Field)
		})
	}
}

func TestSearch_ErrorMapping(t *testing.T) {
	rec := do(t, newTestServer(&fakePipeline{searchErr: errortypes.StoreTimeout("query", time.Second)}),
		http.MethodPost, "/api/v1/search", `{"query": "q"}`)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

	rec = do(t, newTestServer(&fakePipeline{searchErr: errortypes.Store("query", errors.New("x"))}),
		http.MethodPost, "/api/v1/search", `{"query": "q"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Search failed", decodeBody[ErrorResponse](t, rec).Detail)

	rec = do(t, newTestServer(&fakePipeline{searchErr: errortypes.Input("embed_one", "text must be non-empty")}),
		http.MethodPost, "/api/v1/search", `{"query": "   "}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody[ValidationError](t, rec)
	assert.Equal(t, []FieldError{{Field: "query", Msg: "text must be non-empty"}}, body.Detail)
}

func TestHealthEndpoint(t *testing.T) {
	for _, report := range []pipeline.HealthReport{
		{Status: pipeline.StatusHealthy, DBOK: true, EmbeddingOK: true},
		{Status: pipeline.StatusDegraded, DBOK: false, EmbeddingOK: true},
	} {
		rec := do(t, newTestServer(&fakePipeline{health: report}), http.MethodGet, "/api/v1/health", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, report, decodeBody[pipeline.HealthReport](t, rec))
	}
}

func TestIngestAsync(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		rec := do(t, newTestServer(&fakePipeline{}), http.MethodPost, "/api/v1/ingest/async", `{"text": "x"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("started", func(t *testing.T) {
		async := &fakeAsync{}
		p := &fakePipeline{}
		rec := do(t, newTestServer(p, WithAsyncIngester(async)), http.MethodPost, "/api/v1/ingest/async", `{"text": "x", "doc_id": "d1"}`)

		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, AsyncIngestResponse{WorkflowID: "ingest-d1", DocID: "d1"}, decodeBody[AsyncIngestResponse](t, rec))
		assert.Zero(t, p.ingests.Load(), "async must not ingest inline")
	})

	t.Run("generates doc id", func(t *testing.T) {
		async := &fakeAsync{}
		rec := do(t, newTestServer(&fakePipeline{}, WithAsyncIngester(async)), http.MethodPost, "/api/v1/ingest/async", `{"text": "x"}`)

		require.Equal(t, http.StatusAccepted, rec.Code)
		require.Len(t, async.docIDs, 1)
		assert.Len(t, async.docIDs[0], 36)
	})

	t.Run("start failure", func(t *testing.T) {
		rec := do(t, newTestServer(&fakePipeline{}, WithAsyncIngester(&fakeAsync{err: errors.New("down")})),
			http.MethodPost, "/api/v1/ingest/async", `{"text": "x"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("validation", func(t *testing.T) {
		rec := do(t, newTestServer(&fakePipeline{}, WithAsyncIngester(&fakeAsync{})), http.MethodPost, "/api/v1/ingest/async", `{}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestRequestID(t *testing.T) {
	s := newTestServer(&fakePipeline{})

	rec := do(t, s, http.MethodGet, "/", "")
	assert.Len(t, rec.Header().Get(RequestIDHeader), 16)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "caller-id")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "caller-id", rec.Header().Get(RequestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	rec := do(t, newTestServer(&fakePipeline{}), http.MethodOptions, "/api/v1/search", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(&fakePipeline{})
	do(t, s, http.MethodGet, "/", "")

	rec := do(t, s, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ragline_http_requests_total 2")
}

func TestUnknownRoute(t *testing.T) {
	rec := do(t, newTestServer(&fakePipeline{}), http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, newTestServer(&fakePipeline{}), http.MethodGet, "/api/v1/ingest", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
