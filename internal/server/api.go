package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/ragline/internal/errortypes"
	"github.com/efebarandurmaz/ragline/internal/observability"
	"github.com/efebarandurmaz/ragline/internal/pipeline"
)

// APIPrefix is where the knowledge-base routes are mounted.
const APIPrefix = "/api/v1"

// Pipeline is the ingestion and search backend. *pipeline.Service satisfies it.
type Pipeline interface {
	Ingest(ctx context.Context, text, docID string) (pipeline.IngestResult, error)
	Search(ctx context.Context, query string, topK int) ([]pipeline.Result, error)
	Health(ctx context.Context) pipeline.HealthReport
}

// AsyncIngester hands ingestion to a background workflow.
type AsyncIngester interface {
	StartIngest(ctx context.Context, docID, text string) (workflowID string, err error)
}

// IngestResponse is returned by both synchronous ingestion routes.
type IngestResponse struct {
	DocID        string `json:"doc_id"`
	ChunksStored int    `json:"chunks_stored"`
	Message      string `json:"message"`
}

// SearchResponse is returned by the search route.
type SearchResponse struct {
	Query   string            `json:"query"`
	Results []pipeline.Result `json:"results"`
	Count   int               `json:"count"`
}

// AsyncIngestResponse is returned when a workflow was started.
type AsyncIngestResponse struct {
	WorkflowID string `json:"workflow_id"`
	DocID      string `json:"doc_id"`
}

// ErrorResponse carries a message for non-validation failures.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// API serves the knowledge-base routes.
type API struct {
	pipeline Pipeline
	async    AsyncIngester
	audit    *observability.AuditLogger
}

// APIOption configures an API.
type APIOption func(*API)

// WithAsyncIngester enables POST /api/v1/ingest/async.
func WithAsyncIngester(a AsyncIngester) APIOption {
	return func(api *API) { api.async = a }
}

// WithAuditLogger records started workflows.
func WithAuditLogger(l *observability.AuditLogger) APIOption {
	return func(api *API) { api.audit = l }
}

// NewAPI creates an API over p.
func NewAPI(p Pipeline, opts ...APIOption) *API {
	api := &API{pipeline: p}
	for _, opt := range opts {
		opt(api)
	}
	return api
}

// Register mounts the routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", a.handleRoot)
	mux.HandleFunc("POST "+APIPrefix+"/ingest", a.handleIngest)
	mux.HandleFunc("POST "+APIPrefix+"/ingest/document", a.handleIngestDocument)
	mux.HandleFunc("POST "+APIPrefix+"/ingest/async", a.handleIngestAsync)
	mux.HandleFunc("POST "+APIPrefix+"/search", a.handleSearch)
	mux.HandleFunc("GET "+APIPrefix+"/health", a.handleHealth)
}

func (a *API) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Knowledge Base API",
		"docs":    APIPrefix,
	})
}

// handleIngest handles POST /api/v1/ingest
func (a *API) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, err, "")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, r, err, "")
		return
	}
	a.ingest(w, r, *req.Text, deref(req.DocID), "Ingestion failed")
}

// handleIngestDocument handles POST /api/v1/ingest/document
func (a *API) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, err, "")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, r, err, "")
		return
	}
	a.ingest(w, r, *req.Content, deref(req.DocID), "Document ingestion failed")
}

func (a *API) ingest(w http.ResponseWriter, r *http.Request, text, docID, failure string) {
	res, err := a.pipeline.Ingest(r.Context(), text, docID)
	if err != nil {
		respondError(w, r, err, failure)
		return
	}
	respondJSON(w, http.StatusOK, IngestResponse{
		DocID:        res.DocID,
		ChunksStored: res.ChunksStored,
		Message:      fmt.Sprintf("Stored %d chunks", res.ChunksStored),
	})
}

// handleIngestAsync handles POST /api/v1/ingest/async
func (a *API) handleIngestAsync(w http.ResponseWriter, r *http.Request) {
	if a.async == nil {
		respondJSON(w, http.StatusServiceUnavailable, ErrorResponse{Detail: "Asynchronous ingestion is not configured"})
		return
	}

	var req IngestRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, err, "")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, r, err, "")
		return
	}

	docID := deref(req.DocID)
	if docID == "" {
		docID = uuid.NewString()
	}

	workflowID, err := a.async.StartIngest(r.Context(), docID, *req.Text)
	if err != nil {
		observability.Logger(r.Context()).Error("starting ingest workflow failed", "doc_id", docID, "error", err)
		respondJSON(w, http.StatusServiceUnavailable, ErrorResponse{Detail: "Could not start ingestion workflow"})
		return
	}
	a.audit.LogWorkflowStart(r.Context(), workflowID, docID)

	respondJSON(w, http.StatusAccepted, AsyncIngestResponse{WorkflowID: workflowID, DocID: docID})
}

// handleSearch handles POST /api/v1/search
func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, err, "")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, r, err, "")
		return
	}

	results, err := a.pipeline.Search(r.Context(), *req.Query, req.topK())
	if err != nil {
		if errors.Is(err, errortypes.ErrInput) {
			err = &ValidationError{Message: "Validation failed", Detail: []FieldError{{Field: "query", Msg: errorMessage(err)}}}
		}
		respondError(w, r, err, "Search failed")
		return
	}
	if results == nil {
		results = []pipeline.Result{}
	}
	respondJSON(w, http.StatusOK, SearchResponse{Query: *req.Query, Results: results, Count: len(results)})
}

// handleHealth handles GET /api/v1/health. It always answers 200 and reports
// dependency state in the body.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, a.pipeline.Health(r.Context()))
}

// respondError maps err to a status and body. failure is the generic
// message used for unexpected pipeline errors.
func respondError(w http.ResponseWriter, r *http.Request, err error, failure string) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		respondJSON(w, http.StatusUnprocessableEntity, verr)
		return
	}

	log := observability.Logger(r.Context())
	status := errortypes.HTTPStatus(err)
	switch {
	case errortypes.IsTimeout(err):
		log.Error("request timed out in vector store", "path", r.URL.Path, "error", err)
		respondJSON(w, status, ErrorResponse{Detail: "Vector store request timed out"})
	case status == http.StatusUnprocessableEntity:
		respondJSON(w, status, ErrorResponse{Detail: errorMessage(err)})
	default:
		log.Error("request failed", "path", r.URL.Path, "kind", errortypes.KindOf(err), "error", err)
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Detail: failure})
	}
}

func errorMessage(err error) string {
	var e *errortypes.Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}

// respondJSON writes a JSON response. The body is encoded before the status
// is sent, so an unencodable value yields a 500 instead of an empty 200.
func respondJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
		buf.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(ErrorResponse{Detail: "Failed to encode response"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Debug("write JSON response", "error", err)
	}
}
