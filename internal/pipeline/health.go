package pipeline

import (
	"context"

	"github.com/efebarandurmaz/ragline/internal/observability"
)

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// HealthReport summarizes dependency reachability.
type HealthReport struct {
	Status      string `json:"status"`
	DBOK        bool   `json:"db_ok"`
	EmbeddingOK bool   `json:"embedding_ok"`
}

// Health checks the index and the embedding model. Failures are logged and
// reported as false; Health itself never fails.
func (s *Service) Health(ctx context.Context) HealthReport {
	log := observability.Logger(ctx)
	r := HealthReport{Status: StatusDegraded}

	if err := s.CheckStore(ctx); err != nil {
		log.Warn("health: vector store unavailable", "error", err)
	} else {
		r.DBOK = true
	}

	if err := s.CheckModel(ctx); err != nil {
		log.Warn("health: embedding model unavailable", "error", err)
	} else {
		r.EmbeddingOK = true
	}

	if r.DBOK && r.EmbeddingOK {
		r.Status = StatusHealthy
	}
	return r
}

// CheckStore ensures the index exists.
func (s *Service) CheckStore(ctx context.Context) error {
	return s.store.EnsureIndex(ctx)
}

// CheckModel ensures the embedding model is loaded.
func (s *Service) CheckModel(ctx context.Context) error {
	_, err := s.encoder.Acquire(ctx)
	return err
}
