package temporal

import (
	"context"
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/efebarandurmaz/ragline/internal/errortypes"
	"github.com/efebarandurmaz/ragline/internal/pipeline"
)

// ErrTypeInvalidInput marks activity failures that retrying cannot fix.
const ErrTypeInvalidInput = "InvalidInput"

// Ingester runs ingestion. *pipeline.Service satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, text, docID string) (pipeline.IngestResult, error)
}

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Ingester Ingester
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

// IngestActivity stores one document.
func IngestActivity(ctx context.Context, input IngestInput) (IngestOutput, error) {
	if deps == nil || deps.Ingester == nil {
		return IngestOutput{}, errors.New("temporal: ingest dependencies not set")
	}

	res, err := deps.Ingester.Ingest(ctx, input.Text, input.DocID)
	if err != nil {
		if errors.Is(err, errortypes.ErrInput) {
			return IngestOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidInput, err)
		}
		return IngestOutput{}, err
	}
	return IngestOutput{DocID: res.DocID, ChunksStored: res.ChunksStored}, nil
}
