package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// IngestInput holds the workflow parameters.
type IngestInput struct {
	DocID string
	Text  string
}

// IngestOutput holds the workflow result.
type IngestOutput struct {
	DocID        string
	ChunksStored int
}

// ActivityTimeout bounds one ingestion attempt. The store deadline applies
// per call inside it.
const ActivityTimeout = 10 * time.Minute

// IngestWorkflow runs one document through the ingestion pipeline on a
// worker, retrying transient failures.
func IngestWorkflow(ctx workflow.Context, input IngestInput) (*IngestOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: ActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{ErrTypeInvalidInput},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("ingest workflow started", "doc_id", input.DocID, "text_len", len(input.Text))

	var out IngestOutput
	if err := workflow.ExecuteActivity(ctx, IngestActivity, input).Get(ctx, &out); err != nil {
		return nil, fmt.Errorf("ingest %s: %w", input.DocID, err)
	}

	logger.Info("ingest workflow completed", "doc_id", out.DocID, "chunks_stored", out.ChunksStored)
	return &out, nil
}
