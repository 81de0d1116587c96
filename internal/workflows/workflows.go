package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"docchat/internal/activities"
	"docchat/internal/extract"
	"docchat/internal/models"
)

const QueryGetIngestStatus = "GetIngestStatus"

// DocumentIngestWorkflow runs a single document through extraction,
// chunking, embedding and indexing. Expected document failures (no
// text, corrupt file, empty chunking) mark the record failed and return
// "failed" without raising, so the workflow history stays clean.
func DocumentIngestWorkflow(ctx workflow.Context, input DocumentIngestInput) (string, error) {
	status := IngestStatus{
		DocumentID: input.DocumentID,
		Status:     models.StatusProcessing,
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetIngestStatus, func() (IngestStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	logger := workflow.GetLogger(ctx)

	setProgress := func(progress int, stage string, patch activities.UpdateDocumentStatusInput) {
		status.Progress = progress
		status.Stage = stage
		patch.DocumentID = input.DocumentID
		patch.Status = models.StatusProcessing
		patch.Progress = &progress
		patch.Stage = &stage
		_ = workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", patch).Get(ctx, nil)
	}

	fail := func(reason string) (string, error) {
		status.Status = models.StatusFailed
		status.FailReason = reason
		_ = workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", activities.UpdateDocumentStatusInput{
			DocumentID: input.DocumentID,
			Status:     models.StatusFailed,
			Error:      &reason,
			Stage:      stringPtr("Processing failed"),
		}).Get(ctx, nil)
		return status.Status, nil
	}

	setProgress(5, "Preparing document...", activities.UpdateDocumentStatusInput{})

	var textOut activities.ExtractTextOutput
	if err := workflow.ExecuteActivity(ctx, "ExtractTextActivity", activities.ExtractTextInput{Path: input.FilePath}).Get(ctx, &textOut); err != nil {
		_, reason := extract.Classify(err)
		logger.Warn("text extraction failed", "document_id", input.DocumentID, "error", err)
		return fail(reason)
	}
	status.TotalPages = textOut.PageCount
	setProgress(20, "Text extracted, preparing chunks...", activities.UpdateDocumentStatusInput{
		TotalPages: &textOut.PageCount,
	})

	// Clear leftovers from a previous ingest of the same document.
	// Best effort; a fresh document has nothing to clean.
	if err := workflow.ExecuteActivity(ctx, "CleanupVectorsActivity", activities.CleanupVectorsInput{
		DocumentID:   input.DocumentID,
		DocumentName: input.DisplayName,
	}).Get(ctx, nil); err != nil {
		logger.Warn("vector cleanup failed", "document_id", input.DocumentID, "error", err)
	}

	var chunkOut activities.ChunkTextOutput
	if err := workflow.ExecuteActivity(ctx, "ChunkTextActivity", activities.ChunkTextInput{
		Text:         textOut.Text,
		ChunkSize:    input.ChunkSize,
		ChunkOverlap: input.ChunkOverlap,
	}).Get(ctx, &chunkOut); err != nil {
		return fail("failed to split document text: " + err.Error())
	}
	if len(chunkOut.Chunks) == 0 {
		return fail("document produced no content chunks")
	}
	status.TotalChunks = len(chunkOut.Chunks)
	total := len(chunkOut.Chunks)
	setProgress(25, "Creating embeddings...", activities.UpdateDocumentStatusInput{
		TotalChunks: &total,
	})

	// The chunk loop heartbeats once per chunk, so only this activity
	// carries a heartbeat deadline.
	embedCtx := workflow.WithHeartbeatTimeout(ctx, 2*time.Minute)
	var processed activities.ProcessChunksOutput
	if err := workflow.ExecuteActivity(embedCtx, "ProcessChunksActivity", activities.ProcessChunksInput{
		DocumentID:   input.DocumentID,
		OwnerID:      input.OwnerID,
		DocumentName: input.DisplayName,
		Chunks:       chunkOut.Chunks,
	}).Get(ctx, &processed); err != nil {
		return fail("embedding failed: " + err.Error())
	}
	status.ChunksStored = processed.Stored
	status.ChunksSkipped = processed.Skipped
	if processed.Stored == 0 {
		return fail("no chunks could be embedded")
	}

	setProgress(92, "Storing vectors in search index...", activities.UpdateDocumentStatusInput{})
	if err := workflow.ExecuteActivity(ctx, "UpsertVectorsActivity", activities.UpsertVectorsInput{
		Records: processed.Records,
	}).Get(ctx, nil); err != nil {
		// Local retrieval still works from stored chunks.
		logger.Warn("vector index upsert failed", "document_id", input.DocumentID, "error", err)
	}
	setProgress(98, "Finalizing...", activities.UpdateDocumentStatusInput{})

	status.Status = models.StatusCompleted
	status.Progress = 100
	status.Stage = "Processing complete"
	if err := workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", activities.UpdateDocumentStatusInput{
		DocumentID: input.DocumentID,
		Status:     models.StatusCompleted,
		Progress:   intPtr(100),
		Stage:      stringPtr("Processing complete"),
	}).Get(ctx, nil); err != nil {
		return "", err
	}
	return status.Status, nil
}

func intPtr(v int) *int          { return &v }
func stringPtr(v string) *string { return &v }
