package activities

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"docchat/internal/config"
	"docchat/internal/extract"
	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/util"
)

// DocumentStore is the slice of the document repository the pipeline
// needs for status updates.
type DocumentStore interface {
	UpdateStatus(ctx context.Context, id, status string, patch models.DocumentPatch) error
}

type ChunkStore interface {
	UpsertChunks(ctx context.Context, chunks []models.Chunk) error
	DeleteChunksByDocument(ctx context.Context, documentID string) error
	DeleteChunksByDocumentName(ctx context.Context, documentName string) error
}

type VectorIndex interface {
	Upsert(ctx context.Context, records []models.VectorRecord) (int, error)
	DeleteByDocumentID(ctx context.Context, documentID string) error
	DeleteByDocumentName(ctx context.Context, documentName string) error
}

type Activities struct {
	cfg       config.Config
	documents DocumentStore
	chunks    ChunkStore
	index     VectorIndex
	embedder  providers.EmbeddingProvider
	log       *zap.Logger
}

func New(cfg config.Config, documents DocumentStore, chunks ChunkStore, index VectorIndex, embedder providers.EmbeddingProvider, log *zap.Logger) *Activities {
	if log == nil {
		log = zap.NewNop()
	}
	return &Activities{
		cfg:       cfg,
		documents: documents,
		chunks:    chunks,
		index:     index,
		embedder:  embedder,
		log:       log,
	}
}

func (a *Activities) ExtractTextActivity(ctx context.Context, in ExtractTextInput) (ExtractTextOutput, error) {
	_ = ctx
	res, err := extract.FromFile(in.Path, a.cfg.MinExtractedChars)
	if err != nil {
		return ExtractTextOutput{}, err
	}
	return ExtractTextOutput{Text: res.Text, PageCount: res.PageCount}, nil
}

func (a *Activities) ChunkTextActivity(ctx context.Context, in ChunkTextInput) (ChunkTextOutput, error) {
	_ = ctx
	if in.ChunkSize <= 0 {
		in.ChunkSize = a.cfg.ChunkSize
	}
	if in.ChunkOverlap < 0 || in.ChunkOverlap >= in.ChunkSize {
		in.ChunkOverlap = a.cfg.ChunkOverlap
	}
	chunks, truncated := util.SplitText(in.Text, in.ChunkSize, in.ChunkOverlap)
	if truncated {
		a.log.Warn("text splitter hit iteration ceiling, tail of document dropped",
			zap.Int("chunks", len(chunks)))
	}
	return ChunkTextOutput{Chunks: chunks}, nil
}

// CleanupVectorsActivity clears any vectors and stored chunks left over
// from a previous ingest of the same document. A re-upload carries a
// fresh document ID, so stale entries from earlier uploads are matched
// by display name; the ID-based delete covers retries of this ingest.
func (a *Activities) CleanupVectorsActivity(ctx context.Context, in CleanupVectorsInput) error {
	if in.DocumentName != "" {
		if err := a.index.DeleteByDocumentName(ctx, in.DocumentName); err != nil {
			return fmt.Errorf("cleanup vectors for %q: %w", in.DocumentName, err)
		}
		if err := a.chunks.DeleteChunksByDocumentName(ctx, in.DocumentName); err != nil {
			return fmt.Errorf("cleanup chunks for %q: %w", in.DocumentName, err)
		}
	}
	if err := a.index.DeleteByDocumentID(ctx, in.DocumentID); err != nil {
		return fmt.Errorf("cleanup vectors for %s: %w", in.DocumentID, err)
	}
	if err := a.chunks.DeleteChunksByDocument(ctx, in.DocumentID); err != nil {
		return fmt.Errorf("cleanup chunks for %s: %w", in.DocumentID, err)
	}
	return nil
}

// ProcessChunksActivity embeds chunks one at a time, persists them, and
// builds the vector records for the index. Duplicate chunk content is
// skipped but still advances the chunk index, so page estimates stay
// aligned with the split order. An embedding failure drops that chunk
// and continues with the rest.
func (a *Activities) ProcessChunksActivity(ctx context.Context, in ProcessChunksInput) (ProcessChunksOutput, error) {
	total := len(in.Chunks)
	out := ProcessChunksOutput{Records: make([]models.VectorRecord, 0, total)}
	stored := make([]models.Chunk, 0, total)
	seen := make(map[string]struct{}, total)

	for i, raw := range in.Chunks {
		content := util.SanitizeText(raw)
		if content == "" {
			out.Skipped++
			continue
		}
		hash := util.SHA256Hex([]byte(util.NormalizeSpace(content)))
		if _, dup := seen[hash]; dup {
			out.Skipped++
			a.reportChunkProgress(ctx, in.DocumentID, i+1, total)
			continue
		}
		seen[hash] = struct{}{}

		vectors, _, err := a.embedder.Embed(ctx, providers.EmbedRequest{
			Operation: "ingest.embed",
			Inputs:    []string{content},
			Dimension: a.cfg.EmbedDim,
		})
		if err != nil || len(vectors) == 0 {
			kind := providers.ClassifyError(err)
			a.log.Warn("embedding failed, skipping chunk",
				zap.String("document_id", in.DocumentID),
				zap.Int("chunk_index", i),
				zap.String("error_type", string(kind)),
				zap.Error(err))
			out.Skipped++
			a.reportChunkProgress(ctx, in.DocumentID, i+1, total)
			continue
		}

		chunk := models.Chunk{
			ID:          chunkID(in.DocumentID, i),
			DocumentID:  in.DocumentID,
			OwnerID:     in.OwnerID,
			ChunkIndex:  i,
			Content:     content,
			PageNumber:  i/3 + 1,
			ContentHash: hash,
			Embedding:   vectors[0],
		}
		stored = append(stored, chunk)
		out.Records = append(out.Records, models.VectorRecord{
			ID:     fmt.Sprintf("%s-chunk-%d", in.DocumentID, i),
			Values: vectors[0],
			Metadata: models.RecordMetadata{
				DocumentID:   in.DocumentID,
				DocumentName: in.DocumentName,
				OwnerID:      in.OwnerID,
				ChunkIndex:   i,
				Content:      content,
				PageNumber:   chunk.PageNumber,
				ContentLen:   len(content),
				WordCount:    len(strings.Fields(content)),
			},
		})
		a.reportChunkProgress(ctx, in.DocumentID, i+1, total)
	}

	if err := a.chunks.UpsertChunks(ctx, stored); err != nil {
		return ProcessChunksOutput{}, err
	}
	out.Stored = len(stored)
	return out, nil
}

// chunkID derives a stable UUID from the document and chunk position, so
// a retried activity run upserts the same rows instead of minting new ones.
func chunkID(documentID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s-chunk-%d", documentID, index))).String()
}

// reportChunkProgress maps chunk completion onto the 25..90 band of the
// document progress scale and heartbeats the activity, so a stalled
// worker is noticed mid-loop. A failed write only loses one progress tick.
func (a *Activities) reportChunkProgress(ctx context.Context, documentID string, done, total int) {
	if total <= 0 {
		return
	}
	if activity.IsActivity(ctx) {
		activity.RecordHeartbeat(ctx, done)
	}
	progress := 25 + (done*65)/total
	stage := fmt.Sprintf("Creating embeddings (%d/%d)...", done, total)
	err := a.documents.UpdateStatus(ctx, documentID, models.StatusProcessing, models.DocumentPatch{
		Progress: &progress,
		Stage:    &stage,
	})
	if err != nil {
		a.log.Warn("progress update failed", zap.String("document_id", documentID), zap.Error(err))
	}
}

func (a *Activities) UpsertVectorsActivity(ctx context.Context, in UpsertVectorsInput) (UpsertVectorsOutput, error) {
	n, err := a.index.Upsert(ctx, in.Records)
	if err != nil {
		return UpsertVectorsOutput{Upserted: n}, err
	}
	return UpsertVectorsOutput{Upserted: n}, nil
}

func (a *Activities) UpdateDocumentStatusActivity(ctx context.Context, in UpdateDocumentStatusInput) error {
	return a.documents.UpdateStatus(ctx, in.DocumentID, in.Status, models.DocumentPatch{
		Progress:    in.Progress,
		Stage:       in.Stage,
		TotalPages:  in.TotalPages,
		TotalChunks: in.TotalChunks,
		Error:       in.Error,
	})
}
