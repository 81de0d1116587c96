package activities

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"docchat/internal/config"
	"docchat/internal/models"
	"docchat/internal/providers"
)

type fakeDocumentStore struct {
	statuses []string
	progress []int
}

func (f *fakeDocumentStore) UpdateStatus(_ context.Context, _ string, status string, patch models.DocumentPatch) error {
	f.statuses = append(f.statuses, status)
	if patch.Progress != nil {
		f.progress = append(f.progress, *patch.Progress)
	}
	return nil
}

type fakeChunkStore struct {
	upserted     []models.Chunk
	deleted      []string
	deletedNames []string
}

func (f *fakeChunkStore) UpsertChunks(_ context.Context, chunks []models.Chunk) error {
	f.upserted = append(f.upserted, chunks...)
	return nil
}

func (f *fakeChunkStore) DeleteChunksByDocument(_ context.Context, documentID string) error {
	f.deleted = append(f.deleted, documentID)
	return nil
}

func (f *fakeChunkStore) DeleteChunksByDocumentName(_ context.Context, documentName string) error {
	f.deletedNames = append(f.deletedNames, documentName)
	return nil
}

type fakeIndex struct {
	records      []models.VectorRecord
	upserted     []models.VectorRecord
	deletedIDs   []string
	deletedNames []string
	upsertErr    error
}

func (f *fakeIndex) Upsert(_ context.Context, records []models.VectorRecord) (int, error) {
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	f.upserted = append(f.upserted, records...)
	return len(records), nil
}

func (f *fakeIndex) DeleteByDocumentID(_ context.Context, documentID string) error {
	f.deletedIDs = append(f.deletedIDs, documentID)
	kept := f.records[:0]
	for _, r := range f.records {
		if r.Metadata.DocumentID != documentID {
			kept = append(kept, r)
		}
	}
	f.records = kept
	return nil
}

func (f *fakeIndex) DeleteByDocumentName(_ context.Context, documentName string) error {
	f.deletedNames = append(f.deletedNames, documentName)
	kept := f.records[:0]
	for _, r := range f.records {
		if r.Metadata.DocumentName != documentName {
			kept = append(kept, r)
		}
	}
	f.records = kept
	return nil
}

type flakyEmbedder struct {
	failOn string
}

func (f *flakyEmbedder) Embed(_ context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	out := make([][]float32, 0, len(req.Inputs))
	for _, in := range req.Inputs {
		if f.failOn != "" && strings.Contains(in, f.failOn) {
			return nil, providers.ProviderInfo{Name: "flaky"}, errors.New("http 429 rate limited")
		}
		v := make([]float32, req.Dimension)
		v[0] = float32(len(in))
		out = append(out, v)
	}
	return out, providers.ProviderInfo{Name: "flaky"}, nil
}

func testActivities(docs *fakeDocumentStore, chunks *fakeChunkStore, index *fakeIndex, embedder providers.EmbeddingProvider) *Activities {
	cfg := config.Config{ChunkSize: 1000, ChunkOverlap: 200, MinExtractedChars: 50, EmbedDim: 8}
	return New(cfg, docs, chunks, index, embedder, nil)
}

func TestProcessChunksSkipsDuplicates(t *testing.T) {
	docs := &fakeDocumentStore{}
	chunks := &fakeChunkStore{}
	a := testActivities(docs, chunks, &fakeIndex{}, &flakyEmbedder{})

	out, err := a.ProcessChunksActivity(context.Background(), ProcessChunksInput{
		DocumentID:   "doc1",
		DocumentName: "report.pdf",
		Chunks:       []string{"same content", "same   content", "other content"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, out.Stored)
	require.Equal(t, 1, out.Skipped)
	require.Len(t, chunks.upserted, 2)

	// The duplicate still advances the chunk index.
	require.Equal(t, 0, chunks.upserted[0].ChunkIndex)
	require.Equal(t, 2, chunks.upserted[1].ChunkIndex)
	require.Equal(t, "doc1-chunk-2", out.Records[1].ID)
}

func TestProcessChunksEmbedFailureSkipsChunk(t *testing.T) {
	docs := &fakeDocumentStore{}
	chunks := &fakeChunkStore{}
	a := testActivities(docs, chunks, &fakeIndex{}, &flakyEmbedder{failOn: "poison"})

	out, err := a.ProcessChunksActivity(context.Background(), ProcessChunksInput{
		DocumentID: "doc1",
		Chunks:     []string{"good one", "poison pill", "good two"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, out.Stored)
	require.Equal(t, 1, out.Skipped)
	require.Len(t, out.Records, 2)
}

func TestProcessChunksProgressIsMonotonic(t *testing.T) {
	docs := &fakeDocumentStore{}
	a := testActivities(docs, &fakeChunkStore{}, &fakeIndex{}, &flakyEmbedder{})

	inputs := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		inputs = append(inputs, strings.Repeat("x", i+1)+" chunk")
	}
	_, err := a.ProcessChunksActivity(context.Background(), ProcessChunksInput{
		DocumentID: "doc1",
		Chunks:     inputs,
	})
	require.NoError(t, err)
	require.NotEmpty(t, docs.progress)
	prev := 0
	for _, p := range docs.progress {
		require.GreaterOrEqual(t, p, prev)
		require.GreaterOrEqual(t, p, 25)
		require.LessOrEqual(t, p, 90)
		prev = p
	}
	require.Equal(t, 90, docs.progress[len(docs.progress)-1])
}

func TestProcessChunksChunkIDsAreStableAcrossRuns(t *testing.T) {
	in := ProcessChunksInput{DocumentID: "doc1", Chunks: []string{"alpha content", "beta content"}}

	first := &fakeChunkStore{}
	a := testActivities(&fakeDocumentStore{}, first, &fakeIndex{}, &flakyEmbedder{})
	_, err := a.ProcessChunksActivity(context.Background(), in)
	require.NoError(t, err)

	second := &fakeChunkStore{}
	b := testActivities(&fakeDocumentStore{}, second, &fakeIndex{}, &flakyEmbedder{})
	_, err = b.ProcessChunksActivity(context.Background(), in)
	require.NoError(t, err)

	// A retried run upserts the same rows instead of minting new IDs.
	require.Len(t, first.upserted, 2)
	require.Len(t, second.upserted, 2)
	for i := range first.upserted {
		require.Equal(t, first.upserted[i].ID, second.upserted[i].ID)
	}
	require.NotEqual(t, first.upserted[0].ID, first.upserted[1].ID)
}

func TestProcessChunksPageEstimate(t *testing.T) {
	chunks := &fakeChunkStore{}
	a := testActivities(&fakeDocumentStore{}, chunks, &fakeIndex{}, &flakyEmbedder{})

	inputs := []string{"c0", "c1", "c2", "c3", "c4", "c5", "c6"}
	_, err := a.ProcessChunksActivity(context.Background(), ProcessChunksInput{DocumentID: "doc1", Chunks: inputs})
	require.NoError(t, err)
	require.Len(t, chunks.upserted, 7)
	require.Equal(t, 1, chunks.upserted[0].PageNumber)
	require.Equal(t, 1, chunks.upserted[2].PageNumber)
	require.Equal(t, 2, chunks.upserted[3].PageNumber)
	require.Equal(t, 3, chunks.upserted[6].PageNumber)
}

func TestCleanupVectorsClearsIndexAndChunks(t *testing.T) {
	chunks := &fakeChunkStore{}
	index := &fakeIndex{}
	a := testActivities(&fakeDocumentStore{}, chunks, index, &flakyEmbedder{})

	err := a.CleanupVectorsActivity(context.Background(), CleanupVectorsInput{DocumentID: "doc1", DocumentName: "report.pdf"})
	require.NoError(t, err)
	require.Equal(t, []string{"doc1"}, index.deletedIDs)
	require.Equal(t, []string{"report.pdf"}, index.deletedNames)
	require.Equal(t, []string{"doc1"}, chunks.deleted)
	require.Equal(t, []string{"report.pdf"}, chunks.deletedNames)
}

func TestCleanupVectorsRemovesPreviousUploadOfSameName(t *testing.T) {
	// A re-upload carries a fresh document ID; vectors from the earlier
	// upload are only reachable through the display name.
	chunks := &fakeChunkStore{}
	index := &fakeIndex{records: []models.VectorRecord{
		{ID: "old-doc-chunk-0", Metadata: models.RecordMetadata{DocumentID: "old-doc", DocumentName: "report.pdf"}},
		{ID: "old-doc-chunk-1", Metadata: models.RecordMetadata{DocumentID: "old-doc", DocumentName: "report.pdf"}},
		{ID: "other-doc-chunk-0", Metadata: models.RecordMetadata{DocumentID: "other-doc", DocumentName: "notes.pdf"}},
	}}
	a := testActivities(&fakeDocumentStore{}, chunks, index, &flakyEmbedder{})

	err := a.CleanupVectorsActivity(context.Background(), CleanupVectorsInput{DocumentID: "new-doc", DocumentName: "report.pdf"})
	require.NoError(t, err)
	require.Len(t, index.records, 1)
	require.Equal(t, "other-doc-chunk-0", index.records[0].ID)
	require.Equal(t, []string{"report.pdf"}, chunks.deletedNames)
}

func TestCleanupVectorsWithoutNameDeletesByIDOnly(t *testing.T) {
	chunks := &fakeChunkStore{}
	index := &fakeIndex{}
	a := testActivities(&fakeDocumentStore{}, chunks, index, &flakyEmbedder{})

	err := a.CleanupVectorsActivity(context.Background(), CleanupVectorsInput{DocumentID: "doc1"})
	require.NoError(t, err)
	require.Equal(t, []string{"doc1"}, index.deletedIDs)
	require.Empty(t, index.deletedNames)
}

func TestUpsertVectorsActivityPropagatesError(t *testing.T) {
	index := &fakeIndex{upsertErr: errors.New("service unavailable")}
	a := testActivities(&fakeDocumentStore{}, &fakeChunkStore{}, index, &flakyEmbedder{})

	_, err := a.UpsertVectorsActivity(context.Background(), UpsertVectorsInput{Records: []models.VectorRecord{{ID: "r"}}})
	require.Error(t, err)
}

func TestChunkTextActivityUsesConfigDefaults(t *testing.T) {
	a := testActivities(&fakeDocumentStore{}, &fakeChunkStore{}, &fakeIndex{}, &flakyEmbedder{})

	out, err := a.ChunkTextActivity(context.Background(), ChunkTextInput{Text: strings.Repeat("a", 2500)})
	require.NoError(t, err)
	require.Len(t, out.Chunks, 3)
}
