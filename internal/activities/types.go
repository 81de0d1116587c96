package activities

import "docchat/internal/models"

type ExtractTextInput struct {
	Path string
}

type ExtractTextOutput struct {
	Text      string
	PageCount int
}

type ChunkTextInput struct {
	Text         string
	ChunkSize    int
	ChunkOverlap int
}

type ChunkTextOutput struct {
	Chunks []string
}

type CleanupVectorsInput struct {
	DocumentID   string
	DocumentName string
}

type ProcessChunksInput struct {
	DocumentID   string
	OwnerID      string
	DocumentName string
	Chunks       []string
}

type ProcessChunksOutput struct {
	Records []models.VectorRecord
	Stored  int
	Skipped int
}

type UpsertVectorsInput struct {
	Records []models.VectorRecord
}

type UpsertVectorsOutput struct {
	Upserted int
}

type UpdateDocumentStatusInput struct {
	DocumentID  string
	Status      string
	Progress    *int
	Stage       *string
	TotalPages  *int
	TotalChunks *int
	Error       *string
}
