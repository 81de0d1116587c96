package models

import "time"

const (
	StatusUploading  = "uploading"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type Document struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id,omitempty"`
	DisplayName string     `json:"display_name"`
	Filename    string     `json:"filename"`
	SizeBytes   int64      `json:"size_bytes"`
	Status      string     `json:"status"`
	TotalPages  int        `json:"total_pages,omitempty"`
	TotalChunks int        `json:"total_chunks,omitempty"`
	Progress    int        `json:"progress"`
	Stage       string     `json:"stage,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type Chunk struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	OwnerID     string    `json:"owner_id,omitempty"`
	ChunkIndex  int       `json:"chunk_index"`
	Content     string    `json:"content"`
	PageNumber  int       `json:"page_number"`
	ContentHash string    `json:"content_hash"`
	Embedding   []float32 `json:"embedding,omitempty"`
}

// DocumentPatch carries a partial status update. Only non-nil fields are
// written; everything else keeps its stored value.
type DocumentPatch struct {
	Progress    *int
	Stage       *string
	TotalPages  *int
	TotalChunks *int
	Error       *string
}

// VectorRecord is the projection of a Chunk that lives in the vector index.
type VectorRecord struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata RecordMetadata `json:"metadata"`
}

type RecordMetadata struct {
	DocumentID   string `json:"documentId"`
	DocumentName string `json:"documentName"`
	OwnerID      string `json:"ownerId,omitempty"`
	ChunkIndex   int    `json:"chunkIndex"`
	Content      string `json:"content"`
	PageNumber   int    `json:"pageNumber"`
	ContentLen   int    `json:"contentLength"`
	WordCount    int    `json:"wordCount"`
}

// VectorMatch is one ranked hit from a vector index query.
type VectorMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata RecordMetadata `json:"metadata"`
}

type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

type SearchResult struct {
	Chunk    Chunk    `json:"chunk"`
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}
