package workflows

type DocumentIngestInput struct {
	DocumentID   string
	OwnerID      string
	DisplayName  string
	FilePath     string
	ChunkSize    int
	ChunkOverlap int
}

// IngestStatus is the query-visible snapshot of a running ingest.
type IngestStatus struct {
	DocumentID    string `json:"document_id"`
	Status        string `json:"status"`
	Progress      int    `json:"progress"`
	Stage         string `json:"stage"`
	TotalPages    int    `json:"total_pages"`
	TotalChunks   int    `json:"total_chunks"`
	ChunksStored  int    `json:"chunks_stored"`
	ChunksSkipped int    `json:"chunks_skipped"`
	FailReason    string `json:"fail_reason,omitempty"`
}
