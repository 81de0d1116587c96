package storage

import (
	"context"
	"fmt"

	"docchat/internal/models"
	"docchat/internal/vector"
)

type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

func (r *ChunkRepo) UpsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx upsert chunks: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, c := range chunks {
		var embedding *string
		if len(c.Embedding) > 0 {
			lit := vector.ToLiteral(c.Embedding)
			embedding = &lit
		}
		_, err := tx.Exec(ctx, `
INSERT INTO chunks (id, document_id, owner_id, chunk_index, content, page_number, content_hash, embedding)
VALUES ($1, $2, NULLIF($3,''), $4, $5, $6, $7, CASE WHEN $8::text IS NULL THEN NULL ELSE $8::vector END)
ON CONFLICT (id)
DO UPDATE SET
  content = EXCLUDED.content,
  page_number = EXCLUDED.page_number,
  content_hash = EXCLUDED.content_hash,
  embedding = COALESCE(EXCLUDED.embedding, chunks.embedding)`,
			c.ID, c.DocumentID, c.OwnerID, c.ChunkIndex, c.Content, c.PageNumber, c.ContentHash, embedding,
		)
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks tx: %w", err)
	}
	return nil
}

func (r *ChunkRepo) ListChunksByDocument(ctx context.Context, documentID string) ([]models.Chunk, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT id::text, document_id::text, COALESCE(owner_id,''), chunk_index, content, page_number, content_hash
FROM chunks
WHERE document_id=$1
ORDER BY chunk_index ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks by document: %w", err)
	}
	defer rows.Close()
	out := make([]models.Chunk, 0, 64)
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.OwnerID, &c.ChunkIndex, &c.Content, &c.PageNumber, &c.ContentHash); err != nil {
			return nil, fmt.Errorf("scan chunk by document: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks by document: %w", err)
	}
	return out, nil
}

func (r *ChunkRepo) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM chunks WHERE document_id=$1`, documentID)
	if err != nil {
		return fmt.Errorf("delete chunks by document: %w", err)
	}
	return nil
}

// DeleteChunksByDocumentName removes chunks across every document row
// carrying the display name. Re-ingesting a file mints a new document ID,
// so leftovers from earlier uploads are only reachable by name.
func (r *ChunkRepo) DeleteChunksByDocumentName(ctx context.Context, documentName string) error {
	_, err := r.db.Pool.Exec(ctx, `
DELETE FROM chunks
USING documents
WHERE chunks.document_id = documents.id AND documents.display_name=$1`, documentName)
	if err != nil {
		return fmt.Errorf("delete chunks by document name: %w", err)
	}
	return nil
}

// SearchChunksByEmbedding loads embedded chunks and ranks them by cosine
// similarity in process. It backs the local retrieval path used when the
// vector index is unreachable or empty.
func (r *ChunkRepo) SearchChunksByEmbedding(ctx context.Context, query []float32, limit int, ownerID string) ([]models.ScoredChunk, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT id::text, document_id::text, COALESCE(owner_id,''), chunk_index, content, page_number, content_hash, embedding::text
FROM chunks
WHERE embedding IS NOT NULL AND ($1 = '' OR owner_id=$1)`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	candidates := make([]models.Chunk, 0, 256)
	for rows.Next() {
		var c models.Chunk
		var lit string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.OwnerID, &c.ChunkIndex, &c.Content, &c.PageNumber, &c.ContentHash, &lit); err != nil {
			return nil, fmt.Errorf("scan chunk candidate: %w", err)
		}
		emb, err := vector.FromLiteral(lit)
		if err != nil {
			return nil, fmt.Errorf("decode chunk embedding %s: %w", c.ID, err)
		}
		c.Embedding = emb
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk candidates: %w", err)
	}

	return vector.Rank(query, candidates, limit), nil
}
