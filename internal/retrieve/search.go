package retrieve

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/util"
)

// fallbackOverfetch widens the local candidate pool when results still
// have to be filtered down to a single document.
const fallbackOverfetch = 5

type VectorIndex interface {
	Query(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]models.VectorMatch, error)
}

type ChunkSearcher interface {
	SearchChunksByEmbedding(ctx context.Context, query []float32, limit int, ownerID string) ([]models.ScoredChunk, error)
}

type DocumentReader interface {
	GetDocument(ctx context.Context, id string) (models.Document, error)
}

// Engine answers similarity queries against the vector index, falling
// back to in-process ranking over stored chunk embeddings when the
// index is unreachable or returns nothing.
type Engine struct {
	embedder  providers.EmbeddingProvider
	index     VectorIndex
	chunks    ChunkSearcher
	documents DocumentReader
	dim       int
	log       *zap.Logger
}

func NewEngine(embedder providers.EmbeddingProvider, index VectorIndex, chunks ChunkSearcher, documents DocumentReader, dim int, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		embedder:  embedder,
		index:     index,
		chunks:    chunks,
		documents: documents,
		dim:       dim,
		log:       log,
	}
}

// Search embeds the query and returns the topK most similar chunks,
// each joined with its owning document. A non-empty documentName
// restricts results to that document; a non-empty ownerID scopes them
// to one owner. Query embedding failures propagate, retrieval backend
// failures degrade to the local path.
func (e *Engine) Search(ctx context.Context, query string, topK int, documentName, ownerID string) ([]models.SearchResult, error) {
	query = util.SanitizeText(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	if topK <= 0 {
		topK = 5
	}

	vectors, _, err := e.embedder.Embed(ctx, providers.EmbedRequest{
		Operation: "search.embed",
		Inputs:    []string{query},
		Dimension: e.dim,
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding provider returned no vectors")
	}
	queryVec := vectors[0]

	filter := map[string]string{}
	if documentName != "" {
		filter["documentName"] = documentName
	}
	if ownerID != "" {
		filter["ownerId"] = ownerID
	}

	matches, err := e.index.Query(ctx, queryVec, topK, filter)
	if err != nil {
		e.log.Warn("vector index query failed, using local search", zap.Error(err))
		return e.searchLocal(ctx, queryVec, topK, documentName, ownerID)
	}
	if len(matches) == 0 {
		return e.searchLocal(ctx, queryVec, topK, documentName, ownerID)
	}

	results := make([]models.SearchResult, 0, len(matches))
	for _, m := range matches {
		doc, err := e.documents.GetDocument(ctx, m.Metadata.DocumentID)
		if errors.Is(err, util.ErrNotFound) {
			// The document was deleted after its vectors were written.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load document %s: %w", m.Metadata.DocumentID, err)
		}
		results = append(results, models.SearchResult{
			Chunk: models.Chunk{
				ID:         m.ID,
				DocumentID: m.Metadata.DocumentID,
				OwnerID:    m.Metadata.OwnerID,
				ChunkIndex: m.Metadata.ChunkIndex,
				Content:    m.Metadata.Content,
				PageNumber: m.Metadata.PageNumber,
			},
			Document: doc,
			Score:    m.Score,
		})
	}
	return results, nil
}

func (e *Engine) searchLocal(ctx context.Context, queryVec []float32, topK int, documentName, ownerID string) ([]models.SearchResult, error) {
	limit := topK
	if documentName != "" {
		limit = topK * fallbackOverfetch
	}
	scored, err := e.chunks.SearchChunksByEmbedding(ctx, queryVec, limit, ownerID)
	if err != nil {
		return nil, fmt.Errorf("local chunk search: %w", err)
	}

	results := make([]models.SearchResult, 0, topK)
	docs := map[string]models.Document{}
	for _, sc := range scored {
		doc, ok := docs[sc.Chunk.DocumentID]
		if !ok {
			var err error
			doc, err = e.documents.GetDocument(ctx, sc.Chunk.DocumentID)
			if errors.Is(err, util.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("load document %s: %w", sc.Chunk.DocumentID, err)
			}
			docs[sc.Chunk.DocumentID] = doc
		}
		if documentName != "" && doc.DisplayName != documentName {
			continue
		}
		results = append(results, models.SearchResult{Chunk: sc.Chunk, Document: doc, Score: sc.Score})
		if len(results) == topK {
			break
		}
	}
	return results, nil
}
