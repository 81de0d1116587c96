package pinecone

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"docchat/internal/models"
)

// ErrIndexNotFound is returned by DescribeIndex when the index does not exist.
var ErrIndexNotFound = errors.New("pinecone index not found")

const (
	upsertBatchSize  = 100
	deletePageSize   = 100
	createPollEvery  = 2 * time.Second
	createPollBudget = 60 * time.Second
)

// Index wraps a single Pinecone index behind lazy initialization. The
// first call that needs the index resolves its host, creating the index
// if it does not exist yet. Initialization failures are returned to the
// caller and retried on the next call, never latched.
type Index struct {
	client Client
	name   string
	dim    int
	log    *zap.Logger

	mu    sync.Mutex
	host  string
	ready bool
}

func NewIndex(client Client, name string, dim int, host string, log *zap.Logger) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("index %q: invalid dimension %d", name, dim)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Index{
		client: client,
		name:   name,
		dim:    dim,
		log:    log,
		host:   host,
		ready:  host != "",
	}, nil
}

func (ix *Index) ensureReady(ctx context.Context) (string, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.ready && ix.host != "" {
		return ix.host, nil
	}

	desc, err := ix.client.DescribeIndex(ctx, ix.name)
	if errors.Is(err, ErrIndexNotFound) {
		ix.log.Info("creating vector index", zap.String("index", ix.name), zap.Int("dimension", ix.dim))
		var req CreateIndexRequest
		req.Name = ix.name
		req.Dimension = ix.dim
		req.Metric = "cosine"
		req.Spec.Serverless.Cloud = "aws"
		req.Spec.Serverless.Region = "us-east-1"
		if err := ix.client.CreateIndex(ctx, req); err != nil {
			return "", fmt.Errorf("create index %q: %w", ix.name, err)
		}
		desc, err = ix.waitForIndex(ctx)
	}
	if err != nil {
		return "", fmt.Errorf("describe index %q: %w", ix.name, err)
	}
	if desc.Dimension != 0 && desc.Dimension != ix.dim {
		return "", fmt.Errorf("index %q has dimension %d, expected %d", ix.name, desc.Dimension, ix.dim)
	}
	if desc.Host == "" {
		return "", fmt.Errorf("index %q not ready yet", ix.name)
	}

	ix.host = desc.Host
	ix.ready = true
	return ix.host, nil
}

func (ix *Index) waitForIndex(ctx context.Context) (*IndexDescription, error) {
	deadline := time.Now().Add(createPollBudget)
	for {
		desc, err := ix.client.DescribeIndex(ctx, ix.name)
		if err == nil && desc.Status.Ready && desc.Host != "" {
			return desc, nil
		}
		if time.Now().After(deadline) {
			if err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("index %q did not become ready in time", ix.name)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(createPollEvery):
		}
	}
}

// Upsert writes records in batches of at most 100. On a batch failure
// the remaining batches are not attempted and the count of records
// written so far is returned with the error.
func (ix *Index) Upsert(ctx context.Context, records []models.VectorRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	host, err := ix.ensureReady(ctx)
	if err != nil {
		return 0, err
	}

	written := 0
	for start := 0; start < len(records); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		if _, err := ix.client.Upsert(ctx, host, UpsertRequest{Vectors: records[start:end]}); err != nil {
			return written, fmt.Errorf("upsert batch starting at %d: %w", start, err)
		}
		written += end - start
	}
	ix.log.Debug("upserted vectors", zap.String("index", ix.name), zap.Int("count", written))
	return written, nil
}

// Query runs a similarity search, optionally constrained by exact-match
// metadata filters.
func (ix *Index) Query(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]models.VectorMatch, error) {
	host, err := ix.ensureReady(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := ix.client.Query(ctx, host, QueryRequest{
		Vector:          vector,
		TopK:            topK,
		Filter:          eqFilter(filter),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}
	return resp.Matches, nil
}

// DeleteByDocumentID removes every vector tagged with the document ID.
// Unknown documents are a no-op.
func (ix *Index) DeleteByDocumentID(ctx context.Context, documentID string) error {
	return ix.deleteByFilter(ctx, map[string]string{"documentId": documentID})
}

// DeleteByDocumentName removes every vector tagged with the document
// display name.
func (ix *Index) DeleteByDocumentName(ctx context.Context, documentName string) error {
	return ix.deleteByFilter(ctx, map[string]string{"documentName": documentName})
}

// deleteByFilter pages through filtered query results and deletes the
// matched IDs. Serverless indexes reject delete-by-filter, so the IDs
// are collected via query first.
func (ix *Index) deleteByFilter(ctx context.Context, filter map[string]string) error {
	host, err := ix.ensureReady(ctx)
	if err != nil {
		return err
	}

	probe := make([]float32, ix.dim)
	probe[0] = 1
	deleted := 0
	for {
		resp, err := ix.client.Query(ctx, host, QueryRequest{
			Vector: probe,
			TopK:   deletePageSize,
			Filter: eqFilter(filter),
		})
		if err != nil {
			return fmt.Errorf("query for delete: %w", err)
		}
		if len(resp.Matches) == 0 {
			break
		}
		ids := make([]string, 0, len(resp.Matches))
		for _, m := range resp.Matches {
			ids = append(ids, m.ID)
		}
		if err := ix.client.DeleteByIDs(ctx, host, ids); err != nil {
			return fmt.Errorf("delete vectors: %w", err)
		}
		deleted += len(ids)
		if len(resp.Matches) < deletePageSize {
			break
		}
	}
	if deleted > 0 {
		ix.log.Info("deleted vectors", zap.String("index", ix.name), zap.Int("count", deleted))
	}
	return nil
}

func eqFilter(filter map[string]string) map[string]any {
	if len(filter) == 0 {
		return nil
	}
	out := make(map[string]any, len(filter))
	for k, v := range filter {
		out[k] = map[string]any{"$eq": v}
	}
	return out
}
