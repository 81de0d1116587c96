package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"docchat/internal/models"
	"docchat/internal/util"
)

const documentColumns = `id::text, COALESCE(owner_id,''), display_name, filename, size_bytes, status,
       COALESCE(total_pages,0), COALESCE(total_chunks,0), progress, COALESCE(stage,''),
       COALESCE(error,''), created_at, completed_at`

type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// CreateDocument registers a freshly uploaded file. The returned record
// starts in the uploading state with zero progress.
func (r *DocumentRepo) CreateDocument(ctx context.Context, ownerID, displayName, filename string, sizeBytes int64) (models.Document, error) {
	doc := models.Document{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		DisplayName: displayName,
		Filename:    filename,
		SizeBytes:   sizeBytes,
		Status:      models.StatusUploading,
		Progress:    0,
		Stage:       "File uploaded, preparing to process...",
	}
	err := r.db.Pool.QueryRow(ctx, `
INSERT INTO documents (id, owner_id, display_name, filename, size_bytes, status, progress, stage)
VALUES ($1, NULLIF($2,''), $3, $4, $5, $6, $7, $8)
RETURNING created_at`,
		doc.ID, doc.OwnerID, doc.DisplayName, doc.Filename, doc.SizeBytes, doc.Status, doc.Progress, doc.Stage,
	).Scan(&doc.CreatedAt)
	if err != nil {
		return models.Document{}, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepo) GetDocument(ctx context.Context, id string) (models.Document, error) {
	var d models.Document
	err := r.db.Pool.QueryRow(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id=$1`, id).
		Scan(&d.ID, &d.OwnerID, &d.DisplayName, &d.Filename, &d.SizeBytes, &d.Status,
			&d.TotalPages, &d.TotalChunks, &d.Progress, &d.Stage, &d.Error, &d.CreatedAt, &d.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Document{}, util.ErrNotFound
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

func (r *DocumentRepo) ListDocuments(ctx context.Context, ownerID string) ([]models.Document, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE $1 = '' OR owner_id=$1
ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]models.Document, 0)
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.DisplayName, &d.Filename, &d.SizeBytes, &d.Status,
			&d.TotalPages, &d.TotalChunks, &d.Progress, &d.Stage, &d.Error, &d.CreatedAt, &d.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

// UpdateStatus applies a merge patch on top of the stored record.
// Progress never moves backwards while a document is processing; a
// failed status resets it to zero.
func (r *DocumentRepo) UpdateStatus(ctx context.Context, id, status string, patch models.DocumentPatch) error {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE documents SET
  status = $2,
  progress = CASE
    WHEN $2 = 'failed' THEN 0
    WHEN $3::int IS NULL THEN progress
    ELSE GREATEST(progress, $3::int)
  END,
  stage = COALESCE($4, stage),
  total_pages = COALESCE($5, total_pages),
  total_chunks = COALESCE($6, total_chunks),
  error = COALESCE($7, error),
  completed_at = CASE WHEN $2 = 'completed' THEN NOW() ELSE completed_at END,
  updated_at = NOW()
WHERE id=$1`,
		id, status, patch.Progress, patch.Stage, patch.TotalPages, patch.TotalChunks, patch.Error)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return util.ErrNotFound
	}
	return nil
}

// DeleteDocument removes the record and, through the FK cascade, its
// chunks. A non-empty ownerID restricts the delete to that owner.
func (r *DocumentRepo) DeleteDocument(ctx context.Context, id, ownerID string) (models.Document, error) {
	doc, err := r.GetDocument(ctx, id)
	if err != nil {
		return models.Document{}, err
	}
	if ownerID != "" && doc.OwnerID != "" && doc.OwnerID != ownerID {
		return models.Document{}, util.ErrNotFound
	}
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM documents WHERE id=$1`, id)
	if err != nil {
		return models.Document{}, fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.Document{}, util.ErrNotFound
	}
	return doc, nil
}
