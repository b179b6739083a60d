package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

const blobColumns = `id, filename, mime_type, size_bytes, checksum, chunk_size, chunk_count, owner_collection, owner_document_id, created_at`

// BlobCursor marks the position after which a listing resumes.
type BlobCursor struct {
	CreatedAt time.Time
	ID        string
}

// BlobRepository stores blob metadata in blobs and content in blob_chunks.
type BlobRepository struct {
	db *sqlx.DB
}

// NewBlobRepository constructs the repository.
func NewBlobRepository(db *sqlx.DB) *BlobRepository {
	return &BlobRepository{db: db}
}

// Create writes the metadata row and every chunk in one transaction so a
// blob is either fully readable or absent.
func (r *BlobRepository) Create(ctx context.Context, record *models.BlobRecord, chunks [][]byte) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin blob tx: %w", err)
	}
	defer rollback(tx, &err)

	const insertBlob = `INSERT INTO blobs (` + blobColumns + `)
	VALUES (:id, :filename, :mime_type, :size_bytes, :checksum, :chunk_size, :chunk_count, :owner_collection, :owner_document_id, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insertBlob, record); err != nil {
		return fmt.Errorf("insert blob: %w", err)
	}
	for n, chunk := range chunks {
		if _, err = tx.ExecContext(ctx, `INSERT INTO blob_chunks (blob_id, n, data) VALUES ($1, $2, $3)`, record.ID, n, chunk); err != nil {
			return fmt.Errorf("insert blob chunk %d: %w", n, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit blob: %w", err)
	}
	return nil
}

// GetByID returns blob metadata. Missing ids yield sql.ErrNoRows.
func (r *BlobRepository) GetByID(ctx context.Context, id string) (*models.BlobRecord, error) {
	var record models.BlobRecord
	if err := r.db.GetContext(ctx, &record, `SELECT `+blobColumns+` FROM blobs WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// ReadChunks returns the chunks of a blob in order.
func (r *BlobRepository) ReadChunks(ctx context.Context, id string) ([][]byte, error) {
	var chunks [][]byte
	if err := r.db.SelectContext(ctx, &chunks, `SELECT data FROM blob_chunks WHERE blob_id = $1 ORDER BY n`, id); err != nil {
		return nil, fmt.Errorf("read blob chunks: %w", err)
	}
	return chunks, nil
}

// Exists reports whether a metadata row exists for id.
func (r *BlobRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM blobs WHERE id = $1)`, id); err != nil {
		return false, fmt.Errorf("check blob: %w", err)
	}
	return exists, nil
}

// Delete removes the blob and, by cascade, its chunks. It reports whether a row was removed.
func (r *BlobRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM blobs WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete blob: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check blob delete rows: %w", err)
	}
	return rows > 0, nil
}

// ListAfter returns up to limit blobs ordered by (created_at, id) after cursor.
// A nil cursor starts from the beginning.
func (r *BlobRepository) ListAfter(ctx context.Context, cursor *BlobCursor, limit int) ([]models.BlobRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	var (
		records []models.BlobRecord
		err     error
	)
	if cursor == nil {
		err = r.db.SelectContext(ctx, &records, `SELECT `+blobColumns+` FROM blobs ORDER BY created_at, id LIMIT $1`, limit)
	} else {
		err = r.db.SelectContext(ctx, &records, `SELECT `+blobColumns+` FROM blobs WHERE (created_at, id) > ($1, $2) ORDER BY created_at, id LIMIT $3`, cursor.CreatedAt, cursor.ID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	return records, nil
}

// SetOwnerIfEmpty records the first document to claim the blob.
func (r *BlobRepository) SetOwnerIfEmpty(ctx context.Context, id string, owner models.DocumentRef) error {
	const query = `UPDATE blobs SET owner_collection = $2, owner_document_id = $3 WHERE id = $1 AND owner_collection IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, owner.Collection, owner.DocumentID); err != nil {
		return fmt.Errorf("set blob owner: %w", err)
	}
	return nil
}

// ClearOwner removes owner when it is still the recorded one.
func (r *BlobRepository) ClearOwner(ctx context.Context, id string, owner models.DocumentRef) error {
	const query = `UPDATE blobs SET owner_collection = NULL, owner_document_id = NULL
	WHERE id = $1 AND owner_collection = $2 AND owner_document_id = $3`
	if _, err := r.db.ExecContext(ctx, query, id, owner.Collection, owner.DocumentID); err != nil {
		return fmt.Errorf("clear blob owner: %w", err)
	}
	return nil
}
