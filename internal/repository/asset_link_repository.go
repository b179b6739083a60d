package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

// AssetLinkRepository persists the attach/detach ledger.
type AssetLinkRepository struct {
	db *sqlx.DB
}

// NewAssetLinkRepository constructs the repository.
func NewAssetLinkRepository(db *sqlx.DB) *AssetLinkRepository {
	return &AssetLinkRepository{db: db}
}

// Upsert records a link; re-attaching refreshes the role and timestamp.
func (r *AssetLinkRepository) Upsert(ctx context.Context, link *models.AssetLink) error {
	if link.LinkedAt.IsZero() {
		link.LinkedAt = time.Now().UTC()
	}
	const query = `INSERT INTO asset_links (collection, document_id, blob_id, role, linked_at)
	VALUES (:collection, :document_id, :blob_id, :role, :linked_at)
	ON CONFLICT (collection, document_id, blob_id) DO UPDATE SET role = EXCLUDED.role, linked_at = EXCLUDED.linked_at`
	if _, err := r.db.NamedExecContext(ctx, query, link); err != nil {
		return fmt.Errorf("upsert asset link: %w", err)
	}
	return nil
}

// Delete removes one link.
func (r *AssetLinkRepository) Delete(ctx context.Context, doc models.DocumentRef, blobID string) error {
	const query = `DELETE FROM asset_links WHERE collection = $1 AND document_id = $2 AND blob_id = $3`
	if _, err := r.db.ExecContext(ctx, query, doc.Collection, doc.DocumentID, blobID); err != nil {
		return fmt.Errorf("delete asset link: %w", err)
	}
	return nil
}

// DeleteByDocument removes every link held by a document and returns the blob ids released.
func (r *AssetLinkRepository) DeleteByDocument(ctx context.Context, doc models.DocumentRef) ([]string, error) {
	const query = `DELETE FROM asset_links WHERE collection = $1 AND document_id = $2 RETURNING blob_id`
	var blobIDs []string
	if err := r.db.SelectContext(ctx, &blobIDs, query, doc.Collection, doc.DocumentID); err != nil {
		return nil, fmt.Errorf("delete document asset links: %w", err)
	}
	return blobIDs, nil
}

// ListAll returns the whole ledger.
func (r *AssetLinkRepository) ListAll(ctx context.Context) ([]models.AssetLink, error) {
	var links []models.AssetLink
	if err := r.db.SelectContext(ctx, &links, `SELECT collection, document_id, blob_id, role, linked_at FROM asset_links`); err != nil {
		return nil, fmt.Errorf("list asset links: %w", err)
	}
	return links, nil
}

// CountByBlob returns how many documents link to blobID.
func (r *AssetLinkRepository) CountByBlob(ctx context.Context, blobID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM asset_links WHERE blob_id = $1`, blobID); err != nil {
		return 0, fmt.Errorf("count asset links: %w", err)
	}
	return count, nil
}
