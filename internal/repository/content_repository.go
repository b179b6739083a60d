package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

const contentColumns = `id, type, title, body, status, category, tags, published_at, expires_at, featured_image,
       cover_image, items, attachments, created_by, created_at, updated_at`

// ContentRepository persists articles, notices and galleries.
type ContentRepository struct {
	db *sqlx.DB
}

// NewContentRepository constructs the repository.
func NewContentRepository(db *sqlx.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// Create inserts a new content document.
func (r *ContentRepository) Create(ctx context.Context, doc *models.ContentDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	normaliseContent(doc)
	const query = `INSERT INTO content_documents (` + contentColumns + `)
	VALUES (:id, :type, :title, :body, :status, :category, :tags, :published_at, :expires_at, :featured_image,
	        :cover_image, :items, :attachments, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("create content: %w", err)
	}
	return nil
}

// GetByID fetches a content document.
func (r *ContentRepository) GetByID(ctx context.Context, id string) (*models.ContentDocument, error) {
	var doc models.ContentDocument
	if err := r.db.GetContext(ctx, &doc, `SELECT `+contentColumns+` FROM content_documents WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Update rewrites a content document.
func (r *ContentRepository) Update(ctx context.Context, doc *models.ContentDocument) error {
	doc.UpdatedAt = time.Now().UTC()
	normaliseContent(doc)
	const query = `UPDATE content_documents SET title = :title, body = :body, status = :status, category = :category,
	tags = :tags, published_at = :published_at, expires_at = :expires_at, featured_image = :featured_image,
	cover_image = :cover_image, items = :items, attachments = :attachments, updated_at = :updated_at
	WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, doc)
	if err != nil {
		return fmt.Errorf("update content: %w", err)
	}
	return requireRows(res)
}

// Delete removes a content document.
func (r *ContentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM content_documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete content: %w", err)
	}
	return requireRows(res)
}

// List returns documents matching the filter, newest first, with the total count.
func (r *ContentRepository) List(ctx context.Context, filter models.ContentFilter) ([]models.ContentDocument, int, error) {
	args := []interface{}{}
	conditions := []string{"1=1"}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(body) LIKE $%d)", n, n))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")
	page, size := normalisePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s FROM content_documents%s ORDER BY COALESCE(published_at, created_at) DESC, id LIMIT %d OFFSET %d`,
		contentColumns, where, size, (page-1)*size)
	var docs []models.ContentDocument
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list content: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM content_documents"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count content: %w", err)
	}
	return docs, total, nil
}

// Collection implements the reference holder contract.
func (r *ContentRepository) Collection() string {
	return models.CollectionContent
}

type contentRefsRow struct {
	ID            string                 `db:"id"`
	FeaturedImage *models.AssetReference `db:"featured_image"`
	CoverImage    *models.AssetReference `db:"cover_image"`
	Items         models.AssetReferences `db:"items"`
	Attachments   models.AssetReferences `db:"attachments"`
}

// ForEachReferences visits every document's embedded references.
func (r *ContentRepository) ForEachReferences(ctx context.Context, fn func(string, []models.FieldReference) error) error {
	const query = `SELECT id::text AS id, featured_image, cover_image, items, attachments
	FROM content_documents WHERE id::text > $1 ORDER BY id::text LIMIT $2`
	return scanReferencePages(ctx, r.db, query, func(row contentRefsRow) (string, []models.FieldReference) {
		doc := models.ContentDocument{
			FeaturedImage: row.FeaturedImage,
			CoverImage:    row.CoverImage,
			Items:         row.Items,
			Attachments:   row.Attachments,
		}
		return row.ID, doc.References()
	}, fn)
}

// RemoveReferences nulls single fields and drops list entries pointing at
// blobIDs, under a row lock so concurrent edits are not overwritten.
func (r *ContentRepository) RemoveReferences(ctx context.Context, id string, blobIDs []string) (removed []models.FieldReference, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin content ref removal: %w", err)
	}
	defer rollback(tx, &err)

	var row contentRefsRow
	const lockQuery = `SELECT id::text AS id, featured_image, cover_image, items, attachments FROM content_documents WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &row, lockQuery, id); err != nil {
		if err == sql.ErrNoRows {
			err = nil
			_ = tx.Rollback()
			return nil, nil
		}
		return nil, fmt.Errorf("lock content: %w", err)
	}
	doc := models.ContentDocument{
		FeaturedImage: row.FeaturedImage,
		CoverImage:    row.CoverImage,
		Items:         row.Items,
		Attachments:   row.Attachments,
	}
	before := doc.References()
	for _, blobID := range blobIDs {
		doc.DropReference(blobID)
	}
	for _, fr := range before {
		for _, blobID := range blobIDs {
			if fr.Ref.BlobID == blobID {
				removed = append(removed, fr)
			}
		}
	}
	if len(removed) == 0 {
		err = tx.Rollback()
		return nil, err
	}
	normaliseContent(&doc)
	const updateQuery = `UPDATE content_documents SET featured_image = $2, cover_image = $3, items = $4, attachments = $5, updated_at = $6 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, updateQuery, id, doc.FeaturedImage, doc.CoverImage, doc.Items, doc.Attachments, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("update content refs: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit content ref removal: %w", err)
	}
	return removed, nil
}

func normaliseContent(doc *models.ContentDocument) {
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	if doc.Items == nil {
		doc.Items = models.AssetReferences{}
	}
	if doc.Attachments == nil {
		doc.Attachments = models.AssetReferences{}
	}
}
