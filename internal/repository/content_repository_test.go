package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

const contentLockQuery = "SELECT id::text AS id, featured_image, cover_image, items, attachments FROM content_documents WHERE id = $1 FOR UPDATE"

func TestContentRemoveReferencesNullsAndDrops(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewContentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(contentLockQuery)).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "featured_image", "cover_image", "items", "attachments"}).
			AddRow("doc-1", nil, []byte(`{"blobId":"cover","role":"coverImage"}`),
				[]byte(`[{"blobId":"i1","role":"galleryItem"},{"blobId":"i2","role":"galleryItem"}]`), []byte(`[]`)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE content_documents SET featured_image = $2, cover_image = $3, items = $4, attachments = $5")).
		WithArgs("doc-1", nil, nil, []byte(`[{"blobId":"i2","role":"galleryItem"}]`), []byte(`[]`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	removed, err := repo.RemoveReferences(context.Background(), "doc-1", []string{"cover", "i1"})
	require.NoError(t, err)
	require.Len(t, removed, 2)
	assert.Equal(t, models.FieldCoverImage, removed[0].Field)
	assert.Equal(t, models.FieldItems, removed[1].Field)
	assert.Equal(t, "i1", removed[1].Ref.BlobID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRemoveReferencesNothingToDo(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewContentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(contentLockQuery)).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "featured_image", "cover_image", "items", "attachments"}).
			AddRow("doc-1", []byte(`{"blobId":"f","role":"featuredImage"}`), nil, []byte(`[]`), []byte(`[]`)))
	mock.ExpectRollback()

	removed, err := repo.RemoveReferences(context.Background(), "doc-1", []string{"other"})
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContentListFilters(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewContentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM content_documents WHERE 1=1 AND type = $1 AND status = $2 ORDER BY COALESCE(published_at, created_at) DESC, id LIMIT 10 OFFSET 0")).
		WithArgs(models.ContentTypeGallery, models.ContentStatusPublished).
		WillReturnRows(sqlmock.NewRows([]string{"id", "type", "title"}).AddRow("doc-1", "gallery", "Sports day"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM content_documents WHERE 1=1 AND type = $1 AND status = $2")).
		WithArgs(models.ContentTypeGallery, models.ContentStatusPublished).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	docs, total, err := repo.List(context.Background(), models.ContentFilter{
		Type:     models.ContentTypeGallery,
		Status:   models.ContentStatusPublished,
		PageSize: 10,
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Sports day", docs[0].Title)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
