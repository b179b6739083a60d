package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

const contentCachePattern = "content:list:*"

type contentRepository interface {
	Create(ctx context.Context, doc *models.ContentDocument) error
	GetByID(ctx context.Context, id string) (*models.ContentDocument, error)
	Update(ctx context.Context, doc *models.ContentDocument) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.ContentFilter) ([]models.ContentDocument, int, error)
}

type contentCache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	Invalidate(ctx context.Context, pattern string)
}

// fieldRoles maps each content field to the role its blobs play, per type.
var fieldRoles = map[models.ContentType]map[string]models.AssetRole{
	models.ContentTypeArticle: {
		models.FieldFeaturedImage: models.AssetRoleFeaturedImage,
		models.FieldCoverImage:    models.AssetRoleCoverImage,
	},
	models.ContentTypeNotice: {
		models.FieldAttachments: models.AssetRoleAttachment,
	},
	models.ContentTypeGallery: {
		models.FieldFeaturedImage: models.AssetRoleFeaturedImage,
		models.FieldCoverImage:    models.AssetRoleCoverImage,
		models.FieldItems:         models.AssetRoleGalleryItem,
	},
}

type cachedContentList struct {
	Items      []models.ContentDocument `json:"items"`
	Pagination models.Pagination        `json:"pagination"`
}

// ContentService manages articles, notices and galleries and their assets.
type ContentService struct {
	repo      contentRepository
	blobs     blobWriter
	assets    assetTracker
	cache     contentCache
	validator *validator.Validate
	audit     auditTrail
	logger    *zap.Logger
	now       func() time.Time
}

// NewContentService constructs the content store.
func NewContentService(repo contentRepository, blobs blobWriter, assets assetTracker, cache contentCache, validate *validator.Validate, audit auditWriter, logger *zap.Logger) *ContentService {
	if cache == nil {
		cache = (*CacheService)(nil)
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentService{
		repo:      repo,
		blobs:     blobs,
		assets:    assets,
		cache:     cache,
		validator: validate,
		audit:     auditTrail{writer: audit, source: "content-service", logger: logger},
		logger:    logger,
		now:       time.Now,
	}
}

// Create stores uploads, links them and persists the document, in that
// order. Any failure undoes the earlier steps.
func (s *ContentService) Create(ctx context.Context, actor *models.Identity, req dto.CreateContentRequest, uploads []dto.FileUpload) (*models.ContentDocument, error) {
	if !canEditContent(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "editor identity required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid content payload")
	}
	if req.ExpiresAt != nil && req.Type != models.ContentTypeNotice {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only notices expire")
	}

	now := s.now().UTC()
	doc := &models.ContentDocument{
		ID:            uuid.NewString(),
		Type:          req.Type,
		Title:         strings.TrimSpace(req.Title),
		Body:          req.Body,
		Status:        req.Status,
		Category:      req.Category,
		Tags:          req.Tags,
		PublishedAt:   req.PublishedAt,
		ExpiresAt:     req.ExpiresAt,
		FeaturedImage: req.FeaturedImage,
		CoverImage:    req.CoverImage,
		Items:         append(models.AssetReferences{}, req.Items...),
		Attachments:   append(models.AssetReferences{}, req.Attachments...),
		CreatedBy:     optionalString(actor.UserID),
	}
	if doc.Status == "" {
		doc.Status = models.ContentStatusDraft
	}
	if doc.Status == models.ContentStatusPublished && doc.PublishedAt == nil {
		doc.PublishedAt = &now
	}
	if err := checkFields(doc); err != nil {
		return nil, err
	}

	batch := newUploadBatch(s.blobs, s.assets, contentRef(doc.ID), s.logger)
	for _, fr := range doc.References() {
		if err := batch.attach(ctx, fr.Ref); err != nil {
			batch.rollback(ctx)
			return nil, err
		}
	}
	if _, err := s.storeUploads(ctx, batch, doc, uploads); err != nil {
		batch.rollback(ctx)
		return nil, err
	}

	if err := s.repo.Create(ctx, doc); err != nil {
		batch.rollback(ctx)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create content")
	}
	s.cache.Invalidate(ctx, contentCachePattern)
	return doc, nil
}

// Get returns a content document.
func (s *ContentService) Get(ctx context.Context, id string) (*models.ContentDocument, error) {
	return s.load(ctx, id)
}

// Update applies a patch, removes the listed references and stores new
// uploads. An upload for a single-valued field replaces its current blob.
func (s *ContentService) Update(ctx context.Context, actor *models.Identity, id string, req dto.UpdateContentRequest, uploads []dto.FileUpload) (*models.ContentDocument, error) {
	if !canEditContent(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "editor identity required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid content payload")
	}
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.ExpiresAt != nil && doc.Type != models.ContentTypeNotice {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only notices expire")
	}
	applyContentPatch(doc, req, s.now().UTC())

	var detached []string
	for _, blobID := range req.RemovedRefs {
		if doc.DropReference(blobID) {
			detached = append(detached, blobID)
		}
	}

	batch := newUploadBatch(s.blobs, s.assets, contentRef(doc.ID), s.logger)
	replaced, err := s.storeUploads(ctx, batch, doc, uploads)
	if err != nil {
		batch.rollback(ctx)
		return nil, err
	}
	detached = append(detached, replaced...)

	if err := s.repo.Update(ctx, doc); err != nil {
		batch.rollback(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "content not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update content")
	}

	ref := contentRef(doc.ID)
	for _, blobID := range detached {
		// The same blob may sit in another field of this document.
		if doc.HasBlob(blobID) {
			continue
		}
		if err := s.assets.Detach(ctx, ref, blobID); err != nil {
			s.logger.Warn("failed to detach removed reference", zap.String("content_id", id), zap.String("blob_id", blobID), zap.Error(err))
		}
	}
	s.cache.Invalidate(ctx, contentCachePattern)
	return doc, nil
}

// Delete detaches every reference and removes the document. Blobs stay in
// the store until orphan cleanup.
func (s *ContentService) Delete(ctx context.Context, actor *models.Identity, id string) error {
	if !canEditContent(actor) {
		return appErrors.Clone(appErrors.ErrForbidden, "editor identity required")
	}
	doc, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.assets.DetachAll(ctx, contentRef(id)); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "content not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete content")
	}
	s.cache.Invalidate(ctx, contentCachePattern)
	s.audit.emit(ctx, actor, models.AuditActionContentDelete, "content_documents", id,
		map[string]interface{}{"type": doc.Type, "title": doc.Title}, nil)
	return nil
}

// List returns matching documents. Published listings are served from cache
// when available.
func (s *ContentService) List(ctx context.Context, filter models.ContentFilter) ([]models.ContentDocument, *models.Pagination, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown content type %q", filter.Type))
	}
	page, size := pageDefaults(filter.Page, filter.PageSize)
	filter.Page, filter.PageSize = page, size

	cacheable := filter.Status == models.ContentStatusPublished
	key := contentListKey(filter)
	if cacheable {
		var cached cachedContentList
		if s.cache.Get(ctx, key, &cached) {
			pagination := cached.Pagination
			return cached.Items, &pagination, nil
		}
	}

	docs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list content")
	}
	if docs == nil {
		docs = []models.ContentDocument{}
	}
	pagination := models.Pagination{Page: page, PageSize: size, TotalCount: total}
	if cacheable {
		s.cache.Set(ctx, key, cachedContentList{Items: docs, Pagination: pagination}, 0)
	}
	return docs, &pagination, nil
}

// storeUploads writes each upload into its field and returns blob ids the
// uploads displaced from single-valued fields.
func (s *ContentService) storeUploads(ctx context.Context, batch *uploadBatch, doc *models.ContentDocument, uploads []dto.FileUpload) ([]string, error) {
	roles := fieldRoles[doc.Type]
	var replaced []string
	for _, upload := range uploads {
		role, ok := roles[upload.Field]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s does not accept files in %q", doc.Type, upload.Field))
		}
		ref, err := batch.store(ctx, upload, role)
		if err != nil {
			return nil, err
		}
		switch upload.Field {
		case models.FieldFeaturedImage:
			if doc.FeaturedImage != nil {
				replaced = append(replaced, doc.FeaturedImage.BlobID)
			}
			doc.FeaturedImage = &ref
		case models.FieldCoverImage:
			if doc.CoverImage != nil {
				replaced = append(replaced, doc.CoverImage.BlobID)
			}
			doc.CoverImage = &ref
		case models.FieldItems:
			doc.Items = append(doc.Items, ref)
		case models.FieldAttachments:
			doc.Attachments = append(doc.Attachments, ref)
		}
	}
	return replaced, nil
}

func (s *ContentService) load(ctx context.Context, id string) (*models.ContentDocument, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "content not found")
	}
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "content not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load content")
	}
	return doc, nil
}

// checkFields rejects references in fields the document type does not use.
func checkFields(doc *models.ContentDocument) error {
	roles := fieldRoles[doc.Type]
	for _, fr := range doc.References() {
		if _, ok := roles[fr.Field]; !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s does not use %q", doc.Type, fr.Field))
		}
	}
	return nil
}

func applyContentPatch(doc *models.ContentDocument, req dto.UpdateContentRequest, now time.Time) {
	if req.Title != nil {
		doc.Title = strings.TrimSpace(*req.Title)
	}
	if req.Body != nil {
		doc.Body = *req.Body
	}
	if req.Category != nil {
		doc.Category = *req.Category
	}
	if req.Tags != nil {
		doc.Tags = *req.Tags
	}
	if req.PublishedAt != nil {
		doc.PublishedAt = req.PublishedAt
	}
	if req.ExpiresAt != nil {
		doc.ExpiresAt = req.ExpiresAt
	}
	if req.Status != nil {
		doc.Status = *req.Status
		if doc.Status == models.ContentStatusPublished && doc.PublishedAt == nil {
			doc.PublishedAt = &now
		}
	}
}

func canEditContent(actor *models.Identity) bool {
	return actor.IsAdmin() || (actor != nil && actor.Role == models.RoleEditor)
}

func contentRef(id string) models.DocumentRef {
	return models.DocumentRef{Collection: models.CollectionContent, DocumentID: id}
}

func contentListKey(filter models.ContentFilter) string {
	return fmt.Sprintf("content:list:%s:%s:%s:%s:%d:%d", filter.Type, filter.Status, filter.Category, strings.ToLower(filter.Search), filter.Page, filter.PageSize)
}
