package dto

import (
	"time"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

// CreateContentRequest describes a new article, notice or gallery. Existing
// blobs may be referenced directly; new files arrive as uploads.
type CreateContentRequest struct {
	Type          models.ContentType      `json:"type" validate:"required,oneof=article notice gallery"`
	Title         string                  `json:"title" validate:"required,max=300"`
	Body          string                  `json:"body"`
	Status        models.ContentStatus    `json:"status" validate:"omitempty,oneof=draft published"`
	Category      string                  `json:"category" validate:"max=100"`
	Tags          []string                `json:"tags" validate:"dive,max=50"`
	PublishedAt   *time.Time              `json:"publishedAt"`
	ExpiresAt     *time.Time              `json:"expiresAt"`
	FeaturedImage *models.AssetReference  `json:"featuredImage"`
	CoverImage    *models.AssetReference  `json:"coverImage"`
	Items         []models.AssetReference `json:"items"`
	Attachments   []models.AssetReference `json:"attachments"`
}

// UpdateContentRequest patches a content document. RemovedRefs lists blob ids
// to drop from any field; uploads with a single-valued field replace it.
type UpdateContentRequest struct {
	Title       *string               `json:"title" validate:"omitempty,min=1,max=300"`
	Body        *string               `json:"body"`
	Status      *models.ContentStatus `json:"status" validate:"omitempty,oneof=draft published"`
	Category    *string               `json:"category" validate:"omitempty,max=100"`
	Tags        *[]string             `json:"tags"`
	PublishedAt *time.Time            `json:"publishedAt"`
	ExpiresAt   *time.Time            `json:"expiresAt"`
	RemovedRefs []string              `json:"removedRefs"`
}

// OrphanCleanupRequest triggers deletion of orphan blobs older than Grace.
type OrphanCleanupRequest struct {
	Grace string `json:"grace"`
	Apply bool   `json:"apply"`
}
