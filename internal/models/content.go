package models

import (
	"time"

	"github.com/lib/pq"
)

// ContentType enumerates the public content kinds.
type ContentType string

const (
	ContentTypeArticle ContentType = "article"
	ContentTypeNotice  ContentType = "notice"
	ContentTypeGallery ContentType = "gallery"
)

// Valid reports whether the type is known.
func (t ContentType) Valid() bool {
	return t == ContentTypeArticle || t == ContentTypeNotice || t == ContentTypeGallery
}

// ContentStatus controls public visibility.
type ContentStatus string

const (
	ContentStatusDraft     ContentStatus = "draft"
	ContentStatusPublished ContentStatus = "published"
)

// Content document field names, as used by the reference ledger and reports.
const (
	FieldFeaturedImage = "featuredImage"
	FieldCoverImage    = "coverImage"
	FieldItems         = "items"
	FieldAttachments   = "attachments"
	FieldDocuments     = "documents"
)

// ContentDocument is an article, notice or gallery.
type ContentDocument struct {
	ID            string          `db:"id" json:"id"`
	Type          ContentType     `db:"type" json:"type"`
	Title         string          `db:"title" json:"title"`
	Body          string          `db:"body" json:"body"`
	Status        ContentStatus   `db:"status" json:"status"`
	Category      string          `db:"category" json:"category"`
	Tags          pq.StringArray  `db:"tags" json:"tags"`
	PublishedAt   *time.Time      `db:"published_at" json:"publishedAt,omitempty"`
	ExpiresAt     *time.Time      `db:"expires_at" json:"expiresAt,omitempty"`
	FeaturedImage *AssetReference `db:"featured_image" json:"featuredImage,omitempty"`
	CoverImage    *AssetReference `db:"cover_image" json:"coverImage,omitempty"`
	Items         AssetReferences `db:"items" json:"items"`
	Attachments   AssetReferences `db:"attachments" json:"attachments"`
	CreatedBy     *string         `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}

// FieldReference pairs an embedded reference with the field holding it.
type FieldReference struct {
	Field string
	Ref   AssetReference
}

// References lists every embedded reference with its field name.
func (d *ContentDocument) References() []FieldReference {
	if d == nil {
		return nil
	}
	out := make([]FieldReference, 0, len(d.Items)+len(d.Attachments)+2)
	if d.FeaturedImage != nil {
		out = append(out, FieldReference{Field: FieldFeaturedImage, Ref: *d.FeaturedImage})
	}
	if d.CoverImage != nil {
		out = append(out, FieldReference{Field: FieldCoverImage, Ref: *d.CoverImage})
	}
	for _, ref := range d.Items {
		out = append(out, FieldReference{Field: FieldItems, Ref: ref})
	}
	for _, ref := range d.Attachments {
		out = append(out, FieldReference{Field: FieldAttachments, Ref: ref})
	}
	return out
}

// HasBlob reports whether any field still embeds blobID.
func (d *ContentDocument) HasBlob(blobID string) bool {
	for _, fr := range d.References() {
		if fr.Ref.BlobID == blobID {
			return true
		}
	}
	return false
}

// DropReference removes blobID from whichever field holds it: list entries are
// dropped and single fields are nulled. It reports whether anything changed.
func (d *ContentDocument) DropReference(blobID string) bool {
	changed := false
	if d.FeaturedImage != nil && d.FeaturedImage.BlobID == blobID {
		d.FeaturedImage = nil
		changed = true
	}
	if d.CoverImage != nil && d.CoverImage.BlobID == blobID {
		d.CoverImage = nil
		changed = true
	}
	if d.Items.Contains(blobID) {
		d.Items = d.Items.Without(blobID)
		changed = true
	}
	if d.Attachments.Contains(blobID) {
		d.Attachments = d.Attachments.Without(blobID)
		changed = true
	}
	return changed
}

// ContentFilter narrows content listings.
type ContentFilter struct {
	Type     ContentType
	Status   ContentStatus
	Category string
	Search   string
	Page     int
	PageSize int
}
