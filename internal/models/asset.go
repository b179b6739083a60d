package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AssetRole describes how a document field uses a blob.
type AssetRole string

const (
	AssetRoleFeaturedImage AssetRole = "featuredImage"
	AssetRoleAttachment    AssetRole = "attachment"
	AssetRoleGalleryItem   AssetRole = "galleryItem"
	AssetRoleCoverImage    AssetRole = "coverImage"
	AssetRoleDocument      AssetRole = "document"
)

// Valid reports whether the role is known.
func (r AssetRole) Valid() bool {
	switch r {
	case AssetRoleFeaturedImage, AssetRoleAttachment, AssetRoleGalleryItem, AssetRoleCoverImage, AssetRoleDocument:
		return true
	}
	return false
}

// IsImage reports whether blobs in this role are expected to be images.
func (r AssetRole) IsImage() bool {
	return r == AssetRoleFeaturedImage || r == AssetRoleCoverImage || r == AssetRoleGalleryItem
}

// Collections that embed asset references.
const (
	CollectionStudents   = "students"
	CollectionContent    = "content_documents"
	CollectionAdmissions = "admission_requests"
)

// AssetReference is a typed pointer from a document field to a blob.
type AssetReference struct {
	BlobID string    `json:"blobId"`
	Role   AssetRole `json:"role"`
}

// Value implements driver.Valuer for nullable JSONB columns.
func (r AssetReference) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Scan implements sql.Scanner.
func (r *AssetReference) Scan(src interface{}) error {
	return scanJSON(src, r)
}

// AssetReferences is the JSONB list form stored on documents.
type AssetReferences []AssetReference

// Value implements driver.Valuer.
func (refs AssetReferences) Value() (driver.Value, error) {
	if refs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]AssetReference(refs))
}

// Scan implements sql.Scanner.
func (refs *AssetReferences) Scan(src interface{}) error {
	if src == nil {
		*refs = AssetReferences{}
		return nil
	}
	return scanJSON(src, (*[]AssetReference)(refs))
}

// Without returns a copy of refs excluding blobID.
func (refs AssetReferences) Without(blobID string) AssetReferences {
	out := make(AssetReferences, 0, len(refs))
	for _, ref := range refs {
		if ref.BlobID != blobID {
			out = append(out, ref)
		}
	}
	return out
}

// Contains reports whether blobID is present.
func (refs AssetReferences) Contains(blobID string) bool {
	for _, ref := range refs {
		if ref.BlobID == blobID {
			return true
		}
	}
	return false
}

// DocumentRef identifies the document owning a reference.
type DocumentRef struct {
	Collection string `json:"collection"`
	DocumentID string `json:"documentId"`
}

func (d DocumentRef) String() string {
	return d.Collection + "/" + d.DocumentID
}

// BlobRecord is the metadata row of a stored blob.
type BlobRecord struct {
	ID              string    `db:"id" json:"id"`
	Filename        string    `db:"filename" json:"filename"`
	MimeType        string    `db:"mime_type" json:"mimeType"`
	SizeBytes       int64     `db:"size_bytes" json:"sizeBytes"`
	Checksum        string    `db:"checksum" json:"checksum"`
	ChunkSize       int       `db:"chunk_size" json:"chunkSize"`
	ChunkCount      int       `db:"chunk_count" json:"chunkCount"`
	OwnerCollection *string   `db:"owner_collection" json:"ownerCollection,omitempty"`
	OwnerDocumentID *string   `db:"owner_document_id" json:"ownerDocumentId,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}

// OwnerRef returns the owning document, if recorded.
func (b *BlobRecord) OwnerRef() *DocumentRef {
	if b == nil || b.OwnerCollection == nil || b.OwnerDocumentID == nil {
		return nil
	}
	return &DocumentRef{Collection: *b.OwnerCollection, DocumentID: *b.OwnerDocumentID}
}

// BlobMetadata is supplied by callers on put.
type BlobMetadata struct {
	Filename string
	MimeType string
	Owner    *DocumentRef
}

// Blob carries content together with its metadata.
type Blob struct {
	Record BlobRecord
	Data   []byte
}

// AssetLink is a row in the attach/detach ledger.
type AssetLink struct {
	Collection string    `db:"collection" json:"collection"`
	DocumentID string    `db:"document_id" json:"documentId"`
	BlobID     string    `db:"blob_id" json:"blobId"`
	Role       AssetRole `db:"role" json:"role"`
	LinkedAt   time.Time `db:"linked_at" json:"linkedAt"`
}

// MissingReference records a reference removed because its blob is gone.
type MissingReference struct {
	Collection string    `json:"collection"`
	DocumentID string    `json:"documentId"`
	Field      string    `json:"field"`
	BlobID     string    `json:"blobId"`
	Role       AssetRole `json:"role"`
}

// OrphanBlob is a blob no document references.
type OrphanBlob struct {
	BlobID    string    `json:"blobId"`
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReconcileFailure is a per-item error that did not abort a pass.
type ReconcileFailure struct {
	Item  string `json:"item"`
	Error string `json:"error"`
}

// ReconciliationReport summarises one reconciliation pass. Missing references
// and ledger repairs are changes applied by the pass; orphans are candidates
// reported on every pass until an explicit cleanup removes them.
type ReconciliationReport struct {
	StartedAt         time.Time          `json:"startedAt"`
	FinishedAt        time.Time          `json:"finishedAt"`
	DocumentsScanned  int                `json:"documentsScanned"`
	ReferencesChecked int                `json:"referencesChecked"`
	BlobsScanned      int                `json:"blobsScanned"`
	MissingReferences []MissingReference `json:"missingReferences"`
	Orphans           []OrphanBlob       `json:"orphans"`
	LinksRepaired     int                `json:"linksRepaired"`
	LinksPruned       int                `json:"linksPruned"`
	Failures          []ReconcileFailure `json:"failures"`
}

// HasChanges reports whether the pass modified any document or ledger row.
func (r *ReconciliationReport) HasChanges() bool {
	return r != nil && (len(r.MissingReferences) > 0 || r.LinksRepaired > 0 || r.LinksPruned > 0)
}

// OrphanCleanupResult reports an explicit orphan deletion step.
type OrphanCleanupResult struct {
	DryRun     bool         `json:"dryRun"`
	Grace      string       `json:"grace"`
	Candidates []OrphanBlob `json:"candidates"`
	Deleted    []string     `json:"deleted"`
	Skipped    []string     `json:"skipped"`
}

func scanJSON(src interface{}, dest interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case nil:
		return nil
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

// ReportFormat is a rendering format for reconciliation reports.
type ReportFormat string

const (
	ReportFormatJSON ReportFormat = "json"
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatPDF  ReportFormat = "pdf"
)

// Valid reports whether the format is supported.
func (f ReportFormat) Valid() bool {
	return f == ReportFormatJSON || f == ReportFormatCSV || f == ReportFormatPDF
}
