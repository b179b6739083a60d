package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
)

type blobWriter interface {
	Put(ctx context.Context, data []byte, meta models.BlobMetadata) (*models.BlobRecord, error)
	Delete(ctx context.Context, id string) error
}

// uploadBatch remembers the blobs written and links recorded for one
// document so a failed write can be undone.
type uploadBatch struct {
	blobs    blobWriter
	assets   assetTracker
	doc      models.DocumentRef
	logger   *zap.Logger
	written  []string
	attached []string
}

func newUploadBatch(blobs blobWriter, assets assetTracker, doc models.DocumentRef, logger *zap.Logger) *uploadBatch {
	return &uploadBatch{blobs: blobs, assets: assets, doc: doc, logger: logger}
}

// store writes the upload, then links it to the document.
func (b *uploadBatch) store(ctx context.Context, upload dto.FileUpload, role models.AssetRole) (models.AssetReference, error) {
	owner := b.doc
	record, err := b.blobs.Put(ctx, upload.Data, models.BlobMetadata{Filename: upload.Filename, Owner: &owner})
	if err != nil {
		return models.AssetReference{}, err
	}
	b.written = append(b.written, record.ID)
	ref := models.AssetReference{BlobID: record.ID, Role: role}
	if err := b.attach(ctx, ref); err != nil {
		return models.AssetReference{}, err
	}
	return ref, nil
}

// attach links an already stored blob.
func (b *uploadBatch) attach(ctx context.Context, ref models.AssetReference) error {
	if err := b.assets.Attach(ctx, b.doc, ref); err != nil {
		return err
	}
	b.attached = append(b.attached, ref.BlobID)
	return nil
}

// rollback detaches what was linked and deletes what was written, newest first.
func (b *uploadBatch) rollback(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for i := len(b.attached) - 1; i >= 0; i-- {
		if err := b.assets.Detach(ctx, b.doc, b.attached[i]); err != nil {
			b.logger.Error("rollback detach failed", zap.String("document", b.doc.String()), zap.String("blob_id", b.attached[i]), zap.Error(err))
		}
	}
	for i := len(b.written) - 1; i >= 0; i-- {
		if err := b.blobs.Delete(ctx, b.written[i]); err != nil {
			b.logger.Error("rollback blob delete failed", zap.String("blob_id", b.written[i]), zap.Error(err))
		}
	}
	b.attached, b.written = nil, nil
}
