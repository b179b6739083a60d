package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"iter"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/internal/repository"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

type blobRepository interface {
	Create(ctx context.Context, record *models.BlobRecord, chunks [][]byte) error
	GetByID(ctx context.Context, id string) (*models.BlobRecord, error)
	ReadChunks(ctx context.Context, id string) ([][]byte, error)
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	ListAfter(ctx context.Context, cursor *repository.BlobCursor, limit int) ([]models.BlobRecord, error)
	SetOwnerIfEmpty(ctx context.Context, id string, owner models.DocumentRef) error
	ClearOwner(ctx context.Context, id string, owner models.DocumentRef) error
}

// BlobServiceConfig tunes chunking, timeouts and the upload policy.
type BlobServiceConfig struct {
	ChunkSize      int
	OpTimeout      time.Duration
	MaxUploadBytes int64
	AllowedMIMEs   []string
	MetaCacheSize  int
	MetaCacheTTL   time.Duration
	ListPageSize   int
}

// BlobService is the chunked blob store. Content is immutable once written.
type BlobService struct {
	repo      blobRepository
	cfg       BlobServiceConfig
	optimizer *ImageOptimizer
	meta      *expirable.LRU[string, *models.BlobRecord]
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewBlobService constructs the blob store.
func NewBlobService(repo blobRepository, cfg BlobServiceConfig, optimizer *ImageOptimizer, metrics *MetricsService, logger *zap.Logger) *BlobService {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 255 * 1024
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 15 * time.Second
	}
	if cfg.MetaCacheSize <= 0 {
		cfg.MetaCacheSize = 1024
	}
	if cfg.MetaCacheTTL <= 0 {
		cfg.MetaCacheTTL = 5 * time.Minute
	}
	if cfg.ListPageSize <= 0 {
		cfg.ListPageSize = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobService{
		repo:      repo,
		cfg:       cfg,
		optimizer: optimizer,
		meta:      expirable.NewLRU[string, *models.BlobRecord](cfg.MetaCacheSize, nil, cfg.MetaCacheTTL),
		metrics:   metrics,
		logger:    logger,
	}
}

// Put validates, optionally downsizes, and stores data.
func (s *BlobService) Put(ctx context.Context, data []byte, meta models.BlobMetadata) (*models.BlobRecord, error) {
	if len(data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}
	if s.cfg.MaxUploadBytes > 0 && int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file exceeds maximum upload size")
	}
	mimeType, err := s.detectMIME(data)
	if err != nil {
		return nil, err
	}

	if optimized, changed, err := s.optimizer.Optimize(data, mimeType); err != nil {
		s.logger.Warn("image optimisation skipped", zap.String("filename", meta.Filename), zap.Error(err))
	} else if changed {
		data = optimized
	}

	sum := sha256.Sum256(data)
	record := &models.BlobRecord{
		ID:        uuid.NewString(),
		Filename:  cleanFilename(meta.Filename),
		MimeType:  mimeType,
		SizeBytes: int64(len(data)),
		Checksum:  hex.EncodeToString(sum[:]),
		ChunkSize: s.cfg.ChunkSize,
		CreatedAt: time.Now().UTC(),
	}
	if meta.Owner != nil {
		collection, documentID := meta.Owner.Collection, meta.Owner.DocumentID
		record.OwnerCollection = &collection
		record.OwnerDocumentID = &documentID
	}
	chunks := splitChunks(data, s.cfg.ChunkSize)
	record.ChunkCount = len(chunks)

	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()
	err = s.repo.Create(opCtx, record, chunks)
	s.metrics.RecordBlobOp("put", err, record.SizeBytes)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrStorageFault, "failed to store file")
	}
	s.meta.Add(record.ID, record)
	return record, nil
}

// Stat returns blob metadata without reading content.
func (s *BlobService) Stat(ctx context.Context, id string) (*models.BlobRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
	}
	if record, ok := s.meta.Get(id); ok {
		s.metrics.RecordCacheOperation(true)
		return record, nil
	}
	s.metrics.RecordCacheOperation(false)

	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()
	record, err := s.repo.GetByID(opCtx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrStorageFault, "failed to load file")
	}
	s.meta.Add(id, record)
	return record, nil
}

// Get returns the blob content together with its metadata.
func (s *BlobService) Get(ctx context.Context, id string) (*models.Blob, error) {
	record, err := s.Stat(ctx, id)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()
	chunks, err := s.repo.ReadChunks(opCtx, id)
	s.metrics.RecordBlobOp("get", err, 0)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrStorageFault, "failed to read file")
	}
	if len(chunks) == 0 && record.ChunkCount > 0 {
		// deleted between the metadata read and the chunk read
		s.meta.Remove(id)
		return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
	}

	data := bytes.Join(chunks, nil)
	if int64(len(data)) != record.SizeBytes {
		return nil, appErrors.Clone(appErrors.ErrStorageFault, "stored file is incomplete")
	}
	if record.Checksum != "" {
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != record.Checksum {
			return nil, appErrors.Clone(appErrors.ErrStorageFault, "stored file checksum mismatch")
		}
	}
	return &models.Blob{Record: *record, Data: data}, nil
}

// Exists reports whether id is stored. It always consults the repository.
func (s *BlobService) Exists(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()
	ok, err := s.repo.Exists(opCtx, id)
	if err != nil {
		return false, appErrors.WrapAs(err, appErrors.ErrStorageFault, "failed to check file")
	}
	if !ok {
		s.meta.Remove(id)
	}
	return ok, nil
}

// Delete removes the blob. Deleting an absent blob is not an error.
func (s *BlobService) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	s.meta.Remove(id)
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()
	removed, err := s.repo.Delete(opCtx, id)
	s.metrics.RecordBlobOp("delete", err, 0)
	if err != nil {
		return appErrors.WrapAs(err, appErrors.ErrStorageFault, "failed to delete file")
	}
	if removed {
		s.logger.Info("blob deleted", zap.String("blob_id", id))
	}
	return nil
}

// ListAll yields every stored blob in creation order. Each range over the
// returned sequence starts a fresh scan; iteration stops after the first error.
func (s *BlobService) ListAll(ctx context.Context) iter.Seq2[models.BlobRecord, error] {
	return func(yield func(models.BlobRecord, error) bool) {
		var cursor *repository.BlobCursor
		for {
			page, err := s.repo.ListAfter(ctx, cursor, s.cfg.ListPageSize)
			if err != nil {
				yield(models.BlobRecord{}, appErrors.WrapAs(err, appErrors.ErrStorageFault, "failed to list files"))
				return
			}
			for _, record := range page {
				if !yield(record, nil) {
					return
				}
			}
			if len(page) < s.cfg.ListPageSize {
				return
			}
			last := page[len(page)-1]
			cursor = &repository.BlobCursor{CreatedAt: last.CreatedAt, ID: last.ID}
		}
	}
}

// ClaimOwner records doc as the blob owner when none is set yet.
func (s *BlobService) ClaimOwner(ctx context.Context, id string, doc models.DocumentRef) error {
	if err := s.repo.SetOwnerIfEmpty(ctx, id, doc); err != nil {
		return appErrors.WrapAs(err, appErrors.ErrStorageFault, "failed to record file owner")
	}
	s.meta.Remove(id)
	return nil
}

// ReleaseOwner clears doc as the blob owner if it still is.
func (s *BlobService) ReleaseOwner(ctx context.Context, id string, doc models.DocumentRef) error {
	if err := s.repo.ClearOwner(ctx, id, doc); err != nil {
		return appErrors.WrapAs(err, appErrors.ErrStorageFault, "failed to clear file owner")
	}
	s.meta.Remove(id)
	return nil
}

func (s *BlobService) detectMIME(data []byte) (string, error) {
	detected := mimetype.Detect(data)
	if len(s.cfg.AllowedMIMEs) == 0 {
		return stripParams(detected.String()), nil
	}
	for m := detected; m != nil; m = m.Parent() {
		if mimetype.EqualsAny(m.String(), s.cfg.AllowedMIMEs...) {
			return stripParams(m.String()), nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrValidation, "file type "+stripParams(detected.String())+" is not allowed")
}

func splitChunks(data []byte, size int) [][]byte {
	chunks := make([][]byte, 0, len(data)/size+1)
	for start := 0; start < len(data); start += size {
		end := start + size
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[start:end])
	}
	return chunks
}

func cleanFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}

func stripParams(mimeType string) string {
	if idx := strings.IndexByte(mimeType, ';'); idx >= 0 {
		return strings.TrimSpace(mimeType[:idx])
	}
	return mimeType
}
