package service

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/models"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

// ErrReconcileInProgress is returned when a pass is already running in this process.
var ErrReconcileInProgress = appErrors.New("RECONCILE_IN_PROGRESS", http.StatusConflict, "reconciliation already running")

type assetLinkStore interface {
	Upsert(ctx context.Context, link *models.AssetLink) error
	Delete(ctx context.Context, doc models.DocumentRef, blobID string) error
	DeleteByDocument(ctx context.Context, doc models.DocumentRef) ([]string, error)
	ListAll(ctx context.Context) ([]models.AssetLink, error)
	CountByBlob(ctx context.Context, blobID string) (int, error)
}

type blobIndex interface {
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	ListAll(ctx context.Context) iter.Seq2[models.BlobRecord, error]
	ClaimOwner(ctx context.Context, id string, doc models.DocumentRef) error
	ReleaseOwner(ctx context.Context, id string, doc models.DocumentRef) error
}

// ReferenceHolder is a collection whose documents embed asset references.
type ReferenceHolder interface {
	Collection() string
	ForEachReferences(ctx context.Context, fn func(documentID string, refs []models.FieldReference) error) error
	RemoveReferences(ctx context.Context, documentID string, blobIDs []string) ([]models.FieldReference, error)
}

// AssetServiceConfig holds reconciliation timing.
type AssetServiceConfig struct {
	// LinkGrace keeps ledger links that no document embeds yet, covering
	// creates between attach and persist.
	LinkGrace time.Duration
}

// AssetService tracks which documents reference which blobs and repairs drift.
type AssetService struct {
	links   assetLinkStore
	blobs   blobIndex
	holders []ReferenceHolder
	cfg     AssetServiceConfig
	metrics *MetricsService
	audit   auditTrail
	logger  *zap.Logger
	now     func() time.Time

	running sync.Mutex
}

// NewAssetService constructs the reference tracker.
func NewAssetService(links assetLinkStore, blobs blobIndex, holders []ReferenceHolder, cfg AssetServiceConfig, audit auditWriter, metrics *MetricsService, logger *zap.Logger) *AssetService {
	if cfg.LinkGrace <= 0 {
		cfg.LinkGrace = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssetService{
		links:   links,
		blobs:   blobs,
		holders: holders,
		cfg:     cfg,
		metrics: metrics,
		audit:   auditTrail{writer: audit, source: "asset-service", logger: logger},
		logger:  logger,
		now:     time.Now,
	}
}

// Attach records that doc references ref. The blob must exist.
func (s *AssetService) Attach(ctx context.Context, doc models.DocumentRef, ref models.AssetReference) error {
	if !ref.Role.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown asset role %q", ref.Role))
	}
	exists, err := s.blobs.Exists(ctx, ref.BlobID)
	if err != nil {
		return err
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrDanglingReference, fmt.Sprintf("blob %s does not exist", ref.BlobID))
	}
	link := &models.AssetLink{
		Collection: doc.Collection,
		DocumentID: doc.DocumentID,
		BlobID:     ref.BlobID,
		Role:       ref.Role,
		LinkedAt:   s.now().UTC(),
	}
	if err := s.links.Upsert(ctx, link); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record asset link")
	}
	if err := s.blobs.ClaimOwner(ctx, ref.BlobID, doc); err != nil {
		s.logger.Warn("failed to record blob owner", zap.String("blob_id", ref.BlobID), zap.String("document", doc.String()), zap.Error(err))
	}
	return nil
}

// AttachAll attaches refs in order and stops at the first failure.
func (s *AssetService) AttachAll(ctx context.Context, doc models.DocumentRef, refs []models.AssetReference) error {
	for _, ref := range refs {
		if err := s.Attach(ctx, doc, ref); err != nil {
			return err
		}
	}
	return nil
}

// Detach removes the link between doc and blobID. The blob itself is kept.
func (s *AssetService) Detach(ctx context.Context, doc models.DocumentRef, blobID string) error {
	if err := s.links.Delete(ctx, doc, blobID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove asset link")
	}
	if err := s.blobs.ReleaseOwner(ctx, blobID, doc); err != nil {
		s.logger.Warn("failed to clear blob owner", zap.String("blob_id", blobID), zap.String("document", doc.String()), zap.Error(err))
	}
	return nil
}

// DetachAll removes every link held by doc.
func (s *AssetService) DetachAll(ctx context.Context, doc models.DocumentRef) error {
	blobIDs, err := s.links.DeleteByDocument(ctx, doc)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove asset links")
	}
	for _, blobID := range blobIDs {
		if err := s.blobs.ReleaseOwner(ctx, blobID, doc); err != nil {
			s.logger.Warn("failed to clear blob owner", zap.String("blob_id", blobID), zap.String("document", doc.String()), zap.Error(err))
		}
	}
	return nil
}

type linkKey struct {
	collection string
	documentID string
	blobID     string
}

type reconcilePass struct {
	report       *models.ReconciliationReport
	exists       map[string]bool
	embedded     map[linkKey]models.AssetRole
	failedHolder map[string]bool
}

// Reconcile scans every holder, removes references to missing blobs, repairs
// the link ledger and reports orphan blobs. It never deletes blobs. Per-item
// failures are recorded in the report and do not abort the pass.
func (s *AssetService) Reconcile(ctx context.Context) (*models.ReconciliationReport, error) {
	if !s.running.TryLock() {
		return nil, ErrReconcileInProgress
	}
	defer s.running.Unlock()

	pass := &reconcilePass{
		report: &models.ReconciliationReport{
			StartedAt:         s.now().UTC(),
			MissingReferences: []models.MissingReference{},
			Orphans:           []models.OrphanBlob{},
			Failures:          []models.ReconcileFailure{},
		},
		exists:       make(map[string]bool),
		embedded:     make(map[linkKey]models.AssetRole),
		failedHolder: make(map[string]bool),
	}

	for _, holder := range s.holders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.scanHolder(ctx, holder, pass)
	}

	links, err := s.links.ListAll(ctx)
	if err != nil {
		s.fail(pass, "asset_links", err)
	} else {
		remaining := s.repairLedger(ctx, pass, links)
		if len(pass.failedHolder) == 0 {
			s.findOrphans(ctx, pass, remaining)
		} else {
			s.logger.Warn("orphan detection skipped after scan failures", zap.Int("failed_holders", len(pass.failedHolder)))
		}
	}

	pass.report.FinishedAt = s.now().UTC()
	s.metrics.RecordReconcile(pass.report, false, nil)
	s.logger.Info("asset reconciliation finished",
		zap.Int("documents", pass.report.DocumentsScanned),
		zap.Int("references", pass.report.ReferencesChecked),
		zap.Int("missing", len(pass.report.MissingReferences)),
		zap.Int("orphans", len(pass.report.Orphans)),
		zap.Int("links_repaired", pass.report.LinksRepaired),
		zap.Int("links_pruned", pass.report.LinksPruned),
		zap.Int("failures", len(pass.report.Failures)),
	)
	return pass.report, nil
}

func (s *AssetService) scanHolder(ctx context.Context, holder ReferenceHolder, pass *reconcilePass) {
	collection := holder.Collection()
	err := holder.ForEachReferences(ctx, func(documentID string, refs []models.FieldReference) error {
		pass.report.DocumentsScanned++
		doc := models.DocumentRef{Collection: collection, DocumentID: documentID}
		var missing []models.FieldReference
		for _, fr := range refs {
			pass.report.ReferencesChecked++
			exists, err := s.blobExists(ctx, pass, fr.Ref.BlobID)
			if err != nil {
				s.fail(pass, doc.String()+"/"+fr.Ref.BlobID, err)
				// unknown state counts as present so nothing is removed
				pass.embedded[linkKey{collection, documentID, fr.Ref.BlobID}] = fr.Ref.Role
				continue
			}
			if !exists {
				missing = append(missing, fr)
				continue
			}
			pass.embedded[linkKey{collection, documentID, fr.Ref.BlobID}] = fr.Ref.Role
		}
		if len(missing) > 0 {
			s.dropMissing(ctx, pass, holder, doc, missing)
		}
		return nil
	})
	if err != nil {
		pass.failedHolder[collection] = true
		s.fail(pass, collection, err)
	}
}

func (s *AssetService) dropMissing(ctx context.Context, pass *reconcilePass, holder ReferenceHolder, doc models.DocumentRef, missing []models.FieldReference) {
	blobIDs := make([]string, 0, len(missing))
	for _, fr := range missing {
		blobIDs = append(blobIDs, fr.Ref.BlobID)
	}
	removed, err := holder.RemoveReferences(ctx, doc.DocumentID, blobIDs)
	if err != nil {
		s.fail(pass, doc.String(), err)
		return
	}
	for _, fr := range removed {
		pass.report.MissingReferences = append(pass.report.MissingReferences, models.MissingReference{
			Collection: doc.Collection,
			DocumentID: doc.DocumentID,
			Field:      fr.Field,
			BlobID:     fr.Ref.BlobID,
			Role:       fr.Ref.Role,
		})
	}
}

// repairLedger adds links for embedded references the ledger lacks and prunes
// links that are stale or point at missing blobs. It returns the links kept.
func (s *AssetService) repairLedger(ctx context.Context, pass *reconcilePass, links []models.AssetLink) []models.AssetLink {
	linked := make(map[linkKey]bool, len(links))
	kept := make([]models.AssetLink, 0, len(links))
	cutoff := pass.report.StartedAt.Add(-s.cfg.LinkGrace)

	for _, link := range links {
		key := linkKey{link.Collection, link.DocumentID, link.BlobID}
		linked[key] = true
		if _, ok := pass.embedded[key]; ok || pass.failedHolder[link.Collection] {
			kept = append(kept, link)
			continue
		}
		exists, err := s.blobExists(ctx, pass, link.BlobID)
		if err != nil {
			s.fail(pass, "link "+key.String(), err)
			kept = append(kept, link)
			continue
		}
		if exists && link.LinkedAt.After(cutoff) {
			kept = append(kept, link)
			continue
		}
		doc := models.DocumentRef{Collection: link.Collection, DocumentID: link.DocumentID}
		if err := s.links.Delete(ctx, doc, link.BlobID); err != nil {
			s.fail(pass, "link "+key.String(), err)
			kept = append(kept, link)
			continue
		}
		pass.report.LinksPruned++
	}

	for key, role := range pass.embedded {
		if linked[key] {
			continue
		}
		link := models.AssetLink{
			Collection: key.collection,
			DocumentID: key.documentID,
			BlobID:     key.blobID,
			Role:       role,
			LinkedAt:   pass.report.StartedAt,
		}
		if err := s.links.Upsert(ctx, &link); err != nil {
			s.fail(pass, "link "+key.String(), err)
			continue
		}
		pass.report.LinksRepaired++
		kept = append(kept, link)
	}
	return kept
}

func (s *AssetService) findOrphans(ctx context.Context, pass *reconcilePass, links []models.AssetLink) {
	referenced := make(map[string]bool, len(pass.embedded)+len(links))
	for key := range pass.embedded {
		referenced[key.blobID] = true
	}
	for _, link := range links {
		referenced[link.BlobID] = true
	}
	for record, err := range s.blobs.ListAll(ctx) {
		if err != nil {
			s.fail(pass, "blobs", err)
			return
		}
		pass.report.BlobsScanned++
		if referenced[record.ID] {
			continue
		}
		pass.report.Orphans = append(pass.report.Orphans, models.OrphanBlob{
			BlobID:    record.ID,
			Filename:  record.Filename,
			SizeBytes: record.SizeBytes,
			CreatedAt: record.CreatedAt,
		})
	}
}

func (s *AssetService) blobExists(ctx context.Context, pass *reconcilePass, blobID string) (bool, error) {
	if exists, ok := pass.exists[blobID]; ok {
		return exists, nil
	}
	exists, err := s.blobs.Exists(ctx, blobID)
	if err != nil {
		return false, err
	}
	pass.exists[blobID] = exists
	return exists, nil
}

func (s *AssetService) fail(pass *reconcilePass, item string, err error) {
	s.logger.Warn("reconciliation item failed", zap.String("item", item), zap.Error(err))
	pass.report.Failures = append(pass.report.Failures, models.ReconcileFailure{Item: item, Error: err.Error()})
}

func (k linkKey) String() string {
	return k.collection + "/" + k.documentID + "/" + k.blobID
}

// CleanupOrphans deletes orphan blobs older than grace. Without apply it only
// lists the candidates. Each candidate is re-checked against the ledger right
// before deletion and skipped if a link has appeared.
func (s *AssetService) CleanupOrphans(ctx context.Context, actor *models.Identity, grace time.Duration, apply bool) (*models.OrphanCleanupResult, error) {
	report, err := s.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	if len(report.Failures) > 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "reconciliation reported failures; orphan cleanup aborted")
	}

	cutoff := s.now().UTC().Add(-grace)
	result := &models.OrphanCleanupResult{
		DryRun:     !apply,
		Grace:      grace.String(),
		Candidates: []models.OrphanBlob{},
		Deleted:    []string{},
		Skipped:    []string{},
	}
	for _, orphan := range report.Orphans {
		if orphan.CreatedAt.After(cutoff) {
			continue
		}
		result.Candidates = append(result.Candidates, orphan)
	}
	if !apply {
		return result, nil
	}

	for _, orphan := range result.Candidates {
		count, err := s.links.CountByBlob(ctx, orphan.BlobID)
		if err != nil || count > 0 {
			if err != nil {
				s.logger.Warn("orphan recheck failed", zap.String("blob_id", orphan.BlobID), zap.Error(err))
			}
			result.Skipped = append(result.Skipped, orphan.BlobID)
			continue
		}
		if err := s.blobs.Delete(ctx, orphan.BlobID); err != nil {
			s.logger.Warn("orphan delete failed", zap.String("blob_id", orphan.BlobID), zap.Error(err))
			result.Skipped = append(result.Skipped, orphan.BlobID)
			continue
		}
		result.Deleted = append(result.Deleted, orphan.BlobID)
	}

	s.logger.Info("orphan cleanup finished", zap.Int("candidates", len(result.Candidates)), zap.Int("deleted", len(result.Deleted)), zap.Int("skipped", len(result.Skipped)))
	if len(result.Deleted) > 0 {
		s.audit.emit(ctx, actor, models.AuditActionOrphanCleanup, "blobs", "", nil, result)
	}
	return result, nil
}
