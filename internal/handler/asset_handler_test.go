package handler

import (
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-admission-api/internal/middleware"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/internal/service"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

type runnerMock struct {
	report  *models.ReconciliationReport
	skipped bool
	err     error
	latest  *models.ReconciliationReport
	runs    int
}

func (m *runnerMock) RunNow(ctx context.Context) (*models.ReconciliationReport, bool, error) {
	m.runs++
	return m.report, m.skipped, m.err
}

func (m *runnerMock) Latest() (*models.ReconciliationReport, bool) {
	return m.latest, m.latest != nil
}

type cleanerMock struct {
	grace time.Duration
	apply bool
	actor *models.Identity
	calls int
}

func (m *cleanerMock) CleanupOrphans(ctx context.Context, actor *models.Identity, grace time.Duration, apply bool) (*models.OrphanCleanupResult, error) {
	m.calls++
	m.actor, m.grace, m.apply = actor, grace, apply
	return &models.OrphanCleanupResult{DryRun: !apply, Grace: grace.String()}, nil
}

func sampleReport() *models.ReconciliationReport {
	started := time.Date(2026, 10, 1, 2, 0, 0, 0, time.UTC)
	return &models.ReconciliationReport{
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
		Orphans:    []models.OrphanBlob{{BlobID: "b1", CreatedAt: started.Add(-48 * time.Hour)}},
	}
}

func TestAssetHandlerReconcileSkippedIsConflict(t *testing.T) {
	runner := &runnerMock{skipped: true}
	handler := NewAssetHandler(runner, &cleanerMock{}, service.NewExportService(nil, nil, nil), time.Hour)

	c, w := newTestContext(http.MethodPost, "/assets/reconcile", nil, "")
	handler.Reconcile(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 1, runner.runs)
}

func TestAssetHandlerReconcileStreamsCSV(t *testing.T) {
	runner := &runnerMock{report: sampleReport()}
	handler := NewAssetHandler(runner, &cleanerMock{}, service.NewExportService(nil, nil, nil), time.Hour)

	c, w := newTestContext(http.MethodPost, "/assets/reconcile?format=CSV", nil, "")
	handler.Reconcile(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), `attachment; filename="reconcile-20261001-020000.csv"`)
	assert.Contains(t, w.Body.String(), "b1")
}

func TestAssetHandlerRejectsUnknownFormatBeforeRunning(t *testing.T) {
	runner := &runnerMock{report: sampleReport()}
	handler := NewAssetHandler(runner, &cleanerMock{}, service.NewExportService(nil, nil, nil), time.Hour)

	c, w := newTestContext(http.MethodPost, "/assets/reconcile?format=xlsx", nil, "")
	handler.Reconcile(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, runner.runs)
}

func TestAssetHandlerLatest(t *testing.T) {
	runner := &runnerMock{}
	handler := NewAssetHandler(runner, &cleanerMock{}, service.NewExportService(nil, nil, nil), time.Hour)

	c, w := newTestContext(http.MethodGet, "/assets/reconcile/latest", nil, "")
	handler.Latest(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	runner.latest = sampleReport()
	c, w = newTestContext(http.MethodGet, "/assets/reconcile/latest?format=pdf", nil, "")
	handler.Latest(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))

	c, w = newTestContext(http.MethodGet, "/assets/reconcile/latest", nil, "")
	handler.Latest(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"blobId":"b1"`)
}

func TestAssetHandlerCleanupGrace(t *testing.T) {
	cleaner := &cleanerMock{}
	handler := NewAssetHandler(&runnerMock{}, cleaner, service.NewExportService(nil, nil, nil), 24*time.Hour)
	admin := &models.Identity{UserID: "root", Role: models.RoleSuperAdmin}

	c, w := newTestContext(http.MethodPost, "/assets/orphans/cleanup", nil, "")
	c.Set(middleware.ContextIdentityKey, admin)
	handler.CleanupOrphans(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 24*time.Hour, cleaner.grace)
	assert.False(t, cleaner.apply)
	assert.Equal(t, admin, cleaner.actor)

	c, w = newTestContext(http.MethodPost, "/assets/orphans/cleanup", bytes.NewBufferString(`{"grace":"2h","apply":true}`), "application/json")
	handler.CleanupOrphans(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2*time.Hour, cleaner.grace)
	assert.True(t, cleaner.apply)

	c, w = newTestContext(http.MethodPost, "/assets/orphans/cleanup", bytes.NewBufferString(`{"grace":"soon"}`), "application/json")
	handler.CleanupOrphans(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 2, cleaner.calls)
}

func TestAssetHandlerReconcileError(t *testing.T) {
	runner := &runnerMock{err: appErrors.Clone(appErrors.ErrStorageFault, "blob listing failed")}
	handler := NewAssetHandler(runner, &cleanerMock{}, service.NewExportService(nil, nil, nil), time.Hour)

	c, w := newTestContext(http.MethodPost, "/assets/reconcile", nil, "")
	handler.Reconcile(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestFileHandlerDispositions(t *testing.T) {
	blobs := &blobReaderMock{blob: &models.Blob{
		Record: models.BlobRecord{ID: "b1", Filename: "report.pdf", MimeType: "application/pdf", Checksum: "abc"},
		Data:   []byte("%PDF-1.4"),
	}}
	handler := NewFileHandler(blobs)

	c, w := newTestContext(http.MethodGet, "/files/b1", nil, "")
	c.Params = gin.Params{{Key: "id", Value: "b1"}}
	handler.Inline(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `inline; filename="report.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `"abc"`, w.Header().Get("ETag"))

	c, w = newTestContext(http.MethodGet, "/files/download/b1", nil, "")
	c.Params = gin.Params{{Key: "id", Value: "b1"}}
	handler.Download(c)
	assert.Equal(t, `attachment; filename="report.pdf"`, w.Header().Get("Content-Disposition"))

	blobs.blob = nil
	c, w = newTestContext(http.MethodGet, "/files/missing", nil, "")
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	handler.Inline(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type blobReaderMock struct {
	blob *models.Blob
}

func (m *blobReaderMock) Get(ctx context.Context, id string) (*models.Blob, error) {
	if m.blob == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "blob not found")
	}
	return m.blob, nil
}
