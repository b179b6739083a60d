package service

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-admission-api/internal/models"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

func sampleReport() *models.ReconciliationReport {
	started := time.Date(2026, time.October, 1, 2, 0, 0, 0, time.UTC)
	return &models.ReconciliationReport{
		StartedAt:         started,
		FinishedAt:        started.Add(3 * time.Second),
		DocumentsScanned:  12,
		ReferencesChecked: 30,
		BlobsScanned:      40,
		MissingReferences: []models.MissingReference{{Collection: models.CollectionContent, DocumentID: "doc-1", Field: models.FieldItems, BlobID: "blob-missing", Role: models.AssetRoleGalleryItem}},
		Orphans:           []models.OrphanBlob{{BlobID: "blob-orphan", Filename: "old.jpg", SizeBytes: 2048, CreatedAt: started.Add(-48 * time.Hour)}},
		Failures:          []models.ReconcileFailure{{Item: "students", Error: "timeout"}},
	}
}

func TestReconciliationDatasetRows(t *testing.T) {
	data := ReconciliationDataset(sampleReport())
	require.Len(t, data.Rows, 3)
	assert.Equal(t, "missing_reference", data.Rows[0]["kind"])
	assert.Equal(t, models.FieldItems, data.Rows[0]["field"])
	assert.Equal(t, "orphan", data.Rows[1]["kind"])
	assert.Contains(t, data.Rows[1]["detail"], "old.jpg")
	assert.Equal(t, "failure", data.Rows[2]["kind"])
	assert.Equal(t, reconcileHeaders, data.Headers)
}

func TestRenderReconciliationCSV(t *testing.T) {
	svc := NewExportService(nil, nil, nil)

	rendered, err := svc.RenderReconciliation(sampleReport(), models.ReportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", rendered.ContentType)
	assert.Equal(t, "reconcile-20261001-020000.csv", rendered.Filename)
	body := string(rendered.Data)
	assert.Contains(t, body, "# Orphan candidates,1")
	assert.Contains(t, body, "kind,collection,document,field,blob,detail")
	assert.True(t, strings.Contains(body, "blob-orphan"))
}

func TestRenderReconciliationPDF(t *testing.T) {
	svc := NewExportService(nil, nil, nil)

	rendered, err := svc.RenderReconciliation(sampleReport(), models.ReportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", rendered.ContentType)
	assert.True(t, bytes.HasPrefix(rendered.Data, []byte("%PDF")))
}

func TestRenderReconciliationErrors(t *testing.T) {
	svc := NewExportService(nil, nil, nil)

	_, err := svc.RenderReconciliation(nil, models.ReportFormatCSV)
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.RenderReconciliation(sampleReport(), models.ReportFormatJSON)
	require.ErrorIs(t, err, appErrors.ErrValidation)
}
