package service

import (
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/models"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
	"github.com/noah-isme/sma-admission-api/pkg/export"
)

var reconcileHeaders = []string{"kind", "collection", "document", "field", "blob", "detail"}

type datasetRenderer interface {
	ContentType() string
	Extension() string
	Render(data export.Dataset) ([]byte, error)
}

// RenderedReport is an exported report ready to stream.
type RenderedReport struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders reconciliation reports as CSV or PDF.
type ExportService struct {
	renderers map[models.ReportFormat]datasetRenderer
	logger    *zap.Logger
}

// NewExportService constructs an ExportService. Nil renderers fall back to the defaults.
func NewExportService(csv, pdf datasetRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		renderers: map[models.ReportFormat]datasetRenderer{
			models.ReportFormatCSV: csv,
			models.ReportFormatPDF: pdf,
		},
		logger: logger,
	}
}

// RenderReconciliation renders report in format.
func (s *ExportService) RenderReconciliation(report *models.ReconciliationReport, format models.ReportFormat) (*RenderedReport, error) {
	if report == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no reconciliation report available")
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	payload, err := renderer.Render(ReconciliationDataset(report))
	if err != nil {
		s.logger.Error("failed to render reconciliation report", zap.String("format", string(format)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}
	return &RenderedReport{
		Filename:    fmt.Sprintf("reconcile-%s.%s", report.StartedAt.UTC().Format("20060102-150405"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Data:        payload,
	}, nil
}

// ReconciliationDataset flattens a report into one row per finding.
func ReconciliationDataset(report *models.ReconciliationReport) export.Dataset {
	rows := make([]map[string]string, 0, len(report.MissingReferences)+len(report.Orphans)+len(report.Failures))
	for _, m := range report.MissingReferences {
		rows = append(rows, map[string]string{
			"kind":       "missing_reference",
			"collection": m.Collection,
			"document":   m.DocumentID,
			"field":      m.Field,
			"blob":       m.BlobID,
			"detail":     string(m.Role),
		})
	}
	for _, o := range report.Orphans {
		rows = append(rows, map[string]string{
			"kind":   "orphan",
			"blob":   o.BlobID,
			"detail": fmt.Sprintf("%s (%d bytes, created %s)", o.Filename, o.SizeBytes, o.CreatedAt.UTC().Format(time.RFC3339)),
		})
	}
	for _, f := range report.Failures {
		rows = append(rows, map[string]string{
			"kind":     "failure",
			"document": f.Item,
			"detail":   f.Error,
		})
	}

	return export.Dataset{
		Title: "Asset reconciliation report",
		Summary: []export.SummaryLine{
			{Label: "Started", Value: report.StartedAt.UTC().Format(time.RFC3339)},
			{Label: "Finished", Value: report.FinishedAt.UTC().Format(time.RFC3339)},
			{Label: "Documents scanned", Value: strconv.Itoa(report.DocumentsScanned)},
			{Label: "References checked", Value: strconv.Itoa(report.ReferencesChecked)},
			{Label: "Blobs scanned", Value: strconv.Itoa(report.BlobsScanned)},
			{Label: "Missing references", Value: strconv.Itoa(len(report.MissingReferences))},
			{Label: "Orphan candidates", Value: strconv.Itoa(len(report.Orphans))},
			{Label: "Links repaired", Value: strconv.Itoa(report.LinksRepaired)},
			{Label: "Links pruned", Value: strconv.Itoa(report.LinksPruned)},
			{Label: "Failures", Value: strconv.Itoa(len(report.Failures))},
		},
		Headers: reconcileHeaders,
		Rows:    rows,
	}
}
