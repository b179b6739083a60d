package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/internal/service"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
	"github.com/noah-isme/sma-admission-api/pkg/response"
)

type reconcileRunner interface {
	RunNow(ctx context.Context) (*models.ReconciliationReport, bool, error)
	Latest() (*models.ReconciliationReport, bool)
}

type orphanCleaner interface {
	CleanupOrphans(ctx context.Context, actor *models.Identity, grace time.Duration, apply bool) (*models.OrphanCleanupResult, error)
}

type reportRenderer interface {
	RenderReconciliation(report *models.ReconciliationReport, format models.ReportFormat) (*service.RenderedReport, error)
}

// AssetHandler exposes reconciliation and orphan cleanup to operators.
type AssetHandler struct {
	runner       reconcileRunner
	cleaner      orphanCleaner
	renderer     reportRenderer
	defaultGrace time.Duration
}

// NewAssetHandler constructs AssetHandler.
func NewAssetHandler(runner reconcileRunner, cleaner orphanCleaner, renderer reportRenderer, defaultGrace time.Duration) *AssetHandler {
	return &AssetHandler{runner: runner, cleaner: cleaner, renderer: renderer, defaultGrace: defaultGrace}
}

// Reconcile godoc
// @Summary Run a reconciliation pass now
// @Tags Assets
// @Produce json,text/csv,application/pdf
// @Param format query string false "json, csv or pdf"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assets/reconcile [post]
func (h *AssetHandler) Reconcile(c *gin.Context) {
	format, err := reportFormat(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	report, skipped, err := h.runner.RunNow(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if skipped {
		response.Error(c, service.ErrReconcileInProgress)
		return
	}
	h.writeReport(c, report, format)
}

// Latest godoc
// @Summary Latest reconciliation report
// @Tags Assets
// @Produce json,text/csv,application/pdf
// @Param format query string false "json, csv or pdf"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assets/reconcile/latest [get]
func (h *AssetHandler) Latest(c *gin.Context) {
	format, err := reportFormat(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	report, ok := h.runner.Latest()
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "no reconciliation has completed yet"))
		return
	}
	h.writeReport(c, report, format)
}

// CleanupOrphans godoc
// @Summary Delete orphan blobs older than the grace period
// @Tags Assets
// @Accept json
// @Produce json
// @Param payload body dto.OrphanCleanupRequest false "Grace and apply flag"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assets/orphans/cleanup [post]
func (h *AssetHandler) CleanupOrphans(c *gin.Context) {
	var req dto.OrphanCleanupRequest
	if err := bindJSONOptional(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	grace := h.defaultGrace
	if req.Grace != "" {
		parsed, err := time.ParseDuration(req.Grace)
		if err != nil || parsed < 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid grace %q", req.Grace)))
			return
		}
		grace = parsed
	}
	result, err := h.cleaner.CleanupOrphans(c.Request.Context(), identityFromContext(c), grace, req.Apply)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func (h *AssetHandler) writeReport(c *gin.Context, report *models.ReconciliationReport, format models.ReportFormat) {
	if format == models.ReportFormatJSON {
		response.JSON(c, http.StatusOK, report, nil)
		return
	}
	rendered, err := h.renderer.RenderReconciliation(report, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Blob(c, "attachment", rendered.Filename, rendered.ContentType, rendered.Data)
}

func reportFormat(c *gin.Context) (models.ReportFormat, error) {
	format := models.ReportFormat(strings.ToLower(c.DefaultQuery("format", string(models.ReportFormatJSON))))
	if !format.Valid() {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format))
	}
	return format, nil
}
