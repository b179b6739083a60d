package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
	"github.com/noah-isme/sma-admission-api/pkg/response"
)

type admissionWorkflow interface {
	Submit(ctx context.Context, req dto.SubmitAdmissionRequest, uploads []dto.FileUpload) (*models.AdmissionRequest, error)
	List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionRequest, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.AdmissionRequest, error)
	Approve(ctx context.Context, actor *models.Identity, id string, req dto.ApproveAdmissionRequest) (*models.AdmissionRequest, *models.Student, error)
	Reject(ctx context.Context, actor *models.Identity, id string, req dto.RejectAdmissionRequest) (*models.AdmissionRequest, error)
}

// AdmissionHandler exposes the admission review workflow.
type AdmissionHandler struct {
	admissions   admissionWorkflow
	maxFileBytes int64
}

// NewAdmissionHandler constructs AdmissionHandler.
func NewAdmissionHandler(admissions admissionWorkflow, maxFileBytes int64) *AdmissionHandler {
	return &AdmissionHandler{admissions: admissions, maxFileBytes: maxFileBytes}
}

// approvalResult is returned by Approve.
type approvalResult struct {
	Request *models.AdmissionRequest `json:"request"`
	Student *models.Student          `json:"student"`
}

// Submit godoc
// @Summary Submit admission request
// @Tags Admission
// @Accept json,mpfd
// @Produce json
// @Param data formData string false "SubmitAdmissionRequest JSON (multipart)"
// @Param documents formData file false "Supporting documents"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admission [post]
func (h *AdmissionHandler) Submit(c *gin.Context) {
	var req dto.SubmitAdmissionRequest
	uploads, err := bindPayloadWithFiles(c, &req, h.maxFileBytes)
	if err != nil {
		response.Error(c, err)
		return
	}
	request, err := h.admissions.Submit(c.Request.Context(), req, uploads)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// List godoc
// @Summary List admission requests
// @Tags Admission
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param search query string false "Search by applicant name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admission [get]
func (h *AdmissionHandler) List(c *gin.Context) {
	var filter models.AdmissionFilter
	for _, raw := range strings.Split(c.Query("status"), ",") {
		status := models.AdmissionStatus(strings.ToLower(strings.TrimSpace(raw)))
		if status == "" {
			continue
		}
		if !status.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown status "+string(status)))
			return
		}
		filter.Status = append(filter.Status, status)
	}
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Page, filter.PageSize = pageFromQuery(c)

	requests, pagination, err := h.admissions.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Get godoc
// @Summary Get admission request
// @Tags Admission
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admission/{id} [get]
func (h *AdmissionHandler) Get(c *gin.Context) {
	request, err := h.admissions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Approve godoc
// @Summary Approve admission request and create the student
// @Tags Admission
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ApproveAdmissionRequest false "Review notes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admission/{id}/approve [post]
func (h *AdmissionHandler) Approve(c *gin.Context) {
	var req dto.ApproveAdmissionRequest
	if err := bindJSONOptional(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	request, student, err := h.admissions.Approve(c.Request.Context(), identityFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approvalResult{Request: request, Student: student}, nil)
}

// Reject godoc
// @Summary Reject admission request
// @Tags Admission
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.RejectAdmissionRequest false "Review notes and refund"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admission/{id}/reject [post]
func (h *AdmissionHandler) Reject(c *gin.Context) {
	var req dto.RejectAdmissionRequest
	if err := bindJSONOptional(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	request, err := h.admissions.Reject(c.Request.Context(), identityFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}
