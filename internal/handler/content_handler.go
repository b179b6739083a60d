package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/middleware"
	"github.com/noah-isme/sma-admission-api/internal/models"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
	"github.com/noah-isme/sma-admission-api/pkg/response"
)

// Drafts are hidden from anonymous readers as if they did not exist.
var errContentNotFound = appErrors.Clone(appErrors.ErrNotFound, "content not found")

type contentStore interface {
	Create(ctx context.Context, actor *models.Identity, req dto.CreateContentRequest, uploads []dto.FileUpload) (*models.ContentDocument, error)
	Get(ctx context.Context, id string) (*models.ContentDocument, error)
	Update(ctx context.Context, actor *models.Identity, id string, req dto.UpdateContentRequest, uploads []dto.FileUpload) (*models.ContentDocument, error)
	Delete(ctx context.Context, actor *models.Identity, id string) error
	List(ctx context.Context, filter models.ContentFilter) ([]models.ContentDocument, *models.Pagination, error)
}

// ContentHandler exposes articles, notices and galleries.
type ContentHandler struct {
	content      contentStore
	maxFileBytes int64
}

// NewContentHandler constructs ContentHandler.
func NewContentHandler(content contentStore, maxFileBytes int64) *ContentHandler {
	return &ContentHandler{content: content, maxFileBytes: maxFileBytes}
}

// Create godoc
// @Summary Create content document
// @Tags Content
// @Accept mpfd
// @Produce json
// @Param data formData string true "CreateContentRequest JSON"
// @Param featuredImage formData file false "Featured image"
// @Param coverImage formData file false "Cover image"
// @Param items formData file false "Gallery items"
// @Param attachments formData file false "Notice attachments"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /content [post]
func (h *ContentHandler) Create(c *gin.Context) {
	var req dto.CreateContentRequest
	uploads, err := bindPayloadWithFiles(c, &req, h.maxFileBytes)
	if err != nil {
		response.Error(c, err)
		return
	}
	doc, err := h.content.Create(c.Request.Context(), identityFromContext(c), req, uploads)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// ListByType godoc
// @Summary List content of one type
// @Tags Content
// @Produce json
// @Param type path string true "article, notice or gallery"
// @Param status query string false "draft or published (editors only)"
// @Param category query string false "Category"
// @Param search query string false "Search title and body"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /content/type/{type} [get]
func (h *ContentHandler) ListByType(c *gin.Context) {
	filter := models.ContentFilter{
		Type:     models.ContentType(strings.ToLower(c.Param("type"))),
		Status:   models.ContentStatus(strings.ToLower(c.Query("status"))),
		Category: c.Query("category"),
		Search:   strings.TrimSpace(c.Query("search")),
	}
	filter.Page, filter.PageSize = pageFromQuery(c)
	if identityFromContext(c) == nil {
		filter.Status = models.ContentStatusPublished
	}

	docs, pagination, err := h.content.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, pagination, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get content document
// @Tags Content
// @Produce json
// @Param id path string true "Content ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /content/{id} [get]
func (h *ContentHandler) Get(c *gin.Context) {
	doc, err := h.content.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if doc.Status != models.ContentStatusPublished && identityFromContext(c) == nil {
		response.Error(c, errContentNotFound)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Update godoc
// @Summary Update content document
// @Tags Content
// @Accept mpfd
// @Produce json
// @Param id path string true "Content ID"
// @Param data formData string true "UpdateContentRequest JSON"
// @Success 200 {object} response.Envelope
// @Router /content/{id} [put]
func (h *ContentHandler) Update(c *gin.Context) {
	var req dto.UpdateContentRequest
	uploads, err := bindPayloadWithFiles(c, &req, h.maxFileBytes)
	if err != nil {
		response.Error(c, err)
		return
	}
	doc, err := h.content.Update(c.Request.Context(), identityFromContext(c), c.Param("id"), req, uploads)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Delete godoc
// @Summary Delete content document
// @Tags Content
// @Param id path string true "Content ID"
// @Success 204
// @Router /content/{id} [delete]
func (h *ContentHandler) Delete(c *gin.Context) {
	if err := h.content.Delete(c.Request.Context(), identityFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
