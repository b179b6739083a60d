package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/pkg/response"
)

type blobReader interface {
	Get(ctx context.Context, id string) (*models.Blob, error)
}

// FileHandler streams stored blobs.
type FileHandler struct {
	blobs blobReader
}

// NewFileHandler constructs FileHandler.
func NewFileHandler(blobs blobReader) *FileHandler {
	return &FileHandler{blobs: blobs}
}

// Inline godoc
// @Summary Serve file inline
// @Tags Files
// @Produce octet-stream
// @Param id path string true "Blob ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /files/{id} [get]
func (h *FileHandler) Inline(c *gin.Context) {
	h.serve(c, "inline")
}

// Download godoc
// @Summary Download file as attachment
// @Tags Files
// @Produce octet-stream
// @Param id path string true "Blob ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /files/download/{id} [get]
func (h *FileHandler) Download(c *gin.Context) {
	h.serve(c, "attachment")
}

func (h *FileHandler) serve(c *gin.Context, disposition string) {
	blob, err := h.blobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Header("ETag", `"`+blob.Record.Checksum+`"`)
	response.Blob(c, disposition, blob.Record.Filename, blob.Record.MimeType, blob.Data)
}
