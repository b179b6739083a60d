package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/middleware"
	"github.com/noah-isme/sma-admission-api/internal/models"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

// payloadField is the multipart field carrying the JSON body.
const payloadField = "data"

func identityFromContext(c *gin.Context) *models.Identity {
	return middleware.IdentityFrom(c)
}

func pageFromQuery(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page, size
}

func invalidPayload(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
}

// bindJSONOptional decodes a JSON body into dest; an empty body leaves dest untouched.
func bindJSONOptional(c *gin.Context, dest interface{}) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dest); err != nil && !errors.Is(err, io.EOF) {
		return invalidPayload(err)
	}
	return nil
}

// bindPayloadWithFiles reads either a plain JSON body or a multipart form
// whose "data" field holds the JSON and whose other fields hold files.
func bindPayloadWithFiles(c *gin.Context, dest interface{}, maxFileBytes int64) ([]dto.FileUpload, error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		if err := c.ShouldBindJSON(dest); err != nil {
			return nil, invalidPayload(err)
		}
		return nil, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, invalidPayload(err)
	}
	if raw := form.Value[payloadField]; len(raw) > 0 && strings.TrimSpace(raw[0]) != "" {
		if err := json.Unmarshal([]byte(raw[0]), dest); err != nil {
			return nil, invalidPayload(err)
		}
	}

	var uploads []dto.FileUpload
	for _, field := range slices.Sorted(maps.Keys(form.File)) {
		for _, header := range form.File[field] {
			if maxFileBytes > 0 && header.Size > maxFileBytes {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file %q exceeds %d bytes", header.Filename, maxFileBytes))
			}
			file, err := header.Open()
			if err != nil {
				return nil, invalidPayload(err)
			}
			data, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				return nil, invalidPayload(err)
			}
			uploads = append(uploads, dto.FileUpload{Field: field, Filename: header.Filename, Data: data})
		}
	}
	return uploads, nil
}
