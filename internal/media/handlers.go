package media

import (
	"context"
	"io"
	"net/http"

	"github.com/ImAdityaa12/storex-backend/internal/common"
)

// 5 MiB, matching the storefront's client-side limit.
const maxUploadBytes = 5 << 20

// Uploader stores one image and returns its public URL.
type Uploader interface {
	UploadImage(ctx context.Context, reader io.Reader, size int64, contentType, originalName string) (string, error)
}

// Handler exposes the admin image upload endpoint.
type Handler struct {
	Storage Uploader
}

// Upload handles POST /admin/media. The file arrives as multipart form
// field "file".
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.Storage == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "media storage not configured", nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid multipart body", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "file field is required", nil)
		return
	}
	defer file.Close()

	url, err := h.Storage.UploadImage(r.Context(), file, header.Size, header.Header.Get("Content-Type"), header.Filename)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "could not store image", map[string]any{"reason": err.Error()})
		return
	}
	common.JSON(w, http.StatusCreated, map[string]string{"url": url})
}
