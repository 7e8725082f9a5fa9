package favorites

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ImAdityaa12/storex-backend/internal/common"
)

// Handler exposes saved-products HTTP endpoints. All routes require an
// authenticated user.
type Handler struct {
	Service *Service
}

type toggleRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "favorites service not configured", nil)
		return false
	}
	return true
}

// List handles GET /me/saved-products.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "authentication required", nil)
		return
	}
	items, err := h.Service.List(r.Context(), userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"items": items})
}

// Toggle handles POST /me/saved-products/toggle.
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "authentication required", nil)
		return
	}
	var req toggleRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	saved, err := h.Service.Toggle(r.Context(), userID, req.ProductID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]bool{"saved": saved})
}

// Check handles GET /me/saved-products/{productID}.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "authentication required", nil)
		return
	}
	saved, err := h.Service.IsSaved(r.Context(), userID, chi.URLParam(r, "productID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]bool{"saved": saved})
}
