package cart

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ImAdityaa12/storex-backend/internal/common"
)

// Handler exposes cart HTTP endpoints. All routes require an
// authenticated user.
type Handler struct {
	Service *Service
}

type addItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0"`
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "cart service not configured", nil)
		return false
	}
	return true
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "authentication required", nil)
		return "", false
	}
	return userID, true
}

// Get handles GET /me/cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	view, err := h.Service.Get(r.Context(), userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, view)
}

// AddItem handles POST /me/cart/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	view, err := h.Service.AddItem(r.Context(), userID, req.ProductID, req.Quantity)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, view)
}

// Increment handles POST /me/cart/items/{productID}/increment.
func (h *Handler) Increment(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	view, err := h.Service.Increment(r.Context(), userID, chi.URLParam(r, "productID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, view)
}

// Decrement handles POST /me/cart/items/{productID}/decrement.
func (h *Handler) Decrement(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	view, err := h.Service.Decrement(r.Context(), userID, chi.URLParam(r, "productID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, view)
}

// SetQuantity handles PUT /me/cart/items/{productID}.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req setQuantityRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	view, err := h.Service.SetQuantity(r.Context(), userID, chi.URLParam(r, "productID"), *req.Quantity)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, view)
}

// RemoveItem handles DELETE /me/cart/items/{productID}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	view, err := h.Service.RemoveItem(r.Context(), userID, chi.URLParam(r, "productID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, view)
}
