package address

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ImAdityaa12/storex-backend/internal/common"
)

// Handler exposes the address book endpoints. All routes require an
// authenticated user.
type Handler struct {
	Service *Service
}

type addressRequest struct {
	Address string `json:"address" validate:"required,min=1,max=500"`
	City    string `json:"city" validate:"required,min=1,max=100"`
	Pincode string `json:"pincode" validate:"required,min=3,max=12"`
	Phone   string `json:"phone" validate:"required,min=6,max=20"`
	Notes   string `json:"notes" validate:"max=500"`
}

func (r addressRequest) toInput() Input {
	return Input{
		Address: r.Address,
		City:    r.City,
		Pincode: r.Pincode,
		Phone:   r.Phone,
		Notes:   r.Notes,
	}
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "address service not configured", nil)
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

// List handles GET /me/addresses.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	items, total, err := h.Service.List(r.Context(), userID, page, perPage)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"items": items,
		"pagination": common.Pagination{
			Page:       page,
			PerPage:    perPage,
			TotalItems: int(total),
		},
	})
}

// Get handles GET /me/addresses/{addressID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	out, err := h.Service.Get(r.Context(), userID, chi.URLParam(r, "addressID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, out)
}

// Create handles POST /me/addresses.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req addressRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.Service.Create(r.Context(), userID, req.toInput())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, out)
}

// Update handles PUT /me/addresses/{addressID}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req addressRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.Service.Update(r.Context(), userID, chi.URLParam(r, "addressID"), req.toInput())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, out)
}

// Delete handles DELETE /me/addresses/{addressID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	if err := h.Service.Delete(r.Context(), userID, chi.URLParam(r, "addressID")); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
