package checkout

import (
	"net/http"

	"github.com/ImAdityaa12/storex-backend/internal/common"
)

// Handler exposes the checkout endpoint.
type Handler struct {
	Service *Service
}

type createRequest struct {
	AddressID string `json:"address_id" validate:"required,uuid"`
}

// Create handles POST /me/checkout.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "checkout service not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "authentication required", nil)
		return
	}
	var req createRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.Service.Create(r.Context(), userID, req.AddressID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, out)
}
