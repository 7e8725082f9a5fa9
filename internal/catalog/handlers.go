package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ImAdityaa12/storex-backend/internal/common"
)

// Handler exposes catalog HTTP endpoints.
type Handler struct {
	Service *Service
}

type tierRequest struct {
	MinQuantity int   `json:"min_quantity" validate:"required,min=1"`
	BundlePrice int64 `json:"bundle_price" validate:"min=0"`
}

type productRequest struct {
	Title       string        `json:"title" validate:"required,min=1,max=200"`
	Description string        `json:"description" validate:"max=5000"`
	Brand       string        `json:"brand" validate:"max=100"`
	Category    string        `json:"category" validate:"max=100"`
	Model       string        `json:"model" validate:"max=100"`
	ImageURL    string        `json:"image_url" validate:"omitempty,url"`
	Price       int64         `json:"price" validate:"min=0"`
	SalePrice   *int64        `json:"sale_price" validate:"omitempty,min=0"`
	TotalStock  int           `json:"total_stock" validate:"min=0"`
	Tiers       []tierRequest `json:"quantity_tiers" validate:"dive"`
}

func (r productRequest) toInput() ProductInput {
	input := ProductInput{
		Title:       r.Title,
		Description: r.Description,
		Brand:       r.Brand,
		Category:    r.Category,
		Model:       r.Model,
		ImageURL:    r.ImageURL,
		Price:       r.Price,
		SalePrice:   r.SalePrice,
		TotalStock:  r.TotalStock,
		Tiers:       make([]Tier, 0, len(r.Tiers)),
	}
	for _, t := range r.Tiers {
		input.Tiers = append(input.Tiers, Tier{MinQuantity: t.MinQuantity, BundlePrice: t.BundlePrice})
	}
	return input
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "catalog service not configured", nil)
		return false
	}
	return true
}

// Products handles GET /products.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	params, err := h.Service.ParseListParams(r.URL.Query())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	result, err := h.Service.ListProducts(r.Context(), params)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"items": result.Items,
		"pagination": common.Pagination{
			Page:       result.Page,
			PerPage:    result.Limit,
			TotalItems: int(result.Total),
		},
	})
}

// ProductDetail handles GET /products/{productID}.
func (h *Handler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	product, err := h.Service.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, product)
}

// QuoteQuantity handles GET /products/{productID}/quote.
func (h *Handler) QuoteQuantity(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	qty := common.AtoiDefault(r.URL.Query().Get("quantity"), 0)
	total, err := h.Service.QuoteQuantity(r.Context(), chi.URLParam(r, "productID"), qty)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"quantity": qty,
		"total":    total,
	})
}

// CreateProduct handles POST /admin/products.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req productRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	product, err := h.Service.CreateProduct(r.Context(), req.toInput())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, product)
}

// UpdateProduct handles PUT /admin/products/{productID}.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req productRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	product, err := h.Service.UpdateProduct(r.Context(), chi.URLParam(r, "productID"), req.toInput())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, product)
}

// DeleteProduct handles DELETE /admin/products/{productID}.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	if err := h.Service.DeleteProduct(r.Context(), chi.URLParam(r, "productID")); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
