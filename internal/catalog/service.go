package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ImAdityaa12/storex-backend/internal/common"
	"github.com/ImAdityaa12/storex-backend/internal/pricing"
	"github.com/ImAdityaa12/storex-backend/internal/store"
)

type queryProvider interface {
	GetProductByID(ctx context.Context, id pgtype.UUID) (store.Product, error)
	ListProducts(ctx context.Context, arg store.ListProductsParams) ([]store.Product, error)
	CountProducts(ctx context.Context, arg store.ListProductsParams) (int64, error)
	ListDiscountTiers(ctx context.Context, productID pgtype.UUID) ([]store.DiscountTier, error)
	CreateProduct(ctx context.Context, arg store.CreateProductParams) (store.Product, error)
	UpdateProduct(ctx context.Context, arg store.UpdateProductParams) (store.Product, error)
	DeleteProduct(ctx context.Context, id pgtype.UUID) error
	ReplaceDiscountTiers(ctx context.Context, productID pgtype.UUID, tiers []store.ReplaceTierParams) error
}

// Service orchestrates catalog queries, DTO assembly, and caching.
type Service struct {
	queries      queryProvider
	cache        *Cache
	defaultPage  int
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Queries      queryProvider
	Cache        *Cache
	DefaultPage  int
	DefaultLimit int
	MaxLimit     int
}

// ListParams captures filters for product listing.
type ListParams struct {
	Query      string
	Categories []string
	Brands     []string
	Sort       string
	Page       int
	Limit      int
}

// Tier is the public shape of one discount rung.
type Tier struct {
	MinQuantity int   `json:"min_quantity"`
	BundlePrice int64 `json:"bundle_price"`
}

// Product is the public product payload. SalePrice, when present, is the
// per-piece price actually charged.
type Product struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Brand       string `json:"brand,omitempty"`
	Category    string `json:"category,omitempty"`
	Model       string `json:"model,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Price       int64  `json:"price"`
	SalePrice   *int64 `json:"sale_price,omitempty"`
	TotalStock  int    `json:"total_stock"`
	Tiers       []Tier `json:"quantity_tiers"`
}

// ProductListResult contains list data and pagination metadata.
type ProductListResult struct {
	Items []Product
	Total int64
	Page  int
	Limit int
}

// ProductInput is the admin payload for creating or replacing a product.
type ProductInput struct {
	Title       string
	Description string
	Brand       string
	Category    string
	Model       string
	ImageURL    string
	Price       int64
	SalePrice   *int64
	TotalStock  int
	Tiers       []Tier
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("catalog: queries provider is required")
	}
	defaultPage := cfg.DefaultPage
	if defaultPage < 1 {
		defaultPage = 1
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{
		queries:      cfg.Queries,
		cache:        cfg.Cache,
		defaultPage:  defaultPage,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}, nil
}

// ParseListParams normalises raw query values into strongly typed filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{
		Page:  s.defaultPage,
		Limit: s.defaultLimit,
	}
	params.Query = strings.TrimSpace(values.Get("q"))
	params.Categories = splitCSV(values.Get("category"))
	params.Brands = splitCSV(values.Get("brand"))

	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, badRequest("page", "page must be a positive integer", err)
		}
		params.Page = page
	}

	limit := s.defaultLimit
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 {
			return params, badRequest("limit", "limit must be a positive integer", err)
		}
		limit = l
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	params.Limit = limit

	params.Sort = normalizeSort(values.Get("sortBy"))
	return params, nil
}

// ListProducts returns the filtered product list with pagination metadata.
func (s *Service) ListProducts(ctx context.Context, params ListParams) (ProductListResult, error) {
	key, cacheable := s.listCacheKey(params)
	if cacheable {
		var cached cachedList
		ok, err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil && ok {
			return ProductListResult{Items: cached.Items, Total: cached.Total, Page: params.Page, Limit: params.Limit}, nil
		}
	}

	storeParams := store.ListProductsParams{
		Categories: params.Categories,
		Brands:     params.Brands,
		Search:     params.Query,
		Sort:       params.Sort,
		Limit:      int32(params.Limit),
		Offset:     int32((params.Page - 1) * params.Limit),
	}
	total, err := s.queries.CountProducts(ctx, storeParams)
	if err != nil {
		return ProductListResult{}, fmt.Errorf("count products: %w", err)
	}
	rows, err := s.queries.ListProducts(ctx, storeParams)
	if err != nil {
		return ProductListResult{}, fmt.Errorf("list products: %w", err)
	}
	items := make([]Product, 0, len(rows))
	for _, row := range rows {
		items = append(items, convertProduct(row, nil))
	}
	result := ProductListResult{Items: items, Total: total, Page: params.Page, Limit: params.Limit}
	if cacheable {
		_ = s.cache.SetJSON(ctx, key, cachedList{Items: items, Total: total})
	}
	return result, nil
}

// GetProduct returns one product with its full tier ladder.
func (s *Service) GetProduct(ctx context.Context, id string) (Product, error) {
	uid, err := store.ToUUID(strings.TrimSpace(id))
	if err != nil {
		return Product{}, notFound(err)
	}
	cacheKey := detailCacheKey(id)
	if s.cache != nil {
		var cached Product
		ok, err := s.cache.GetJSON(ctx, cacheKey, &cached)
		if err == nil && ok {
			return cached, nil
		}
	}
	row, err := s.queries.GetProductByID(ctx, uid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, notFound(err)
		}
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	tiers, err := s.queries.ListDiscountTiers(ctx, uid)
	if err != nil {
		return Product{}, fmt.Errorf("list tiers: %w", err)
	}
	detail := convertProduct(row, tiers)
	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, cacheKey, detail)
	}
	return detail, nil
}

// QuoteQuantity prices a prospective quantity against the tier ladder
// without touching any cart.
func (s *Service) QuoteQuantity(ctx context.Context, id string, qty int) (pricing.Money, error) {
	if qty < 1 {
		return 0, badRequest("quantity", "quantity must be at least 1", nil)
	}
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return 0, err
	}
	unit := product.Price
	if product.SalePrice != nil {
		unit = *product.SalePrice
	}
	return pricing.BundlePrice(toPricingTiers(product.Tiers), qty, unit), nil
}

// CreateProduct adds a catalog entry with its tier ladder. Admin only.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	if err := validateProductInput(input); err != nil {
		return Product{}, err
	}
	row, err := s.queries.CreateProduct(ctx, store.CreateProductParams{
		Title:       strings.TrimSpace(input.Title),
		Description: store.ToText(strings.TrimSpace(input.Description)),
		Brand:       store.ToText(strings.TrimSpace(input.Brand)),
		Category:    store.ToText(strings.TrimSpace(input.Category)),
		Model:       store.ToText(strings.TrimSpace(input.Model)),
		ImageURL:    store.ToText(strings.TrimSpace(input.ImageURL)),
		Price:       input.Price,
		SalePrice:   store.ToInt8(input.SalePrice),
		TotalStock:  int32(input.TotalStock),
	})
	if err != nil {
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	if err := s.queries.ReplaceDiscountTiers(ctx, row.ID, toStoreTiers(input.Tiers)); err != nil {
		return Product{}, fmt.Errorf("store tiers: %w", err)
	}
	s.invalidate(ctx, store.UUIDString(row.ID))
	return s.GetProduct(ctx, store.UUIDString(row.ID))
}

// UpdateProduct replaces a product and its tier ladder. Admin only.
func (s *Service) UpdateProduct(ctx context.Context, id string, input ProductInput) (Product, error) {
	uid, err := store.ToUUID(strings.TrimSpace(id))
	if err != nil {
		return Product{}, notFound(err)
	}
	if err := validateProductInput(input); err != nil {
		return Product{}, err
	}
	row, err := s.queries.UpdateProduct(ctx, store.UpdateProductParams{
		ID:          uid,
		Title:       strings.TrimSpace(input.Title),
		Description: store.ToText(strings.TrimSpace(input.Description)),
		Brand:       store.ToText(strings.TrimSpace(input.Brand)),
		Category:    store.ToText(strings.TrimSpace(input.Category)),
		Model:       store.ToText(strings.TrimSpace(input.Model)),
		ImageURL:    store.ToText(strings.TrimSpace(input.ImageURL)),
		Price:       input.Price,
		SalePrice:   store.ToInt8(input.SalePrice),
		TotalStock:  int32(input.TotalStock),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, notFound(err)
		}
		return Product{}, fmt.Errorf("update product: %w", err)
	}
	if err := s.queries.ReplaceDiscountTiers(ctx, row.ID, toStoreTiers(input.Tiers)); err != nil {
		return Product{}, fmt.Errorf("store tiers: %w", err)
	}
	s.invalidate(ctx, id)
	return s.GetProduct(ctx, id)
}

// DeleteProduct removes a catalog entry. Admin only.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	uid, err := store.ToUUID(strings.TrimSpace(id))
	if err != nil {
		return notFound(err)
	}
	if _, err := s.queries.GetProductByID(ctx, uid); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound(err)
		}
		return fmt.Errorf("get product: %w", err)
	}
	if err := s.queries.DeleteProduct(ctx, uid); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, detailCacheKey(id), listCacheKeyDefault)
}

func validateProductInput(input ProductInput) error {
	if strings.TrimSpace(input.Title) == "" {
		return badRequest("title", "title is required", nil)
	}
	if input.Price < 0 {
		return badRequest("price", "price cannot be negative", nil)
	}
	if input.SalePrice != nil && *input.SalePrice < 0 {
		return badRequest("sale_price", "sale_price cannot be negative", nil)
	}
	if input.TotalStock < 0 {
		return badRequest("total_stock", "total_stock cannot be negative", nil)
	}
	for _, t := range input.Tiers {
		if t.MinQuantity < 1 {
			return badRequest("quantity_tiers", "tier min_quantity must be at least 1", nil)
		}
		if t.BundlePrice < 0 {
			return badRequest("quantity_tiers", "tier bundle_price cannot be negative", nil)
		}
	}
	return nil
}

type cachedList struct {
	Items []Product `json:"items"`
	Total int64     `json:"total"`
}

const listCacheKeyDefault = "catalog:products:list:default"

func (s *Service) listCacheKey(params ListParams) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	if params.Page != s.defaultPage || params.Limit != s.defaultLimit {
		return "", false
	}
	if params.Query != "" || len(params.Categories) > 0 || len(params.Brands) > 0 || params.Sort != "" {
		return "", false
	}
	return listCacheKeyDefault, true
}

func detailCacheKey(id string) string {
	return "catalog:products:detail:" + id
}

func convertProduct(row store.Product, tiers []store.DiscountTier) Product {
	p := Product{
		ID:          store.UUIDString(row.ID),
		Title:       row.Title,
		Description: store.TextString(row.Description),
		Brand:       store.TextString(row.Brand),
		Category:    store.TextString(row.Category),
		Model:       store.TextString(row.Model),
		ImageURL:    store.TextString(row.ImageURL),
		Price:       row.Price,
		TotalStock:  int(row.TotalStock),
		Tiers:       make([]Tier, 0, len(tiers)),
	}
	if row.SalePrice.Valid {
		sale := row.SalePrice.Int64
		p.SalePrice = &sale
	}
	for _, t := range tiers {
		p.Tiers = append(p.Tiers, Tier{MinQuantity: int(t.MinQuantity), BundlePrice: t.BundlePrice})
	}
	return p
}

func toStoreTiers(tiers []Tier) []store.ReplaceTierParams {
	out := make([]store.ReplaceTierParams, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, store.ReplaceTierParams{MinQuantity: int32(t.MinQuantity), BundlePrice: t.BundlePrice})
	}
	return out
}

func toPricingTiers(tiers []Tier) []pricing.Tier {
	out := make([]pricing.Tier, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, pricing.Tier{MinQuantity: t.MinQuantity, BundlePrice: t.BundlePrice})
	}
	return out
}

func splitCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeSort(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "price-lowtohigh", "price-hightolow", "title-atoz", "title-ztoa":
		return s
	default:
		return ""
	}
}

func notFound(err error) *common.AppError {
	return &common.AppError{Code: "PRODUCT_NOT_FOUND", Message: "product not found", HTTPStatus: http.StatusNotFound, Err: err}
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       common.CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details: map[string]any{
			"field": field,
		},
	}
}
