package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ImAdityaa12/storex-backend/internal/common"
	"github.com/ImAdityaa12/storex-backend/internal/obs"
	"github.com/ImAdityaa12/storex-backend/internal/pricing"
	"github.com/ImAdityaa12/storex-backend/internal/store"
)

type queryProvider interface {
	GetProductByID(ctx context.Context, id pgtype.UUID) (store.Product, error)
	ListDiscountTiers(ctx context.Context, productID pgtype.UUID) ([]store.DiscountTier, error)
	GetCartByUser(ctx context.Context, userID pgtype.UUID) (store.Cart, error)
	CreateCart(ctx context.Context, userID pgtype.UUID) (store.Cart, error)
	ListCartItems(ctx context.Context, cartID pgtype.UUID) ([]store.CartItem, error)
	GetCartItemByProduct(ctx context.Context, cartID, productID pgtype.UUID) (store.CartItem, error)
	CreateCartItem(ctx context.Context, arg store.CreateCartItemParams) (store.CartItem, error)
	UpdateCartItem(ctx context.Context, id pgtype.UUID, quantity int32, linePrice int64) (store.CartItem, error)
	DeleteCartItem(ctx context.Context, id pgtype.UUID) error
}

// Service owns the per-user cart. Each product appears as at most one
// line; the line price is always recomputed in full from the current tier
// ladder, never adjusted incrementally.
type Service struct {
	queries queryProvider
	taxBps  int
}

// ServiceConfig groups Service dependencies. TaxBps is the tax rate in
// basis points applied to the cart subtotal.
type ServiceConfig struct {
	Queries queryProvider
	TaxBps  int
}

// Line is one cart line joined with its product.
type Line struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	ImageURL  string `json:"image_url,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	LinePrice int64  `json:"line_price"`
}

// View is the full cart payload with totals.
type View struct {
	Items    []Line `json:"items"`
	Subtotal int64  `json:"subtotal"`
	Tax      int64  `json:"tax"`
	Total    int64  `json:"total"`
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("cart: queries provider is required")
	}
	if cfg.TaxBps < 0 {
		return nil, errors.New("cart: tax rate cannot be negative")
	}
	return &Service{queries: cfg.Queries, taxBps: cfg.TaxBps}, nil
}

// AddItem puts qty units of the product in the user's cart, merging into
// an existing line when the product is already there.
func (s *Service) AddItem(ctx context.Context, userID, productID string, qty int) (View, error) {
	if qty < 1 {
		return View{}, badRequest("quantity must be at least 1")
	}
	uid, err := store.ToUUID(userID)
	if err != nil {
		return View{}, fmt.Errorf("parse user id: %w", err)
	}
	product, tiers, err := s.loadProduct(ctx, productID)
	if err != nil {
		countMutation("add", "error")
		return View{}, err
	}
	cart, err := s.queries.CreateCart(ctx, uid)
	if err != nil {
		return View{}, fmt.Errorf("ensure cart: %w", err)
	}

	newQty := qty
	line, err := s.queries.GetCartItemByProduct(ctx, cart.ID, product.ID)
	switch {
	case err == nil:
		newQty = int(line.Quantity) + qty
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return View{}, fmt.Errorf("get cart line: %w", err)
	}

	if newQty > int(product.TotalStock) {
		countMutation("add", "out_of_stock")
		return View{}, outOfStock(product.Title)
	}

	linePrice := computeLinePrice(product, tiers, newQty)
	if line.ID.Valid {
		if _, err := s.queries.UpdateCartItem(ctx, line.ID, int32(newQty), linePrice); err != nil {
			return View{}, fmt.Errorf("update cart line: %w", err)
		}
	} else {
		if _, err := s.queries.CreateCartItem(ctx, store.CreateCartItemParams{
			CartID:    cart.ID,
			ProductID: product.ID,
			Quantity:  int32(newQty),
			LinePrice: linePrice,
		}); err != nil {
			return View{}, fmt.Errorf("create cart line: %w", err)
		}
	}
	countMutation("add", "ok")
	return s.view(ctx, cart.ID)
}

// Increment bumps the line's quantity by one.
func (s *Service) Increment(ctx context.Context, userID, productID string) (View, error) {
	return s.adjust(ctx, userID, productID, +1, "increment")
}

// Decrement lowers the line's quantity by one, removing the line when it
// reaches zero.
func (s *Service) Decrement(ctx context.Context, userID, productID string) (View, error) {
	return s.adjust(ctx, userID, productID, -1, "decrement")
}

// SetQuantity replaces the line's quantity. A quantity beyond stock
// leaves the line untouched; zero removes it.
func (s *Service) SetQuantity(ctx context.Context, userID, productID string, qty int) (View, error) {
	if qty < 0 {
		return View{}, badRequest("quantity cannot be negative")
	}
	cart, line, product, tiers, err := s.loadLine(ctx, userID, productID)
	if err != nil {
		countMutation("set_quantity", "error")
		return View{}, err
	}
	if qty == 0 {
		if err := s.queries.DeleteCartItem(ctx, line.ID); err != nil {
			return View{}, fmt.Errorf("delete cart line: %w", err)
		}
		countMutation("set_quantity", "ok")
		return s.view(ctx, cart.ID)
	}
	if qty > int(product.TotalStock) {
		countMutation("set_quantity", "out_of_stock")
		return View{}, outOfStock(product.Title)
	}
	linePrice := computeLinePrice(product, tiers, qty)
	if _, err := s.queries.UpdateCartItem(ctx, line.ID, int32(qty), linePrice); err != nil {
		return View{}, fmt.Errorf("update cart line: %w", err)
	}
	countMutation("set_quantity", "ok")
	return s.view(ctx, cart.ID)
}

// RemoveItem deletes the product's line from the cart.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (View, error) {
	cart, line, _, _, err := s.loadLine(ctx, userID, productID)
	if err != nil {
		countMutation("remove", "error")
		return View{}, err
	}
	if err := s.queries.DeleteCartItem(ctx, line.ID); err != nil {
		return View{}, fmt.Errorf("delete cart line: %w", err)
	}
	countMutation("remove", "ok")
	return s.view(ctx, cart.ID)
}

// Get returns the user's cart joined with product data. A user without a
// cart yet gets an empty view.
func (s *Service) Get(ctx context.Context, userID string) (View, error) {
	uid, err := store.ToUUID(userID)
	if err != nil {
		return View{}, fmt.Errorf("parse user id: %w", err)
	}
	cart, err := s.queries.GetCartByUser(ctx, uid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return View{Items: []Line{}}, nil
		}
		return View{}, fmt.Errorf("get cart: %w", err)
	}
	return s.view(ctx, cart.ID)
}

func (s *Service) adjust(ctx context.Context, userID, productID string, delta int, op string) (View, error) {
	cart, line, product, tiers, err := s.loadLine(ctx, userID, productID)
	if err != nil {
		countMutation(op, "error")
		return View{}, err
	}
	newQty := int(line.Quantity) + delta
	if newQty <= 0 {
		if err := s.queries.DeleteCartItem(ctx, line.ID); err != nil {
			return View{}, fmt.Errorf("delete cart line: %w", err)
		}
		countMutation(op, "ok")
		return s.view(ctx, cart.ID)
	}
	if newQty > int(product.TotalStock) {
		countMutation(op, "out_of_stock")
		return View{}, outOfStock(product.Title)
	}
	linePrice := computeLinePrice(product, tiers, newQty)
	if _, err := s.queries.UpdateCartItem(ctx, line.ID, int32(newQty), linePrice); err != nil {
		return View{}, fmt.Errorf("update cart line: %w", err)
	}
	countMutation(op, "ok")
	return s.view(ctx, cart.ID)
}

func (s *Service) loadProduct(ctx context.Context, productID string) (store.Product, []store.DiscountTier, error) {
	pid, err := store.ToUUID(productID)
	if err != nil {
		return store.Product{}, nil, productNotFound(err)
	}
	product, err := s.queries.GetProductByID(ctx, pid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Product{}, nil, productNotFound(err)
		}
		return store.Product{}, nil, fmt.Errorf("get product: %w", err)
	}
	tiers, err := s.queries.ListDiscountTiers(ctx, pid)
	if err != nil {
		return store.Product{}, nil, fmt.Errorf("list tiers: %w", err)
	}
	return product, tiers, nil
}

func (s *Service) loadLine(ctx context.Context, userID, productID string) (store.Cart, store.CartItem, store.Product, []store.DiscountTier, error) {
	uid, err := store.ToUUID(userID)
	if err != nil {
		return store.Cart{}, store.CartItem{}, store.Product{}, nil, fmt.Errorf("parse user id: %w", err)
	}
	product, tiers, err := s.loadProduct(ctx, productID)
	if err != nil {
		return store.Cart{}, store.CartItem{}, store.Product{}, nil, err
	}
	cart, err := s.queries.GetCartByUser(ctx, uid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Cart{}, store.CartItem{}, store.Product{}, nil, lineNotFound(err)
		}
		return store.Cart{}, store.CartItem{}, store.Product{}, nil, fmt.Errorf("get cart: %w", err)
	}
	line, err := s.queries.GetCartItemByProduct(ctx, cart.ID, product.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Cart{}, store.CartItem{}, store.Product{}, nil, lineNotFound(err)
		}
		return store.Cart{}, store.CartItem{}, store.Product{}, nil, fmt.Errorf("get cart line: %w", err)
	}
	return cart, line, product, tiers, nil
}

func (s *Service) view(ctx context.Context, cartID pgtype.UUID) (View, error) {
	rows, err := s.queries.ListCartItems(ctx, cartID)
	if err != nil {
		return View{}, fmt.Errorf("list cart lines: %w", err)
	}
	view := View{Items: make([]Line, 0, len(rows))}
	items := make([]pricing.Item, 0, len(rows))
	for _, row := range rows {
		product, err := s.queries.GetProductByID(ctx, row.ProductID)
		if err != nil {
			return View{}, fmt.Errorf("get product: %w", err)
		}
		view.Items = append(view.Items, Line{
			ProductID: store.UUIDString(row.ProductID),
			Title:     product.Title,
			ImageURL:  store.TextString(product.ImageURL),
			UnitPrice: effectiveUnitPrice(product),
			Quantity:  int(row.Quantity),
			LinePrice: row.LinePrice,
		})
		items = append(items, pricing.Item{Qty: int(row.Quantity), LinePrice: row.LinePrice})
	}
	summary := pricing.Compute(items, s.taxBps)
	view.Subtotal = summary.Subtotal
	view.Tax = summary.Tax
	view.Total = summary.Total
	return view, nil
}

func computeLinePrice(product store.Product, tiers []store.DiscountTier, qty int) int64 {
	ladder := make([]pricing.Tier, 0, len(tiers))
	for _, t := range tiers {
		ladder = append(ladder, pricing.Tier{MinQuantity: int(t.MinQuantity), BundlePrice: t.BundlePrice})
	}
	return pricing.BundlePrice(ladder, qty, effectiveUnitPrice(product))
}

func effectiveUnitPrice(product store.Product) int64 {
	if product.SalePrice.Valid {
		return product.SalePrice.Int64
	}
	return product.Price
}

func productNotFound(err error) *common.AppError {
	return &common.AppError{Code: "PRODUCT_NOT_FOUND", Message: "product not found", HTTPStatus: http.StatusNotFound, Err: err}
}

func lineNotFound(err error) *common.AppError {
	return &common.AppError{Code: "LINE_ITEM_NOT_FOUND", Message: "cart line item not found", HTTPStatus: http.StatusNotFound, Err: err}
}

func outOfStock(title string) *common.AppError {
	return &common.AppError{
		Code:       "OUT_OF_STOCK",
		Message:    "requested quantity exceeds available stock",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"product": title},
	}
}

func badRequest(message string) *common.AppError {
	return &common.AppError{Code: common.CodeValidation, Message: message, HTTPStatus: http.StatusBadRequest}
}

func countMutation(op, result string) {
	if obs.CartMutationsTotal != nil {
		obs.CartMutationsTotal.WithLabelValues(op, result).Inc()
	}
}
