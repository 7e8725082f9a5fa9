package favorites

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ImAdityaa12/storex-backend/internal/common"
	"github.com/ImAdityaa12/storex-backend/internal/store"
)

type queryProvider interface {
	GetProductByID(ctx context.Context, id pgtype.UUID) (store.Product, error)
	SaveProduct(ctx context.Context, userID, productID pgtype.UUID) error
	UnsaveProduct(ctx context.Context, userID, productID pgtype.UUID) (int64, error)
	IsProductSaved(ctx context.Context, userID, productID pgtype.UUID) (bool, error)
	ListSavedProducts(ctx context.Context, userID pgtype.UUID) ([]store.Product, error)
}

// Service manages each user's saved-products list.
type Service struct {
	queries queryProvider
}

// SavedProduct is the public shape of one saved catalog entry.
type SavedProduct struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Brand     string `json:"brand,omitempty"`
	Category  string `json:"category,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	Price     int64  `json:"price"`
	SalePrice *int64 `json:"sale_price,omitempty"`
}

// NewService constructs a Service instance.
func NewService(queries queryProvider) (*Service, error) {
	if queries == nil {
		return nil, errors.New("favorites: queries provider is required")
	}
	return &Service{queries: queries}, nil
}

// Toggle flips the saved state for the given product and reports the new
// state.
func (s *Service) Toggle(ctx context.Context, userID, productID string) (bool, error) {
	uid, err := store.ToUUID(userID)
	if err != nil {
		return false, fmt.Errorf("parse user id: %w", err)
	}
	pid, err := store.ToUUID(productID)
	if err != nil {
		return false, productNotFound(err)
	}
	if _, err := s.queries.GetProductByID(ctx, pid); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, productNotFound(err)
		}
		return false, fmt.Errorf("get product: %w", err)
	}
	saved, err := s.queries.IsProductSaved(ctx, uid, pid)
	if err != nil {
		return false, fmt.Errorf("check saved: %w", err)
	}
	if saved {
		if _, err := s.queries.UnsaveProduct(ctx, uid, pid); err != nil {
			return false, fmt.Errorf("unsave product: %w", err)
		}
		return false, nil
	}
	if err := s.queries.SaveProduct(ctx, uid, pid); err != nil {
		return false, fmt.Errorf("save product: %w", err)
	}
	return true, nil
}

// IsSaved reports whether the user has saved the product.
func (s *Service) IsSaved(ctx context.Context, userID, productID string) (bool, error) {
	uid, err := store.ToUUID(userID)
	if err != nil {
		return false, fmt.Errorf("parse user id: %w", err)
	}
	pid, err := store.ToUUID(productID)
	if err != nil {
		return false, productNotFound(err)
	}
	saved, err := s.queries.IsProductSaved(ctx, uid, pid)
	if err != nil {
		return false, fmt.Errorf("check saved: %w", err)
	}
	return saved, nil
}

// List returns the user's saved products, most recently saved first.
func (s *Service) List(ctx context.Context, userID string) ([]SavedProduct, error) {
	uid, err := store.ToUUID(userID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	rows, err := s.queries.ListSavedProducts(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("list saved products: %w", err)
	}
	out := make([]SavedProduct, 0, len(rows))
	for _, row := range rows {
		item := SavedProduct{
			ID:       store.UUIDString(row.ID),
			Title:    row.Title,
			Brand:    store.TextString(row.Brand),
			Category: store.TextString(row.Category),
			ImageURL: store.TextString(row.ImageURL),
			Price:    row.Price,
		}
		if row.SalePrice.Valid {
			sale := row.SalePrice.Int64
			item.SalePrice = &sale
		}
		out = append(out, item)
	}
	return out, nil
}

func productNotFound(err error) *common.AppError {
	return &common.AppError{Code: "PRODUCT_NOT_FOUND", Message: "product not found", HTTPStatus: http.StatusNotFound, Err: err}
}
