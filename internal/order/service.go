package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ImAdityaa12/storex-backend/internal/common"
	"github.com/ImAdityaa12/storex-backend/internal/events"
	"github.com/ImAdityaa12/storex-backend/internal/store"
)

type queryProvider interface {
	GetOrder(ctx context.Context, id pgtype.UUID) (store.Order, error)
	ListOrdersByUser(ctx context.Context, userID pgtype.UUID, limit, offset int32) ([]store.Order, error)
	CountOrdersByUser(ctx context.Context, userID pgtype.UUID) (int64, error)
	ListOrders(ctx context.Context, limit, offset int32) ([]store.Order, error)
	ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]store.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, id pgtype.UUID, status string) (store.Order, error)
}

// Item is one order line with the product fields frozen at checkout.
type Item struct {
	ProductID string `json:"product_id,omitempty"`
	Title     string `json:"title"`
	ImageURL  string `json:"image_url,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LinePrice int64  `json:"line_price"`
}

// Order is the public order payload.
type Order struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	PaymentMethod string          `json:"payment_method"`
	PaymentStatus string          `json:"payment_status"`
	Subtotal      int64           `json:"subtotal"`
	Tax           int64           `json:"tax"`
	Total         int64           `json:"total"`
	Address       json.RawMessage `json:"address,omitempty"`
	PlacedAt      time.Time       `json:"placed_at"`
	Items         []Item          `json:"items,omitempty"`
}

// Service reads order history and lets admins move an order through its
// lifecycle.
type Service struct {
	queries queryProvider
	events  *events.Bus
}

// NewService constructs a Service instance. The bus may be nil, in which
// case status changes are not announced.
func NewService(queries queryProvider, bus *events.Bus) (*Service, error) {
	if queries == nil {
		return nil, errors.New("order: queries provider is required")
	}
	return &Service{queries: queries, events: bus}, nil
}

var statusTopics = map[string]string{
	"confirmed": events.TopicOrderConfirmed,
	"shipped":   events.TopicOrderShipped,
	"delivered": events.TopicOrderDelivered,
	"cancelled": "",
}

// ListMine returns the user's orders, newest first.
func (s *Service) ListMine(ctx context.Context, userID string, page, perPage int) ([]Order, int64, error) {
	uid, err := store.ToUUID(userID)
	if err != nil {
		return nil, 0, fmt.Errorf("parse user id: %w", err)
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	total, err := s.queries.CountOrdersByUser(ctx, uid)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	rows, err := s.queries.ListOrdersByUser(ctx, uid, int32(perPage), int32((page-1)*perPage))
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	out := make([]Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, convertOrder(row, nil))
	}
	return out, total, nil
}

// GetMine returns one order with its lines, only for its owner.
func (s *Service) GetMine(ctx context.Context, userID, orderID string) (Order, error) {
	uid, err := store.ToUUID(userID)
	if err != nil {
		return Order{}, fmt.Errorf("parse user id: %w", err)
	}
	row, err := s.load(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if row.UserID != uid {
		return Order{}, orderNotFound(nil)
	}
	items, err := s.queries.ListOrderItems(ctx, row.ID)
	if err != nil {
		return Order{}, fmt.Errorf("list order lines: %w", err)
	}
	return convertOrder(row, items), nil
}

// ListAll returns the newest orders across all users. Admin only.
func (s *Service) ListAll(ctx context.Context, page, perPage int) ([]Order, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	rows, err := s.queries.ListOrders(ctx, int32(perPage), int32((page-1)*perPage))
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	out := make([]Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, convertOrder(row, nil))
	}
	return out, nil
}

// UpdateStatus moves an order to a new lifecycle status. Admin only.
func (s *Service) UpdateStatus(ctx context.Context, orderID, status string) (Order, error) {
	topic, known := statusTopics[status]
	if !known {
		return Order{}, &common.AppError{
			Code:       common.CodeValidation,
			Message:    "unknown order status",
			HTTPStatus: http.StatusBadRequest,
			Details:    map[string]any{"status": status},
		}
	}
	row, err := s.load(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	updated, err := s.queries.UpdateOrderStatus(ctx, row.ID, status)
	if err != nil {
		return Order{}, fmt.Errorf("update order status: %w", err)
	}
	if s.events != nil && topic != "" {
		payload := map[string]any{
			"order_id": store.UUIDString(updated.ID),
			"user_id":  store.UUIDString(updated.UserID),
			"status":   status,
		}
		// the status change already committed, notification is best effort
		_, _ = s.events.Emit(ctx, topic, store.UUIDString(updated.ID), payload)
	}
	return convertOrder(updated, nil), nil
}

func (s *Service) load(ctx context.Context, orderID string) (store.Order, error) {
	oid, err := store.ToUUID(orderID)
	if err != nil {
		return store.Order{}, orderNotFound(err)
	}
	row, err := s.queries.GetOrder(ctx, oid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Order{}, orderNotFound(err)
		}
		return store.Order{}, fmt.Errorf("get order: %w", err)
	}
	return row, nil
}

func convertOrder(row store.Order, items []store.OrderItem) Order {
	out := Order{
		ID:            store.UUIDString(row.ID),
		Status:        row.Status,
		PaymentMethod: row.PaymentMethod,
		PaymentStatus: row.PaymentStatus,
		Subtotal:      row.Subtotal,
		Tax:           row.Tax,
		Total:         row.Total,
		Address:       row.Address,
		PlacedAt:      store.TimestampTime(row.PlacedAt),
	}
	if len(items) > 0 {
		out.Items = make([]Item, 0, len(items))
		for _, it := range items {
			out.Items = append(out.Items, Item{
				ProductID: store.UUIDString(it.ProductID),
				Title:     it.Title,
				ImageURL:  store.TextString(it.ImageURL),
				Quantity:  int(it.Quantity),
				UnitPrice: it.UnitPrice,
				LinePrice: it.LinePrice,
			})
		}
	}
	return out
}

func orderNotFound(err error) *common.AppError {
	return &common.AppError{Code: "ORDER_NOT_FOUND", Message: "order not found", HTTPStatus: http.StatusNotFound, Err: err}
}
