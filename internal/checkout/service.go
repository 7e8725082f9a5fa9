package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ImAdityaa12/storex-backend/internal/common"
	"github.com/ImAdityaa12/storex-backend/internal/events"
	"github.com/ImAdityaa12/storex-backend/internal/lock"
	"github.com/ImAdityaa12/storex-backend/internal/obs"
	"github.com/ImAdityaa12/storex-backend/internal/pricing"
	"github.com/ImAdityaa12/storex-backend/internal/store"
)

// The order is paid from account credit at placement time, so it lands
// confirmed and paid in one step. Stock is intentionally not decremented.
const (
	statusConfirmed = "confirmed"
	methodCredit    = "credit"
	statusPaid      = "paid"
)

// AddressSnapshot is the shipping address frozen into the order.
type AddressSnapshot struct {
	Address string `json:"address"`
	City    string `json:"city"`
	Pincode string `json:"pincode"`
	Phone   string `json:"phone"`
	Notes   string `json:"notes,omitempty"`
}

// Output is the checkout result.
type Output struct {
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
	Total         int64  `json:"total"`
}

// Service turns a cart into an order inside one transaction.
type Service struct {
	Pool    *pgxpool.Pool
	Queries *store.Store
	TaxBps  int
	Events  *events.Bus
	Locker  lock.Locker
	LockTTL time.Duration
}

// Create places an order from the user's current cart, using the stored
// address identified by addressID. The cart is deleted once the order is
// committed. A per-user lock keeps concurrent checkouts from snapshotting
// the same cart twice.
func (s *Service) Create(ctx context.Context, userID, addressID string) (Output, error) {
	if s == nil || s.Pool == nil || s.Queries == nil {
		return Output{}, errors.New("checkout service not configured")
	}
	uid, err := store.ToUUID(userID)
	if err != nil {
		return Output{}, fmt.Errorf("parse user id: %w", err)
	}
	aid, err := store.ToUUID(addressID)
	if err != nil {
		return Output{}, addressNotFound(err)
	}

	var out Output
	run := func(ctx context.Context) error {
		out, err = s.place(ctx, uid, aid)
		return err
	}
	if s.Locker.R != nil {
		ttl := s.LockTTL
		if ttl <= 0 {
			ttl = 10 * time.Second
		}
		err = s.Locker.WithLock(ctx, "checkout:"+userID, ttl, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		countPlaced("error")
		return Output{}, err
	}
	countPlaced("ok")
	return out, nil
}

func (s *Service) place(ctx context.Context, uid, aid pgtype.UUID) (Output, error) {
	address, err := s.Queries.GetAddress(ctx, aid, uid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Output{}, addressNotFound(err)
		}
		return Output{}, fmt.Errorf("get address: %w", err)
	}

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Output{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	qtx := s.Queries.WithTx(tx)

	cartRow, err := qtx.GetCartByUser(ctx, uid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Output{}, emptyCart(err)
		}
		return Output{}, fmt.Errorf("get cart: %w", err)
	}
	lines, err := qtx.ListCartItems(ctx, cartRow.ID)
	if err != nil {
		return Output{}, fmt.Errorf("list cart lines: %w", err)
	}
	if len(lines) == 0 {
		return Output{}, emptyCart(nil)
	}

	items := make([]pricing.Item, 0, len(lines))
	for _, line := range lines {
		items = append(items, pricing.Item{Qty: int(line.Quantity), LinePrice: line.LinePrice})
	}
	summary := pricing.Compute(items, s.TaxBps)

	snapshot, err := json.Marshal(AddressSnapshot{
		Address: address.Address,
		City:    address.City,
		Pincode: address.Pincode,
		Phone:   address.Phone,
		Notes:   store.TextString(address.Notes),
	})
	if err != nil {
		return Output{}, fmt.Errorf("marshal address: %w", err)
	}

	order, err := qtx.CreateOrder(ctx, store.CreateOrderParams{
		UserID:        uid,
		Status:        statusConfirmed,
		PaymentMethod: methodCredit,
		PaymentStatus: statusPaid,
		Subtotal:      summary.Subtotal,
		Tax:           summary.Tax,
		Total:         summary.Total,
		Address:       snapshot,
	})
	if err != nil {
		return Output{}, fmt.Errorf("create order: %w", err)
	}
	for _, line := range lines {
		product, err := qtx.GetProductByID(ctx, line.ProductID)
		if err != nil {
			return Output{}, fmt.Errorf("get product: %w", err)
		}
		unitPrice := product.Price
		if product.SalePrice.Valid {
			unitPrice = product.SalePrice.Int64
		}
		if _, err := qtx.CreateOrderItem(ctx, store.CreateOrderItemParams{
			OrderID:   order.ID,
			ProductID: line.ProductID,
			Title:     product.Title,
			ImageURL:  product.ImageURL,
			Quantity:  line.Quantity,
			UnitPrice: unitPrice,
			LinePrice: line.LinePrice,
		}); err != nil {
			return Output{}, fmt.Errorf("create order line: %w", err)
		}
	}
	if err := qtx.DeleteCart(ctx, cartRow.ID); err != nil {
		return Output{}, fmt.Errorf("delete cart: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Output{}, err
	}

	if s.Events != nil {
		payload := map[string]any{
			"order_id": store.UUIDString(order.ID),
			"user_id":  store.UUIDString(uid),
			"total":    summary.Total,
		}
		if user, err := s.Queries.GetUserByID(ctx, uid); err == nil && user.Email != "" {
			payload["email"] = user.Email
		}
		_, _ = s.Events.Emit(ctx, events.TopicOrderCreated, store.UUIDString(order.ID), payload)
	}

	return Output{
		OrderID:       store.UUIDString(order.ID),
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
		Total:         order.Total,
	}, nil
}

func addressNotFound(err error) *common.AppError {
	return &common.AppError{Code: "ADDRESS_NOT_FOUND", Message: "address not found", HTTPStatus: http.StatusNotFound, Err: err}
}

func emptyCart(err error) *common.AppError {
	return &common.AppError{Code: "CART_EMPTY", Message: "cart is empty", HTTPStatus: http.StatusConflict, Err: err}
}

func countPlaced(result string) {
	if obs.OrdersPlacedTotal != nil {
		obs.OrdersPlacedTotal.WithLabelValues(result).Inc()
	}
}
