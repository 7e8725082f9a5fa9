package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, user_id, status, payment_method, payment_status, subtotal, tax, total, address, placed_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.PaymentMethod, &o.PaymentStatus, &o.Subtotal, &o.Tax, &o.Total, &o.Address, &o.PlacedAt)
	return o, err
}

// CreateOrderParams snapshots the totals and shipping address at checkout.
type CreateOrderParams struct {
	UserID        pgtype.UUID
	Status        string
	PaymentMethod string
	PaymentStatus string
	Subtotal      int64
	Tax           int64
	Total         int64
	Address       []byte
}

func (s *Store) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO orders (user_id, status, payment_method, payment_status, subtotal, tax, total, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+orderColumns,
		arg.UserID, arg.Status, arg.PaymentMethod, arg.PaymentStatus, arg.Subtotal, arg.Tax, arg.Total, arg.Address)
	return scanOrder(row)
}

// CreateOrderItemParams denormalises the product into the order line.
type CreateOrderItemParams struct {
	OrderID   pgtype.UUID
	ProductID pgtype.UUID
	Title     string
	ImageURL  pgtype.Text
	Quantity  int32
	UnitPrice int64
	LinePrice int64
}

func (s *Store) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	var it OrderItem
	err := s.db.QueryRow(ctx, `
		INSERT INTO order_items (order_id, product_id, title, image_url, quantity, unit_price, line_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, order_id, product_id, title, image_url, quantity, unit_price, line_price`,
		arg.OrderID, arg.ProductID, arg.Title, arg.ImageURL, arg.Quantity, arg.UnitPrice, arg.LinePrice).
		Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Title, &it.ImageURL, &it.Quantity, &it.UnitPrice, &it.LinePrice)
	return it, err
}

func (s *Store) GetOrder(ctx context.Context, id pgtype.UUID) (Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID pgtype.UUID, limit, offset int32) ([]Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1
		ORDER BY placed_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) CountOrdersByUser(ctx context.Context, userID pgtype.UUID) (int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM orders WHERE user_id = $1`, userID).Scan(&total)
	return total, err
}

// ListOrders returns the newest orders across all users, for admin review.
func (s *Store) ListOrders(ctx context.Context, limit, offset int32) ([]Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders ORDER BY placed_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]OrderItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, product_id, title, image_url, quantity, unit_price, line_price
		FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Title, &it.ImageURL, &it.Quantity, &it.UnitPrice, &it.LinePrice); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id pgtype.UUID, status string) (Order, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE orders SET status = $2 WHERE id = $1 RETURNING `+orderColumns, id, status)
	return scanOrder(row)
}
