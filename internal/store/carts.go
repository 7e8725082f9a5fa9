package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const cartItemColumns = `id, cart_id, product_id, quantity, line_price, created_at, updated_at`

func scanCartItem(row interface{ Scan(dest ...any) error }) (CartItem, error) {
	var it CartItem
	err := row.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.LinePrice, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

func (s *Store) GetCartByUser(ctx context.Context, userID pgtype.UUID) (Cart, error) {
	var c Cart
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1`, userID).
		Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// CreateCart makes the per-user cart, reusing an existing one on conflict.
func (s *Store) CreateCart(ctx context.Context, userID pgtype.UUID) (Cart, error) {
	var c Cart
	err := s.db.QueryRow(ctx, `
		INSERT INTO carts (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = now()
		RETURNING id, user_id, created_at, updated_at`, userID).
		Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) ListCartItems(ctx context.Context, cartID pgtype.UUID) ([]CartItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+cartItemColumns+` FROM cart_items WHERE cart_id = $1 ORDER BY created_at ASC`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CartItem
	for rows.Next() {
		it, err := scanCartItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) GetCartItemByProduct(ctx context.Context, cartID, productID pgtype.UUID) (CartItem, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+cartItemColumns+` FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cartID, productID)
	return scanCartItem(row)
}

// CreateCartItemParams inserts one line with its already computed price.
type CreateCartItemParams struct {
	CartID    pgtype.UUID
	ProductID pgtype.UUID
	Quantity  int32
	LinePrice int64
}

func (s *Store) CreateCartItem(ctx context.Context, arg CreateCartItemParams) (CartItem, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity, line_price)
		VALUES ($1, $2, $3, $4)
		RETURNING `+cartItemColumns,
		arg.CartID, arg.ProductID, arg.Quantity, arg.LinePrice)
	return scanCartItem(row)
}

func (s *Store) UpdateCartItem(ctx context.Context, id pgtype.UUID, quantity int32, linePrice int64) (CartItem, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE cart_items
		SET quantity = $2, line_price = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+cartItemColumns, id, quantity, linePrice)
	return scanCartItem(row)
}

func (s *Store) DeleteCartItem(ctx context.Context, id pgtype.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM cart_items WHERE id = $1`, id)
	return err
}

func (s *Store) DeleteCart(ctx context.Context, id pgtype.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM carts WHERE id = $1`, id)
	return err
}
