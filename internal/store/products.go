package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

const productColumns = `id, title, description, brand, category, model, image_url, price, sale_price, total_stock, created_at, updated_at`

func scanProduct(row interface{ Scan(dest ...any) error }) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Brand, &p.Category, &p.Model, &p.ImageURL, &p.Price, &p.SalePrice, &p.TotalStock, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// CreateProductParams carries the fields for a new catalog product.
type CreateProductParams struct {
	Title       string
	Description pgtype.Text
	Brand       pgtype.Text
	Category    pgtype.Text
	Model       pgtype.Text
	ImageURL    pgtype.Text
	Price       int64
	SalePrice   pgtype.Int8
	TotalStock  int32
}

func (s *Store) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO products (title, description, brand, category, model, image_url, price, sale_price, total_stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+productColumns,
		arg.Title, arg.Description, arg.Brand, arg.Category, arg.Model, arg.ImageURL, arg.Price, arg.SalePrice, arg.TotalStock)
	return scanProduct(row)
}

// UpdateProductParams carries a full product replacement for an edit.
type UpdateProductParams struct {
	ID          pgtype.UUID
	Title       string
	Description pgtype.Text
	Brand       pgtype.Text
	Category    pgtype.Text
	Model       pgtype.Text
	ImageURL    pgtype.Text
	Price       int64
	SalePrice   pgtype.Int8
	TotalStock  int32
}

func (s *Store) UpdateProduct(ctx context.Context, arg UpdateProductParams) (Product, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE products
		SET title = $2, description = $3, brand = $4, category = $5, model = $6,
		    image_url = $7, price = $8, sale_price = $9, total_stock = $10,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		arg.ID, arg.Title, arg.Description, arg.Brand, arg.Category, arg.Model, arg.ImageURL, arg.Price, arg.SalePrice, arg.TotalStock)
	return scanProduct(row)
}

func (s *Store) DeleteProduct(ctx context.Context, id pgtype.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	return err
}

func (s *Store) GetProductByID(ctx context.Context, id pgtype.UUID) (Product, error) {
	row := s.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

// ListProductsParams filters and orders the catalog listing.
type ListProductsParams struct {
	Categories []string
	Brands     []string
	Search     string
	Sort       string
	Limit      int32
	Offset     int32
}

func productFilterSQL(arg ListProductsParams, args *[]any) string {
	var where []string
	if len(arg.Categories) > 0 {
		*args = append(*args, arg.Categories)
		where = append(where, fmt.Sprintf("category = ANY($%d)", len(*args)))
	}
	if len(arg.Brands) > 0 {
		*args = append(*args, arg.Brands)
		where = append(where, fmt.Sprintf("brand = ANY($%d)", len(*args)))
	}
	if strings.TrimSpace(arg.Search) != "" {
		*args = append(*args, "%"+strings.TrimSpace(arg.Search)+"%")
		n := len(*args)
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR brand ILIKE $%d OR category ILIKE $%d OR description ILIKE $%d)", n, n, n, n))
	}
	if len(where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(where, " AND ")
}

func productOrderSQL(sort string) string {
	switch sort {
	case "price-lowtohigh":
		return " ORDER BY COALESCE(sale_price, price) ASC"
	case "price-hightolow":
		return " ORDER BY COALESCE(sale_price, price) DESC"
	case "title-atoz":
		return " ORDER BY title ASC"
	case "title-ztoa":
		return " ORDER BY title DESC"
	default:
		return " ORDER BY created_at DESC"
	}
}

func (s *Store) ListProducts(ctx context.Context, arg ListProductsParams) ([]Product, error) {
	args := []any{}
	query := `SELECT ` + productColumns + ` FROM products` + productFilterSQL(arg, &args) + productOrderSQL(arg.Sort)
	args = append(args, arg.Limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	args = append(args, arg.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CountProducts(ctx context.Context, arg ListProductsParams) (int64, error) {
	args := []any{}
	query := `SELECT count(*) FROM products` + productFilterSQL(arg, &args)
	var total int64
	err := s.db.QueryRow(ctx, query, args...).Scan(&total)
	return total, err
}

func (s *Store) ListDiscountTiers(ctx context.Context, productID pgtype.UUID) ([]DiscountTier, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, product_id, min_quantity, bundle_price
		FROM discount_tiers
		WHERE product_id = $1
		ORDER BY min_quantity ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DiscountTier
	for rows.Next() {
		var t DiscountTier
		if err := rows.Scan(&t.ID, &t.ProductID, &t.MinQuantity, &t.BundlePrice); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ReplaceTierParams is one tier row in a full ladder replacement.
type ReplaceTierParams struct {
	MinQuantity int32
	BundlePrice int64
}

// ReplaceDiscountTiers swaps the whole tier ladder of a product. Run it
// inside a transaction together with the product update.
func (s *Store) ReplaceDiscountTiers(ctx context.Context, productID pgtype.UUID, tiers []ReplaceTierParams) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM discount_tiers WHERE product_id = $1`, productID); err != nil {
		return err
	}
	for _, t := range tiers {
		if _, err := s.db.Exec(ctx, `
			INSERT INTO discount_tiers (product_id, min_quantity, bundle_price)
			VALUES ($1, $2, $3)`, productID, t.MinQuantity, t.BundlePrice); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SaveProduct(ctx context.Context, userID, productID pgtype.UUID) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO saved_products (user_id, product_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, userID, productID)
	return err
}

func (s *Store) UnsaveProduct(ctx context.Context, userID, productID pgtype.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM saved_products WHERE user_id = $1 AND product_id = $2`, userID, productID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) IsProductSaved(ctx context.Context, userID, productID pgtype.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM saved_products WHERE user_id = $1 AND product_id = $2)`,
		userID, productID).Scan(&exists)
	return exists, err
}

func (s *Store) ListSavedProducts(ctx context.Context, userID pgtype.UUID) ([]Product, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+prefixedProductColumns("p")+`
		FROM saved_products sp
		JOIN products p ON p.id = sp.product_id
		WHERE sp.user_id = $1
		ORDER BY sp.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func prefixedProductColumns(alias string) string {
	cols := strings.Split(productColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}
