package store

import "github.com/jackc/pgx/v5/pgtype"

// User is a row in the users table.
type User struct {
	ID           pgtype.UUID
	Name         string
	Username     string
	Email        string
	Phone        pgtype.Text
	ImageURL     pgtype.Text
	PasswordHash string
	Role         string
	CreatedAt    pgtype.Timestamptz
	UpdatedAt    pgtype.Timestamptz
}

// Product is a row in the products table.
type Product struct {
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
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}

// DiscountTier is a row in the discount_tiers table.
type DiscountTier struct {
	ID          pgtype.UUID
	ProductID   pgtype.UUID
	MinQuantity int32
	BundlePrice int64
}

// Cart is a row in the carts table. Each user owns at most one.
type Cart struct {
	ID        pgtype.UUID
	UserID    pgtype.UUID
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

// CartItem is a row in the cart_items table.
type CartItem struct {
	ID        pgtype.UUID
	CartID    pgtype.UUID
	ProductID pgtype.UUID
	Quantity  int32
	LinePrice int64
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

// Address is a row in the addresses table.
type Address struct {
	ID        pgtype.UUID
	UserID    pgtype.UUID
	Address   string
	City      string
	Pincode   string
	Phone     string
	Notes     pgtype.Text
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

// Order is a row in the orders table. Address holds a JSON snapshot of
// the shipping address at checkout time.
type Order struct {
	ID            pgtype.UUID
	UserID        pgtype.UUID
	Status        string
	PaymentMethod string
	PaymentStatus string
	Subtotal      int64
	Tax           int64
	Total         int64
	Address       []byte
	PlacedAt      pgtype.Timestamptz
}

// OrderItem is a row in the order_items table with product fields
// denormalised so history survives catalog edits.
type OrderItem struct {
	ID        pgtype.UUID
	OrderID   pgtype.UUID
	ProductID pgtype.UUID
	Title     string
	ImageURL  pgtype.Text
	Quantity  int32
	UnitPrice int64
	LinePrice int64
}
