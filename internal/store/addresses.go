package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const addressColumns = `id, user_id, address, city, pincode, phone, notes, created_at, updated_at`

func scanAddress(row interface{ Scan(dest ...any) error }) (Address, error) {
	var a Address
	err := row.Scan(&a.ID, &a.UserID, &a.Address, &a.City, &a.Pincode, &a.Phone, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// CreateAddressParams carries the fields for one address book entry.
type CreateAddressParams struct {
	UserID  pgtype.UUID
	Address string
	City    string
	Pincode string
	Phone   string
	Notes   pgtype.Text
}

func (s *Store) CreateAddress(ctx context.Context, arg CreateAddressParams) (Address, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO addresses (user_id, address, city, pincode, phone, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+addressColumns,
		arg.UserID, arg.Address, arg.City, arg.Pincode, arg.Phone, arg.Notes)
	return scanAddress(row)
}

func (s *Store) GetAddress(ctx context.Context, id, userID pgtype.UUID) (Address, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+addressColumns+` FROM addresses WHERE id = $1 AND user_id = $2`, id, userID)
	return scanAddress(row)
}

func (s *Store) ListAddressesByUser(ctx context.Context, userID pgtype.UUID, limit, offset int32) ([]Address, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+addressColumns+` FROM addresses
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Address
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) CountAddressesByUser(ctx context.Context, userID pgtype.UUID) (int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM addresses WHERE user_id = $1`, userID).Scan(&total)
	return total, err
}

// UpdateAddressParams carries a full replacement for one entry.
type UpdateAddressParams struct {
	ID      pgtype.UUID
	UserID  pgtype.UUID
	Address string
	City    string
	Pincode string
	Phone   string
	Notes   pgtype.Text
}

func (s *Store) UpdateAddress(ctx context.Context, arg UpdateAddressParams) (Address, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE addresses
		SET address = $3, city = $4, pincode = $5, phone = $6, notes = $7, updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING `+addressColumns,
		arg.ID, arg.UserID, arg.Address, arg.City, arg.Pincode, arg.Phone, arg.Notes)
	return scanAddress(row)
}

func (s *Store) DeleteAddress(ctx context.Context, id, userID pgtype.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM addresses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
