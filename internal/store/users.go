package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const userColumns = `id, name, username, email, phone, image_url, password_hash, role, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Username, &u.Email, &u.Phone, &u.ImageURL, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// CreateUserParams carries the fields required to register a user.
type CreateUserParams struct {
	Name         string
	Username     string
	Email        string
	Phone        pgtype.Text
	PasswordHash string
	Role         string
}

func (s *Store) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (name, username, email, phone, password_hash, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		arg.Name, arg.Username, arg.Email, arg.Phone, arg.PasswordHash, arg.Role)
	return scanUser(row)
}

func (s *Store) GetUserByID(ctx context.Context, id pgtype.UUID) (User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username)
	return scanUser(row)
}

func (s *Store) UpdateUserPassword(ctx context.Context, id pgtype.UUID, passwordHash string) error {
	_, err := s.db.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, passwordHash)
	return err
}

// UpdateUserProfileParams carries the mutable profile fields.
type UpdateUserProfileParams struct {
	ID       pgtype.UUID
	Name     string
	Phone    pgtype.Text
	ImageURL pgtype.Text
}

func (s *Store) UpdateUserProfile(ctx context.Context, arg UpdateUserProfileParams) (User, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE users
		SET name = $2,
		    phone = $3,
		    image_url = COALESCE($4, image_url),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		arg.ID, arg.Name, arg.Phone, arg.ImageURL)
	return scanUser(row)
}

func (s *Store) ListUsers(ctx context.Context, limit, offset int32) ([]User, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+userColumns+` FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&total)
	return total, err
}

func (s *Store) UpdateUserRole(ctx context.Context, id pgtype.UUID, role string) (User, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE users SET role = $2, updated_at = now() WHERE id = $1 RETURNING `+userColumns, id, role)
	return scanUser(row)
}
