package address

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ImAdityaa12/storex-backend/internal/common"
	"github.com/ImAdityaa12/storex-backend/internal/store"
)

// Each user keeps a small address book; the cap mirrors the storefront UI.
const maxAddressesPerUser = 3

type queryProvider interface {
	CreateAddress(ctx context.Context, arg store.CreateAddressParams) (store.Address, error)
	GetAddress(ctx context.Context, id, userID pgtype.UUID) (store.Address, error)
	ListAddressesByUser(ctx context.Context, userID pgtype.UUID, limit, offset int32) ([]store.Address, error)
	CountAddressesByUser(ctx context.Context, userID pgtype.UUID) (int64, error)
	UpdateAddress(ctx context.Context, arg store.UpdateAddressParams) (store.Address, error)
	DeleteAddress(ctx context.Context, id, userID pgtype.UUID) (int64, error)
}

// Address represents one address book entry in API-friendly format.
type Address struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	City      string    `json:"city"`
	Pincode   string    `json:"pincode"`
	Phone     string    `json:"phone"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Input captures the payload for creating or updating an address.
type Input struct {
	Address string
	City    string
	Pincode string
	Phone   string
	Notes   string
}

// Service orchestrates address book operations.
type Service struct {
	queries queryProvider
}

// NewService constructs an address service.
func NewService(queries queryProvider) (*Service, error) {
	if queries == nil {
		return nil, errors.New("address: queries provider is required")
	}
	return &Service{queries: queries}, nil
}

// List returns paginated addresses for a user.
func (s *Service) List(ctx context.Context, userID string, page, perPage int) ([]Address, int64, error) {
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
	rows, err := s.queries.ListAddressesByUser(ctx, uid, int32(perPage), int32((page-1)*perPage))
	if err != nil {
		return nil, 0, fmt.Errorf("list addresses: %w", err)
	}
	total, err := s.queries.CountAddressesByUser(ctx, uid)
	if err != nil {
		return nil, 0, fmt.Errorf("count addresses: %w", err)
	}
	out := make([]Address, 0, len(rows))
	for _, row := range rows {
		out = append(out, convertAddress(row))
	}
	return out, total, nil
}

// Get returns a single address, scoped to its owner.
func (s *Service) Get(ctx context.Context, userID, addressID string) (Address, error) {
	uid, err := store.ToUUID(userID)
	if err != nil {
		return Address{}, fmt.Errorf("parse user id: %w", err)
	}
	aid, err := store.ToUUID(addressID)
	if err != nil {
		return Address{}, notFound(err)
	}
	row, err := s.queries.GetAddress(ctx, aid, uid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Address{}, notFound(err)
		}
		return Address{}, fmt.Errorf("get address: %w", err)
	}
	return convertAddress(row), nil
}

// Create inserts a new address for the given user.
func (s *Service) Create(ctx context.Context, userID string, input Input) (Address, error) {
	uid, err := store.ToUUID(userID)
	if err != nil {
		return Address{}, fmt.Errorf("parse user id: %w", err)
	}
	total, err := s.queries.CountAddressesByUser(ctx, uid)
	if err != nil {
		return Address{}, fmt.Errorf("count addresses: %w", err)
	}
	if total >= maxAddressesPerUser {
		return Address{}, &common.AppError{
			Code:       "ADDRESS_LIMIT_REACHED",
			Message:    fmt.Sprintf("you can keep at most %d addresses", maxAddressesPerUser),
			HTTPStatus: http.StatusConflict,
		}
	}
	created, err := s.queries.CreateAddress(ctx, store.CreateAddressParams{
		UserID:  uid,
		Address: input.Address,
		City:    input.City,
		Pincode: input.Pincode,
		Phone:   input.Phone,
		Notes:   store.ToText(input.Notes),
	})
	if err != nil {
		return Address{}, fmt.Errorf("create address: %w", err)
	}
	return convertAddress(created), nil
}

// Update replaces an existing address.
func (s *Service) Update(ctx context.Context, userID, addressID string, input Input) (Address, error) {
	uid, err := store.ToUUID(userID)
	if err != nil {
		return Address{}, fmt.Errorf("parse user id: %w", err)
	}
	aid, err := store.ToUUID(addressID)
	if err != nil {
		return Address{}, notFound(err)
	}
	updated, err := s.queries.UpdateAddress(ctx, store.UpdateAddressParams{
		ID:      aid,
		UserID:  uid,
		Address: input.Address,
		City:    input.City,
		Pincode: input.Pincode,
		Phone:   input.Phone,
		Notes:   store.ToText(input.Notes),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Address{}, notFound(err)
		}
		return Address{}, fmt.Errorf("update address: %w", err)
	}
	return convertAddress(updated), nil
}

// Delete removes an address.
func (s *Service) Delete(ctx context.Context, userID, addressID string) error {
	uid, err := store.ToUUID(userID)
	if err != nil {
		return fmt.Errorf("parse user id: %w", err)
	}
	aid, err := store.ToUUID(addressID)
	if err != nil {
		return notFound(err)
	}
	affected, err := s.queries.DeleteAddress(ctx, aid, uid)
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	if affected == 0 {
		return notFound(nil)
	}
	return nil
}

func convertAddress(row store.Address) Address {
	return Address{
		ID:        store.UUIDString(row.ID),
		Address:   row.Address,
		City:      row.City,
		Pincode:   row.Pincode,
		Phone:     row.Phone,
		Notes:     store.TextString(row.Notes),
		CreatedAt: store.TimestampTime(row.CreatedAt),
		UpdatedAt: store.TimestampTime(row.UpdatedAt),
	}
}

func notFound(err error) *common.AppError {
	return &common.AppError{Code: "ADDRESS_NOT_FOUND", Message: "address not found", HTTPStatus: http.StatusNotFound, Err: err}
}
