package address

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/ImAdityaa12/storex-backend/internal/common"
	"github.com/ImAdityaa12/storex-backend/internal/store"
)

type fakeQueries struct {
	rows map[string]store.Address
}

func newFakeQueries() *fakeQueries {
	return &fakeQueries{rows: map[string]store.Address{}}
}

func (f *fakeQueries) CreateAddress(_ context.Context, arg store.CreateAddressParams) (store.Address, error) {
	id, _ := store.ToUUID(uuid.NewString())
	a := store.Address{
		ID:      id,
		UserID:  arg.UserID,
		Address: arg.Address,
		City:    arg.City,
		Pincode: arg.Pincode,
		Phone:   arg.Phone,
		Notes:   arg.Notes,
	}
	f.rows[store.UUIDString(id)] = a
	return a, nil
}

func (f *fakeQueries) GetAddress(_ context.Context, id, userID pgtype.UUID) (store.Address, error) {
	a, ok := f.rows[store.UUIDString(id)]
	if !ok || a.UserID != userID {
		return store.Address{}, pgx.ErrNoRows
	}
	return a, nil
}

func (f *fakeQueries) ListAddressesByUser(_ context.Context, userID pgtype.UUID, limit, offset int32) ([]store.Address, error) {
	var out []store.Address
	for _, a := range f.rows {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeQueries) CountAddressesByUser(ctx context.Context, userID pgtype.UUID) (int64, error) {
	rows, err := f.ListAddressesByUser(ctx, userID, 0, 0)
	return int64(len(rows)), err
}

func (f *fakeQueries) UpdateAddress(_ context.Context, arg store.UpdateAddressParams) (store.Address, error) {
	key := store.UUIDString(arg.ID)
	a, ok := f.rows[key]
	if !ok || a.UserID != arg.UserID {
		return store.Address{}, pgx.ErrNoRows
	}
	a.Address = arg.Address
	a.City = arg.City
	a.Pincode = arg.Pincode
	a.Phone = arg.Phone
	a.Notes = arg.Notes
	f.rows[key] = a
	return a, nil
}

func (f *fakeQueries) DeleteAddress(_ context.Context, id, userID pgtype.UUID) (int64, error) {
	key := store.UUIDString(id)
	a, ok := f.rows[key]
	if !ok || a.UserID != userID {
		return 0, nil
	}
	delete(f.rows, key)
	return 1, nil
}

func validInput() Input {
	return Input{
		Address: "12 Harbor Lane",
		City:    "Mumbai",
		Pincode: "400001",
		Phone:   "+911234567890",
	}
}

func TestCreateAndGet(t *testing.T) {
	svc, err := NewService(newFakeQueries())
	require.NoError(t, err)
	userID := uuid.NewString()

	created, err := svc.Create(context.Background(), userID, validInput())
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := svc.Get(context.Background(), userID, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Mumbai", got.City)
}

func TestCreateEnforcesLimit(t *testing.T) {
	svc, err := NewService(newFakeQueries())
	require.NoError(t, err)
	userID := uuid.NewString()

	for i := 0; i < maxAddressesPerUser; i++ {
		_, err := svc.Create(context.Background(), userID, validInput())
		require.NoError(t, err)
	}
	_, err = svc.Create(context.Background(), userID, validInput())
	var app *common.AppError
	require.ErrorAs(t, err, &app)
	require.Equal(t, "ADDRESS_LIMIT_REACHED", app.Code)

	// The cap is per user.
	_, err = svc.Create(context.Background(), uuid.NewString(), validInput())
	require.NoError(t, err)
}

func TestGetScopedToOwner(t *testing.T) {
	svc, err := NewService(newFakeQueries())
	require.NoError(t, err)

	created, err := svc.Create(context.Background(), uuid.NewString(), validInput())
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), uuid.NewString(), created.ID)
	var app *common.AppError
	require.ErrorAs(t, err, &app)
	require.Equal(t, "ADDRESS_NOT_FOUND", app.Code)
}

func TestUpdate(t *testing.T) {
	svc, err := NewService(newFakeQueries())
	require.NoError(t, err)
	userID := uuid.NewString()

	created, err := svc.Create(context.Background(), userID, validInput())
	require.NoError(t, err)

	input := validInput()
	input.City = "Pune"
	updated, err := svc.Update(context.Background(), userID, created.ID, input)
	require.NoError(t, err)
	require.Equal(t, "Pune", updated.City)

	_, err = svc.Update(context.Background(), uuid.NewString(), created.ID, input)
	var app *common.AppError
	require.ErrorAs(t, err, &app)
	require.Equal(t, "ADDRESS_NOT_FOUND", app.Code)
}

func TestDelete(t *testing.T) {
	svc, err := NewService(newFakeQueries())
	require.NoError(t, err)
	userID := uuid.NewString()

	created, err := svc.Create(context.Background(), userID, validInput())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), userID, created.ID))

	err = svc.Delete(context.Background(), userID, created.ID)
	var app *common.AppError
	require.ErrorAs(t, err, &app)
	require.Equal(t, "ADDRESS_NOT_FOUND", app.Code)
}

func TestList(t *testing.T) {
	svc, err := NewService(newFakeQueries())
	require.NoError(t, err)
	userID := uuid.NewString()

	_, err = svc.Create(context.Background(), userID, validInput())
	require.NoError(t, err)

	items, total, err := svc.List(context.Background(), userID, 1, 20)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, items, 1)
}
