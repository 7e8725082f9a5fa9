package order

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/ImAdityaa12/storex-backend/internal/common"
	"github.com/ImAdityaa12/storex-backend/internal/events"
	"github.com/ImAdityaa12/storex-backend/internal/store"
)

type fakeQueries struct {
	orders map[string]store.Order
	items  map[string][]store.OrderItem
}

func newFakeQueries() *fakeQueries {
	return &fakeQueries{
		orders: map[string]store.Order{},
		items:  map[string][]store.OrderItem{},
	}
}

func (f *fakeQueries) addOrder(userID pgtype.UUID, status string, total int64) string {
	id, _ := store.ToUUID(uuid.NewString())
	f.orders[store.UUIDString(id)] = store.Order{
		ID:            id,
		UserID:        userID,
		Status:        status,
		PaymentMethod: "credit",
		PaymentStatus: "paid",
		Total:         total,
	}
	return store.UUIDString(id)
}

func (f *fakeQueries) GetOrder(_ context.Context, id pgtype.UUID) (store.Order, error) {
	o, ok := f.orders[store.UUIDString(id)]
	if !ok {
		return store.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (f *fakeQueries) ListOrdersByUser(_ context.Context, userID pgtype.UUID, limit, offset int32) ([]store.Order, error) {
	var out []store.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeQueries) CountOrdersByUser(ctx context.Context, userID pgtype.UUID) (int64, error) {
	rows, err := f.ListOrdersByUser(ctx, userID, 0, 0)
	return int64(len(rows)), err
}

func (f *fakeQueries) ListOrders(_ context.Context, limit, offset int32) ([]store.Order, error) {
	var out []store.Order
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeQueries) ListOrderItems(_ context.Context, orderID pgtype.UUID) ([]store.OrderItem, error) {
	return f.items[store.UUIDString(orderID)], nil
}

func (f *fakeQueries) UpdateOrderStatus(_ context.Context, id pgtype.UUID, status string) (store.Order, error) {
	key := store.UUIDString(id)
	o, ok := f.orders[key]
	if !ok {
		return store.Order{}, pgx.ErrNoRows
	}
	o.Status = status
	f.orders[key] = o
	return o, nil
}

func mustUUID(t *testing.T) pgtype.UUID {
	t.Helper()
	id, err := store.ToUUID(uuid.NewString())
	require.NoError(t, err)
	return id
}

func TestListMine(t *testing.T) {
	queries := newFakeQueries()
	owner := mustUUID(t)
	other := mustUUID(t)
	queries.addOrder(owner, "confirmed", 100)
	queries.addOrder(owner, "shipped", 200)
	queries.addOrder(other, "confirmed", 300)
	svc, err := NewService(queries, nil)
	require.NoError(t, err)

	orders, total, err := svc.ListMine(context.Background(), store.UUIDString(owner), 1, 20)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, orders, 2)
}

func TestGetMineScopedToOwner(t *testing.T) {
	queries := newFakeQueries()
	owner := mustUUID(t)
	orderID := queries.addOrder(owner, "confirmed", 100)
	queries.items[orderID] = []store.OrderItem{{Title: "Widget", Quantity: 2, UnitPrice: 50, LinePrice: 100}}
	svc, err := NewService(queries, nil)
	require.NoError(t, err)

	out, err := svc.GetMine(context.Background(), store.UUIDString(owner), orderID)
	require.NoError(t, err)
	require.Equal(t, "confirmed", out.Status)
	require.Len(t, out.Items, 1)
	require.Equal(t, "Widget", out.Items[0].Title)

	// A different user cannot see it, and the code hides its existence.
	_, err = svc.GetMine(context.Background(), uuid.NewString(), orderID)
	var app *common.AppError
	require.ErrorAs(t, err, &app)
	require.Equal(t, "ORDER_NOT_FOUND", app.Code)
}

func TestGetMineUnknownOrder(t *testing.T) {
	svc, err := NewService(newFakeQueries(), nil)
	require.NoError(t, err)

	_, err = svc.GetMine(context.Background(), uuid.NewString(), uuid.NewString())
	var app *common.AppError
	require.ErrorAs(t, err, &app)
	require.Equal(t, "ORDER_NOT_FOUND", app.Code)
}

func TestUpdateStatus(t *testing.T) {
	queries := newFakeQueries()
	orderID := queries.addOrder(mustUUID(t), "confirmed", 100)
	svc, err := NewService(queries, nil)
	require.NoError(t, err)

	out, err := svc.UpdateStatus(context.Background(), orderID, "shipped")
	require.NoError(t, err)
	require.Equal(t, "shipped", out.Status)
}

func TestUpdateStatusAnnouncesChange(t *testing.T) {
	queries := newFakeQueries()
	orderID := queries.addOrder(mustUUID(t), "confirmed", 100)

	var seen []events.Event
	bus := &events.Bus{Notifiers: []events.Notifier{
		events.NotifierFunc(func(_ context.Context, e events.Event) error {
			seen = append(seen, e)
			return nil
		}),
	}}
	svc, err := NewService(queries, bus)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), orderID, "delivered")
	require.NoError(t, err)
	require.Len(t, seen, 1)
	require.Equal(t, events.TopicOrderDelivered, seen[0].Topic)
	require.Equal(t, orderID, seen[0].AggregateID)

	// Cancellation has no announcement topic.
	_, err = svc.UpdateStatus(context.Background(), orderID, "cancelled")
	require.NoError(t, err)
	require.Len(t, seen, 1)
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	queries := newFakeQueries()
	orderID := queries.addOrder(mustUUID(t), "confirmed", 100)
	svc, err := NewService(queries, nil)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), orderID, "teleported")
	var app *common.AppError
	require.ErrorAs(t, err, &app)
	require.Equal(t, common.CodeValidation, app.Code)
}

func TestGetMineSurvivesDeletedProduct(t *testing.T) {
	queries := newFakeQueries()
	owner := mustUUID(t)
	orderID := queries.addOrder(owner, "confirmed", 100)
	// The catalog row was removed after checkout. The line keeps its
	// frozen title and prices, with no product reference left.
	queries.items[orderID] = []store.OrderItem{{Title: "Widget", Quantity: 2, UnitPrice: 50, LinePrice: 100}}
	svc, err := NewService(queries, nil)
	require.NoError(t, err)

	out, err := svc.GetMine(context.Background(), store.UUIDString(owner), orderID)
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	require.Empty(t, out.Items[0].ProductID)
	require.Equal(t, "Widget", out.Items[0].Title)
	require.Equal(t, int64(100), out.Items[0].LinePrice)
}
