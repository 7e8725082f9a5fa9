package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/ImAdityaa12/storex-backend/internal/common"
	"github.com/ImAdityaa12/storex-backend/internal/obs"
	"github.com/ImAdityaa12/storex-backend/internal/store"
)

type fakeQueries struct {
	products map[string]store.Product
	tiers    map[string][]store.DiscountTier
	carts    map[string]store.Cart   // keyed by user id
	items    map[string][]*store.CartItem // keyed by cart id
}

func newFakeQueries() *fakeQueries {
	return &fakeQueries{
		products: map[string]store.Product{},
		tiers:    map[string][]store.DiscountTier{},
		carts:    map[string]store.Cart{},
		items:    map[string][]*store.CartItem{},
	}
}

func (f *fakeQueries) addProduct(title string, price int64, salePrice *int64, stock int32, tiers []store.DiscountTier) string {
	id, _ := store.ToUUID(uuid.NewString())
	f.products[store.UUIDString(id)] = store.Product{
		ID:         id,
		Title:      title,
		Price:      price,
		SalePrice:  store.ToInt8(salePrice),
		TotalStock: stock,
	}
	for i := range tiers {
		tiers[i].ProductID = id
	}
	f.tiers[store.UUIDString(id)] = tiers
	return store.UUIDString(id)
}

func (f *fakeQueries) GetProductByID(_ context.Context, id pgtype.UUID) (store.Product, error) {
	p, ok := f.products[store.UUIDString(id)]
	if !ok {
		return store.Product{}, pgx.ErrNoRows
	}
	return p, nil
}

func (f *fakeQueries) ListDiscountTiers(_ context.Context, productID pgtype.UUID) ([]store.DiscountTier, error) {
	return f.tiers[store.UUIDString(productID)], nil
}

func (f *fakeQueries) GetCartByUser(_ context.Context, userID pgtype.UUID) (store.Cart, error) {
	c, ok := f.carts[store.UUIDString(userID)]
	if !ok {
		return store.Cart{}, pgx.ErrNoRows
	}
	return c, nil
}

func (f *fakeQueries) CreateCart(_ context.Context, userID pgtype.UUID) (store.Cart, error) {
	key := store.UUIDString(userID)
	if c, ok := f.carts[key]; ok {
		return c, nil
	}
	id, _ := store.ToUUID(uuid.NewString())
	c := store.Cart{ID: id, UserID: userID}
	f.carts[key] = c
	return c, nil
}

func (f *fakeQueries) ListCartItems(_ context.Context, cartID pgtype.UUID) ([]store.CartItem, error) {
	var out []store.CartItem
	for _, it := range f.items[store.UUIDString(cartID)] {
		out = append(out, *it)
	}
	return out, nil
}

func (f *fakeQueries) GetCartItemByProduct(_ context.Context, cartID, productID pgtype.UUID) (store.CartItem, error) {
	for _, it := range f.items[store.UUIDString(cartID)] {
		if it.ProductID == productID {
			return *it, nil
		}
	}
	return store.CartItem{}, pgx.ErrNoRows
}

func (f *fakeQueries) CreateCartItem(_ context.Context, arg store.CreateCartItemParams) (store.CartItem, error) {
	id, _ := store.ToUUID(uuid.NewString())
	it := &store.CartItem{
		ID:        id,
		CartID:    arg.CartID,
		ProductID: arg.ProductID,
		Quantity:  arg.Quantity,
		LinePrice: arg.LinePrice,
	}
	key := store.UUIDString(arg.CartID)
	f.items[key] = append(f.items[key], it)
	return *it, nil
}

func (f *fakeQueries) UpdateCartItem(_ context.Context, id pgtype.UUID, quantity int32, linePrice int64) (store.CartItem, error) {
	for _, items := range f.items {
		for _, it := range items {
			if it.ID == id {
				it.Quantity = quantity
				it.LinePrice = linePrice
				return *it, nil
			}
		}
	}
	return store.CartItem{}, pgx.ErrNoRows
}

func (f *fakeQueries) DeleteCartItem(_ context.Context, id pgtype.UUID) error {
	for key, items := range f.items {
		for i, it := range items {
			if it.ID == id {
				f.items[key] = append(items[:i], items[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

func newTestService(t *testing.T, queries *fakeQueries) *Service {
	t.Helper()
	svc, err := NewService(ServiceConfig{Queries: queries})
	require.NoError(t, err)
	return svc
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var app *common.AppError
	require.ErrorAs(t, err, &app)
	require.Equal(t, code, app.Code)
}

func TestAddItemCreatesLine(t *testing.T) {
	queries := newFakeQueries()
	productID := queries.addProduct("Widget", 5, nil, 10, nil)
	svc := newTestService(t, queries)
	userID := uuid.NewString()

	view, err := svc.AddItem(context.Background(), userID, productID, 2)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	require.Equal(t, 2, view.Items[0].Quantity)
	require.Equal(t, int64(10), view.Items[0].LinePrice)
	require.Equal(t, int64(10), view.Subtotal)
}

func TestAddItemMergesExistingLine(t *testing.T) {
	queries := newFakeQueries()
	productID := queries.addProduct("Widget", 5, nil, 10, nil)
	svc := newTestService(t, queries)
	userID := uuid.NewString()

	_, err := svc.AddItem(context.Background(), userID, productID, 2)
	require.NoError(t, err)
	view, err := svc.AddItem(context.Background(), userID, productID, 3)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	require.Equal(t, 5, view.Items[0].Quantity)
	require.Equal(t, int64(25), view.Items[0].LinePrice)
}

func TestAddItemUnknownProduct(t *testing.T) {
	svc := newTestService(t, newFakeQueries())

	_, err := svc.AddItem(context.Background(), uuid.NewString(), uuid.NewString(), 1)
	requireCode(t, err, "PRODUCT_NOT_FOUND")
}

func TestAddItemBeyondStock(t *testing.T) {
	queries := newFakeQueries()
	productID := queries.addProduct("Widget", 5, nil, 3, nil)
	svc := newTestService(t, queries)
	userID := uuid.NewString()

	_, err := svc.AddItem(context.Background(), userID, productID, 4)
	requireCode(t, err, "OUT_OF_STOCK")

	// Merging over the limit is also rejected and the line keeps its state.
	_, err = svc.AddItem(context.Background(), userID, productID, 2)
	require.NoError(t, err)
	_, err = svc.AddItem(context.Background(), userID, productID, 2)
	requireCode(t, err, "OUT_OF_STOCK")

	view, err := svc.Get(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, 2, view.Items[0].Quantity)
}

func TestAddItemUsesSalePrice(t *testing.T) {
	queries := newFakeQueries()
	sale := int64(4)
	productID := queries.addProduct("Widget", 5, &sale, 10, nil)
	svc := newTestService(t, queries)

	view, err := svc.AddItem(context.Background(), uuid.NewString(), productID, 3)
	require.NoError(t, err)
	require.Equal(t, int64(12), view.Items[0].LinePrice)
	require.Equal(t, int64(4), view.Items[0].UnitPrice)
}

func TestAddItemAppliesTierLadder(t *testing.T) {
	queries := newFakeQueries()
	productID := queries.addProduct("Widget", 5, nil, 50, []store.DiscountTier{
		{MinQuantity: 5, BundlePrice: 20},
	})
	svc := newTestService(t, queries)

	view, err := svc.AddItem(context.Background(), uuid.NewString(), productID, 7)
	require.NoError(t, err)
	require.Equal(t, int64(30), view.Items[0].LinePrice)
}

func TestIncrementRecomputesFromScratch(t *testing.T) {
	queries := newFakeQueries()
	productID := queries.addProduct("Widget", 5, nil, 50, []store.DiscountTier{
		{MinQuantity: 5, BundlePrice: 20},
	})
	svc := newTestService(t, queries)
	userID := uuid.NewString()

	_, err := svc.AddItem(context.Background(), userID, productID, 4)
	require.NoError(t, err)

	view, err := svc.Increment(context.Background(), userID, productID)
	require.NoError(t, err)
	require.Equal(t, 5, view.Items[0].Quantity)
	require.Equal(t, int64(20), view.Items[0].LinePrice)

	view, err = svc.Decrement(context.Background(), userID, productID)
	require.NoError(t, err)
	require.Equal(t, 4, view.Items[0].Quantity)
	require.Equal(t, int64(20), view.Items[0].LinePrice, "price at quantity 4 must match the original computation")
}

func TestDecrementToZeroRemovesLine(t *testing.T) {
	queries := newFakeQueries()
	productID := queries.addProduct("Widget", 5, nil, 10, nil)
	svc := newTestService(t, queries)
	userID := uuid.NewString()

	_, err := svc.AddItem(context.Background(), userID, productID, 1)
	require.NoError(t, err)

	view, err := svc.Decrement(context.Background(), userID, productID)
	require.NoError(t, err)
	require.Empty(t, view.Items)

	_, err = svc.Decrement(context.Background(), userID, productID)
	requireCode(t, err, "LINE_ITEM_NOT_FOUND")
}

func TestIncrementBeyondStock(t *testing.T) {
	queries := newFakeQueries()
	productID := queries.addProduct("Widget", 5, nil, 2, nil)
	svc := newTestService(t, queries)
	userID := uuid.NewString()

	_, err := svc.AddItem(context.Background(), userID, productID, 2)
	require.NoError(t, err)

	_, err = svc.Increment(context.Background(), userID, productID)
	requireCode(t, err, "OUT_OF_STOCK")
}

func TestSetQuantityRecomputes(t *testing.T) {
	queries := newFakeQueries()
	productID := queries.addProduct("Widget", 5, nil, 50, []store.DiscountTier{
		{MinQuantity: 5, BundlePrice: 20},
	})
	svc := newTestService(t, queries)
	userID := uuid.NewString()

	_, err := svc.AddItem(context.Background(), userID, productID, 1)
	require.NoError(t, err)

	view, err := svc.SetQuantity(context.Background(), userID, productID, 10)
	require.NoError(t, err)
	require.Equal(t, 10, view.Items[0].Quantity)
	require.Equal(t, int64(40), view.Items[0].LinePrice)
}

func TestSetQuantityBeyondStockLeavesLineUnchanged(t *testing.T) {
	queries := newFakeQueries()
	productID := queries.addProduct("Widget", 5, nil, 10, nil)
	svc := newTestService(t, queries)
	userID := uuid.NewString()

	_, err := svc.AddItem(context.Background(), userID, productID, 3)
	require.NoError(t, err)

	_, err = svc.SetQuantity(context.Background(), userID, productID, 11)
	requireCode(t, err, "OUT_OF_STOCK")

	view, err := svc.Get(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, 3, view.Items[0].Quantity)
	require.Equal(t, int64(15), view.Items[0].LinePrice)
}

func TestSetQuantityZeroRemovesLine(t *testing.T) {
	queries := newFakeQueries()
	productID := queries.addProduct("Widget", 5, nil, 10, nil)
	svc := newTestService(t, queries)
	userID := uuid.NewString()

	_, err := svc.AddItem(context.Background(), userID, productID, 3)
	require.NoError(t, err)

	view, err := svc.SetQuantity(context.Background(), userID, productID, 0)
	require.NoError(t, err)
	require.Empty(t, view.Items)
}

func TestRemoveItemMissingLine(t *testing.T) {
	queries := newFakeQueries()
	productID := queries.addProduct("Widget", 5, nil, 10, nil)
	svc := newTestService(t, queries)

	_, err := svc.RemoveItem(context.Background(), uuid.NewString(), productID)
	requireCode(t, err, "LINE_ITEM_NOT_FOUND")
}

func TestGetWithoutCart(t *testing.T) {
	svc := newTestService(t, newFakeQueries())

	view, err := svc.Get(context.Background(), uuid.NewString())
	require.NoError(t, err)
	require.Empty(t, view.Items)
	require.Equal(t, int64(0), view.Total)
}

func TestCartLifecycle(t *testing.T) {
	queries := newFakeQueries()
	productID := queries.addProduct("Widget", 5, nil, 10, []store.DiscountTier{
		{MinQuantity: 6, BundlePrice: 21},
	})
	svc := newTestService(t, queries)
	userID := uuid.NewString()

	view, err := svc.AddItem(context.Background(), userID, productID, 2)
	require.NoError(t, err)
	require.Equal(t, int64(10), view.Items[0].LinePrice)

	for _, want := range []int64{15, 20, 25} {
		view, err = svc.Increment(context.Background(), userID, productID)
		require.NoError(t, err)
		require.Equal(t, want, view.Items[0].LinePrice)
	}
	require.Equal(t, 5, view.Items[0].Quantity)

	view, err = svc.Increment(context.Background(), userID, productID)
	require.NoError(t, err)
	require.Equal(t, 6, view.Items[0].Quantity)
	require.Equal(t, int64(21), view.Items[0].LinePrice)

	_, err = svc.SetQuantity(context.Background(), userID, productID, 11)
	requireCode(t, err, "OUT_OF_STOCK")

	view, err = svc.Get(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, 6, view.Items[0].Quantity)
	require.Equal(t, int64(21), view.Items[0].LinePrice)
}

func TestMutationsWorkWithoutMetricCollectors(t *testing.T) {
	require.Nil(t, obs.CartMutationsTotal)

	queries := newFakeQueries()
	productID := queries.addProduct("Widget", 5, nil, 10, nil)
	svc := newTestService(t, queries)
	userID := uuid.NewString()

	_, err := svc.AddItem(context.Background(), userID, productID, 2)
	require.NoError(t, err)
	_, err = svc.Increment(context.Background(), userID, productID)
	require.NoError(t, err)
	_, err = svc.RemoveItem(context.Background(), userID, productID)
	require.NoError(t, err)
}
