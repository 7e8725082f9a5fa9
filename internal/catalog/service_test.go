package catalog

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ImAdityaa12/storex-backend/internal/common"
	"github.com/ImAdityaa12/storex-backend/internal/store"
)

type fakeQueries struct {
	products map[string]store.Product
	tiers    map[string][]store.DiscountTier

	listCalls int
}

func newFakeQueries() *fakeQueries {
	return &fakeQueries{
		products: map[string]store.Product{},
		tiers:    map[string][]store.DiscountTier{},
	}
}

func (f *fakeQueries) GetProductByID(_ context.Context, id pgtype.UUID) (store.Product, error) {
	p, ok := f.products[store.UUIDString(id)]
	if !ok {
		return store.Product{}, pgx.ErrNoRows
	}
	return p, nil
}

func (f *fakeQueries) ListProducts(_ context.Context, arg store.ListProductsParams) ([]store.Product, error) {
	f.listCalls++
	var out []store.Product
	for _, p := range f.products {
		if len(arg.Categories) > 0 && !contains(arg.Categories, store.TextString(p.Category)) {
			continue
		}
		if len(arg.Brands) > 0 && !contains(arg.Brands, store.TextString(p.Brand)) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeQueries) CountProducts(ctx context.Context, arg store.ListProductsParams) (int64, error) {
	rows, err := f.ListProducts(ctx, arg)
	f.listCalls--
	return int64(len(rows)), err
}

func (f *fakeQueries) ListDiscountTiers(_ context.Context, productID pgtype.UUID) ([]store.DiscountTier, error) {
	return f.tiers[store.UUIDString(productID)], nil
}

func (f *fakeQueries) CreateProduct(_ context.Context, arg store.CreateProductParams) (store.Product, error) {
	id, _ := store.ToUUID(uuid.NewString())
	p := store.Product{
		ID:          id,
		Title:       arg.Title,
		Description: arg.Description,
		Brand:       arg.Brand,
		Category:    arg.Category,
		Model:       arg.Model,
		ImageURL:    arg.ImageURL,
		Price:       arg.Price,
		SalePrice:   arg.SalePrice,
		TotalStock:  arg.TotalStock,
	}
	f.products[store.UUIDString(id)] = p
	return p, nil
}

func (f *fakeQueries) UpdateProduct(_ context.Context, arg store.UpdateProductParams) (store.Product, error) {
	key := store.UUIDString(arg.ID)
	if _, ok := f.products[key]; !ok {
		return store.Product{}, pgx.ErrNoRows
	}
	p := store.Product{
		ID:          arg.ID,
		Title:       arg.Title,
		Description: arg.Description,
		Brand:       arg.Brand,
		Category:    arg.Category,
		Model:       arg.Model,
		ImageURL:    arg.ImageURL,
		Price:       arg.Price,
		SalePrice:   arg.SalePrice,
		TotalStock:  arg.TotalStock,
	}
	f.products[key] = p
	return p, nil
}

func (f *fakeQueries) DeleteProduct(_ context.Context, id pgtype.UUID) error {
	delete(f.products, store.UUIDString(id))
	delete(f.tiers, store.UUIDString(id))
	return nil
}

func (f *fakeQueries) ReplaceDiscountTiers(_ context.Context, productID pgtype.UUID, tiers []store.ReplaceTierParams) error {
	key := store.UUIDString(productID)
	out := make([]store.DiscountTier, 0, len(tiers))
	for _, t := range tiers {
		id, _ := store.ToUUID(uuid.NewString())
		out = append(out, store.DiscountTier{ID: id, ProductID: productID, MinQuantity: t.MinQuantity, BundlePrice: t.BundlePrice})
	}
	f.tiers[key] = out
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func (f *fakeQueries) seed(t *testing.T, title, category, brand string, price int64, stock int32, tiers []store.ReplaceTierParams) string {
	t.Helper()
	p, err := f.CreateProduct(context.Background(), store.CreateProductParams{
		Title:      title,
		Category:   store.ToText(category),
		Brand:      store.ToText(brand),
		Price:      price,
		TotalStock: stock,
	})
	require.NoError(t, err)
	require.NoError(t, f.ReplaceDiscountTiers(context.Background(), p.ID, tiers))
	return store.UUIDString(p.ID)
}

func newTestService(t *testing.T, queries *fakeQueries, withCache bool) *Service {
	t.Helper()
	var cache *Cache
	if withCache {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		cache = NewCache(client, time.Minute)
	}
	svc, err := NewService(ServiceConfig{
		Queries:      queries,
		Cache:        cache,
		DefaultPage:  1,
		DefaultLimit: 20,
		MaxLimit:     100,
	})
	require.NoError(t, err)
	return svc
}

func TestParseListParams(t *testing.T) {
	svc := newTestService(t, newFakeQueries(), false)

	params, err := svc.ParseListParams(url.Values{
		"category": {"phones, laptops"},
		"brand":    {"acme"},
		"q":        {"  pro  "},
		"sortBy":   {"Price-LowToHigh"},
		"page":     {"2"},
		"limit":    {"10"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"phones", "laptops"}, params.Categories)
	require.Equal(t, []string{"acme"}, params.Brands)
	require.Equal(t, "pro", params.Query)
	require.Equal(t, "price-lowtohigh", params.Sort)
	require.Equal(t, 2, params.Page)
	require.Equal(t, 10, params.Limit)
}

func TestParseListParamsRejectsBadPage(t *testing.T) {
	svc := newTestService(t, newFakeQueries(), false)

	_, err := svc.ParseListParams(url.Values{"page": {"zero"}})
	var app *common.AppError
	require.ErrorAs(t, err, &app)
	require.Equal(t, common.CodeValidation, app.Code)

	_, err = svc.ParseListParams(url.Values{"limit": {"-1"}})
	require.ErrorAs(t, err, &app)
}

func TestParseListParamsClampsLimit(t *testing.T) {
	svc := newTestService(t, newFakeQueries(), false)

	params, err := svc.ParseListParams(url.Values{"limit": {"5000"}})
	require.NoError(t, err)
	require.Equal(t, 100, params.Limit)
}

func TestParseListParamsUnknownSortFallsBack(t *testing.T) {
	svc := newTestService(t, newFakeQueries(), false)

	params, err := svc.ParseListParams(url.Values{"sortBy": {"cheapest-first"}})
	require.NoError(t, err)
	require.Equal(t, "", params.Sort)
}

func TestListProductsFilters(t *testing.T) {
	queries := newFakeQueries()
	queries.seed(t, "Phone", "phones", "acme", 100, 10, nil)
	queries.seed(t, "Laptop", "laptops", "acme", 900, 5, nil)
	svc := newTestService(t, queries, false)

	result, err := svc.ListProducts(context.Background(), ListParams{Categories: []string{"phones"}, Page: 1, Limit: 20})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Total)
	require.Len(t, result.Items, 1)
	require.Equal(t, "Phone", result.Items[0].Title)
}

func TestListProductsCachesDefaultPage(t *testing.T) {
	queries := newFakeQueries()
	queries.seed(t, "Phone", "phones", "acme", 100, 10, nil)
	svc := newTestService(t, queries, true)

	params := ListParams{Page: 1, Limit: 20}
	_, err := svc.ListProducts(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, 1, queries.listCalls)

	_, err = svc.ListProducts(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, 1, queries.listCalls, "second default listing should come from cache")

	// Filtered listings bypass the cache.
	_, err = svc.ListProducts(context.Background(), ListParams{Categories: []string{"phones"}, Page: 1, Limit: 20})
	require.NoError(t, err)
	require.Equal(t, 2, queries.listCalls)
}

func TestGetProductIncludesTiers(t *testing.T) {
	queries := newFakeQueries()
	id := queries.seed(t, "Widget", "misc", "acme", 100, 50, []store.ReplaceTierParams{
		{MinQuantity: 5, BundlePrice: 400},
		{MinQuantity: 12, BundlePrice: 900},
	})
	svc := newTestService(t, queries, false)

	product, err := svc.GetProduct(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "Widget", product.Title)
	require.Len(t, product.Tiers, 2)
	require.Equal(t, 5, product.Tiers[0].MinQuantity)
	require.Equal(t, int64(400), product.Tiers[0].BundlePrice)
}

func TestGetProductNotFound(t *testing.T) {
	svc := newTestService(t, newFakeQueries(), false)

	_, err := svc.GetProduct(context.Background(), uuid.NewString())
	var app *common.AppError
	require.ErrorAs(t, err, &app)
	require.Equal(t, "PRODUCT_NOT_FOUND", app.Code)

	_, err = svc.GetProduct(context.Background(), "not-a-uuid")
	require.ErrorAs(t, err, &app)
	require.Equal(t, "PRODUCT_NOT_FOUND", app.Code)
}

func TestQuoteQuantityUsesTierLadder(t *testing.T) {
	queries := newFakeQueries()
	id := queries.seed(t, "Widget", "misc", "acme", 100, 50, []store.ReplaceTierParams{
		{MinQuantity: 5, BundlePrice: 400},
		{MinQuantity: 12, BundlePrice: 900},
	})
	svc := newTestService(t, queries, false)

	total, err := svc.QuoteQuantity(context.Background(), id, 17)
	require.NoError(t, err)
	require.Equal(t, int64(1400), total)

	total, err = svc.QuoteQuantity(context.Background(), id, 3)
	require.NoError(t, err)
	require.Equal(t, int64(300), total)
}

func TestQuoteQuantityPrefersSalePrice(t *testing.T) {
	queries := newFakeQueries()
	sale := int64(80)
	p, err := queries.CreateProduct(context.Background(), store.CreateProductParams{
		Title:      "Widget",
		Price:      100,
		SalePrice:  store.ToInt8(&sale),
		TotalStock: 50,
	})
	require.NoError(t, err)
	svc := newTestService(t, queries, false)

	total, err := svc.QuoteQuantity(context.Background(), store.UUIDString(p.ID), 3)
	require.NoError(t, err)
	require.Equal(t, int64(240), total)
}

func TestCreateProductStoresTiers(t *testing.T) {
	queries := newFakeQueries()
	svc := newTestService(t, queries, false)

	product, err := svc.CreateProduct(context.Background(), ProductInput{
		Title:      "Widget",
		Price:      100,
		TotalStock: 50,
		Tiers:      []Tier{{MinQuantity: 5, BundlePrice: 400}},
	})
	require.NoError(t, err)
	require.Len(t, product.Tiers, 1)
	require.Equal(t, 5, product.Tiers[0].MinQuantity)
}

func TestCreateProductRejectsBadTier(t *testing.T) {
	svc := newTestService(t, newFakeQueries(), false)

	_, err := svc.CreateProduct(context.Background(), ProductInput{
		Title: "Widget",
		Price: 100,
		Tiers: []Tier{{MinQuantity: 0, BundlePrice: 400}},
	})
	var app *common.AppError
	require.ErrorAs(t, err, &app)
	require.Equal(t, common.CodeValidation, app.Code)
}

func TestUpdateProductReplacesTierLadder(t *testing.T) {
	queries := newFakeQueries()
	id := queries.seed(t, "Widget", "misc", "acme", 100, 50, []store.ReplaceTierParams{
		{MinQuantity: 5, BundlePrice: 400},
	})
	svc := newTestService(t, queries, false)

	product, err := svc.UpdateProduct(context.Background(), id, ProductInput{
		Title:      "Widget v2",
		Price:      120,
		TotalStock: 40,
		Tiers:      []Tier{{MinQuantity: 10, BundlePrice: 1000}},
	})
	require.NoError(t, err)
	require.Equal(t, "Widget v2", product.Title)
	require.Len(t, product.Tiers, 1)
	require.Equal(t, 10, product.Tiers[0].MinQuantity)
}

func TestUpdateProductInvalidatesDetailCache(t *testing.T) {
	queries := newFakeQueries()
	id := queries.seed(t, "Widget", "misc", "acme", 100, 50, nil)
	svc := newTestService(t, queries, true)

	first, err := svc.GetProduct(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "Widget", first.Title)

	_, err = svc.UpdateProduct(context.Background(), id, ProductInput{Title: "Renamed", Price: 100, TotalStock: 50})
	require.NoError(t, err)

	after, err := svc.GetProduct(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "Renamed", after.Title)
}

func TestDeleteProduct(t *testing.T) {
	queries := newFakeQueries()
	id := queries.seed(t, "Widget", "misc", "acme", 100, 50, nil)
	svc := newTestService(t, queries, false)

	require.NoError(t, svc.DeleteProduct(context.Background(), id))

	err := svc.DeleteProduct(context.Background(), id)
	var app *common.AppError
	require.ErrorAs(t, err, &app)
	require.Equal(t, "PRODUCT_NOT_FOUND", app.Code)
}
