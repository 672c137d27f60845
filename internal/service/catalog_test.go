package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/cleanshop/internal/events"
	"github.com/Skotchmaster/cleanshop/internal/repo"
	"github.com/Skotchmaster/cleanshop/internal/search"
	"github.com/Skotchmaster/cleanshop/internal/testutil"
	"github.com/Skotchmaster/cleanshop/internal/transport"
)

func newCatalog(t *testing.T) (*CatalogService, *events.Recorder) {
	t.Helper()
	db := testutil.NewDB(t)
	require.NoError(t, repo.Migrate(db))
	rec := &events.Recorder{}
	return &CatalogService{Repo: repo.New(db), Events: rec}, rec
}

func ptr[T any](v T) *T { return &v }

func TestNormalizeSKU(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in    string
		want  string
		valid bool
	}{
		{in: " ab-12_x ", want: "AB-12_X", valid: true},
		{in: "", want: "", valid: false},
		{in: "has space", want: "HAS SPACE", valid: false},
		{in: "sku#1", want: "SKU#1", valid: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := NormalizeSKU(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.valid, ok)
		})
	}
}

func TestCatalogService_CreateProduct(t *testing.T) {
	t.Parallel()

	svc, rec := newCatalog(t)
	ctx := context.Background()

	cat, err := svc.CreateCategory(ctx, "Kitchen")
	require.NoError(t, err)

	p, err := svc.CreateProduct(ctx, transport.CreateProductRequest{
		Name: "Kettle", Description: "steel", SKU: "kt-1", Price: 10, Stock: 2, CategoryID: &cat.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "KT-1", p.SKU)
	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, []string{events.ProductCreated}, rec.Types())

	_, err = svc.CreateProduct(ctx, transport.CreateProductRequest{Name: "Other", SKU: "KT-1"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCatalogService_CreateProduct_Validation(t *testing.T) {
	t.Parallel()

	svc, _ := newCatalog(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  transport.CreateProductRequest
	}{
		{name: "missing name", req: transport.CreateProductRequest{SKU: "A1"}},
		{name: "long name", req: transport.CreateProductRequest{Name: "012345678901234567890123456789012345678901234567890", SKU: "A1"}},
		{name: "bad sku", req: transport.CreateProductRequest{Name: "n", SKU: "a b"}},
		{name: "negative price", req: transport.CreateProductRequest{Name: "n", SKU: "A1", Price: -1}},
		{name: "negative stock", req: transport.CreateProductRequest{Name: "n", SKU: "A1", Stock: -1}},
		{name: "unknown category", req: transport.CreateProductRequest{Name: "n", SKU: "A1", CategoryID: ptr(uint(99))}},
		{name: "unknown brand", req: transport.CreateProductRequest{Name: "n", SKU: "A1", BrandID: ptr(uint(99))}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateProduct(ctx, tt.req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCatalogService_PatchAndDelete(t *testing.T) {
	t.Parallel()

	svc, rec := newCatalog(t)
	ctx := context.Background()

	a, err := svc.CreateProduct(ctx, transport.CreateProductRequest{Name: "A", SKU: "A-1", Price: 1})
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, transport.CreateProductRequest{Name: "B", SKU: "B-1", Price: 1})
	require.NoError(t, err)

	patched, err := svc.PatchProduct(ctx, a.ID, transport.PatchProductRequest{Price: ptr(2.5), SKU: ptr("a-2")})
	require.NoError(t, err)
	assert.Equal(t, 2.5, patched.Price)
	assert.Equal(t, "A-2", patched.SKU)
	assert.Equal(t, "A", patched.Name)

	_, err = svc.PatchProduct(ctx, a.ID, transport.PatchProductRequest{SKU: ptr("b-1")})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.PatchProduct(ctx, a.ID, transport.PatchProductRequest{Price: ptr(-3.0)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.PatchProduct(ctx, uuid.New(), transport.PatchProductRequest{Price: ptr(1.0)})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.DeleteProduct(ctx, a.ID))
	assert.ErrorIs(t, svc.DeleteProduct(ctx, a.ID), ErrNotFound)

	_, err = svc.GetProduct(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []string{
		events.ProductCreated, events.ProductCreated, events.ProductUpdated, events.ProductDeleted,
	}, rec.Types())
}

func TestCatalogService_PatchClearsCategoryAndBrand(t *testing.T) {
	t.Parallel()

	svc, _ := newCatalog(t)
	ctx := context.Background()

	cat, err := svc.CreateCategory(ctx, "Lighting")
	require.NoError(t, err)
	brand, err := svc.CreateBrand(ctx, "Lumen", "")
	require.NoError(t, err)

	p, err := svc.CreateProduct(ctx, transport.CreateProductRequest{
		Name: "Lamp", SKU: "LAMP-1", CategoryID: &cat.ID, BrandID: &brand.ID,
	})
	require.NoError(t, err)

	// a nil id leaves the link alone
	patched, err := svc.PatchProduct(ctx, p.ID, transport.PatchProductRequest{Stock: ptr(4)})
	require.NoError(t, err)
	require.NotNil(t, patched.CategoryID)
	require.NotNil(t, patched.BrandID)

	_, err = svc.PatchProduct(ctx, p.ID, transport.PatchProductRequest{ClearBrand: true, BrandID: &brand.ID})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.PatchProduct(ctx, p.ID, transport.PatchProductRequest{ClearCategory: true, ClearBrand: true})
	require.NoError(t, err)

	got, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CategoryID)
	assert.Nil(t, got.BrandID)
	assert.Equal(t, 4, got.Stock)
}

func TestCatalogService_SearchFallsBackToDatabase(t *testing.T) {
	t.Parallel()

	svc, _ := newCatalog(t)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, transport.CreateProductRequest{Name: "Desk lamp", SKU: "DL-1"})
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, transport.CreateProductRequest{Name: "Chair", SKU: "CH-1"})
	require.NoError(t, err)

	total, items, err := svc.SearchProducts(ctx, "lamp", 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	svc.Index = &search.Index{Client: client, Name: "products"}

	total, items, err = svc.SearchProducts(ctx, "chair", 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "Chair", items[0].Name)
}

func TestCatalogService_CategoriesAndBrands(t *testing.T) {
	t.Parallel()

	svc, _ := newCatalog(t)
	ctx := context.Background()

	_, err := svc.CreateCategory(ctx, " ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateBrand(ctx, "Acme", "tools")
	require.NoError(t, err)
	_, err = svc.CreateBrand(ctx, "Acme", "again")
	assert.ErrorIs(t, err, ErrConflict)

	brands, err := svc.ListBrands(ctx)
	require.NoError(t, err)
	require.Len(t, brands, 1)

	cats, err := svc.ListCategories(ctx)
	require.NoError(t, err)
	assert.Empty(t, cats)
}
