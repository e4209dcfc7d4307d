package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/threadline-backend/internal/availability"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
)

type stubCatalog struct {
	views   []availability.ProductView
	variant *models.ProductVariant
	err     error

	created availability.CreateVariantInput
	price   decimal.Decimal
	restock int
	status  enums.VariantStatus
	deleted uuid.UUID
}

func (s *stubCatalog) ListProducts(context.Context) ([]availability.ProductView, error) {
	return s.views, s.err
}

func (s *stubCatalog) GetProduct(context.Context, uuid.UUID) (*availability.ProductView, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &s.views[0], nil
}

func (s *stubCatalog) GetVariant(context.Context, uuid.UUID) (*models.ProductVariant, error) {
	return s.variant, s.err
}

func (s *stubCatalog) CreateProduct(_ context.Context, name string) (*models.Product, error) {
	return &models.Product{ID: uuid.New(), Name: name}, s.err
}

func (s *stubCatalog) CreateVariant(_ context.Context, input availability.CreateVariantInput) (*models.ProductVariant, error) {
	s.created = input
	return s.variant, s.err
}

func (s *stubCatalog) UpdatePrice(_ context.Context, _ uuid.UUID, price decimal.Decimal) (*models.ProductVariant, error) {
	s.price = price
	return s.variant, s.err
}

func (s *stubCatalog) Restock(_ context.Context, _ uuid.UUID, qty int) (*models.ProductVariant, error) {
	s.restock = qty
	return s.variant, s.err
}

func (s *stubCatalog) SetManualStatus(_ context.Context, _ uuid.UUID, target enums.VariantStatus) (*models.ProductVariant, error) {
	s.status = target
	return s.variant, s.err
}

func (s *stubCatalog) DeleteVariant(_ context.Context, variantID uuid.UUID) error {
	s.deleted = variantID
	return s.err
}

func sampleVariant() *models.ProductVariant {
	return &models.ProductVariant{
		ID:     uuid.New(),
		SKU:    "HOODIE-L",
		Brand:  "North",
		Size:   "L",
		Price:  decimal.RequireFromString("45.5"),
		Stock:  4,
		Status: enums.VariantStatusAvailable,
	}
}

func TestListProductsAggregatesStatus(t *testing.T) {
	variant := sampleVariant()
	svc := &stubCatalog{views: []availability.ProductView{{
		Product: models.Product{ID: uuid.New(), Name: "Hoodie", Variants: []models.ProductVariant{*variant}},
		Status:  enums.VariantStatusAvailable,
	}}}

	rec := serve(t, http.MethodGet, "/api/v1/products", "/api/v1/products", "", ListProducts(svc, nil), uuid.Nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []productResponse
	decodeData(t, rec, &body)
	require.Len(t, body, 1)
	assert.Equal(t, "available", body[0].Status)
	require.Len(t, body[0].Variants, 1)
	assert.Equal(t, "45.50", body[0].Variants[0].Price)
}

func TestGetVariantRejectsBadID(t *testing.T) {
	rec := serve(t, http.MethodGet, "/api/v1/variants/{variantId}", "/api/v1/variants/nope", "", GetVariant(&stubCatalog{}, nil), uuid.Nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminCreateVariant(t *testing.T) {
	svc := &stubCatalog{variant: sampleVariant()}
	productID := uuid.New()
	body := `{"sku":"HOODIE-L","brand":"North","size":"L","price":"45.50","stock":4}`

	rec := serve(t, http.MethodPost, "/api/admin/v1/products/{productId}/variants", "/api/admin/v1/products/"+productID.String()+"/variants",
		body, AdminCreateVariant(svc, nil), uuid.New(), enums.ActorRoleAdmin)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, productID, svc.created.ProductID)
	assert.True(t, decimal.RequireFromString("45.5").Equal(svc.created.Price))
	assert.Equal(t, 4, svc.created.Stock)
}

func TestAdminUpdatePriceRejectsBadAmounts(t *testing.T) {
	for _, price := range []string{`"-1"`, `"0"`, `"9.999"`, `"abc"`} {
		svc := &stubCatalog{variant: sampleVariant()}
		rec := serve(t, http.MethodPatch, "/api/admin/v1/variants/{variantId}/price", "/api/admin/v1/variants/"+uuid.NewString()+"/price",
			`{"price":`+price+`}`, AdminUpdatePrice(svc, nil), uuid.New(), enums.ActorRoleAdmin)
		assert.Equal(t, http.StatusBadRequest, rec.Code, price)
		assert.True(t, svc.price.IsZero(), price)
	}
}

func TestAdminRestock(t *testing.T) {
	svc := &stubCatalog{variant: sampleVariant()}
	rec := serve(t, http.MethodPost, "/api/admin/v1/variants/{variantId}/restock", "/api/admin/v1/variants/"+uuid.NewString()+"/restock",
		`{"quantity":12}`, AdminRestock(svc, nil), uuid.New(), enums.ActorRoleAdmin)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 12, svc.restock)
}

func TestAdminSetVariantStatus(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		want   int
		status enums.VariantStatus
	}{
		{"disable", `{"status":"disabled"}`, nil, http.StatusOK, enums.VariantStatusDisabled},
		{"out of stock is automatic", `{"status":"out_of_stock"}`, nil, http.StatusBadRequest, ""},
		{"enable without stock", `{"status":"available"}`, pkgerrors.CannotEnableWithoutStock("v"), http.StatusUnprocessableEntity, enums.VariantStatusAvailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubCatalog{variant: sampleVariant(), err: tt.err}
			rec := serve(t, http.MethodPut, "/api/admin/v1/variants/{variantId}/status", "/api/admin/v1/variants/"+uuid.NewString()+"/status",
				tt.body, AdminSetVariantStatus(svc, nil), uuid.New(), enums.ActorRoleAdmin)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.status, svc.status)
		})
	}
}

func TestAdminDeleteVariantConflict(t *testing.T) {
	svc := &stubCatalog{err: pkgerrors.New(pkgerrors.CodeConflict, "variant is referenced by orders")}
	variantID := uuid.New()
	rec := serve(t, http.MethodDelete, "/api/admin/v1/variants/{variantId}", "/api/admin/v1/variants/"+variantID.String(), "",
		AdminDeleteVariant(svc, nil), uuid.New(), enums.ActorRoleAdmin)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, variantID, svc.deleted)
}
