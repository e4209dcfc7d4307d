package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/threadline-backend/internal/availability"
	"github.com/angelmondragon/threadline-backend/pkg/auth"
	"github.com/angelmondragon/threadline-backend/pkg/config"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	"github.com/angelmondragon/threadline-backend/pkg/metrics"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type emptyCatalog struct{}

func (emptyCatalog) ListProducts(context.Context) ([]availability.ProductView, error) {
	return []availability.ProductView{}, nil
}

func (emptyCatalog) GetProduct(context.Context, uuid.UUID) (*availability.ProductView, error) {
	return &availability.ProductView{}, nil
}

func (emptyCatalog) GetVariant(context.Context, uuid.UUID) (*models.ProductVariant, error) {
	return &models.ProductVariant{}, nil
}

func (emptyCatalog) CreateProduct(_ context.Context, name string) (*models.Product, error) {
	return &models.Product{ID: uuid.New(), Name: name}, nil
}

func (emptyCatalog) CreateVariant(context.Context, availability.CreateVariantInput) (*models.ProductVariant, error) {
	return &models.ProductVariant{}, nil
}

func (emptyCatalog) UpdatePrice(context.Context, uuid.UUID, decimal.Decimal) (*models.ProductVariant, error) {
	return &models.ProductVariant{}, nil
}

func (emptyCatalog) Restock(context.Context, uuid.UUID, int) (*models.ProductVariant, error) {
	return &models.ProductVariant{}, nil
}

func (emptyCatalog) SetManualStatus(context.Context, uuid.UUID, enums.VariantStatus) (*models.ProductVariant, error) {
	return &models.ProductVariant{}, nil
}

func (emptyCatalog) DeleteVariant(context.Context, uuid.UUID) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App:      config.AppConfig{Env: "test", CORSOrigins: []string{"http://localhost:3000"}},
		JWT:      config.JWTConfig{Secret: "router-secret", Issuer: "threadline-test"},
		Payments: config.PaymentsConfig{CallbackSharedKey: "cb-key"},
	}
}

func newTestRouter(t *testing.T) (http.Handler, *config.Config) {
	t.Helper()
	cfg := testConfig()
	reg := prometheus.NewRegistry()
	metrics.NewEngineMetrics(reg)
	router := NewRouter(cfg, nil, Dependencies{
		DB:      stubPinger{},
		Catalog: emptyCatalog{},
		Metrics: reg,
	})
	return router, cfg
}

func bearer(t *testing.T, cfg *config.Config, role enums.ActorRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg.JWT, time.Now(), time.Hour, auth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	require.NoError(t, err)
	return "Bearer " + token
}

func do(router http.Handler, method, target, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t)

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/health/ready", "").Code)

	rec := do(router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPublicCatalogNeedsNoToken(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := do(router, http.MethodGet, "/api/v1/products", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestCustomerRoutesRequireToken(t *testing.T) {
	router, _ := newTestRouter(t)
	for _, target := range []string{"/api/v1/cart", "/api/v1/orders"} {
		assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, target, "").Code, target)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	router, cfg := newTestRouter(t)

	rec := do(router, http.MethodDelete, "/api/admin/v1/variants/"+uuid.NewString(), bearer(t, cfg, enums.ActorRoleCustomer))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(router, http.MethodDelete, "/api/admin/v1/variants/"+uuid.NewString(), bearer(t, cfg, enums.ActorRoleAdmin))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPaymentCallbackRequiresSharedKey(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := do(router, http.MethodGet, "/api/v1/payments/confirm?reference=sq-1&status=approved", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
