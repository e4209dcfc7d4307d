package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/threadline-backend/api/controllers"
	"github.com/angelmondragon/threadline-backend/api/middleware"
	"github.com/angelmondragon/threadline-backend/internal/cart"
	"github.com/angelmondragon/threadline-backend/internal/orders"
	"github.com/angelmondragon/threadline-backend/internal/payments"
	"github.com/angelmondragon/threadline-backend/pkg/config"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
	"github.com/angelmondragon/threadline-backend/pkg/redis"
)

// RedisStore is everything the HTTP layer needs from Redis.
type RedisStore interface {
	controllers.Pinger
	redis.IdempotencyStore
	middleware.WindowLimiter
}

// Catalog serves both storefront reads and admin writes.
type Catalog interface {
	controllers.CatalogReader
	controllers.CatalogAdmin
}

// Dependencies are the engine services exposed over HTTP.
type Dependencies struct {
	DB       controllers.Pinger
	Redis    RedisStore
	Catalog  Catalog
	Carts    cart.Service
	Orders   orders.Service
	Payments payments.Service
	Metrics  prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var store redis.IdempotencyStore
	var limiter middleware.WindowLimiter
	pingers := map[string]controllers.Pinger{"postgres": deps.DB}
	if deps.Redis != nil {
		store = deps.Redis
		limiter = deps.Redis
		pingers["redis"] = deps.Redis
	}

	idempotent := middleware.Idempotency(store, logg)
	window := cfg.RateLimit.Window
	cartLimit := middleware.RateLimit(policy("cart", cfg.RateLimit.Cart, window), limiter, logg)
	checkoutLimit := middleware.RateLimit(policy("checkout", cfg.RateLimit.Checkout, window), limiter, logg)
	callbackLimit := middleware.RateLimit(policy("payment_callback", cfg.RateLimit.Callback, window), limiter, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, pingers, logg))
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", controllers.ListProducts(deps.Catalog, logg))
		r.Get("/products/{productId}", controllers.GetProduct(deps.Catalog, logg))
		r.Get("/variants/{variantId}", controllers.GetVariant(deps.Catalog, logg))

		r.Group(func(r chi.Router) {
			r.Use(callbackLimit, middleware.CallbackKey(cfg.Payments.CallbackSharedKey, logg))
			confirm := controllers.ConfirmPayment(deps.Payments, logg)
			r.Get("/payments/confirm", confirm)
			r.Post("/payments/confirm", confirm)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireRole(logg, enums.ActorRoleCustomer, enums.ActorRoleAdmin))

			r.Get("/cart", controllers.CartFetch(deps.Carts, logg))
			r.With(cartLimit, idempotent).Post("/cart/holds", controllers.CartAddHold(deps.Carts, logg))
			r.With(cartLimit).Delete("/cart/holds/{variantId}", controllers.CartReleaseUnit(deps.Carts, logg))
			r.With(cartLimit).Delete("/cart", controllers.CartClear(deps.Carts, logg))

			r.With(checkoutLimit, idempotent).Post("/checkout", controllers.Checkout(deps.Orders, logg))

			r.Get("/orders", controllers.ListMyOrders(deps.Orders, logg))
			r.Get("/orders/{orderId}", controllers.GetMyOrder(deps.Orders, logg))
			r.With(checkoutLimit, idempotent).Post("/orders/{orderId}/payment-link",
				controllers.CreatePaymentLink(deps.Orders, deps.Payments, cfg.Payments.ReturnURL, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))

		r.Post("/products", controllers.AdminCreateProduct(deps.Catalog, logg))
		r.Post("/products/{productId}/variants", controllers.AdminCreateVariant(deps.Catalog, logg))
		r.Patch("/variants/{variantId}/price", controllers.AdminUpdatePrice(deps.Catalog, logg))
		r.With(idempotent).Post("/variants/{variantId}/restock", controllers.AdminRestock(deps.Catalog, logg))
		r.Put("/variants/{variantId}/status", controllers.AdminSetVariantStatus(deps.Catalog, logg))
		r.Delete("/variants/{variantId}", controllers.AdminDeleteVariant(deps.Catalog, logg))

		r.Get("/orders/stale", controllers.AdminListStaleOrders(deps.Orders, logg))
		r.Get("/orders/{orderId}", controllers.AdminGetOrder(deps.Orders, logg))
		r.With(idempotent).Post("/orders/{orderId}/status", controllers.AdminAdvanceOrderStatus(deps.Orders, logg))
		r.With(idempotent).Post("/orders/{orderId}/cancel", controllers.AdminCancelOrder(deps.Orders, logg))
	})

	return r
}

func policy(name string, limit int, window time.Duration) middleware.RateLimitPolicy {
	return middleware.RateLimitPolicy{Name: name, Limit: limit, Window: window}
}
