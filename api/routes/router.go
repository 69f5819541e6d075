package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/almarky/almarky-backend/api/controllers"
	"github.com/almarky/almarky-backend/api/middleware"
	authsvc "github.com/almarky/almarky-backend/internal/auth"
	"github.com/almarky/almarky-backend/internal/cart"
	"github.com/almarky/almarky-backend/internal/catalog"
	"github.com/almarky/almarky-backend/internal/orders"
	"github.com/almarky/almarky-backend/internal/support"
	"github.com/almarky/almarky-backend/pkg/auth/session"
	"github.com/almarky/almarky-backend/pkg/config"
	"github.com/almarky/almarky-backend/pkg/db"
	"github.com/almarky/almarky-backend/pkg/enums"
	"github.com/almarky/almarky-backend/pkg/logger"
	pkgredis "github.com/almarky/almarky-backend/pkg/redis"
)

// RouterParams bundles everything the HTTP surface needs.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             db.Pinger
	Redis          *pkgredis.Client
	SessionManager session.AccessSessionChecker
	AuthService    authsvc.Service
	CatalogService catalog.Service
	CartService    cart.Service
	OrdersService  orders.Service
	SupportService support.Service
	Metrics        prometheus.Gatherer
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.RateLimit.LoginWindow,
		cfg.RateLimit.LoginIPLimit,
		cfg.RateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.RateLimit.RegisterWindow,
		cfg.RateLimit.RegisterIPLimit,
		cfg.RateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DB, params.Redis))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(registerPolicy, params.Redis, logg)).
			Post("/register", controllers.AuthRegister(params.AuthService, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, params.Redis, logg)).
			Post("/login", controllers.AuthLogin(params.AuthService, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, params.Redis, logg)).
			Post("/admin-login", controllers.AdminAuthLogin(params.AuthService, logg))
		r.Post("/refresh", controllers.AuthRefresh(params.AuthService, logg))
		r.Post("/logout", controllers.AuthLogout(params.AuthService, cfg.JWT, logg))
	})

	// Public storefront surface. Browsing, the session cart, checkout, and
	// order tracking all work without an account.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(cfg.Checkout, params.Redis, logg))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductList(params.CatalogService, logg))
			r.Get("/{productId}", controllers.ProductDetail(params.CatalogService, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(params.CartService, logg))
			r.Post("/items", controllers.CartAdd(params.CartService, logg))
			r.Patch("/items", controllers.CartUpdateQuantity(params.CartService, logg))
			r.Delete("/items/{productId}", controllers.CartRemove(params.CartService, logg))
			r.Delete("/", controllers.CartClear(params.CartService, logg))
		})

		r.With(middleware.OptionalAuth(cfg.JWT, params.SessionManager, logg)).
			Post("/checkout", controllers.Checkout(params.OrdersService, logg))
		r.Post("/orders/track", controllers.OrderTrack(params.OrdersService, logg))
		r.With(middleware.Auth(cfg.JWT, params.SessionManager, logg)).
			Get("/orders", controllers.OrderListMine(params.OrdersService, logg))
		r.Post("/support/chat", controllers.SupportChat(params.SupportService, logg))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, params.SessionManager, logg))
			r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))

			r.Route("/products", func(r chi.Router) {
				r.Post("/", controllers.AdminProductSave(params.CatalogService, logg))
				r.Patch("/{productId}/stock", controllers.AdminProductToggleStock(params.CatalogService, logg))
				r.Delete("/{productId}", controllers.AdminProductDelete(params.CatalogService, logg))
			})
			r.Get("/catalog/status", controllers.AdminCatalogSyncStatus(params.CatalogService, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.AdminOrderList(params.OrdersService, logg))
				r.Get("/{orderId}", controllers.AdminOrderDetail(params.OrdersService, logg))
				r.Patch("/{orderId}/status", controllers.AdminOrderStatusUpdate(params.OrdersService, logg))
			})
		})
	})

	return r
}
