package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/almarky/almarky-backend/api/routes"
	"github.com/almarky/almarky-backend/internal/auth"
	"github.com/almarky/almarky-backend/internal/cart"
	"github.com/almarky/almarky-backend/internal/catalog"
	"github.com/almarky/almarky-backend/internal/catalog/githubstore"
	"github.com/almarky/almarky-backend/internal/media"
	"github.com/almarky/almarky-backend/internal/orders"
	"github.com/almarky/almarky-backend/internal/support"
	"github.com/almarky/almarky-backend/internal/users"
	"github.com/almarky/almarky-backend/pkg/auth/session"
	"github.com/almarky/almarky-backend/pkg/config"
	"github.com/almarky/almarky-backend/pkg/db"
	"github.com/almarky/almarky-backend/pkg/logger"
	"github.com/almarky/almarky-backend/pkg/metrics"
	"github.com/almarky/almarky-backend/pkg/migrate"
	"github.com/almarky/almarky-backend/pkg/outbox"
	"github.com/almarky/almarky-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	storeMetrics := metrics.NewStorefrontMetrics(registry)

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       users.NewRepository(dbClient.DB()),
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	catalogStore, err := githubstore.New(cfg.Catalog)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog store", err)
		os.Exit(1)
	}

	snapshotCache, err := catalog.NewSnapshotCache(redisClient, cfg.Catalog.CacheTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog cache", err)
		os.Exit(1)
	}

	uploader, err := media.NewService(cfg.Cloudinary, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create media uploader", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	catalogService, err := catalog.NewService(
		catalogStore,
		snapshotCache,
		uploader,
		dbClient,
		outboxService,
		storeMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	cartService, err := cart.NewService(redisClient, catalogService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:    orders.NewRepository(dbClient.DB()),
		Tx:      dbClient,
		Carts:   cartService,
		Events:  outboxService,
		Metrics: storeMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	// The support assistant is optional; without a model API key the endpoint
	// reports itself unavailable instead of blocking startup.
	var supportService support.Service
	if cfg.Support.GeminiAPIKey != "" {
		supportService, err = support.NewService(context.Background(), support.ServiceParams{
			Config:  cfg.Support,
			Catalog: catalogService,
			Logger:  logg,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create support service", err)
			os.Exit(1)
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			SessionManager: sessionManager,
			AuthService:    authService,
			CatalogService: catalogService,
			CartService:    cartService,
			OrdersService:  ordersService,
			SupportService: supportService,
			Metrics:        registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
