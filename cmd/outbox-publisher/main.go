package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/almarky/almarky-backend/internal/sheetlog"
	"github.com/almarky/almarky-backend/pkg/config"
	"github.com/almarky/almarky-backend/pkg/db"
	"github.com/almarky/almarky-backend/pkg/db/models"
	"github.com/almarky/almarky-backend/pkg/logger"
	"github.com/almarky/almarky-backend/pkg/migrate"
	"github.com/almarky/almarky-backend/pkg/outbox"
	"github.com/almarky/almarky-backend/pkg/pubsub"
)

// dlqMover binds the outbox repository to its DLQ table so the service only
// sees a single sink.
type dlqMover struct {
	repo *outbox.Repository
	dlq  *outbox.DLQRepository
}

func (m dlqMover) MoveToDLQ(event models.OutboxEvent, cause error) error {
	return m.repo.MoveToDLQ(m.dlq, event, cause)
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "outbox-publisher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "outbox-publisher",
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

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	repo := outbox.NewRepository(dbClient.DB())

	// The sheet mirror is optional; without a webhook URL orders simply are
	// not mirrored.
	var sheet sheetAppender
	if cfg.SheetLog.WebhookURL != "" {
		sheetClient, err := sheetlog.NewClient(cfg.SheetLog, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create sheet client", err)
			os.Exit(1)
		}
		sheet = sheetClient
	}

	service, err := NewService(ServiceParams{
		Config:    cfg,
		Logger:    logg,
		DB:        dbClient,
		PubSub:    pubsubClient,
		Store:     repo,
		DLQ:       dlqMover{repo: repo, dlq: outbox.NewDLQRepository(dbClient.DB())},
		Publisher: newGCPPublisher(pubsubClient.DomainPublisher()),
		Sheet:     sheet,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox publisher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting outbox publisher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox publisher shutting down gracefully")
}
