package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/deepanshucode1-cmd/trisikha-backend/api/routes"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/cancellation"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/checkout"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/notifications"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/orders"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/returns"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/shipping"
	"github.com/deepanshucode1-cmd/trisikha-backend/internal/webhooks"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/config"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/db"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/env"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/logger"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/mailer"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/metrics"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/migrate"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/outbox"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/razorpay"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/redis"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/shiprocket"
	s3storage "github.com/deepanshucode1-cmd/trisikha-backend/pkg/storage/s3"
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

	razorpayClient, err := razorpay.NewClient(context.Background(), cfg.Razorpay, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create razorpay client", err)
		os.Exit(1)
	}

	shiprocketClient, err := shiprocket.NewClient(cfg.Shiprocket, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create shiprocket client", err)
		os.Exit(1)
	}

	photoStore, err := s3storage.New(context.Background(), cfg.AWS, cfg.Storage)
	if err != nil {
		logg.Error(context.Background(), "failed to create s3 client", err)
		os.Exit(1)
	}

	mailClient := mailer.New(cfg.Mail, logg)
	webhookMetrics := metrics.NewWebhookMetrics(prometheus.DefaultRegisterer)

	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)
	notifyQueue := notifications.NewQueue(outboxService)
	flusher := notifications.NewFlusher(
		outboxRepo,
		mailClient,
		logg,
		cfg.Outbox.FlushBatchSize,
		cfg.Outbox.MaxAttempts,
		cfg.Outbox.RetryBase,
	)

	ordersRepo := orders.NewRepository(dbClient.DB())
	ordersService := orders.NewService(ordersRepo)

	checkoutService, err := checkout.NewService(ordersRepo, dbClient, razorpayClient, notifyQueue, flusher)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	cancellationService, err := cancellation.NewService(
		ordersRepo,
		dbClient,
		redisClient,
		razorpayClient,
		shiprocketClient,
		mailClient,
		notifyQueue,
		flusher,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create cancellation service", err)
		os.Exit(1)
	}

	returnsService, err := returns.NewService(
		ordersRepo,
		dbClient,
		razorpayClient,
		shiprocketClient,
		photoStore,
		notifyQueue,
		flusher,
		logg,
		cfg.Shiprocket.PickupLocation,
		cfg.Returns.WindowDays,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create returns service", err)
		os.Exit(1)
	}

	shippingService, err := shipping.NewService(
		ordersRepo,
		shiprocketClient,
		logg,
		cfg.Shiprocket.PickupLocation,
		cfg.Shiprocket.PickupPincode,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create shipping service", err)
		os.Exit(1)
	}

	eventStore := webhooks.NewEventStore(dbClient.DB())
	razorpayWebhook := webhooks.NewRazorpayProcessor(
		ordersRepo, dbClient, eventStore, razorpayClient, notifyQueue, flusher, webhookMetrics, logg)
	shiprocketWebhook := webhooks.NewShiprocketProcessor(
		ordersRepo, dbClient, eventStore, cfg.Shiprocket.WebhookSecret, notifyQueue, flusher, webhookMetrics, logg)

	addr := ":" + env.Get("PORT", cfg.App.Port)
	id := env.Get("DYNO", "local")
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			checkoutService,
			ordersService,
			ordersRepo,
			cancellationService,
			returnsService,
			shippingService,
			razorpayWebhook,
			shiprocketWebhook,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
