package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/venuepay-backend/api"
	"github.com/angelmondragon/venuepay-backend/api/routes"
	"github.com/angelmondragon/venuepay-backend/internal/bookings"
	"github.com/angelmondragon/venuepay-backend/internal/emails"
	"github.com/angelmondragon/venuepay-backend/internal/paymentintents"
	"github.com/angelmondragon/venuepay-backend/internal/paymentplans"
	"github.com/angelmondragon/venuepay-backend/internal/refunds"
	"github.com/angelmondragon/venuepay-backend/internal/reminders"
	"github.com/angelmondragon/venuepay-backend/internal/settlement"
	"github.com/angelmondragon/venuepay-backend/pkg/config"
	"github.com/angelmondragon/venuepay-backend/pkg/db"
	"github.com/angelmondragon/venuepay-backend/pkg/email"
	"github.com/angelmondragon/venuepay-backend/pkg/instance"
	"github.com/angelmondragon/venuepay-backend/pkg/logger"
	"github.com/angelmondragon/venuepay-backend/pkg/metrics"
	"github.com/angelmondragon/venuepay-backend/pkg/migrate"
	"github.com/angelmondragon/venuepay-backend/pkg/redis"
	"github.com/angelmondragon/venuepay-backend/pkg/stripe"
)

const webhookProvider = "stripe"

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
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeAutoRun(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run migrations", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	} else {
		logg.Warn(ctx, "redis not configured; webhook and request idempotency records disabled")
	}

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap stripe", err)
		os.Exit(1)
	}
	gateway, err := stripe.NewGateway(stripeClient)
	if err != nil {
		logg.Error(ctx, "failed to build payment gateway", err)
		os.Exit(1)
	}

	sender, err := email.NewFromConfig(cfg.Sendgrid, logg)
	if err != nil {
		logg.Error(ctx, "failed to build email sender", err)
		os.Exit(1)
	}
	renderer, err := emails.NewRendererFromConfig(cfg.Sendgrid)
	if err != nil {
		logg.Error(ctx, "failed to load email templates", err)
		os.Exit(1)
	}
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)
	go renderer.ReloadOn(ctx, reload, logg)
	notifier, err := emails.NewNotifier(renderer, sender, logg)
	if err != nil {
		logg.Error(ctx, "failed to build notifier", err)
		os.Exit(1)
	}
	defer notifier.Wait()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	bookingRepo := bookings.NewRepository(dbClient.DB())
	intentRepo := paymentintents.NewRepository(dbClient.DB())
	planRepo := paymentplans.NewRepository(dbClient.DB())

	intentService, err := paymentintents.NewService(paymentintents.ServiceParams{
		Repo:              intentRepo,
		Bookings:          bookingRepo,
		Gateway:           gateway,
		Notifier:          notifier,
		TransactionRunner: dbClient,
		Frontend:          cfg.Frontend,
		Payments:          cfg.Payments,
		Metrics:           paymentMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create payment intent service", err)
		os.Exit(1)
	}

	planService, err := paymentplans.NewService(paymentplans.ServiceParams{
		Repo:              planRepo,
		Gateway:           gateway,
		TransactionRunner: dbClient,
		Frontend:          cfg.Frontend,
		Metrics:           paymentMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create payment plan service", err)
		os.Exit(1)
	}

	refundService, err := refunds.NewService(refunds.ServiceParams{
		Bookings: bookingRepo,
		Gateway:  gateway,
		Metrics:  paymentMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create refund service", err)
		os.Exit(1)
	}

	reminderService, err := reminders.NewService(reminders.ServiceParams{
		Repo:     reminders.NewRepository(dbClient.DB()),
		Notifier: notifier,
		Config:   cfg.Reminders,
		Frontend: cfg.Frontend,
		Metrics:  paymentMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create reminder service", err)
		os.Exit(1)
	}

	reconciler, err := settlement.NewReconciler(settlement.ReconcilerParams{
		Intents:           intentRepo,
		Bookings:          bookingRepo,
		Plans:             planRepo,
		TransactionRunner: dbClient,
		Metrics:           paymentMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create settlement reconciler", err)
		os.Exit(1)
	}

	var guard *settlement.IdempotencyGuard
	if redisClient != nil {
		guard, err = settlement.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, webhookProvider)
		if err != nil {
			logg.Error(ctx, "failed to create webhook guard", err)
			os.Exit(1)
		}
	}

	router := routes.NewRouter(routes.Dependencies{
		Config:         cfg,
		Logger:         logg,
		DB:             dbClient,
		Redis:          redisClient,
		PaymentIntents: intentService,
		PaymentPlans:   planService,
		Refunds:        refundService,
		Reminders:      reminderService,
		Settlement:     reconciler,
		WebhookGuard:   guard,
		Stripe:         stripeClient,
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	serverCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(serverCtx, "starting api server")

	server := api.NewServer(addr, router)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(serverCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(serverCtx, "api server shutdown failed", err)
		}
		logg.Info(serverCtx, "api server stopped")
	}
}
