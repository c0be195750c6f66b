package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/venuepay-backend/internal/bookings"
	"github.com/angelmondragon/venuepay-backend/internal/cron"
	"github.com/angelmondragon/venuepay-backend/internal/emails"
	"github.com/angelmondragon/venuepay-backend/internal/paymentintents"
	"github.com/angelmondragon/venuepay-backend/internal/reminders"
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

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit, for external schedulers")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	var lock cron.Lock = cron.NewLocalLock()
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		lock, err = cron.NewRedisLock(redisClient, redisClient.LockKey(cron.LockKey+":"+cfg.App.Env), 0)
		if err != nil {
			logg.Error(ctx, "failed to create cron lock", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(ctx, "redis not configured; cron lock is local to this process")
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

	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)

	intentService, err := paymentintents.NewService(paymentintents.ServiceParams{
		Repo:              paymentintents.NewRepository(dbClient.DB()),
		Bookings:          bookings.NewRepository(dbClient.DB()),
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

	remindersJob, err := cron.NewPaymentRemindersJob(logg, reminderService, nil)
	if err != nil {
		logg.Error(ctx, "failed to create reminders job", err)
		os.Exit(1)
	}
	expiryJob, err := cron.NewIntentExpiryJob(logg, intentService, nil)
	if err != nil {
		logg.Error(ctx, "failed to create expiry job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(expiryJob, remindersJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Reminders.CronInterval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
		"interval":    cfg.Reminders.CronInterval.String(),
		"jobs":        registry.Names(),
	})
	if *once {
		ran, err := service.RunOnce(ctx)
		if err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		logg.Info(logg.WithField(ctx, "ran", ran), "single cron cycle finished")
		return
	}

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
