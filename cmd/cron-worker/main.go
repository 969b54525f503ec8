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

	"github.com/homebase-app/homebase-backend/internal/app"
	"github.com/homebase-app/homebase-backend/internal/cron"
	"github.com/homebase-app/homebase-backend/pkg/config"
	"github.com/homebase-app/homebase-backend/pkg/db"
	"github.com/homebase-app/homebase-backend/pkg/logger"
	"github.com/homebase-app/homebase-backend/pkg/metrics"
	"github.com/homebase-app/homebase-backend/pkg/migrate"
	"github.com/homebase-app/homebase-backend/pkg/redis"
)

func main() {
	runOnce := flag.String("run", "", "run a single job immediately and exit")
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
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
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

	services, err := app.NewServices(context.Background(), app.Params{
		Config:     cfg,
		DB:         dbClient,
		Redis:      redisClient,
		Registerer: prometheus.DefaultRegisterer,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build services", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()
	reconcileJobs, err := cron.ReconcileJobs(services.Reconcile, cfg.Reconcile)
	if err != nil {
		logg.Error(context.Background(), "failed to build reconcile jobs", err)
		os.Exit(1)
	}
	for _, job := range reconcileJobs {
		registry.Register(job)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: services.OutboxRepo,
		Retention:  cfg.Outbox.RetentionDays,
		Schedule:   cfg.Outbox.RetentionCron,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build outbox retention job", err)
		os.Exit(1)
	}
	registry.Register(retention)
	stalled, err := cron.NewStalledEventsJob(cron.StalledEventsJobParams{
		Logger:   logg,
		Events:   services.StripeEvents,
		Gauge:    services.Metrics,
		After:    cfg.Webhook.StalledAfter,
		Schedule: cfg.Webhook.StalledSchedule,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build stalled events job", err)
		os.Exit(1)
	}
	registry.Register(stalled)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey, cfg.Reconcile.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	if *runOnce != "" {
		if err := service.RunNow(ctx, *runOnce); err != nil {
			logg.Error(ctx, "job run failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
