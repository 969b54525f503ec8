package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/homebase-app/homebase-backend/api"
	"github.com/homebase-app/homebase-backend/api/controllers"
	"github.com/homebase-app/homebase-backend/api/routes"
	"github.com/homebase-app/homebase-backend/internal/app"
	"github.com/homebase-app/homebase-backend/pkg/config"
	"github.com/homebase-app/homebase-backend/pkg/db"
	"github.com/homebase-app/homebase-backend/pkg/logger"
	"github.com/homebase-app/homebase-backend/pkg/migrate"
	"github.com/homebase-app/homebase-backend/pkg/redis"
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

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"instance":    id,
		"serviceKind": cfg.Service.Kind,
	})

	handler := routes.NewRouter(routes.Params{
		Config:    cfg,
		Logger:    logg,
		Webhooks:  services.Webhooks,
		Reconcile: services.Reconcile,
		Checkout:  services.Checkout,
		Ledger:    services.Ledger,
		Readiness: []controllers.Dependency{
			{Name: "postgres", Pinger: dbClient},
			{Name: "redis", Pinger: redisClient},
		},
		RateLimiter: redisClient,
		Gatherer:    prometheus.DefaultGatherer,
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logg.Error(ctx, "failed to listen", err)
		os.Exit(1)
	}
	if !services.Webhooks.Configured() {
		logg.Warn(ctx, "no stripe webhook secrets configured; deliveries will be rejected")
	}
	logg.Info(ctx, "starting api server")

	if err := api.Serve(ctx, api.NewServer(addr, handler), ln, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}
