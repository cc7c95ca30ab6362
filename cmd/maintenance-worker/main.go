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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/smartaccess-backend/internal/cron"
	"github.com/angelmondragon/smartaccess-backend/internal/identities"
	"github.com/angelmondragon/smartaccess-backend/internal/profiles"
	"github.com/angelmondragon/smartaccess-backend/internal/provisioning"
	"github.com/angelmondragon/smartaccess-backend/pkg/config"
	"github.com/angelmondragon/smartaccess-backend/pkg/db"
	"github.com/angelmondragon/smartaccess-backend/pkg/logger"
	"github.com/angelmondragon/smartaccess-backend/pkg/metrics"
	"github.com/angelmondragon/smartaccess-backend/pkg/migrate"
	"github.com/angelmondragon/smartaccess-backend/pkg/outbox"
	"github.com/angelmondragon/smartaccess-backend/pkg/redis"
)

const serviceName = "maintenance-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(context.Background(), logg, "database", err)
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
	requireResource(context.Background(), logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	jobMetrics := metrics.NewJobMetrics(registry)
	accessMetrics := metrics.NewAccessMetrics(registry)

	conn := dbClient.DB()
	outboxRepo := outbox.NewRepository(conn)
	rule, err := provisioning.New(provisioning.Params{
		Profiles: profiles.NewRepository(conn),
		Outbox:   outbox.NewService(outboxRepo, logg),
		Logger:   logg,
		Metrics:  accessMetrics,
	})
	requireResource(context.Background(), logg, "provisioning rule", err)

	repairJob, err := cron.NewProfileRepairJob(cron.ProfileRepairJobParams{
		Logger:      logg,
		DB:          dbClient,
		Identities:  identities.NewRepository(conn),
		Provisioner: rule,
		BatchSize:   cfg.Maintenance.RepairBatchSize,
	})
	requireResource(context.Background(), logg, "profile repair job", err)

	retentionJob, err := cron.NewAuditRetentionJob(cron.AuditRetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Events:        outboxRepo,
		RetentionDays: cfg.Maintenance.AuditRetentionDays,
	})
	requireResource(context.Background(), logg, "audit retention job", err)

	lockName := serviceName + ":" + envOrLocal(cfg.App.Env)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName), 0)
	requireResource(context.Background(), logg, "maintenance lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(repairJob, retentionJob),
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Maintenance.Interval,
	})
	requireResource(context.Background(), logg, "maintenance service", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"interval": cfg.Maintenance.Interval.String(),
	})

	metricsServer := &http.Server{
		Addr:              ":" + cfg.App.Port,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()

	logg.Info(ctx, "starting maintenance worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "maintenance worker stopped unexpectedly", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	logg.Info(ctx, "maintenance worker shutting down gracefully")
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "resource not working: "+resource, err)
	os.Exit(1)
}
