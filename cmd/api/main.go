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
	"gorm.io/gorm"

	"github.com/angelmondragon/smartaccess-backend/api/routes"
	"github.com/angelmondragon/smartaccess-backend/internal/audit"
	"github.com/angelmondragon/smartaccess-backend/internal/auth"
	"github.com/angelmondragon/smartaccess-backend/internal/authz"
	"github.com/angelmondragon/smartaccess-backend/internal/doors"
	"github.com/angelmondragon/smartaccess-backend/internal/identities"
	"github.com/angelmondragon/smartaccess-backend/internal/locks"
	"github.com/angelmondragon/smartaccess-backend/internal/profiles"
	"github.com/angelmondragon/smartaccess-backend/internal/provisioning"
	"github.com/angelmondragon/smartaccess-backend/internal/reports"
	"github.com/angelmondragon/smartaccess-backend/pkg/auth/session"
	"github.com/angelmondragon/smartaccess-backend/pkg/config"
	"github.com/angelmondragon/smartaccess-backend/pkg/db"
	"github.com/angelmondragon/smartaccess-backend/pkg/logger"
	"github.com/angelmondragon/smartaccess-backend/pkg/metrics"
	"github.com/angelmondragon/smartaccess-backend/pkg/migrate"
	"github.com/angelmondragon/smartaccess-backend/pkg/outbox"
	"github.com/angelmondragon/smartaccess-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	requireResource(context.Background(), logg, "session manager", err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	accessMetrics := metrics.NewAccessMetrics(registry)

	conn := dbClient.DB()
	engine := authz.NewEngine(accessMetrics, logg)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	profileRepo := profiles.NewRepository(conn)
	identityRepo := identities.NewRepository(conn)

	rule, err := provisioning.New(provisioning.Params{
		Profiles: profileRepo,
		Outbox:   emitter,
		Logger:   logg,
		Metrics:  accessMetrics,
	})
	requireResource(context.Background(), logg, "provisioning rule", err)

	identityService, err := identities.NewService(identities.ServiceParams{
		Repo:        identityRepo,
		Profiles:    profileRepo,
		Provisioner: rule,
		Tx:          dbClient,
		Authz:       engine,
		Outbox:      emitter,
		Sessions:    sessionManager,
		Password:    cfg.Password,
		Logger:      logg,
	})
	requireResource(context.Background(), logg, "identities service", err)

	authService, err := auth.NewService(auth.ServiceParams{
		Identities:  func(tx *gorm.DB) auth.IdentityStore { return identityRepo.WithTx(tx) },
		Profiles:    profileRepo,
		Provisioner: rule,
		Tx:          dbClient,
		Sessions:    sessionManager,
		JWTConfig:   cfg.JWT,
		Password:    cfg.Password,
		Logger:      logg,
	})
	requireResource(context.Background(), logg, "auth service", err)

	profileService, err := profiles.NewService(profiles.ServiceParams{
		Repo:   profileRepo,
		Tx:     dbClient,
		Authz:  engine,
		Outbox: emitter,
	})
	requireResource(context.Background(), logg, "profiles service", err)

	doorService, err := doors.NewService(doors.ServiceParams{
		Repo:    doors.NewRepository(conn),
		Tx:      dbClient,
		Authz:   engine,
		Outbox:  emitter,
		Metrics: accessMetrics,
	})
	requireResource(context.Background(), logg, "doors service", err)

	lockService, err := locks.NewService(locks.ServiceParams{
		Repo:    locks.NewRepository(conn),
		Tx:      dbClient,
		Authz:   engine,
		Outbox:  emitter,
		Metrics: accessMetrics,
	})
	requireResource(context.Background(), logg, "locks service", err)

	reportService, err := reports.NewService(reports.NewRepository(conn), engine, nil)
	requireResource(context.Background(), logg, "reports service", err)

	auditService, err := audit.NewService(outbox.NewRepository(conn), engine)
	requireResource(context.Background(), logg, "audit service", err)

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
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			DB:          dbClient,
			Redis:       redisClient,
			RateLimiter: redisClient,
			Sessions:    sessionManager,
			Metrics:     registry,
			Auth:        authService,
			Identities:  identityService,
			Profiles:    profileService,
			Doors:       doorService,
			Locks:       lockService,
			Reports:     reportService,
			Audit:       auditService,
		}),
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "resource not working: "+resource, err)
	os.Exit(1)
}
