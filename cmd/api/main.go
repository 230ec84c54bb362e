package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"refdata/docs"
	"refdata/internal/auth"
	"refdata/internal/cache"
	"refdata/internal/config"
	"refdata/internal/database"
	"refdata/internal/database/migration"
	handlers "refdata/internal/http/handler"
	"refdata/internal/http/middleware"
	"refdata/internal/logger"
	appotel "refdata/internal/otel"
	"refdata/internal/repository/postgres"
	"refdata/internal/resource"
	"refdata/internal/service"
	"refdata/internal/storage"
)

var version = "dev"

// @title Reference Data API
// @version 1.0
// @description Read-only access to EEDM reference data resources.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := config.Load()

	log := logger.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("server_exit", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	time.Local = cfg.Location()

	shutdownTracing, err := appotel.Init(ctx, "refdata", version, log)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing_shutdown_failed", zap.Error(err))
		}
	}()

	keys, err := auth.ParseKeyStore(cfg.APIKeys)
	if err != nil {
		return err
	}
	if !keys.Enabled() {
		log.Warn("auth_disabled", zap.String("reason", "API_KEYS is empty, requests run as anonymous"))
	}

	db, err := database.NewPostgres(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.Migrate {
		if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	checks := map[string]handlers.Check{
		"postgres": db.PingContext,
	}

	var store cache.Cache
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn("cache_unavailable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		} else {
			defer client.Close()
			metrics, err := cache.NewMetrics(reg)
			if err != nil {
				return err
			}
			rc := cache.NewRedisCache(client, cfg.Redis.Prefix, cfg.Redis.TTL, metrics)
			store = rc
			checks["redis"] = rc.Ping
		}
	}

	catalog := resource.Default()
	repo := postgres.NewReferencePostgres(db)
	refSvc := service.NewReferenceService(catalog, repo, store, log)

	var snapSvc service.SnapshotService
	if cfg.MinIO.Endpoint != "" {
		objStore, err := storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			log.Warn("snapshots_disabled", zap.String("endpoint", cfg.MinIO.Endpoint), zap.Error(err))
		} else {
			snapSvc = service.NewSnapshotService(catalog, repo, objStore, cfg.SnapshotExpiry, log)
			checks["minio"] = objStore.Ping
		}
	}

	promMw, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		AppName:               "refdata",
		DisableStartupMessage: true,
		ErrorHandler:          handlers.ErrorHandler(log),
	})

	app.Use(otelfiber.Middleware(otelfiber.WithNext(func(c *fiber.Ctx) bool {
		return c.Path() == "/metrics" || c.Path() == "/healthz"
	})))
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log))
	app.Use(promMw.Handler())
	app.Use(middleware.Recover(log))

	docs.SwaggerInfo.Host = cfg.AppHost
	docs.SwaggerInfo.Version = version

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	handlers.RegisterRoutes(app, handlers.Deps{
		Catalog:    catalog,
		References: refSvc,
		Snapshots:  snapSvc,
		Keys:       keys,
		Checks:     checks,
		Gatherer:   reg,
		Log:        log,
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info("server_start",
			zap.String("addr", addr),
			zap.Int("resources", len(catalog.All())),
			zap.Bool("cache", store != nil),
			zap.Bool("snapshots", snapSvc != nil),
		)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("server_shutdown")
	return app.ShutdownWithTimeout(10 * time.Second)
}
