package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/docvault/pkg/acls"
	"github.com/platinummonkey/docvault/pkg/config"
	"github.com/platinummonkey/docvault/pkg/documents"
	"github.com/platinummonkey/docvault/pkg/middleware"
	"github.com/platinummonkey/docvault/pkg/observability"
	"github.com/platinummonkey/docvault/pkg/permissions"
	"github.com/platinummonkey/docvault/pkg/roles"
	"github.com/platinummonkey/docvault/pkg/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("invalid configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting docvault")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("docvault exited with error")
		os.Exit(1)
	}
	logger.Info("docvault stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := runMigrations(ctx, db); err != nil {
		return err
	}
	logger.Info("Database migrations applied")

	// Registries are populated during startup and frozen before serving.
	registry := permissions.NewRegistry()
	models := acls.NewModelRegistry()

	docStore := documents.NewStore(db)
	perms, err := documents.Setup(registry, models, docStore)
	if err != nil {
		return err
	}
	aclAPIPerms, err := acls.RegisterAPIPermissions(registry)
	if err != nil {
		return err
	}
	registry.Freeze()
	models.Freeze()

	permStore := permissions.NewStore(db, registry)
	roleStore := roles.NewStore(db)
	aclStore := acls.NewStore(db)
	engine := acls.NewEngine(aclStore, models, permStore, roleStore)

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		defer redisClient.Close()
		engine.SetDecisionCache(acls.NewRedisDecisionCache(redisClient, cfg.Cache.DecisionTTL))
		logger.WithField("addr", cfg.Cache.RedisAddr).Info("Decision cache enabled")
	}

	promRegistry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		engine.SetMetrics(acls.NewMetrics(promRegistry))
	}

	router := mux.NewRouter()
	roles.NewHandlers(roleStore, permStore).RegisterRoutes(router)
	checker := permissions.NewChecker(db)
	acls.NewHandlers(engine, aclStore, models, registry, checker, aclAPIPerms).RegisterRoutes(router)
	documents.NewHandlers(docStore, engine, perms).RegisterRoutes(router)

	var apiHandler http.Handler = middleware.NewAuthMiddleware(roleStore, false).Handler(router)
	httpMetrics := observability.NewHTTPMetrics(promRegistry)
	if cfg.Observability.MetricsEnabled {
		apiHandler = httpMetrics.Middleware(apiHandler)
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      apiHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", httpMetrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("API server shutdown failed")
		}
		return healthServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	components := []struct {
		name       string
		migrations []storage.Migration
	}{
		{permissions.MigrationComponent, permissions.GetMigrations()},
		{roles.MigrationComponent, roles.GetMigrations()},
		{acls.MigrationComponent, acls.GetMigrations()},
		{documents.MigrationComponent, documents.GetMigrations()},
	}
	for _, c := range components {
		if err := storage.RunMigrations(ctx, db, c.name, c.migrations); err != nil {
			return err
		}
	}
	return nil
}
