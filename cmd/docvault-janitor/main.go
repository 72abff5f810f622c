// The docvault-janitor removes stored permissions that no longer resolve
// against the live permission registry, typically after a deploy renames or
// retires a permission. It runs on a cron schedule or once with -run-once.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/docvault/pkg/acls"
	"github.com/platinummonkey/docvault/pkg/config"
	"github.com/platinummonkey/docvault/pkg/documents"
	"github.com/platinummonkey/docvault/pkg/permissions"
	"github.com/platinummonkey/docvault/pkg/storage"
)

var (
	runOnce  = flag.Bool("run-once", false, "Run the purge once and exit")
	schedule = flag.String("schedule", "", "Cron schedule for the purge (overrides DOCVAULT_JANITOR_SCHEDULE)")
	logLevel = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	logger := setupLogger(*logLevel)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}
	if *schedule != "" {
		cfg.Janitor.Schedule = *schedule
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// The registry is rebuilt from the same registrations the API server
	// makes, so a purge only removes permissions the running code no longer
	// declares.
	registry := permissions.NewRegistry()
	models := acls.NewModelRegistry()
	if _, err := documents.Setup(registry, models, documents.NewStore(db)); err != nil {
		logger.Fatalf("Failed to register permissions: %v", err)
	}
	if _, err := acls.RegisterAPIPermissions(registry); err != nil {
		logger.Fatalf("Failed to register permissions: %v", err)
	}
	registry.Freeze()
	models.Freeze()

	store := permissions.NewStore(db, registry)

	if *runOnce {
		if err := purge(ctx, store, logger); err != nil {
			logger.Fatalf("Purge failed: %v", err)
		}
		return
	}

	c := cron.New()
	_, err = c.AddFunc(cfg.Janitor.Schedule, func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := purge(runCtx, store, logger); err != nil {
			logger.Errorf("Purge failed: %v", err)
		}
	})
	if err != nil {
		logger.Fatalf("Failed to schedule purge: %v", err)
	}

	c.Start()
	logger.Infof("Janitor started with schedule %q", cfg.Janitor.Schedule)

	<-ctx.Done()
	logger.Info("Shutting down")

	stopCtx := c.Stop()
	<-stopCtx.Done()
}

func purge(ctx context.Context, store *permissions.Store, logger *logrus.Logger) error {
	start := time.Now()
	purged, err := store.PurgeObsolete(ctx)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"purged":   purged,
		"duration": time.Since(start),
	}).Info("Purge completed")
	return nil
}

func setupLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}
