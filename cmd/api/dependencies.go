package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/categorizer"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/enrich"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/handler"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/jobs"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/repository"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/service"
	"github.com/FACorreiaa/bankfeed/pkg/archive"
	"github.com/FACorreiaa/bankfeed/pkg/config"
	"github.com/FACorreiaa/bankfeed/pkg/db"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	Store         repository.Store
	Archive       archive.Archive
	Categorizer   *categorizer.Engine
	Classifier    enrich.Classifier
	Queue         *jobs.Queue
	Pruner        *jobs.Pruner
	ImportService *service.Service
	ImportHandler *handler.Handler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	deps.Store = repository.NewPostgres(deps.DB.Pool)
	deps.Categorizer = categorizer.NewEngine(categorizer.DefaultTable)

	arc, err := archive.NewLocalArchive(cfg.Import.ArchivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to init statement archive: %w", err)
	}
	deps.Archive = arc

	if cfg.Import.EnrichURL != "" {
		deps.Classifier = enrich.NewHTTPClassifier(cfg.Import.EnrichURL, cfg.Import.EnrichTimeout)
	} else {
		deps.Classifier = enrich.Noop{}
	}

	deps.Queue = jobs.NewQueue(cfg.Import.JobWorkers, cfg.Import.JobQueueSize, logger)
	deps.Pruner = jobs.NewPruner(deps.Store, cfg.Import.JobRetention, logger)

	deps.ImportService = service.New(
		deps.Store,
		deps.Classifier,
		deps.Categorizer,
		deps.Queue,
		deps.Archive,
		service.Limits{
			MaxUploadBytes:   cfg.Import.MaxUploadBytes,
			PreviewRows:      cfg.Import.PreviewRows,
			RecentHashWindow: cfg.Import.RecentHashWindow,
			EnrichBatchSize:  100,
			EnrichTimeout:    cfg.Import.EnrichTimeout,
		},
		logger,
	)
	deps.ImportHandler = handler.New(deps.ImportService, logger)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Queue != nil {
		d.Queue.Stop()
	}
	if d.Pruner != nil {
		d.Pruner.Stop()
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
