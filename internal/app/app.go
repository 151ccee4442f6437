// Package app wires the telemetry components together: stores, collector,
// pipeline, retention, query layer, and scheduler.
package app

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/sudoservertools/telemetry/internal/archive"
	"github.com/sudoservertools/telemetry/internal/config"
	"github.com/sudoservertools/telemetry/internal/pipeline"
	"github.com/sudoservertools/telemetry/internal/query"
	"github.com/sudoservertools/telemetry/internal/retention"
	"github.com/sudoservertools/telemetry/internal/scheduler"
	"github.com/sudoservertools/telemetry/internal/server"
	"github.com/sudoservertools/telemetry/internal/snapshot"
	"github.com/sudoservertools/telemetry/internal/storage"
)

// App owns the component graph. One-shot commands construct it, call the
// component they need, and Close; the daemon additionally starts the
// scheduler and listens for signals.
type App struct {
	cfg *config.Config

	snapshots *snapshot.Store
	archive   *archive.Store
	collector *snapshot.Collector
	runner    *pipeline.Runner
	retention *retention.Manager
	queries   *query.Layer
	scheduler *scheduler.Scheduler
	shutdown  *server.ShutdownManager

	mu      sync.Mutex
	running bool
}

// New validates the configuration and builds the component graph. Both
// databases are opened (and created if missing) here.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("app: invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("app: failed to create directories: %w", err)
	}

	a := &App{
		cfg:      cfg,
		shutdown: server.NewShutdownManager(0),
	}

	snapshots, err := snapshot.NewStore(cfg.SnapshotDBPath())
	if err != nil {
		return nil, err
	}
	a.snapshots = snapshots
	a.shutdown.RegisterCloser(snapshots)

	archiveStore, err := archive.NewStore(cfg.ArchiveDBPath())
	if err != nil {
		a.shutdown.Shutdown(ctx, "init failed")
		return nil, err
	}
	a.archive = archiveStore
	a.shutdown.RegisterCloser(archiveStore)

	exporter, err := buildExporter(ctx, cfg)
	if err != nil {
		a.shutdown.Shutdown(ctx, "init failed")
		return nil, err
	}

	a.collector = snapshot.NewCollector(snapshots, cfg.Snapshot.SourceFile)
	a.runner = pipeline.NewRunner(archiveStore, pipeline.SourceDirs{
		Trades:     cfg.Archive.TradesDir,
		LifeEvents: cfg.Archive.LifeEventsDir,
		ItemEvents: cfg.Archive.ItemEventsDir,
	})
	a.retention = retention.NewManager(archiveStore, snapshots, exporter)
	a.queries = query.NewLayer(archiveStore)
	a.scheduler = scheduler.New(cfg, a.collector, a.runner, a.retention)

	return a, nil
}

// buildExporter constructs the cold-storage exporter from configuration,
// or nil when cold storage is disabled.
func buildExporter(ctx context.Context, cfg *config.Config) (*retention.Exporter, error) {
	if !cfg.ColdStorage.Enabled {
		return nil, nil
	}

	var objects storage.ObjectStorage
	switch cfg.ColdStorage.Type {
	case "local":
		local, err := storage.NewLocalStorage(cfg.ColdStorage.Path)
		if err != nil {
			return nil, fmt.Errorf("app: failed to open cold storage: %w", err)
		}
		objects = local
	case "s3":
		s3store, err := storage.NewS3Storage(ctx, cfg.ColdStorage.S3.Bucket, storage.S3Config{
			Region:       cfg.ColdStorage.S3.Region,
			Endpoint:     cfg.ColdStorage.S3.Endpoint,
			UsePathStyle: cfg.ColdStorage.S3.Endpoint != "",
		})
		if err != nil {
			return nil, fmt.Errorf("app: failed to open S3 cold storage: %w", err)
		}
		objects = s3store
	default:
		return nil, fmt.Errorf("app: unknown cold storage type %q", cfg.ColdStorage.Type)
	}

	return retention.NewExporter(objects), nil
}

// Start launches the scheduler. Used by the daemon; one-shot commands skip
// it and call components directly.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app: already running")
	}
	a.running = true
	a.mu.Unlock()

	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	a.shutdown.OnShutdownStart(func() {
		if err := a.scheduler.Stop(); err != nil {
			log.Printf("app: scheduler stop failed: %v", err)
		}
	})

	log.Printf("app: telemetry daemon started (data=%s, profile=%s)", a.cfg.DataDir, a.cfg.ProfileDir)
	return nil
}

// Wait blocks until a shutdown signal arrives, then tears everything down.
func (a *App) Wait(ctx context.Context) error {
	return a.shutdown.ListenForSignals(ctx)
}

// Close tears down without waiting for a signal. Used by one-shot commands.
func (a *App) Close(ctx context.Context) error {
	return a.shutdown.Shutdown(ctx, "close requested")
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Snapshots returns the position snapshot store.
func (a *App) Snapshots() *snapshot.Store { return a.snapshots }

// Collector returns the position snapshot collector.
func (a *App) Collector() *snapshot.Collector { return a.collector }

// Archive returns the archive store.
func (a *App) Archive() *archive.Store { return a.archive }

// Runner returns the archive pipeline runner.
func (a *App) Runner() *pipeline.Runner { return a.runner }

// Retention returns the retention manager.
func (a *App) Retention() *retention.Manager { return a.retention }

// Queries returns the read-only analytics layer.
func (a *App) Queries() *query.Layer { return a.queries }
