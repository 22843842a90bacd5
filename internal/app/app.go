// Package app wires configuration, storage and services into the
// bucketadmin processes: the HTTP panel and the MCP stdio server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"bucketadmin/internal/config"
	"bucketadmin/internal/logging"
	mcpserver "bucketadmin/internal/mcp"
	"bucketadmin/internal/secret"
	"bucketadmin/internal/server"
	"bucketadmin/internal/service"
	"bucketadmin/internal/storage"
)

// Version is stamped by the build.
var Version = "dev"

// App owns every long-lived component of a bucketadmin process.
type App struct {
	configPath string
	level      *slog.LevelVar
	logger     *slog.Logger
	logFile    *os.File

	mu  sync.Mutex
	cfg *config.Config

	db        *storage.DB
	secrets   secret.SecretStore
	dbs       *service.DatabaseService
	catalogs  *service.CatalogService
	refresher *service.StatsRefresher
	hub       *server.Hub
	srv       *server.Server
}

// New opens storage and builds the services described by cfg.
// configPath is watched for changes while serving; it may be empty.
func New(cfg *config.Config, configPath string) (*App, error) {
	level := new(slog.LevelVar)
	level.Set(logging.ParseLevel(cfg.LogLevel))

	logger, logFile, err := logging.New(cfg.LogDir, level)
	if err != nil {
		return nil, err
	}

	a := &App{
		configPath: configPath,
		level:      level,
		logger:     logger,
		logFile:    logFile,
		cfg:        cfg,
	}
	if err := a.open(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open() error {
	cfg := a.cfg
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	db, err := storage.New(filepath.Join(cfg.DataDir, "bucketadmin.db"))
	if err != nil {
		return fmt.Errorf("open metadata database: %w", err)
	}
	a.db = db

	secrets, err := secret.New(cfg.Secrets.Type, cfg.Secrets.IdentityPath, cfg.Secrets.StorePath)
	if err != nil {
		return fmt.Errorf("open secret store: %w", err)
	}
	a.secrets = secrets

	a.dbs = service.NewDatabaseService(
		storage.NewDBConnectionStore(db),
		storage.NewSettingsStore(db),
		secrets,
		a.logger,
	)
	a.catalogs = service.NewCatalogService(a.dbs, storage.NewQueryHistoryStore(db), a.logger, service.CatalogOptions{
		QueryTimeout: cfg.Catalog.QueryTimeout.Duration,
		StatsTTL:     cfg.Catalog.StatsTTL.Duration,
		FilesLimit:   cfg.Catalog.FilesLimit,
		Concurrency:  cfg.Refresh.Concurrency,
	})

	a.hub = server.NewHub(a.logger)
	a.refresher = service.NewStatsRefresher(a.catalogs, a.hub, a.logger)
	a.srv = server.New(server.Options{
		Databases:         a.dbs,
		Catalog:           a.catalogs,
		Hub:               a.hub,
		Logger:            a.logger,
		DefaultDBName:     cfg.DefaultDBName,
		AdminUsername:     cfg.Admin.Username,
		AdminPasswordHash: cfg.Admin.PasswordHash,
	})
	return nil
}

// Logger returns the process logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Databases returns the connection profile service.
func (a *App) Databases() *service.DatabaseService { return a.dbs }

// Catalog returns the catalog query service.
func (a *App) Catalog() *service.CatalogService { return a.catalogs }

// Config returns the active configuration.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Serve runs the HTTP panel until ctx is cancelled, then shuts down:
// the server first, then the refresher (awaiting a running refresh),
// then connectors and storage.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.Config()
	if err := a.refresher.Reschedule(cfg.Refresh.Schedule); err != nil {
		return err
	}

	if a.configPath != "" {
		w, err := a.watchConfig(ctx)
		if err != nil {
			a.logger.Warn("config watcher disabled", "path", a.configPath, "error", err)
		} else {
			defer w.Close()
		}
	}

	a.logger.Info("bucketadmin starting", "version", Version, "listen", cfg.Listen, "data_dir", cfg.DataDir)
	serveErr := a.srv.Run(ctx, cfg.Listen)

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.refresher.Stop(stopCtx)
	a.logger.Info("bucketadmin stopped")
	return serveErr
}

// ServeMCP runs the MCP stdio server until the client disconnects.
func (a *App) ServeMCP(ctx context.Context) error {
	srv := mcpserver.New(mcpserver.Deps{
		Database: a.dbs,
		Catalog:  a.catalogs,
		Logger:   a.logger,
		Version:  Version,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Close releases connectors, storage and the log file.
func (a *App) Close() {
	if a.dbs != nil {
		a.dbs.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("close storage", "error", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}
