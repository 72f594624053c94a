package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fnordcredit/fnordcredit/internal/cliconfig"
	"github.com/fnordcredit/fnordcredit/internal/server"
	"github.com/fnordcredit/fnordcredit/pkg/events"
	"github.com/fnordcredit/fnordcredit/pkg/jsondb"
	"github.com/fnordcredit/fnordcredit/pkg/log"
	"github.com/fnordcredit/fnordcredit/plugins/loadwatch"
)

const shutdownTimeout = 10 * time.Second

func serve(ctx context.Context, cfg cliconfig.Config) error {
	logger, closeLog, err := cliconfig.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	logger.Info("configuration",
		log.String("storage_prefix", cfg.StoragePrefix),
		log.String("backup_prefix", cfg.BackupPrefix),
		log.Duration("maintenance_interval", cfg.MaintenanceInterval),
		log.Duration("backup_interval", cfg.BackupInterval),
		log.String("dirty_policy", cfg.DirtyPolicy),
		log.String("listen", cfg.ListenAddr))

	storeOpts := []jsondb.Option{
		jsondb.WithLogger(logger),
		jsondb.WithEventHandler(events.LogSink(logger)),
	}
	if cfg.Watch {
		storeOpts = append(storeOpts, loadwatch.WithDefaultLoadWatch())
	}
	store, err := jsondb.New(cfg.StoreConfig(), storeOpts...)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}

	srv := server.New(cfg.ServerConfig(), store, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("start store: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down: received signal")
	case serveErr = <-errCh:
		logger.Error("shutting down: web server stopped", log.Err(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("web server shutdown failed", log.Err(err))
	}
	if err := store.Shutdown(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("stop store: %w", err))
	}
	return serveErr
}
