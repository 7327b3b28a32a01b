package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coffersTech/nanofilter/internal/config"
	"github.com/coffersTech/nanofilter/internal/engine"
	"github.com/coffersTech/nanofilter/internal/logging"
	"github.com/coffersTech/nanofilter/internal/server"
	"github.com/coffersTech/nanofilter/internal/storage"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the document store HTTP server",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("listen", ":8088", "HTTP listen address")
	f.String("data-dir", "./data", "directory for the WAL and snapshots")
	f.String("log-level", "info", "debug, info, warn or error")
	f.String("log-format", "text", "text or json")
	f.Int("engine-workers", 0, "matcher goroutines (0 = GOMAXPROCS)")
	f.Int("engine-flush-rows", 100000, "flush a collection after this many rows")
	f.Duration("engine-retention", 7*24*time.Hour, "delete snapshots older than this (0 keeps all)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stderr)
	if err != nil {
		return err
	}
	logger.Info("nanofilter starting", "version", version, "data_dir", cfg.DataDir)

	reader, err := storage.NewColumnReader()
	if err != nil {
		return fmt.Errorf("create snapshot reader: %w", err)
	}
	defer reader.Close()
	writer, err := storage.NewColumnWriter(cfg.Snapshot.CompressionLevel)
	if err != nil {
		return fmt.Errorf("create snapshot writer: %w", err)
	}

	eng, err := engine.New(engine.Options{
		DataDir:      cfg.DataDir,
		Retention:    cfg.Engine.Retention,
		MaxTableSize: cfg.Engine.MaxTableMB << 20,
		FlushRows:    cfg.Engine.FlushRows,
		Workers:      cfg.Engine.Workers,
		ShardSize:    cfg.Engine.ShardSize,
		CacheSize:    cfg.Engine.CacheSize,
		Reader:       reader.ReadSnapshot,
		Writer:       writer.WriteSnapshot,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng.StartStatsTicker(ctx, time.Second)
	go eng.RunCleaner(ctx, cfg.Engine.CleanInterval)
	go syncLoop(ctx, eng, cfg.Engine.SyncInterval, logger)

	srv := server.New(eng, server.Options{
		TokenHashes:  cfg.Auth.Tokens,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Logger:       logger,
	})
	if len(cfg.Auth.Tokens) == 0 {
		logger.Warn("no auth tokens configured, API is open")
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen)
		errCh <- srv.Start(cfg.Listen)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("server stopped", "error", serveErr)
		}
	}

	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}

	// Close flushes memory to snapshots.
	if err := eng.Close(); err != nil && !errors.Is(err, engine.ErrClosed) {
		logger.Error("final flush failed", "error", err)
		return errors.Join(serveErr, err)
	}
	logger.Info("nanofilter exited gracefully")
	return serveErr
}

// syncLoop fsyncs the WAL every interval.
func syncLoop(ctx context.Context, eng *engine.Engine, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := eng.SyncWAL(); err != nil {
				logger.Warn("wal sync failed", "error", err)
			}
		}
	}
}
