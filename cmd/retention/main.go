package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amara-nwosu/docscan/internal/blob"
	"github.com/amara-nwosu/docscan/internal/common"
	"github.com/amara-nwosu/docscan/internal/repository"
	"github.com/amara-nwosu/docscan/internal/retention"
)

// One-shot retention sweep, for running out of band (cron) instead of the
// in-process ticker.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gq, pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(pool, logger)

	var blobs blob.Store
	switch cfg.Blob.Driver {
	case "gcs":
		blobs, err = blob.NewGCSStore(ctx, cfg.Blob.GCSBucket, logger)
	default:
		blobs, err = blob.NewFSStore(cfg.Blob.FSRoot, logger)
	}
	if err != nil {
		logger.Error("failed to open blob store", "error", err)
		os.Exit(1)
	}

	reaper := retention.NewReaper(repository.NewDocumentRepository(gq, logger), blobs, logger)
	n, err := reaper.ReapExpired(ctx, time.Now().UTC())
	if err != nil {
		logger.Error("sweep failed", "reaped", n, "error", err)
		os.Exit(1)
	}
	logger.Info("sweep complete", "reaped", n)
}
