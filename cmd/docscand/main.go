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
	"github.com/amara-nwosu/docscan/internal/extract"
	"github.com/amara-nwosu/docscan/internal/ingest"
	"github.com/amara-nwosu/docscan/internal/metrics"
	"github.com/amara-nwosu/docscan/internal/provider"
	"github.com/amara-nwosu/docscan/internal/provider/local"
	"github.com/amara-nwosu/docscan/internal/provider/remote"
	"github.com/amara-nwosu/docscan/internal/queue"
	"github.com/amara-nwosu/docscan/internal/repository"
	"github.com/amara-nwosu/docscan/internal/retention"
	"github.com/amara-nwosu/docscan/internal/server"
)

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

	if err := repository.HealthCheck(ctx, pool, 5*time.Second, logger); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if err := repository.Migrate(ctx, pool, cfg.Database.Driver, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	blobs, err := newBlobStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open blob store", "error", err)
		os.Exit(1)
	}

	q, err := newQueue(cfg, logger)
	if err != nil {
		logger.Error("failed to open queue", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewInProcess()
	docsRepo := repository.NewDocumentRepository(gq, logger)
	extractor := newExtractor(cfg, logger)

	processor := extract.NewProcessor(docsRepo, blobs, extractor, q, extract.Settings{
		SuccessThreshold: cfg.Extract.SuccessThreshold,
		ReviewThreshold:  cfg.Extract.ReviewThreshold,
		MaxAttempts:      cfg.Extract.MaxAttempts,
		BackoffBase:      cfg.Extract.BackoffBase,
		ProviderTimeout:  cfg.Extract.ProviderTimeout,
	}, logger, extract.WithMetrics(collector))
	workers := extract.NewPool(processor, q, cfg.Extract.Workers, logger)

	ingestSvc := ingest.NewService(docsRepo, blobs, q,
		cfg.Server.MaxUploadBytes, cfg.Retention.Window, logger,
		ingest.WithMetrics(collector))

	reaper := retention.NewReaper(docsRepo, blobs, logger, retention.WithMetrics(collector))

	srv := server.New(ingestSvc, pool, cfg.Server.HTTPAddr, cfg.Server.MaxUploadBytes, logger)

	poolDone := make(chan error, 1)
	go func() { poolDone <- workers.Run(ctx) }()
	go reaper.Run(ctx, cfg.Retention.SweepInterval)
	go ingestSvc.SweepLoop(ctx, cfg.Extract.StuckAfter, cfg.Extract.StuckAfter, 200)
	go collector.FlushLoop(ctx.Done(), time.Minute, logger)

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Error("http serve error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	q.Shutdown(shutdownCtx)
	if err := <-poolDone; err != nil {
		logger.Warn("worker pool exited with error", "error", err)
	}
	collector.Flush(logger)
}

func newBlobStore(ctx context.Context, cfg *common.Config, logger *slog.Logger) (blob.Store, error) {
	switch cfg.Blob.Driver {
	case "gcs":
		return blob.NewGCSStore(ctx, cfg.Blob.GCSBucket, logger)
	default:
		return blob.NewFSStore(cfg.Blob.FSRoot, logger)
	}
}

func newQueue(cfg *common.Config, logger *slog.Logger) (queue.Queue, error) {
	switch cfg.Queue.Driver {
	case "redis":
		return queue.NewRedisQueue(queue.RedisConfig{
			Addr:              cfg.Queue.RedisAddr,
			Password:          cfg.Queue.RedisPassword,
			DB:                cfg.Queue.RedisDB,
			Name:              cfg.Queue.Name,
			VisibilityTimeout: cfg.Queue.VisibilityTimeout,
			ReclaimInterval:   cfg.Queue.ReclaimInterval,
		}, logger), nil
	default:
		return queue.NewMemoryQueue(logger, queue.WithBufferSize(cfg.Queue.BufferSize)), nil
	}
}

func newExtractor(cfg *common.Config, logger *slog.Logger) provider.Extractor {
	if cfg.Extract.Provider == "local" {
		return local.NewExtractor(local.Config{
			Tesseract:     cfg.Extract.Tesseract,
			TesseractLang: cfg.Extract.TesseractLang,
			TessdataDir:   cfg.Extract.TessdataDir,
		}, logger)
	}
	return remote.NewClient(remote.Config{
		BaseURL: cfg.Extract.RemoteBaseURL,
		APIKey:  cfg.Extract.RemoteAPIKey,
		Timeout: cfg.Extract.ProviderTimeout,
	}, logger)
}
