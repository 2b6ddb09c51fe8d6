package retention

import (
	"context"
	"errors"
	"time"

	"log/slog"

	"github.com/amara-nwosu/docscan/internal/blob"
	"github.com/amara-nwosu/docscan/internal/metrics"
	"github.com/amara-nwosu/docscan/internal/repository"
)

const defaultBatchSize = 200

// Reaper deletes document records and their blobs once the retention
// window has passed. It only ever touches records past their deadline, so
// it is safe to run alongside in-flight extraction of other records, and
// concurrent sweeps simply race to delete the same rows: the loser finds
// nothing.
type Reaper struct {
	repo    repository.DocumentRepository
	blobs   blob.Store
	metrics metrics.Collector
	logger  *slog.Logger
	batch   int
}

type Option func(*Reaper)

// WithBatchSize caps how many expired records one sweep pass loads.
func WithBatchSize(n int) Option {
	return func(r *Reaper) {
		if n > 0 {
			r.batch = n
		}
	}
}

// WithMetrics replaces the metrics collector.
func WithMetrics(m metrics.Collector) Option {
	return func(r *Reaper) {
		if m != nil {
			r.metrics = m
		}
	}
}

func NewReaper(repo repository.DocumentRepository, blobs blob.Store, logger *slog.Logger, opts ...Option) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reaper{
		repo:    repo,
		blobs:   blobs,
		metrics: metrics.Nop{},
		logger:  logger,
		batch:   defaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReapExpired deletes every record with expiresAt at or before now and
// returns how many records this call removed. Blob deletion happens first;
// a record whose blob delete fails is skipped and retried on the next
// sweep rather than left pointing at storage that was already reclaimed.
func (r *Reaper) ReapExpired(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for {
		docs, err := r.repo.ListExpired(ctx, now, r.batch)
		if err != nil {
			return total, err
		}
		if len(docs) == 0 {
			break
		}
		progressed := false
		for _, doc := range docs {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			if err := r.blobs.Delete(ctx, doc.BlobRef); err != nil && !errors.Is(err, blob.ErrNotFound) {
				r.logger.Warn("retention.blob_delete_failed", "document_id", doc.ID, "error", err)
				continue
			}
			ok, err := r.repo.DeleteByID(ctx, doc.ID)
			if err != nil {
				r.logger.Warn("retention.record_delete_failed", "document_id", doc.ID, "error", err)
				continue
			}
			progressed = true
			if ok {
				total++
			}
			// !ok means a concurrent sweep got there first; nothing to count
		}
		if !progressed {
			break
		}
		if len(docs) < r.batch {
			break
		}
	}
	if total > 0 {
		r.metrics.DocumentsReaped(total)
		r.logger.Info("retention.reaped", "count", total)
	}
	return total, nil
}

// Run sweeps on a ticker until ctx is done.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	r.logger.Info("retention reaper started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("retention reaper stopped")
			return
		case <-t.C:
			if _, err := r.ReapExpired(ctx, time.Now().UTC()); err != nil && ctx.Err() == nil {
				r.logger.Error("retention.sweep_failed", "error", err)
			}
		}
	}
}
