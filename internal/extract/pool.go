package extract

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/amara-nwosu/docscan/internal/queue"
)

// Pool runs a fixed number of workers against the task queue. Each worker
// handles one job at a time; parallelism across documents comes from the
// worker count, never from splitting a single job.
type Pool struct {
	proc    *Processor
	queue   queue.Queue
	workers int
	logger  *slog.Logger
}

func NewPool(proc *Processor, q queue.Queue, workers int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{proc: proc, queue: q, workers: workers, logger: logger}
}

// Run blocks until ctx is cancelled or the queue shuts down. Failed jobs
// are left unacked so the queue redelivers them after the lease expires.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 1; i <= p.workers; i++ {
		workerID := i
		g.Go(func() error {
			log := p.logger.With("worker_id", workerID)
			log.Info("worker started")
			defer log.Info("worker stopped")
			return p.runWorker(ctx, log)
		})
	}
	return g.Wait()
}

func (p *Pool) runWorker(ctx context.Context, log *slog.Logger) error {
	for {
		d, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			log.Error("dequeue failed", "error", err)
			continue
		}

		if err := p.proc.Process(ctx, d.Job); err != nil {
			// leave the delivery unacked; lease expiry brings it back
			log.Error("processing failed", "document_id", d.Job.DocumentID, "error", err)
			continue
		}
		if err := p.queue.Ack(ctx, d); err != nil && !errors.Is(err, queue.ErrClosed) {
			log.Warn("ack failed", "document_id", d.Job.DocumentID, "error", err)
		}
	}
}
