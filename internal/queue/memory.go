package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryQueue is a channel-backed queue for single-instance deployments and
// tests. Delayed jobs re-enter the channel via timers. It approximates
// at-least-once delivery: a job handed to a consumer that crashes is lost
// with the process, which is acceptable because the stuck-record sweep
// re-enqueues Pending and Processing records whose job disappeared.
type MemoryQueue struct {
	ch     chan Job
	logger *slog.Logger

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
	done   chan struct{}
}

type MemoryOption func(*MemoryQueue)

func WithBufferSize(n int) MemoryOption {
	return func(q *MemoryQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func NewMemoryQueue(logger *slog.Logger, opts ...MemoryOption) *MemoryQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &MemoryQueue{
		ch:     make(chan Job, 256),
		logger: logger,
		timers: make(map[*time.Timer]struct{}),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.mu.Unlock()

	if job.Token == "" {
		job.Token = newToken()
	}
	select {
	case q.ch <- job:
		q.logger.Debug("job enqueued", "document_id", job.DocumentID)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrClosed
	}
}

func (q *MemoryQueue) EnqueueAfter(ctx context.Context, job Job, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, job)
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, t)
		q.mu.Unlock()
		if err := q.Enqueue(context.Background(), job); err != nil {
			q.logger.Warn("delayed enqueue dropped", "document_id", job.DocumentID, "error", err)
		}
	})
	q.timers[t] = struct{}{}
	q.mu.Unlock()
	q.logger.Debug("job scheduled", "document_id", job.DocumentID, "delay", delay)
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	select {
	case job := <-q.ch:
		return &Delivery{Job: job}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.done:
		return nil, ErrClosed
	}
}

func (q *MemoryQueue) Ack(context.Context, *Delivery) error {
	return nil
}

func (q *MemoryQueue) Shutdown(context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for t := range q.timers {
		t.Stop()
	}
	close(q.done)
	q.logger.Info("memory queue shut down")
}

var _ Queue = (*MemoryQueue)(nil)
