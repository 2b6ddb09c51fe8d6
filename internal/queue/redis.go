package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a durable at-least-once queue on three Redis structures:
// a pending list, a processing list, and a lease hash. Dequeue atomically
// moves a payload pending→processing and records a lease deadline; Ack
// removes it from processing. A reclaim loop returns payloads whose lease
// expired (worker crash or overrun) to pending, which is where duplicate
// delivery comes from. Delayed jobs wait in a sorted set keyed by ready time.
type RedisQueue struct {
	client     *redis.Client
	logger     *slog.Logger
	name       string
	visibility time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

type RedisConfig struct {
	Addr              string
	Password          string
	DB                int
	Name              string
	VisibilityTimeout time.Duration
	ReclaimInterval   time.Duration
}

func NewRedisQueue(cfg RedisConfig, logger *slog.Logger) *RedisQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "docscan:extract"
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 2 * time.Minute
	}
	if cfg.ReclaimInterval <= 0 {
		cfg.ReclaimInterval = 30 * time.Second
	}

	q := &RedisQueue{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		logger:     logger,
		name:       cfg.Name,
		visibility: cfg.VisibilityTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.wg.Add(2)
	go q.reclaimLoop(ctx, cfg.ReclaimInterval)
	go q.delayedLoop(ctx, cfg.ReclaimInterval)
	return q
}

func (q *RedisQueue) pendingKey() string    { return q.name + ":pending" }
func (q *RedisQueue) processingKey() string { return q.name + ":processing" }
func (q *RedisQueue) leaseKey() string      { return q.name + ":leases" }
func (q *RedisQueue) delayedKey() string    { return q.name + ":delayed" }

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.pendingKey(), payload).Err(); err != nil {
		q.logger.Error("queue.enqueue.failed", "document_id", job.DocumentID, "error", err)
		return fmt.Errorf("lpush job: %w", err)
	}
	q.logger.Debug("job enqueued", "document_id", job.DocumentID)
	return nil
}

func (q *RedisQueue) EnqueueAfter(ctx context.Context, job Job, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, job)
	}
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}
	readyAt := float64(time.Now().Add(delay).UnixMilli())
	if err := q.client.ZAdd(ctx, q.delayedKey(), redis.Z{Score: readyAt, Member: payload}).Err(); err != nil {
		q.logger.Error("queue.enqueue_after.failed", "document_id", job.DocumentID, "error", err)
		return fmt.Errorf("zadd delayed job: %w", err)
	}
	q.logger.Debug("job scheduled", "document_id", job.DocumentID, "delay", delay)
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	for {
		if q.isClosed() {
			return nil, ErrClosed
		}
		// short block so ctx cancellation is honored between polls
		payload, err := q.client.BLMove(ctx, q.pendingKey(), q.processingKey(), "RIGHT", "LEFT", time.Second).Result()
		if err == redis.Nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
				continue
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("blmove: %w", err)
		}

		deadline := time.Now().Add(q.visibility).UnixMilli()
		if err := q.client.HSet(ctx, q.leaseKey(), payload, deadline).Err(); err != nil {
			q.logger.Warn("queue.lease.failed", "error", err)
		}

		job, err := decodeJob(payload)
		if err != nil {
			// poison payload: drop it rather than redeliver forever
			q.logger.Error("queue.decode.failed", "payload", payload, "error", err)
			q.client.LRem(ctx, q.processingKey(), 1, payload)
			q.client.HDel(ctx, q.leaseKey(), payload)
			continue
		}
		return &Delivery{Job: job, payload: payload}, nil
	}
}

func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if d == nil || d.payload == "" {
		return nil
	}
	if err := q.client.LRem(ctx, q.processingKey(), 1, d.payload).Err(); err != nil {
		return fmt.Errorf("lrem processing: %w", err)
	}
	if err := q.client.HDel(ctx, q.leaseKey(), d.payload).Err(); err != nil {
		return fmt.Errorf("hdel lease: %w", err)
	}
	return nil
}

// reclaimLoop returns expired-lease payloads to the pending list.
func (q *RedisQueue) reclaimLoop(ctx context.Context, interval time.Duration) {
	defer q.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.reclaimExpired(ctx)
		}
	}
}

func (q *RedisQueue) reclaimExpired(ctx context.Context) {
	leases, err := q.client.HGetAll(ctx, q.leaseKey()).Result()
	if err != nil {
		if ctx.Err() == nil {
			q.logger.Warn("queue.reclaim.scan_failed", "error", err)
		}
		return
	}
	now := time.Now().UnixMilli()
	for payload, deadlineStr := range leases {
		deadline, err := strconv.ParseInt(deadlineStr, 10, 64)
		if err != nil || deadline > now {
			continue
		}
		removed, err := q.client.LRem(ctx, q.processingKey(), 1, payload).Result()
		if err != nil || removed == 0 {
			q.client.HDel(ctx, q.leaseKey(), payload)
			continue
		}
		q.client.HDel(ctx, q.leaseKey(), payload)
		if err := q.client.LPush(ctx, q.pendingKey(), payload).Err(); err != nil {
			q.logger.Error("queue.reclaim.requeue_failed", "error", err)
			continue
		}
		q.logger.Warn("queue.reclaim.redelivered", "payload_bytes", len(payload))
	}
}

// delayedLoop promotes due delayed jobs into the pending list.
func (q *RedisQueue) delayedLoop(ctx context.Context, interval time.Duration) {
	defer q.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.promoteDue(ctx)
		}
	}
}

func (q *RedisQueue) promoteDue(ctx context.Context) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: 100,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			q.logger.Warn("queue.delayed.scan_failed", "error", err)
		}
		return
	}
	for _, payload := range due {
		removed, err := q.client.ZRem(ctx, q.delayedKey(), payload).Result()
		if err != nil || removed == 0 {
			// another instance promoted it first
			continue
		}
		if err := q.client.LPush(ctx, q.pendingKey(), payload).Err(); err != nil {
			q.logger.Error("queue.delayed.promote_failed", "error", err)
		}
	}
}

func (q *RedisQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *RedisQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()
	select {
	case <-ctx.Done():
		q.logger.Warn("queue shutdown interrupted by context")
	case <-done:
	}
	if err := q.client.Close(); err != nil {
		q.logger.Warn("redis close failed", "error", err)
	}
	q.logger.Info("redis queue shut down")
}

func encodeJob(job Job) (string, error) {
	if job.Token == "" {
		job.Token = newToken()
	}
	b, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode job: %w", err)
	}
	return string(b), nil
}

func decodeJob(payload string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

var _ Queue = (*RedisQueue)(nil)
