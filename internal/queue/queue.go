package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/amara-nwosu/docscan/constants"
)

// Job is the minimal payload carried by the queue: everything else lives in
// the record store, so a redelivered job always operates on current truth.
type Job struct {
	DocumentID  uuid.UUID              `json:"document_id"`
	Kind        constants.DocumentKind `json:"kind"`
	SubmittedAt time.Time              `json:"submitted_at"`
	Token       string                 `json:"token"` // per-delivery nonce
}

// Delivery is one received job plus whatever the implementation needs to
// acknowledge it.
type Delivery struct {
	Job     Job
	payload string
}

// ErrClosed is returned by operations on a queue after Shutdown.
var ErrClosed = errors.New("queue is closed")

// Queue carries extraction jobs with at-least-once delivery. Consumers must
// tolerate duplicate deliveries of the same job.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// EnqueueAfter schedules a job to become deliverable after delay.
	EnqueueAfter(ctx context.Context, job Job, delay time.Duration) error
	// Dequeue blocks until a job is available, ctx is done, or the queue is
	// shut down.
	Dequeue(ctx context.Context) (*Delivery, error)
	// Ack marks a delivery done. An unacked delivery is eventually
	// redelivered (lease expiry on durable implementations).
	Ack(ctx context.Context, d *Delivery) error
	Shutdown(ctx context.Context)
}

func newToken() string {
	return uuid.New().String()
}
