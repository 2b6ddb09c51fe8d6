package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amara-nwosu/docscan/constants"
)

func TestMemoryQueueRoundTrip(t *testing.T) {
	q := NewMemoryQueue(nil)
	defer q.Shutdown(context.Background())

	job := Job{DocumentID: uuid.New(), Kind: constants.KindReceipt, SubmittedAt: time.Now()}
	require.NoError(t, q.Enqueue(context.Background(), job))

	d, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, job.DocumentID, d.Job.DocumentID)
	assert.NotEmpty(t, d.Job.Token)
	assert.NoError(t, q.Ack(context.Background(), d))
}

func TestMemoryQueueEnqueueAfter(t *testing.T) {
	q := NewMemoryQueue(nil)
	defer q.Shutdown(context.Background())

	job := Job{DocumentID: uuid.New(), Kind: constants.KindBill}
	start := time.Now()
	require.NoError(t, q.EnqueueAfter(context.Background(), job, 50*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.DocumentID, d.Job.DocumentID)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestMemoryQueueZeroDelayIsImmediate(t *testing.T) {
	q := NewMemoryQueue(nil)
	defer q.Shutdown(context.Background())

	require.NoError(t, q.EnqueueAfter(context.Background(), Job{DocumentID: uuid.New()}, 0))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := q.Dequeue(ctx)
	assert.NoError(t, err)
}

func TestMemoryQueueShutdown(t *testing.T) {
	q := NewMemoryQueue(nil)
	q.Shutdown(context.Background())

	err := q.Enqueue(context.Background(), Job{DocumentID: uuid.New()})
	assert.ErrorIs(t, err, ErrClosed)

	_, err = q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	// second shutdown is a no-op
	q.Shutdown(context.Background())
}

func TestMemoryQueueDequeueHonorsContext(t *testing.T) {
	q := NewMemoryQueue(nil)
	defer q.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
