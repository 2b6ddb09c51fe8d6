package ingest_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amara-nwosu/docscan/constants"
	"github.com/amara-nwosu/docscan/internal/blob"
	"github.com/amara-nwosu/docscan/internal/common"
	"github.com/amara-nwosu/docscan/internal/entity"
	"github.com/amara-nwosu/docscan/internal/ingest"
	"github.com/amara-nwosu/docscan/internal/queue"
	"github.com/amara-nwosu/docscan/internal/repository"
)

var jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("fake jpeg payload")...)

type countingQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
}

func (q *countingQueue) Enqueue(_ context.Context, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *countingQueue) EnqueueAfter(ctx context.Context, job queue.Job, _ time.Duration) error {
	return q.Enqueue(ctx, job)
}

func (q *countingQueue) Dequeue(context.Context) (*queue.Delivery, error) {
	return nil, queue.ErrClosed
}

func (q *countingQueue) Ack(context.Context, *queue.Delivery) error { return nil }

func (q *countingQueue) Shutdown(context.Context) {}

func (q *countingQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func newTestService(t *testing.T) (*ingest.Service, repository.DocumentRepository, *countingQueue) {
	t.Helper()
	ctx := context.Background()

	gq, db, err := repository.Open(ctx, common.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repository.Migrate(ctx, db, "sqlite", nil))
	repo := repository.NewDocumentRepository(gq, nil)

	blobs, err := blob.NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)

	q := &countingQueue{}
	svc := ingest.NewService(repo, blobs, q, 10<<20, 365*24*time.Hour, nil)
	return svc, repo, q
}

func TestSubmitAcceptsAndEnqueues(t *testing.T) {
	svc, _, q := newTestService(t)
	owner := uuid.New()

	res, err := svc.Submit(context.Background(), ingest.SubmitRequest{
		OwnerID:  owner,
		Kind:     constants.KindReceipt,
		Filename: "receipt.jpg",
		Data:     jpegBytes,
	})
	require.NoError(t, err)
	assert.True(t, res.JobAccepted)
	assert.Equal(t, constants.StatusPending, res.Document.Status)
	assert.Equal(t, owner, res.Document.OwnerID)
	assert.Len(t, res.Document.ContentHash, 32)
	assert.WithinDuration(t, time.Now().Add(365*24*time.Hour), res.Document.ExpiresAt, time.Minute)

	require.Equal(t, 1, q.count())
	assert.Equal(t, res.Document.ID, q.jobs[0].DocumentID)
}

func TestSubmitDeduplicatesSameBytes(t *testing.T) {
	svc, _, q := newTestService(t)
	owner := uuid.New()
	ctx := context.Background()

	first, err := svc.Submit(ctx, ingest.SubmitRequest{
		OwnerID: owner, Kind: constants.KindReceipt, Filename: "a.jpg", Data: jpegBytes,
	})
	require.NoError(t, err)

	second, err := svc.Submit(ctx, ingest.SubmitRequest{
		OwnerID: owner, Kind: constants.KindReceipt, Filename: "copy-of-a.jpg", Data: jpegBytes,
	})
	require.NoError(t, err)

	assert.Equal(t, first.Document.ID, second.Document.ID)
	assert.False(t, second.JobAccepted)
	assert.Equal(t, 1, q.count(), "duplicate upload enqueues no second job")
}

func TestSubmitSameBytesDifferentOwners(t *testing.T) {
	svc, _, q := newTestService(t)
	ctx := context.Background()

	first, err := svc.Submit(ctx, ingest.SubmitRequest{
		OwnerID: uuid.New(), Kind: constants.KindReceipt, Data: jpegBytes,
	})
	require.NoError(t, err)
	second, err := svc.Submit(ctx, ingest.SubmitRequest{
		OwnerID: uuid.New(), Kind: constants.KindReceipt, Data: jpegBytes,
	})
	require.NoError(t, err)

	assert.NotEqual(t, first.Document.ID, second.Document.ID)
	assert.True(t, second.JobAccepted)
	assert.Equal(t, 2, q.count())
}

func TestSubmitRejectsBadInput(t *testing.T) {
	svc, _, q := newTestService(t)
	owner := uuid.New()

	big := make([]byte, (10<<20)+1)
	copy(big, jpegBytes)

	tests := []struct {
		name string
		req  ingest.SubmitRequest
	}{
		{"missing owner", ingest.SubmitRequest{Kind: constants.KindReceipt, Data: jpegBytes}},
		{"unknown kind", ingest.SubmitRequest{OwnerID: owner, Kind: "INVOICE", Data: jpegBytes}},
		{"empty payload", ingest.SubmitRequest{OwnerID: owner, Kind: constants.KindReceipt}},
		{"oversize payload", ingest.SubmitRequest{OwnerID: owner, Kind: constants.KindReceipt, Data: big}},
		{"disallowed extension", ingest.SubmitRequest{OwnerID: owner, Kind: constants.KindReceipt, Filename: "doc.heic", Data: jpegBytes}},
		{"unrecognized content", ingest.SubmitRequest{OwnerID: owner, Kind: constants.KindReceipt, Data: []byte("plain text file")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrInvalidInput)
		})
	}
	assert.Equal(t, 0, q.count(), "rejected uploads never reach the queue")
}

func TestGetEnforcesOwnership(t *testing.T) {
	svc, _, _ := newTestService(t)
	owner := uuid.New()
	ctx := context.Background()

	res, err := svc.Submit(ctx, ingest.SubmitRequest{OwnerID: owner, Kind: constants.KindReceipt, Data: jpegBytes})
	require.NoError(t, err)

	doc, _, err := svc.Get(ctx, owner, res.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Document.ID, doc.ID)

	_, _, err = svc.Get(ctx, uuid.New(), res.Document.ID)
	assert.ErrorIs(t, err, common.ErrNotFound, "someone else's record looks missing")
}

func TestReprocessRequiresTerminalStatus(t *testing.T) {
	svc, repo, q := newTestService(t)
	owner := uuid.New()
	ctx := context.Background()

	res, err := svc.Submit(ctx, ingest.SubmitRequest{OwnerID: owner, Kind: constants.KindReceipt, Data: jpegBytes})
	require.NoError(t, err)

	// still pending: refuse
	_, err = svc.Reprocess(ctx, owner, res.Document.ID)
	assert.ErrorIs(t, err, common.ErrConflict)

	// drive the record to a terminal state
	ok, err := repo.BeginAttempt(ctx, res.Document.ID, res.Document.Version)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.FailExtraction(ctx, res.Document.ID, res.Document.Version+1, "BadDocumentException", "nope")
	require.NoError(t, err)
	require.True(t, ok)

	before := q.count()
	doc, err := svc.Reprocess(ctx, owner, res.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusPending, doc.Status)
	assert.Equal(t, 0, doc.AttemptCount)
	assert.Nil(t, doc.ErrorCode)
	assert.Equal(t, before+1, q.count())
}

func TestSweepStuckRequeuesLostPending(t *testing.T) {
	svc, repo, q := newTestService(t)
	ctx := context.Background()

	// a record that has sat in Pending for an hour, as if its job was lost
	old := time.Now().UTC().Add(-time.Hour)
	stuck := &entity.Document{
		ID:          uuid.New(),
		OwnerID:     uuid.New(),
		Kind:        constants.KindReceipt,
		ContentHash: make([]byte, 32),
		BlobRef:     "ref",
		Status:      constants.StatusPending,
		Version:     1,
		CreatedAt:   old,
		UpdatedAt:   old,
		ExpiresAt:   old.Add(365 * 24 * time.Hour),
	}
	_, created, err := repo.CreateIfAbsent(ctx, stuck)
	require.NoError(t, err)
	require.True(t, created)

	n, err := svc.SweepStuck(ctx, time.Now().UTC().Add(-10*time.Minute), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Equal(t, 1, q.count())
	assert.Equal(t, stuck.ID, q.jobs[0].DocumentID)
}

func TestSweepStuckRecoversLostProcessing(t *testing.T) {
	svc, repo, q := newTestService(t)
	owner := uuid.New()
	ctx := context.Background()

	res, err := svc.Submit(ctx, ingest.SubmitRequest{OwnerID: owner, Kind: constants.KindReceipt, Data: jpegBytes})
	require.NoError(t, err)

	// a worker claims the job and dies without acking or finishing
	ok, err := repo.BeginAttempt(ctx, res.Document.ID, res.Document.Version)
	require.NoError(t, err)
	require.True(t, ok)

	// the owner has no way out on their own: reprocess refuses non-terminal
	// records and re-uploading the same bytes just resolves to the record
	_, err = svc.Reprocess(ctx, owner, res.Document.ID)
	assert.ErrorIs(t, err, common.ErrConflict)
	dup, err := svc.Submit(ctx, ingest.SubmitRequest{OwnerID: owner, Kind: constants.KindReceipt, Data: jpegBytes})
	require.NoError(t, err)
	assert.False(t, dup.JobAccepted)

	before := q.count()
	n, err := svc.SweepStuck(ctx, time.Now().UTC().Add(time.Minute), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Equal(t, before+1, q.count())
	assert.Equal(t, res.Document.ID, q.jobs[before].DocumentID)

	// the sweep only re-enqueues; the record itself is untouched
	doc, err := repo.GetByID(ctx, res.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusProcessing, doc.Status)
}

func TestSubmitSurfacesLookupFailure(t *testing.T) {
	ctx := context.Background()

	gq, db, err := repository.Open(ctx, common.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}, nil)
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(ctx, db, "sqlite", nil))
	repo := repository.NewDocumentRepository(gq, nil)

	blobDir := t.TempDir()
	blobs, err := blob.NewFSStore(blobDir, nil)
	require.NoError(t, err)
	q := &countingQueue{}
	svc := ingest.NewService(repo, blobs, q, 10<<20, 365*24*time.Hour, nil)

	require.NoError(t, db.Close())

	_, err = svc.Submit(ctx, ingest.SubmitRequest{OwnerID: uuid.New(), Kind: constants.KindReceipt, Data: jpegBytes})
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrNotFound)
	assert.NotErrorIs(t, err, common.ErrInvalidInput)

	// a store outage stops the upload before any side effect
	assert.Equal(t, 0, q.count())
	entries, err := os.ReadDir(blobDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
