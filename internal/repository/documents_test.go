package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amara-nwosu/docscan/constants"
	"github.com/amara-nwosu/docscan/internal/common"
	"github.com/amara-nwosu/docscan/internal/entity"
	"github.com/amara-nwosu/docscan/internal/repository"
)

func newTestRepo(t *testing.T) repository.DocumentRepository {
	t.Helper()
	ctx := context.Background()
	gq, db, err := repository.Open(ctx, common.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repository.Migrate(ctx, db, "sqlite", nil))
	return repository.NewDocumentRepository(gq, nil)
}

func newDoc(owner uuid.UUID, hash byte) *entity.Document {
	now := time.Now().UTC().Truncate(time.Second)
	h := make([]byte, 32)
	h[0] = hash
	return &entity.Document{
		ID:          uuid.New(),
		OwnerID:     owner,
		Kind:        constants.KindReceipt,
		ContentHash: h,
		BlobRef:     "blob-ref",
		Status:      constants.StatusPending,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(365 * 24 * time.Hour),
	}
}

func TestCreateIfAbsentDeduplicates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	owner := uuid.New()

	first, created, err := repo.CreateIfAbsent(ctx, newDoc(owner, 0x01))
	require.NoError(t, err)
	require.True(t, created)

	// same owner, same hash: resolves to the first record
	dup := newDoc(owner, 0x01)
	second, created, err := repo.CreateIfAbsent(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// different owner, same hash: independent record
	other, created, err := repo.CreateIfAbsent(ctx, newDoc(uuid.New(), 0x01))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestGetByIDNotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestBeginAttempt(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	doc, _, err := repo.CreateIfAbsent(ctx, newDoc(uuid.New(), 0x02))
	require.NoError(t, err)

	ok, err := repo.BeginAttempt(ctx, doc.ID, doc.Version)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusProcessing, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	assert.Equal(t, doc.Version+1, got.Version)

	// a duplicate delivery holding the stale version loses the race
	ok, err = repo.BeginAttempt(ctx, doc.ID, doc.Version)
	require.NoError(t, err)
	assert.False(t, ok)

	// a second attempt from the current version succeeds (retry path)
	ok, err = repo.BeginAttempt(ctx, doc.ID, got.Version)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err = repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AttemptCount)
}

func TestBeginAttemptRefusesTerminal(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	doc, _, err := repo.CreateIfAbsent(ctx, newDoc(uuid.New(), 0x03))
	require.NoError(t, err)

	ok, err := repo.BeginAttempt(ctx, doc.ID, doc.Version)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.FailExtraction(ctx, doc.ID, doc.Version+1, "BadDocumentException", "unreadable")
	require.NoError(t, err)
	require.True(t, ok)

	got, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	ok, err = repo.BeginAttempt(ctx, doc.ID, got.Version)
	require.NoError(t, err)
	assert.False(t, ok, "terminal records must not re-enter processing")
}

func TestCompleteExtractionReplacesLineItemsWholesale(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	doc, _, err := repo.CreateIfAbsent(ctx, newDoc(uuid.New(), 0x04))
	require.NoError(t, err)

	ok, err := repo.BeginAttempt(ctx, doc.ID, doc.Version)
	require.NoError(t, err)
	require.True(t, ok)

	fields := map[string]entity.FieldValue{
		"merchant_name": entity.StringField("MegaMart"),
		"total_amount":  entity.NumberField(5.25),
	}
	confs := map[string]float32{"merchant_name": 0.98, "total_amount": 0.96}
	firstItems := []entity.LineItem{
		{Description: "Milk", Quantity: 2, UnitPrice: 1.5, LineTotal: 3, Confidence: 0.9},
		{Description: "Bread", Quantity: 1, UnitPrice: 2.25, LineTotal: 2.25, Confidence: 0.92},
	}
	ok, err = repo.CompleteExtraction(ctx, doc.ID, doc.Version+1, constants.StatusSuccess, fields, confs, firstItems, nil)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusSuccess, got.Status)
	assert.Equal(t, "MegaMart", got.Fields["merchant_name"].String)
	assert.Nil(t, got.ErrorCode)

	items, err := repo.ListLineItems(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 0, items[0].Position)
	assert.Equal(t, "Milk", items[0].Description)

	// reprocess: the replacement set fully displaces the old one
	ok, err = repo.ResetForReprocess(ctx, doc.ID, got.Version)
	require.NoError(t, err)
	require.True(t, ok)
	got, err = repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusPending, got.Status)
	assert.Equal(t, 0, got.AttemptCount)

	ok, err = repo.BeginAttempt(ctx, doc.ID, got.Version)
	require.NoError(t, err)
	require.True(t, ok)
	secondItems := []entity.LineItem{
		{Description: "Eggs", Quantity: 1, UnitPrice: 4.10, LineTotal: 4.10, Confidence: 0.95},
	}
	ok, err = repo.CompleteExtraction(ctx, doc.ID, got.Version+1, constants.StatusSuccess, fields, confs, secondItems, nil)
	require.NoError(t, err)
	require.True(t, ok)

	items, err = repo.ListLineItems(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Eggs", items[0].Description)
}

func TestCompleteExtractionStoresPartialNote(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	doc, _, err := repo.CreateIfAbsent(ctx, newDoc(uuid.New(), 0x05))
	require.NoError(t, err)

	ok, err := repo.BeginAttempt(ctx, doc.ID, doc.Version)
	require.NoError(t, err)
	require.True(t, ok)

	note := "please review"
	ok, err = repo.CompleteExtraction(ctx, doc.ID, doc.Version+1, constants.StatusPartial,
		map[string]entity.FieldValue{"total_amount": entity.NumberField(1)},
		map[string]float32{"total_amount": 0.6}, nil, &note)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusPartial, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, note, *got.ErrorMessage)
	assert.Nil(t, got.ErrorCode)
}

func TestFailExtraction(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	doc, _, err := repo.CreateIfAbsent(ctx, newDoc(uuid.New(), 0x06))
	require.NoError(t, err)

	ok, err := repo.BeginAttempt(ctx, doc.ID, doc.Version)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.FailExtraction(ctx, doc.ID, doc.Version+1, "PoorImageQualityException", "too blurry")
	require.NoError(t, err)
	require.True(t, ok)

	got, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorCode)
	assert.Equal(t, "PoorImageQualityException", *got.ErrorCode)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "too blurry", *got.ErrorMessage)

	// stale version write fails
	ok, err = repo.FailExtraction(ctx, doc.ID, doc.Version, "x", "y")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListExpiredAndDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	expired := newDoc(uuid.New(), 0x07)
	expired.ExpiresAt = now.Add(-time.Hour)
	expired, _, err := repo.CreateIfAbsent(ctx, expired)
	require.NoError(t, err)

	fresh := newDoc(uuid.New(), 0x08)
	_, _, err = repo.CreateIfAbsent(ctx, fresh)
	require.NoError(t, err)

	docs, err := repo.ListExpired(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, expired.ID, docs[0].ID)

	ok, err := repo.DeleteByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// concurrent sweep: the second delete finds nothing
	ok, err = repo.DeleteByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	docs, err = repo.ListExpired(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestListStuck(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	stalePending := newDoc(uuid.New(), 0x09)
	stalePending.CreatedAt = time.Now().UTC().Add(-time.Hour)
	stalePending.UpdatedAt = stalePending.CreatedAt
	stalePending, _, err := repo.CreateIfAbsent(ctx, stalePending)
	require.NoError(t, err)

	// a worker claimed this one and then died without finishing
	processing := newDoc(uuid.New(), 0x0A)
	processing, _, err = repo.CreateIfAbsent(ctx, processing)
	require.NoError(t, err)
	ok, err := repo.BeginAttempt(ctx, processing.ID, processing.Version)
	require.NoError(t, err)
	require.True(t, ok)

	failed := newDoc(uuid.New(), 0x0B)
	failed, _, err = repo.CreateIfAbsent(ctx, failed)
	require.NoError(t, err)
	ok, err = repo.BeginAttempt(ctx, failed.ID, failed.Version)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.FailExtraction(ctx, failed.ID, failed.Version+1, "BadDocumentException", "nope")
	require.NoError(t, err)
	require.True(t, ok)

	// with everything considered stale, terminal records still never qualify
	docs, err := repo.ListStuck(ctx, time.Now().UTC().Add(time.Minute), 10)
	require.NoError(t, err)
	ids := make([]uuid.UUID, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	assert.ElementsMatch(t, []uuid.UUID{stalePending.ID, processing.ID}, ids)

	// with a realistic cutoff only the hour-old record is stuck
	docs, err = repo.ListStuck(ctx, time.Now().UTC().Add(-10*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, stalePending.ID, docs[0].ID)
}
