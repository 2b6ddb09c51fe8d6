package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/amara-nwosu/docscan/constants"
	"github.com/amara-nwosu/docscan/internal/blob"
	"github.com/amara-nwosu/docscan/internal/common"
	"github.com/amara-nwosu/docscan/internal/entity"
	"github.com/amara-nwosu/docscan/internal/metrics"
	"github.com/amara-nwosu/docscan/internal/queue"
	"github.com/amara-nwosu/docscan/internal/repository"
)

// Service is the deduplicating ingestion gateway. It runs on the caller's
// request path and never talks to the extraction provider; its only
// suspension points are the store write, the blob write and the enqueue.
type Service struct {
	repo    repository.DocumentRepository
	blobs   blob.Store
	queue   queue.Queue
	metrics metrics.Collector
	logger  *slog.Logger

	maxUploadBytes  int64
	retentionWindow time.Duration
}

type Option func(*Service)

// WithMetrics replaces the metrics collector.
func WithMetrics(m metrics.Collector) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

func NewService(repo repository.DocumentRepository, blobs blob.Store, q queue.Queue,
	maxUploadBytes int64, retentionWindow time.Duration, logger *slog.Logger, opts ...Option) *Service {

	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	if retentionWindow <= 0 {
		retentionWindow = 365 * 24 * time.Hour
	}
	s := &Service{
		repo:            repo,
		blobs:           blobs,
		queue:           q,
		metrics:         metrics.Nop{},
		logger:          logger,
		maxUploadBytes:  maxUploadBytes,
		retentionWindow: retentionWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitRequest represents one upload.
type SubmitRequest struct {
	OwnerID  uuid.UUID
	Kind     constants.DocumentKind
	Filename string
	Data     []byte
}

// SubmitResult reports the record the upload resolved to. JobAccepted is
// false for duplicates: the existing record already had its job.
type SubmitResult struct {
	Document    *entity.Document
	JobAccepted bool
}

// Submit validates the upload, persists blob and record, and enqueues one
// extraction job. Identical bytes from the same owner resolve to the
// existing record without a second job.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	hash := sha256.Sum256(req.Data)
	log := s.logger.With("owner_id", req.OwnerID, "content_hash", hex.EncodeToString(hash[:8]))

	// fast path: same bytes already known to this owner
	existing, err := s.repo.GetByOwnerAndHash(ctx, req.OwnerID, hash[:])
	if err == nil {
		log.Info("ingest.duplicate", "document_id", existing.ID, "status", existing.Status)
		s.metrics.DocumentAccepted(req.Kind, true)
		return &SubmitResult{Document: existing, JobAccepted: false}, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		log.Error("ingest.lookup_failed", "error", err)
		return nil, err
	}

	blobKey := fmt.Sprintf("%s-%s", req.OwnerID, hex.EncodeToString(hash[:]))
	blobRef, err := s.blobs.Put(ctx, blobKey, req.Data)
	if err != nil {
		log.Error("ingest.blob.put_failed", "error", err)
		return nil, common.WrapError(err, "store blob")
	}

	now := time.Now().UTC()
	doc := &entity.Document{
		ID:          uuid.New(),
		OwnerID:     req.OwnerID,
		Kind:        req.Kind,
		ContentHash: hash[:],
		BlobRef:     blobRef,
		Status:      constants.StatusPending,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(s.retentionWindow),
	}
	doc, created, err := s.repo.CreateIfAbsent(ctx, doc)
	if err != nil {
		return nil, err
	}
	s.metrics.DocumentAccepted(req.Kind, !created)
	if !created {
		// a concurrent upload of the same bytes won; the orphaned blob copy
		// is content-addressed and identical, so nothing needs cleanup
		log.Info("ingest.duplicate", "document_id", doc.ID, "status", doc.Status)
		return &SubmitResult{Document: doc, JobAccepted: false}, nil
	}

	if err := s.enqueue(ctx, doc); err != nil {
		// the record exists and is Pending; the stuck-record sweep will
		// re-enqueue it, so the upload still counts as accepted
		log.Error("ingest.enqueue_failed", "document_id", doc.ID, "error", err)
	}
	log.Info("ingest.accepted", "document_id", doc.ID, "kind", doc.Kind, "bytes", len(req.Data))
	return &SubmitResult{Document: doc, JobAccepted: true}, nil
}

// Get returns a document for its owner, with line items when the record is
// terminal. A record belonging to someone else looks exactly like a missing
// one.
func (s *Service) Get(ctx context.Context, ownerID, documentID uuid.UUID) (*entity.Document, []entity.LineItem, error) {
	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, nil, common.ErrNotFound
	}
	var items []entity.LineItem
	if doc.Status.Terminal() && doc.Kind == constants.KindReceipt {
		if items, err = s.repo.ListLineItems(ctx, documentID); err != nil {
			return nil, nil, err
		}
	}
	return doc, items, nil
}

// Reprocess returns a terminal document to Pending with a fresh attempt
// budget and enqueues a new job. Non-terminal records are refused: the
// in-flight pipeline already owns them.
func (s *Service) Reprocess(ctx context.Context, ownerID, documentID uuid.UUID) (*entity.Document, error) {
	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, common.ErrNotFound
	}
	if !doc.Status.Terminal() {
		return nil, common.NewAppError("NOT_TERMINAL", "document is still being processed", common.ErrConflict)
	}

	ok, err := s.repo.ResetForReprocess(ctx, doc.ID, doc.Version)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.NewAppError("CONCURRENT_UPDATE", "document changed, try again", common.ErrConflict)
	}
	doc, err = s.repo.GetByID(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, doc); err != nil {
		s.logger.Error("ingest.reprocess.enqueue_failed", "document_id", doc.ID, "error", err)
	}
	s.logger.Info("ingest.reprocess", "document_id", doc.ID, "owner_id", ownerID)
	return doc, nil
}

// SweepStuck re-enqueues non-terminal records whose job evidently went
// missing: a Pending record whose enqueue failed after commit or whose job a
// non-durable queue lost, or a Processing record whose worker died without
// acking. Processing records re-enter the pipeline as a fresh delivery; the
// version CAS settles any race with a worker that turns out to be alive.
func (s *Service) SweepStuck(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	docs, err := s.repo.ListStuck(ctx, olderThan, limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, doc := range docs {
		if err := s.enqueue(ctx, doc); err != nil {
			s.logger.Warn("ingest.sweep.enqueue_failed", "document_id", doc.ID, "error", err)
			continue
		}
		n++
	}
	if n > 0 {
		s.logger.Info("ingest.sweep.requeued", "count", n)
	}
	return n, nil
}

// SweepLoop runs SweepStuck on a ticker until ctx is done.
func (s *Service) SweepLoop(ctx context.Context, interval, stuckAfter time.Duration, batch int) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.SweepStuck(ctx, time.Now().Add(-stuckAfter), batch); err != nil {
				s.logger.Error("ingest.sweep.failed", "error", err)
			}
		}
	}
}

func (s *Service) enqueue(ctx context.Context, doc *entity.Document) error {
	return s.queue.Enqueue(ctx, queue.Job{
		DocumentID:  doc.ID,
		Kind:        doc.Kind,
		SubmittedAt: time.Now().UTC(),
	})
}

// validate rejects size and format violations before any record or blob is
// written.
func (s *Service) validate(req SubmitRequest) error {
	if req.OwnerID == uuid.Nil {
		return common.NewAppError("INVALID_OWNER", "owner id is required", common.ErrInvalidInput)
	}
	if !constants.ValidKind(req.Kind) {
		return common.NewAppError("INVALID_KIND", fmt.Sprintf("unknown document kind %q", req.Kind), common.ErrInvalidInput)
	}
	if len(req.Data) == 0 {
		return common.NewAppError("EMPTY_UPLOAD", "no document bytes provided", common.ErrInvalidInput)
	}
	if int64(len(req.Data)) > s.maxUploadBytes {
		return common.NewAppError("TOO_LARGE",
			fmt.Sprintf("document exceeds the %d byte limit", s.maxUploadBytes), common.ErrInvalidInput)
	}
	if ext := constants.NormalizeExt(filepath.Ext(req.Filename)); ext != "" && !constants.IsAllowedExt(ext) {
		return common.NewAppError("UNSUPPORTED_FORMAT",
			fmt.Sprintf("extension %q is not supported", ext), common.ErrInvalidInput)
	}
	if constants.SniffFormat(req.Data) == "" {
		return common.NewAppError("UNSUPPORTED_FORMAT",
			"content is not a recognized JPEG, PNG or PDF", common.ErrInvalidInput)
	}
	return nil
}
