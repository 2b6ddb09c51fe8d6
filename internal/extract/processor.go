package extract

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/amara-nwosu/docscan/constants"
	"github.com/amara-nwosu/docscan/internal/blob"
	"github.com/amara-nwosu/docscan/internal/classify"
	"github.com/amara-nwosu/docscan/internal/common"
	"github.com/amara-nwosu/docscan/internal/entity"
	"github.com/amara-nwosu/docscan/internal/metrics"
	"github.com/amara-nwosu/docscan/internal/provider"
	"github.com/amara-nwosu/docscan/internal/queue"
	"github.com/amara-nwosu/docscan/internal/repository"
)

// Settings are the tunables of one extraction attempt.
type Settings struct {
	SuccessThreshold float32
	ReviewThreshold  float32
	MaxAttempts      int
	BackoffBase      time.Duration
	ProviderTimeout  time.Duration
}

// Processor drives a single job through the extraction state machine. It is
// safe for concurrent use: all cross-worker coordination happens through the
// record store's version check, never through in-process locks.
type Processor struct {
	repo       repository.DocumentRepository
	blobs      blob.Store
	extractor  provider.Extractor
	queue      queue.Queue
	normalizer Normalizer
	metrics    metrics.Collector
	logger     *slog.Logger
	settings   Settings
}

type Option func(*Processor)

// WithNormalizer replaces the default merchant-name normalization hook.
func WithNormalizer(n Normalizer) Option {
	return func(p *Processor) {
		if n != nil {
			p.normalizer = n
		}
	}
}

// WithMetrics replaces the metrics collector.
func WithMetrics(m metrics.Collector) Option {
	return func(p *Processor) {
		if m != nil {
			p.metrics = m
		}
	}
}

func NewProcessor(repo repository.DocumentRepository, blobs blob.Store, extractor provider.Extractor,
	q queue.Queue, settings Settings, logger *slog.Logger, opts ...Option) *Processor {

	if logger == nil {
		logger = slog.Default()
	}
	if settings.MaxAttempts < 1 {
		settings.MaxAttempts = 1
	}
	if settings.ProviderTimeout <= 0 {
		settings.ProviderTimeout = 30 * time.Second
	}
	p := &Processor{
		repo:       repo,
		blobs:      blobs,
		extractor:  extractor,
		queue:      q,
		normalizer: RegexNormalizer{},
		metrics:    metrics.Nop{},
		logger:     logger,
		settings:   settings,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process handles one delivery. A nil return means the delivery can be
// acknowledged; that includes every discard path (terminal record, lost
// version race, missing record), since redelivering those jobs changes
// nothing. A non-nil return leaves the delivery unacked for lease-expiry
// redelivery.
func (p *Processor) Process(ctx context.Context, job queue.Job) error {
	log := p.logger.With("document_id", job.DocumentID)

	doc, err := p.repo.GetByID(ctx, job.DocumentID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			log.Warn("extract.job.orphaned", "token", job.Token)
			return nil
		}
		return err
	}
	if doc.Status.Terminal() {
		log.Debug("extract.job.duplicate_delivery", "status", doc.Status)
		return nil
	}

	ok, err := p.repo.BeginAttempt(ctx, doc.ID, doc.Version)
	if err != nil {
		return err
	}
	if !ok {
		log.Debug("extract.job.lost_race", "version", doc.Version)
		return nil
	}
	attempt := doc.AttemptCount + 1
	version := doc.Version + 1
	start := time.Now()
	log = log.With("attempt", attempt)

	data, err := p.blobs.Get(ctx, doc.BlobRef)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			// the blob is gone for good; retrying cannot bring it back
			log.Error("extract.blob.missing", "blob_ref", doc.BlobRef)
			return p.fail(ctx, log, doc, version, attempt, start,
				constants.ErrCodeInternalError, classify.MsgKeyInternal)
		}
		return err
	}

	pctx, cancel := context.WithTimeout(ctx, p.settings.ProviderTimeout)
	res, err := p.extractor.Extract(pctx, provider.Request{Data: data, Kind: doc.Kind})
	cancel()
	if err != nil {
		return p.handleProviderError(ctx, log, doc, job, version, attempt, start, err)
	}
	return p.complete(ctx, log, doc, version, attempt, start, res)
}

func (p *Processor) complete(ctx context.Context, log *slog.Logger, doc *entity.Document,
	version int64, attempt int, start time.Time, res *provider.Result) error {

	if fv, ok := res.Fields["merchant_name"]; ok && fv.Type == entity.FieldString {
		res.Fields["merchant_name"] = entity.StringField(p.normalizer.NormalizeMerchant(fv.String))
	}
	items := res.LineItems
	if doc.Kind != constants.KindReceipt {
		items = nil
	}

	agg := aggregateConfidence(res.Confidences)
	status, note := p.classifyOutcome(agg)

	ok, err := p.repo.CompleteExtraction(ctx, doc.ID, version, status,
		res.Fields, res.Confidences, items, note)
	if err != nil {
		return err
	}
	if !ok {
		log.Warn("extract.complete.lost_race", "version", version)
		return nil
	}

	p.metrics.ExtractionFinished(status, attempt, time.Since(start))
	log.Info("extract.finished",
		"status", status,
		"aggregate_confidence", agg,
		"fields", len(res.Fields),
		"line_items", len(items),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (p *Processor) handleProviderError(ctx context.Context, log *slog.Logger, doc *entity.Document,
	job queue.Job, version int64, attempt int, start time.Time, provErr error) error {

	code := provider.CodeOf(provErr)
	cls := classify.Classify(code)
	// raw provider detail is logged here and nowhere else; users only ever
	// see the classified message
	log.Warn("extract.provider.error",
		"code", code,
		"kind", cls.Kind,
		"retryable", cls.Retryable,
		"error", provErr,
	)

	if cls.Retryable && attempt < p.settings.MaxAttempts {
		delay := classify.Backoff(p.settings.BackoffBase, attempt)
		if err := p.queue.EnqueueAfter(ctx, queue.Job{
			DocumentID:  job.DocumentID,
			Kind:        job.Kind,
			SubmittedAt: job.SubmittedAt,
		}, delay); err != nil {
			return err
		}
		p.metrics.ExtractionRetried(code)
		log.Info("extract.retry.scheduled", "delay", delay, "code", code)
		return nil
	}

	storedCode, msgKey := code, cls.MessageKey
	switch {
	case cls.Retryable:
		// transient failure out of budget; logged distinctly so operators
		// can tell an exhausted retry from a truly permanent error
		storedCode, msgKey = constants.ErrCodeRetryExhausted, classify.MsgKeyExhausted
		p.metrics.RetryCeilingExceeded()
		log.Error("extract.retry.exhausted", "attempts", attempt, "last_code", code)
	case cls.Kind == classify.PermanentConfiguration:
		p.metrics.ConfigurationFailure(code)
		log.Error("extract.configuration_failure", "code", code)
	}
	return p.fail(ctx, log, doc, version, attempt, start, storedCode, msgKey)
}

func (p *Processor) fail(ctx context.Context, log *slog.Logger, doc *entity.Document,
	version int64, attempt int, start time.Time, code, msgKey string) error {

	ok, err := p.repo.FailExtraction(ctx, doc.ID, version, code, classify.Message(msgKey))
	if err != nil {
		return err
	}
	if !ok {
		log.Warn("extract.fail.lost_race", "version", version)
		return nil
	}
	p.metrics.ExtractionFinished(constants.StatusFailed, attempt, time.Since(start))
	log.Info("extract.finished", "status", constants.StatusFailed, "code", code)
	return nil
}

// classifyOutcome maps aggregate confidence to a terminal status. The
// middle band stores the fields but asks the user to confirm; below the
// review threshold the fields are kept only as a starting point for manual
// correction.
func (p *Processor) classifyOutcome(agg float32) (constants.DocumentStatus, *string) {
	switch {
	case agg >= p.settings.SuccessThreshold:
		return constants.StatusSuccess, nil
	case agg >= p.settings.ReviewThreshold:
		note := classify.Message(classify.MsgKeyConfirm)
		return constants.StatusPartial, &note
	default:
		return constants.StatusManualReview, nil
	}
}

func aggregateConfidence(confidences map[string]float32) float32 {
	if len(confidences) == 0 {
		return 0
	}
	var sum float32
	for _, c := range confidences {
		sum += c
	}
	return sum / float32(len(confidences))
}
