package metrics

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/amara-nwosu/docscan/constants"
)

// Collector receives pipeline counters. Implementations must be safe for
// concurrent use from all workers.
type Collector interface {
	DocumentAccepted(kind constants.DocumentKind, deduplicated bool)
	ExtractionFinished(status constants.DocumentStatus, attempts int, dur time.Duration)
	ExtractionRetried(code string)
	RetryCeilingExceeded()
	ConfigurationFailure(code string)
	DocumentsReaped(n int)
}

// InProcess is the default Collector: plain atomic counters, flushed to the
// log on demand. Scrape endpoints and push gateways sit outside this
// service; operators watch the structured log.
type InProcess struct {
	accepted     atomic.Int64
	deduplicated atomic.Int64
	succeeded    atomic.Int64
	partial      atomic.Int64
	review       atomic.Int64
	failed       atomic.Int64
	retried      atomic.Int64
	exhausted    atomic.Int64
	configFails  atomic.Int64
	reaped       atomic.Int64
}

func NewInProcess() *InProcess {
	return &InProcess{}
}

func (m *InProcess) DocumentAccepted(kind constants.DocumentKind, deduplicated bool) {
	m.accepted.Add(1)
	if deduplicated {
		m.deduplicated.Add(1)
	}
}

func (m *InProcess) ExtractionFinished(status constants.DocumentStatus, attempts int, dur time.Duration) {
	switch status {
	case constants.StatusSuccess:
		m.succeeded.Add(1)
	case constants.StatusPartial:
		m.partial.Add(1)
	case constants.StatusManualReview:
		m.review.Add(1)
	case constants.StatusFailed:
		m.failed.Add(1)
	}
}

func (m *InProcess) ExtractionRetried(code string) {
	m.retried.Add(1)
}

func (m *InProcess) RetryCeilingExceeded() {
	m.exhausted.Add(1)
}

func (m *InProcess) ConfigurationFailure(code string) {
	m.configFails.Add(1)
}

func (m *InProcess) DocumentsReaped(n int) {
	m.reaped.Add(int64(n))
}

// Flush logs a snapshot of all counters under a single event.
func (m *InProcess) Flush(logger *slog.Logger) {
	logger.Info("metrics.snapshot",
		"accepted", m.accepted.Load(),
		"deduplicated", m.deduplicated.Load(),
		"succeeded", m.succeeded.Load(),
		"partial", m.partial.Load(),
		"manual_review", m.review.Load(),
		"failed", m.failed.Load(),
		"retried", m.retried.Load(),
		"retry_exhausted", m.exhausted.Load(),
		"configuration_failures", m.configFails.Load(),
		"reaped", m.reaped.Load(),
	)
}

// FlushLoop logs a snapshot every interval until ctx is done.
func (m *InProcess) FlushLoop(done <-chan struct{}, interval time.Duration, logger *slog.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			m.Flush(logger)
		}
	}
}

// Nop discards everything; handy in tests that do not assert on counters.
type Nop struct{}

func (Nop) DocumentAccepted(constants.DocumentKind, bool) {}

func (Nop) ExtractionFinished(constants.DocumentStatus, int, time.Duration) {}

func (Nop) ExtractionRetried(string) {}

func (Nop) RetryCeilingExceeded() {}

func (Nop) ConfigurationFailure(string) {}

func (Nop) DocumentsReaped(int) {}

var (
	_ Collector = (*InProcess)(nil)
	_ Collector = Nop{}
)
