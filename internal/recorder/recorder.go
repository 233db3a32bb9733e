// Package recorder mirrors scored decisions into an audit sink off the
// request path.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/fraudscore/internal/domain"
	"github.com/opensource-finance/fraudscore/internal/metrics"
)

// appendTimeout bounds a single sink write.
const appendTimeout = 5 * time.Second

// Recorder queues decision records and appends them to a sink from a
// single goroutine. Record never blocks; when the queue is full the
// record is dropped and counted.
type Recorder struct {
	sink  domain.DecisionSink
	queue chan *domain.DecisionRecord

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup

	dropped  atomic.Int64
	failed   atomic.Int64
	appended atomic.Int64
}

// New creates a recorder draining into sink.
func New(sink domain.DecisionSink, bufferSize int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &Recorder{
		sink:  sink,
		queue: make(chan *domain.DecisionRecord, bufferSize),
	}
}

// Start launches the drain goroutine. Calling it twice is a no-op.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true

	r.wg.Add(1)
	go r.drain()

	slog.Info("decision recorder started", "buffer", cap(r.queue))
}

// Record enqueues rec. It reports false when rec was dropped.
func (r *Recorder) Record(rec *domain.DecisionRecord) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.drop()
		return false
	}

	select {
	case r.queue <- rec:
		metrics.AuditQueueDepth.Set(float64(len(r.queue)))
		return true
	default:
		r.drop()
		return false
	}
}

func (r *Recorder) drop() {
	r.dropped.Add(1)
	metrics.AuditDroppedTotal.Inc()
}

func (r *Recorder) drain() {
	defer r.wg.Done()

	for rec := range r.queue {
		metrics.AuditQueueDepth.Set(float64(len(r.queue)))

		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		err := r.sink.Append(ctx, rec)
		cancel()

		if err != nil {
			r.failed.Add(1)
			metrics.AuditErrorsTotal.Inc()
			slog.Error("failed to append decision record",
				"record_id", rec.ID,
				"request_id", rec.RequestID,
				"error", err,
			)
			continue
		}
		r.appended.Add(1)
	}
}

// Stop closes the queue and waits until every queued record has been
// appended or ctx expires.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	started := r.started
	r.mu.Unlock()

	if !started {
		// Nobody will drain; whatever was queued is lost.
		pending := int64(len(r.queue))
		r.dropped.Add(pending)
		metrics.AuditDroppedTotal.Add(float64(pending))
		return nil
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("decision recorder stopped",
			"appended", r.appended.Load(),
			"failed", r.failed.Load(),
			"dropped", r.dropped.Load(),
		)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("recorder drain interrupted with %d records pending: %w", len(r.queue), ctx.Err())
	}
}

// Stats returns appended, failed and dropped counts.
func (r *Recorder) Stats() (appended, failed, dropped int64) {
	return r.appended.Load(), r.failed.Load(), r.dropped.Load()
}
