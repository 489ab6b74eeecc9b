package console

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gestio-app/gestio/internal/model"
)

const (
	defaultQueueSize  = 256
	defaultRetryDelay = 50 * time.Millisecond

	// syncAttempts bounds the inline retries before an entry is handed to
	// the background queue; queueAttempts bounds the background retries
	// before the entry is dropped with an error log.
	syncAttempts  = 3
	queueAttempts = 5

	auditWriteTimeout = 5 * time.Second
)

// record appends one audit entry, best-effort. Audit is observability, not a
// correctness gate: a failed write never fails the request that produced it.
// The write is retried inline a few times, then queued for the background
// worker, then (only then) dropped with an error log.
func (s *Service) record(ctx context.Context, entry model.AuditLogEntry) {
	// Detach from the request context so a cancelled request cannot lose
	// its audit entry.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= syncAttempts; attempt++ {
		if err := s.audit.InsertAuditLog(writeCtx, entry); err == nil {
			return
		} else {
			lastErr = err
		}

		select {
		case <-time.After(time.Duration(attempt) * s.queue.retryDelay):
		case <-writeCtx.Done():
			lastErr = writeCtx.Err()
		}
		if writeCtx.Err() != nil {
			break
		}
	}

	s.logger.Warn("audit write failed, queueing for retry", "action", entry.Action, "error", lastErr)
	if !s.queue.Enqueue(entry) {
		s.logger.Error("audit entry dropped: retry queue full", "action", entry.Action, "user_id", entry.UserID)
	}
}

// auditQueue retries failed audit writes in the background so transient
// store outages do not silently thin the audit trail.
type auditQueue struct {
	sink       AuditSink
	logger     *slog.Logger
	entries    chan model.AuditLogEntry
	retryDelay time.Duration

	started  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
	finished chan struct{}
}

func newAuditQueue(sink AuditSink, logger *slog.Logger, size int, retryDelay time.Duration) *auditQueue {
	if size <= 0 {
		size = defaultQueueSize
	}
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	return &auditQueue{
		sink:       sink,
		logger:     logger,
		entries:    make(chan model.AuditLogEntry, size),
		retryDelay: retryDelay,
		done:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
}

// Start launches the retry worker. The worker exits when ctx is cancelled or
// Close is called, draining whatever is already queued first.
func (q *auditQueue) Start(ctx context.Context) {
	q.started.Store(true)
	go q.run(ctx)
}

// Enqueue hands an entry to the worker without blocking. Returns false when
// the queue is full.
func (q *auditQueue) Enqueue(entry model.AuditLogEntry) bool {
	select {
	case q.entries <- entry:
		return true
	default:
		return false
	}
}

// Close stops the worker after draining queued entries. Safe to call multiple times.
func (q *auditQueue) Close() {
	q.stopOnce.Do(func() { close(q.done) })
	if q.started.Load() {
		<-q.finished
	}
}

func (q *auditQueue) run(ctx context.Context) {
	defer close(q.finished)
	for {
		select {
		case <-ctx.Done():
			q.drain()
			return
		case <-q.done:
			q.drain()
			return
		case entry := <-q.entries:
			q.retry(entry)
		}
	}
}

// drain flushes entries already queued at shutdown, one final attempt each.
func (q *auditQueue) drain() {
	for {
		select {
		case entry := <-q.entries:
			q.retry(entry)
		default:
			return
		}
	}
}

func (q *auditQueue) retry(entry model.AuditLogEntry) {
	var lastErr error
	for attempt := 1; attempt <= queueAttempts; attempt++ {
		writeCtx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		err := q.sink.InsertAuditLog(writeCtx, entry)
		cancel()
		if err == nil {
			return
		}
		lastErr = err
		time.Sleep(time.Duration(attempt) * q.retryDelay)
	}
	q.logger.Error("audit entry dropped after retries",
		"action", entry.Action, "user_id", entry.UserID, "error", lastErr)
}
