package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"face-attendance/config"
	"face-attendance/internal/errors"
	"face-attendance/internal/logger"
	"face-attendance/internal/models"
	"face-attendance/internal/observability"
	"face-attendance/internal/repository"
)

// Retry stages
const (
	StageIngest    = "ingest"
	StageReconcile = "reconcile"
)

// RetryItem is work parked after a transient dependency failure
type RetryItem struct {
	Stage      string               `json:"stage"`
	Detection  *models.RawDetection `json:"detection,omitempty"`
	Event      *models.MatchEvent   `json:"event,omitempty"`
	ReceivedAt time.Time            `json:"received_at"`
	Attempts   int                  `json:"attempts"`
	LastError  string               `json:"last_error,omitempty"`
}

// RetryHandler processes one item. Returning a non-transient error stops retrying.
type RetryHandler func(ctx context.Context, item *RetryItem) error

// RetryQueue is a bounded queue of items retried with exponential backoff.
// Items that overflow the queue or exhaust their attempts become dead letters.
type RetryQueue struct {
	items       chan *RetryItem
	deadLetters repository.DeadLetterStore
	cfg         config.RetryConfig
	metrics     *observability.Metrics
	log         *logger.Logger

	mu      sync.RWMutex
	handler RetryHandler
}

func NewRetryQueue(cfg config.RetryConfig, deadLetters repository.DeadLetterStore, metrics *observability.Metrics, log *logger.Logger) *RetryQueue {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &RetryQueue{
		items:       make(chan *RetryItem, cfg.QueueSize),
		deadLetters: deadLetters,
		cfg:         cfg,
		metrics:     metrics,
		log:         log.Named("retry"),
	}
}

// SetHandler installs the function that reprocesses items
func (q *RetryQueue) SetHandler(h RetryHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = h
}

// Enqueue parks item without blocking. It reports false when the queue was full and
// the item was dead-lettered instead.
func (q *RetryQueue) Enqueue(ctx context.Context, item *RetryItem, cause error) bool {
	if cause != nil {
		item.LastError = cause.Error()
	}
	select {
	case q.items <- item:
		q.metrics.RecordQueued()
		q.metrics.SetRetryQueueDepth(len(q.items))
		q.log.Warn("item queued for retry", "stage", item.Stage, "error", item.LastError, "depth", len(q.items))
		return true
	default:
		q.deadLetter(ctx, item, "retry queue full")
		return false
	}
}

// Len returns the number of waiting items
func (q *RetryQueue) Len() int {
	return len(q.items)
}

// Run processes items until ctx is cancelled. Items still waiting at shutdown are
// dead-lettered so that nothing accepted disappears.
func (q *RetryQueue) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for range q.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.worker(ctx)
		}()
	}
	wg.Wait()

	q.drain(context.WithoutCancel(ctx))
	return nil
}

func (q *RetryQueue) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-q.items:
			q.metrics.SetRetryQueueDepth(len(q.items))
			q.process(ctx, item)
		}
	}
}

func (q *RetryQueue) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if q.cfg.InitialInterval > 0 {
		b.InitialInterval = q.cfg.InitialInterval
	}
	if q.cfg.MaxInterval > 0 {
		b.MaxInterval = q.cfg.MaxInterval
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(q.cfg.MaxAttempts-1)), ctx)
}

func (q *RetryQueue) process(ctx context.Context, item *RetryItem) {
	q.mu.RLock()
	handler := q.handler
	q.mu.RUnlock()
	if handler == nil {
		q.deadLetter(ctx, item, "no retry handler installed")
		return
	}

	op := func() error {
		item.Attempts++
		err := handler(ctx, item)
		if err == nil {
			return nil
		}
		item.LastError = err.Error()
		if !errors.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		q.log.Debug("retry attempt failed", "stage", item.Stage, "attempt", item.Attempts, "next_in", wait, "error", err)
	}

	err := backoff.RetryNotify(op, q.newBackOff(ctx), notify)
	switch {
	case err == nil:
		q.log.Info("retried item processed", "stage", item.Stage, "attempts", item.Attempts)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		q.deadLetter(context.WithoutCancel(ctx), item, "shutdown before retry completed")
	case errors.IsTransient(err):
		q.deadLetter(ctx, item, "retry attempts exhausted")
	default:
		// The dependency answered; the item is now rejected on its merits.
		q.log.Info("retried item rejected", "stage", item.Stage, "error", err)
	}
}

func (q *RetryQueue) drain(ctx context.Context) {
	for {
		select {
		case item := <-q.items:
			q.deadLetter(ctx, item, "shutdown before retry")
		default:
			q.metrics.SetRetryQueueDepth(0)
			return
		}
	}
}

func (q *RetryQueue) deadLetter(ctx context.Context, item *RetryItem, why string) {
	payload, err := json.Marshal(item)
	if err != nil {
		payload = []byte("{}")
	}
	lastErr := item.LastError
	if lastErr == "" {
		lastErr = why
	} else {
		lastErr = why + ": " + lastErr
	}

	letter := &models.DeadLetter{
		Reason:    models.RejectDirectoryUnavailable,
		Stage:     item.Stage,
		Payload:   string(payload),
		Attempts:  item.Attempts,
		LastError: lastErr,
	}
	q.metrics.RecordDeadLetter(letter.Reason)
	if err := q.deadLetters.Put(ctx, letter); err != nil {
		// Last line: the payload goes to the log so it is never lost silently.
		q.log.Error("failed to store dead letter", "error", err, "payload", letter.Payload)
		return
	}
	q.log.Warn("item dead-lettered", "stage", item.Stage, "attempts", item.Attempts, "reason", why)
}
