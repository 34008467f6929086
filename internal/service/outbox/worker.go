// Package outbox доставляет события заказов из transactional outbox в брокер.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

// Значения label "result" у bookstore_outbox_publish_attempts_total.
const (
	resultSent       = "sent"
	resultRetryError = "retry_error"
	resultFailed     = "failed"
	resultSkipped    = "skipped"
	resultDLQFailed  = "dlq_failed"
)

var (
	publishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_outbox_publish_attempts_total",
		Help: "Outbox publish attempts by result.",
	}, []string{"result"})
	pendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bookstore_outbox_pending_records",
		Help: "Pending records in the outbox.",
	})
	oldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bookstore_outbox_oldest_pending_age_seconds",
		Help: "Age of the oldest pending outbox record.",
	})
)

// Option настраивает Worker.
type Option func(*Worker)

func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDLQPublisher задаёт publisher для событий, исчерпавших попытки.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.dlq = publisher }
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

func WithBatchSize(batchSize int) Option {
	return func(w *Worker) {
		if batchSize > 0 {
			w.batchSize = batchSize
		}
	}
}

// WithMaxAttempts задаёт число попыток публикации до отправки в DLQ.
func WithMaxAttempts(attempts int) Option {
	return func(w *Worker) {
		if attempts > 0 {
			w.retry.attempts = attempts
		}
	}
}

// WithRetryBaseDelay задаёт первую паузу между попытками; ноль отключает паузы.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) { w.retry.base = max(delay, 0) }
}

// BatchResult — итог одного прохода по outbox.
type BatchResult struct {
	Sent   int
	Failed int
	// Skipped — события заказа, предыдущее событие которого ушло в DLQ в этом же проходе.
	Skipped int
}

// Worker переносит события заказов (OrderPlaced, OrderStatusChanged) из outbox в брокер.
// События одного заказа публикуются по порядку: если событие заказа ушло в DLQ,
// последующие события этого заказа в том же батче отправляются туда же без попыток публикации.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	logger    *log.Entry

	pollInterval time.Duration
	batchSize    int
	retry        retryPolicy
	now          func() time.Time
}

func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	w := &Worker{
		repo:         repo,
		publisher:    publisher,
		logger:       log.WithField("component", "outbox-worker"),
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		retry:        retryPolicy{attempts: defaultMaxAttempts, base: defaultRetryBaseDelay},
		now:          time.Now,
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if res := w.ProcessOnce(ctx); res.Failed+res.Skipped > 0 {
			w.logger.WithFields(log.Fields{
				"sent":    res.Sent,
				"failed":  res.Failed,
				"skipped": res.Skipped,
			}).Warn("outbox batch finished with failures")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce забирает один батч и публикует его по порядку.
func (w *Worker) ProcessOnce(ctx context.Context) BatchResult {
	var res BatchResult
	if ctx.Err() != nil {
		return res
	}
	defer w.refreshBacklogMetrics(ctx)

	events, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return res
	}

	broken := make(map[string]string) // aggregate id -> id события, ушедшего в DLQ
	for _, event := range events {
		if ctx.Err() != nil {
			break
		}
		logger := w.logger.WithFields(log.Fields{
			"outbox_id":  event.ID,
			"event_type": event.EventType,
			"order_id":   event.AggregateID,
		})

		if blockedBy, ok := broken[event.AggregateID]; ok {
			publishAttempts.WithLabelValues(resultSkipped).Inc()
			w.fail(ctx, logger, event, fmt.Errorf("preceding event %s of order %s failed", blockedBy, event.AggregateID), 0)
			res.Skipped++
			continue
		}

		err := w.retry.publish(ctx, w.publisher, event)
		switch {
		case err == nil:
			if markErr := w.repo.MarkSent(ctx, event.ID); markErr != nil {
				logger.WithError(markErr).Warn("failed to mark outbox as sent")
			}
			res.Sent++
		case ctx.Err() != nil:
			// Событие остаётся pending до следующего запуска.
			return res
		default:
			logger.WithError(err).Error("outbox publish failed after retries")
			publishAttempts.WithLabelValues(resultFailed).Inc()
			w.fail(ctx, logger, event, err, w.retry.attempts)
			broken[event.AggregateID] = event.ID
			res.Failed++
		}
	}
	return res
}

// fail отправляет событие в DLQ и помечает его failed в outbox.
func (w *Worker) fail(ctx context.Context, logger *log.Entry, event domain.OutboxMessage, cause error, attempts int) {
	if w.dlq != nil {
		msg, err := newDLQMessage(event, cause, attempts, w.now())
		if err == nil {
			err = w.dlq.Publish(msg)
		}
		if err != nil {
			logger.WithError(err).Warn("failed to publish to DLQ")
			publishAttempts.WithLabelValues(resultDLQFailed).Inc()
		}
	}
	if err := w.repo.MarkFailed(ctx, event.ID); err != nil {
		logger.WithError(err).Warn("failed to mark outbox as failed")
	}
}

func (w *Worker) refreshBacklogMetrics(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	pendingRecords.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		oldestPendingAge.Set(0)
		return
	}
	oldestPendingAge.Set(max(w.now().Sub(stats.OldestPendingAt).Seconds(), 0))
}
