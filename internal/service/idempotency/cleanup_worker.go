package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500

	// TargetKeys — метка очистки ключей идемпотентности в метриках и логах.
	TargetKeys = "idempotency_keys"
)

var (
	cleanupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_cleanup_runs_total",
		Help: "Cleanup runs by target and result.",
	}, []string{"target", "result"})
	cleanupDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_cleanup_deleted_total",
		Help: "Expired records deleted by target.",
	}, []string{"target"})
	cleanupLastDeleted = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bookstore_cleanup_last_deleted",
		Help: "Records deleted by the last cleanup run of a target.",
	}, []string{"target"})
)

// SweepFunc удаляет записи, истёкшие к моменту before, и возвращает их количество.
type SweepFunc func(ctx context.Context, before time.Time) (int, error)

// ExpiredKeys возвращает очистку ключей идемпотентности порциями по batchSize.
func ExpiredKeys(repo domain.IdempotencyRepository, batchSize int) SweepFunc {
	if batchSize <= 0 {
		batchSize = defaultCleanupBatchSize
	}
	return func(ctx context.Context, before time.Time) (int, error) {
		total := 0
		for {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			deleted, err := repo.DeleteExpired(ctx, before, batchSize)
			total += deleted
			if err != nil || deleted < batchSize {
				return total, err
			}
		}
	}
}

type sweep struct {
	target string
	fn     SweepFunc
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupWorker)

func WithLogger(logger *log.Entry) CleanupOption {
	return func(w *CleanupWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithInterval задаёт паузу между циклами; неположительное значение игнорируется.
func WithInterval(interval time.Duration) CleanupOption {
	return func(w *CleanupWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithSweep регистрирует очистку под именем target.
func WithSweep(target string, fn SweepFunc) CleanupOption {
	return func(w *CleanupWorker) {
		if fn != nil {
			w.sweeps = append(w.sweeps, sweep{target: target, fn: fn})
		}
	}
}

// CleanupWorker периодически выполняет зарегистрированные очистки:
// просроченные ключи идемпотентности, истёкшие корзины.
type CleanupWorker struct {
	logger   *log.Entry
	interval time.Duration
	sweeps   []sweep
	now      func() time.Time
}

func NewCleanupWorker(options ...CleanupOption) *CleanupWorker {
	w := &CleanupWorker{
		logger:   log.WithField("component", "cleanup-worker"),
		interval: defaultCleanupInterval,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// Run выполняет очистки сразу и затем каждые interval до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if len(w.sweeps) == 0 {
		w.logger.Warn("cleanup worker is disabled: nothing to clean")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.RunOnce(ctx, w.now())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce выполняет все очистки один раз и возвращает число удалённых записей по target.
// Ошибка одной очистки не мешает остальным.
func (w *CleanupWorker) RunOnce(ctx context.Context, before time.Time) map[string]int {
	deleted := make(map[string]int, len(w.sweeps))
	for _, s := range w.sweeps {
		n, err := s.fn(ctx, before)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return deleted
			}
			cleanupRunsTotal.WithLabelValues(s.target, "error").Inc()
			w.logger.WithError(err).WithField("target", s.target).Warn("cleanup run failed")
			continue
		}

		deleted[s.target] = n
		cleanupRunsTotal.WithLabelValues(s.target, "ok").Inc()
		cleanupLastDeleted.WithLabelValues(s.target).Set(float64(n))
		if n > 0 {
			cleanupDeletedTotal.WithLabelValues(s.target).Add(float64(n))
			w.logger.WithFields(log.Fields{"target": s.target, "deleted": n}).Info("cleanup completed")
		}
	}
	return deleted
}
