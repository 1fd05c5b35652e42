// Package idempotency чистит просроченные ключи, которыми gRPC защищает
// CreateOrder и CreateAccount от повторной аллокации.
package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
	"github.com/vladislavdragonenkov/storefront-ids/internal/metrics"
)

const (
	defaultSweepEvery = 10 * time.Minute
	defaultSweepBatch = 500
)

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupWorker)

// WithLogger задает logger для воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(w *CleanupWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics подключает счётчик удалённых ключей.
func WithMetrics(m *metrics.OutboxMetrics) CleanupOption {
	return func(w *CleanupWorker) { w.metrics = m }
}

// WithInterval задает паузу между проходами; значения <= 0 игнорируются.
func WithInterval(every time.Duration) CleanupOption {
	return func(w *CleanupWorker) {
		if every > 0 {
			w.every = every
		}
	}
}

// WithBatchSize ограничивает число ключей, удаляемых одним запросом.
func WithBatchSize(n int) CleanupOption {
	return func(w *CleanupWorker) {
		if n > 0 {
			w.batch = n
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) CleanupOption {
	return func(w *CleanupWorker) {
		if now != nil {
			w.now = now
		}
	}
}

// CleanupWorker удаляет ключи, чей TTL истёк.
type CleanupWorker struct {
	repo    domain.IdempotencyRepository
	metrics *metrics.OutboxMetrics
	logger  *log.Entry
	now     func() time.Time
	every   time.Duration
	batch   int
}

// NewCleanupWorker создает воркер очистки ключей идемпотентности.
func NewCleanupWorker(repo domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	w := &CleanupWorker{
		repo:   repo,
		logger: log.WithField("component", "idempotency-cleanup-worker"),
		now:    func() time.Time { return time.Now().UTC() },
		every:  defaultSweepEvery,
		batch:  defaultSweepBatch,
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// Run делает первый проход сразу, затем повторяет его каждые every до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("idempotency cleanup disabled: no repository")
		return
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			w.sweep(ctx)
			timer.Reset(w.every)
		}
	}
}

func (w *CleanupWorker) sweep(ctx context.Context) {
	deleted, err := w.DeleteExpired(ctx, w.now())
	switch {
	case errors.Is(err, context.Canceled):
	case err != nil:
		w.logger.WithError(err).WithField("deleted", deleted).Warn("idempotency cleanup failed")
	case deleted > 0:
		w.logger.WithField("deleted", deleted).Info("expired idempotency keys removed")
	}
}

// DeleteExpired удаляет ключи с expires_at <= before, пока репозиторий
// отдаёт полные пачки. Нулевой before означает «сейчас».
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = w.now()
	}

	total := 0
	for full := true; full; {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := w.repo.DeleteExpired(ctx, before, w.batch)
		if err != nil {
			return total, err
		}
		total += n
		w.metrics.RecordCleanup(n)
		full = n >= w.batch
	}
	return total, nil
}
