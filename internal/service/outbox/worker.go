// Package outbox публикует события о номерах заказов и кодах клиентов,
// записанные в transactional outbox вместе с самой аллокацией.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
	"github.com/vladislavdragonenkov/storefront-ids/internal/metrics"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/retry"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 5 * time.Second
)

// Исходы публикации в storefront_outbox_publish_total.
const (
	resultSent       = "sent"
	resultRetryError = "retry_error"
	resultFailed     = "failed"
	resultDLQFailed  = "dlq_failed"
)

// Worker переносит pending-события из outbox в брокер в порядке записи.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	metrics   *metrics.OutboxMetrics
	logger    *log.Entry
	poll      time.Duration
	batch     int
	retry     retry.Config
}

// Option настраивает Worker. Нулевые и отрицательные значения оставляют умолчание.
type Option func(*Worker)

func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithDLQPublisher включает dead letter queue для событий, исчерпавших попытки.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.dlq = publisher }
}

func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.poll = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batch = n
		}
	}
}

// WithMaxAttempts задаёт число попыток публикации до перевода события в failed.
func WithMaxAttempts(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.retry.MaxAttempts = n
		}
	}
}

// WithRetryBaseDelay задаёт первую паузу экспоненциального backoff; 0 убирает паузы.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(w *Worker) { w.retry.InitialDelay = max(d, 0) }
}

// NewWorker создаёт worker; без WithDLQPublisher события после исчерпания попыток только помечаются failed.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, opts ...Option) *Worker {
	w := &Worker{
		repo:      repo,
		publisher: publisher,
		logger:    log.WithField("component", "outbox-worker"),
		poll:      defaultPollInterval,
		batch:     defaultBatchSize,
		retry: retry.Config{
			MaxAttempts:   defaultMaxAttempts,
			InitialDelay:  defaultRetryBaseDelay,
			MaxDelay:      maxRetryDelay,
			BackoffFactor: 2,
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run опрашивает outbox каждые poll до отмены ctx. Первый проход выполняется сразу.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker disabled: no repository or publisher")
		return
	}

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()
	for {
		w.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce публикует один батч и возвращает число событий, помеченных sent.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	defer w.observeBacklog(ctx)

	batch, err := w.repo.PullPending(ctx, w.batch)
	if err != nil {
		w.logger.WithError(err).Warn("outbox pull failed")
		return 0
	}

	sent := 0
	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}
		if w.deliver(ctx, msg) {
			sent++
		}
	}
	return sent
}

// deliver публикует msg и переводит его в sent или failed.
func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) bool {
	entry := w.logger.WithFields(log.Fields{
		"outbox_id":    msg.ID,
		"event_type":   msg.EventType,
		"aggregate_id": msg.AggregateID,
	})

	err := w.publish(ctx, msg)
	switch {
	case err == nil:
		if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
			entry.WithError(err).Warn("outbox message published but not marked sent")
			return false
		}
		return true
	case errors.Is(err, context.Canceled):
		return false
	}

	entry.WithError(err).Error("outbox message given up")
	w.metrics.RecordPublish(resultFailed)
	if w.dlq != nil {
		if err := w.publishDeadLetter(msg, err); err != nil {
			entry.WithError(err).Warn("dead letter not published")
			w.metrics.RecordPublish(resultDLQFailed)
		}
	}
	if err := w.repo.MarkFailed(ctx, msg.ID); err != nil {
		entry.WithError(err).Warn("outbox message not marked failed")
	}
	return false
}

func (w *Worker) publish(ctx context.Context, msg domain.OutboxMessage) error {
	always := func(error) bool { return true }
	attempts, err := retry.Do(ctx, w.retry, always, func(int) error {
		if err := w.publisher.Publish(msg); err != nil {
			w.metrics.RecordPublish(resultRetryError)
			return err
		}
		w.metrics.RecordPublish(resultSent)
		return nil
	}, nil)

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return fmt.Errorf("publish failed after %d attempts: %w", attempts, exhausted.Last)
	}
	return err
}

func (w *Worker) observeBacklog(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("outbox backlog stats unavailable")
		return
	}
	w.metrics.SetBacklog(stats.PendingCount, stats.OldestPendingAt)
}

// deadLetterBody — payload события в DLQ: исходное событие плюс причина отказа.
type deadLetterBody struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
	FailedAt      time.Time       `json:"dlq_published_at"`
}

func (w *Worker) publishDeadLetter(msg domain.OutboxMessage, cause error) error {
	dl, err := deadLetter(msg, cause, time.Now())
	if err != nil {
		return err
	}
	return w.dlq.Publish(dl)
}

func deadLetter(msg domain.OutboxMessage, cause error, at time.Time) (domain.OutboxMessage, error) {
	body := deadLetterBody{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		PublishError:  cause.Error(),
		FailedAt:      at.UTC(),
	}
	if len(body.Payload) == 0 {
		body.Payload = json.RawMessage("null")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("encode dead letter for %s: %w", msg.ID, err)
	}

	out := msg
	out.Payload = payload
	return out, nil
}
