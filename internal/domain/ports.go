package domain

import (
	"context"
	"time"
)

// OutboxStatus — состояние события в outbox. Из pending событие уходит ровно один раз.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
	OutboxStatusFailed  OutboxStatus = "failed"
)

// OutboxMessage — событие, записанное той же транзакцией, что и изменение агрегата.
type OutboxMessage struct {
	ID            string
	AggregateType string
	// AggregateID служит ключом партиционирования при публикации.
	AggregateID string
	EventType   string
	Payload     []byte
}

// OutboxStats — размер backlog и время записи самого старого pending-события.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// OutboxRepository — журнал событий. PullPending отдаёт события в порядке записи;
// MarkSent и MarkFailed возвращают ErrOutboxPublish для события не в статусе pending.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxPublisher доставляет событие брокеру. Доставка at-least-once:
// потребители дедуплицируют по ID.
type OutboxPublisher interface {
	Publish(msg OutboxMessage) error
}

// IdempotencyRepository хранит результат запроса по idempotency-key до ttlAt.
// CreateProcessing на живом ключе возвращает ErrIdempotencyKeyAlreadyExists
// или ErrIdempotencyHashMismatch вместе с записью-владельцем.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, status int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, status int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
