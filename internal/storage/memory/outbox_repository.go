package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
)

const defaultOutboxPullLimit = 100

type outboxEntry struct {
	msg       domain.OutboxMessage
	status    domain.OutboxStatus
	attempts  int
	createdAt time.Time
	updatedAt time.Time
}

// OutboxRepository — журнал outbox в памяти. Порядок в log совпадает с порядком Enqueue.
type OutboxRepository struct {
	mu   sync.RWMutex
	log  []*outboxEntry
	byID map[string]*outboxEntry
	now  func() time.Time
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		byID: make(map[string]*outboxEntry),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue добавляет событие в конец журнала; пустой ID заменяется на UUID.
func (r *OutboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboxMessage{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Payload = slices.Clone(msg.Payload)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.byID[msg.ID]; dup {
		return domain.OutboxMessage{}, fmt.Errorf("outbox message %s already enqueued", msg.ID)
	}
	now := r.now()
	e := &outboxEntry{msg: msg, status: domain.OutboxStatusPending, createdAt: now, updatedAt: now}
	r.log = append(r.log, e)
	r.byID[msg.ID] = e
	return msg, nil
}

func (r *OutboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultOutboxPullLimit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pending(limit), nil
}

func (r *OutboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboxStats{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.OutboxStats
	for _, e := range r.log {
		if e.status != domain.OutboxStatusPending {
			continue
		}
		if stats.PendingCount == 0 {
			stats.OldestPendingAt = e.createdAt
		}
		stats.PendingCount++
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.settle(id, domain.OutboxStatusSent)
}

func (r *OutboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.settle(id, domain.OutboxStatusFailed)
}

// AllPending возвращает весь backlog в порядке записи.
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pending(0)
}

func (r *OutboxRepository) settle(id string, status domain.OutboxStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok || e.status != domain.OutboxStatusPending {
		return fmt.Errorf("%w: message %s is not pending", domain.ErrOutboxPublish, id)
	}
	e.status = status
	e.attempts++
	e.updatedAt = r.now()
	return nil
}

// pending собирает до limit pending-сообщений; limit <= 0 означает все.
func (r *OutboxRepository) pending(limit int) []domain.OutboxMessage {
	out := []domain.OutboxMessage{}
	for _, e := range r.log {
		if limit > 0 && len(out) == limit {
			break
		}
		if e.status == domain.OutboxStatusPending {
			out = append(out, e.msg)
		}
	}
	return out
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
