package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
	"github.com/vladislavdragonenkov/storefront-ids/internal/events"
)

// OrderRepository — in-memory хранилище заказов с отметкой sequence_number на владельца.
type OrderRepository struct {
	mu         sync.RWMutex
	items      map[string]domain.Order
	watermarks map[string]int64
	taken      map[string]map[int64]string
	accounts   *AccountRepository
	outbox     domain.OutboxRepository
}

// NewOrderRepository связывает заказы с хранилищем аккаунтов. outbox может быть nil.
func NewOrderRepository(accounts *AccountRepository, outbox domain.OutboxRepository) *OrderRepository {
	return &OrderRepository{
		items:      make(map[string]domain.Order),
		watermarks: make(map[string]int64),
		taken:      make(map[string]map[int64]string),
		accounts:   accounts,
		outbox:     outbox,
	}
}

// CreateWithNextSequence резервирует next = watermark+1 и сохраняет заказ под одной блокировкой.
func (r *OrderRepository) CreateWithNextSequence(ctx context.Context, order domain.Order) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	code, ok := r.accounts.customerCode(order.OwnerID)
	if !ok {
		return domain.Order{}, domain.ErrAccountNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.Order{}, domain.ErrOrderAlreadyExists
	}

	next := r.watermarks[order.OwnerID] + 1
	if _, busy := r.taken[order.OwnerID][next]; busy {
		return domain.Order{}, fmt.Errorf("owner %s seq %d: %w", order.OwnerID, next, domain.ErrSequenceConflict)
	}
	order.SequenceNumber = next

	if r.outbox != nil {
		msg, err := events.OrderCreated(domain.OrderView{Order: order, CustomerCode: code})
		if err != nil {
			return domain.Order{}, err
		}
		if _, err := r.outbox.Enqueue(ctx, msg); err != nil {
			return domain.Order{}, fmt.Errorf("enqueue outbox: %w", err)
		}
	}

	r.items[order.ID] = cloneOrder(order)
	r.watermarks[order.OwnerID] = next
	if r.taken[order.OwnerID] == nil {
		r.taken[order.OwnerID] = make(map[int64]string)
	}
	r.taken[order.OwnerID][next] = order.ID

	return cloneOrder(order), nil
}

// Get возвращает заказ или ErrOrderNotFound.
func (r *OrderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// ListByOwner возвращает заказы владельца по убыванию sequence_number.
func (r *OrderRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.taken[ownerID]))
	for _, id := range r.taken[ownerID] {
		if order, ok := r.items[id]; ok {
			result = append(result, cloneOrder(order))
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].SequenceNumber > result[j].SequenceNumber })

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Cancel переводит заказ в canceled и пишет событие order.canceled.
func (r *OrderRepository) Cancel(ctx context.Context, id string, at time.Time) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if order.Status == domain.OrderStatusCanceled {
		return domain.Order{}, domain.ErrOrderAlreadyCanceled
	}

	order.Status = domain.OrderStatusCanceled
	order.UpdatedAt = at.UTC()

	if r.outbox != nil {
		code, _ := r.accounts.customerCode(order.OwnerID)
		msg, err := events.OrderCanceled(domain.OrderView{Order: order, CustomerCode: code})
		if err != nil {
			return domain.Order{}, err
		}
		if _, err := r.outbox.Enqueue(ctx, msg); err != nil {
			return domain.Order{}, fmt.Errorf("enqueue outbox: %w", err)
		}
	}

	r.items[id] = order
	return cloneOrder(order), nil
}

// Delete удаляет заказ. Отметка владельца не откатывается, номер не выдаётся повторно.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	delete(r.items, id)
	delete(r.taken[order.OwnerID], order.SequenceNumber)
	return nil
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = append([]domain.OrderItem(nil), src.Items...)
	return dst
}

var _ domain.OrderRepository = (*OrderRepository)(nil)
