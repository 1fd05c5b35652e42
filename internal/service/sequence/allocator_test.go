package sequence

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
	"github.com/vladislavdragonenkov/storefront-ids/internal/metrics"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/retry"
	"github.com/vladislavdragonenkov/storefront-ids/internal/storage/memory"
)

func validPayload() domain.OrderPayload {
	return domain.OrderPayload{
		Currency:    "USD",
		AmountMinor: 300,
		Items: []domain.OrderItemInput{
			{SKU: "sku-1", Qty: 1, PriceMinor: 100},
			{SKU: "sku-2", Qty: 2, PriceMinor: 100},
		},
	}
}

func fastRetry(attempts int) retry.Config {
	return retry.Config{MaxAttempts: attempts, BackoffFactor: 2}
}

func newMemoryAllocator(t *testing.T, owners ...string) (*Allocator, *memory.OrderRepository) {
	t.Helper()

	accounts := memory.NewAccountRepository(nil)
	for _, owner := range owners {
		require.NoError(t, accounts.Create(context.Background(), domain.Account{
			ID:        owner,
			Email:     owner + "@example.com",
			Role:      domain.AccountRoleCustomer,
			CreatedAt: time.Now().UTC(),
		}))
	}
	orders := memory.NewOrderRepository(accounts, nil)

	return NewAllocator(accounts, orders,
		WithRetry(fastRetry(5)),
		WithMetrics(metrics.NewAllocationMetricsWithRegisterer(prometheus.NewRegistry())),
	), orders
}

func TestAllocateAndCreateOrder_FirstOrderGetsOne(t *testing.T) {
	allocator, _ := newMemoryAllocator(t, "owner-1")

	order, err := allocator.AllocateAndCreateOrder(context.Background(), "owner-1", validPayload())
	require.NoError(t, err)
	require.Equal(t, int64(1), order.SequenceNumber)
	require.Equal(t, domain.OrderStatusPlaced, order.Status)
	require.Len(t, order.Items, 2)
	require.Equal(t, time.UTC, order.CreatedAt.Location())
}

func TestAllocateAndCreateOrder_InvalidInputConsumesNothing(t *testing.T) {
	allocator, _ := newMemoryAllocator(t, "owner-1")
	ctx := context.Background()

	_, err := allocator.AllocateAndCreateOrder(ctx, "owner-1", domain.OrderPayload{Currency: "USD"})
	require.True(t, domain.IsInvalidInput(err))

	mismatch := validPayload()
	mismatch.AmountMinor = 1
	_, err = allocator.AllocateAndCreateOrder(ctx, "owner-1", mismatch)
	require.True(t, domain.IsInvalidInput(err))
	require.ErrorIs(t, err, domain.ErrAmountMismatch)

	_, err = allocator.AllocateAndCreateOrder(ctx, "", validPayload())
	require.True(t, domain.IsInvalidInput(err))

	// 4 * 2^62 в int64 заворачивается в 0 и совпал бы с amount_minor=0.
	wrapped := domain.OrderPayload{
		Currency:    "USD",
		AmountMinor: 0,
		Items:       []domain.OrderItemInput{{SKU: "sku-1", Qty: 4, PriceMinor: 1 << 62}},
	}
	_, err = allocator.AllocateAndCreateOrder(ctx, "owner-1", wrapped)
	require.True(t, domain.IsInvalidInput(err))
	require.ErrorIs(t, err, domain.ErrAmountOverflow)

	order, err := allocator.AllocateAndCreateOrder(ctx, "owner-1", validPayload())
	require.NoError(t, err)
	require.Equal(t, int64(1), order.SequenceNumber)
}

func TestAllocateAndCreateOrder_UnknownOwner(t *testing.T) {
	allocator, _ := newMemoryAllocator(t)

	_, err := allocator.AllocateAndCreateOrder(context.Background(), "ghost", validPayload())
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
	require.True(t, domain.IsNotFound(err))
}

func TestAllocateAndCreateOrder_ConcurrentCallsGetDistinctNumbers(t *testing.T) {
	allocator, orders := newMemoryAllocator(t, "owner-1")
	const n = 64

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seqs = make(map[int64]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := allocator.AllocateAndCreateOrder(context.Background(), "owner-1", validPayload())
			if err != nil {
				t.Errorf("allocate: %v", err)
				return
			}
			mu.Lock()
			seqs[order.SequenceNumber] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seqs, n)
	list, err := orders.ListByOwner(context.Background(), "owner-1", 1)
	require.NoError(t, err)
	require.Equal(t, int64(n), list[0].SequenceNumber)
}

// conflictingOrders возвращает ErrSequenceConflict первые failures раз.
type conflictingOrders struct {
	domain.OrderRepository
	failures int32
	calls    atomic.Int32
}

func (c *conflictingOrders) CreateWithNextSequence(ctx context.Context, order domain.Order) (domain.Order, error) {
	call := c.calls.Add(1)
	if call <= c.failures {
		return domain.Order{}, fmt.Errorf("owner %s: %w", order.OwnerID, domain.ErrSequenceConflict)
	}
	return c.OrderRepository.CreateWithNextSequence(ctx, order)
}

func TestAllocateAndCreateOrder_RetriesConflicts(t *testing.T) {
	accounts := memory.NewAccountRepository(nil)
	require.NoError(t, accounts.Create(context.Background(), domain.Account{ID: "owner-1", Email: "o@example.com", Role: domain.AccountRoleCustomer}))
	orders := &conflictingOrders{OrderRepository: memory.NewOrderRepository(accounts, nil), failures: 2}

	allocator := NewAllocator(accounts, orders, WithRetry(fastRetry(5)))

	order, err := allocator.AllocateAndCreateOrder(context.Background(), "owner-1", validPayload())
	require.NoError(t, err)
	require.Equal(t, int64(1), order.SequenceNumber)
	require.Equal(t, int32(3), orders.calls.Load())
}

func TestAllocateAndCreateOrder_ExhaustsRetries(t *testing.T) {
	accounts := memory.NewAccountRepository(nil)
	require.NoError(t, accounts.Create(context.Background(), domain.Account{ID: "owner-1", Email: "o@example.com", Role: domain.AccountRoleCustomer}))
	orders := &conflictingOrders{OrderRepository: memory.NewOrderRepository(accounts, nil), failures: 100}

	allocator := NewAllocator(accounts, orders, WithRetry(fastRetry(3)))

	_, err := allocator.AllocateAndCreateOrder(context.Background(), "owner-1", validPayload())
	require.ErrorIs(t, err, domain.ErrAllocationExhausted)
	require.Contains(t, err.Error(), "after 3 attempts")
	require.Equal(t, int32(3), orders.calls.Load())
}

func TestAllocateAndCreateOrder_ContextCanceled(t *testing.T) {
	allocator, _ := newMemoryAllocator(t, "owner-1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := allocator.AllocateAndCreateOrder(ctx, "owner-1", validPayload())
	require.ErrorIs(t, err, context.Canceled)
}

func TestAllocateAndCreateOrder_UsesInjectedIDsAndClock(t *testing.T) {
	accounts := memory.NewAccountRepository(nil)
	require.NoError(t, accounts.Create(context.Background(), domain.Account{ID: "owner-1", Email: "o@example.com", Role: domain.AccountRoleCustomer}))

	var next atomic.Int32
	fixed := time.Date(2024, 3, 5, 23, 30, 0, 0, time.FixedZone("UTC+3", 3*3600))
	allocator := NewAllocator(accounts, memory.NewOrderRepository(accounts, nil),
		WithIDGenerator(func() string { return fmt.Sprintf("id-%d", next.Add(1)) }),
		WithClock(func() time.Time { return fixed }),
	)

	order, err := allocator.AllocateAndCreateOrder(context.Background(), "owner-1", validPayload())
	require.NoError(t, err)
	require.Equal(t, "id-1", order.ID)
	require.Equal(t, "id-2", order.Items[0].ID)
	require.True(t, order.CreatedAt.Equal(fixed))
	require.Equal(t, time.UTC, order.CreatedAt.Location())
}
