package app

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/accounts"
)

func TestNewDependencies_Memory(t *testing.T) {
	logger := log.WithField("test", "dependencies")
	deps, err := NewDependencies(context.Background(), memoryConfig(), prometheus.NewRegistry(), logger)
	require.NoError(t, err)
	defer func() { require.NoError(t, deps.Close()) }()

	require.NotNil(t, deps.Accounts)
	require.NotNil(t, deps.Orders)
	require.NotNil(t, deps.Outbox)
	require.NotNil(t, deps.Idempotency)
	require.NotNil(t, deps.Allocator)
	require.NotNil(t, deps.Assignor)
	require.NotNil(t, deps.AccountSvc)
	require.NotNil(t, deps.OrderSvc)
	require.Nil(t, deps.Store)
	require.Same(t, logger, deps.Logger)
}

func TestNewDependencies_NilLogger(t *testing.T) {
	deps, err := NewDependencies(context.Background(), memoryConfig(), prometheus.NewRegistry(), nil)
	require.NoError(t, err)
	require.NotNil(t, deps.Logger)
}

func TestNewDependencies_WiresCodeStartAndNumbering(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	cfg.CustomerCode.Start = 5000

	deps, err := NewDependencies(ctx, cfg, prometheus.NewRegistry(), log.WithField("test", "wiring"))
	require.NoError(t, err)

	account, err := deps.AccountSvc.CreateAccount(ctx, accounts.Input{Email: "buyer@example.com", Name: "Buyer"})
	require.NoError(t, err)
	require.NotNil(t, account.CustomerCode)
	require.Equal(t, int64(5001), *account.CustomerCode)

	payload := domain.OrderPayload{
		Currency:    "USD",
		AmountMinor: 1500,
		Items:       []domain.OrderItemInput{{SKU: "SKU-1", Qty: 3, PriceMinor: 500}},
	}
	first, err := deps.OrderSvc.Create(ctx, account.ID, payload)
	require.NoError(t, err)
	second, err := deps.OrderSvc.Create(ctx, account.ID, payload)
	require.NoError(t, err)

	require.Equal(t, int64(1), first.SequenceNumber)
	require.Equal(t, int64(2), second.SequenceNumber)
	require.Contains(t, second.Number, "5001-")
	require.Contains(t, second.Number, "-0002")

	pending, err := deps.Outbox.Stats(ctx)
	require.NoError(t, err)
	require.Positive(t, pending.PendingCount)
}

func TestDependencies_CloseNil(t *testing.T) {
	var deps *Dependencies
	require.NoError(t, deps.Close())
}
