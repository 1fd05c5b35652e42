package app

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-ids/internal/config"
	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
	"github.com/vladislavdragonenkov/storefront-ids/internal/metrics"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/accounts"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/customercode"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/sequence"
	"github.com/vladislavdragonenkov/storefront-ids/internal/storage/postgres"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Accounts    domain.AccountRepository
	Orders      domain.OrderRepository
	Outbox      domain.OutboxRepository
	Idempotency domain.IdempotencyRepository

	Allocator  *sequence.Allocator
	Assignor   *customercode.Assignor
	AccountSvc *accounts.Service
	OrderSvc   *orders.Service

	// Store — nil для memory-хранилища.
	Store  *postgres.Store
	Logger *log.Entry

	runtime *runtimeDependencies
}

// NewDependencies открывает хранилище и собирает сервисы аллокации поверх него.
func NewDependencies(ctx context.Context, cfg config.Config, registerer prometheus.Registerer, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	rt, err := initRuntimeDependencies(ctx, cfg, logger.WithField("layer", "storage"))
	if err != nil {
		return nil, err
	}

	allocationMetrics := metrics.NewAllocationMetricsWithRegisterer(registerer)
	retryPolicy := cfg.Allocation.Retry()

	allocator := sequence.NewAllocator(rt.accounts, rt.orders,
		sequence.WithLogger(logger.WithField("component", "sequence-allocator")),
		sequence.WithMetrics(allocationMetrics),
		sequence.WithRetry(retryPolicy),
	)
	assignor := customercode.NewAssignor(rt.accounts,
		customercode.WithLogger(logger.WithField("component", "customer-code-assignor")),
		customercode.WithMetrics(allocationMetrics),
		customercode.WithRetry(retryPolicy),
		customercode.WithStart(cfg.CustomerCode.Start),
		customercode.WithBatchLimit(cfg.CustomerCode.BatchLimit),
	)

	return &Dependencies{
		Accounts:    rt.accounts,
		Orders:      rt.orders,
		Outbox:      rt.outboxRepo,
		Idempotency: rt.idempotencyRepo,
		Allocator:   allocator,
		Assignor:    assignor,
		AccountSvc:  accounts.NewService(rt.accounts, assignor, logger.WithField("component", "accounts")),
		OrderSvc:    orders.NewService(allocator, rt.orders, rt.accounts, logger.WithField("component", "orders")),
		Store:       rt.store,
		Logger:      logger,
		runtime:     rt,
	}, nil
}

// Close освобождает соединения хранилища.
func (d *Dependencies) Close() error {
	if d == nil {
		return nil
	}
	return d.runtime.close()
}
