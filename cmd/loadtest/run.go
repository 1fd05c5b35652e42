package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sourcegraph/conc/pool"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	grpcsvc "github.com/vladislavdragonenkov/storefront-ids/internal/service/grpc"
)

// runLoad выполняет cfg.total сценариев для одного аккаунта с ограниченным параллелизмом.
// Аккаунт создаётся заранее, если он не задан флагом -account.
func runLoad(ctx context.Context, clients []grpcsvc.IdentifierServiceClient, cfg config) (report, error) {
	if len(clients) == 0 {
		return report{}, errors.New("no grpc clients")
	}

	startedAt := time.Now()
	run := loadRun{
		cfg:   cfg,
		runID: fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid()),
		col:   newCollector(),
	}

	run.accountID = cfg.accountID
	if run.accountID == "" {
		id, err := run.createAccount(ctx, clients[0])
		if err != nil {
			return report{}, fmt.Errorf("create load account: %w", err)
		}
		run.accountID = id
	}

	p := pool.New().WithMaxGoroutines(cfg.concurrency)
	for i := range cfg.total {
		client := clients[i%len(clients)]
		p.Go(func() { run.scenario(ctx, client, i) })
	}
	p.Wait()

	out := run.col.buildReport(startedAt, time.Since(startedAt))
	out.AccountID = run.accountID
	return out, nil
}

type loadRun struct {
	cfg       config
	runID     string
	accountID string
	col       *collector
}

func (r *loadRun) createAccount(ctx context.Context, client grpcsvc.IdentifierServiceClient) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.timeout)
	defer cancel()

	resp, err := client.CreateAccount(ctx, &grpcsvc.CreateAccountRequest{
		Email: fmt.Sprintf("load-%s@example.com", r.runID),
		Name:  "load test",
	})
	if err != nil {
		return "", err
	}
	return resp.Account.ID, nil
}

// scenario оформляет один заказ и в режиме create-cancel сразу отменяет его.
func (r *loadRun) scenario(ctx context.Context, client grpcsvc.IdentifierServiceClient, index int) {
	start := time.Now()
	code := r.placeAndMaybeCancel(ctx, client, index)
	r.col.record(scenarioMethod, time.Since(start), code)
}

func (r *loadRun) placeAndMaybeCancel(ctx context.Context, client grpcsvc.IdentifierServiceClient, index int) codes.Code {
	req := &grpcsvc.CreateOrderRequest{
		OwnerID:     r.accountID,
		Currency:    r.cfg.currency,
		AmountMinor: int64(defaultQty) * r.cfg.amountMinor,
		Items:       []grpcsvc.OrderItem{{SKU: r.cfg.sku, Qty: defaultQty, PriceMinor: r.cfg.amountMinor}},
	}
	key := fmt.Sprintf("lt-create-%s-%d", r.runID, index)

	var created *grpcsvc.CreateOrderResponse
	err := r.timed(ctx, "CreateOrder", func(ctx context.Context) error {
		var err error
		created, err = client.CreateOrder(metadata.AppendToOutgoingContext(ctx, idempotencyHeader, key), req)
		return err
	})
	if err != nil {
		return status.Code(err)
	}
	if created.Order == nil || created.Order.ID == "" {
		return codes.Internal
	}
	r.col.recordNumber(created.Order.SequenceNumber)

	if r.cfg.mode != modeCreateCancel {
		return codes.OK
	}
	err = r.timed(ctx, "CancelOrder", func(ctx context.Context) error {
		_, err := client.CancelOrder(ctx, &grpcsvc.CancelOrderRequest{OrderID: created.Order.ID})
		return err
	})
	return status.Code(err)
}

// timed выполняет одну RPC с таймаутом -timeout и записывает её исход.
func (r *loadRun) timed(ctx context.Context, method string, call func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.timeout)
	defer cancel()

	start := time.Now()
	err := call(ctx)
	r.col.record(method, time.Since(start), status.Code(err))
	return err
}
