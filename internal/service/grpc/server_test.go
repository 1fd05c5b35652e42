package grpcsvc_test

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
	"github.com/vladislavdragonenkov/storefront-ids/internal/ordernumber"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/accounts"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/customercode"
	grpcsvc "github.com/vladislavdragonenkov/storefront-ids/internal/service/grpc"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/sequence"
	"github.com/vladislavdragonenkov/storefront-ids/internal/storage/memory"
)

const bufSize = 1024 * 1024

type testEnv struct {
	client   grpcsvc.IdentifierServiceClient
	accounts *memory.AccountRepository
}

func idemCtx(key string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "idempotency-key", key)
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	logger := loggerForTests()
	outbox := memory.NewOutboxRepository()
	accountRepo := memory.NewAccountRepository(outbox)
	orderRepo := memory.NewOrderRepository(accountRepo, outbox)

	assignor := customercode.NewAssignor(accountRepo, customercode.WithLogger(logger))
	allocator := sequence.NewAllocator(accountRepo, orderRepo, sequence.WithLogger(logger))
	service := grpcsvc.NewServer(
		accounts.NewService(accountRepo, assignor, logger),
		orders.NewService(allocator, orderRepo, accountRepo, logger),
		assignor,
		grpcsvc.WithLogger(logger),
		grpcsvc.WithIdempotency(memory.NewIdempotencyRepository(), time.Hour),
	)

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	grpcsvc.RegisterIdentifierServiceServer(server, service)
	go func() {
		if err := server.Serve(listener); err != nil {
			logger.WithError(err).Error("grpc serve failed")
		}
	}()

	dialer := func(context.Context, string) (net.Conn, error) {
		return listener.Dial()
	}
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
	})

	return testEnv{
		client:   grpcsvc.NewIdentifierServiceClient(conn),
		accounts: accountRepo,
	}
}

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: false, DisableTimestamp: true})
	logger.SetLevel(logrus.DebugLevel)
	return logger.WithField("component", "test")
}

func orderRequest(ownerID string) *grpcsvc.CreateOrderRequest {
	return &grpcsvc.CreateOrderRequest{
		OwnerID:     ownerID,
		Currency:    "USD",
		AmountMinor: 2500,
		Items: []grpcsvc.OrderItem{
			{SKU: "SKU-1", Qty: 2, PriceMinor: 1000},
			{SKU: "SKU-2", Qty: 1, PriceMinor: 500},
		},
	}
}

func createAccount(t *testing.T, env testEnv, email string) *grpcsvc.Account {
	t.Helper()

	resp, err := env.client.CreateAccount(context.Background(), &grpcsvc.CreateAccountRequest{Email: email, Name: "Buyer"})
	require.NoError(t, err)
	require.NotNil(t, resp.Account)
	return resp.Account
}

func TestCreateAccount_AssignsCustomerCode(t *testing.T) {
	env := newTestEnv(t)

	first := createAccount(t, env, "first@example.com")
	second := createAccount(t, env, "second@example.com")

	require.NotNil(t, first.CustomerCode)
	require.NotNil(t, second.CustomerCode)
	require.Equal(t, int64(1001), *first.CustomerCode)
	require.Equal(t, int64(1002), *second.CustomerCode)
	require.Equal(t, "customer", first.Role)

	got, err := env.client.GetAccount(context.Background(), &grpcsvc.GetAccountRequest{AccountID: first.ID})
	require.NoError(t, err)
	require.Equal(t, first.CustomerCode, got.Account.CustomerCode)
}

func TestCreateAccount_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	createAccount(t, env, "dup@example.com")

	_, err := env.client.CreateAccount(context.Background(), &grpcsvc.CreateAccountRequest{Email: "DUP@example.com"})
	require.Equal(t, codes.AlreadyExists, status.Code(err))
}

func TestCreateOrder_NumbersPerOwner(t *testing.T) {
	env := newTestEnv(t)
	owner := createAccount(t, env, "owner@example.com")
	other := createAccount(t, env, "other@example.com")

	first, err := env.client.CreateOrder(context.Background(), orderRequest(owner.ID))
	require.NoError(t, err)
	second, err := env.client.CreateOrder(context.Background(), orderRequest(owner.ID))
	require.NoError(t, err)
	foreign, err := env.client.CreateOrder(context.Background(), orderRequest(other.ID))
	require.NoError(t, err)

	require.Equal(t, int64(1), first.Order.SequenceNumber)
	require.Equal(t, int64(2), second.Order.SequenceNumber)
	require.Equal(t, int64(1), foreign.Order.SequenceNumber)

	want, err := ordernumber.Format(owner.CustomerCode, first.Order.CreatedAt, 1)
	require.NoError(t, err)
	require.Equal(t, want, first.Order.OrderNumber)
	require.True(t, strings.HasPrefix(first.Order.OrderNumber, "1001-"))
	require.True(t, strings.HasSuffix(second.Order.OrderNumber, "-0002"))
	require.Len(t, first.Order.Items, 2)
}

func TestCreateOrder_Errors(t *testing.T) {
	env := newTestEnv(t)
	owner := createAccount(t, env, "errors@example.com")

	tests := []struct {
		name string
		req  *grpcsvc.CreateOrderRequest
		code codes.Code
	}{
		{
			name: "missing owner",
			req:  orderRequest(""),
			code: codes.InvalidArgument,
		},
		{
			name: "no items",
			req:  &grpcsvc.CreateOrderRequest{OwnerID: owner.ID, Currency: "USD"},
			code: codes.InvalidArgument,
		},
		{
			name: "amount mismatch",
			req: &grpcsvc.CreateOrderRequest{
				OwnerID:     owner.ID,
				Currency:    "USD",
				AmountMinor: 1,
				Items:       []grpcsvc.OrderItem{{SKU: "SKU-1", Qty: 1, PriceMinor: 100}},
			},
			code: codes.InvalidArgument,
		},
		{
			name: "unknown owner",
			req:  orderRequest("missing-account"),
			code: codes.NotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.client.CreateOrder(context.Background(), tt.req)
			require.Equal(t, tt.code, status.Code(err), "err=%v", err)
		})
	}

	created, err := env.client.CreateOrder(context.Background(), orderRequest(owner.ID))
	require.NoError(t, err)
	require.Equal(t, int64(1), created.Order.SequenceNumber, "rejected requests must not consume numbers")
}

func TestCreateOrder_IdempotencyReplay(t *testing.T) {
	env := newTestEnv(t)
	owner := createAccount(t, env, "idem@example.com")

	first, err := env.client.CreateOrder(idemCtx("order-key-1"), orderRequest(owner.ID))
	require.NoError(t, err)
	replayed, err := env.client.CreateOrder(idemCtx("order-key-1"), orderRequest(owner.ID))
	require.NoError(t, err)

	require.Equal(t, first.Order.ID, replayed.Order.ID)
	require.Equal(t, first.Order.OrderNumber, replayed.Order.OrderNumber)

	list, err := env.client.ListOrders(context.Background(), &grpcsvc.ListOrdersRequest{OwnerID: owner.ID})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)

	changed := orderRequest(owner.ID)
	changed.Currency = "EUR"
	_, err = env.client.CreateOrder(idemCtx("order-key-1"), changed)
	require.Equal(t, codes.AlreadyExists, status.Code(err))
}

func TestCreateOrder_IdempotencyReplaysFailure(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.client.CreateOrder(idemCtx("missing-owner"), orderRequest("missing-account"))
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = env.client.CreateOrder(idemCtx("missing-owner"), orderRequest("missing-account"))
	require.Equal(t, codes.NotFound, status.Code(err))
	require.Equal(t, domain.ErrAccountNotFound.Error(), status.Convert(err).Message())
}

func TestCreateOrder_ConcurrentDistinctNumbers(t *testing.T) {
	env := newTestEnv(t)
	owner := createAccount(t, env, "burst@example.com")

	const total = 40
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = make(map[int64]struct{}, total)
	)
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := env.client.CreateOrder(context.Background(), orderRequest(owner.ID))
			if err != nil {
				t.Errorf("create order: %v", err)
				return
			}
			mu.Lock()
			numbers[resp.Order.SequenceNumber] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, numbers, total)
	for n := int64(1); n <= total; n++ {
		require.Contains(t, numbers, n)
	}
}

func TestCancelOrder_KeepsNumber(t *testing.T) {
	env := newTestEnv(t)
	owner := createAccount(t, env, "cancel@example.com")

	created, err := env.client.CreateOrder(context.Background(), orderRequest(owner.ID))
	require.NoError(t, err)

	canceled, err := env.client.CancelOrder(context.Background(), &grpcsvc.CancelOrderRequest{OrderID: created.Order.ID})
	require.NoError(t, err)
	require.Equal(t, string(domain.OrderStatusCanceled), canceled.Order.Status)
	require.Equal(t, created.Order.OrderNumber, canceled.Order.OrderNumber)

	_, err = env.client.CancelOrder(context.Background(), &grpcsvc.CancelOrderRequest{OrderID: created.Order.ID})
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	next, err := env.client.CreateOrder(context.Background(), orderRequest(owner.ID))
	require.NoError(t, err)
	require.Equal(t, int64(2), next.Order.SequenceNumber)
}

func TestGetOrder_Errors(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.client.GetOrder(context.Background(), &grpcsvc.GetOrderRequest{})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = env.client.GetOrder(context.Background(), &grpcsvc.GetOrderRequest{OrderID: "missing"})
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = env.client.ListOrders(context.Background(), &grpcsvc.ListOrdersRequest{OwnerID: "missing"})
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestAssignCustomerCodes_BackfillsLegacyAccounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"legacy-a", "legacy-b"} {
		require.NoError(t, env.accounts.Create(ctx, domain.Account{
			ID:        id,
			Email:     id + "@example.com",
			Role:      domain.AccountRoleCustomer,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base,
		}))
	}

	legacyOrder, err := env.client.CreateOrder(ctx, orderRequest("legacy-a"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(legacyOrder.Order.OrderNumber, "0000-"))

	resp, err := env.client.AssignCustomerCodes(ctx, &grpcsvc.AssignCustomerCodesRequest{})
	require.NoError(t, err)
	require.Equal(t, 2, resp.CodesAssigned)
	require.NotNil(t, resp.StartingCode)
	require.NotNil(t, resp.EndingCode)
	require.Equal(t, int64(1001), *resp.StartingCode)
	require.Equal(t, int64(1002), *resp.EndingCode)

	reread, err := env.client.GetOrder(ctx, &grpcsvc.GetOrderRequest{OrderID: legacyOrder.Order.ID})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(reread.Order.OrderNumber, "1001-"))

	again, err := env.client.AssignCustomerCodes(ctx, &grpcsvc.AssignCustomerCodesRequest{})
	require.NoError(t, err)
	require.Zero(t, again.CodesAssigned)
	require.Nil(t, again.StartingCode)
}
