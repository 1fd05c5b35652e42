package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vladislavdragonenkov/storefront-ids/internal/service/accounts"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/customercode"
	grpcsvc "github.com/vladislavdragonenkov/storefront-ids/internal/service/grpc"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/sequence"
	"github.com/vladislavdragonenkov/storefront-ids/internal/storage/memory"
)

type fakeIdentifierClient struct {
	grpcsvc.IdentifierServiceClient

	createAccountFn func(context.Context, *grpcsvc.CreateAccountRequest) (*grpcsvc.CreateAccountResponse, error)
	createOrderFn   func(context.Context, *grpcsvc.CreateOrderRequest) (*grpcsvc.CreateOrderResponse, error)
	cancelOrderFn   func(context.Context, *grpcsvc.CancelOrderRequest) (*grpcsvc.CancelOrderResponse, error)
}

func (f *fakeIdentifierClient) CreateAccount(ctx context.Context, req *grpcsvc.CreateAccountRequest, _ ...grpc.CallOption) (*grpcsvc.CreateAccountResponse, error) {
	if f.createAccountFn == nil {
		return nil, errors.New("unexpected CreateAccount call")
	}
	return f.createAccountFn(ctx, req)
}

func (f *fakeIdentifierClient) CreateOrder(ctx context.Context, req *grpcsvc.CreateOrderRequest, _ ...grpc.CallOption) (*grpcsvc.CreateOrderResponse, error) {
	if f.createOrderFn == nil {
		return nil, errors.New("unexpected CreateOrder call")
	}
	return f.createOrderFn(ctx, req)
}

func (f *fakeIdentifierClient) CancelOrder(ctx context.Context, req *grpcsvc.CancelOrderRequest, _ ...grpc.CallOption) (*grpcsvc.CancelOrderResponse, error) {
	if f.cancelOrderFn == nil {
		return nil, errors.New("unexpected CancelOrder call")
	}
	return f.cancelOrderFn(ctx, req)
}

func validConfig() config {
	return config{
		addr:        "localhost:50051",
		total:       10,
		concurrency: 4,
		connections: 1,
		timeout:     time.Second,
		mode:        modeCreate,
		currency:    "USD",
		sku:         "SKU-LOAD",
		amountMinor: defaultAmount,
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := parseConfig(nil)
	if err != nil {
		t.Fatalf("parseConfig() error = %v", err)
	}
	if cfg.total != 400 || cfg.concurrency != 40 || cfg.mode != modeCreate {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	cases := map[string][]string{
		"total":       {"-total", "0"},
		"concurrency": {"-concurrency", "0"},
		"connections": {"-connections", "-1"},
		"timeout":     {"-timeout", "0s"},
		"amount":      {"-amount-minor", "0"},
		"currency":    {"-currency", "EURO"},
		"sku":         {"-sku", " "},
		"mode":        {"-mode", "create-pay"},
		"flag":        {"-unknown"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := parseConfig(args); err == nil {
				t.Fatalf("expected error for %v", args)
			}
		})
	}
}

func TestCheckNumbers(t *testing.T) {
	got := checkNumbers([]int64{3, 1, 2, 5, 5, 5, 7})
	want := numberReport{
		Issued:      7,
		Distinct:    5,
		Duplicates:  []int64{5},
		MinSequence: 1,
		MaxSequence: 7,
		Gaps:        2,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("checkNumbers() = %+v, want %+v", got, want)
	}

	if empty := checkNumbers(nil); empty.Issued != 0 || empty.Distinct != 0 {
		t.Fatalf("unexpected empty report: %+v", empty)
	}
}

func TestRunLoad_DetectsDuplicateNumbers(t *testing.T) {
	var calls atomic.Int64
	client := &fakeIdentifierClient{
		createAccountFn: func(context.Context, *grpcsvc.CreateAccountRequest) (*grpcsvc.CreateAccountResponse, error) {
			return &grpcsvc.CreateAccountResponse{Account: &grpcsvc.Account{ID: "acc-1"}}, nil
		},
		createOrderFn: func(ctx context.Context, req *grpcsvc.CreateOrderRequest) (*grpcsvc.CreateOrderResponse, error) {
			md, _ := metadata.FromOutgoingContext(ctx)
			if len(md.Get(idempotencyHeader)) != 1 {
				return nil, status.Error(codes.InvalidArgument, "missing idempotency key")
			}
			if req.OwnerID != "acc-1" {
				return nil, status.Error(codes.NotFound, "account not found")
			}
			n := calls.Add(1)
			seq := n
			if n == 4 {
				seq = 3
			}
			return &grpcsvc.CreateOrderResponse{Order: &grpcsvc.Order{ID: "ord", SequenceNumber: seq}}, nil
		},
	}

	cfg := validConfig()
	cfg.concurrency = 1
	result, err := runLoad(context.Background(), []grpcsvc.IdentifierServiceClient{client}, cfg)
	if err != nil {
		t.Fatalf("runLoad() error = %v", err)
	}
	if result.AccountID != "acc-1" {
		t.Fatalf("unexpected account: %s", result.AccountID)
	}
	if result.SuccessScenarios != 10 || result.FailedScenarios != 0 {
		t.Fatalf("unexpected scenario counts: %+v", result)
	}
	if !reflect.DeepEqual(result.Numbers.Duplicates, []int64{3}) {
		t.Fatalf("expected duplicate 3, got %+v", result.Numbers)
	}
}

func TestRunLoad_RecordsFailures(t *testing.T) {
	client := &fakeIdentifierClient{
		createOrderFn: func(context.Context, *grpcsvc.CreateOrderRequest) (*grpcsvc.CreateOrderResponse, error) {
			return nil, status.Error(codes.Unavailable, "identifier allocation is temporarily unavailable, retry later")
		},
	}

	cfg := validConfig()
	cfg.accountID = "acc-existing"
	result, err := runLoad(context.Background(), []grpcsvc.IdentifierServiceClient{client}, cfg)
	if err != nil {
		t.Fatalf("runLoad() error = %v", err)
	}
	if result.FailedScenarios != int64(cfg.total) {
		t.Fatalf("expected all scenarios failed, got %d", result.FailedScenarios)
	}
	if result.Methods["CreateOrder"].Codes[codes.Unavailable.String()] != int64(cfg.total) {
		t.Fatalf("unexpected codes: %+v", result.Methods["CreateOrder"].Codes)
	}
	if result.Numbers.Issued != 0 {
		t.Fatalf("no numbers expected, got %+v", result.Numbers)
	}
}

func TestRunLoad_AgainstMemoryServer(t *testing.T) {
	client := newBufconnClient(t)

	cfg := validConfig()
	cfg.total = 60
	cfg.concurrency = 12
	cfg.mode = modeCreateCancel

	result, err := runLoad(context.Background(), []grpcsvc.IdentifierServiceClient{client}, cfg)
	if err != nil {
		t.Fatalf("runLoad() error = %v", err)
	}
	if result.FailedScenarios != 0 {
		t.Fatalf("unexpected failures: %+v", result.Methods)
	}
	want := numberReport{Issued: 60, Distinct: 60, MinSequence: 1, MaxSequence: 60}
	if !reflect.DeepEqual(result.Numbers, want) {
		t.Fatalf("numbers = %+v, want %+v", result.Numbers, want)
	}
	if result.Methods["CancelOrder"].Success != 60 {
		t.Fatalf("expected 60 cancels, got %+v", result.Methods["CancelOrder"])
	}
}

func TestPrintReport(t *testing.T) {
	col := newCollector()
	col.record("scenario", 2*time.Millisecond, codes.OK)
	col.record("CreateOrder", 2*time.Millisecond, codes.OK)
	col.recordNumber(1)
	result := col.buildReport(time.Now(), time.Second)
	result.AccountID = "acc-1"

	var buf bytes.Buffer
	printReport(&buf, result, validConfig())

	out := buf.String()
	for _, want := range []string{"account=acc-1", "issued=1 distinct=1 duplicates=0", "CreateOrder: calls=1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report %q does not contain %q", out, want)
		}
	}
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldWD) })

	result := report{AccountID: "acc-1", Numbers: numberReport{Issued: 2, Distinct: 2, MinSequence: 1, MaxSequence: 2}}
	if err := writeJSONReport("report.json", result); err != nil {
		t.Fatalf("writeJSONReport() error = %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "report.json"))
	if err != nil {
		t.Fatal(err)
	}
	var decoded report
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.AccountID != "acc-1" || decoded.Numbers.Distinct != 2 {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}

	if err := writeJSONReport("../escape.json", result); err == nil {
		t.Fatal("expected error for path outside current directory")
	}
	if err := writeJSONReport(".", result); err == nil {
		t.Fatal("expected error for directory path")
	}
}

func TestPercentile(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	if got := percentile(values, 50); got != 2.5 {
		t.Fatalf("p50 = %v, want 2.5", got)
	}
	if got := percentile(values, 100); got != 4 {
		t.Fatalf("p100 = %v, want 4", got)
	}
	if got := percentile(nil, 95); got != 0 {
		t.Fatalf("empty percentile = %v", got)
	}
	if got := ratio(1, 4); got != 0.25 {
		t.Fatalf("ratio = %v", got)
	}
}

func newBufconnClient(t *testing.T) grpcsvc.IdentifierServiceClient {
	t.Helper()

	outbox := memory.NewOutboxRepository()
	accountRepo := memory.NewAccountRepository(outbox)
	orderRepo := memory.NewOrderRepository(accountRepo, outbox)
	assignor := customercode.NewAssignor(accountRepo)
	allocator := sequence.NewAllocator(accountRepo, orderRepo)
	service := grpcsvc.NewServer(
		accounts.NewService(accountRepo, assignor, nil),
		orders.NewService(allocator, orderRepo, accountRepo, nil),
		assignor,
		grpcsvc.WithIdempotency(memory.NewIdempotencyRepository(), time.Hour),
	)

	listener := bufconn.Listen(1024 * 1024)
	server := grpc.NewServer()
	grpcsvc.RegisterIdentifierServiceServer(server, service)
	go func() { _ = server.Serve(listener) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return listener.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient() error = %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
	})
	return grpcsvc.NewIdentifierServiceClient(conn)
}
