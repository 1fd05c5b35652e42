// Command loadtest гоняет параллельные CreateOrder для одного аккаунта и
// проверяет, что выданные sequence_number не повторяются.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcsvc "github.com/vladislavdragonenkov/storefront-ids/internal/service/grpc"
)

const (
	idempotencyHeader = "idempotency-key"
	defaultAmount     = int64(1000)
	defaultQty        = int32(1)
)

type loadMode string

const (
	modeCreate       loadMode = "create"
	modeCreateCancel loadMode = "create-cancel"
)

type config struct {
	addr        string
	total       int
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	accountID   string
	currency    string
	sku         string
	amountMinor int64
	outputPath  string
}

func (c config) validate() error {
	checks := []struct {
		bad bool
		msg string
	}{
		{c.total <= 0, "total must be > 0"},
		{c.concurrency <= 0, "concurrency must be > 0"},
		{c.connections <= 0, "connections must be > 0"},
		{c.timeout <= 0, "timeout must be > 0"},
		{c.amountMinor <= 0, "amount-minor must be > 0"},
		{len(strings.TrimSpace(c.currency)) != 3, "currency must be a 3-letter code"},
		{strings.TrimSpace(c.sku) == "", "sku is required"},
	}
	for _, ch := range checks {
		if ch.bad {
			return errors.New(ch.msg)
		}
	}
	return nil
}

func parseConfig(args []string) (config, error) {
	var (
		cfg  config
		mode string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	fs.IntVar(&cfg.total, "total", 400, "number of CreateOrder calls for one account")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.IntVar(&cfg.connections, "connections", 4, "number of gRPC client connections")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	fs.StringVar(&mode, "mode", string(modeCreate), "load mode: create | create-cancel")
	fs.StringVar(&cfg.accountID, "account", "", "existing account id (a fresh account is created when empty)")
	fs.StringVar(&cfg.currency, "currency", "USD", "order currency")
	fs.StringVar(&cfg.sku, "sku", "SKU-LOAD", "order item SKU")
	fs.Int64Var(&cfg.amountMinor, "amount-minor", defaultAmount, "order item amount in minor units")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	switch m := loadMode(strings.TrimSpace(mode)); m {
	case modeCreate, modeCreateCancel:
		cfg.mode = m
	default:
		return cfg, fmt.Errorf("unsupported mode: %s", mode)
	}
	return cfg, cfg.validate()
}

func dial(addr string, n int) ([]grpcsvc.IdentifierServiceClient, func(), error) {
	conns := make([]*grpc.ClientConn, 0, n)
	closeAll := func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}

	clients := make([]grpcsvc.IdentifierServiceClient, 0, n)
	for range n {
		conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		conns = append(conns, conn)
		clients = append(clients, grpcsvc.NewIdentifierServiceClient(conn))
	}
	return clients, closeAll, nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		fail("invalid config: %v", err)
	}

	clients, closeAll, err := dial(cfg.addr, cfg.connections)
	if err != nil {
		fail("failed to create grpc client connection: %v", err)
	}

	result, err := runLoad(context.Background(), clients, cfg)
	closeAll()
	if err != nil {
		fail("load test failed: %v", err)
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			fail("failed to write report: %v", err)
		}
	}

	if result.FailedScenarios > 0 || len(result.Numbers.Duplicates) > 0 {
		os.Exit(1)
	}
}
