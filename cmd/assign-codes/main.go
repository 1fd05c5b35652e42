// Команда assign-codes выдаёт customer_code всем аккаунтам без кода и печатает итог.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-ids/internal/app"
	"github.com/vladislavdragonenkov/storefront-ids/internal/config"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/customercode"
)

const (
	formatText = "text"
	formatJSON = "json"
)

func parseFormat(args []string) (string, error) {
	fs := flag.NewFlagSet("assign-codes", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	format := fs.String("format", formatText, "output format: text|json")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	switch *format {
	case formatText, formatJSON:
		return *format, nil
	default:
		return "", fmt.Errorf("unsupported format: %s (use text|json)", *format)
	}
}

// run выполняет один пакетный прогон на хранилище из cfg.
func run(ctx context.Context, cfg config.Config, format string, out io.Writer) (customercode.BatchSummary, error) {
	deps, err := app.NewDependencies(ctx, cfg, prometheus.NewRegistry(), log.WithField("component", "assign-codes"))
	if err != nil {
		return customercode.BatchSummary{}, err
	}
	defer func() { _ = deps.Close() }()

	summary, err := deps.Assignor.AssignCustomerCodes(ctx)
	if err != nil {
		return customercode.BatchSummary{}, err
	}
	if err := printSummary(out, format, summary); err != nil {
		return summary, err
	}
	return summary, nil
}

func printSummary(out io.Writer, format string, summary customercode.BatchSummary) error {
	if format == formatJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(summary)
	}

	if _, err := fmt.Fprintln(out, summary.Message); err != nil {
		return err
	}
	if summary.StartingCode != nil && summary.EndingCode != nil {
		if _, err := fmt.Fprintf(out, "range: %d..%d\n", *summary.StartingCode, *summary.EndingCode); err != nil {
			return err
		}
	}
	for _, id := range summary.Skipped {
		if _, err := fmt.Fprintf(out, "skipped: %s\n", id); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	format, err := parseFormat(os.Args[1:])
	if err != nil {
		fail("%v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fail("load config: %v", err)
	}
	if err := app.SetupLogger(cfg.Log); err != nil {
		fail("%v", err)
	}
	if cfg.Storage.Driver == config.StorageDriverMemory {
		log.Warn("memory storage selected: the backfill only affects this process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := run(ctx, cfg, format, os.Stdout)
	if err != nil {
		fail("assign customer codes: %v", err)
	}
	if len(summary.Skipped) > 0 {
		os.Exit(2)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
