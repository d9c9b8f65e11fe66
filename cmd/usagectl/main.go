// Command usagectl runs operator tasks against usage data: parsing a report locally,
// backfilling conversion factors and checking stored values.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/FACorreiaa/store-usage/internal/domain/usage/conversion"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/extractor"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/metrics"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/parser"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/repository"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/service"
	"github.com/FACorreiaa/store-usage/pkg/config"
	"github.com/FACorreiaa/store-usage/pkg/db"
	"github.com/FACorreiaa/store-usage/pkg/observability"
)

const usage = `usage: usagectl <command> [flags] [args]

commands:
  parse <file.pdf>                              extract and parse a report, print JSON
  backfill-conversions                          rewrite stored conversions from the catalog
  check-product [-multiplier N] <store> <P...>  compare stored and recomputed values
  check-store <store>                           summarise a store's current entry
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if err := run(ctx, os.Args[1:], os.Stdout, logger); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		logger.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer, logger *slog.Logger) error {
	if len(args) == 0 {
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "parse":
		return runParse(ctx, rest, out, logger)
	case "backfill-conversions", "check-product", "check-store":
		return withService(ctx, logger, func(svc *service.Service) error {
			switch cmd {
			case "backfill-conversions":
				return runBackfill(ctx, svc, out)
			case "check-product":
				return runCheckProduct(ctx, svc, rest, out)
			default:
				return runCheckStore(ctx, svc, rest, out)
			}
		})
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

type parseOutput struct {
	File        string              `json:"file"`
	Products    int                 `json:"products"`
	Report      parser.Report       `json:"report"`
	Diagnostics []parser.Diagnostic `json:"diagnostics"`
}

func runParse(ctx context.Context, args []string, out io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("parse", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}

	content, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", fs.Arg(0), err)
	}

	text, err := extractor.New(logger).Extract(ctx, content)
	if err != nil {
		return err
	}

	result := parser.Parse(text)
	diagnostics := result.Diagnostics
	if diagnostics == nil {
		diagnostics = []parser.Diagnostic{}
	}
	return writeJSON(out, parseOutput{
		File:        fs.Arg(0),
		Products:    result.Report.ProductCount(),
		Report:      result.Report,
		Diagnostics: diagnostics,
	})
}

func runBackfill(ctx context.Context, svc *service.Service, out io.Writer) error {
	result, err := svc.BackfillConversions(ctx)
	if err != nil {
		return err
	}
	return writeJSON(out, result)
}

func runCheckProduct(ctx context.Context, svc *service.Service, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("check-product", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	multiplier := fs.Int64("multiplier", metrics.DefaultMultiplier, "sales volume preset in thousands")
	if err := fs.Parse(args); err != nil || fs.NArg() != 2 {
		return errUsage
	}

	check, err := svc.CheckProduct(ctx, fs.Arg(0), fs.Arg(1), *multiplier)
	if err != nil {
		return err
	}
	return writeJSON(out, check)
}

func runCheckStore(ctx context.Context, svc *service.Service, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errUsage
	}
	summary, err := svc.CheckStore(ctx, args[0])
	if err != nil {
		return err
	}
	return writeJSON(out, summary)
}

// withService connects to the database configured in the environment. HTTP settings
// such as JWT_SECRET are not required.
func withService(ctx context.Context, logger *slog.Logger, fn func(*service.Service) error) error {
	cfg, err := config.LoadDatabase()
	if err != nil {
		return err
	}

	database, err := db.New(db.Config{
		DSN:      cfg.Database.DSN(),
		MaxConns: 2,
	}, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	conversions := conversion.Default()
	if cfg.Usage.ConversionFile != "" {
		if conversions, err = conversion.LoadFile(cfg.Usage.ConversionFile); err != nil {
			return err
		}
	}

	svc := service.NewService(
		repository.NewPostgresUsageRepository(database.Pool),
		extractor.New(logger),
		conversions,
		observability.NewMetrics(prometheus.NewRegistry()),
		observability.NewTracer(false),
		logger,
	)
	return fn(svc)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
