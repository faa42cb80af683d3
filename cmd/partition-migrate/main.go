// Command partition-migrate drives the Migration Coordinator (C10): moving
// legacy single-file ticker storage into the ticker-month partitioned
// layout, one (venue, interval) at a time. Grounded on
// _examples/chenjiangme-jupitor/cmd/us-alpaca-data/main.go's dual-logger
// setup and _examples/original_source/src/yf_parqed/partition_migration_service.py's
// CLI-facing operations (init, status, migrate, verify).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"marketvault/internal/config"
	"marketvault/internal/migration"
	"marketvault/internal/parquetio"
	"marketvault/internal/registry"
	"marketvault/internal/runlock"
	"marketvault/internal/store"
	"marketvault/internal/util"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfgPath := envOr("MARKETVAULT_CONFIG", "config/marketvault.yaml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	switch os.Args[1] {
	case "init":
		runInit(cfg, logger, os.Args[2:])
	case "status":
		runStatus(cfg, os.Args[2:])
	case "migrate":
		runMigrate(cfg, logger, os.Args[2:])
	case "verify":
		runVerify(cfg, logger, os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: partition-migrate <init|status|migrate|verify> <venue> [flags]")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func buildCoordinator(cfg *config.Config, svc *config.Service) (*migration.Coordinator, *registry.Registry, error) {
	reg, err := registry.New(filepath.Join(cfg.Storage.DataDir, "tickers.json"), time.Now)
	if err != nil {
		return nil, nil, fmt.Errorf("opening tickers.json: %w", err)
	}
	legacy := store.NewLegacyBackend(cfg.Storage.DataDir, parquetio.DefaultWriteOptions())
	partitioned := store.NewPartitionedBackend(cfg.Storage.DataDir, parquetio.DefaultWriteOptions())
	now := func() string { return time.Now().UTC().Format(time.RFC3339) }
	coord := migration.NewCoordinator(cfg.Storage.DataDir, legacy, partitioned, reg, now, "partition-migrate")
	coord.ActivatePartitionedStorage = svc.ActivatePartitionedStorage()
	return coord, reg, nil
}

func runInit(cfg *config.Config, logger *slog.Logger, args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	intervalsFlag := fs.String("intervals", "", "comma-separated interval list (defaults to config)")
	force := fs.Bool("force", false, "overwrite an existing plan")
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "init requires a venue argument")
		os.Exit(1)
	}
	venue := fs.Arg(0)

	intervals := cfg.OHLCV.Intervals
	if *intervalsFlag != "" {
		intervals = splitComma(*intervalsFlag)
	}

	svc := config.NewService(cfg.Storage.DataDir)
	coord, _, err := buildCoordinator(cfg, svc)
	if err != nil {
		log.Fatalf("init: %v", err)
	}

	lock := runlock.New(cfg.Storage.DataDir)
	if ok, err := lock.TryAcquire(); err != nil {
		log.Fatalf("acquiring run lock: %v", err)
	} else if !ok {
		log.Fatalf("run lock already held: %+v", lock.OwnerInfo())
	}
	defer lock.Release()

	if _, err := coord.InitializePlan(venue, cfg.OHLCV.Market, cfg.OHLCV.Source, intervals, *force); err != nil {
		log.Fatalf("init: %v", err)
	}
	logger.Info("migration plan initialized", "venue", venue, "intervals", intervals)
}

func runStatus(cfg *config.Config, args []string) {
	planPath := filepath.Join(cfg.Storage.DataDir, "migration_plan.json")
	plan, err := migration.LoadPlan(planPath)
	if err != nil {
		log.Fatalf("status: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(plan)
}

func runMigrate(cfg *config.Config, logger *slog.Logger, args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	deleteLegacy := fs.Bool("delete-legacy", false, "remove legacy files once a ticker's migration verifies")
	maxTickers := fs.Int("max-tickers", 0, "cap the number of tickers migrated this run (0 = unlimited)")
	fs.Parse(args)
	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "migrate requires <venue> <interval> arguments")
		os.Exit(1)
	}
	venue, interval := fs.Arg(0), fs.Arg(1)

	svc := config.NewService(cfg.Storage.DataDir)
	coord, _, err := buildCoordinator(cfg, svc)
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}

	lock := runlock.New(cfg.Storage.DataDir)
	if ok, err := lock.TryAcquire(); err != nil {
		log.Fatalf("acquiring run lock: %v", err)
	} else if !ok {
		log.Fatalf("run lock already held: %+v", lock.OwnerInfo())
	}
	defer lock.Release()

	estimate, err := coord.EstimateDiskRequirements(venue, []string{interval}, *deleteLegacy)
	if err != nil {
		log.Fatalf("estimating disk requirements: %v", err)
	}
	if !estimate.CanProceed {
		log.Fatalf("insufficient disk space to migrate %s/%s: %+v", venue, interval, estimate.Limitations)
	}

	result, err := coord.MigrateInterval(context.Background(), venue, interval, *deleteLegacy, *maxTickers)
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	logger.Info("migration pass complete",
		"venue", venue, "interval", interval,
		"jobs_completed", result.JobsCompleted, "jobs_total", result.JobsTotal,
		"partial_run", result.PartialRun, "storage_activated", result.StorageActivated)
}

func runVerify(cfg *config.Config, logger *slog.Logger, args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "verify requires a venue argument")
		os.Exit(1)
	}
	planPath := filepath.Join(cfg.Storage.DataDir, "migration_plan.json")
	plan, err := migration.LoadPlan(planPath)
	if err != nil {
		log.Fatalf("verify: %v", err)
	}
	venueState, err := plan.GetVenue(fs.Arg(0))
	if err != nil {
		log.Fatalf("verify: %v", err)
	}
	if migration.AllIntervalsVerified(venueState) {
		logger.Info("venue fully verified", "venue", fs.Arg(0))
	} else {
		logger.Warn("venue not fully verified", "venue", fs.Arg(0))
		os.Exit(1)
	}
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
