// Command fetch-trades drives the posttrade fetch/persist pipeline (C5/C6)
// against one venue, either as a one-shot run or a daemon. Grounded on
// _examples/chenjiangme-jupitor/cmd/us-alpaca-data/main.go's dual-logger
// setup and _examples/original_source/src/yf_parqed/xetra_cli.py's command
// surface; of that surface it implements fetch-trades, check-status and
// list-files.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"marketvault/internal/config"
	"marketvault/internal/daemon"
	"marketvault/internal/opsapi"
	"marketvault/internal/parquetio"
	"marketvault/internal/posttrade"
	"marketvault/internal/ratelimit"
	"marketvault/internal/runlock"
	"marketvault/internal/store"
	"marketvault/internal/tradinghours"
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
	case "fetch-trades":
		runFetchTrades(cfg, logger, os.Args[2:])
	case "check-status":
		runCheckStatus(cfg, logger, os.Args[2:])
	case "list-files":
		runListFiles(cfg, logger, os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: fetch-trades <fetch-trades|check-status|list-files> <venue> [flags]")
}

func buildService(cfg *config.Config, logger *slog.Logger) (*posttrade.Service, *posttrade.Fetcher) {
	limiter := ratelimit.NewBurstCooldown(
		time.Duration(cfg.Posttrade.InterRequestDelay*float64(time.Second)),
		cfg.Posttrade.BurstSize,
		time.Duration(cfg.Posttrade.BurstCooldown*float64(time.Second)),
	)
	fetcher := posttrade.NewFetcher(cfg.Posttrade.BaseURL, limiter, true, logger)
	tradeStore := store.NewPartitionedBackend(cfg.Storage.DataDir, parquetio.DefaultWriteOptions())
	svc := posttrade.NewService(fetcher, tradeStore, cfg.Posttrade.Market, cfg.Posttrade.Source, logger)
	return svc, fetcher
}

func runFetchTrades(cfg *config.Config, logger *slog.Logger, args []string) {
	fs := flag.NewFlagSet("fetch-trades", flag.ExitOnError)
	daemonMode := fs.Bool("daemon", false, "run continuously")
	intervalHours := fs.Float64("interval", 1, "hours between daemon runs")
	activeHours := fs.String("active-hours", cfg.Posttrade.ActiveHours, "HH:MM-HH:MM trading window")
	pidFile := fs.String("pid-file", "", "PID file to prevent multiple instances")
	consolidate := fs.Bool("consolidate", true, "rerun monthly consolidation after each fully fetched date")
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "fetch-trades requires a venue argument")
		os.Exit(1)
	}
	venue := fs.Arg(0)

	svc, _ := buildService(cfg, logger)

	runOnce := func(ctx context.Context) error {
		summary, err := svc.FetchAndStoreMissing(ctx, venue, time.Now(), *consolidate)
		if err != nil {
			return err
		}
		logger.Info("fetch cycle complete", "dates_fetched", summary.DatesFetched, "total_trades", summary.TotalTrades)
		return nil
	}

	if !*daemonMode {
		if err := runOnce(context.Background()); err != nil {
			log.Fatalf("fetch-trades: %v", err)
		}
		return
	}

	start, end, err := tradinghours.ParseActiveHours(*activeHours)
	if err != nil {
		log.Fatalf("parsing --active-hours: %v", err)
	}
	checker, err := tradinghours.New(start, end, cfg.Posttrade.MarketTimezone, nil)
	if err != nil {
		log.Fatalf("constructing trading hours checker: %v", err)
	}

	lock := runlock.New(cfg.Storage.DataDir)
	if ok, err := lock.TryAcquire(); err != nil {
		log.Fatalf("acquiring run lock: %v", err)
	} else if !ok {
		owner := lock.OwnerInfo()
		logger.Error("run lock already held", "owner", owner)
		os.Exit(1)
	}
	defer lock.Release()

	d, err := daemon.New(daemon.Config{
		FetchInterval: time.Duration(*intervalHours * float64(time.Hour)),
		Hours:         checker,
		PIDFile:       *pidFile,
		FetchCycle:    runOnce,
		HasAnyData: func(ctx context.Context) (bool, error) {
			venueDir := filepath.Join(cfg.Storage.DataDir, "data", cfg.Posttrade.Market, cfg.Posttrade.Source, "trades", "venue="+venue)
			_, statErr := os.Stat(venueDir)
			if os.IsNotExist(statErr) {
				return false, nil
			}
			return statErr == nil, nil
		},
	}, logger)
	if err != nil {
		log.Fatalf("constructing daemon: %v", err)
	}

	if cfg.OpsAPI.Enabled {
		go serveOpsAPI(cfg, lock, logger)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := d.Run(ctx); err != nil {
		log.Fatalf("daemon error: %v", err)
	}
}

func runCheckStatus(cfg *config.Config, logger *slog.Logger, args []string) {
	fs := flag.NewFlagSet("check-status", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "check-status requires a venue argument")
		os.Exit(1)
	}
	svc, _ := buildService(cfg, logger)
	missing, err := svc.GetMissingDates(context.Background(), fs.Arg(0), time.Now())
	if err != nil {
		log.Fatalf("check-status: %v", err)
	}
	fmt.Printf("missing dates: %v\n", missing)
}

func runListFiles(cfg *config.Config, logger *slog.Logger, args []string) {
	fs := flag.NewFlagSet("list-files", flag.ExitOnError)
	date := fs.String("date", "", "YYYY-MM-DD, defaults to today")
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "list-files requires a venue argument")
		os.Exit(1)
	}
	svc, _ := buildService(cfg, logger)
	files, err := svc.ListFiles(context.Background(), fs.Arg(0), *date)
	if err != nil {
		log.Fatalf("list-files: %v", err)
	}
	for _, f := range files {
		fmt.Println(f)
	}
}

func serveOpsAPI(cfg *config.Config, lock *runlock.Lock, logger *slog.Logger) {
	srv := opsapi.New(lock, nil, "", logger)
	logger.Info("ops API listening", "addr", cfg.OpsAPI.Addr)
	if err := http.ListenAndServe(cfg.OpsAPI.Addr, srv.Router()); err != nil {
		logger.Error("ops API server exited", "error", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
