// Command update-data drives the ticker-centric OHLCV fetch path (C7/C8/C9),
// either as a one-shot pass or a daemon. Grounded on
// _examples/chenjiangme-jupitor/cmd/us-alpaca-data/main.go's dual-logger
// setup and _examples/original_source/src/yf_parqed/yfinance_cli.py's
// command surface (update-data, add-interval, remove-interval,
// update-tickers, confirm-not-founds, reparse-not-founds).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"marketvault/internal/config"
	"marketvault/internal/daemon"
	"marketvault/internal/ohlcv"
	"marketvault/internal/opsapi"
	"marketvault/internal/parquetio"
	"marketvault/internal/ratelimit"
	"marketvault/internal/registry"
	"marketvault/internal/runlock"
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

	svc := config.NewService(cfg.Storage.DataDir)

	switch os.Args[1] {
	case "initialize":
		runInitialize(cfg, svc, logger)
	case "update-data":
		runUpdateData(cfg, svc, logger, os.Args[2:])
	case "add-interval":
		runAddInterval(svc, os.Args[2:])
	case "remove-interval":
		runRemoveInterval(svc, os.Args[2:])
	case "update-tickers":
		runUpdateTickers(cfg, logger)
	case "confirm-not-founds":
		runConfirmNotFounds(cfg, logger)
	case "reparse-not-founds":
		runReparseNotFounds(cfg, logger)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: update-data <initialize|update-data|add-interval|remove-interval|update-tickers|confirm-not-founds|reparse-not-founds> [flags]")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func openRegistry(cfg *config.Config) (*registry.Registry, error) {
	path := filepath.Join(cfg.Storage.DataDir, "tickers.json")
	return registry.New(path, time.Now)
}

// runInitialize seeds intervals.json and tickers.json so a fresh data
// directory has the documents update-data expects to find.
func runInitialize(cfg *config.Config, svc *config.Service, logger *slog.Logger) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}
	if err := svc.SaveIntervals(cfg.OHLCV.Intervals); err != nil {
		log.Fatalf("initializing intervals.json: %v", err)
	}
	reg, err := openRegistry(cfg)
	if err != nil {
		log.Fatalf("initializing tickers.json: %v", err)
	}
	if err := reg.Save(); err != nil {
		log.Fatalf("saving tickers.json: %v", err)
	}
	logger.Info("initialized data directory", "dir", cfg.Storage.DataDir)
}

func buildFetcher(cfg *config.Config, logger *slog.Logger) *ohlcv.Fetcher {
	limiter := ratelimit.NewTokenBucket(2, 5)

	var provider ohlcv.Provider
	if cfg.OHLCV.Source == "alpaca" {
		provider = ohlcv.NewAlpacaProvider(cfg.OHLCV.AlpacaAPIKey, cfg.OHLCV.AlpacaAPISecret, cfg.OHLCV.AlpacaDataURL)
	} else {
		provider = ohlcv.NewYahooProvider(cfg.OHLCV.ProviderURL, &http.Client{Timeout: 30 * time.Second})
	}

	fetcher := ohlcv.NewFetcher(provider, limiter, logger)
	if cfg.OHLCV.Source == "alpaca" {
		fetcher.SetCalendar(ohlcv.NewAlpacaCalendar(cfg.OHLCV.AlpacaAPIKey, cfg.OHLCV.AlpacaAPISecret, cfg.OHLCV.AlpacaBaseURL))
	}
	return fetcher
}

func runUpdateData(cfg *config.Config, svc *config.Service, logger *slog.Logger, args []string) {
	fs := flag.NewFlagSet("update-data", flag.ExitOnError)
	daemonMode := fs.Bool("daemon", false, "run continuously")
	intervalHours := fs.Float64("interval", 1, "hours between daemon runs")
	activeHours := fs.String("trading-hours", cfg.OHLCV.ActiveHours, "HH:MM-HH:MM trading window")
	extendedHours := fs.Bool("extended-hours", false, "ignore trading-hours gating entirely")
	maintenance := fs.String("ticker-maintenance", cfg.OHLCV.TickerMaintenance, "daily|weekly|monthly|never")
	pidFile := fs.String("pid-file", "", "PID file to prevent multiple instances")
	fs.Parse(args)

	reg, err := openRegistry(cfg)
	if err != nil {
		log.Fatalf("opening tickers.json: %v", err)
	}
	intervals, err := svc.LoadIntervals()
	if err != nil {
		log.Fatalf("loading intervals.json: %v", err)
	}
	if len(intervals) == 0 {
		intervals = cfg.OHLCV.Intervals
	}

	barStore, err := svc.BarStoreFor(cfg.Storage.DataDir, cfg.OHLCV.Market, cfg.OHLCV.Source, parquetio.DefaultWriteOptions())
	if err != nil {
		log.Fatalf("resolving bar store: %v", err)
	}

	fetcher := buildFetcher(cfg, logger)
	scheduler := ohlcv.NewScheduler(reg, fetcher, barStore, intervals, cfg.OHLCV.Market, cfg.OHLCV.Source, cfg.OHLCV.Dataset, logger)

	startDate, err := time.Parse("2006-01-02", cfg.OHLCV.StartDate)
	if err != nil {
		startDate = time.Now().AddDate(-10, 0, 0)
	}

	runOnce := func(ctx context.Context) error {
		return scheduler.Run(ctx, startDate, time.Now())
	}

	if !*daemonMode {
		if err := runOnce(context.Background()); err != nil {
			log.Fatalf("update-data: %v", err)
		}
		return
	}

	cadence := daemon.Cadence(*maintenance)

	var checker *tradinghours.Checker
	if !*extendedHours {
		start, end, err := tradinghours.ParseActiveHours(*activeHours)
		if err != nil {
			log.Fatalf("parsing --trading-hours: %v", err)
		}
		checker, err = tradinghours.New(start, end, cfg.OHLCV.MarketTimezone, nil)
		if err != nil {
			log.Fatalf("constructing trading hours checker: %v", err)
		}
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
		Cadence:       cadence,
		PIDFile:       *pidFile,
		FetchCycle:    runOnce,
		Maintenance: func(ctx context.Context) error {
			return reg.ConfirmNotFounds(nil, confirmProbe(ctx, fetcher, cfg))
		},
		HasAnyData: func(ctx context.Context) (bool, error) {
			return len(reg.Entries()) > 0, nil
		},
	}, logger)
	if err != nil {
		log.Fatalf("constructing daemon: %v", err)
	}

	if cfg.OpsAPI.Enabled {
		go serveOpsAPI(cfg, lock, reg, logger)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := d.Run(ctx); err != nil {
		log.Fatalf("daemon error: %v", err)
	}
}

func confirmProbe(ctx context.Context, fetcher *ohlcv.Fetcher, cfg *config.Config) registry.FetchProbe {
	return func(ticker string) (bool, time.Time, error) {
		bars, err := fetcher.FetchTicker(ctx, ticker, time.Time{}, time.Time{}, "1d", true, time.Now())
		if err != nil || len(bars) == 0 {
			return false, time.Time{}, err
		}
		latest := bars[0].Timestamp
		for _, b := range bars[1:] {
			if b.Timestamp.After(latest) {
				latest = b.Timestamp
			}
		}
		return true, latest, nil
	}
}

func runAddInterval(svc *config.Service, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "add-interval requires an interval argument")
		os.Exit(1)
	}
	if err := svc.AddInterval(args[0]); err != nil {
		log.Fatalf("add-interval: %v", err)
	}
}

func runRemoveInterval(svc *config.Service, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "remove-interval requires an interval argument")
		os.Exit(1)
	}
	if err := svc.RemoveInterval(args[0]); err != nil {
		log.Fatalf("remove-interval: %v", err)
	}
}

// runUpdateTickers merges the current ticker universe (one symbol per line,
// read from OHLCV.TickerListPath) into tickers.json, matching the original's
// update_current_list_of_stocks merge-not-replace semantics.
func runUpdateTickers(cfg *config.Config, logger *slog.Logger) {
	if cfg.OHLCV.TickerListPath == "" {
		log.Fatalf("update-tickers: ohlcv.ticker_list_path not configured")
	}
	f, err := os.Open(cfg.OHLCV.TickerListPath)
	if err != nil {
		log.Fatalf("opening ticker list: %v", err)
	}
	defer f.Close()

	var tickers []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tickers = append(tickers, strings.ToUpper(line))
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("reading ticker list: %v", err)
	}

	reg, err := openRegistry(cfg)
	if err != nil {
		log.Fatalf("opening tickers.json: %v", err)
	}
	reg.UpdateCurrentList(tickers)
	if err := reg.Save(); err != nil {
		log.Fatalf("saving tickers.json: %v", err)
	}
	logger.Info("ticker list updated", "count", len(tickers))
}

func runConfirmNotFounds(cfg *config.Config, logger *slog.Logger) {
	reg, err := openRegistry(cfg)
	if err != nil {
		log.Fatalf("opening tickers.json: %v", err)
	}
	fetcher := buildFetcher(cfg, logger)
	ctx := context.Background()
	if err := reg.ConfirmNotFounds(nil, confirmProbe(ctx, fetcher, cfg)); err != nil {
		log.Fatalf("confirm-not-founds: %v", err)
	}
	logger.Info("not-found tickers reconfirmed")
}

func runReparseNotFounds(cfg *config.Config, logger *slog.Logger) {
	reg, err := openRegistry(cfg)
	if err != nil {
		log.Fatalf("opening tickers.json: %v", err)
	}
	if err := reg.ReparseNotFounds(); err != nil {
		log.Fatalf("reparse-not-founds: %v", err)
	}
	logger.Info("not-found list reparsed")
}

func serveOpsAPI(cfg *config.Config, lock *runlock.Lock, reg *registry.Registry, logger *slog.Logger) {
	srv := opsapi.New(lock, reg, filepath.Join(cfg.Storage.DataDir, "migration_plan.json"), logger)
	logger.Info("ops API listening", "addr", cfg.OpsAPI.Addr)
	if err := http.ListenAndServe(cfg.OpsAPI.Addr, srv.Router()); err != nil {
		logger.Error("ops API server exited", "error", err)
	}
}
