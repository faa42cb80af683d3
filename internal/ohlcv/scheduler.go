package ohlcv

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"marketvault/internal/domain"
	"marketvault/internal/registry"
	"marketvault/internal/store"
)

// Scheduler is the Interval Scheduler (C9): for each configured interval,
// filter the ticker registry to eligible tickers and fetch+store each one,
// rate-limited via the Fetcher. Grounded on
// _examples/original_source/src/yf_parqed/yahoo/interval_scheduler.py's
// IntervalScheduler.run shape and
// _examples/chenjiangme-jupitor/internal/gather/us/alpaca.go's runDailyUpdate
// iteration style.
type Scheduler struct {
	registry  *registry.Registry
	fetcher   *Fetcher
	store     store.BarStore
	intervals []string
	market    string
	source    string
	dataset   string
	log       *slog.Logger
}

// NewScheduler constructs a Scheduler for one (market, source, dataset)
// triple across every configured interval.
func NewScheduler(reg *registry.Registry, fetcher *Fetcher, barStore store.BarStore, intervals []string, market, source, dataset string, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		registry:  reg,
		fetcher:   fetcher,
		store:     barStore,
		intervals: intervals,
		market:    market,
		source:    source,
		dataset:   dataset,
		log:       log.With("component", "ohlcv-scheduler"),
	}
}

// Run processes every configured interval in order, persisting registry
// state once at the end of the whole pass.
func (s *Scheduler) Run(ctx context.Context, startDate, today time.Time) error {
	for _, interval := range s.intervals {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		tickers := s.registry.ActiveTickers(interval)
		s.log.Info("processing interval", "interval", interval, "tickers", len(tickers))

		for _, ticker := range tickers {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := s.processTicker(ctx, ticker, interval, startDate, today); err != nil {
				s.log.Error("ticker fetch failed", "ticker", ticker, "interval", interval, "error", err)
			}
		}
	}
	return s.registry.Save()
}

func (s *Scheduler) processTicker(ctx context.Context, ticker, interval string, startDate, today time.Time) error {
	req := store.Request{Market: s.market, Source: s.source, Dataset: s.dataset, Interval: interval, Ticker: ticker}

	existing, err := s.store.Read(ctx, req)
	if err != nil {
		return fmt.Errorf("read existing: %w", err)
	}

	fullHistory := len(existing) == 0
	start := startDate
	if !fullHistory {
		start = latestBarDate(existing).AddDate(0, 0, 1)
	}

	bars, err := s.fetcher.FetchTicker(ctx, ticker, start, today, interval, fullHistory, today)
	if err != nil {
		s.registry.UpdateTickerInterval(ticker, interval, false, time.Time{}, nil)
		return err
	}
	if len(bars) == 0 {
		s.registry.UpdateTickerInterval(ticker, interval, false, time.Time{}, nil)
		return nil
	}

	if _, err := s.store.Save(ctx, req, bars); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	s.registry.UpdateTickerInterval(ticker, interval, true, latestBarDate(bars), nil)
	return nil
}

func latestBarDate(bars []domain.Bar) time.Time {
	latest := bars[0].Timestamp
	for _, b := range bars[1:] {
		if b.Timestamp.After(latest) {
			latest = b.Timestamp
		}
	}
	return latest
}
