package ohlcv

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"marketvault/internal/domain"
	"marketvault/internal/registry"
	"marketvault/internal/store"
)

type fakeBarStore struct {
	bars map[string][]domain.Bar
}

func newFakeBarStore() *fakeBarStore {
	return &fakeBarStore{bars: map[string][]domain.Bar{}}
}

func barKey(req store.Request) string {
	return req.Interval + "/" + req.Ticker
}

func (s *fakeBarStore) Read(_ context.Context, req store.Request) ([]domain.Bar, error) {
	return s.bars[barKey(req)], nil
}

func (s *fakeBarStore) Save(_ context.Context, req store.Request, newBars []domain.Bar) ([]domain.Bar, error) {
	k := barKey(req)
	s.bars[k] = append(s.bars[k], newBars...)
	return s.bars[k], nil
}

func fixedClock(t time.Time) registry.Clock {
	return func() time.Time { return t }
}

func TestSchedulerFetchesEligibleTickersAndUpdatesRegistry(t *testing.T) {
	today := time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC)

	reg, err := registry.New(filepath.Join(t.TempDir(), "tickers.json"), fixedClock(today))
	if err != nil {
		t.Fatalf("registry.New() error: %v", err)
	}
	reg.UpdateCurrentList([]string{"AAPL", "MSFT"})

	p := &fakeProvider{bars: []domain.Bar{{Symbol: "AAPL", Timestamp: today.AddDate(0, 0, -1)}}}
	fetcher := NewFetcher(p, noopLimiter(), nil)
	bs := newFakeBarStore()

	sched := NewScheduler(reg, fetcher, bs, []string{"1d"}, "us", "yahoo", "bars", nil)
	if err := sched.Run(context.Background(), today.AddDate(-10, 0, 0), today); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(p.calls) != 2 {
		t.Fatalf("expected a provider call per ticker, got %d", len(p.calls))
	}
	if !reg.IsActiveForInterval("AAPL", "1d") {
		t.Error("expected AAPL to remain active after a successful fetch")
	}
}

func TestSchedulerMarksNotFoundOnEmptyResult(t *testing.T) {
	today := time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC)

	reg, err := registry.New(filepath.Join(t.TempDir(), "tickers.json"), fixedClock(today))
	if err != nil {
		t.Fatalf("registry.New() error: %v", err)
	}
	reg.UpdateCurrentList([]string{"DELISTED"})

	p := &fakeProvider{bars: nil}
	fetcher := NewFetcher(p, noopLimiter(), nil)
	bs := newFakeBarStore()

	sched := NewScheduler(reg, fetcher, bs, []string{"1d"}, "us", "yahoo", "bars", nil)
	if err := sched.Run(context.Background(), today.AddDate(-10, 0, 0), today); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	entries := reg.Entries()
	entry, ok := entries["DELISTED"]
	if !ok {
		t.Fatal("expected DELISTED to be tracked in the registry")
	}
	if entry.Status != registry.StatusNotFound {
		t.Errorf("expected global status not_found, got %s", entry.Status)
	}
}

func TestSchedulerSkipsIncrementalFetchWhenDataExists(t *testing.T) {
	today := time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC)

	reg, err := registry.New(filepath.Join(t.TempDir(), "tickers.json"), fixedClock(today))
	if err != nil {
		t.Fatalf("registry.New() error: %v", err)
	}
	reg.UpdateCurrentList([]string{"AAPL"})

	p := &fakeProvider{}
	fetcher := NewFetcher(p, noopLimiter(), nil)
	bs := newFakeBarStore()
	bs.bars[barKey(store.Request{Interval: "1d", Ticker: "AAPL"})] = []domain.Bar{
		{Symbol: "AAPL", Timestamp: today.AddDate(0, 0, -2)},
	}

	sched := NewScheduler(reg, fetcher, bs, []string{"1d"}, "us", "yahoo", "bars", nil)
	if err := sched.Run(context.Background(), today.AddDate(-10, 0, 0), today); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(p.calls) != 1 {
		t.Fatalf("expected exactly one provider call, got %d", len(p.calls))
	}
	if p.calls[0].period != "" {
		t.Errorf("expected a range fetch (no period) when data already exists, got period=%q", p.calls[0].period)
	}
}
