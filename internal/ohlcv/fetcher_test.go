package ohlcv

import (
	"context"
	"testing"
	"time"

	"marketvault/internal/domain"
	"marketvault/internal/ratelimit"
)

type fakeProvider struct {
	calls []struct {
		ticker, period, interval string
		start, end               time.Time
	}
	bars []domain.Bar
	err  error
}

func (p *fakeProvider) History(_ context.Context, ticker string, start, end time.Time, period, interval string) ([]domain.Bar, error) {
	p.calls = append(p.calls, struct {
		ticker, period, interval string
		start, end               time.Time
	}{ticker, period, interval, start, end})
	return p.bars, p.err
}

func noopLimiter() ratelimit.Limiter {
	return ratelimit.NewTokenBucket(1000, 1)
}

func TestFetchTickerFullHistoryUsesPeriod(t *testing.T) {
	p := &fakeProvider{bars: []domain.Bar{{Symbol: "aapl", Timestamp: time.Date(2020, 1, 1, 9, 30, 0, 0, time.FixedZone("EST", -5*3600))}}}
	f := NewFetcher(p, noopLimiter(), nil)

	bars, err := f.FetchTicker(context.Background(), "aapl", time.Time{}, time.Time{}, "1d", true, time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchTicker() error: %v", err)
	}
	if len(p.calls) != 1 || p.calls[0].period != "10y" {
		t.Fatalf("expected 10y period call, got %+v", p.calls)
	}
	if len(bars) != 1 || bars[0].Symbol != "AAPL" {
		t.Errorf("expected normalized uppercase symbol, got %+v", bars)
	}
	if bars[0].Timestamp.Location() != time.UTC {
		t.Errorf("expected stripped timezone, got %v", bars[0].Timestamp.Location())
	}
}

func TestFetchTickerClampsHourlyWindow(t *testing.T) {
	p := &fakeProvider{}
	f := NewFetcher(p, noopLimiter(), nil)

	today := time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC)
	start := today.AddDate(-5, 0, 0)
	end := today

	_, err := f.FetchTicker(context.Background(), "AAPL", start, end, "1h", false, today)
	if err != nil {
		t.Fatalf("FetchTicker() error: %v", err)
	}
	if len(p.calls) != 1 {
		t.Fatalf("expected provider call, got %d", len(p.calls))
	}
	got := p.calls[0].start
	wantEarliest := today.Add(-hourlyClampWindow)
	if got.Before(wantEarliest.Add(-time.Hour)) || got.After(wantEarliest.Add(time.Hour)) {
		t.Errorf("expected clamped start near %v, got %v", wantEarliest, got)
	}
}

func TestFetchTickerSkipsSubDayWindow(t *testing.T) {
	p := &fakeProvider{}
	f := NewFetcher(p, noopLimiter(), nil)

	today := time.Date(2025, 11, 4, 12, 0, 0, 0, time.UTC)
	start := today
	end := today.Add(2 * time.Hour)

	bars, err := f.FetchTicker(context.Background(), "AAPL", start, end, "1d", false, today)
	if err != nil {
		t.Fatalf("FetchTicker() error: %v", err)
	}
	if bars != nil {
		t.Errorf("expected nil bars for sub-day window, got %v", bars)
	}
	if len(p.calls) != 0 {
		t.Errorf("expected provider not called, got %d calls", len(p.calls))
	}
}

func TestFetchTickerMinuteIntervalClampsToSevenDays(t *testing.T) {
	p := &fakeProvider{}
	f := NewFetcher(p, noopLimiter(), nil)

	today := time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC)
	start := today.AddDate(0, -2, 0)

	_, err := f.FetchTicker(context.Background(), "AAPL", start, today, "5m", false, today)
	if err != nil {
		t.Fatalf("FetchTicker() error: %v", err)
	}
	if len(p.calls) != 1 {
		t.Fatalf("expected provider call, got %d", len(p.calls))
	}
	if got := today.Sub(p.calls[0].start); got > minuteClampWindow+time.Hour {
		t.Errorf("expected clamped 7-day window, got %v", got)
	}
}
