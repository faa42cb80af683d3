// Package ohlcv implements the OHLCV Fetch Service (C8): interval-range
// clamping, the "get all" period shortcut, column normalization, and
// business-day gating, grounded on
// _examples/chenjiangme-jupitor/internal/gather/us/alpaca.go::fetchMultiBars
// fetch shape and on
// _examples/original_source/src/yf_parqed/get_data_parquet.py's
// get_yfinance_data/process_yfinance_data for the provider-specific
// clamping and normalization rules this system actually needs.
package ohlcv

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"marketvault/internal/domain"
	"marketvault/internal/ratelimit"
)

// hourlyIntervals clamp to a 729-day window (§4.8); minuteIntervals clamp to
// 7 days. Any other interval string is unclamped.
var (
	hourlyIntervals = map[string]bool{"1h": true, "60m": true, "90m": true}
	minuteIntervals = map[string]bool{"1m": true, "2m": true, "5m": true, "15m": true, "30m": true}
)

const (
	hourlyClampWindow = 729 * 24 * time.Hour
	minuteClampWindow = 7 * 24 * time.Hour
)

// Provider is the abstract ticker-centric history source (§6.2): "a function
// history(ticker, start|period, end, interval) → frame". Exactly one of
// (start, end) or period is populated per call.
type Provider interface {
	History(ctx context.Context, ticker string, start, end time.Time, period, interval string) ([]domain.Bar, error)
}

// Fetcher applies the range-clamping, get-all, and gating rules around a
// Provider, rate-limited by the token bucket (C1) before every call.
type Fetcher struct {
	provider Provider
	limiter  ratelimit.Limiter
	calendar Calendar
	log      *slog.Logger
}

// NewFetcher constructs a Fetcher. limiter must not be nil — every History
// call is gated by it, preserving a strict per-request Wait() discipline.
func NewFetcher(provider Provider, limiter ratelimit.Limiter, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{provider: provider, limiter: limiter, log: log.With("component", "ohlcv-fetcher")}
}

// SetCalendar swaps the business-day gate from weekday counting to a real
// exchange schedule (see AlpacaCalendar).
func (f *Fetcher) SetCalendar(c Calendar) {
	f.calendar = c
}

// businessDayCount returns the gating day count, preferring the configured
// Calendar and falling back to weekday counting on error or when unset.
func (f *Fetcher) businessDayCount(start, end time.Time) int {
	if f.calendar != nil {
		if n, err := f.calendar.TradingDaysBetween(start, end); err == nil {
			return n
		}
		f.log.Debug("calendar lookup failed, falling back to weekday count")
	}
	return businessDaysBetween(start, end)
}

// clampRange applies the interval-specific range constraint (§4.8). The bool
// return is false when the clamped window still exceeds the provider's
// limit, signaling "return empty" to the caller.
func clampRange(interval string, start, end, today time.Time) (time.Time, time.Time, bool) {
	switch {
	case hourlyIntervals[interval]:
		if today.Sub(start) > hourlyClampWindow {
			start = today.Add(-hourlyClampWindow)
		}
		if today.Sub(end) > hourlyClampWindow {
			end = today.Add(-hourlyClampWindow)
		}
		if end.Sub(start) > hourlyClampWindow {
			return start, end, false
		}
	case minuteIntervals[interval]:
		if end.Sub(start) > minuteClampWindow {
			start = end.Add(-minuteClampWindow)
		}
	}
	return start, end, true
}

// getAllPeriod returns the period string used for a "full history" fetch
// (§4.8 "Get all shortcut"), keyed by interval class.
func getAllPeriod(interval string) string {
	switch {
	case hourlyIntervals[interval]:
		return "729d"
	case minuteIntervals[interval]:
		return "8d"
	default:
		return "10y"
	}
}

// stripTZ drops the zone, matching pandas' tz_localize(None): the wall-clock
// fields are kept, the offset is discarded.
func stripTZ(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// normalize renames/lowercases is a no-op here since domain.Bar already has
// the target column set; this applies the remaining per-row work: force the
// uppercase stock symbol and strip the timezone (§4.8 "Normalization").
func normalize(ticker string, bars []domain.Bar) []domain.Bar {
	symbol := strings.ToUpper(ticker)
	out := make([]domain.Bar, len(bars))
	for i, b := range bars {
		b.Symbol = symbol
		b.Timestamp = stripTZ(b.Timestamp)
		out[i] = b
	}
	return out
}

// FetchTicker retrieves bars for one (ticker, interval), applying clamping,
// the get-all shortcut, and business-day gating as appropriate.
//
// fullHistory signals an empty store for this ticker — use the period-based
// "get all" shortcut instead of a date range.
func (f *Fetcher) FetchTicker(ctx context.Context, ticker string, start, end time.Time, interval string, fullHistory bool, today time.Time) ([]domain.Bar, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("ohlcv: rate limit wait: %w", err)
	}

	if fullHistory {
		bars, err := f.provider.History(ctx, ticker, time.Time{}, time.Time{}, getAllPeriod(interval), interval)
		if err != nil {
			return nil, fmt.Errorf("ohlcv: history(%s, period) %s: %w", ticker, interval, err)
		}
		return normalize(ticker, bars), nil
	}

	clampedStart, clampedEnd, ok := clampRange(interval, start, end, today)
	if !ok {
		f.log.Debug("clamped window still exceeds provider limit, skipping", "ticker", ticker, "interval", interval)
		return nil, nil
	}
	if f.businessDayCount(clampedStart, clampedEnd) < 1 {
		f.log.Debug("window spans no business day, skipping fetch", "ticker", ticker, "interval", interval)
		return nil, nil
	}

	bars, err := f.provider.History(ctx, ticker, clampedStart, clampedEnd, "", interval)
	if err != nil {
		return nil, fmt.Errorf("ohlcv: history(%s, %s..%s) %s: %w", ticker, clampedStart.Format("2006-01-02"), clampedEnd.Format("2006-01-02"), interval, err)
	}
	return normalize(ticker, bars), nil
}
