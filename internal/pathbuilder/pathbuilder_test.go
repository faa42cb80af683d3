package pathbuilder

import (
	"path/filepath"
	"testing"
	"time"
)

func TestBuildPartitioned(t *testing.T) {
	b := NewBuilder()
	req := Request{Root: "/data", Market: "US", Source: " Yahoo ", Dataset: "stocks", Interval: "1d", Ticker: "AAPL"}
	got := b.Build(req, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	want := filepath.Join("/data", "data", "us", "yahoo", "stocks_1d", "ticker=AAPL", "year=2024", "month=03", "data.parquet")
	if got != want {
		t.Errorf("Build() = %q, want %q", got, want)
	}
}

func TestBuildLegacyWhenMarketOrSourceEmpty(t *testing.T) {
	b := NewBuilder()
	req := Request{Root: "/data", Interval: "1m", Ticker: "AAA"}
	got := b.Build(req, time.Now())
	want := filepath.Join("/data", "data", "legacy", "stocks_1m", "AAA.parquet")
	if got != want {
		t.Errorf("Build() legacy = %q, want %q", got, want)
	}
}

func TestTickerRootRequiresMarketAndSource(t *testing.T) {
	b := NewBuilder()
	if _, err := b.TickerRoot(Request{Root: "/data", Interval: "1d", Ticker: "AAPL"}); err == nil {
		t.Fatal("expected error when market/source missing")
	}
	root, err := b.TickerRoot(Request{Root: "/data", Market: "us", Source: "yahoo", Dataset: "stocks", Interval: "1d", Ticker: "AAPL"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join("/data", "data", "us", "yahoo", "stocks_1d", "ticker=AAPL")
	if root != want {
		t.Errorf("TickerRoot() = %q, want %q", root, want)
	}
}

func TestTradesDailyPath(t *testing.T) {
	got := TradesDailyPath("/data", "de", "xetra", "DETR", time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC))
	want := filepath.Join("/data", "data", "de", "xetra", "trades", "venue=DETR", "year=2025", "month=11", "day=04", "trades.parquet")
	if got != want {
		t.Errorf("TradesDailyPath() = %q, want %q", got, want)
	}
}

func TestTradesMonthlyPath(t *testing.T) {
	got := TradesMonthlyPath("/data", "de", "xetra", "DETR", 2025, 11)
	want := filepath.Join("/data", "data", "de", "xetra", "trades_monthly", "venue=DETR", "year=2025", "month=11", "trades.parquet")
	if got != want {
		t.Errorf("TradesMonthlyPath() = %q, want %q", got, want)
	}
}
