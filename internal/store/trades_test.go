package store

import (
	"context"
	"testing"
	"time"

	"marketvault/internal/domain"
	"marketvault/internal/parquetio"
)

func TestSaveTradeBatchAppendsWithoutDedup(t *testing.T) {
	dir := t.TempDir()
	b := NewPartitionedBackend(dir, parquetio.DefaultWriteOptions())
	ctx := context.Background()
	date := time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC)

	trade := domain.Trade{ISIN: "DE0001", Price: 10, Volume: 5, Currency: "EUR", TradeTime: date.Add(9 * time.Hour), TransID: "t1", TickID: 1, Venue: "DETR"}
	if err := b.SaveTradeBatch(ctx, "de", "xetra", "DETR", date, []domain.Trade{trade}); err != nil {
		t.Fatalf("first SaveTradeBatch() error: %v", err)
	}
	if err := b.SaveTradeBatch(ctx, "de", "xetra", "DETR", date, []domain.Trade{trade}); err != nil {
		t.Fatalf("second SaveTradeBatch() error: %v", err)
	}

	got, err := b.ReadTrades(ctx, "de", "xetra", "DETR", date)
	if err != nil {
		t.Fatalf("ReadTrades() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected no cross-batch dedup, got %d rows, want 2", len(got))
	}
}

func TestReadStoredMinutesEmptyWhenMissing(t *testing.T) {
	dir := t.TempDir()
	b := NewPartitionedBackend(dir, parquetio.DefaultWriteOptions())
	ctx := context.Background()

	minutes, err := b.ReadStoredMinutes(ctx, "de", "xetra", "DETR", time.Now())
	if err != nil {
		t.Fatalf("ReadStoredMinutes() error: %v", err)
	}
	if len(minutes) != 0 {
		t.Errorf("expected empty set for missing file, got %d entries", len(minutes))
	}
}

func TestConsolidateMonthSortsAndKeepsDailyFiles(t *testing.T) {
	dir := t.TempDir()
	b := NewPartitionedBackend(dir, parquetio.DefaultWriteOptions())
	ctx := context.Background()

	d1 := time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 11, 5, 0, 0, 0, 0, time.UTC)
	t1 := domain.Trade{ISIN: "DE1", TradeTime: d1.Add(10 * time.Hour), TransID: "a", Venue: "DETR"}
	t2 := domain.Trade{ISIN: "DE1", TradeTime: d2.Add(9 * time.Hour), TransID: "b", Venue: "DETR"}

	if err := b.SaveTradeBatch(ctx, "de", "xetra", "DETR", d1, []domain.Trade{t1}); err != nil {
		t.Fatal(err)
	}
	if err := b.SaveTradeBatch(ctx, "de", "xetra", "DETR", d2, []domain.Trade{t2}); err != nil {
		t.Fatal(err)
	}

	if err := b.ConsolidateMonth(ctx, "de", "xetra", "DETR", 2025, 11); err != nil {
		t.Fatalf("ConsolidateMonth() error: %v", err)
	}

	daily1, err := b.ReadTrades(ctx, "de", "xetra", "DETR", d1)
	if err != nil || len(daily1) != 1 {
		t.Errorf("expected daily file for d1 to still exist with 1 row, got %d err=%v", len(daily1), err)
	}
}
