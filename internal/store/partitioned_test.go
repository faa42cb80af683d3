package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"marketvault/internal/domain"
	"marketvault/internal/parquetio"
)

func i64(v int64) *int64 { return &v }

func TestPartitionedBackendSaveAndRead(t *testing.T) {
	dir := t.TempDir()
	b := NewPartitionedBackend(dir, parquetio.DefaultWriteOptions())
	ctx := context.Background()
	req := Request{Market: "us", Source: "yahoo", Dataset: "stocks", Interval: "1d", Ticker: "AAPL"}

	bars := []domain.Bar{
		{Symbol: "AAPL", Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 0.5, Close: 1.5, Sequence: i64(1)},
		{Symbol: "AAPL", Timestamp: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), Open: 2, High: 3, Low: 1.5, Close: 2.5, Sequence: i64(1)},
	}

	combined, err := b.Save(ctx, req, bars)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if len(combined) != 2 {
		t.Fatalf("Save() returned %d rows, want 2", len(combined))
	}

	march := filepath.Join(dir, "data", "us", "yahoo", "stocks_1d", "ticker=AAPL", "year=2024", "month=03", "data.parquet")
	april := filepath.Join(dir, "data", "us", "yahoo", "stocks_1d", "ticker=AAPL", "year=2024", "month=04", "data.parquet")
	for _, p := range []string{march, april} {
		if _, err := parquetio.SafeReadBarFile(p); err != nil {
			t.Errorf("expected readable file at %s: %v", p, err)
		}
	}

	got, err := b.Read(ctx, req)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Read() returned %d rows, want 2", len(got))
	}
}

func TestPartitionedBackendDedupKeepsHighestSequence(t *testing.T) {
	dir := t.TempDir()
	b := NewPartitionedBackend(dir, parquetio.DefaultWriteOptions())
	ctx := context.Background()
	req := Request{Market: "us", Source: "yahoo", Dataset: "stocks", Interval: "1d", Ticker: "AAPL"}

	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, err := b.Save(ctx, req, []domain.Bar{{Symbol: "AAPL", Timestamp: date, Close: 1, Sequence: i64(1)}}); err != nil {
		t.Fatalf("first Save() error: %v", err)
	}
	combined, err := b.Save(ctx, req, []domain.Bar{{Symbol: "AAPL", Timestamp: date, Close: 2, Sequence: i64(5)}})
	if err != nil {
		t.Fatalf("second Save() error: %v", err)
	}
	if len(combined) != 1 {
		t.Fatalf("expected dedup to collapse to 1 row, got %d", len(combined))
	}
	if combined[0].Close != 2 {
		t.Errorf("expected highest-sequence row to win, got Close=%v", combined[0].Close)
	}
}

func TestPartitionedBackendRejectsMixedTicker(t *testing.T) {
	dir := t.TempDir()
	b := NewPartitionedBackend(dir, parquetio.DefaultWriteOptions())
	ctx := context.Background()
	req := Request{Market: "us", Source: "yahoo", Dataset: "stocks", Interval: "1d", Ticker: "AAPL"}

	_, err := b.Save(ctx, req, []domain.Bar{{Symbol: "MSFT", Timestamp: time.Now()}})
	if err == nil {
		t.Fatal("expected error for cross-ticker row in single-ticker partition")
	}
}
