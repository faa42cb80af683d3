// Package store implements the Partitioned Store (C4) and its legacy
// counterpart: ticker-month-addressed Parquet storage with atomic writes,
// deterministic dedup, and month-grouped writes, plus the pre-migration
// legacy layout the Migration Coordinator (internal/migration) reads from.
//
// Grounded on internal/store/parquet.go for the
// read/write/group skeleton, and on
// _examples/original_source/src/yf_parqed/partitioned_storage_backend.py
// and common/storage_backend.py for the atomic-write, dedup, and
// single-ticker invariants those skeletons lacked.
package store

import (
	"context"
	"time"

	"marketvault/internal/domain"
)

// Request names one OHLCV partition (ticker-month) to operate on.
type Request struct {
	Market   string
	Source   string
	Dataset  string
	Interval string
	Ticker   string
}

// BarStore is the OHLCV half of the partitioned/legacy storage contract
// (§4.4, §9 "Storage = Legacy | Partitioned").
type BarStore interface {
	// Read returns every bar stored for req, across however many
	// ticker-month files make up its history.
	Read(ctx context.Context, req Request) ([]domain.Bar, error)
	// Save merges newBars into whatever is already stored for req and
	// returns the combined, deduped result.
	Save(ctx context.Context, req Request, newBars []domain.Bar) ([]domain.Bar, error)
}

// TradeStore is the posttrade half of the storage contract (§4.4
// "SaveTradeBatch").
type TradeStore interface {
	// SaveTradeBatch appends trades to the venue-day file, without
	// cross-batch dedup (§4.4, §9 open question).
	SaveTradeBatch(ctx context.Context, market, source, venue string, date time.Time, trades []domain.Trade) error
	// ReadTrades returns every trade stored for the venue-day.
	ReadTrades(ctx context.Context, market, source, venue string, date time.Time) ([]domain.Trade, error)
	// ReadStoredMinutes returns the set of "YYYY-MM-DDTHH_MM" timestamp
	// strings already present in the venue-day file's `trade_time` column,
	// used by the Posttrade Service (§4.6) to skip already-downloaded
	// files. A missing or unreadable file yields an empty set, not an
	// error (§4.6: "if file is present but unreadable, treat as no-data").
	ReadStoredMinutes(ctx context.Context, market, source, venue string, date time.Time) (map[string]struct{}, error)
	// ConsolidateMonth reads every daily file for (venue, year, month) and
	// writes the sorted, concatenated result to the monthly file (§4.6).
	ConsolidateMonth(ctx context.Context, market, source, venue string, year, month int) error
}

// Backend is the full contract of the "Storage = Legacy | Partitioned" sum
// type, BarStore plus TradeStore. PartitionedBackend satisfies it;
// LegacyBackend implements only BarStore. Avoid adding a third implementation or a class
// hierarchy — this is meant to stay a closed sum type.
type Backend interface {
	BarStore
	TradeStore
}
