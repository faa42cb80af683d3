// Package parquetio implements the atomic-write and schema-recovery
// machinery shared by every Parquet-backed store in this codebase: the
// temp-fsync-rename write protocol (C4) and the safe-read recovery rules
// (C3), both grounded on the Python original this system was distilled
// from (partitioned_storage_backend.py, common/parquet_recovery.py).
package parquetio

import "time"

// BarRow is the on-disk shape of one OHLCV row (SPEC_FULL.md §3.1). Volume
// and Sequence are optional; Sequence additionally carries the "index"
// fallback tag so a legacy Python-written file that stored its pandas
// RangeIndex as a column named "index" round-trips without a second read
// pass — recoverBarRows below decides whether that fallback value is
// actually usable as a sequence tiebreaker or must be discarded.
type BarRow struct {
	Stock    string   `parquet:"stock"`
	Date     int64    `parquet:"date,timestamp(millisecond)"`
	Open     float64  `parquet:"open"`
	High     float64  `parquet:"high"`
	Low      float64  `parquet:"low"`
	Close    float64  `parquet:"close"`
	Volume   *int64   `parquet:"volume,optional"`
	Sequence *int64   `parquet:"sequence,optional"`
	Index    *int64   `parquet:"index,optional"`
}

// DateTime returns the row's date as a time.Time.
func (r BarRow) DateTime() time.Time {
	return time.UnixMilli(r.Date).UTC()
}

// TradeRow is the on-disk shape of one posttrade row (SPEC_FULL.md §3.2).
// Every optional upstream field is represented as a pointer so a writer can
// materialize the full 22-column schema on every write, satisfying the
// "never expose narrow and wide variants" rule in §9.
type TradeRow struct {
	MessageID         string  `parquet:"message_id"`
	SourceName        string  `parquet:"source_name"`
	ISIN              string  `parquet:"isin"`
	InstrumentID      string  `parquet:"instrument_id"`
	TransID           string  `parquet:"trans_id"`
	TickID            int64   `parquet:"tick_id"`
	Price             float64 `parquet:"price"`
	Volume            float64 `parquet:"volume"`
	Currency          string  `parquet:"currency"`
	QuoteType         *string `parquet:"quote_type,optional"`
	TradeTime         int64   `parquet:"trade_time,timestamp(nanosecond)"`
	DistributionTime  *int64  `parquet:"distribution_time,timestamp(nanosecond),optional"`
	Venue             string  `parquet:"venue"`
	TickAction        *string `parquet:"tick_action,optional"`
	InstrumentCode    *string `parquet:"instrument_code,optional"`
	MarketMechanism   *string `parquet:"market_mechanism,optional"`
	TradingMode       *string `parquet:"trading_mode,optional"`
	NegotiatedFlag    *string `parquet:"negotiated_flag,optional"`
	ModificationFlag  *string `parquet:"modification_flag,optional"`
	BenchmarkFlag     *string `parquet:"benchmark_flag,optional"`
	PubDeferralReason *string `parquet:"pub_deferral,optional"`
	AlgoIndicator     bool    `parquet:"algo_indicator"`
}
