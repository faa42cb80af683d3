// Package domain holds the value types shared across the ingestion and
// archival pipeline: OHLCV bars, posttrade trades, and the small enums used
// to tag markets and sources.
package domain

import "time"

// Market identifies a top-level jurisdiction under the data root, e.g. "us"
// or "de".
type Market string

const (
	MarketUS Market = "us"
	MarketDE Market = "de"
)

// Source identifies the upstream provider within a market, e.g. "yahoo" or
// "xetra".
type Source string

const (
	SourceYahoo Source = "yahoo"
	SourceXetra Source = "xetra"
)

// Bar is one OHLCV row as described in SPEC_FULL.md §3.1. Volume and
// Sequence are pointers because either may be absent from the upstream
// provider's response; Open/High/Low/Close are always populated whenever a
// Bar exists at all.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    *int64
	Sequence  *int64
}

// Key returns the dedup primary key (stock, date) per §3.1.
func (b Bar) Key() (string, time.Time) {
	return b.Symbol, b.Timestamp
}

// Trade is one posttrade row as described in SPEC_FULL.md §3.2. The 22
// upstream-mapped fields are always present on a parsed record; optional
// fields are explicitly nullable so a writer can always materialize the full
// schema (§4.5, §9 "Schema-drift handling").
type Trade struct {
	MessageID         string
	SourceName        string
	ISIN              string
	InstrumentID      string
	TransID           string
	TickID            int64
	Price             float64
	Volume            float64
	Currency          string
	QuoteType         NullString
	TradeTime         time.Time
	DistributionTime  NullTime
	Venue             string
	TickAction        NullString
	InstrumentCode    NullString
	MarketMechanism   NullString
	TradingMode       NullString
	NegotiatedFlag    NullString
	ModificationFlag  NullString
	BenchmarkFlag     NullString
	PubDeferralReason NullString
	AlgoIndicator     bool
}

// NullString models an optional string column that must still be
// materialized (as null) when the upstream payload omits it, per §4.5's
// "schema stabilization" requirement.
type NullString struct {
	Value string
	Valid bool
}

// NullTime models an optional timestamp column with the same nullability
// contract as NullString.
type NullTime struct {
	Value time.Time
	Valid bool
}
