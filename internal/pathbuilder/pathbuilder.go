// Package pathbuilder maps (market, source, dataset, interval, ticker,
// timestamp) tuples to filesystem paths under the partitioned data root, and
// the pre-migration legacy layout those tuples replace.
package pathbuilder

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Request names the coordinates of one partition or legacy file.
type Request struct {
	Root     string
	Market   string
	Source   string
	Dataset  string
	Interval string
	Ticker   string
}

// Builder is a pure, stateless mapper from Request+timestamp to paths.
// It carries no fields; it exists as a type so call sites read like the
// rest of the component surface (NewBuilder().Build(...)).
type Builder struct{}

// NewBuilder returns a ready-to-use Builder.
func NewBuilder() *Builder { return &Builder{} }

func normalizeSegment(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizeDate truncates a timestamp to its date component for path
// purposes; it accepts any time.Time, including ones carrying a
// sub-day component, and discards the time-of-day.
func normalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Build returns the partitioned path `data.parquet` lives at for the given
// request and timestamp, or the legacy path if market or source is empty.
func (b *Builder) Build(req Request, timestamp time.Time) string {
	market := normalizeSegment(req.Market)
	source := normalizeSegment(req.Source)
	if market == "" || source == "" {
		return b.legacyPath(req, timestamp)
	}
	date := normalizeDate(timestamp)
	dataset := fmt.Sprintf("%s_%s", req.Dataset, req.Interval)
	return filepath.Join(
		req.Root, "data", market, source, dataset,
		fmt.Sprintf("ticker=%s", req.Ticker),
		fmt.Sprintf("year=%04d", date.Year()),
		fmt.Sprintf("month=%02d", int(date.Month())),
		"data.parquet",
	)
}

// legacyPath returns {root}/data/legacy/stocks_{interval}/{ticker}.parquet, the
// pre-migration layout (§4.2: "If market or source is empty, the builder
// returns the legacy path").
func (b *Builder) legacyPath(req Request, _ time.Time) string {
	return filepath.Join(req.Root, "data", "legacy",
		fmt.Sprintf("stocks_%s", req.Interval),
		fmt.Sprintf("%s.parquet", req.Ticker),
	)
}

// TickerRoot returns the directory prefix up to and including `ticker=…`.
// It errors if market or source is missing — there is no legacy
// ticker-root concept (§4.2).
func (b *Builder) TickerRoot(req Request) (string, error) {
	market := normalizeSegment(req.Market)
	source := normalizeSegment(req.Source)
	if market == "" || source == "" {
		return "", fmt.Errorf("pathbuilder: ticker root requires market and source, got market=%q source=%q", req.Market, req.Source)
	}
	dataset := fmt.Sprintf("%s_%s", req.Dataset, req.Interval)
	return filepath.Join(
		req.Root, "data", market, source, dataset,
		fmt.Sprintf("ticker=%s", req.Ticker),
	), nil
}

// TradesDailyPath returns the venue-day trades file path:
// {root}/data/{market}/{source}/trades/venue={V}/year={Y}/month={M}/day={D}/trades.parquet
func TradesDailyPath(root, market, source, venue string, date time.Time) string {
	d := normalizeDate(date)
	return filepath.Join(root, "data", normalizeSegment(market), normalizeSegment(source), "trades",
		fmt.Sprintf("venue=%s", venue),
		fmt.Sprintf("year=%04d", d.Year()),
		fmt.Sprintf("month=%02d", int(d.Month())),
		fmt.Sprintf("day=%02d", d.Day()),
		"trades.parquet",
	)
}

// TradesMonthlyPath returns the venue-month consolidated trades file path:
// {root}/data/{market}/{source}/trades_monthly/venue={V}/year={Y}/month={M}/trades.parquet
func TradesMonthlyPath(root, market, source, venue string, year, month int) string {
	return filepath.Join(root, "data", normalizeSegment(market), normalizeSegment(source), "trades_monthly",
		fmt.Sprintf("venue=%s", venue),
		fmt.Sprintf("year=%04d", year),
		fmt.Sprintf("month=%02d", month),
		"trades.parquet",
	)
}

// TradesDayDir returns the directory holding one venue-day's trades.parquet,
// used by callers that need to glob for sibling temp files.
func TradesDayDir(root, market, source, venue string, date time.Time) string {
	return filepath.Dir(TradesDailyPath(root, market, source, venue, date))
}
