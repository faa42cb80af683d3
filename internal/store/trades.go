package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"marketvault/internal/domain"
	"marketvault/internal/parquetio"
	"marketvault/internal/pathbuilder"
)

// SaveTradeBatch implements §4.4's posttrade save path: read the existing
// venue-day file if any, append the incoming trades after it (no
// cross-batch dedup, per §9's documented open question), and write back
// atomically.
func (p *PartitionedBackend) SaveTradeBatch(_ context.Context, market, source, venue string, date time.Time, trades []domain.Trade) error {
	path := pathbuilder.TradesDailyPath(p.root, market, source, venue, date)
	existing, err := readTradeFile(path)
	if err != nil {
		return fmt.Errorf("store: read existing trades %s: %w", path, err)
	}
	combined := append(existing, trades...)
	if err := parquetio.WriteAtomic(path, tradesToRows(combined), p.opts); err != nil {
		return fmt.Errorf("store: write trades %s: %w", path, err)
	}
	return nil
}

// ReadTrades returns every trade stored for the venue-day, or an empty
// slice if the file does not exist.
func (p *PartitionedBackend) ReadTrades(_ context.Context, market, source, venue string, date time.Time) ([]domain.Trade, error) {
	path := pathbuilder.TradesDailyPath(p.root, market, source, venue, date)
	return readTradeFile(path)
}

// ReadStoredMinutes returns the set of "YYYY-MM-DDTHH_MM" strings already
// present in the venue-day file's trade_time column (§4.6 "Incremental
// fetch-and-store algorithm"). A missing or unreadable file yields an
// empty set rather than an error.
func (p *PartitionedBackend) ReadStoredMinutes(_ context.Context, market, source, venue string, date time.Time) (map[string]struct{}, error) {
	path := pathbuilder.TradesDailyPath(p.root, market, source, venue, date)
	trades, err := readTradeFile(path)
	if err != nil {
		return map[string]struct{}{}, nil
	}
	minutes := make(map[string]struct{}, len(trades))
	for _, t := range trades {
		minutes[t.TradeTime.UTC().Format("2006-01-02T15_04")] = struct{}{}
	}
	return minutes, nil
}

// ConsolidateMonth implements §4.6's monthly consolidation: read every
// daily file for (venue, year, month), concatenate, sort by trade time,
// write to the monthly file via the same atomic protocol with a larger
// row-group size. Daily files are never deleted.
func (p *PartitionedBackend) ConsolidateMonth(_ context.Context, market, source, venue string, year, month int) error {
	dayGlob := filepath.Join(filepath.Dir(filepath.Dir(pathbuilder.TradesDailyPath(p.root, market, source, venue, time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)))), "day=*", "trades.parquet")
	files, err := filepath.Glob(dayGlob)
	if err != nil {
		return fmt.Errorf("store: glob daily trade files: %w", err)
	}

	var all []domain.Trade
	for _, f := range files {
		trades, rerr := readTradeFile(f)
		if rerr != nil {
			return fmt.Errorf("store: read daily trades %s: %w", f, rerr)
		}
		all = append(all, trades...)
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].TradeTime.Before(all[j].TradeTime) })

	monthlyPath := pathbuilder.TradesMonthlyPath(p.root, market, source, venue, year, month)
	opts := parquetio.WriteOptions{Fsync: p.opts.Fsync, RowGroupSize: 100000}
	if err := parquetio.WriteAtomic(monthlyPath, tradesToRows(all), opts); err != nil {
		return fmt.Errorf("store: write monthly consolidation %s: %w", monthlyPath, err)
	}
	return nil
}

func readTradeFile(path string) ([]domain.Trade, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	rows, err := parquetio.ReadFile[parquetio.TradeRow](path)
	if err != nil {
		return nil, err
	}
	return rowsToTrades(rows), nil
}

func tradesToRows(trades []domain.Trade) []parquetio.TradeRow {
	rows := make([]parquetio.TradeRow, len(trades))
	for i, t := range trades {
		rows[i] = parquetio.TradeRow{
			MessageID: t.MessageID, SourceName: t.SourceName, ISIN: t.ISIN,
			InstrumentID: t.InstrumentID, TransID: t.TransID, TickID: t.TickID,
			Price: t.Price, Volume: t.Volume, Currency: t.Currency,
			QuoteType: nullStringPtr(t.QuoteType), TradeTime: t.TradeTime.UnixNano(),
			DistributionTime: nullTimePtr(t.DistributionTime), Venue: t.Venue,
			TickAction: nullStringPtr(t.TickAction), InstrumentCode: nullStringPtr(t.InstrumentCode),
			MarketMechanism: nullStringPtr(t.MarketMechanism), TradingMode: nullStringPtr(t.TradingMode),
			NegotiatedFlag: nullStringPtr(t.NegotiatedFlag), ModificationFlag: nullStringPtr(t.ModificationFlag),
			BenchmarkFlag: nullStringPtr(t.BenchmarkFlag), PubDeferralReason: nullStringPtr(t.PubDeferralReason),
			AlgoIndicator: t.AlgoIndicator,
		}
	}
	return rows
}

func rowsToTrades(rows []parquetio.TradeRow) []domain.Trade {
	trades := make([]domain.Trade, len(rows))
	for i, r := range rows {
		trades[i] = domain.Trade{
			MessageID: r.MessageID, SourceName: r.SourceName, ISIN: r.ISIN,
			InstrumentID: r.InstrumentID, TransID: r.TransID, TickID: r.TickID,
			Price: r.Price, Volume: r.Volume, Currency: r.Currency,
			QuoteType: fromNullStringPtr(r.QuoteType), TradeTime: time.Unix(0, r.TradeTime).UTC(),
			DistributionTime: fromNullTimePtr(r.DistributionTime), Venue: r.Venue,
			TickAction: fromNullStringPtr(r.TickAction), InstrumentCode: fromNullStringPtr(r.InstrumentCode),
			MarketMechanism: fromNullStringPtr(r.MarketMechanism), TradingMode: fromNullStringPtr(r.TradingMode),
			NegotiatedFlag: fromNullStringPtr(r.NegotiatedFlag), ModificationFlag: fromNullStringPtr(r.ModificationFlag),
			BenchmarkFlag: fromNullStringPtr(r.BenchmarkFlag), PubDeferralReason: fromNullStringPtr(r.PubDeferralReason),
			AlgoIndicator: r.AlgoIndicator,
		}
	}
	return trades
}

func nullStringPtr(ns domain.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.Value
	return &v
}

func fromNullStringPtr(p *string) domain.NullString {
	if p == nil {
		return domain.NullString{}
	}
	return domain.NullString{Value: *p, Valid: true}
}

func nullTimePtr(nt domain.NullTime) *int64 {
	if !nt.Valid {
		return nil
	}
	v := nt.Value.UnixNano()
	return &v
}

func fromNullTimePtr(p *int64) domain.NullTime {
	if p == nil {
		return domain.NullTime{}
	}
	return domain.NullTime{Value: time.Unix(0, *p).UTC(), Valid: true}
}
