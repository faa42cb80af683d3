package posttrade

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"marketvault/internal/store"
)

// DateStatus is the outcome of an incremental fetch-and-store pass for a
// single day (§4.6 "Incremental fetch-and-store algorithm").
type DateStatus string

const (
	StatusComplete DateStatus = "complete"
	StatusPartial  DateStatus = "partial"
)

// Summary reports the outcome of FetchAndStoreMissing across every date it
// processed.
type Summary struct {
	DatesChecked []string
	DatesFetched []string
	DatesPartial []string
	TotalTrades  int
	TotalFiles   int
}

// Service orchestrates the posttrade ingest path: determine missing dates,
// fetch+store file by file, and trigger monthly consolidation.
type Service struct {
	fetcher *Fetcher
	store   store.TradeStore
	market  string
	source  string
	log     *slog.Logger
}

// NewService constructs a Service for one (market, source) pair — "de" and
// "xetra" for the one provider this system targets today.
func NewService(fetcher *Fetcher, tradeStore store.TradeStore, market, source string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{fetcher: fetcher, store: tradeStore, market: market, source: source, log: log.With("component", "posttrade-service")}
}

// ListFiles returns every available file for venue on date (YYYY-MM-DD),
// filtered to the requested date from the rolling-window listing.
func (s *Service) ListFiles(ctx context.Context, venue, date string) ([]string, error) {
	all, err := s.fetcher.ListAvailableFiles(ctx, venue)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, name := range all {
		if FilenameDate(name) == date {
			out = append(out, name)
		}
	}
	return out, nil
}

// GetMissingDates determines which of {today, yesterday} (UTC) have data
// available from the API but not yet stored locally (§4.6 "Missing-date
// discovery").
func (s *Service) GetMissingDates(ctx context.Context, venue string, now time.Time) ([]string, error) {
	today := now.UTC()
	yesterday := today.AddDate(0, 0, -1)

	var available []string
	for _, d := range []time.Time{today, yesterday} {
		dateStr := d.Format("2006-01-02")
		files, err := s.ListFiles(ctx, venue, dateStr)
		if err != nil {
			s.log.Debug("could not check date", "venue", venue, "date", dateStr, "error", err)
			continue
		}
		if len(files) > 0 {
			available = append(available, dateStr)
		}
	}
	if len(available) == 0 {
		return nil, nil
	}

	var missing []string
	for _, dateStr := range available {
		d, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		trades, err := s.store.ReadTrades(ctx, s.market, s.source, venue, d)
		if err != nil || len(trades) == 0 {
			missing = append(missing, dateStr)
		}
	}
	return missing, nil
}

// FetchAndStoreMissing implements §4.6's incremental, resumable
// fetch-and-store loop: list files for each missing date, skip already-
// stored minutes, download+store the rest one file at a time so an
// interruption loses at most the current file, and consolidate each
// completed date's month.
func (s *Service) FetchAndStoreMissing(ctx context.Context, venue string, now time.Time, consolidate bool) (Summary, error) {
	missingDates, err := s.GetMissingDates(ctx, venue, now)
	if err != nil {
		return Summary{}, fmt.Errorf("posttrade: get missing dates: %w", err)
	}
	if len(missingDates) == 0 {
		return Summary{}, nil
	}

	summary := Summary{DatesChecked: missingDates}

	for _, dateStr := range missingDates {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		tradeDate, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}

		files, err := s.ListFiles(ctx, venue, dateStr)
		if err != nil {
			s.log.Error("list files failed", "venue", venue, "date", dateStr, "error", err)
			continue
		}
		if len(files) == 0 {
			continue
		}

		existingMinutes, err := s.store.ReadStoredMinutes(ctx, s.market, s.source, venue, tradeDate)
		if err != nil {
			existingMinutes = map[string]struct{}{}
		}

		var toFetch []string
		for _, f := range files {
			key, ok := FilenameMinuteKey(f)
			if !ok {
				toFetch = append(toFetch, f)
				continue
			}
			if _, stored := existingMinutes[key]; !stored {
				toFetch = append(toFetch, f)
			}
		}
		if len(toFetch) == 0 {
			s.log.Info("all files already stored", "venue", venue, "date", dateStr)
			continue
		}

		dateFiles := 0
		for _, filename := range toFetch {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			body, err := s.fetcher.DownloadFile(ctx, filename)
			if err != nil {
				s.log.Error("failed to process file", "filename", filename, "error", err)
				continue
			}
			trades, err := ParseTrades(string(body))
			if err != nil {
				s.log.Error("failed to parse file", "filename", filename, "error", err)
				continue
			}
			if len(trades) == 0 {
				dateFiles++
				continue
			}
			if err := s.store.SaveTradeBatch(ctx, s.market, s.source, venue, tradeDate, trades); err != nil {
				s.log.Error("failed to store trades", "filename", filename, "error", err)
				continue
			}
			dateFiles++
			summary.TotalTrades += len(trades)
			summary.TotalFiles++
		}

		if dateFiles == len(toFetch) {
			summary.DatesFetched = append(summary.DatesFetched, dateStr)
			if consolidate {
				if err := s.store.ConsolidateMonth(ctx, s.market, s.source, venue, tradeDate.Year(), int(tradeDate.Month())); err != nil {
					s.log.Error("monthly consolidation failed", "venue", venue, "year", tradeDate.Year(), "month", tradeDate.Month(), "error", err)
				}
			}
		} else if dateFiles > 0 {
			summary.DatesPartial = append(summary.DatesPartial, dateStr)
		}
	}

	return summary, nil
}
