package ohlcv

import (
	"context"
	"fmt"
	"strings"
	"time"

	alpacaapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"marketvault/internal/domain"
)

// AlpacaProvider implements Provider against Alpaca's market-data API, an
// alternative ticker-history source to YahooProvider for markets/sources
// configured to use it. Grounded on
// _examples/chenjiangme-jupitor/internal/gather/us/alpaca.go::fetchMultiBars,
// narrowed from the multi-symbol batch call to the single-ticker shape
// Provider.History needs.
type AlpacaProvider struct {
	client *marketdata.Client
}

// NewAlpacaProvider constructs an AlpacaProvider. dataURL overrides the
// default market-data API host when non-empty (paper/live distinction).
func NewAlpacaProvider(apiKey, apiSecret, dataURL string) *AlpacaProvider {
	opts := marketdata.ClientOpts{APIKey: apiKey, APISecret: apiSecret}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaProvider{client: marketdata.NewClient(opts)}
}

var alpacaTimeFrames = map[string]marketdata.TimeFrame{
	"1d": marketdata.OneDay,
	"1h": marketdata.OneHour,
}

// History implements Provider. Alpaca has no "period" shorthand, so a
// period-only call (the get-all shortcut) is translated to a wide date
// range ending today.
func (p *AlpacaProvider) History(ctx context.Context, ticker string, start, end time.Time, period, interval string) ([]domain.Bar, error) {
	tf, ok := alpacaTimeFrames[interval]
	if !ok {
		return nil, fmt.Errorf("alpaca: unsupported interval %q", interval)
	}
	if period != "" {
		end = time.Now()
		start = end.AddDate(-10, 0, 0)
	}

	bars, err := p.client.GetBars(ticker, marketdata.GetBarsRequest{
		TimeFrame: tf,
		Start:     start,
		End:       end.AddDate(0, 0, 1),
		Feed:      "sip",
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca: GetBars(%s): %w", ticker, err)
	}

	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		out = append(out, domain.Bar{
			Symbol:    strings.ToUpper(ticker),
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    int64p(int64(b.Volume)),
		})
	}
	return out, nil
}

func int64p(v int64) *int64 { return &v }

// AlpacaCalendar counts actual trading days via Alpaca's calendar API,
// replacing businessDaysBetween's Mon-Fri approximation with the real
// exchange schedule (holidays excluded) for markets/sources that can reach
// it. Grounded on
// _examples/chenjiangme-jupitor/internal/gather/us/calendar.go::LatestFinishedTradingDay,
// which queries the same endpoint.
type AlpacaCalendar struct {
	client *alpacaapi.Client
}

// NewAlpacaCalendar constructs an AlpacaCalendar.
func NewAlpacaCalendar(apiKey, apiSecret, baseURL string) *AlpacaCalendar {
	return &AlpacaCalendar{client: alpacaapi.NewClient(alpacaapi.ClientOpts{
		APIKey: apiKey, APISecret: apiSecret, BaseURL: baseURL,
	})}
}

// TradingDaysBetween returns the count of exchange trading days in
// [start, end), per the Calendar interface businessDaysGate accepts.
func (c *AlpacaCalendar) TradingDaysBetween(start, end time.Time) (int, error) {
	if !end.After(start) {
		return 0, nil
	}
	cal, err := c.client.GetCalendar(alpacaapi.GetCalendarRequest{Start: start, End: end.AddDate(0, 0, -1)})
	if err != nil {
		return 0, fmt.Errorf("alpaca: GetCalendar: %w", err)
	}
	return len(cal), nil
}
