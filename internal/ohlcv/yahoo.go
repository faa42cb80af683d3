package ohlcv

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"marketvault/internal/domain"
	"marketvault/internal/util"
)

// YahooProvider implements Provider against the public Yahoo Finance chart
// endpoint, the same data source a yfinance-based fetcher would wrap
// (_examples/original_source/src/yf_parqed/get_data_parquet.py
// ::get_yfinance_data). No Go client for this endpoint appears anywhere in
// the pack, so this talks to it directly over net/http rather than adopting
// a generic HTTP client library with no grounding in the corpus.
type YahooProvider struct {
	baseURL string
	client  *http.Client
}

// NewYahooProvider constructs a YahooProvider. baseURL defaults to the
// production chart API host when empty, allowing tests to point at an
// httptest.Server instead.
func NewYahooProvider(baseURL string, client *http.Client) *YahooProvider {
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &YahooProvider{baseURL: baseURL, client: client}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// History implements Provider. Exactly one of (start, end) or period should
// be populated, matching Fetcher's calling convention.
func (p *YahooProvider) History(ctx context.Context, ticker string, start, end time.Time, period, interval string) ([]domain.Bar, error) {
	q := url.Values{}
	q.Set("interval", interval)
	q.Set("events", "div,splits")
	if period != "" {
		q.Set("range", period)
	} else {
		q.Set("period1", strconv.FormatInt(start.Unix(), 10))
		q.Set("period2", strconv.FormatInt(end.Unix(), 10))
	}

	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", p.baseURL, url.PathEscape(ticker), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("yahoo: building request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	var resp *http.Response
	retryErr := util.Retry(ctx, 3, 500*time.Millisecond, func() error {
		var doErr error
		resp, doErr = p.client.Do(req)
		return doErr
	})
	if retryErr != nil {
		return nil, fmt.Errorf("yahoo: request %s: %w", ticker, retryErr)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: %s returned status %d", ticker, resp.StatusCode)
	}

	var parsed chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("yahoo: decoding response for %s: %w", ticker, err)
	}
	if parsed.Chart.Error != nil {
		return nil, nil
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, nil
	}

	result := parsed.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	quote := result.Indicators.Quote[0]

	bars := make([]domain.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Open) || quote.Open[i] == nil || quote.Close[i] == nil {
			continue
		}
		bar := domain.Bar{
			Symbol:    ticker,
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      *quote.Open[i],
			High:      deref(quote.High, i),
			Low:       deref(quote.Low, i),
			Close:     *quote.Close[i],
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			bar.Volume = quote.Volume[i]
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func deref(vals []*float64, i int) float64 {
	if i < len(vals) && vals[i] != nil {
		return *vals[i]
	}
	return 0
}
