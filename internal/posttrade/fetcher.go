// Package posttrade fetches, rate-limits, and parses the Deutsche Börse
// posttrade drop: a rolling ~24h window of gzipped JSONL files, one per
// venue per minute.
package posttrade

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/klauspost/compress/gzip"

	"marketvault/internal/ratelimit"
)

// tradingHours gives each venue's download window in Europe/Berlin local
// time (§4.5 "Trading-hours filter"). Unknown venues are not filtered.
var tradingHours = map[string][2]string{
	"DETR": {"08:00", "18:30"},
	"DFRA": {"08:30", "18:00"},
	"DGAT": {"08:30", "18:00"},
	"DEUR": {"08:30", "18:00"},
}

// FileListing is the upstream listing response (§6.1).
type FileListing struct {
	SourcePrefix string   `json:"SourcePrefix"`
	CurrentFiles []string `json:"CurrentFiles"`
}

// Fetcher lists, downloads, decompresses, and rate-limits access to a
// single posttrade provider base URL.
type Fetcher struct {
	baseURL          string
	client           *http.Client
	limiter          ratelimit.Limiter
	filterEmptyFiles bool
	log              *slog.Logger
}

// NewFetcher constructs a Fetcher. limiter enforces the burst+cooldown
// discipline described in §4.1; the caller is expected to construct it via
// ratelimit.NewBurstCooldown with venue-appropriate constants.
func NewFetcher(baseURL string, limiter ratelimit.Limiter, filterEmptyFiles bool, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{
		baseURL:          strings.TrimRight(baseURL, "/") + "/",
		client:           &http.Client{Timeout: 30 * time.Second},
		limiter:          limiter,
		filterEmptyFiles: filterEmptyFiles,
		log:              log.With("component", "posttrade-fetcher"),
	}
}

// ListAvailableFiles lists every currently retained file for venue,
// stripping the upstream source prefix and applying the trading-hours
// filter.
func (f *Fetcher) ListAvailableFiles(ctx context.Context, venue string) ([]string, error) {
	url := f.baseURL + venue + "-posttrade"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("posttrade: build list request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posttrade: list %s: %w", venue, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("posttrade: list %s: unexpected status %d", venue, resp.StatusCode)
	}

	var listing FileListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("posttrade: decode listing for %s: %w", venue, err)
	}

	prefix := venue + "-posttrade"
	var out []string
	for _, raw := range listing.CurrentFiles {
		name := raw
		if listing.SourcePrefix != "" && strings.HasPrefix(raw, listing.SourcePrefix+"-") {
			name = prefix + "-" + raw[len(listing.SourcePrefix)+1:]
		}
		if f.isWithinTradingHours(name, venue) {
			out = append(out, name)
		}
	}
	return out, nil
}

// isWithinTradingHours parses the embedded UTC timestamp out of a filename
// like "DETR-posttrade-2025-11-04T09_00.json.gz" and checks it against the
// venue's Europe/Berlin trading window.
func (f *Fetcher) isWithinTradingHours(filename, venue string) bool {
	if !f.filterEmptyFiles {
		return true
	}
	window, ok := tradingHours[venue]
	if !ok {
		return true
	}

	idx := strings.LastIndex(filename, "T")
	if idx < 0 {
		return true
	}
	datePart := filename[:idx]
	if len(datePart) < 10 {
		return true
	}
	dateStr := datePart[len(datePart)-10:]

	timePart := filename[idx+1:]
	if dot := strings.Index(timePart, "."); dot >= 0 {
		timePart = timePart[:dot]
	}
	hm := strings.SplitN(timePart, "_", 2)
	if len(hm) != 2 {
		return true
	}

	utc, err := time.ParseInLocation("2006-01-02 15:04", dateStr+" "+hm[0]+":"+hm[1], time.UTC)
	if err != nil {
		f.log.Warn("could not parse timestamp from filename", "filename", filename, "error", err)
		return true
	}

	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		return true
	}
	local := utc.In(berlin).Format("15:04")

	return window[0] <= local && local <= window[1]
}

// DownloadFile downloads and gunzips the named file, rate-limited via
// limiter and retried on HTTP 429 per §4.1's fallback policy, via
// ratelimit.RetryRateLimited's fixed 2s/4s/8s/16s doubling schedule.
func (f *Fetcher) DownloadFile(ctx context.Context, filename string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("posttrade: rate limit wait: %w", err)
	}

	url := f.baseURL + "download/" + filename

	attempt := 0
	var result []byte
	err := ratelimit.RetryRateLimited(ctx, func() error {
		body, status, derr := f.doDownload(ctx, url)
		if derr != nil {
			if status == http.StatusTooManyRequests {
				attempt++
				f.log.Warn("rate limited, backing off", "filename", filename, "attempt", attempt)
				return derr
			}
			return backoff.Permanent(derr)
		}
		decompressed, gerr := gunzip(body)
		if gerr != nil {
			return backoff.Permanent(fmt.Errorf("posttrade: gunzip %s: %w", filename, gerr))
		}
		result = decompressed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("posttrade: download %s: %w", filename, err)
	}
	return result, nil
}

func (f *Fetcher) doDownload(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == 400 && strings.Contains(string(body), "ExpiredToken") {
			return nil, resp.StatusCode, ErrExpiredToken
		}
		return nil, resp.StatusCode, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(strings.NewReader(string(data)))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// FilenameDate extracts the "YYYY-MM-DD" date embedded in a canonical
// posttrade filename, or "" if it cannot be parsed.
func FilenameDate(filename string) string {
	idx := strings.LastIndex(filename, "T")
	if idx < 10 {
		return ""
	}
	datePart := filename[:idx]
	if len(datePart) < 10 {
		return ""
	}
	return datePart[len(datePart)-10:]
}

// FilenameMinuteKey returns the "YYYY-MM-DDTHH_MM" key used to compare a
// filename against already-stored minutes (§4.6).
func FilenameMinuteKey(filename string) (string, bool) {
	idx := strings.LastIndex(filename, "T")
	if idx < 10 {
		return "", false
	}
	datePart := filename[:idx]
	if len(datePart) < 10 {
		return "", false
	}
	date := datePart[len(datePart)-10:]

	timePart := filename[idx+1:]
	if dot := strings.Index(timePart, "."); dot >= 0 {
		timePart = timePart[:dot]
	}
	if _, err := strconv.Atoi(timePart[:2]); err != nil {
		return "", false
	}
	return date + "T" + timePart, true
}
