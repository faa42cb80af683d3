package posttrade

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"marketvault/internal/ratelimit"
)

func noopLimiter() ratelimit.Limiter {
	return ratelimit.NewTokenBucket(1000, 1)
}

func TestListAvailableFilesStripsPrefixAndFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"SourcePrefix":"DETR-posttrade-2025-11-02","CurrentFiles":["DETR-posttrade-2025-11-02-2025-11-04T09_00.json.gz","DETR-posttrade-2025-11-02-2025-11-04T02_00.json.gz"]}`))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, noopLimiter(), true, nil)
	files, err := f.ListAvailableFiles(context.Background(), "DETR")
	if err != nil {
		t.Fatalf("ListAvailableFiles() error: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected trading-hours filter to keep 1 file, got %d: %v", len(files), files)
	}
	if files[0] != "DETR-posttrade-2025-11-04T09_00.json.gz" {
		t.Errorf("unexpected filename: %s", files[0])
	}
}

func TestListAvailableFiles404IsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, noopLimiter(), true, nil)
	files, err := f.ListAvailableFiles(context.Background(), "DETR")
	if err != nil {
		t.Fatalf("expected no error on 404, got %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected empty file list, got %v", files)
	}
}

func TestDownloadFileGunzips(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write([]byte(sampleLine))
	gw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, noopLimiter(), false, nil)
	data, err := f.DownloadFile(context.Background(), "DETR-posttrade-2025-11-04T09_00.json.gz")
	if err != nil {
		t.Fatalf("DownloadFile() error: %v", err)
	}
	if string(data) != sampleLine {
		t.Errorf("got %q, want %q", data, sampleLine)
	}
}

func TestDownloadFileExpiredToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("ExpiredToken: signed url expired"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, noopLimiter(), false, nil)
	_, err := f.DownloadFile(context.Background(), "x.json.gz")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestDownloadFileRetriesOn429(t *testing.T) {
	var attempts int
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write([]byte(sampleLine))
	gw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	start := time.Now()
	f := NewFetcher(srv.URL, noopLimiter(), false, nil)
	data, err := f.DownloadFile(context.Background(), "x.json.gz")
	if err != nil {
		t.Fatalf("DownloadFile() error: %v", err)
	}
	if string(data) != sampleLine {
		t.Errorf("got %q", data)
	}
	if time.Since(start) < 2*time.Second {
		t.Error("expected at least the first backoff delay to elapse")
	}
}

func TestFilenameDateAndMinuteKey(t *testing.T) {
	name := "DETR-posttrade-2025-11-04T09_00.json.gz"
	if got := FilenameDate(name); got != "2025-11-04" {
		t.Errorf("FilenameDate() = %q", got)
	}
	key, ok := FilenameMinuteKey(name)
	if !ok || key != "2025-11-04T09_00" {
		t.Errorf("FilenameMinuteKey() = %q, %v", key, ok)
	}
}
