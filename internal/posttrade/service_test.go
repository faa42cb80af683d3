package posttrade

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketvault/internal/domain"
)

type fakeTradeStore struct {
	saved   map[string][]domain.Trade
	minutes map[string]map[string]struct{}
}

func newFakeTradeStore() *fakeTradeStore {
	return &fakeTradeStore{saved: map[string][]domain.Trade{}, minutes: map[string]map[string]struct{}{}}
}

func key(market, source, venue string, date time.Time) string {
	return market + "/" + source + "/" + venue + "/" + date.Format("2006-01-02")
}

func (s *fakeTradeStore) SaveTradeBatch(_ context.Context, market, source, venue string, date time.Time, trades []domain.Trade) error {
	k := key(market, source, venue, date)
	s.saved[k] = append(s.saved[k], trades...)
	return nil
}

func (s *fakeTradeStore) ReadTrades(_ context.Context, market, source, venue string, date time.Time) ([]domain.Trade, error) {
	return s.saved[key(market, source, venue, date)], nil
}

func (s *fakeTradeStore) ReadStoredMinutes(_ context.Context, market, source, venue string, date time.Time) (map[string]struct{}, error) {
	if m, ok := s.minutes[key(market, source, venue, date)]; ok {
		return m, nil
	}
	return map[string]struct{}{}, nil
}

func (s *fakeTradeStore) ConsolidateMonth(context.Context, string, string, string, int, int) error {
	return nil
}

func TestGetMissingDatesSkipsAlreadyStored(t *testing.T) {
	today := time.Date(2025, 11, 4, 10, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"SourcePrefix":"DETR-posttrade-x","CurrentFiles":["DETR-posttrade-x-2025-11-04T09_00.json.gz"]}`))
	}))
	defer srv.Close()

	fetcher := NewFetcher(srv.URL, noopLimiter(), false, nil)
	ts := newFakeTradeStore()
	svc := NewService(fetcher, ts, "de", "xetra", nil)

	missing, err := svc.GetMissingDates(context.Background(), "DETR", today)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 1 || missing[0] != "2025-11-04" {
		t.Fatalf("got %v", missing)
	}

	ts.saved[key("de", "xetra", "DETR", today)] = []domain.Trade{{ISIN: "x"}}
	missing, err = svc.GetMissingDates(context.Background(), "DETR", today)
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range missing {
		if d == "2025-11-04" {
			t.Fatal("expected already-stored date to be excluded")
		}
	}
}

func TestFetchAndStoreMissingSkipsStoredMinutes(t *testing.T) {
	today := time.Date(2025, 11, 4, 10, 0, 0, 0, time.UTC)

	fileServerHit := 0
	fileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fileServerHit++
		w.Write([]byte(`{"SourcePrefix":"DETR-posttrade-x","CurrentFiles":["DETR-posttrade-x-2025-11-04T09_00.json.gz","DETR-posttrade-x-2025-11-04T09_01.json.gz"]}`))
	}))
	defer fileSrv.Close()

	fetcher := NewFetcher(fileSrv.URL, noopLimiter(), false, nil)
	ts := newFakeTradeStore()
	ts.minutes[key("de", "xetra", "DETR", time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC))] = map[string]struct{}{
		"2025-11-04T09_00": {},
	}

	svc := NewService(fetcher, ts, "de", "xetra", nil)
	_, err := svc.FetchAndStoreMissing(context.Background(), "DETR", today, false)
	if err != nil {
		t.Fatalf("FetchAndStoreMissing() error: %v", err)
	}
	if fileServerHit == 0 {
		t.Error("expected listing endpoint to be hit")
	}
}
