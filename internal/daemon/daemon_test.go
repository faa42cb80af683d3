package daemon

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	var calls int32
	cfg := Config{
		FetchInterval: time.Hour,
		FetchCycle: func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	}
	d, err := New(cfg, discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if atomic.LoadInt32(&calls) < 1 {
		t.Error("expected at least one fetch cycle before shutdown")
	}
}

func TestInitialFetchRunsWhenStoreEmpty(t *testing.T) {
	var fetches int32
	cfg := Config{
		FetchInterval: time.Hour,
		FetchCycle: func(ctx context.Context) error {
			atomic.AddInt32(&fetches, 1)
			return nil
		},
		HasAnyData: func(ctx context.Context) (bool, error) { return false, nil },
	}
	d, err := New(cfg, discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // stop the loop immediately after the initial fetch
	d.Run(ctx)

	if atomic.LoadInt32(&fetches) != 1 {
		t.Errorf("expected exactly one initial fetch, got %d", fetches)
	}
}

func TestAcquirePIDFileRefusesLiveOwner(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "daemon.pid")
	if err := os.WriteFile(pidFile, []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Config{
		PIDFile:    pidFile,
		FetchCycle: func(ctx context.Context) error { return nil },
	}
	d, err := New(cfg, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); err == nil {
		t.Error("expected Run to refuse starting with PID 1 recorded as live")
	}
}

func TestAcquirePIDFileRemovesStaleEntry(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "daemon.pid")
	// a PID very unlikely to be alive
	if err := os.WriteFile(pidFile, []byte("999999"), 0o644); err != nil {
		t.Fatal(err)
	}

	var calls int32
	cfg := Config{
		PIDFile: pidFile,
		FetchCycle: func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	}
	d, err := New(cfg, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Error("expected PID file to be removed after clean shutdown")
	}
}

func TestCadenceDue(t *testing.T) {
	now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		cadence Cadence
		lastRun time.Time
		want    bool
	}{
		{CadenceNever, time.Time{}, false},
		{CadenceDaily, now.Add(-25 * time.Hour), true},
		{CadenceDaily, now.Add(-1 * time.Hour), false},
		{CadenceWeekly, now.Add(-8 * 24 * time.Hour), true},
		{CadenceMonthly, now.Add(-31 * 24 * time.Hour), true},
	}
	for _, tc := range cases {
		if got := tc.cadence.due(tc.lastRun, now); got != tc.want {
			t.Errorf("%s.due(%v, %v) = %v, want %v", tc.cadence, tc.lastRun, now, got, tc.want)
		}
	}
}
