package config

import (
	"path/filepath"
	"testing"
)

func TestIntervalsRoundTrip(t *testing.T) {
	svc := NewService(t.TempDir())

	intervals, err := svc.LoadIntervals()
	if err != nil {
		t.Fatalf("LoadIntervals() on missing file: %v", err)
	}
	if len(intervals) != 0 {
		t.Errorf("expected empty intervals, got %v", intervals)
	}

	if err := svc.AddInterval("1d"); err != nil {
		t.Fatal(err)
	}
	if err := svc.AddInterval("1h"); err != nil {
		t.Fatal(err)
	}
	if err := svc.AddInterval("1d"); err != nil { // duplicate, no-op
		t.Fatal(err)
	}

	intervals, err = svc.LoadIntervals()
	if err != nil {
		t.Fatal(err)
	}
	if len(intervals) != 2 {
		t.Errorf("expected 2 intervals after dedup, got %v", intervals)
	}

	if err := svc.RemoveInterval("1h"); err != nil {
		t.Fatal(err)
	}
	intervals, err = svc.LoadIntervals()
	if err != nil {
		t.Fatal(err)
	}
	if len(intervals) != 1 || intervals[0] != "1d" {
		t.Errorf("expected [1d] after removal, got %v", intervals)
	}
}

func TestStorageConfigDefaultsPartitioned(t *testing.T) {
	svc := NewService(t.TempDir())
	enabled, err := svc.IsPartitionedEnabled("de", "xetra")
	if err != nil {
		t.Fatal(err)
	}
	if !enabled {
		t.Error("expected a fresh install to default to partitioned storage")
	}
}

func TestStorageConfigMostSpecificOverrideWins(t *testing.T) {
	svc := NewService(t.TempDir())

	if err := svc.SetPartitionMode(false); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetMarketPartitionMode("de", true); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetSourcePartitionMode("de", "xetra", false); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		market, source string
		want            bool
	}{
		{"us", "yahoo", false},  // falls through to global default
		{"de", "", true},        // market override (source empty)
		{"de", "xetra", false},  // source override beats market override
		{"de", "other", true},   // market override applies when no source override
	}
	for _, tc := range cases {
		got, err := svc.IsPartitionedEnabled(tc.market, tc.source)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Errorf("IsPartitionedEnabled(%q, %q) = %v, want %v", tc.market, tc.source, got, tc.want)
		}
	}
}

func TestActivatePartitionedStorageCallback(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(dir)
	activate := svc.ActivatePartitionedStorage()

	if err := activate("de", "xetra"); err != nil {
		t.Fatal(err)
	}
	enabled, err := svc.IsPartitionedEnabled("de", "xetra")
	if err != nil {
		t.Fatal(err)
	}
	if !enabled {
		t.Error("expected ActivatePartitionedStorage callback to flip the source override on")
	}

	if _, err := svc.LoadStorageConfig(); err != nil {
		t.Fatal(err)
	}
	if _, err := filepath.Abs(dir); err != nil {
		t.Fatal(err)
	}
}
