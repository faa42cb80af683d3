package tradinghours

import (
	"testing"
	"time"
)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestParseActiveHours(t *testing.T) {
	start, end, err := ParseActiveHours("09:30-16:00")
	if err != nil {
		t.Fatalf("ParseActiveHours() error: %v", err)
	}
	if start != (TimeOfDay{9, 30}) || end != (TimeOfDay{16, 0}) {
		t.Errorf("got start=%+v end=%+v", start, end)
	}

	if _, _, err := ParseActiveHours("garbage"); err == nil {
		t.Error("expected error for malformed hours string")
	}
}

func TestIsWithinHoursUTC(t *testing.T) {
	start := TimeOfDay{9, 0}
	end := TimeOfDay{17, 0}

	before := time.Date(2025, 12, 4, 8, 0, 0, 0, time.UTC)
	during := time.Date(2025, 12, 4, 10, 0, 0, 0, time.UTC)
	after := time.Date(2025, 12, 4, 18, 0, 0, 0, time.UTC)

	for _, tc := range []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before", before, false},
		{"during", during, true},
		{"after", after, false},
	} {
		c, err := New(start, end, "UTC", fixedClock(tc.now))
		if err != nil {
			t.Fatalf("New() error: %v", err)
		}
		if got := c.IsWithinHours(); got != tc.want {
			t.Errorf("%s: IsWithinHours() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSecondsUntilActiveLaterToday(t *testing.T) {
	loc, err := time.LoadLocation("US/Eastern")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	now := time.Date(2025, 12, 4, 8, 0, 0, 0, loc)
	c, err := New(TimeOfDay{9, 30}, TimeOfDay{16, 0}, "US/Eastern", fixedClock(now))
	if err != nil {
		t.Fatal(err)
	}
	seconds := c.SecondsUntilActive()
	if seconds < 5390 || seconds > 5410 {
		t.Errorf("expected ~5400s until open, got %v", seconds)
	}
}

func TestSecondsUntilActiveTomorrow(t *testing.T) {
	loc, err := time.LoadLocation("US/Eastern")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	now := time.Date(2025, 12, 4, 17, 0, 0, 0, loc)
	c, err := New(TimeOfDay{9, 30}, TimeOfDay{16, 0}, "US/Eastern", fixedClock(now))
	if err != nil {
		t.Fatal(err)
	}
	seconds := c.SecondsUntilActive()
	wantHours := 16.5
	if got := seconds / 3600; got < wantHours-0.01 || got > wantHours+0.01 {
		t.Errorf("expected ~16.5h until next open, got %.3fh", got)
	}
}

func TestMidnightCrossingWindow(t *testing.T) {
	// 22:00-02:00, currently 23:00: inside the window.
	now := time.Date(2025, 12, 4, 23, 0, 0, 0, time.UTC)
	c, err := New(TimeOfDay{22, 0}, TimeOfDay{2, 0}, "UTC", fixedClock(now))
	if err != nil {
		t.Fatal(err)
	}
	if !c.IsWithinHours() {
		t.Error("expected midnight-crossing window to be active at 23:00")
	}

	// 10:00 the next day is outside it.
	c2, err := New(TimeOfDay{22, 0}, TimeOfDay{2, 0}, "UTC", fixedClock(time.Date(2025, 12, 4, 10, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatal(err)
	}
	if c2.IsWithinHours() {
		t.Error("expected midnight-crossing window to be inactive at 10:00")
	}
}

func TestSecondsUntilCloseWithinHours(t *testing.T) {
	now := time.Date(2025, 12, 4, 15, 0, 0, 0, time.UTC)
	c, err := New(TimeOfDay{9, 0}, TimeOfDay{17, 0}, "UTC", fixedClock(now))
	if err != nil {
		t.Fatal(err)
	}
	seconds := c.SecondsUntilClose()
	if seconds < 7190 || seconds > 7210 {
		t.Errorf("expected ~7200s until close, got %v", seconds)
	}
}
