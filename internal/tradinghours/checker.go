// Package tradinghours implements a general-purpose, timezone-aware trading
// hours window: is the market open now, how long until it opens, and when
// does it open next. Grounded on
// _examples/original_source/src/yf_parqed/trading_hours_checker.py.
//
// This is distinct from the posttrade fetcher's isWithinTradingHours, which
// parses a trading window out of an already-named drop file rather than
// checking the wall clock against a configured window.
package tradinghours

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock abstracts "now" so window math is testable without sleeping.
type Clock func() time.Time

// Checker reports whether the current time falls within a configured
// market window, expressed as a time-of-day pair in a market timezone.
type Checker struct {
	start, end time.Time // time-of-day only; Year/Month/Day are zero values
	marketLoc  *time.Location
	now        Clock
}

// New constructs a Checker for the [start, end] window in marketTZ (an IANA
// zone name, e.g. "US/Eastern" or "Europe/Berlin"). start may be after end
// to express a window crossing midnight. A nil clock defaults to time.Now.
func New(start, end TimeOfDay, marketTZ string, clock Clock) (*Checker, error) {
	loc, err := time.LoadLocation(marketTZ)
	if err != nil {
		return nil, fmt.Errorf("tradinghours: load location %q: %w", marketTZ, err)
	}
	if clock == nil {
		clock = time.Now
	}
	return &Checker{
		start:     start.asTime(),
		end:       end.asTime(),
		marketLoc: loc,
		now:       clock,
	}, nil
}

// TimeOfDay is a wall-clock hour/minute, independent of any date.
type TimeOfDay struct {
	Hour, Minute int
}

func (t TimeOfDay) asTime() time.Time {
	return time.Date(0, 1, 1, t.Hour, t.Minute, 0, 0, time.UTC)
}

// ParseActiveHours parses a "HH:MM-HH:MM" string into a start/end pair.
func ParseActiveHours(s string) (start, end TimeOfDay, err error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return start, end, fmt.Errorf("tradinghours: invalid active hours format %q, expected HH:MM-HH:MM", s)
	}
	start, err = parseTimeOfDay(parts[0])
	if err != nil {
		return start, end, fmt.Errorf("tradinghours: invalid active hours format %q: %w", s, err)
	}
	end, err = parseTimeOfDay(parts[1])
	if err != nil {
		return start, end, fmt.Errorf("tradinghours: invalid active hours format %q: %w", s, err)
	}
	return start, end, nil
}

func parseTimeOfDay(s string) (TimeOfDay, error) {
	hm := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(hm) != 2 {
		return TimeOfDay{}, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hour, err := strconv.Atoi(hm[0])
	if err != nil {
		return TimeOfDay{}, err
	}
	minute, err := strconv.Atoi(hm[1])
	if err != nil {
		return TimeOfDay{}, err
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// IsWithinHours reports whether the current time, converted into the
// market timezone, falls within [start, end]. A start after end is
// interpreted as a window crossing midnight.
func (c *Checker) IsWithinHours() bool {
	nowTOD := c.nowTimeOfDay()
	if !c.start.After(c.end) {
		return !nowTOD.Before(c.start) && !nowTOD.After(c.end)
	}
	return !nowTOD.Before(c.start) || !nowTOD.After(c.end)
}

// SecondsUntilActive returns how many seconds remain until the window next
// opens, or 0 if it is open right now.
func (c *Checker) SecondsUntilActive() float64 {
	if c.IsWithinHours() {
		return 0
	}
	nowMarket := c.now().In(c.marketLoc)
	todayStart := time.Date(nowMarket.Year(), nowMarket.Month(), nowMarket.Day(),
		c.start.Hour(), c.start.Minute(), 0, 0, c.marketLoc)

	if c.nowTimeOfDay().Before(c.start) {
		return todayStart.Sub(nowMarket).Seconds()
	}
	return todayStart.AddDate(0, 0, 1).Sub(nowMarket).Seconds()
}

// NextActiveTime returns the wall-clock instant the window next opens.
func (c *Checker) NextActiveTime() time.Time {
	return c.now().Add(time.Duration(c.SecondsUntilActive() * float64(time.Second)))
}

// SecondsUntilClose returns how many seconds remain until the window
// closes, or 0 if it is already closed.
func (c *Checker) SecondsUntilClose() float64 {
	if !c.IsWithinHours() {
		return 0
	}
	nowMarket := c.now().In(c.marketLoc)
	todayEnd := time.Date(nowMarket.Year(), nowMarket.Month(), nowMarket.Day(),
		c.end.Hour(), c.end.Minute(), 0, 0, c.marketLoc)
	if c.end.Before(c.start) && c.nowTimeOfDay().Before(c.end) {
		// we're past midnight, inside the tail of yesterday's window
		return todayEnd.Sub(nowMarket).Seconds()
	}
	if todayEnd.Before(nowMarket) {
		todayEnd = todayEnd.AddDate(0, 0, 1)
	}
	return todayEnd.Sub(nowMarket).Seconds()
}

func (c *Checker) nowTimeOfDay() time.Time {
	n := c.now().In(c.marketLoc)
	return time.Date(0, 1, 1, n.Hour(), n.Minute(), n.Second(), 0, time.UTC)
}
