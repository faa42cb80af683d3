// Package registry tracks per-ticker, per-interval lifecycle state so the
// OHLCV fetch path can skip symbols that have recently come back not-found
// instead of hammering a dead ticker every cycle.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// IntervalState is the per-(ticker, interval) lifecycle record described by
// the registry entry's "intervals" map.
type IntervalState struct {
	Status        string      `json:"status"`
	LastChecked   string      `json:"last_checked,omitempty"`
	LastFoundDate string      `json:"last_found_date,omitempty"`
	LastDataDate  string      `json:"last_data_date,omitempty"`
	LastNotFound  string      `json:"last_not_found_date,omitempty"`
	Storage       *StorageLoc `json:"storage,omitempty"`
}

// StorageLoc records where a ticker-interval's data last landed, so the
// migration coordinator and operator tooling can answer "where did this
// come from" without re-deriving it from the path builder.
type StorageLoc struct {
	Mode       string `json:"mode"`
	Market     string `json:"market"`
	Source     string `json:"source"`
	Dataset    string `json:"dataset"`
	Root       string `json:"root"`
	Venue      string `json:"venue,omitempty"`
	VerifiedAt string `json:"verified_at,omitempty"`
}

// Entry is one ticker's full registry record (§3.4).
type Entry struct {
	Ticker      string                   `json:"ticker"`
	AddedDate   string                   `json:"added_date"`
	Status      string                   `json:"status"`
	LastChecked string                   `json:"last_checked"`
	Intervals   map[string]IntervalState `json:"intervals"`
}

const (
	StatusActive    = "active"
	StatusNotFound  = "not_found"
)

// FetchProbe re-checks a single not-found ticker against the OHLCV
// provider using the 1d interval, returning whether data was found and,
// if so, the latest date seen.
type FetchProbe func(ticker string) (found bool, lastDate time.Time, err error)

// Clock abstracts "now" so cooldown/reactivation windows are testable.
type Clock func() time.Time

// Registry is the in-memory, file-backed store for every ticker's lifecycle
// state. It is always constructed against a single tickers.json path and
// passed by reference through the call graph — no package-level singleton.
type Registry struct {
	mu      sync.Mutex
	path    string
	clock   Clock
	entries map[string]Entry
}

// New constructs a Registry rooted at path, loading existing entries if the
// file exists. A missing file is not an error; it starts empty.
func New(path string, clock Clock) (*Registry, error) {
	if clock == nil {
		clock = time.Now
	}
	r := &Registry{path: path, clock: clock, entries: map[string]Entry{}}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("registry: read %s: %w", r.path, err)
	}
	entries := map[string]Entry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("registry: parse %s: %w", r.path, err)
	}
	r.entries = entries
	return nil
}

// Save performs a whole-file rewrite of the registry (§9 "Global mutable
// state"), via the same same-directory temp-rename protocol the Parquet
// writer uses so a crash mid-write never corrupts tickers.json.
func (r *Registry) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked()
}

func (r *Registry) saveLocked() error {
	data, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: marshal: %w", err)
	}
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("registry: mkdir %s: %w", dir, err)
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".tickers.json.tmp-%d-%s", os.Getpid(), uuid.NewString()))
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("registry: write temp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("registry: rename %s -> %s: %w", tmp, r.path, err)
	}
	return nil
}

// IsActiveForInterval answers whether ticker/interval should be fetched
// this cycle. An unknown ticker is always active (first sighting).
func (r *Registry) IsActiveForInterval(ticker, interval string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[ticker]
	if !ok {
		return true
	}
	if entry.Status == StatusNotFound {
		return false
	}
	state, ok := entry.Intervals[interval]
	if !ok || state.Status != StatusNotFound {
		return true
	}
	if state.LastNotFound == "" {
		return true
	}
	last, err := time.Parse(dateLayout, state.LastNotFound)
	if err != nil {
		return true
	}
	return r.clock().Sub(last) >= 30*24*time.Hour
}

// LastDataDate returns the stored max(date) for ticker/interval, or the
// zero time if unknown.
func (r *Registry) LastDataDate(ticker, interval string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.entries[ticker].Intervals[interval]
	if !ok || state.LastDataDate == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, state.LastDataDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// UpdateTickerInterval records the outcome of a fetch attempt for
// ticker/interval, creating the entry if it is new, and rolls up the
// ticker-level status per §3.4's invariant (all intervals not_found implies
// ticker not_found).
func (r *Registry) UpdateTickerInterval(ticker, interval string, found bool, lastDate time.Time, storage *StorageLoc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock().Format(dateLayout)
	entry, ok := r.entries[ticker]
	if !ok {
		entry = Entry{
			Ticker:      ticker,
			AddedDate:   now,
			Status:      StatusActive,
			LastChecked: now,
			Intervals:   map[string]IntervalState{},
		}
	}
	if entry.Intervals == nil {
		entry.Intervals = map[string]IntervalState{}
	}
	state := entry.Intervals[interval]

	if found {
		state.Status = StatusActive
		state.LastFoundDate = now
		state.LastChecked = now
		if !lastDate.IsZero() {
			state.LastDataDate = lastDate.Format(dateLayout)
		}
		if storage != nil {
			state.Storage = storage
		}
		entry.Status = StatusActive
	} else {
		state.Status = StatusNotFound
		state.LastNotFound = now
		state.LastChecked = now
		if allNotFound(entry.Intervals, interval, state) {
			entry.Status = StatusNotFound
		}
	}
	entry.LastChecked = now
	entry.Intervals[interval] = state
	r.entries[ticker] = entry
}

func allNotFound(intervals map[string]IntervalState, changed string, changedState IntervalState) bool {
	if len(intervals) == 0 {
		return changedState.Status == StatusNotFound
	}
	for name, s := range intervals {
		if name == changed {
			s = changedState
		}
		if s.Status != StatusNotFound {
			return false
		}
	}
	return true
}

// ActiveTickers returns every ticker currently active for interval, sorted
// for deterministic iteration order.
func (r *Registry) ActiveTickers(interval string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for ticker := range r.entries {
		if r.isActiveForIntervalLocked(ticker, interval) {
			out = append(out, ticker)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Registry) isActiveForIntervalLocked(ticker, interval string) bool {
	entry, ok := r.entries[ticker]
	if !ok {
		return true
	}
	if entry.Status == StatusNotFound {
		return false
	}
	state, ok := entry.Intervals[interval]
	if !ok || state.Status != StatusNotFound {
		return true
	}
	if state.LastNotFound == "" {
		return true
	}
	last, err := time.Parse(dateLayout, state.LastNotFound)
	if err != nil {
		return true
	}
	return r.clock().Sub(last) >= 30*24*time.Hour
}

// UpdateCurrentList merges a fresh ticker universe listing in: new tickers
// are added active; existing not_found tickers are reactivated so the next
// cycle gives them a chance to be found again (mirrors the provider's
// universe refresh discovering a symbol that was previously delisted).
func (r *Registry) UpdateCurrentList(tickers []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock().Format(dateLayout)
	for _, ticker := range tickers {
		entry, ok := r.entries[ticker]
		if !ok {
			r.entries[ticker] = Entry{
				Ticker:      ticker,
				AddedDate:   now,
				Status:      StatusActive,
				LastChecked: now,
				Intervals:   map[string]IntervalState{},
			}
			continue
		}
		if entry.Status == StatusNotFound {
			entry.Status = StatusActive
			if entry.Intervals == nil {
				entry.Intervals = map[string]IntervalState{}
			}
			r.entries[ticker] = entry
		}
	}
}

// ConfirmNotFounds re-probes every globally not_found ticker on the 1d
// interval via probe, rate-limited by wait, then persists and runs
// ReparseNotFounds. Mirrors the original's confirm_not_founds pass.
func (r *Registry) ConfirmNotFounds(wait func() error, probe FetchProbe) error {
	r.mu.Lock()
	var notFound []string
	for ticker, entry := range r.entries {
		if entry.Status == StatusNotFound {
			notFound = append(notFound, ticker)
		}
	}
	r.mu.Unlock()
	sort.Strings(notFound)

	for _, ticker := range notFound {
		if wait != nil {
			if err := wait(); err != nil {
				return fmt.Errorf("registry: rate limit wait: %w", err)
			}
		}
		found, lastDate, err := probe(ticker)
		if err != nil {
			continue
		}
		if found {
			r.UpdateTickerInterval(ticker, "1d", true, lastDate, nil)
		}
	}

	if err := r.Save(); err != nil {
		return err
	}
	return r.ReparseNotFounds()
}

// ReparseNotFounds reactivates any globally not_found ticker that has
// last_found_date within 90 days on any interval, without re-hitting the
// network — a pure pass over already-recorded state.
func (r *Registry) ReparseNotFounds() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	for ticker, entry := range r.entries {
		if entry.Status != StatusNotFound {
			continue
		}
		recent := false
		for _, state := range entry.Intervals {
			if state.LastFoundDate == "" {
				continue
			}
			last, err := time.Parse(dateLayout, state.LastFoundDate)
			if err != nil {
				continue
			}
			if now.Sub(last) <= 90*24*time.Hour {
				recent = true
				break
			}
		}
		if recent {
			entry.Status = StatusActive
			entry.LastChecked = now.Format(dateLayout)
			r.entries[ticker] = entry
		}
	}
	return r.saveLocked()
}

// Entries returns a snapshot copy of every registry entry, for operator
// visibility surfaces.
func (r *Registry) Entries() map[string]Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Entry, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}
