// Package migration implements the Migration Coordinator (C10): a
// persisted, resumable plan that walks legacy single-file ticker storage
// into the ticker-month partitioned layout one interval at a time, with a
// row-count and checksum assertion after every ticker.
//
// Grounded on
// _examples/original_source/src/yf_parqed/common/migration_plan.py for the
// plan document shape and _examples/original_source/src/yf_parqed/partition_migration_service.py
// for the coordinator algorithm; persistence follows the same atomic
// temp-rename idiom as internal/registry (§9 "Global mutable state").
package migration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const SchemaVersion = 1

// IntervalTotals tracks row counts observed during a migration, nil before
// the first pass over an interval.
type IntervalTotals struct {
	LegacyRows    *int64 `json:"legacy_rows"`
	PartitionRows *int64 `json:"partition_rows"`
}

// IntervalJobs tracks per-ticker progress within an interval's migration.
type IntervalJobs struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// IntervalVerification records how and when an interval's migration was
// verified.
type IntervalVerification struct {
	Method     string `json:"method"`
	VerifiedAt string `json:"verified_at,omitempty"`
}

// Interval is one (venue, interval) migration unit's persisted state
// (§4.10's state machine: pending → migrating → complete|error).
type Interval struct {
	LegacyPath    string               `json:"legacy_path"`
	PartitionPath string               `json:"partition_path"`
	Status        string               `json:"status"`
	Totals        IntervalTotals       `json:"totals"`
	Jobs          IntervalJobs         `json:"jobs"`
	ResumeToken   string               `json:"resume_token,omitempty"`
	Verification  IntervalVerification `json:"verification"`
}

// Venue groups every interval migration for one (market, source) pair.
type Venue struct {
	ID          string              `json:"id"`
	Market      string              `json:"market"`
	Source      string              `json:"source"`
	Status      string              `json:"status"`
	LastUpdated string              `json:"last_updated"`
	Intervals   map[string]Interval `json:"intervals"`
}

// Plan is the whole-file JSON document at migration_plan.json (§3.5, §6.4).
type Plan struct {
	SchemaVersion int              `json:"schema_version"`
	GeneratedAt   string           `json:"generated_at"`
	CreatedBy     string           `json:"created_by"`
	LegacyRoot    string           `json:"legacy_root"`
	Venues        map[string]Venue `json:"venues"`

	path string
}

// LoadPlan reads and validates a Plan from path.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("migration: read plan: %w", err)
	}
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("migration: parse plan: %w", err)
	}
	if p.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("migration: schema_version %d is not supported", p.SchemaVersion)
	}
	if p.LegacyRoot == "" {
		return nil, fmt.Errorf("migration: legacy_root is required")
	}
	p.path = path
	return &p, nil
}

// GetVenue looks up a venue by id.
func (p *Plan) GetVenue(venueID string) (Venue, error) {
	v, ok := p.Venues[venueID]
	if !ok {
		return Venue{}, fmt.Errorf("migration: venue %q not found", venueID)
	}
	return v, nil
}

// UpdateInterval mutates the named interval in place and stamps the venue's
// last_updated/generated_at, mirroring MigrationPlan.update_interval.
func (p *Plan) UpdateInterval(venueID, intervalKey string, mutate func(*Interval), when string) error {
	venue, ok := p.Venues[venueID]
	if !ok {
		return fmt.Errorf("migration: venue %q not found", venueID)
	}
	interval, ok := venue.Intervals[intervalKey]
	if !ok {
		return fmt.Errorf("migration: interval %q not found for venue %q", intervalKey, venueID)
	}
	mutate(&interval)
	venue.Intervals[intervalKey] = interval
	venue.LastUpdated = when
	p.Venues[venueID] = venue
	p.GeneratedAt = when
	return nil
}

// Write persists the plan to its origin path (or path, if non-empty) via an
// atomic same-directory temp-rename, matching the rest of the system's
// global-mutable-state discipline.
func (p *Plan) Write(path string, generatedAt, createdBy string) error {
	target := path
	if target == "" {
		target = p.path
	}
	if target == "" {
		return fmt.Errorf("migration: no target path to write plan to")
	}
	if generatedAt != "" {
		p.GeneratedAt = generatedAt
	}
	if createdBy != "" {
		p.CreatedBy = createdBy
	}

	data, err := json.MarshalIndent(p, "", "    ")
	if err != nil {
		return fmt.Errorf("migration: marshal plan: %w", err)
	}

	dir := filepath.Dir(target)
	tmp := filepath.Join(dir, fmt.Sprintf("%s.tmp-%s", filepath.Base(target), uuid.NewString()))
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("migration: write temp plan: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("migration: rename plan into place: %w", err)
	}
	p.path = target
	return nil
}

// AllIntervalsVerified reports whether every interval on venue is complete
// and carries a verified_at timestamp (§4.10 step 6).
func AllIntervalsVerified(venue Venue) bool {
	for _, interval := range venue.Intervals {
		if interval.Status != "complete" || interval.Verification.VerifiedAt == "" {
			return false
		}
	}
	return true
}
