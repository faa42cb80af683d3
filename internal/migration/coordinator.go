package migration

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"marketvault/internal/registry"
	"marketvault/internal/store"
)

// DatasetName is the dataset segment migrated partitions are written under
// (§6.3 `{dataset}_{interval}`).
const DatasetName = "bars"

// Result reports the outcome of one MigrateInterval call.
type Result struct {
	JobsTotal        int
	JobsCompleted    int
	LegacyRows       int64
	PartitionRows    int64
	Checksums        map[string]string
	Tickers          []string
	StorageActivated bool
	Persisted        bool
	PartialRun       bool
}

// Coordinator orchestrates the Migration Coordinator (C10) against a
// persisted Plan. ActivatePartitionedStorage is an optional hook invoked
// once every interval for a venue verifies (§4.10 step 6); cmd/partition-migrate
// sets it from config.Service.ActivatePartitionedStorage, and a nil hook skips
// activation.
type Coordinator struct {
	root        string
	legacy      *store.LegacyBackend
	partitioned *store.PartitionedBackend
	reg         *registry.Registry
	now         func() string
	createdBy   string

	ActivatePartitionedStorage func(market, source string) error
}

// NewCoordinator constructs a Coordinator rooted at root (the workspace's
// base path, matching the plan's path resolution).
func NewCoordinator(root string, legacy *store.LegacyBackend, partitioned *store.PartitionedBackend, reg *registry.Registry, now func() string, createdBy string) *Coordinator {
	return &Coordinator{root: root, legacy: legacy, partitioned: partitioned, reg: reg, now: now, createdBy: createdBy}
}

func (c *Coordinator) planPath() string {
	return filepath.Join(c.root, "migration_plan.json")
}

// InitializePlan writes a fresh migration_plan.json for one venue across
// the given intervals, each starting "pending" (§4.10, mirrors
// PartitionMigrationService.initialize_plan). The legacy root must already
// exist at {root}/data/legacy.
func (c *Coordinator) InitializePlan(venueID, market, source string, intervals []string, overwrite bool) (*Plan, error) {
	path := c.planPath()
	if _, err := os.Stat(path); err == nil && !overwrite {
		return nil, fmt.Errorf("migration: plan already exists at %s; use --force to overwrite", path)
	}

	legacyRoot := filepath.Join("data", "legacy")
	if _, err := os.Stat(filepath.Join(c.root, legacyRoot)); err != nil {
		return nil, fmt.Errorf("migration: legacy path does not exist: %w", err)
	}

	timestamp := c.now()
	intervalEntries := map[string]Interval{}
	for _, interval := range intervals {
		intervalEntries[interval] = Interval{
			LegacyPath:    filepath.Join(legacyRoot, fmt.Sprintf("stocks_%s", interval)),
			PartitionPath: filepath.Join("data", strings.ToLower(market), strings.ToLower(source), fmt.Sprintf("%s_%s", DatasetName, interval)),
			Status:        "pending",
			Totals:        IntervalTotals{},
			Jobs:          IntervalJobs{},
			Verification:  IntervalVerification{Method: "row_counts"},
		}
	}

	plan := &Plan{
		SchemaVersion: SchemaVersion,
		GeneratedAt:   timestamp,
		CreatedBy:     c.createdBy,
		LegacyRoot:    legacyRoot,
		Venues: map[string]Venue{
			venueID: {
				ID:          venueID,
				Market:      market,
				Source:      source,
				Status:      "pending",
				LastUpdated: timestamp,
				Intervals:   intervalEntries,
			},
		},
	}
	if err := plan.Write(path, timestamp, c.createdBy); err != nil {
		return nil, err
	}
	return plan, nil
}

// legacyTickerFiles returns the sorted ticker names found as {ticker}.parquet
// files under the interval's legacy directory.
func (c *Coordinator) legacyTickerFiles(legacyPath string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(c.root, legacyPath, "*.parquet"))
	if err != nil {
		return nil, fmt.Errorf("migration: glob legacy tickers: %w", err)
	}
	tickers := make([]string, len(matches))
	for i, m := range matches {
		tickers[i] = strings.TrimSuffix(filepath.Base(m), ".parquet")
	}
	sort.Strings(tickers)
	return tickers, nil
}

// MigrateInterval runs §4.10's migrate-interval algorithm for one
// (venue, interval) pair. maxTickers <= 0 means "no cap"; a positive cap
// smaller than the number of legacy tickers runs a smoke test over the first
// maxTickers tickers that mutates no on-disk plan (persisted=false,
// partial_run=true in the result). A cap at or above that number is a full,
// persisted run.
func (c *Coordinator) MigrateInterval(ctx context.Context, venueID, interval string, deleteLegacy bool, maxTickers int) (Result, error) {
	plan, err := LoadPlan(c.planPath())
	if err != nil {
		return Result{}, err
	}
	venue, err := plan.GetVenue(venueID)
	if err != nil {
		return Result{}, err
	}
	intervalState, ok := venue.Intervals[interval]
	if !ok {
		return Result{}, fmt.Errorf("migration: interval %q not configured for venue %q", interval, venueID)
	}

	legacyAbs := filepath.Join(c.root, intervalState.LegacyPath)
	if _, err := os.Stat(legacyAbs); err != nil {
		return Result{}, fmt.Errorf("migration: legacy path does not exist: %s", legacyAbs)
	}
	partitionAbs := filepath.Join(c.root, intervalState.PartitionPath)
	if rel, err := filepath.Rel(legacyAbs, partitionAbs); err == nil && !strings.HasPrefix(rel, "..") {
		return Result{}, fmt.Errorf("migration: partition path is inside legacy root; adjust the plan before continuing")
	}

	tickers, err := c.legacyTickerFiles(intervalState.LegacyPath)
	if err != nil {
		return Result{}, err
	}

	partialRun := maxTickers > 0 && maxTickers < len(tickers)
	workingSet := tickers
	if maxTickers > 0 && maxTickers < len(tickers) {
		workingSet = tickers[:maxTickers]
	}

	if !partialRun {
		timestamp := c.now()
		if err := plan.UpdateInterval(venueID, interval, func(iv *Interval) {
			iv.Status = "migrating"
			iv.Jobs = IntervalJobs{Total: len(workingSet), Completed: 0}
			zero := int64(0)
			iv.Totals = IntervalTotals{LegacyRows: &zero, PartitionRows: &zero}
		}, timestamp); err != nil {
			return Result{}, err
		}
		if err := plan.Write("", timestamp, c.createdBy); err != nil {
			return Result{}, err
		}
	}

	var (
		completed          int
		totalLegacyRows    int64
		totalPartitionRows int64
		checksums          = map[string]string{}
	)

	for _, ticker := range workingSet {
		legacyBars, err := c.legacy.Read(ctx, store.Request{Interval: interval, Ticker: ticker})
		if err != nil {
			return Result{}, fmt.Errorf("migration: read legacy %s: %w", ticker, err)
		}
		partitionReq := store.Request{Market: venue.Market, Source: venue.Source, Dataset: DatasetName, Interval: interval, Ticker: ticker}
		existingPartition, err := c.partitioned.Read(ctx, partitionReq)
		if err != nil {
			if _, ok := err.(*store.PartitionReadError); !ok {
				return Result{}, fmt.Errorf("migration: read partition %s: %w", ticker, err)
			}
		}
		combined, err := c.partitioned.Save(ctx, partitionReq, legacyBars)
		if err != nil {
			return Result{}, fmt.Errorf("migration: save partition %s: %w", ticker, err)
		}
		_ = existingPartition // only read so that a read failure other than PartitionReadError aborts above; a PartitionReadError is tolerated. Migration assumes no pre-existing partition data

		if len(combined) != len(legacyBars) {
			return Result{}, fmt.Errorf("migration: row count mismatch for ticker %s: legacy=%d partition=%d", ticker, len(legacyBars), len(combined))
		}

		legacySum := FrameChecksum(legacyBars)
		partitionSum := FrameChecksum(combined)
		if legacySum != partitionSum {
			return Result{}, fmt.Errorf("migration: checksum mismatch for ticker %s", ticker)
		}
		checksumHex := hex.EncodeToString(partitionSum[:])
		checksums[ticker] = checksumHex

		completed++
		totalLegacyRows += int64(len(legacyBars))
		totalPartitionRows += int64(len(combined))

		if deleteLegacy {
			c.deleteLegacyFile(intervalState.LegacyPath, ticker)
		}

		if !partialRun {
			timestamp := c.now()
			if err := plan.UpdateInterval(venueID, interval, func(iv *Interval) {
				iv.Jobs.Completed = completed
				lr, pr := totalLegacyRows, totalPartitionRows
				iv.Totals = IntervalTotals{LegacyRows: &lr, PartitionRows: &pr}
			}, timestamp); err != nil {
				return Result{}, err
			}
			if err := plan.Write("", timestamp, c.createdBy); err != nil {
				return Result{}, err
			}
		}
	}

	result := Result{
		JobsTotal:     len(workingSet),
		JobsCompleted: completed,
		LegacyRows:    totalLegacyRows,
		PartitionRows: totalPartitionRows,
		Checksums:     checksums,
		Tickers:       workingSet,
		Persisted:     !partialRun,
		PartialRun:    partialRun,
	}
	if partialRun {
		return result, nil
	}

	finalTimestamp := c.now()
	if err := plan.UpdateInterval(venueID, interval, func(iv *Interval) {
		iv.Status = "complete"
		iv.Verification = IntervalVerification{Method: "row_counts+checksum", VerifiedAt: finalTimestamp}
	}, finalTimestamp); err != nil {
		return Result{}, err
	}
	if err := plan.Write("", finalTimestamp, c.createdBy); err != nil {
		return Result{}, err
	}

	venue, _ = plan.GetVenue(venueID)
	if c.reg != nil {
		c.backfillTickerStorage(venue, interval, finalTimestamp)
	}

	if AllIntervalsVerified(venue) {
		if c.ActivatePartitionedStorage != nil {
			if err := c.ActivatePartitionedStorage(venue.Market, venue.Source); err != nil {
				return Result{}, fmt.Errorf("migration: activate partitioned storage: %w", err)
			}
			result.StorageActivated = true
		}
	}
	return result, nil
}

// backfillTickerStorage updates the ticker registry's per-interval storage
// metadata for every ticker this pass migrated, so mixed-mode routing
// (legacy vs. partitioned) has somewhere to look (§4.10 step 6).
func (c *Coordinator) backfillTickerStorage(venue Venue, interval, verifiedAt string) {
	loc := &registry.StorageLoc{Mode: "partitioned", Venue: venue.ID, Market: strings.ToLower(venue.Market), Source: strings.ToLower(venue.Source), Dataset: DatasetName, VerifiedAt: verifiedAt}
	for ticker := range c.reg.Entries() {
		if last, ok := c.reg.LastDataDate(ticker, interval); ok {
			c.reg.UpdateTickerInterval(ticker, interval, true, last, loc)
		}
	}
}

func (c *Coordinator) deleteLegacyFile(legacyPath, ticker string) {
	file := filepath.Join(c.root, legacyPath, ticker+".parquet")
	if err := os.Remove(file); err != nil {
		return
	}
	dir := filepath.Dir(file)
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) == 0 {
		os.Remove(dir)
	}
}

