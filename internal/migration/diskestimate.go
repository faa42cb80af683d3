package migration

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// DiskEstimate is the result of EstimateDiskRequirements (§4.10 "Disk
// estimator").
type DiskEstimate struct {
	PerIntervalLegacyBytes  map[string]int64
	TotalLegacyBytes        int64
	OverheadBytes           int64
	RequiredPartitionBytes  int64
	AvailablePartitionBytes int64
	PartitionRoot           string
	CanProceed              bool
	Limitations             []string
	SuggestDeleteLegacy     bool
}

// overheadFraction mirrors the original's 5% size inflation estimate for
// partitioned storage relative to a single legacy file.
const overheadFraction = 0.05

// EstimateDiskRequirements sums legacy bytes for each interval, estimates
// the partitioned size with a 5% overhead, and compares it against free
// space on the partition root (§4.10).
func (c *Coordinator) EstimateDiskRequirements(venueID string, intervals []string, deleteLegacy bool) (DiskEstimate, error) {
	plan, err := LoadPlan(c.planPath())
	if err != nil {
		return DiskEstimate{}, err
	}
	venue, err := plan.GetVenue(venueID)
	if err != nil {
		return DiskEstimate{}, err
	}

	perInterval := map[string]int64{}
	var totalLegacyBytes int64
	for _, interval := range intervals {
		state, ok := venue.Intervals[interval]
		if !ok {
			return DiskEstimate{}, fmt.Errorf("migration: interval %q not configured for venue %q", interval, venueID)
		}
		legacyAbs := filepath.Join(c.root, state.LegacyPath)
		if _, err := os.Stat(legacyAbs); err != nil {
			return DiskEstimate{}, fmt.Errorf("migration: legacy path does not exist: %s", legacyAbs)
		}
		size, err := directorySize(legacyAbs)
		if err != nil {
			return DiskEstimate{}, err
		}
		perInterval[interval] = size
		totalLegacyBytes += size
	}

	partitionRoot := filepath.Join(c.root, "data")
	usagePath, err := existingPathFor(partitionRoot)
	if err != nil {
		return DiskEstimate{}, err
	}
	free, err := freeBytes(usagePath)
	if err != nil {
		return DiskEstimate{}, err
	}

	overhead := int64(float64(totalLegacyBytes) * overheadFraction)
	required := totalLegacyBytes + overhead
	canProceed := free >= required

	var limitations []string
	suggestDelete := false
	if !canProceed {
		needed := required - free
		limitations = append(limitations, fmt.Sprintf("partition root lacks %d additional bytes of free space", needed))

		potentialWithDelete := free
		if !deleteLegacy {
			potentialWithDelete += totalLegacyBytes
		}
		if potentialWithDelete >= required {
			limitations = append(limitations, "re-run with --delete-legacy to reclaim space from legacy parquet files before continuing")
			suggestDelete = true
		}
	}

	return DiskEstimate{
		PerIntervalLegacyBytes:  perInterval,
		TotalLegacyBytes:        totalLegacyBytes,
		OverheadBytes:           overhead,
		RequiredPartitionBytes:  required,
		AvailablePartitionBytes: free,
		PartitionRoot:           usagePath,
		CanProceed:              canProceed,
		Limitations:             limitations,
		SuggestDeleteLegacy:     suggestDelete,
	}, nil
}

func directorySize(root string) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("migration: walk %s: %w", root, err)
	}
	return total, nil
}

// existingPathFor walks up from path to the nearest existing ancestor, for
// querying disk usage of a directory tree that may not exist yet.
func existingPathFor(path string) (string, error) {
	current := path
	for {
		if _, err := os.Stat(current); err == nil {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("migration: unable to determine disk usage for path %s", path)
		}
		current = parent
	}
}

func freeBytes(path string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("migration: statfs %s: %w", path, err)
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
