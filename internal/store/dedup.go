package store

import (
	"sort"

	"marketvault/internal/domain"
)

// mergeBars implements the Save (OHLCV) algorithm's merge/dedup/sort steps
// (SPEC_FULL.md §4.4 steps 2-3): concatenate existing and incoming bars,
// stable-sort by (stock, date, sequence), drop duplicates on (stock, date)
// keeping the last (highest-sequence) row, then re-sort by (stock, date).
func mergeBars(existing, incoming []domain.Bar) []domain.Bar {
	combined := make([]domain.Bar, 0, len(existing)+len(incoming))
	combined = append(combined, existing...)
	combined = append(combined, incoming...)

	sort.SliceStable(combined, func(i, j int) bool {
		a, b := combined[i], combined[j]
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return sequenceValue(a.Sequence) < sequenceValue(b.Sequence)
	})

	deduped := make([]domain.Bar, 0, len(combined))
	seen := map[string]int{} // "symbol|unixnano" -> index in deduped
	for _, bar := range combined {
		key := dedupKey(bar)
		if idx, ok := seen[key]; ok {
			deduped[idx] = bar // later entry (higher sequence, due to stable sort) wins
			continue
		}
		seen[key] = len(deduped)
		deduped = append(deduped, bar)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		a, b := deduped[i], deduped[j]
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.Timestamp.Before(b.Timestamp)
	})
	return deduped
}

func dedupKey(b domain.Bar) string {
	return b.Symbol + "|" + b.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000")
}

func sequenceValue(seq *int64) int64 {
	if seq == nil {
		return -1 << 62
	}
	return *seq
}
