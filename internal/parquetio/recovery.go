package parquetio

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
)

// Outcome classifies the result of a safe read, matching the taxonomy in
// SPEC_FULL.md §4.3 exactly.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeCorruptDeleted
	OutcomePreservedEmpty
	OutcomePreservedSchemaMismatch
	OutcomePreservedNormalizeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeCorruptDeleted:
		return "corrupt_deleted"
	case OutcomePreservedEmpty:
		return "preserved_empty"
	case OutcomePreservedSchemaMismatch:
		return "preserved_schema_mismatch"
	case OutcomePreservedNormalizeFailed:
		return "preserved_normalize_failed"
	default:
		return "unknown"
	}
}

// RecoveryError reports a non-OK outcome from SafeReadBarFile. The
// underlying file is still present on disk unless Outcome ==
// OutcomeCorruptDeleted.
type RecoveryError struct {
	Outcome Outcome
	Path    string
	Reason  string
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("parquetio: %s reading %s: %s", e.Outcome, e.Path, e.Reason)
}

var requiredBarColumns = []string{"stock", "date", "open", "high", "low", "close", "volume", "sequence"}

// SafeReadBarFile reads an OHLCV-shaped Parquet file with the recovery
// rules of §4.3: an unreadable file is deleted and reported as
// OutcomeCorruptDeleted; an empty result, a missing required column, or a
// normalization failure all preserve the file and report the matching
// Preserved* outcome; a successful read additionally attempts to recover a
// missing `sequence` column from a legacy `index` column (§4.3 "Recovery
// strategies").
func SafeReadBarFile(path string) ([]BarRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &RecoveryError{Outcome: OutcomeCorruptDeleted, Path: path, Reason: err.Error()}
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, &RecoveryError{Outcome: OutcomeCorruptDeleted, Path: path, Reason: err.Error()}
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, &RecoveryError{Outcome: OutcomeCorruptDeleted, Path: path, Reason: fmt.Sprintf("not a valid parquet file: %v", err)}
	}

	schema := pf.Schema()
	for _, col := range requiredBarColumns {
		if findField(schema, col) == nil {
			if idx := findField(schema, "index"); col == "sequence" && idx != nil && !looksTimestampLike(idx) {
				continue // promoted from the legacy index column below
			}
			_ = f.Close()
			return nil, &RecoveryError{Outcome: OutcomePreservedSchemaMismatch, Path: path, Reason: fmt.Sprintf("missing required column %q", col)}
		}
	}
	indexField := findField(schema, "index")
	_ = f.Close()

	rows, err := parquet.ReadFile[BarRow](path)
	if err != nil {
		return nil, &RecoveryError{Outcome: OutcomePreservedNormalizeFailed, Path: path, Reason: err.Error()}
	}
	if len(rows) == 0 {
		return nil, &RecoveryError{Outcome: OutcomePreservedEmpty, Path: path, Reason: "zero rows"}
	}

	indexIsDatetimeLike := indexField != nil && looksTimestampLike(indexField)
	for i := range rows {
		if rows[i].Sequence != nil || rows[i].Index == nil {
			continue
		}
		if indexIsDatetimeLike {
			continue
		}
		if looksLikeEpochValue(*rows[i].Index) {
			continue
		}
		seq := *rows[i].Index
		rows[i].Sequence = &seq
	}
	return rows, nil
}

func findField(schema *parquet.Schema, name string) parquet.Field {
	for _, f := range schema.Fields() {
		if f.Name() == name {
			return f
		}
	}
	return nil
}

// looksTimestampLike reports whether a field's physical/logical type
// description indicates a datetime column, used to reject promoting a
// datetime "index" column into the integer "sequence" tiebreaker (§4.3).
func looksTimestampLike(f parquet.Field) bool {
	return strings.Contains(strings.ToLower(f.Type().String()), "timestamp") ||
		strings.Contains(strings.ToLower(f.Type().String()), "date")
}

// looksLikeEpochValue applies the round-trip check from §4.3: treat v as
// nanoseconds since the Unix epoch and reject it as a disguised timestamp
// if the resulting year is plausibly a calendar year (>= 2000).
func looksLikeEpochValue(v int64) bool {
	if v <= 0 {
		return false
	}
	year := time.Unix(0, v).UTC().Year()
	return year >= 2000 && year <= 2100
}
