package store

import (
	"context"
	"fmt"
	"time"

	"marketvault/internal/domain"
	"marketvault/internal/parquetio"
	"marketvault/internal/pathbuilder"
)

// LegacyBackend implements BarStore against the pre-migration
// `{root}/data/legacy/stocks_{interval}/{ticker}.parquet` layout (§4.2,
// §6.3). It is the "Legacy" variant of the §9 sum type, used by the
// Migration Coordinator to read the files a migration moves out of.
//
// The Python original's common/storage_backend.py writes legacy files
// directly with no temp-rename step, unlike the partitioned backend. This
// implementation closes that asymmetry deliberately (documented in
// DESIGN.md): LegacyBackend.Save uses the same atomic write protocol as
// PartitionedBackend, since nothing requires the asymmetry and an atomic
// legacy writer is strictly safer for the one caller (the
// migration coordinator never deletes a legacy file until after a
// verified copy exists, so legacy writes are rare and correctness-critical
// rather than performance-critical).
type LegacyBackend struct {
	root    string
	builder *pathbuilder.Builder
	opts    parquetio.WriteOptions
}

// NewLegacyBackend constructs a LegacyBackend rooted at root.
func NewLegacyBackend(root string, opts parquetio.WriteOptions) *LegacyBackend {
	return &LegacyBackend{root: root, builder: pathbuilder.NewBuilder(), opts: opts}
}

func (l *LegacyBackend) path(interval, ticker string) string {
	return l.builder.Build(pathbuilder.Request{Root: l.root, Interval: interval, Ticker: ticker}, time.Time{})
}

// Read safe-reads the single legacy file for req.Ticker/req.Interval. A
// missing file or any recovery failure is not a hard error; it returns an
// empty slice, matching the Python original's read() which "catches
// ParquetRecoveryError, logs, and returns empty" rather than surfacing a
// hard failure the way the partitioned backend's Read does.
func (l *LegacyBackend) Read(_ context.Context, req Request) ([]domain.Bar, error) {
	path := l.path(req.Interval, req.Ticker)
	rows, err := parquetio.SafeReadBarFile(path)
	if err != nil {
		return nil, nil
	}
	return rowsToBars(rows), nil
}

// Save merges newBars into the legacy file for req and writes it back
// atomically.
func (l *LegacyBackend) Save(ctx context.Context, req Request, newBars []domain.Bar) ([]domain.Bar, error) {
	existing, err := l.Read(ctx, req)
	if err != nil {
		return nil, err
	}
	combined := mergeBars(existing, newBars)
	if err := assertSingleTicker(combined, req.Ticker); err != nil {
		return nil, err
	}
	path := l.path(req.Interval, req.Ticker)
	if err := parquetio.WriteAtomic(path, barsToRows(combined), l.opts); err != nil {
		return nil, fmt.Errorf("store: legacy write %s: %w", path, err)
	}
	return combined, nil
}

// LegacyPath exposes the path a given request would read/write, used by
// the Migration Coordinator to enumerate legacy ticker files directly.
func (l *LegacyBackend) LegacyPath(interval, ticker string) string {
	return l.path(interval, ticker)
}
