package parquetio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
)

// WriteOptions controls the durability/throughput knobs named in §4.4 and
// §9 ("fsync is skipped on --no-fsync; --fast enables that plus
// overwrite-existing plus row_group_size=65536"). These are never
// correctness branches — only how hard the writer tries to make the bytes
// durable before the atomic rename.
type WriteOptions struct {
	Fsync        bool
	RowGroupSize int // 0 lets the writer choose
}

// DefaultWriteOptions matches the Python original's defaults: fsync on, no
// explicit row-group size.
func DefaultWriteOptions() WriteOptions {
	return WriteOptions{Fsync: true}
}

// FastWriteOptions matches the --fast preset: no fsync, row_group_size
// 65536.
func FastWriteOptions() WriteOptions {
	return WriteOptions{Fsync: false, RowGroupSize: 65536}
}

// WriteAtomic writes rows to path via a sibling temp file, optionally
// fsyncs it, and atomically renames it into place (§4.4 step 5, §5 "temp
// files live in the same directory as their final target"). On any error
// the temp file is removed before the error is returned.
func WriteAtomic[T any](path string, rows []T, opts WriteOptions) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("parquetio: mkdir %s: %w", dir, err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf("data.parquet.tmp-%d-%s", os.Getpid(), uuid.NewString()))

	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("parquetio: create temp file: %w", err)
	}

	writerOpts := []parquet.WriterOption{parquet.SchemaOf(new(T))}
	if opts.RowGroupSize > 0 {
		writerOpts = append(writerOpts, parquet.MaxRowsPerRowGroup(int64(opts.RowGroupSize)))
	}

	w := parquet.NewGenericWriter[T](f, writerOpts...)
	if _, werr := w.Write(rows); werr != nil {
		_ = w.Close()
		_ = f.Close()
		return fmt.Errorf("parquetio: write rows: %w", werr)
	}
	if cerr := w.Close(); cerr != nil {
		_ = f.Close()
		return fmt.Errorf("parquetio: close writer: %w", cerr)
	}

	if opts.Fsync {
		if serr := f.Sync(); serr != nil {
			_ = f.Close()
			return fmt.Errorf("parquetio: fsync temp file: %w", serr)
		}
	}
	if cerr := f.Close(); cerr != nil {
		return fmt.Errorf("parquetio: close temp file: %w", cerr)
	}

	if rerr := os.Rename(tmpPath, path); rerr != nil {
		return fmt.Errorf("parquetio: rename %s -> %s: %w", tmpPath, path, rerr)
	}
	return nil
}

// CleanupTmpFiles implements the Run Lock's orphan recovery (§4.11): for
// every sibling data.parquet.tmp-* under dir, if the final data.parquet
// already exists the tmp is deleted; otherwise the tmp is itself renamed
// into place, since it is a half-finished write whose content is still
// authoritative (it was never truncated mid-write by a concurrent writer —
// the run lock, §4.11, guarantees at most one writer).
func CleanupTmpFiles(dataRoot string) error {
	return filepath.Walk(dataRoot, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if !isTmpFile(base) {
			return nil
		}
		finalPath := filepath.Join(filepath.Dir(path), "data.parquet")
		if _, statErr := os.Stat(finalPath); statErr == nil {
			return os.Remove(path)
		}
		return os.Rename(path, finalPath)
	})
}

func isTmpFile(name string) bool {
	const prefix = "data.parquet.tmp-"
	return len(name) > len(prefix) && name[:len(prefix)] == prefix
}
