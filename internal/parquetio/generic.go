package parquetio

import "github.com/parquet-go/parquet-go"

// ReadFile reads an entire Parquet file into a slice of T. It is a thin
// wrapper over parquet.ReadFile used by stores whose rows carry no
// recovery semantics (posttrade trades, which always materialize their
// full fixed schema per §9 "Schema-drift handling" and so never need the
// column-promotion recovery SafeReadBarFile implements for legacy OHLCV
// files).
func ReadFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}
