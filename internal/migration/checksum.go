package migration

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sort"

	"marketvault/internal/domain"
)

// FrameChecksum hashes bars the way the original's
// pd.util.hash_pandas_object(sort_by(stock,date)) + sha256 pass did, reduced
// to a deterministic byte encoding: sort by (stock, date), then per row
// write stock, date, open, high, low, close, volume, sequence in that fixed
// order. Strings are length-prefixed UTF-8; floats are 8-byte little-endian
// IEEE-754; nullable ints carry a presence byte (0x00 non-null, 0x01 null)
// followed by 8 little-endian bytes — the value itself when present, or the
// 0xFF sentinel pattern when null.
func FrameChecksum(bars []domain.Bar) [32]byte {
	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Symbol != sorted[j].Symbol {
			return sorted[i].Symbol < sorted[j].Symbol
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var buf bytes.Buffer
	for _, b := range sorted {
		writeString(&buf, b.Symbol)
		writeInt64(&buf, b.Timestamp.UnixMilli())
		writeFloat64(&buf, b.Open)
		writeFloat64(&buf, b.High)
		writeFloat64(&buf, b.Low)
		writeFloat64(&buf, b.Close)
		writeNullableInt64(&buf, b.Volume)
		writeNullableInt64(&buf, b.Sequence)
	}
	return sha256.Sum256(buf.Bytes())
}

func writeString(buf *bytes.Buffer, s string) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func writeFloat64(buf *bytes.Buffer, v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	buf.Write(b[:])
}

var nullSentinel = [8]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

func writeNullableInt64(buf *bytes.Buffer, v *int64) {
	if v == nil {
		buf.WriteByte(0x01)
		buf.Write(nullSentinel[:])
		return
	}
	buf.WriteByte(0x00)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(*v))
	buf.Write(b[:])
}
