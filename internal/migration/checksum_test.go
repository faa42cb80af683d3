package migration

import (
	"testing"
	"time"

	"marketvault/internal/domain"
)

func TestFrameChecksumOrderIndependent(t *testing.T) {
	v1 := int64(100)
	v2 := int64(200)
	a := domain.Bar{Symbol: "AAPL", Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: &v1}
	b := domain.Bar{Symbol: "AAPL", Timestamp: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), Open: 2, High: 3, Low: 1.5, Close: 2.5, Volume: &v2}

	sum1 := FrameChecksum([]domain.Bar{a, b})
	sum2 := FrameChecksum([]domain.Bar{b, a})
	if sum1 != sum2 {
		t.Error("expected checksum to be independent of input row order")
	}
}

func TestFrameChecksumDiffersOnNullVsZero(t *testing.T) {
	zero := int64(0)
	withZero := domain.Bar{Symbol: "AAPL", Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Volume: &zero}
	withNull := domain.Bar{Symbol: "AAPL", Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Volume: nil}

	if FrameChecksum([]domain.Bar{withZero}) == FrameChecksum([]domain.Bar{withNull}) {
		t.Error("expected a null volume to hash differently from an explicit zero")
	}
}

func TestFrameChecksumStableAcrossSymbols(t *testing.T) {
	a := domain.Bar{Symbol: "AAPL", Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	msft := domain.Bar{Symbol: "MSFT", Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	if FrameChecksum([]domain.Bar{a}) == FrameChecksum([]domain.Bar{msft}) {
		t.Error("expected different symbols to hash differently")
	}
}
