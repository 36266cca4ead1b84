package contract

import (
	"testing"
	"time"
)

// FuzzParseSince fuzzes the cutoff parser with arbitrary user input.
func FuzzParseSince(f *testing.F) {
	seeds := []string{"", "15 days ago", "360h", "2025-10-20T00:00:00Z", "1760918400000", "-5", "9999999999999999999"}
	for _, seed := range seeds {
		f.Add(seed)
	}

	now := time.Date(2025, time.November, 3, 10, 0, 0, 0, time.UTC)
	f.Fuzz(func(_ *testing.T, s string) {
		_, _ = ParseSince(s, now)
	})
}
