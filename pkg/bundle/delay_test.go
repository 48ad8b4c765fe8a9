package bundle

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// naiveDelay scores x by assigning each index to its partition explicitly.
func naiveDelay(ts []int64, x Boundaries) int64 {
	n := len(ts)
	ends := x.Ends(n)
	var total int64
	for i := range ts {
		total += ts[ends[x.Partition(i, n)]] - ts[i]
	}
	return total
}

func sortedTimestamps(r *rand.Rand, n int) []int64 {
	ts := make([]int64, n)
	for i := range ts {
		ts[i] = r.Int63n(86_400) * 1_000_000_000
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
	return ts
}

func TestTotalDelay_Scenario(t *testing.T) {
	ts := []int64{0, 1, 2, 3, 4, 10}
	// (10-3) + (10-4)
	assert.Equal(t, int64(13), TotalDelay(ts, Boundaries{0, 1, 2}))
}

func TestTotalDelay(t *testing.T) {
	tests := []struct {
		name     string
		ts       []int64
		x        Boundaries
		expected int64
	}{
		{"single event", []int64{5}, Boundaries{0, 0, 0}, 0},
		{"everything after the first event", []int64{0, 1, 2, 3}, Boundaries{0, 0, 0}, 2 + 1},
		{"everything in first partition", []int64{0, 1, 2, 3}, Boundaries{3, 3, 3}, 3 + 2 + 1},
		{"one event per partition", []int64{0, 7, 9, 20}, Boundaries{0, 1, 2}, 0},
		{"quartiles", []int64{0, 1, 2, 3, 4, 5, 6, 7}, Boundaries{2, 4, 6}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TotalDelay(tt.ts, tt.x))
		})
	}
}

func TestTotalDelay_EmptyGroup(t *testing.T) {
	assert.Equal(t, int64(0), TotalDelay(nil, Boundaries{}))
}

func TestTotalDelay_MatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for n := 1; n <= 8; n++ {
		ts := sortedTimestamps(r, n)
		for x0 := 0; x0 < n; x0++ {
			for x1 := x0; x1 < n; x1++ {
				for x2 := x1; x2 < n; x2++ {
					x := Boundaries{x0, x1, x2}
					require.Equal(t, naiveDelay(ts, x), TotalDelay(ts, x), "n=%d x=%v", n, x)
				}
			}
		}
	}
}

func TestTotalDelay_NanosecondMagnitude(t *testing.T) {
	// A day of events at real epoch nanoseconds must not overflow.
	base := int64(1_501_545_600_000_000_000)
	ts := make([]int64, 1000)
	for i := range ts {
		ts[i] = base + int64(i)*86_000_000_000
	}
	d := TotalDelay(ts, Boundaries{0, 0, 0})
	assert.Greater(t, d, int64(0))
}

func TestTotalDelay_NoAllocations(t *testing.T) {
	ts := sortedTimestamps(rand.New(rand.NewSource(1)), 64)
	x := InitialBoundaries(len(ts))
	allocs := testing.AllocsPerRun(100, func() {
		_ = TotalDelay(ts, x)
	})
	assert.Zero(t, allocs)
}

func BenchmarkTotalDelay(b *testing.B) {
	ts := sortedTimestamps(rand.New(rand.NewSource(1)), 500)
	x := InitialBoundaries(len(ts))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = TotalDelay(ts, x)
	}
}
