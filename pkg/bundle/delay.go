package bundle

// TotalDelay returns the summed delay, in timestamp units, between every
// event and the closing event of its partition:
//
//	sum(t[end(i)] - t[i]) for i in [0, N)
//
// ts must be sorted ascending and x valid for len(ts); both hold inside
// the optimizer. It runs in O(N) and does not allocate.
func TotalDelay(ts []int64, x Boundaries) int64 {
	n := len(ts)
	if n == 0 {
		return 0
	}

	var total int64
	start := 0
	for _, end := range x.Ends(n) {
		closing := ts[end]
		for i := start; i < end; i++ {
			total += closing - ts[i]
		}
		if end+1 > start {
			start = end + 1
		}
	}
	return total
}
