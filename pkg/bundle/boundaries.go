package bundle

import "fmt"

// MaxBatches is the number of notifications a group may produce at most.
const MaxBatches = 4

// Boundaries holds the three movable partition ends x0 <= x1 <= x2 of a
// group of N events. The fourth end is always N-1.
//
// Partition 0 covers indices [0, x0], partition 1 (x0, x1], partition 2
// (x1, x2] and partition 3 (x2, N-1]. A partition is empty when its end
// equals the previous one.
type Boundaries [3]int

// InitialBoundaries returns index quartiles [N/4, N/2, 3N/4] (floored),
// the seed of the local search.
func InitialBoundaries(n int) Boundaries {
	if n <= 0 {
		return Boundaries{}
	}
	x := Boundaries{n / 4, n / 2, (3 * n) / 4}
	for k := range x {
		if x[k] > n-1 {
			x[k] = n - 1
		}
	}
	return x
}

// Ends returns the closing index of each of the four partitions.
func (x Boundaries) Ends(n int) [MaxBatches]int {
	return [MaxBatches]int{x[0], x[1], x[2], n - 1}
}

// Valid reports whether x is non-decreasing and within [0, n-1].
func (x Boundaries) Valid(n int) bool {
	if n <= 0 || x[0] < 0 || x[2] > n-1 {
		return false
	}
	return x[0] <= x[1] && x[1] <= x[2]
}

// Partition returns the partition index (0-3) containing event i.
func (x Boundaries) Partition(i, n int) int {
	for p, end := range x.Ends(n) {
		if i <= end {
			return p
		}
	}
	return MaxBatches - 1
}

// canMove reports whether x[k] can shift by delta (+1 or -1) without
// leaving [0, n-1] or crossing a neighbouring boundary.
func (x Boundaries) canMove(k, delta, n int) bool {
	next := x[k] + delta
	if delta < 0 {
		lower := 0
		if k > 0 {
			lower = x[k-1]
		}
		return next >= lower
	}
	upper := n - 1
	if k < len(x)-1 {
		upper = x[k+1]
	}
	return next <= upper
}

func (x Boundaries) String() string {
	return fmt.Sprintf("[%d %d %d]", x[0], x[1], x[2])
}
