package bundle

import (
	"fmt"
	"math"
)

// Strategy selects how the optimizer searches for boundaries.
type Strategy int

const (
	// StrategyTwoPhase runs a decrease-only descent followed by an
	// increase-only descent. The phases never interleave, so the search can
	// stop at a point that a later move in the other direction would improve.
	StrategyTwoPhase Strategy = iota

	// StrategyInterleaved considers decrements and increments in every step
	// and stops at a joint fixed point.
	StrategyInterleaved

	// StrategyExhaustive enumerates every boundary vector. Groups larger than
	// the optimizer's ExhaustiveLimit fall back to StrategyTwoPhase.
	StrategyExhaustive
)

const (
	// DefaultMaxIter caps the applied moves per descent phase.
	DefaultMaxIter = 20

	// DefaultExhaustiveLimit is the largest group searched exhaustively.
	DefaultExhaustiveLimit = 64
)

func (s Strategy) String() string {
	switch s {
	case StrategyTwoPhase:
		return "two-phase"
	case StrategyInterleaved:
		return "interleaved"
	case StrategyExhaustive:
		return "exhaustive"
	default:
		return "unknown"
	}
}

// ParseStrategy parses a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "two-phase":
		return StrategyTwoPhase, nil
	case "interleaved":
		return StrategyInterleaved, nil
	case "exhaustive":
		return StrategyExhaustive, nil
	default:
		return StrategyTwoPhase, fmt.Errorf("unknown search strategy %q", s)
	}
}

// move shifts boundary k by delta.
type move struct {
	k     int
	delta int
}

var (
	decrements = []move{{0, -1}, {1, -1}, {2, -1}}
	increments = []move{{0, 1}, {1, 1}, {2, 1}}
	allMoves   = []move{{0, -1}, {1, -1}, {2, -1}, {0, 1}, {1, 1}, {2, 1}}
)

// Optimizer improves a boundary vector against TotalDelay.
// The zero value uses the defaults.
type Optimizer struct {
	// MaxIter caps the moves applied per phase (0 = DefaultMaxIter).
	MaxIter int

	// Strategy selects the search.
	Strategy Strategy

	// ExhaustiveLimit bounds StrategyExhaustive (0 = DefaultExhaustiveLimit).
	ExhaustiveLimit int
}

func (o *Optimizer) maxIter() int {
	if o.MaxIter <= 0 {
		return DefaultMaxIter
	}
	return o.MaxIter
}

func (o *Optimizer) exhaustiveLimit() int {
	if o.ExhaustiveLimit <= 0 {
		return DefaultExhaustiveLimit
	}
	return o.ExhaustiveLimit
}

// Optimize returns boundaries with a total delay no greater than x's.
// x must be valid for len(ts). The result is always valid.
func (o *Optimizer) Optimize(ts []int64, x Boundaries) Boundaries {
	switch o.Strategy {
	case StrategyExhaustive:
		if len(ts) <= o.exhaustiveLimit() {
			return Exhaustive(ts)
		}
	case StrategyInterleaved:
		return descend(ts, x, allMoves, 2*o.maxIter())
	}

	x = descend(ts, x, decrements, o.maxIter())
	return descend(ts, x, increments, o.maxIter())
}

// descend applies steepest-descent unit moves from the given set until no
// move strictly reduces the delay or limit moves have been applied. Ties go
// to the first move in the set.
func descend(ts []int64, x Boundaries, moves []move, limit int) Boundaries {
	n := len(ts)
	for step := 0; step < limit; step++ {
		current := TotalDelay(ts, x)

		var best move
		var bestGain int64
		for _, m := range moves {
			if !x.canMove(m.k, m.delta, n) {
				continue
			}
			candidate := x
			candidate[m.k] += m.delta
			if gain := current - TotalDelay(ts, candidate); gain > bestGain {
				best, bestGain = m, gain
			}
		}
		if bestGain <= 0 {
			break
		}
		x[best.k] += best.delta
	}
	return x
}

// Exhaustive returns the boundary vector with the lowest total delay over
// all x0 <= x1 <= x2 <= N-1, preferring the lexicographically smallest on
// ties. It is O(N^4) and meant for small groups and as a test oracle.
func Exhaustive(ts []int64) Boundaries {
	n := len(ts)
	var best Boundaries
	bestDelay := int64(math.MaxInt64)
	for x0 := 0; x0 < n; x0++ {
		for x1 := x0; x1 < n; x1++ {
			for x2 := x1; x2 < n; x2++ {
				x := Boundaries{x0, x1, x2}
				if d := TotalDelay(ts, x); d < bestDelay {
					best, bestDelay = x, d
				}
			}
		}
	}
	return best
}
