package bundle

import (
	"github.com/logflow/bundler/internal/model"
	"github.com/logflow/bundler/internal/pool"
	errs "github.com/logflow/bundler/pkg/errors"
)

// SmallGroupLimit is the largest group sent as one notification per event.
const SmallGroupLimit = MaxBatches

// Bundler turns one sorted group into notification rows.
type Bundler struct {
	optimizer   Optimizer
	checkSorted bool
}

// Option configures a Bundler.
type Option func(*Bundler)

// WithMaxIter caps the moves applied per search phase.
func WithMaxIter(n int) Option {
	return func(b *Bundler) {
		b.optimizer.MaxIter = n
	}
}

// WithStrategy selects the boundary search strategy.
func WithStrategy(s Strategy) Option {
	return func(b *Bundler) {
		b.optimizer.Strategy = s
	}
}

// WithExhaustiveLimit bounds the group size searched exhaustively.
func WithExhaustiveLimit(n int) Option {
	return func(b *Bundler) {
		b.optimizer.ExhaustiveLimit = n
	}
}

// WithSortCheck toggles the ascending-timestamp check (on by default).
func WithSortCheck(enabled bool) Option {
	return func(b *Bundler) {
		b.checkSorted = enabled
	}
}

// New creates a Bundler. Without options it runs the two-phase search with
// DefaultMaxIter and rejects unsorted groups.
func New(opts ...Option) *Bundler {
	b := &Bundler{
		optimizer:   Optimizer{MaxIter: DefaultMaxIter, Strategy: StrategyTwoPhase},
		checkSorted: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Optimizer returns a copy of the bundler's optimizer settings.
func (b *Bundler) Optimizer() Optimizer {
	return b.optimizer
}

// Bundle produces the notification rows for one group, in send order.
// Errors carry the group key as context.
func (b *Bundler) Bundle(key model.GroupKey, events []model.Event) ([]model.Notification, error) {
	batches, err := b.Batches(events)
	if err != nil {
		return nil, withKey(err, key)
	}

	rows := make([]model.Notification, len(batches))
	for i, batch := range batches {
		rows[i] = model.Notification{
			NotificationSent:   batch.SendAt,
			TimestampFirstTour: batch.FirstOccurrence,
			Tours:              batch.DistinctActors,
			ReceiverID:         key.UserID,
			Message:            batch.Message,
		}
	}
	return rows, nil
}

// Batches dispatches a group to the per-event path or the
// search-and-replay path.
func (b *Bundler) Batches(events []model.Event) ([]Batch, error) {
	n := len(events)
	if n == 0 {
		return nil, emptyGroup()
	}

	buf := pool.GetTimestamps(n)
	defer pool.PutTimestamps(buf)
	ts := buf.Data
	for i := range events {
		ts[i] = events[i].Timestamp
		if b.checkSorted && i > 0 && ts[i] < ts[i-1] {
			return nil, unsortedGroup(i, ts[i-1], ts[i])
		}
	}

	if n <= SmallGroupLimit {
		return singles(events)
	}

	return Replay(events, b.Plan(ts))
}

// Plan returns the optimised boundaries for a group's timestamps.
func (b *Bundler) Plan(ts []int64) Boundaries {
	return b.optimizer.Optimize(ts, InitialBoundaries(len(ts)))
}

func withKey(err error, key model.GroupKey) error {
	if bErr, ok := err.(*errs.BundlerError); ok {
		return bErr.WithContext("user", key.UserID).WithContext("day", key.Day)
	}
	return err
}
