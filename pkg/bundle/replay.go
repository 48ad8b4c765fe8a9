package bundle

import (
	"github.com/logflow/bundler/internal/model"
)

// Batch is one notification produced for a partition of a group.
type Batch struct {
	// SendAt is the timestamp of the event closing the partition.
	SendAt int64

	// FirstOccurrence is the timestamp of the partition's first event.
	FirstOccurrence int64

	// DistinctActors counts unique friend IDs within the partition.
	DistinctActors int

	// FirstActorName is the name on the partition's first event.
	FirstActorName string

	// Message is the composed notification text.
	Message string
}

// Replay walks the group once and emits one batch per non-empty partition
// of x, in order.
//
// Distinct friends are counted per partition: the membership set is
// cleared at every boundary, so a friend seen in an earlier batch counts
// again in a later one.
func Replay(events []model.Event, x Boundaries) ([]Batch, error) {
	n := len(events)
	if n == 0 {
		return nil, emptyGroup()
	}
	if !x.Valid(n) {
		return nil, invalidBoundaries(x, n)
	}

	batches := make([]Batch, 0, MaxBatches)
	seen := make(map[string]struct{})

	start := 0
	for _, end := range x.Ends(n) {
		if end < start {
			continue
		}

		clear(seen)
		distinct := 0
		for i := start; i <= end; i++ {
			if _, ok := seen[events[i].FriendID]; !ok {
				seen[events[i].FriendID] = struct{}{}
				distinct++
			}
		}

		b, err := newBatch(events[start], events[end].Timestamp, distinct)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
		start = end + 1
	}

	return batches, nil
}

// singles emits one batch per event.
func singles(events []model.Event) ([]Batch, error) {
	batches := make([]Batch, 0, len(events))
	for _, e := range events {
		b, err := newBatch(e, e.Timestamp, 1)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}

func newBatch(first model.Event, sendAt int64, distinct int) (Batch, error) {
	msg, err := ComposeMessage(distinct, first.FriendName)
	if err != nil {
		return Batch{}, err
	}
	return Batch{
		SendAt:          sendAt,
		FirstOccurrence: first.Timestamp,
		DistinctActors:  distinct,
		FirstActorName:  first.FriendName,
		Message:         msg,
	}, nil
}
