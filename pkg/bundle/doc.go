// Package bundle groups one receiver's daily friend activity into at most
// four notifications.
//
// A group of N events sorted by time is cut into four contiguous
// partitions by three movable boundaries x0 <= x1 <= x2 and a fixed final
// boundary at N-1. Every event is reported by the notification sent at the
// event closing its partition, so the cost of a cut is the total delay
// between each event and that closing event (TotalDelay).
//
// Boundaries are chosen by a bounded local search (Optimizer) seeded with
// index quartiles (InitialBoundaries). Replay then walks the group once and
// turns the final boundaries into batches carrying the number of distinct
// friends, the first occurrence and a message (ComposeMessage).
//
// Groups of four events or fewer skip the search: every event becomes its
// own notification.
//
// Bundler is the entry point. It holds no mutable state and may be shared
// by any number of goroutines, each bundling a different group.
package bundle
