// Package grouping splits an event stream into per-(user, day) groups.
package grouping

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/logflow/bundler/internal/model"
)

// Grouper accumulates events into groups keyed by receiver and calendar day.
type Grouper struct {
	loc    *time.Location
	groups map[model.GroupKey][]model.Event
	events int64
}

// New creates a Grouper that assigns days in loc (UTC when nil).
func New(loc *time.Location) *Grouper {
	if loc == nil {
		loc = time.UTC
	}
	return &Grouper{
		loc:    loc,
		groups: make(map[model.GroupKey][]model.Event),
	}
}

// Key returns the group key of e.
func (g *Grouper) Key(e *model.Event) model.GroupKey {
	return model.GroupKey{
		UserID: e.UserID,
		Day:    time.Unix(0, e.Timestamp).In(g.loc).Format(model.DayLayout),
	}
}

// Add appends e to its group.
func (g *Grouper) Add(e *model.Event) {
	key := g.Key(e)
	g.groups[key] = append(g.groups[key], *e)
	g.events++
}

// Events returns the number of events added.
func (g *Grouper) Events() int64 {
	return g.events
}

// Groups returns the groups ordered by (user, day). Events within a group
// are stable-sorted by timestamp, so ties keep input order.
func (g *Grouper) Groups() []model.Group {
	out := make([]model.Group, 0, len(g.groups))
	for key, events := range g.groups {
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Timestamp < events[j].Timestamp
		})
		out = append(out, model.Group{Key: key, Events: events})
	}
	slices.SortFunc(out, func(a, b model.Group) int {
		switch {
		case a.Key.Less(b.Key):
			return -1
		case b.Key.Less(a.Key):
			return 1
		default:
			return 0
		}
	})
	return out
}

// Collect drains in and returns the ordered groups.
func Collect(ctx context.Context, in <-chan *model.Event, loc *time.Location) ([]model.Group, error) {
	g := New(loc)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case e, ok := <-in:
			if !ok {
				return g.Groups(), nil
			}
			g.Add(e)
		}
	}
}

// Slice groups an in-memory event slice.
func Slice(events []model.Event, loc *time.Location) []model.Group {
	g := New(loc)
	for i := range events {
		g.Add(&events[i])
	}
	return g.Groups()
}
