// Package model defines core data structures for the bundler.
package model

import "time"

// Event represents a single friend activity ("went on a tour") addressed to a user.
// Timestamps are stored as int64 nanoseconds since Unix epoch.
type Event struct {
	// Timestamp in nanoseconds since Unix epoch.
	Timestamp int64

	// UserID identifies the receiver of the notification.
	UserID string

	// FriendID identifies the secondary actor (the friend who toured).
	FriendID string

	// FriendName is the display name of the friend.
	FriendName string
}

// Time returns the event timestamp as a time.Time in UTC.
func (e Event) Time() time.Time {
	return time.Unix(0, e.Timestamp).UTC()
}

// DayLayout is the layout of GroupKey.Day.
const DayLayout = "2006-01-02"

// GroupKey identifies one bundling group: a receiver on a calendar day.
type GroupKey struct {
	UserID string
	Day    string
}

// String renders the key as user/day for logs and error context.
func (k GroupKey) String() string {
	return k.UserID + "/" + k.Day
}

// Less orders keys by user, then day.
func (k GroupKey) Less(o GroupKey) bool {
	if k.UserID != o.UserID {
		return k.UserID < o.UserID
	}
	return k.Day < o.Day
}

// Group holds the events of one key, sorted ascending by timestamp.
type Group struct {
	Key    GroupKey
	Events []Event
}

// Len returns the number of events in the group.
func (g *Group) Len() int {
	return len(g.Events)
}

// Notification is one outbound notification row.
// Field order matches the output column order.
type Notification struct {
	// NotificationSent is when the notification goes out (ns since epoch).
	NotificationSent int64

	// TimestampFirstTour is the first tour the notification reports.
	TimestampFirstTour int64

	// Tours is the number of distinct friends in the batch.
	Tours int

	// ReceiverID is the user receiving the notification.
	ReceiverID string

	// Message is the display text.
	Message string
}

// Columns lists the output column names in order.
var Columns = []string{"notification_sent", "timestamp_first_tour", "tours", "receiver_id", "message"}
