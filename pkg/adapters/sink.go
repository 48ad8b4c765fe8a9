package adapters

import (
	"strconv"
	"time"

	"github.com/logflow/bundler/internal/model"
)

// DefaultTimeLayout renders timestamps in text sinks. Fractional seconds are
// printed only when present, down to nanoseconds.
const DefaultTimeLayout = "2006-01-02 15:04:05.999999999"

// RowFormatter renders notification rows as text fields.
type RowFormatter struct {
	Location *time.Location
	Layout   string
}

// Fields returns the row in model.Columns order.
func (f RowFormatter) Fields(row *model.Notification) []string {
	return []string{
		f.Time(row.NotificationSent),
		f.Time(row.TimestampFirstTour),
		strconv.Itoa(row.Tours),
		row.ReceiverID,
		row.Message,
	}
}

// Time formats a nanosecond timestamp.
func (f RowFormatter) Time(ns int64) string {
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	layout := f.Layout
	if layout == "" {
		layout = DefaultTimeLayout
	}
	return time.Unix(0, ns).In(loc).Format(layout)
}
