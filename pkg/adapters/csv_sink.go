package adapters

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/logflow/bundler/internal/model"
	errs "github.com/logflow/bundler/pkg/errors"
)

// CSVSink writes notification rows as CSV with a header line.
type CSVSink struct {
	w       *csv.Writer
	closer  io.Closer
	format  RowFormatter
	written int64
}

// NewCSVSink writes to w. If w is an io.Closer it is closed by Close.
func NewCSVSink(w io.Writer, format RowFormatter) *CSVSink {
	s := &CSVSink{w: csv.NewWriter(w), format: format}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Name returns the adapter name.
func (s *CSVSink) Name() string {
	return "csv"
}

// Written returns the number of rows written.
func (s *CSVSink) Written() int64 {
	return s.written
}

// Write implements pipeline.Sink.
func (s *CSVSink) Write(ctx context.Context, in <-chan *model.Notification) error {
	if err := s.w.Write(model.Columns); err != nil {
		return errs.Wrap(err, errs.CodeWriteFailed, "failed to write csv header")
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case row, ok := <-in:
			if !ok {
				s.w.Flush()
				return s.w.Error()
			}
			if err := s.w.Write(s.format.Fields(row)); err != nil {
				return errs.Wrap(err, errs.CodeWriteFailed, "failed to write csv row")
			}
			s.written++
		}
	}
}

// Close flushes and closes the sink.
func (s *CSVSink) Close() error {
	s.w.Flush()
	err := s.w.Error()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// TableSink prints the first rows as an aligned table, like a dataframe head.
type TableSink struct {
	out    io.Writer
	format RowFormatter
	limit  int
	total  int64
}

// NewTableSink prints at most limit rows to w. A limit of zero or less prints all rows.
func NewTableSink(w io.Writer, format RowFormatter, limit int) *TableSink {
	return &TableSink{out: w, format: format, limit: limit}
}

// Name returns the adapter name.
func (s *TableSink) Name() string {
	return "table"
}

// Total returns the number of rows received.
func (s *TableSink) Total() int64 {
	return s.total
}

// Write implements pipeline.Sink. Rows beyond the limit are counted, not printed.
func (s *TableSink) Write(ctx context.Context, in <-chan *model.Notification) error {
	tw := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprint(tw, "\t")
	for _, c := range model.Columns {
		fmt.Fprintf(tw, "%s\t", c)
	}
	fmt.Fprintln(tw)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case row, ok := <-in:
			if !ok {
				if err := tw.Flush(); err != nil {
					return errs.Wrap(err, errs.CodeWriteFailed, "failed to print table")
				}
				fmt.Fprintf(s.out, "\n[%d rows x %d columns]\n", s.total, len(model.Columns))
				return nil
			}
			if s.limit <= 0 || s.total < int64(s.limit) {
				fmt.Fprintf(tw, "%d\t", s.total)
				for _, f := range s.format.Fields(row) {
					fmt.Fprintf(tw, "%s\t", f)
				}
				fmt.Fprintln(tw)
			}
			s.total++
		}
	}
}

// Close implements pipeline.Sink.
func (s *TableSink) Close() error {
	return nil
}
