package adapters

import (
	"context"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/logflow/bundler/internal/model"
	errs "github.com/logflow/bundler/pkg/errors"
)

// DefaultSheet is the worksheet notifications are written to.
const DefaultSheet = "notifications"

// XLSXSink writes notification rows to an Excel workbook.
// The workbook is written to the output on Close.
type XLSXSink struct {
	out     io.Writer
	file    *excelize.File
	stream  *excelize.StreamWriter
	loc     *time.Location
	style   int
	row     int
	written int64
	closed  bool
}

// Excel keeps millisecond precision at most.
var xlsxTimeFormat = "yyyy-mm-dd hh:mm:ss.000"

// NewXLSXSink creates a workbook sink. Times are shown in loc (UTC when nil).
func NewXLSXSink(w io.Writer, loc *time.Location) (*XLSXSink, error) {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", DefaultSheet); err != nil {
		return nil, errs.Wrap(err, errs.CodeWriteFailed, "failed to name worksheet")
	}
	style, err := f.NewStyle(&excelize.Style{CustomNumFmt: &xlsxTimeFormat})
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeWriteFailed, "failed to create date style")
	}
	stream, err := f.NewStreamWriter(DefaultSheet)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeWriteFailed, "failed to open worksheet stream")
	}

	header := make([]interface{}, len(model.Columns))
	for i, c := range model.Columns {
		header[i] = c
	}
	if err := stream.SetRow("A1", header); err != nil {
		return nil, errs.Wrap(err, errs.CodeWriteFailed, "failed to write header")
	}

	return &XLSXSink{out: w, file: f, stream: stream, loc: loc, style: style, row: 1}, nil
}

// Name returns the adapter name.
func (s *XLSXSink) Name() string {
	return "xlsx"
}

// Written returns the number of rows written.
func (s *XLSXSink) Written() int64 {
	return s.written
}

// Write implements pipeline.Sink.
func (s *XLSXSink) Write(ctx context.Context, in <-chan *model.Notification) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case row, ok := <-in:
			if !ok {
				return nil
			}
			if err := s.writeRow(row); err != nil {
				return err
			}
		}
	}
}

func (s *XLSXSink) writeRow(row *model.Notification) error {
	s.row++
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		return errs.Wrap(err, errs.CodeWriteFailed, "invalid cell")
	}
	values := []interface{}{
		excelize.Cell{StyleID: s.style, Value: s.localTime(row.NotificationSent)},
		excelize.Cell{StyleID: s.style, Value: s.localTime(row.TimestampFirstTour)},
		row.Tours,
		row.ReceiverID,
		row.Message,
	}
	if err := s.stream.SetRow(cell, values); err != nil {
		return errs.Wrap(err, errs.CodeWriteFailed, "failed to write row").WithContext("row", s.row)
	}
	s.written++
	return nil
}

// localTime returns the wall clock in loc, since cells carry no zone.
func (s *XLSXSink) localTime(ns int64) time.Time {
	t := time.Unix(0, ns).In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Close finishes the worksheet and writes the workbook.
func (s *XLSXSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.file.Close()

	if err := s.stream.Flush(); err != nil {
		return errs.Wrap(err, errs.CodeWriteFailed, "failed to flush worksheet")
	}
	if _, err := s.file.WriteTo(s.out); err != nil {
		return errs.Wrap(err, errs.CodeWriteFailed, "failed to write workbook")
	}
	if c, ok := s.out.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
