// Package adapters provides event Sources and notification Sinks.
package adapters

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/logflow/bundler/internal/model"
	"github.com/logflow/bundler/internal/pool"
	errs "github.com/logflow/bundler/pkg/errors"
	"github.com/logflow/bundler/pkg/pipeline"
)

// InputColumns is the column order of a headerless input file.
var InputColumns = []string{"timestamp", "user_id", "friend_id", "friend_name"}

// CSVOptions configures CSV decoding.
type CSVOptions struct {
	// Delimiter separates fields. Zero means ','.
	Delimiter rune
	// Header marks the first row as column names.
	Header bool
	// Location is used for timestamps without an offset. Nil means UTC.
	Location *time.Location
	// Name labels the input in error records.
	Name string
	// BufferSize is the read buffer size. Zero means 64KB.
	BufferSize int
}

// CSVSource reads events from a CSV stream.
type CSVSource struct {
	r       io.Reader
	opts    CSVOptions
	handler *pipeline.ErrorHandler

	// columns maps InputColumns order to record positions.
	columns [4]int
	rows    int64
	emitted int64
}

// NewCSVSource creates a CSV source over r. A nil handler aborts on the first bad row.
func NewCSVSource(r io.Reader, opts CSVOptions, handler *pipeline.ErrorHandler) *CSVSource {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 64 * 1024
	}
	if handler == nil {
		handler = pipeline.NewErrorHandler(pipeline.ErrorPolicyStrict)
	}
	return &CSVSource{
		r:       r,
		opts:    opts,
		handler: handler,
		columns: [4]int{0, 1, 2, 3},
	}
}

// Name returns the adapter name.
func (s *CSVSource) Name() string {
	return "csv"
}

// Rows returns the number of data rows read.
func (s *CSVSource) Rows() int64 {
	return s.rows
}

// Emitted returns the number of events sent downstream.
func (s *CSVSource) Emitted() int64 {
	return s.emitted
}

// Read implements pipeline.Source.
func (s *CSVSource) Read(ctx context.Context, out chan<- *model.Event) error {
	reader := csv.NewReader(bufio.NewReaderSize(s.r, s.opts.BufferSize))
	reader.Comma = s.opts.Delimiter
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	line := int64(0)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		line++

		if s.opts.Header && line == 1 {
			if err != nil {
				return errs.ParseError("csv", line, err)
			}
			if err := s.resolveColumns(record); err != nil {
				return err
			}
			continue
		}
		s.rows++

		var event *model.Event
		if err == nil {
			event, err = s.decode(record, line)
		} else {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return errs.Wrap(err, errs.CodeSourceFailed, "failed to read input")
			}
			err = errs.ParseError("csv", line, err)
		}

		if err != nil {
			cont, handleErr := s.handler.HandleError(pipeline.ErrorRecord{
				Stage:     pipeline.StageInput,
				RowNumber: line,
				RawData:   strings.Join(record, string(s.opts.Delimiter)),
				Source:    s.opts.Name,
				Err:       err,
			})
			if !cont {
				return handleErr
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- event:
			s.emitted++
		}
	}
}

func (s *CSVSource) decode(record []string, line int64) (*model.Event, error) {
	for _, idx := range s.columns {
		if idx >= len(record) {
			return nil, errs.New(errs.CodeInvalidFormat, "missing column").
				WithContext("row", line).
				WithContext("fields", len(record))
		}
	}

	raw := record[s.columns[0]]
	ts, err := pool.ParseTimestamp(pool.StringToBytes(strings.TrimSpace(raw)), s.opts.Location)
	if err != nil {
		return nil, errs.InvalidTimestamp(raw, line)
	}

	userID := record[s.columns[1]]
	if userID == "" {
		return nil, errs.New(errs.CodeInvalidFormat, "empty user_id").WithContext("row", line)
	}

	return &model.Event{
		Timestamp:  ts,
		UserID:     userID,
		FriendID:   record[s.columns[2]],
		FriendName: record[s.columns[3]],
	}, nil
}

func (s *CSVSource) resolveColumns(header []string) error {
	var missing []string
	for i, name := range InputColumns {
		s.columns[i] = -1
		for j, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				s.columns[i] = j
				break
			}
		}
		if s.columns[i] < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errs.New(errs.CodeInvalidFormat, "missing required columns").
			WithContext("missing", strings.Join(missing, ","))
	}
	return nil
}
