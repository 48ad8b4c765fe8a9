package adapters

import (
	"context"
	"io"
	"strings"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/logflow/bundler/internal/model"
	errs "github.com/logflow/bundler/pkg/errors"
)

// RunIDMetadataKey is the schema metadata key holding the run ID.
const RunIDMetadataKey = "bundler.run_id"

// ParquetOptions configures ParquetSink.
type ParquetOptions struct {
	// Compression is one of snappy, gzip, zstd, lz4, none.
	Compression string
	// BatchSize is the number of rows per record batch.
	BatchSize int
	// RunID is stored in the schema metadata when set.
	RunID string
}

// ParseCompression maps a codec name to a parquet compression.
func ParseCompression(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "lz4":
		return compress.Codecs.Lz4, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, errs.New(errs.CodeValidationFailed, "unknown compression").
			WithContext("compression", name)
	}
}

// NotificationSchema returns the Arrow schema of the output rows.
func NotificationSchema(runID string) *arrow.Schema {
	var md *arrow.Metadata
	if runID != "" {
		m := arrow.NewMetadata([]string{RunIDMetadataKey}, []string{runID})
		md = &m
	}
	ts := &arrow.TimestampType{Unit: arrow.Nanosecond, TimeZone: "UTC"}
	return arrow.NewSchema([]arrow.Field{
		{Name: model.Columns[0], Type: ts},
		{Name: model.Columns[1], Type: ts},
		{Name: model.Columns[2], Type: arrow.PrimitiveTypes.Int64},
		{Name: model.Columns[3], Type: arrow.BinaryTypes.String},
		{Name: model.Columns[4], Type: arrow.BinaryTypes.String},
	}, md)
}

// ParquetSink writes notification rows to Parquet using Apache Arrow.
type ParquetSink struct {
	writer  *pqarrow.FileWriter
	builder *array.RecordBuilder

	batchSize int
	pending   int
	written   int64
	closed    bool
}

// NewParquetSink creates a sink writing to w. If w is an io.Closer the
// parquet writer closes it on Close.
func NewParquetSink(w io.Writer, opts ParquetOptions) (*ParquetSink, error) {
	codec, err := ParseCompression(opts.Compression)
	if err != nil {
		return nil, err
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64 * 1024
	}

	schema := NotificationSchema(opts.RunID)
	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithDictionaryDefault(true),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(schema, w, writerProps, arrowProps)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeWriteFailed, "failed to create parquet writer")
	}

	s := &ParquetSink{
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.NewGoAllocator(), schema),
		batchSize: opts.BatchSize,
	}
	return s, nil
}

// Name returns the adapter name.
func (s *ParquetSink) Name() string {
	return "parquet"
}

// Written returns the number of rows flushed.
func (s *ParquetSink) Written() int64 {
	return s.written
}

// Write implements pipeline.Sink.
func (s *ParquetSink) Write(ctx context.Context, in <-chan *model.Notification) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case row, ok := <-in:
			if !ok {
				return s.flush()
			}
			s.append(row)
			if s.pending >= s.batchSize {
				if err := s.flush(); err != nil {
					return err
				}
			}
		}
	}
}

func (s *ParquetSink) append(row *model.Notification) {
	s.builder.Field(0).(*array.TimestampBuilder).Append(arrow.Timestamp(row.NotificationSent))
	s.builder.Field(1).(*array.TimestampBuilder).Append(arrow.Timestamp(row.TimestampFirstTour))
	s.builder.Field(2).(*array.Int64Builder).Append(int64(row.Tours))
	s.builder.Field(3).(*array.StringBuilder).Append(row.ReceiverID)
	s.builder.Field(4).(*array.StringBuilder).Append(row.Message)
	s.pending++
}

func (s *ParquetSink) flush() error {
	if s.pending == 0 {
		return nil
	}
	rec := s.builder.NewRecord()
	defer rec.Release()

	if err := s.writer.Write(rec); err != nil {
		return errs.Wrap(err, errs.CodeWriteFailed, "failed to write record batch")
	}
	s.written += int64(s.pending)
	s.pending = 0
	return nil
}

// Close flushes pending rows and closes the file.
func (s *ParquetSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.builder.Release()

	if err := s.flush(); err != nil {
		return err
	}
	// FileWriter.Close also closes the underlying sink when it is an io.Closer.
	if err := s.writer.Close(); err != nil {
		return errs.Wrap(err, errs.CodeWriteFailed, "failed to close parquet writer")
	}
	return nil
}
