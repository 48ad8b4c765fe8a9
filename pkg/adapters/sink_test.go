package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/logflow/bundler/internal/model"
	errs "github.com/logflow/bundler/pkg/errors"
	"github.com/logflow/bundler/pkg/pipeline"
)

func sampleRows() []model.Notification {
	first := time.Date(2017, 8, 1, 0, 6, 47, 0, time.UTC).UnixNano()
	return []model.Notification{
		{NotificationSent: first, TimestampFirstTour: first, Tours: 1, ReceiverID: "U1", Message: "Geir went on a tour"},
		{NotificationSent: first + int64(time.Hour), TimestampFirstTour: first + int64(time.Minute), Tours: 3, ReceiverID: "U1", Message: "Antim and 2 others went on a tour"},
		{NotificationSent: first + int64(2*time.Hour), TimestampFirstTour: first + int64(2*time.Hour), Tours: 1, ReceiverID: "U2", Message: "Mona went on a tour"},
	}
}

func TestRowFormatter(t *testing.T) {
	row := sampleRows()[1]
	assert.Equal(t, []string{"2017-08-01 01:06:47", "2017-08-01 00:07:47", "3", "U1", "Antim and 2 others went on a tour"},
		RowFormatter{}.Fields(&row))

	plusTwo := RowFormatter{Location: time.FixedZone("CEST", 2*3600), Layout: time.RFC3339}
	assert.Equal(t, "2017-08-01T03:06:47+02:00", plusTwo.Time(row.NotificationSent))
}

func TestRowFormatter_SubSecond(t *testing.T) {
	base := time.Date(2017, 8, 1, 0, 6, 47, 0, time.UTC).UnixNano()

	tests := []struct {
		ns       int64
		expected string
	}{
		{base, "2017-08-01 00:06:47"},
		{base + 250_000_000, "2017-08-01 00:06:47.25"},
		{base + 1, "2017-08-01 00:06:47.000000001"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, RowFormatter{}.Time(tt.ns))
	}
}

func TestCSVSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewCSVSink(&buf, RowFormatter{})

	require.NoError(t, pipeline.Emit(context.Background(), sink, sampleRows(), 1))
	require.NoError(t, sink.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "notification_sent,timestamp_first_tour,tours,receiver_id,message", lines[0])
	assert.Equal(t, "2017-08-01 00:06:47,2017-08-01 00:06:47,1,U1,Geir went on a tour", lines[1])
	assert.Equal(t, int64(3), sink.Written())
}

func TestTableSink_Limit(t *testing.T) {
	var buf bytes.Buffer
	sink := NewTableSink(&buf, RowFormatter{}, 2)

	require.NoError(t, pipeline.Emit(context.Background(), sink, sampleRows(), 0))
	require.NoError(t, sink.Close())

	out := buf.String()
	assert.Contains(t, out, "notification_sent")
	assert.Contains(t, out, "Geir went on a tour")
	assert.Contains(t, out, "Antim and 2 others went on a tour")
	assert.NotContains(t, out, "Mona")
	assert.Contains(t, out, "[3 rows x 5 columns]")
	assert.Equal(t, int64(3), sink.Total())
}

func TestParquetSink(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewParquetSink(&buf, ParquetOptions{Compression: "zstd", BatchSize: 2, RunID: "run-1"})
	require.NoError(t, err)

	require.NoError(t, pipeline.Emit(context.Background(), sink, sampleRows(), 0))
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())
	assert.Equal(t, int64(3), sink.Written())

	rdr, err := file.NewParquetReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer rdr.Close()

	runID := rdr.MetaData().KeyValueMetadata().FindValue(RunIDMetadataKey)
	require.NotNil(t, runID)
	assert.Equal(t, "run-1", *runID)

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	require.NoError(t, err)
	tbl, err := fr.ReadTable(context.Background())
	require.NoError(t, err)
	defer tbl.Release()

	assert.Equal(t, int64(3), tbl.NumRows())
	assert.Equal(t, int64(5), tbl.NumCols())
	assert.Equal(t, "receiver_id", tbl.Schema().Field(3).Name)

	var tours []int64
	for _, chunk := range tbl.Column(2).Data().Chunks() {
		arr := chunk.(*array.Int64)
		for i := 0; i < arr.Len(); i++ {
			tours = append(tours, arr.Value(i))
		}
	}
	assert.Equal(t, []int64{1, 3, 1}, tours)
}

func TestParseCompression(t *testing.T) {
	for _, name := range []string{"", "snappy", "gzip", "zstd", "lz4", "none", "SNAPPY"} {
		_, err := ParseCompression(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseCompression("brotli2")
	assert.True(t, errs.IsCode(err, errs.CodeValidationFailed))
}

func TestXLSXSink(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewXLSXSink(&buf, nil)
	require.NoError(t, err)

	require.NoError(t, pipeline.Emit(context.Background(), sink, sampleRows(), 0))
	require.NoError(t, sink.Close())
	assert.Equal(t, int64(3), sink.Written())

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(DefaultSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, model.Columns, rows[0])
	assert.Equal(t, "3", rows[2][2])
	assert.Equal(t, "U1", rows[2][3])
	assert.Equal(t, "Mona went on a tour", rows[3][4])
}

type fakeStream struct {
	added     []*redis.XAddArgs
	pipelines []int
	failAt    int
	closed    bool
}

// fakePipe queues XADDs against the stream; other Pipeliner methods are unused.
type fakePipe struct {
	redis.Pipeliner
	stream *fakeStream
	cmds   []redis.Cmder
}

func (p *fakePipe) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f := p.stream
	var cmd *redis.StringCmd
	if f.failAt > 0 && len(f.added)+1 == f.failAt {
		cmd = redis.NewStringResult("", errors.New("READONLY"))
	} else {
		f.added = append(f.added, a)
		cmd = redis.NewStringResult(fmt.Sprintf("1-%d", len(f.added)), nil)
	}
	p.cmds = append(p.cmds, cmd)
	return cmd
}

func (f *fakeStream) Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	pipe := &fakePipe{stream: f}
	if err := fn(pipe); err != nil {
		return nil, err
	}
	f.pipelines = append(f.pipelines, len(pipe.cmds))
	for _, cmd := range pipe.cmds {
		if err := cmd.Err(); err != nil {
			return pipe.cmds, err
		}
	}
	return pipe.cmds, nil
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

func TestRedisSink(t *testing.T) {
	client := &fakeStream{}
	sink := NewRedisSink(client, RedisOptions{Stream: "notifications", MaxLen: 1000}, "run-1")

	require.NoError(t, pipeline.Emit(context.Background(), sink, sampleRows(), 0))
	require.NoError(t, sink.Close())
	assert.True(t, client.closed)

	require.Len(t, client.added, 3)
	args := client.added[1]
	assert.Equal(t, "notifications", args.Stream)
	assert.Equal(t, int64(1000), args.MaxLen)
	assert.True(t, args.Approx)

	values := args.Values.([]interface{})
	assert.Equal(t, []interface{}{
		"notification_sent", "2017-08-01T01:06:47Z",
		"timestamp_first_tour", "2017-08-01T00:07:47Z",
		"tours", "3",
		"receiver_id", "U1",
		"message", "Antim and 2 others went on a tour",
		"run_id", "run-1",
	}, values)
	assert.Equal(t, int64(3), sink.Written())
	assert.Equal(t, "1-3", sink.LastID())
	assert.Equal(t, []int{3}, client.pipelines)
}

func TestRedisSink_Batches(t *testing.T) {
	client := &fakeStream{}
	sink := NewRedisSink(client, RedisOptions{BatchSize: 2}, "")

	rows := append(sampleRows(), sampleRows()...)
	require.NoError(t, pipeline.Emit(context.Background(), sink, rows, 0))

	assert.Equal(t, []int{2, 2, 2}, client.pipelines)
	assert.Len(t, client.added, 6)
	assert.Equal(t, int64(6), sink.Written())
	assert.Equal(t, "1-6", sink.LastID())
}

func TestRedisSink_Error(t *testing.T) {
	sink := NewRedisSink(&fakeStream{failAt: 2}, RedisOptions{}, "")

	err := pipeline.Emit(context.Background(), sink, sampleRows(), 0)
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeWriteFailed))
	assert.Contains(t, err.Error(), "bundler:notifications")
	assert.Equal(t, int64(1), sink.Written())
	assert.Equal(t, "1-1", sink.LastID())
}
