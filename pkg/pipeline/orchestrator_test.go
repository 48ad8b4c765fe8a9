package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/bundler/internal/model"
	"github.com/logflow/bundler/pkg/bundle"
	errs "github.com/logflow/bundler/pkg/errors"
)

// --- Mock implementations for testing ---

type sliceSource struct {
	events []model.Event
	err    error
}

func (s *sliceSource) Name() string { return "slice" }

func (s *sliceSource) Read(ctx context.Context, out chan<- *model.Event) error {
	for i := range s.events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- &s.events[i]:
		}
	}
	return s.err
}

type memorySink struct {
	rows     []model.Notification
	failAt   int
	closed   bool
	closeErr error
}

func (m *memorySink) Name() string { return "memory" }

func (m *memorySink) Write(ctx context.Context, in <-chan *model.Notification) error {
	for row := range in {
		if m.failAt > 0 && len(m.rows)+1 == m.failAt {
			return errors.New("sink full")
		}
		m.rows = append(m.rows, *row)
	}
	return nil
}

func (m *memorySink) Close() error {
	m.closed = true
	return m.closeErr
}

func day(d int, clock string) int64 {
	t, err := time.Parse("2006-01-02 15:04:05", "2017-08-0"+string(rune('0'+d))+" "+clock)
	if err != nil {
		panic(err)
	}
	return t.UnixNano()
}

func TestOrchestrator_Run(t *testing.T) {
	source := &sliceSource{events: []model.Event{
		{Timestamp: day(1, "10:00:00"), UserID: "B", FriendID: "1", FriendName: "Mona"},
		{Timestamp: day(1, "09:00:00"), UserID: "A", FriendID: "2", FriendName: "Geir"},
		{Timestamp: day(2, "09:00:00"), UserID: "A", FriendID: "3", FriendName: "Laura"},
	}}
	sink := &memorySink{}

	res, err := NewOrchestrator(NewRunner(bundle.New()), time.UTC).
		SetSource(source).
		SetSink(sink).
		SetBufferSize(1).
		Run(context.Background())
	require.NoError(t, err)
	assert.True(t, sink.closed)

	assert.Equal(t, int64(3), res.Events)
	assert.Equal(t, 3, res.Groups)
	require.Len(t, sink.rows, 3)
	assert.Equal(t, "Geir went on a tour", sink.rows[0].Message)
	assert.Equal(t, "Laura went on a tour", sink.rows[1].Message)
	assert.Equal(t, "B", sink.rows[2].ReceiverID)
}

func TestOrchestrator_Validation(t *testing.T) {
	o := NewOrchestrator(NewRunner(bundle.New()), nil)
	_, err := o.Run(context.Background())
	assert.True(t, errs.IsCode(err, errs.CodeValidationFailed))

	_, err = o.SetSource(&sliceSource{}).Run(context.Background())
	assert.True(t, errs.IsCode(err, errs.CodeValidationFailed))
}

func TestOrchestrator_SourceError(t *testing.T) {
	sink := &memorySink{}
	_, err := NewOrchestrator(NewRunner(bundle.New()), nil).
		SetSource(&sliceSource{err: errors.New("connection reset")}).
		SetSink(sink).
		Run(context.Background())

	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeSourceFailed))
	assert.Contains(t, err.Error(), "connection reset")
	assert.True(t, sink.closed)
	assert.Empty(t, sink.rows)
}

func TestOrchestrator_SinkError(t *testing.T) {
	events := make([]model.Event, 0, 20)
	for i := 0; i < 20; i++ {
		events = append(events, model.Event{Timestamp: day(1, "09:00:00"), UserID: string(rune('A' + i)), FriendID: "f", FriendName: "n"})
	}
	sink := &memorySink{failAt: 5}

	_, err := NewOrchestrator(NewRunner(bundle.New()), nil).
		SetSource(&sliceSource{events: events}).
		SetSink(sink).
		SetBufferSize(1).
		Run(context.Background())

	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeWriteFailed))
	assert.Len(t, sink.rows, 4)
}

func TestOrchestrator_CloseError(t *testing.T) {
	sink := &memorySink{closeErr: errors.New("flush failed")}
	_, err := NewOrchestrator(NewRunner(bundle.New()), nil).
		SetSource(&sliceSource{}).
		SetSink(sink).
		Run(context.Background())
	assert.True(t, errs.IsCode(err, errs.CodeWriteFailed))
}

func TestOrchestrator_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := make([]model.Event, 100)
	_, err := NewOrchestrator(NewRunner(bundle.New()), nil).
		SetSource(&sliceSource{events: events}).
		SetSink(&memorySink{}).
		SetBufferSize(1).
		Run(ctx)
	assert.Error(t, err)
}
