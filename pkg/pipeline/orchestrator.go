package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/logflow/bundler/internal/model"
	errs "github.com/logflow/bundler/pkg/errors"
	"github.com/logflow/bundler/pkg/grouping"
	"github.com/logflow/bundler/pkg/logging"
	"github.com/logflow/bundler/pkg/metrics"
	"github.com/logflow/bundler/pkg/telemetry"
)

// DefaultBufferSize is the channel capacity between stages.
const DefaultBufferSize = 4096

// Orchestrator connects a Source, the grouping stage, a Runner and a Sink.
//
// Data flows: Source -> [events] -> grouping -> Runner -> [rows] -> Sink.
type Orchestrator struct {
	source     Source
	sink       Sink
	runner     *Runner
	loc        *time.Location
	bufferSize int
}

// NewOrchestrator creates an orchestrator that groups days in loc.
func NewOrchestrator(runner *Runner, loc *time.Location) *Orchestrator {
	if loc == nil {
		loc = time.UTC
	}
	return &Orchestrator{
		runner:     runner,
		loc:        loc,
		bufferSize: DefaultBufferSize,
	}
}

// SetSource sets the event source.
func (o *Orchestrator) SetSource(s Source) *Orchestrator {
	o.source = s
	return o
}

// SetSink sets the notification sink.
func (o *Orchestrator) SetSink(s Sink) *Orchestrator {
	o.sink = s
	return o
}

// SetBufferSize sets the channel capacity between stages.
func (o *Orchestrator) SetBufferSize(n int) *Orchestrator {
	if n > 0 {
		o.bufferSize = n
	}
	return o
}

// Run executes the pipeline. The sink is always closed.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	if o.source == nil {
		return Result{}, errs.New(errs.CodeValidationFailed, "no source configured")
	}
	if o.sink == nil {
		return Result{}, errs.New(errs.CodeValidationFailed, "no sink configured")
	}

	ctx, span := telemetry.Start(ctx, "bundler.run",
		attribute.String("run.id", o.runner.runID),
		attribute.String("source", o.source.Name()),
		attribute.String("sink", o.sink.Name()),
	)
	defer span.End()

	res, err := o.run(ctx)
	if closeErr := o.sink.Close(); closeErr != nil && err == nil {
		err = errs.Wrap(closeErr, errs.CodeWriteFailed, "failed to close sink").
			WithContext("sink", o.sink.Name())
	}
	telemetry.RecordError(ctx, err)
	if err != nil {
		metrics.RunsTotal.WithLabelValues(metrics.ResultFailed).Inc()
	} else {
		metrics.RunsTotal.WithLabelValues(metrics.ResultOK).Inc()
	}
	return res, err
}

func (o *Orchestrator) run(ctx context.Context) (Result, error) {
	log := logging.FromContext(ctx)

	groups, err := o.collect(ctx)
	if err != nil {
		return Result{}, err
	}
	log.Debugw("input grouped", "source", o.source.Name(), "groups", len(groups))

	rows, res, err := o.runner.Bundle(ctx, groups)
	if err != nil {
		return res, err
	}

	if err := Emit(ctx, o.sink, rows, o.bufferSize); err != nil {
		return res, err
	}
	return res, nil
}

func (o *Orchestrator) collect(ctx context.Context) ([]model.Group, error) {
	events := make(chan *model.Event, o.bufferSize)
	var groups []model.Group

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(events)
		if err := o.source.Read(gctx, events); err != nil {
			return errs.Wrap(err, errs.CodeSourceFailed, "source failed").
				WithContext("source", o.source.Name())
		}
		return nil
	})
	g.Go(func() error {
		var err error
		groups, err = grouping.Collect(gctx, events, o.loc)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return groups, nil
}

// Emit streams rows into sink in order.
func Emit(ctx context.Context, sink Sink, rows []model.Notification, bufferSize int) error {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	ch := make(chan *model.Notification, bufferSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(ch)
		for i := range rows {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case ch <- &rows[i]:
			}
		}
		return nil
	})
	g.Go(func() error {
		if err := sink.Write(gctx, ch); err != nil {
			return errs.Wrap(err, errs.CodeWriteFailed, "sink failed").
				WithContext("sink", sink.Name())
		}
		return nil
	})
	return g.Wait()
}
