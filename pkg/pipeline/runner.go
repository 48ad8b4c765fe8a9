package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/logflow/bundler/internal/model"
	errs "github.com/logflow/bundler/pkg/errors"
	"github.com/logflow/bundler/pkg/logging"
	"github.com/logflow/bundler/pkg/metrics"
	"github.com/logflow/bundler/pkg/telemetry"
)

// ProgressFunc is called after each group finishes.
type ProgressFunc func(done, total int)

// Runner fans groups out over a bounded worker pool.
type Runner struct {
	bundler    Bundler
	handler    *ErrorHandler
	workers    int
	runID      string
	onProgress ProgressFunc
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithWorkers sets the worker count. Zero or less means GOMAXPROCS.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) {
		r.workers = n
	}
}

// WithErrorHandler sets the per-group failure policy.
func WithErrorHandler(h *ErrorHandler) RunnerOption {
	return func(r *Runner) {
		r.handler = h
	}
}

// WithRunID tags logs and spans with a run identifier.
func WithRunID(id string) RunnerOption {
	return func(r *Runner) {
		r.runID = id
	}
}

// WithProgress sets a progress callback. It may be called concurrently.
func WithProgress(fn ProgressFunc) RunnerOption {
	return func(r *Runner) {
		r.onProgress = fn
	}
}

// NewRunner creates a Runner. Without options it skips failing groups.
func NewRunner(b Bundler, opts ...RunnerOption) *Runner {
	r := &Runner{
		bundler: b,
		handler: NewErrorHandler(ErrorPolicySkip),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers <= 0 {
		r.workers = runtime.GOMAXPROCS(0)
	}
	return r
}

// Handler returns the runner's error handler.
func (r *Runner) Handler() *ErrorHandler {
	return r.handler
}

// Result summarizes a bundling run.
type Result struct {
	RunID         string
	Events        int64
	Groups        int
	FailedGroups  int
	Notifications int
	Duration      time.Duration
}

// Throughput returns events per second.
func (r Result) Throughput() float64 {
	if r.Duration == 0 {
		return 0
	}
	return float64(r.Events) / r.Duration.Seconds()
}

func (r Result) String() string {
	return fmt.Sprintf("%d events, %d groups (%d failed), %d notifications in %s",
		r.Events, r.Groups, r.FailedGroups, r.Notifications, r.Duration.Round(time.Millisecond))
}

// Bundle runs the bundler on every group and returns the rows in group order,
// independent of the worker count. Failed groups contribute no rows unless
// the policy aborts the run.
func (r *Runner) Bundle(ctx context.Context, groups []model.Group) ([]model.Notification, Result, error) {
	start := time.Now()
	res := Result{RunID: r.runID, Groups: len(groups)}
	for i := range groups {
		res.Events += int64(groups[i].Len())
	}

	ctx, span := telemetry.Start(ctx, "bundler.bundle",
		attribute.String("run.id", r.runID),
		attribute.Int("groups", len(groups)),
		attribute.Int("workers", r.workers),
	)
	defer span.End()

	log := logging.FromContext(ctx).With("run", r.runID)

	results := make([][]model.Notification, len(groups))
	failed := make([]bool, len(groups))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := range groups {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rows, err := r.bundleGroup(gctx, &groups[i])
			if errs.IsCode(err, errs.CodeContextCanceled) {
				return err
			}
			metrics.GroupSize.Observe(float64(groups[i].Len()))
			if err != nil {
				metrics.GroupsTotal.WithLabelValues(metrics.ResultFailed).Inc()
				failed[i] = true
				rec := ErrorRecord{
					Stage:  StageBundle,
					Group:  groups[i].Key.String(),
					Events: groups[i].Events,
					Code:   errs.GetCode(err),
					Err:    errs.GroupFailed(groups[i].Key.String(), err),
				}
				log.Warnw("group failed", "group", rec.Group, "events", groups[i].Len(), "error", err)
				if cont, hErr := r.handler.HandleError(rec); !cont {
					return hErr
				}
			}
			if err == nil {
				metrics.GroupsTotal.WithLabelValues(metrics.ResultOK).Inc()
			}
			results[i] = rows
			if r.onProgress != nil {
				r.onProgress(int(done.Add(1)), len(groups))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		telemetry.RecordError(ctx, err)
		return nil, res, err
	}
	if err := ctx.Err(); err != nil {
		return nil, res, errs.Wrap(err, errs.CodeContextCanceled, "bundling canceled")
	}

	var total int
	for i := range results {
		total += len(results[i])
		if failed[i] {
			res.FailedGroups++
		}
	}
	rows := make([]model.Notification, 0, total)
	for i := range results {
		rows = append(rows, results[i]...)
	}

	res.Notifications = len(rows)
	res.Duration = time.Since(start)
	metrics.EventsTotal.Add(float64(res.Events))
	metrics.NotificationsTotal.Add(float64(res.Notifications))
	metrics.RunDuration.Observe(res.Duration.Seconds())
	span.SetAttributes(
		attribute.Int("notifications", res.Notifications),
		attribute.Int("groups.failed", res.FailedGroups),
	)
	log.Infow("bundling finished", "groups", res.Groups, "failed", res.FailedGroups,
		"notifications", res.Notifications, "duration", res.Duration)
	return rows, res, nil
}

func (r *Runner) bundleGroup(ctx context.Context, group *model.Group) (rows []model.Notification, err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, errs.Wrap(ctxErr, errs.CodeContextCanceled, "bundling canceled")
	}

	_, span := telemetry.Start(ctx, "bundler.group",
		attribute.String("group", group.Key.String()),
		attribute.Int("events", group.Len()),
	)
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			err = errs.New(errs.CodePanic, fmt.Sprintf("panic while bundling: %v", rec))
			span.RecordError(err)
		}
	}()

	rows, err = r.bundler.Bundle(group.Key, group.Events)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("notifications", len(rows)))
	return rows, nil
}
