package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/logflow/bundler/pkg/adapters"
	"github.com/logflow/bundler/pkg/bundle"
	"github.com/logflow/bundler/pkg/config"
	errs "github.com/logflow/bundler/pkg/errors"
	"github.com/logflow/bundler/pkg/logging"
	"github.com/logflow/bundler/pkg/pipeline"
	"github.com/logflow/bundler/pkg/source"
	"github.com/logflow/bundler/pkg/tui"
)

// job is one configured bundling run. Watch mode runs the same job repeatedly.
type job struct {
	cfg     *config.Config
	opener  *source.Opener
	console *tui.Console
}

// run executes the job under a fresh run ID.
func (j *job) run(ctx context.Context) (pipeline.Result, error) {
	runID := uuid.NewString()
	log := logging.FromContext(ctx).With("run_id", runID)
	ctx = logging.WithLogger(ctx, log)

	loc, err := j.cfg.Location()
	if err != nil {
		return pipeline.Result{}, errs.Wrap(err, errs.CodeValidationFailed, "unknown time zone").
			WithContext("timezone", j.cfg.Input.Timezone)
	}

	handler, closeQuarantine, err := j.errorHandler(log)
	if err != nil {
		return pipeline.Result{}, err
	}
	defer closeQuarantine()

	src, cleanup, err := j.source(ctx, loc, handler)
	if err != nil {
		return pipeline.Result{}, err
	}
	defer cleanup()

	sink, err := j.sink(ctx, loc, runID)
	if err != nil {
		return pipeline.Result{}, err
	}

	progress, finish := j.console.Progress("bundling")
	runner := pipeline.NewRunner(bundle.New(j.cfg.BundleOptions()...),
		pipeline.WithWorkers(j.cfg.Run.Workers),
		pipeline.WithErrorHandler(handler),
		pipeline.WithRunID(runID),
		pipeline.WithProgress(progress),
	)

	log.Debugw("starting run",
		"input", j.cfg.Input.Path,
		"engine", j.cfg.Input.Engine,
		"format", j.cfg.Output.Format,
		"strategy", j.cfg.Bundle.Strategy,
	)
	res, err := pipeline.NewOrchestrator(runner, loc).
		SetSource(src).
		SetSink(sink).
		Run(ctx)
	finish()
	if err != nil {
		return res, err
	}

	stats := handler.Stats()
	log.Infow("run finished",
		"events", res.Events,
		"groups", res.Groups,
		"failed_groups", res.FailedGroups,
		"errors", stats.ErrorCount,
		"notifications", res.Notifications,
		"duration", res.Duration,
	)
	j.console.Report(res, stats)
	return res, nil
}

func (j *job) errorHandler(log *zap.SugaredLogger) (*pipeline.ErrorHandler, func(), error) {
	handler := pipeline.NewErrorHandler(j.cfg.ErrorPolicy()).
		WithMaxErrors(j.cfg.Run.MaxErrors).
		WithOnSkip(func(rec pipeline.ErrorRecord) {
			log.Debugw("dropped", "stage", rec.Stage, "row", rec.RowNumber, "group", rec.Group, "error", rec.Message)
		})

	if handler.Policy() != pipeline.ErrorPolicyQuarantine {
		return handler, func() {}, nil
	}
	q, err := pipeline.OpenQuarantineFile(j.cfg.Run.QuarantinePath)
	if err != nil {
		return nil, nil, err
	}
	handler.WithQuarantineWriter(q.Write)
	return handler, func() {
		if n := q.Written(); n > 0 {
			j.console.Warn(fmt.Sprintf("%d records quarantined to %s", n, j.cfg.Run.QuarantinePath))
		}
		if err := q.Close(); err != nil {
			log.Warnw("failed to close quarantine file", "error", err)
		}
	}, nil
}

func (j *job) source(ctx context.Context, loc *time.Location, handler *pipeline.ErrorHandler) (pipeline.Source, func(), error) {
	in := j.cfg.Input
	opts := adapters.CSVOptions{
		Delimiter: j.cfg.Delimiter(),
		Header:    in.Header,
		Location:  loc,
		Name:      in.Path,
	}

	if source.IsRemote(in.Path) {
		j.console.Step("Downloading data...")
	} else {
		j.console.Step("Reading data...")
	}

	if in.Engine == config.EngineDuckDB {
		if source.KindOf(in.Path) == source.KindFile {
			return adapters.NewDuckDBSource(in.Path, opts, handler), func() {}, nil
		}
		// DuckDB reads files; fetch remote input first
		tmp, err := j.download(ctx, in.Path)
		if err != nil {
			return nil, nil, err
		}
		return adapters.NewDuckDBSource(tmp, opts, handler), func() { os.Remove(tmp) }, nil
	}

	r, err := j.opener.Open(ctx, in.Path)
	if err != nil {
		return nil, nil, err
	}
	return adapters.NewCSVSource(r, opts, handler), func() { r.Close() }, nil
}

// download copies location into a temporary file and returns its path.
func (j *job) download(ctx context.Context, location string) (string, error) {
	r, err := j.opener.Open(ctx, location)
	if err != nil {
		return "", err
	}
	defer r.Close()

	f, err := os.CreateTemp("", "bundler-*.csv")
	if err != nil {
		return "", errs.Wrap(err, errs.CodeSourceFailed, "failed to create temp file")
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", errs.Wrap(err, errs.CodeSourceFailed, "download failed").WithContext("url", location)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", errs.Wrap(err, errs.CodeSourceFailed, "download failed").WithContext("url", location)
	}
	return f.Name(), nil
}

func (j *job) sink(ctx context.Context, loc *time.Location, runID string) (pipeline.Sink, error) {
	out := j.cfg.Output
	format := adapters.RowFormatter{Location: loc}

	if out.Format == config.FormatRedis {
		opts := j.cfg.RedisOptions()
		client, err := adapters.NewRedisClient(ctx, opts)
		if err != nil {
			return nil, err
		}
		return adapters.NewRedisSink(client, opts, runID), nil
	}

	path := out.Path
	if path == "" {
		path = "-"
	}
	w, err := j.opener.Create(ctx, path, contentType(out.Format))
	if err != nil {
		return nil, err
	}

	switch out.Format {
	case config.FormatCSV:
		return adapters.NewCSVSink(w, format), nil
	case config.FormatParquet:
		sink, err := adapters.NewParquetSink(w, adapters.ParquetOptions{Compression: out.Compression, RunID: runID})
		if err != nil {
			w.Close()
			return nil, err
		}
		return sink, nil
	case config.FormatXLSX:
		sink, err := adapters.NewXLSXSink(w, loc)
		if err != nil {
			w.Close()
			return nil, err
		}
		return sink, nil
	default:
		return &closingSink{Sink: adapters.NewTableSink(w, format, out.Rows), closer: w}, nil
	}
}

func contentType(format string) string {
	switch format {
	case config.FormatCSV:
		return "text/csv"
	case config.FormatParquet:
		return "application/vnd.apache.parquet"
	case config.FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/plain"
	}
}

// closingSink closes the output of a sink that does not own it.
type closingSink struct {
	pipeline.Sink
	closer io.Closer
}

func (s *closingSink) Close() error {
	err := s.Sink.Close()
	if cerr := s.closer.Close(); err == nil {
		err = cerr
	}
	return err
}
