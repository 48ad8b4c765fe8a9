package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	errs "github.com/logflow/bundler/pkg/errors"
	"github.com/logflow/bundler/pkg/logging"
	"github.com/logflow/bundler/pkg/metrics"
	"github.com/logflow/bundler/pkg/source"
	"github.com/logflow/bundler/pkg/watch"
)

var (
	debounce    time.Duration
	metricsAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run bundling whenever the input file changes",
	Long: `Run once, then watch the local input file and re-run after every change.

Examples:
  bundler watch -i events.csv -f csv -o notifications.csv
  bundler watch -i events.csv --debounce 2s`,
	RunE: runWatch,
}

func init() {
	addRunFlags(watchCmd)
	watchCmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period after the last write")
	watchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	applyRunFlags(cmd, cfg)
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Run.MetricsAddr = metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if source.KindOf(cfg.Input.Path) != source.KindFile {
		return errs.New(errs.CodeValidationFailed, "watch needs a local input file").
			WithContext("input", cfg.Input.Path)
	}
	if err := startTelemetry(cmd.Context(), cfg); err != nil {
		return err
	}

	ctx := cmd.Context()
	log := logging.FromContext(ctx)
	j := newJob(cmd, cfg)

	w, err := watch.NewWatcher(cfg.Input.Path, debounce)
	if err != nil {
		return err
	}

	if cfg.Run.MetricsAddr != "" {
		shutdown, err := metrics.Serve(ctx, cfg.Run.MetricsAddr)
		if err != nil {
			w.Close()
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
		j.console.Info(fmt.Sprintf("Metrics on %s/metrics", cfg.Run.MetricsAddr))
	}
	w.OnChange = func(ctx context.Context, path string) error {
		j.console.Step(fmt.Sprintf("Input changed: %s", path))
		_, err := j.run(ctx)
		return err
	}
	w.OnError = func(path string, err error) {
		j.console.Error(err)
		log.Warnw("run failed", "input", path, "error", err)
	}

	if _, err := j.run(ctx); err != nil {
		if errs.IsFatal(err) || errors.Is(err, context.Canceled) {
			w.Close()
			return err
		}
		w.OnError(w.Path(), err)
	}

	j.console.Info(fmt.Sprintf("Watching %s (Ctrl+C to stop)", w.Path()))
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
