// Package metrics defines the Prometheus metrics of bundling runs and serves them.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	errs "github.com/logflow/bundler/pkg/errors"
	"github.com/logflow/bundler/pkg/logging"
)

const (
	namespace = "bundler"

	LabelResult = "result"
	LabelStage  = "stage"
	LabelType   = "type"

	ResultOK     = "ok"
	ResultFailed = "failed"
)

var (
	// RunsTotal counts finished runs by result.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Total number of bundling runs",
	}, []string{LabelResult})

	// EventsTotal counts grouped input events.
	EventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Total number of events grouped",
	})

	// GroupsTotal counts bundled groups by result.
	GroupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "groups_total",
		Help:      "Total number of user/day groups bundled",
	}, []string{LabelResult})

	// NotificationsTotal counts emitted notification rows.
	NotificationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Total number of notifications produced",
	})

	// ErrorsTotal counts handled row and group failures.
	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Total number of failed rows and groups",
	}, []string{LabelStage, LabelType})

	// GroupSize observes events per group.
	GroupSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "group_events",
		Help:      "Events per user/day group",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	// RunDuration observes the bundling time of a run.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Time spent bundling one input",
		Buckets:   prometheus.DefBuckets,
	})
)

// Serve exposes /metrics and /livez on addr until the returned shutdown is called.
func Serve(ctx context.Context, addr string) (func(context.Context) error, error) {
	log := logging.FromContext(ctx)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeValidationFailed, "failed to listen for metrics").WithContext("addr", addr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infow("starting metrics server", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("metrics server failed", "error", err)
		}
	}()
	return srv.Shutdown, nil
}
