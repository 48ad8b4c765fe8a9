package pipeline

import (
	"context"

	"github.com/logflow/bundler/internal/model"
)

// Adapter is the interface for event sources and notification sinks.
// Adapters handle I/O; they don't bundle.
type Adapter interface {
	// Name returns the adapter identifier (e.g., "csv", "duckdb", "parquet").
	Name() string
}

// Source reads input and emits events to a channel.
// The orchestrator closes out after Read returns.
type Source interface {
	Adapter

	Read(ctx context.Context, out chan<- *model.Event) error
}

// Sink consumes notification rows in output order.
type Sink interface {
	Adapter

	// Write consumes rows until in is closed or ctx is done.
	Write(ctx context.Context, in <-chan *model.Notification) error

	// Close flushes and closes the sink.
	Close() error
}

// Bundler turns one sorted group into notification rows.
type Bundler interface {
	Bundle(key model.GroupKey, events []model.Event) ([]model.Notification, error)
}
