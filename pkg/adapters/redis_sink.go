package adapters

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/logflow/bundler/internal/model"
	errs "github.com/logflow/bundler/pkg/errors"
)

// RedisOptions configures the notification stream.
type RedisOptions struct {
	// Address is the Redis server address (e.g., "localhost:6379").
	Address  string
	Password string
	Database int

	// Stream is the key notifications are appended to.
	Stream string
	// MaxLen caps the stream length approximately (0 = unbounded).
	MaxLen int64
	// BatchSize is the number of XADDs sent per pipeline.
	BatchSize int

	Timeout time.Duration
}

// DefaultRedisBatchSize is the pipeline size when none is configured.
const DefaultRedisBatchSize = 100

// DefaultRedisOptions returns sensible defaults.
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Address: "localhost:6379",
		Stream:    "bundler:notifications",
		BatchSize: DefaultRedisBatchSize,
		Timeout:   5 * time.Second,
	}
}

// StreamClient is the subset of the Redis client used by RedisSink.
type StreamClient interface {
	Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	Close() error
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.Database,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errs.Wrap(err, errs.CodeWriteFailed, "failed to connect to redis").
			WithContext("address", opts.Address)
	}
	return client, nil
}

// RedisSink appends each notification to a Redis stream for delivery workers.
// Entries are sent in pipelined batches.
type RedisSink struct {
	client    StreamClient
	stream    string
	maxLen    int64
	batchSize int
	runID   string
	format  RowFormatter
	written int64
	lastID  string
}

// NewRedisSink creates a sink appending to opts.Stream.
func NewRedisSink(client StreamClient, opts RedisOptions, runID string) *RedisSink {
	stream := opts.Stream
	if stream == "" {
		stream = DefaultRedisOptions().Stream
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultRedisBatchSize
	}
	return &RedisSink{
		client:    client,
		stream:    stream,
		maxLen:    opts.MaxLen,
		batchSize: batchSize,
		runID:     runID,
		format:    RowFormatter{Layout: time.RFC3339Nano},
	}
}

// Name returns the adapter name.
func (s *RedisSink) Name() string {
	return "redis"
}

// Written returns the number of stream entries added.
func (s *RedisSink) Written() int64 {
	return s.written
}

// LastID returns the ID of the last stream entry added.
func (s *RedisSink) LastID() string {
	return s.lastID
}

// Write implements pipeline.Sink.
func (s *RedisSink) Write(ctx context.Context, in <-chan *model.Notification) error {
	batch := make([]*model.Notification, 0, s.batchSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case row, ok := <-in:
			if !ok {
				return s.flush(ctx, batch)
			}
			batch = append(batch, row)
			if len(batch) < s.batchSize {
				continue
			}
			if err := s.flush(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
}

// flush sends one pipeline of XADDs. Entries before the first failed
// command count as written.
func (s *RedisSink) flush(ctx context.Context, batch []*model.Notification) error {
	if len(batch) == 0 {
		return nil
	}

	cmds := make([]*redis.StringCmd, 0, len(batch))
	_, execErr := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, row := range batch {
			cmds = append(cmds, pipe.XAdd(ctx, s.args(row)))
		}
		return nil
	})

	for _, cmd := range cmds {
		id, err := cmd.Result()
		if err != nil {
			return s.writeError(err)
		}
		s.lastID = id
		s.written++
	}
	if execErr != nil {
		return s.writeError(execErr)
	}
	return nil
}

func (s *RedisSink) writeError(err error) error {
	return errs.Wrap(err, errs.CodeWriteFailed, "failed to add stream entry").
		WithContext("stream", s.stream)
}

func (s *RedisSink) args(row *model.Notification) *redis.XAddArgs {
	values := []interface{}{
		model.Columns[0], s.format.Time(row.NotificationSent),
		model.Columns[1], s.format.Time(row.TimestampFirstTour),
		model.Columns[2], strconv.Itoa(row.Tours),
		model.Columns[3], row.ReceiverID,
		model.Columns[4], row.Message,
	}
	if s.runID != "" {
		values = append(values, "run_id", s.runID)
	}
	args := &redis.XAddArgs{Stream: s.stream, Values: values}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return args
}

// Close closes the client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
