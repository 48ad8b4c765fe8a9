// Package s3 reads input objects from and writes results to AWS S3.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	errs "github.com/logflow/bundler/pkg/errors"
)

// Scheme is the URI scheme of S3 locations.
const Scheme = "s3://"

// Config holds S3 client configuration.
type Config struct {
	// Region is the AWS region (e.g., "eu-central-1").
	Region string

	// Endpoint overrides the default S3 endpoint (for S3-compatible services).
	Endpoint string

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack).
	UsePathStyle bool

	// Credentials (optional - uses default chain if not provided).
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	DownloadTimeout time.Duration
	UploadTimeout   time.Duration
}

// DefaultConfig returns sensible defaults for S3 configuration.
func DefaultConfig() Config {
	return Config{
		DownloadTimeout: 5 * time.Minute,
		UploadTimeout:   5 * time.Minute,
	}
}

// ParseURI splits "s3://bucket/key" into bucket and key.
func ParseURI(uri string) (bucket, key string, ok bool) {
	if !strings.HasPrefix(uri, Scheme) {
		return "", "", false
	}
	bucket, key, _ = strings.Cut(strings.TrimPrefix(uri, Scheme), "/")
	if bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// Client provides S3 operations.
type Client struct {
	cfg    Config
	client *s3.Client
}

// NewClient creates a new S3 client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeSourceFailed, "failed to load AWS config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = DefaultConfig().DownloadTimeout
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = DefaultConfig().UploadTimeout
	}
	return &Client{cfg: cfg, client: client}, nil
}

// Reader returns a reader for an object and its size.
func (c *Client) Reader(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DownloadTimeout)

	output, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		cancel()
		return nil, 0, errs.Wrap(err, errs.CodeSourceFailed, "failed to get object").
			WithContext("uri", Scheme+bucket+"/"+key)
	}

	return &cancelOnCloseReader{
		ReadCloser: output.Body,
		cancel:     cancel,
	}, aws.ToInt64(output.ContentLength), nil
}

type cancelOnCloseReader struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *cancelOnCloseReader) Close() error {
	r.cancel()
	return r.ReadCloser.Close()
}

// Writer returns a writer that uploads the object on Close.
func (c *Client) Writer(ctx context.Context, bucket, key, contentType string) io.WriteCloser {
	return &objectWriter{ctx: ctx, c: c, bucket: bucket, key: key, contentType: contentType}
}

// objectWriter buffers a result file and uploads it with a single PUT.
type objectWriter struct {
	ctx         context.Context
	c           *Client
	bucket      string
	key         string
	contentType string

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (w *objectWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, errs.New(errs.CodeWriteFailed, "writer is closed")
	}
	return w.buf.Write(p)
}

func (w *objectWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	ctx, cancel := context.WithTimeout(w.ctx, w.c.cfg.UploadTimeout)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buf.Bytes()),
	}
	if w.contentType != "" {
		input.ContentType = aws.String(w.contentType)
	}
	if _, err := w.c.client.PutObject(ctx, input); err != nil {
		return errs.Wrap(err, errs.CodeWriteFailed, fmt.Sprintf("failed to upload %d bytes", w.buf.Len())).
			WithContext("uri", Scheme+w.bucket+"/"+w.key)
	}
	return nil
}
