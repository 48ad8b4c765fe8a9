// Package source opens input locations and creates output locations.
//
// A location is a local path, "-" for stdin/stdout, an http(s) URL or an
// s3://bucket/key URI.
package source

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	errs "github.com/logflow/bundler/pkg/errors"
	"github.com/logflow/bundler/pkg/storage/s3"
)

// Kind classifies a location.
type Kind int

const (
	KindFile Kind = iota
	KindStdio
	KindHTTP
	KindS3
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindStdio:
		return "stdio"
	case KindHTTP:
		return "http"
	case KindS3:
		return "s3"
	default:
		return "unknown"
	}
}

// KindOf returns the kind of a location.
func KindOf(location string) Kind {
	switch {
	case location == "-":
		return KindStdio
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return KindHTTP
	case strings.HasPrefix(location, s3.Scheme):
		return KindS3
	default:
		return KindFile
	}
}

// IsRemote reports whether the location needs a download.
func IsRemote(location string) bool {
	k := KindOf(location)
	return k == KindHTTP || k == KindS3
}

// Opener opens and creates locations.
type Opener struct {
	HTTPClient *http.Client
	S3Config   s3.Config
	Stdin      io.Reader
	Stdout     io.Writer

	s3Once   sync.Once
	s3Client *s3.Client
	s3Err    error
}

// NewOpener returns an Opener using the process stdio and a 60s HTTP timeout.
func NewOpener(s3cfg s3.Config) *Opener {
	return &Opener{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		S3Config:   s3cfg,
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
	}
}

func (o *Opener) s3(ctx context.Context) (*s3.Client, error) {
	o.s3Once.Do(func() {
		o.s3Client, o.s3Err = s3.NewClient(ctx, o.S3Config)
	})
	return o.s3Client, o.s3Err
}

// IsGzip reports whether the location names a gzip-compressed file.
func IsGzip(location string) bool {
	location, _, _ = strings.Cut(location, "?")
	return strings.HasSuffix(strings.ToLower(location), ".gz")
}

// Open returns a reader for location, decompressing ".gz" inputs.
func (o *Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	r, err := o.open(ctx, location)
	if err != nil || !IsGzip(location) {
		return r, err
	}
	gz, err := gzip.NewReader(r)
	if err != nil {
		r.Close()
		return nil, errs.Wrap(err, errs.CodeInvalidFormat, "invalid gzip input").WithContext("location", location)
	}
	return &gzipReadCloser{Reader: gz, src: r}, nil
}

type gzipReadCloser struct {
	*gzip.Reader
	src io.Closer
}

func (g *gzipReadCloser) Close() error {
	err := g.Reader.Close()
	if cerr := g.src.Close(); err == nil {
		err = cerr
	}
	return err
}

func (o *Opener) open(ctx context.Context, location string) (io.ReadCloser, error) {
	switch KindOf(location) {
	case KindStdio:
		return io.NopCloser(o.Stdin), nil

	case KindHTTP:
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeSourceFailed, "invalid URL").WithContext("url", location)
		}
		resp, err := o.HTTPClient.Do(req)
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeSourceFailed, "download failed").WithContext("url", location)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, errs.New(errs.CodeSourceFailed, "unexpected HTTP status").
				WithContext("url", location).
				WithContext("status", resp.StatusCode)
		}
		return resp.Body, nil

	case KindS3:
		bucket, key, ok := s3.ParseURI(location)
		if !ok {
			return nil, errs.New(errs.CodeSourceFailed, "invalid S3 URI").WithContext("uri", location)
		}
		client, err := o.s3(ctx)
		if err != nil {
			return nil, err
		}
		r, _, err := client.Reader(ctx, bucket, key)
		return r, err

	default:
		f, err := os.Open(location)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.FileNotFound(location)
		}
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeSourceFailed, "failed to open input").WithContext("path", location)
		}
		return f, nil
	}
}

// Create returns a writer for location. Output to "-" is never closed.
func (o *Opener) Create(ctx context.Context, location, contentType string) (io.WriteCloser, error) {
	switch KindOf(location) {
	case KindStdio:
		return nopWriteCloser{o.Stdout}, nil

	case KindHTTP:
		return nil, errs.New(errs.CodeWriteFailed, "cannot write to an HTTP location").WithContext("url", location)

	case KindS3:
		bucket, key, ok := s3.ParseURI(location)
		if !ok {
			return nil, errs.New(errs.CodeWriteFailed, "invalid S3 URI").WithContext("uri", location)
		}
		client, err := o.s3(ctx)
		if err != nil {
			return nil, err
		}
		return client.Writer(ctx, bucket, key, contentType), nil

	default:
		f, err := os.Create(location)
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeWriteFailed, "failed to create output").WithContext("path", location)
		}
		return f, nil
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
