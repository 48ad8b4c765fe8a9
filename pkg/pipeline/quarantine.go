package pipeline

import (
	"io"
	"os"
	"sync"

	"github.com/goccy/go-json"

	errs "github.com/logflow/bundler/pkg/errors"
)

// QuarantineWriter appends failed rows and groups to a JSON Lines stream.
type QuarantineWriter struct {
	mu      sync.Mutex
	enc     *json.Encoder
	closer  io.Closer
	written int64
}

// NewQuarantineWriter writes records to w.
func NewQuarantineWriter(w io.Writer) *QuarantineWriter {
	q := &QuarantineWriter{enc: json.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		q.closer = c
	}
	return q
}

// OpenQuarantineFile appends records to path, creating it if needed.
func OpenQuarantineFile(path string) (*QuarantineWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeWriteFailed, "failed to open quarantine file").
			WithContext("path", path)
	}
	return NewQuarantineWriter(f), nil
}

// Write encodes one record as a line.
func (q *QuarantineWriter) Write(rec ErrorRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.enc.Encode(rec); err != nil {
		return errs.Wrap(err, errs.CodeWriteFailed, "failed to write quarantine record")
	}
	q.written++
	return nil
}

// Written returns the number of records written.
func (q *QuarantineWriter) Written() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.written
}

// Close closes the underlying file, if any.
func (q *QuarantineWriter) Close() error {
	if q.closer == nil {
		return nil
	}
	return q.closer.Close()
}
