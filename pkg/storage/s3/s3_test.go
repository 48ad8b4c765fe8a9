package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/logflow/bundler/pkg/errors"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri    string
		bucket string
		key    string
		ok     bool
	}{
		{"s3://static/backend/notifications.csv", "static", "backend/notifications.csv", true},
		{"s3://bucket/key", "bucket", "key", true},
		{"s3://bucket/", "", "", false},
		{"s3://bucket", "", "", false},
		{"https://bucket/key", "", "", false},
	}

	for _, tt := range tests {
		bucket, key, ok := ParseURI(tt.uri)
		assert.Equal(t, tt.ok, ok, tt.uri)
		assert.Equal(t, tt.bucket, bucket, tt.uri)
		assert.Equal(t, tt.key, key, tt.uri)
	}
}

// fakeS3 serves path-style GET and PUT requests from memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		data, ok := f.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>not found</Message></Error>`)
			return
		}
		_, _ = w.Write(data)
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = data
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeS3) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), Config{
		Region:          "eu-central-1",
		Endpoint:        srv.URL,
		UsePathStyle:    true,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	require.NoError(t, err)
	return client, fake
}

func TestClient_ReaderAndWriter(t *testing.T) {
	client, fake := newTestClient(t)
	ctx := context.Background()

	w := client.Writer(ctx, "results", "2017-08-01/notifications.csv", "text/csv")
	_, err := io.WriteString(w, "notification_sent,timestamp_first_tour,tours,receiver_id,message\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.True(t, errs.IsCode(err, errs.CodeWriteFailed))

	assert.Contains(t, fake.objects, "/results/2017-08-01/notifications.csv")

	r, size, err := client.Reader(ctx, "results", "2017-08-01/notifications.csv")
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)
	assert.Contains(t, string(data), "receiver_id")
}

func TestClient_ReaderMissingObject(t *testing.T) {
	client, _ := newTestClient(t)

	_, _, err := client.Reader(context.Background(), "results", "missing.csv")
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeSourceFailed))
	assert.Contains(t, err.Error(), "s3://results/missing.csv")
}
