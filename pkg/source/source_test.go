package source

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/logflow/bundler/pkg/errors"
	"github.com/logflow/bundler/pkg/storage/s3"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		location string
		expected Kind
	}{
		{"-", KindStdio},
		{"notifications.csv", KindFile},
		{"/data/notifications.csv", KindFile},
		{"https://static-eu-komoot.s3.amazonaws.com/backend/challenge/notifications.csv", KindHTTP},
		{"http://localhost/x.csv", KindHTTP},
		{"s3://bucket/key.csv", KindS3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, KindOf(tt.location), tt.location)
	}
	assert.True(t, IsRemote("s3://b/k"))
	assert.False(t, IsRemote("-"))
	assert.Equal(t, "http", KindHTTP.String())
}

func readString(t *testing.T, r io.ReadCloser) string {
	t.Helper()
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestOpener_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b,c,d\n"), 0o644))

	r, err := NewOpener(s3.Config{}).Open(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "a,b,c,d\n", readString(t, r))

	_, err = NewOpener(s3.Config{}).Open(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	assert.True(t, errs.IsCode(err, errs.CodeFileNotFound))
}

func TestOpener_Stdio(t *testing.T) {
	var out bytes.Buffer
	o := &Opener{Stdin: strings.NewReader("from stdin"), Stdout: &out}

	r, err := o.Open(context.Background(), "-")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", readString(t, r))

	w, err := o.Create(context.Background(), "-", "text/csv")
	require.NoError(t, err)
	_, _ = io.WriteString(w, "rows")
	require.NoError(t, w.Close())
	assert.Equal(t, "rows", out.String())
}

func TestOpener_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/notifications.csv" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "2017-08-01 00:06:47,U1,F1,Geir\n")
	}))
	defer srv.Close()

	o := NewOpener(s3.Config{})
	r, err := o.Open(context.Background(), srv.URL+"/notifications.csv")
	require.NoError(t, err)
	assert.Equal(t, "2017-08-01 00:06:47,U1,F1,Geir\n", readString(t, r))

	_, err = o.Open(context.Background(), srv.URL+"/missing.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=404")

	_, err = o.Create(context.Background(), srv.URL+"/out.csv", "")
	assert.True(t, errs.IsCode(err, errs.CodeWriteFailed))
}

func TestOpener_CreateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := NewOpener(s3.Config{}).Create(context.Background(), path, "text/csv")
	require.NoError(t, err)
	_, _ = io.WriteString(w, "x")
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestOpener_InvalidS3URI(t *testing.T) {
	_, err := NewOpener(s3.Config{}).Open(context.Background(), "s3://bucket-only")
	assert.True(t, errs.IsCode(err, errs.CodeSourceFailed))
}

func TestOpener_Gzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = io.WriteString(gz, "2017-08-01 00:06:47,U1,F1,Geir\n")
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "events.csv.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	r, err := NewOpener(s3.Config{}).Open(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "2017-08-01 00:06:47,U1,F1,Geir\n", readString(t, r))

	bad := filepath.Join(t.TempDir(), "bad.csv.gz")
	require.NoError(t, os.WriteFile(bad, []byte("plain text"), 0o644))
	_, err = NewOpener(s3.Config{}).Open(context.Background(), bad)
	assert.True(t, errs.IsCode(err, errs.CodeInvalidFormat))

	assert.True(t, IsGzip("https://host/events.csv.GZ?sig=1"))
	assert.False(t, IsGzip("events.csv"))
}
