package docsource

import (
	"archive/zip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lakeside-credit/spread-cli/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	f := NewFetcher(t.TempDir(), 5*time.Second)
	f.retry = resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
	return f
}

func TestFetch_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("balance sheet contents"))
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	path, err := f.Fetch(context.Background(), srv.URL+"/docs/balance_sheet.pdf")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "balance sheet contents", string(data))
	assert.Equal(t, "balance_sheet.pdf", filepath.Base(path))
}

func TestFetch_HTTPRetriesTransient(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	path, err := f.Fetch(context.Background(), srv.URL+"/doc.txt")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	data, _ := os.ReadFile(path)
	assert.Equal(t, "ok", string(data))
}

func TestFetch_HTTPPermanentFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	_, err := f.Fetch(context.Background(), srv.URL+"/missing.pdf")
	require.Error(t, err)
	assert.Equal(t, 1, calls, "404 is not retried")
}

func TestFetch_LocalFile(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "statement.txt")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0644))

	f := newTestFetcher(t)
	path, err := f.Fetch(context.Background(), local)
	require.NoError(t, err)
	assert.Equal(t, local, path)
}

func TestFetch_LocalMissing(t *testing.T) {
	f := newTestFetcher(t)
	_, err := f.Fetch(context.Background(), "/nonexistent/file.pdf")
	assert.Error(t, err)
}

func TestFetch_UnsupportedScheme(t *testing.T) {
	f := newTestFetcher(t)
	_, err := f.Fetch(context.Background(), "gopher://example.com/doc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}

func TestFetch_FTPEmptyPath(t *testing.T) {
	f := newTestFetcher(t)
	_, err := f.Fetch(context.Background(), "ftp://drops.bank.example")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty path")
}

func writeBundle(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.zip")
	out, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())
	return path
}

func TestExtractBundle(t *testing.T) {
	bundle := writeBundle(t, map[string]string{
		"case-1/balance_sheet.pdf": "pdf bytes",
		"case-1/rent_roll.xlsx":    "xlsx bytes",
	})

	dest := t.TempDir()
	files, err := ExtractBundle(bundle, dest)
	require.NoError(t, err)
	require.Len(t, files, 2)

	for _, p := range files {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
}

func TestExtractBundle_ZipSlip(t *testing.T) {
	bundle := writeBundle(t, map[string]string{
		"../escape.txt": "nope",
	})

	_, err := ExtractBundle(bundle, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal bundle path")
}
