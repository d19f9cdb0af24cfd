package asset

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreworld/explorer/internal/httpclient"
)

// allowLocalhost rewires a Fetcher's client to permit httptest's 127.0.0.1
// servers, which SaferClient's default SSRF protection would otherwise
// reject as a private address.
func allowLocalhost(f *Fetcher) {
	f.client = httpclient.WrapClient(f.client.Client)
}

func TestFetch_DownloadsAndCaches(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("hello-world"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewFetcher(srv.URL, dir, time.Second)
	allowLocalhost(f)

	data, err := f.Fetch(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "hello-world", string(data))
	assert.Equal(t, 1, hits)

	cached, err := os.ReadFile(filepath.Join(dir, "abc123"))
	require.NoError(t, err)
	assert.Equal(t, "hello-world", string(cached))
}

func TestFetch_ServesFromCacheWithoutNetworkOnSecondCall(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewFetcher(srv.URL, dir, time.Second)
	allowLocalhost(f)

	_, err := f.Fetch(context.Background(), "hash-1")
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), "hash-1")
	require.NoError(t, err)
	assert.Equal(t, 1, hits, "second fetch must be served from cache")
}

func TestFetch_GivesUpAfterMaxAttempts(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewFetcher(srv.URL, dir, time.Second)
	allowLocalhost(f)
	f.sleep = func(time.Duration) {}

	_, err := f.Fetch(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, MaxFetchAttempts, hits)
}

func TestHas_ReflectsCacheState(t *testing.T) {
	dir := t.TempDir()
	f := NewFetcher("http://example.invalid", dir, time.Second)
	assert.False(t, f.Has("x"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x"), []byte("y"), 0o644))
	assert.True(t, f.Has("x"))
}
