package release

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func releaseServer(t *testing.T, status *atomic.Int32, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if code := status.Load(); code != http.StatusOK {
			w.WriteHeader(int(code))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tag_name":"v0.1.40","html_url":"https://example.com/r/v0.1.40","published_at":"2024-03-01T10:00:00Z"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLatest(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusOK)
	srv := releaseServer(t, &status, &hits)

	c := NewChecker(Config{URL: srv.URL, CacheTTL: time.Hour}, nil)
	latest, err := c.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v0.1.40", latest.Tag)
	assert.Equal(t, "https://example.com/r/v0.1.40", latest.URL)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), latest.PublishedAt.UTC())

	_, err = c.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second call is served from cache")
}

func TestLatestRefreshesAfterTTL(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusOK)
	srv := releaseServer(t, &status, &hits)

	now := time.Unix(0, 0)
	c := NewChecker(Config{URL: srv.URL, CacheTTL: time.Minute}, nil)
	c.now = func() time.Time { return now }

	_, err := c.Latest(context.Background())
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	status.Store(http.StatusNotFound)
	latest, err := c.Latest(context.Background())
	require.NoError(t, err, "stale value is served when refresh fails")
	assert.Equal(t, "v0.1.40", latest.Tag)
	assert.Equal(t, int32(2), hits.Load())
}

func TestLatestError(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusNotFound)
	srv := releaseServer(t, &status, &hits)

	c := NewChecker(Config{URL: srv.URL, CacheTTL: time.Hour}, nil)
	_, err := c.Latest(context.Background())
	assert.ErrorContains(t, err, "unexpected status")
}
