package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/toolpad/internal/infrastructure/resilience"
)

type countingRecorder struct {
	mu          sync.Mutex
	outcomes    []string
	transitions []string
}

func (r *countingRecorder) RecordBreakerTransition(to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, to)
}

func (r *countingRecorder) RecordFetch(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	cfg.Timeout = 5 * time.Second
	return cfg
}

func newTestClient(t *testing.T, cfg Config, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient(cfg, opts...)
	require.NoError(t, err)
	return c
}

func TestDoSendsRequest(t *testing.T) {
	var got struct {
		method string
		auth   []string
		body   string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.auth = r.Header.Values("X-Token")
		b, _ := io.ReadAll(r.Body)
		got.body = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Add("X-Multi", "a")
		w.Header().Add("X-Multi", "b")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	rec := &countingRecorder{}
	c := newTestClient(t, testConfig(), WithRecorder(rec))

	body := `{"name":"x"}`
	resp, err := c.Do(context.Background(), Request{
		URL:     srv.URL + "/items",
		Method:  "post",
		Headers: [][2]string{{"X-Token", "one"}, {"X-Token", "two"}},
		Body:    &body,
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, []string{"one", "two"}, got.auth)
	assert.Equal(t, body, got.body)

	assert.Equal(t, srv.URL+"/items", resp.URL)
	assert.Equal(t, 201, resp.Status)
	assert.Equal(t, "Created", resp.StatusText)
	assert.True(t, resp.OK())
	assert.Contains(t, resp.Headers, [2]string{"x-multi", "a"})
	assert.Contains(t, resp.Headers, [2]string{"x-multi", "b"})

	text, err := resp.ReadText()
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, text)
	assert.Equal(t, []string{"ok"}, rec.outcomes)
}

func TestDoRejectsBeforeSending(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer srv.Close()

	cfg := testConfig()
	cfg.AllowedHosts = []string{"api.example.com"}
	c := newTestClient(t, cfg)

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"disallowed host", Request{URL: srv.URL}, ErrHostNotAllowed},
		{"bad scheme", Request{URL: "file:///etc/passwd"}, ErrInvalidURL},
		{"unparseable", Request{URL: "http://[::1"}, ErrInvalidURL},
		{"bad method", Request{URL: "https://api.example.com", Method: "BREW"}, ErrInvalidMethod},
		{"bad mode", Request{URL: "https://api.example.com", Mode: "telepathy"}, ErrInvalidMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Do(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, hits)
}

func TestDoFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("moved"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, testConfig())
	resp, err := c.Do(context.Background(), Request{URL: srv.URL + "/old"})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, srv.URL+"/new", resp.URL)
}

func TestDoChecksRedirectsAgainstAllowlist(t *testing.T) {
	var reached atomic.Bool
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached.Store(true)
		_, _ = w.Write([]byte("internal secret"))
	}))
	defer internal.Close()
	target, err := url.Parse(internal.URL)
	require.NoError(t, err)
	target.Host = "localhost:" + target.Port()

	var hits atomic.Int32
	public := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, target.String(), http.StatusFound)
	}))
	defer public.Close()

	cfg := testConfig()
	cfg.AllowedHosts = []string{"127.0.0.1"}
	cfg.MaxRetries = 3
	c := newTestClient(t, cfg)

	_, err = c.Do(context.Background(), Request{URL: public.URL})
	assert.ErrorIs(t, err, ErrHostNotAllowed)
	assert.False(t, reached.Load(), "redirect target outside the allowlist was contacted")
	assert.Equal(t, int32(1), hits.Load(), "allowlist failures are not retried")
}

func TestDoStopsRedirectLoops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig())
	_, err := c.Do(context.Background(), Request{URL: srv.URL + "/"})
	assert.ErrorIs(t, err, ErrTooManyHops)
}

func TestDoTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	rec := &countingRecorder{}
	c := newTestClient(t, testConfig(), WithRecorder(rec))

	_, err := c.Do(context.Background(), Request{URL: addr})
	assert.Error(t, err)
	assert.Equal(t, []string{"error"}, rec.outcomes)

	u, _ := url.Parse(addr)
	assert.Contains(t, c.Breakers(), u.Host)
}

func TestDoOpensBreakerPerHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	rec := &countingRecorder{}
	c := newTestClient(t, testConfig(), WithRecorder(rec))

	for i := 0; i < 10; i++ {
		_, err := c.Do(context.Background(), Request{URL: addr})
		require.Error(t, err)
	}
	_, err := c.Do(context.Background(), Request{URL: addr})
	assert.ErrorIs(t, err, resilience.ErrOpen)
	assert.Equal(t, []string{"open"}, rec.transitions)

	u, _ := url.Parse(addr)
	assert.Equal(t, resilience.StateOpen, c.Breakers()[u.Host])
}

func TestDoHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Do(ctx, Request{URL: srv.URL})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestReadTextLimit(t *testing.T) {
	resp := &Response{Body: io.NopCloser(strings.NewReader("0123456789")), MaxBytes: 4}
	_, err := resp.ReadText()
	assert.ErrorIs(t, err, ErrBodyTooLarge)

	resp = &Response{Body: io.NopCloser(strings.NewReader("0123")), MaxBytes: 4}
	text, err := resp.ReadText()
	require.NoError(t, err)
	assert.Equal(t, "0123", text)
}

func TestDecodeText(t *testing.T) {
	latin1 := []byte{'c', 'a', 'f', 0xe9}

	tests := []struct {
		name        string
		data        []byte
		contentType string
		want        string
	}{
		{"utf-8 without charset", []byte("café"), "text/plain", "café"},
		{"declared latin-1", latin1, "text/plain; charset=ISO-8859-1", "café"},
		{"declared windows-1252", latin1, "text/html; charset=windows-1252", "café"},
		{"unknown charset falls back", []byte("plain"), "text/plain; charset=x-made-up", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeText(tt.data, tt.contentType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllowlist(t *testing.T) {
	a, err := NewAllowlist([]string{"api.example.com", "*.internal.test", " "})
	require.NoError(t, err)

	assert.True(t, a.Permits("api.example.com"))
	assert.True(t, a.Permits("API.EXAMPLE.COM"))
	assert.True(t, a.Permits("svc.internal.test"))
	assert.False(t, a.Permits("example.com"))
	assert.False(t, a.Permits("internal.test"))

	open, err := NewAllowlist(nil)
	require.NoError(t, err)
	assert.True(t, open.Permits("anything.example"))

	_, err = NewAllowlist([]string{"[unclosed"})
	assert.Error(t, err)
}
