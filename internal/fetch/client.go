package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/toolpad/internal/infrastructure/resilience"
)

var (
	ErrInvalidURL     = errors.New("invalid url")
	ErrInvalidMethod  = errors.New("invalid method")
	ErrInvalidMode    = errors.New("invalid mode")
	ErrHostNotAllowed = errors.New("host not allowed")
	ErrBodyTooLarge   = errors.New("response body too large")
	ErrTooManyHops    = errors.New("too many redirects")
)

// maxRedirects matches the limit net/http applies by default.
const maxRedirects = 10

// Config controls outbound requests.
type Config struct {
	Timeout      time.Duration
	MaxRetries   int
	MaxBodyBytes int64
	AllowedHosts []string
	RateLimit    float64 // requests per second, 0 = unlimited
	UserAgent    string
}

// DefaultConfig mirrors the server defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		MaxRetries:   3,
		MaxBodyBytes: 10 << 20,
		UserAgent:    "toolpad-functions/1.0",
	}
}

// Recorder receives one sample per completed fetch.
type Recorder interface {
	RecordFetch(outcome string)
}

// BreakerRecorder is implemented by recorders that also count per-host
// circuit breaker transitions.
type BreakerRecorder interface {
	RecordBreakerTransition(to string)
}

// Request is an outbound request as described by sandboxed code.
type Request struct {
	URL     string
	Method  string
	Headers [][2]string
	Body    *string
	Mode    string
}

// Response is the status line and headers of a completed request. Body is
// left unread; the caller must close it or call ReadText.
type Response struct {
	URL         string
	Status      int
	StatusText  string
	Headers     [][2]string
	ContentType string
	Body        io.ReadCloser
	MaxBytes    int64
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Client wraps resty with an allowlist, rate limiting and per-host circuit
// breakers.
type Client struct {
	resty    *resty.Client
	limiter  *rate.Limiter
	breakers *resilience.Group
	allow    *Allowlist
	maxBody  int64
	metrics  Recorder
	logger   *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.metrics = r }
}

// WithLogger logs circuit breaker transitions.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient builds a client. It fails only on malformed host patterns.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	allow, err := NewAllowlist(cfg.AllowedHosts)
	if err != nil {
		return nil, err
	}

	// Only the pooled transport is taken from retryablehttp; resty owns
	// the retries.
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil

	restyClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(250 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(_ *resty.Response, err error) bool {
			return err != nil && !errors.Is(err, ErrHostNotAllowed) && !errors.Is(err, ErrTooManyHops)
		}).
		SetRedirectPolicy(redirectPolicy(allow)).
		SetTransport(retryClient.HTTPClient.Transport)
	if cfg.UserAgent != "" {
		restyClient.SetHeader("User-Agent", cfg.UserAgent)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	c := &Client{
		resty:   restyClient,
		limiter: limiter,
		allow:   allow,
		maxBody: cfg.MaxBodyBytes,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breakers = resilience.NewGroup(resilience.Policy{
		Probes:   3,
		Window:   60 * time.Second,
		Cooldown: 30 * time.Second,
		Trip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 10 ||
				(counts.Requests >= 20 && float64(counts.Failures)/float64(counts.Requests) > 0.7)
		},
		OnChange: c.breakerChanged,
	}, 0)
	return c, nil
}

// redirectPolicy holds every redirect hop to the allowlist the first URL
// was checked against.
func redirectPolicy(allow *Allowlist) resty.RedirectPolicy {
	return resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("%w: stopped after %d", ErrTooManyHops, maxRedirects)
		}
		if !allow.Permits(req.URL.Hostname()) {
			return fmt.Errorf("%w: redirect to %s", ErrHostNotAllowed, req.URL.Hostname())
		}
		return nil
	})
}

func (c *Client) breakerChanged(host string, from, to resilience.State) {
	log := c.logger.Info
	if to == resilience.StateOpen {
		log = c.logger.Warn
	}
	log("Fetch circuit breaker changed state",
		zap.String("key", "fetch"),
		zap.String("host", host),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
	if r, ok := c.metrics.(BreakerRecorder); ok {
		r.RecordBreakerTransition(to.String())
	}
}

// Do sends req and returns once the response headers arrive.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.do(ctx, req)
	if c.metrics != nil {
		c.metrics.RecordFetch(outcome(resp, err))
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, req Request) (*Response, error) {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, req.URL)
	}
	if !c.allow.Permits(u.Hostname()) {
		return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Hostname())
	}
	method, err := normalizeMethod(req.Method)
	if err != nil {
		return nil, err
	}
	switch req.Mode {
	case "", "cors", "no-cors", "same-origin", "navigate":
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	r := c.resty.R().SetContext(ctx).SetDoNotParseResponse(true)
	for _, h := range req.Headers {
		r.Header.Add(h[0], h[1])
	}
	if req.Body != nil {
		r.SetBody(*req.Body)
	}

	resp, err := resilience.Do(c.breakers.Get(u.Host), func() (*resty.Response, error) {
		return r.Execute(method, u.String())
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Redacted(), err)
	}

	final := u.String()
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		final = raw.Request.URL.String()
	}
	return &Response{
		URL:         final,
		Status:      resp.StatusCode(),
		StatusText:  statusText(resp.StatusCode(), resp.Status()),
		Headers:     headerPairs(resp.Header()),
		ContentType: resp.Header().Get("Content-Type"),
		Body:        resp.RawBody(),
		MaxBytes:    c.maxBody,
	}, nil
}

// Breakers exposes the per-host breaker states.
func (c *Client) Breakers() map[string]resilience.State {
	return c.breakers.States()
}

func normalizeMethod(m string) (string, error) {
	if m == "" {
		return http.MethodGet, nil
	}
	upper := strings.ToUpper(m)
	switch upper {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return upper, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMethod, m)
}

func statusText(code int, status string) string {
	text := strings.TrimSpace(strings.TrimPrefix(status, strconv.Itoa(code)))
	if text == "" {
		return http.StatusText(code)
	}
	return text
}

// headerPairs flattens headers into lower-cased name/value pairs sorted by
// name. Repeated headers keep their received order.
func headerPairs(h http.Header) [][2]string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	var pairs [][2]string
	for _, name := range names {
		lower := strings.ToLower(name)
		for _, v := range h[name] {
			pairs = append(pairs, [2]string{lower, v})
		}
	}
	return pairs
}

func outcome(resp *Response, err error) string {
	switch {
	case err != nil:
		return "error"
	case resp.Status >= 500:
		return "5xx"
	case resp.Status >= 400:
		return "4xx"
	default:
		return "ok"
	}
}
