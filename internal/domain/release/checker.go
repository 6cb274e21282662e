package release

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Latest describes the newest published release.
type Latest struct {
	Tag         string    `json:"tag"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
}

// githubRelease is the subset of the releases API payload that is read.
type githubRelease struct {
	TagName     string    `json:"tag_name"`
	HTMLURL     string    `json:"html_url"`
	PublishedAt time.Time `json:"published_at"`
}

// Config controls the lookup.
type Config struct {
	URL      string
	CacheTTL time.Duration
	Timeout  time.Duration
}

// Checker looks up the latest release and caches the answer for CacheTTL.
// Concurrent callers share one cached value.
type Checker struct {
	config Config
	client *resty.Client
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	cached  *Latest
	fetched time.Time
}

// NewChecker creates a checker
func NewChecker(cfg Config, logger *zap.Logger) *Checker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetHeader("Accept", "application/vnd.github+json")
	return &Checker{
		config: cfg,
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Latest returns the newest release. A failed refresh falls back to the
// previously cached value when there is one.
func (c *Checker) Latest(ctx context.Context) (*Latest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && c.now().Sub(c.fetched) < c.config.CacheTTL {
		latest := *c.cached
		return &latest, nil
	}

	latest, err := c.fetch(ctx)
	if err != nil {
		if c.cached != nil {
			c.logger.Warn("Release lookup failed, serving cached value",
				zap.String("url", c.config.URL), zap.Error(err))
			stale := *c.cached
			return &stale, nil
		}
		return nil, err
	}
	c.cached, c.fetched = latest, c.now()
	out := *latest
	return &out, nil
}

func (c *Checker) fetch(ctx context.Context) (*Latest, error) {
	resp, err := c.client.R().SetContext(ctx).Get(c.config.URL)
	if err != nil {
		return nil, fmt.Errorf("release lookup: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("release lookup: unexpected status %s", resp.Status())
	}

	var payload githubRelease
	if err := sonic.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("release lookup: %w", err)
	}
	if payload.TagName == "" {
		return nil, fmt.Errorf("release lookup: response has no tag")
	}
	return &Latest{
		Tag:         payload.TagName,
		URL:         payload.HTMLURL,
		PublishedAt: payload.PublishedAt,
	}, nil
}
