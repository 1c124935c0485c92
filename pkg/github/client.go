// Package github is a caching, rate-limit aware client for the GitHub REST
// API. Every GET is cached with its validators and replayed conditionally,
// so unchanged resources cost nothing against the rate limit.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/buildherd/buildherd/pkg/logger"
	"github.com/buildherd/buildherd/pkg/retry"
)

const (
	// DefaultBaseURL is the public GitHub API endpoint
	DefaultBaseURL = "https://api.github.com"

	// DefaultRateLimitThreshold keeps a reserve of calls for humans
	DefaultRateLimitThreshold = 250

	defaultUserAgent = "buildherd"
	maxBodySize      = 16 << 20
	resetMargin      = time.Second
)

// HTTPClient performs a single HTTP round trip
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Client
type Options struct {
	BaseURL    string
	Token      string
	HTTPClient HTTPClient
	Cache      *Cache
	Logger     logger.Logger

	// RateLimitThreshold refuses calls once the remaining budget drops
	// below it. Zero disables the check.
	RateLimitThreshold int

	// RequestsPerSecond paces outgoing requests. Zero means unlimited.
	RequestsPerSecond float64

	// Sleep replaces the context aware sleep used while waiting for a
	// rate-limit reset.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client is safe for concurrent use
type Client struct {
	baseURL   *url.URL
	token     string
	http      HTTPClient
	cache     *Cache
	limiter   *rate.Limiter
	threshold int
	log       logger.Logger
	sleep     func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	remaining int
	limit     int
	reset     time.Time
}

// Resource is a decoded-on-demand API reply
type Resource struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v
func (r *Resource) Decode(v interface{}) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// ETag returns the entity tag validator, if any
func (r *Resource) ETag() string {
	return r.Header.Get("ETag")
}

// NextURL returns the rel="next" link of a paginated reply
func (r *Resource) NextURL() string {
	return parseNextLink(r.Header.Get("Link"))
}

// NewClient creates a client from options, applying defaults
func NewClient(opts Options) (*Client, error) {
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid github url %q: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid github url %q: missing scheme or host", base)
	}

	c := &Client{
		baseURL:   u,
		token:     opts.Token,
		http:      opts.HTTPClient,
		cache:     opts.Cache,
		threshold: opts.RateLimitThreshold,
		log:       opts.Logger,
		sleep:     opts.Sleep,
		remaining: -1,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.cache == nil {
		c.cache = NewCache()
	}
	if c.log == nil {
		c.log = logger.Nop()
	}
	if c.sleep == nil {
		c.sleep = retry.Sleep
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c, nil
}

// Cache returns the response cache backing the client
func (c *Client) Cache() *Cache {
	return c.cache
}

// Get reads a resource, replaying cached validators. A 304 reply returns
// the cached payload unchanged.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (*Resource, error) {
	target, err := c.resolve(path, params)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, target)
}

func (c *Client) get(ctx context.Context, target string) (*Resource, error) {
	if err := c.checkRateLimit(ctx); err != nil {
		return nil, err
	}

	key := http.MethodGet + " " + target
	cached, hit := c.cache.Get(key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if hit {
		if etag := cached.ETag(); etag != "" {
			req.Header.Set("If-None-Match", etag)
		}
		if modified := cached.Header.Get("Last-Modified"); modified != "" {
			req.Header.Set("If-Modified-Since", modified)
		}
	}

	res, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode == http.StatusNotModified && hit {
		c.log.Debug("Served from cache", logger.WithField("url", target))
		return cached, nil
	}
	if err := checkResponse(http.MethodGet, target, res); err != nil {
		return nil, err
	}

	c.cache.Set(key, res)
	return res, nil
}

// Post sends a JSON payload. POST replies are never cached.
func (c *Client) Post(ctx context.Context, path string, payload interface{}) (*Resource, error) {
	if err := c.checkRateLimit(ctx); err != nil {
		return nil, err
	}
	target, err := c.resolve(path, nil)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if err := checkResponse(http.MethodPost, target, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Paginate returns a lazy page stream starting at path
func (c *Client) Paginate(path string, params url.Values) (*Pages, error) {
	target, err := c.resolve(path, params)
	if err != nil {
		return nil, err
	}
	return &Pages{client: c, first: target, next: target}, nil
}

// RateLimit returns the last known remaining budget and reset time. A
// negative remaining count means no reply has been seen yet.
func (c *Client) RateLimit() (remaining int, reset time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining, c.reset
}

// RateLimitDelay returns how long to wait from now until the budget resets.
func (c *Client) RateLimitDelay(now time.Time) time.Duration {
	_, reset := c.RateLimit()
	if reset.IsZero() {
		return 0
	}
	delay := reset.Sub(now)
	if delay <= 0 {
		return 0
	}
	return delay + resetMargin
}

// WaitRateLimitReset blocks until the rate-limit budget resets and returns
// the time waited.
func (c *Client) WaitRateLimitReset(ctx context.Context, now time.Time) (time.Duration, error) {
	delay := c.RateLimitDelay(now)
	if delay <= 0 {
		return 0, nil
	}
	c.log.Info("Waiting for rate limit reset",
		logger.WithField("delay", delay.Round(time.Second).String()))
	if err := c.sleep(ctx, delay); err != nil {
		return 0, err
	}
	return delay, nil
}

// checkRateLimit refuses the call when the remaining budget is below the
// threshold. The budget is refreshed once first, since it may have reset
// since the last reply.
func (c *Client) checkRateLimit(ctx context.Context) error {
	if c.threshold <= 0 {
		return nil
	}
	remaining, _ := c.RateLimit()
	if remaining < 0 || remaining >= c.threshold {
		return nil
	}

	if err := c.refreshRateLimit(ctx); err != nil {
		c.log.Warn("Failed to refresh rate limit", logger.WithError(err))
	}
	remaining, reset := c.RateLimit()
	if remaining >= c.threshold {
		return nil
	}
	return &APIError{
		Method:  "CHECK",
		URL:     c.baseURL.String(),
		Message: fmt.Sprintf("%d calls left, resets at %s", remaining, reset.Format(time.RFC3339)),
		Err:     ErrRateLimitThreshold,
	}
}

type rateLimitPayload struct {
	Resources struct {
		Core struct {
			Limit     int   `json:"limit"`
			Remaining int   `json:"remaining"`
			Reset     int64 `json:"reset"`
		} `json:"core"`
	} `json:"resources"`
}

// refreshRateLimit queries the rate-limit endpoint, which does not count
// against the budget.
func (c *Client) refreshRateLimit(ctx context.Context) error {
	target, err := c.resolve("rate_limit", nil)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	res, err := c.do(req)
	if err != nil {
		return err
	}
	if err := checkResponse(http.MethodGet, target, res); err != nil {
		return err
	}

	var payload rateLimitPayload
	if err := res.Decode(&payload); err != nil {
		return fmt.Errorf("failed to decode rate limit: %w", err)
	}
	core := payload.Resources.Core
	c.mu.Lock()
	c.remaining = core.Remaining
	c.limit = core.Limit
	c.reset = time.Unix(core.Reset, 0)
	c.mu.Unlock()
	return nil
}

func (c *Client) do(req *http.Request) (*Resource, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", defaultUserAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &APIError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &APIError{Method: req.Method, URL: req.URL.String(), StatusCode: resp.StatusCode, Err: err}
	}

	c.updateRateLimit(resp.Header)
	c.log.Debug("API call",
		logger.WithField("method", req.Method),
		logger.WithField("url", req.URL.String()),
		logger.WithField("status", resp.StatusCode),
		logger.WithField("duration_ms", time.Since(start).Milliseconds()))

	return &Resource{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (c *Client) updateRateLimit(header http.Header) {
	remaining, err := strconv.Atoi(header.Get("X-RateLimit-Remaining"))
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remaining = remaining
	if limit, err := strconv.Atoi(header.Get("X-RateLimit-Limit")); err == nil {
		c.limit = limit
	}
	if reset, err := strconv.ParseInt(header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		c.reset = time.Unix(reset, 0)
	}
}

// resolve builds an absolute URL with sorted query parameters so equal
// requests share one cache key.
func (c *Client) resolve(path string, params url.Values) (string, error) {
	var u *url.URL
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		parsed, err := url.Parse(path)
		if err != nil {
			return "", fmt.Errorf("invalid url %q: %w", path, err)
		}
		u = parsed
	} else {
		rel, err := url.Parse(strings.TrimLeft(path, "/"))
		if err != nil {
			return "", fmt.Errorf("invalid path %q: %w", path, err)
		}
		base := *c.baseURL
		base.Path = strings.TrimRight(base.Path, "/") + "/"
		u = base.ResolveReference(rel)
	}

	query := u.Query()
	for key, values := range params {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

type errorPayload struct {
	Message string `json:"message"`
}

func checkResponse(method, target string, res *Resource) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		if len(res.Body) == 0 || res.StatusCode == http.StatusNoContent {
			return nil
		}
		mediaType, _, err := mime.ParseMediaType(res.Header.Get("Content-Type"))
		if err != nil || !strings.HasSuffix(mediaType, "json") {
			return &APIError{
				Method:     method,
				URL:        target,
				StatusCode: res.StatusCode,
				Response:   res,
				Err:        ErrUnexpectedContent,
			}
		}
		return nil
	}

	apiErr := APIError{
		Method:     method,
		URL:        target,
		StatusCode: res.StatusCode,
		Response:   res,
	}
	var payload errorPayload
	if json.Unmarshal(res.Body, &payload) == nil {
		apiErr.Message = payload.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(res.StatusCode)
	}
	if res.StatusCode == http.StatusNotFound {
		return &NotFoundError{APIError: apiErr}
	}
	return &apiErr
}

// parseNextLink extracts the rel="next" target of a Link header
func parseNextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range segments[1:] {
			if strings.TrimSpace(param) == `rel="next"` {
				return strings.Trim(target, "<>")
			}
		}
	}
	return ""
}
