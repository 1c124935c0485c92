package jenkins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/buildherd/buildherd/pkg/logger"
)

// HTTPClient performs a single HTTP round trip
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Client
type Options struct {
	URL        string
	User       string
	Token      string
	HTTPClient HTTPClient
	Logger     logger.Logger

	// QueueMax is the number of buildable items still counted as an
	// empty queue
	QueueMax int
}

// Client implements Backend over the Jenkins JSON API
type Client struct {
	baseURL  string
	user     string
	token    string
	http     HTTPClient
	log      logger.Logger
	queueMax int

	crumbMu      sync.Mutex
	crumbFetched bool
	crumbField   string
	crumb        string
}

// NewClient creates a Jenkins client
func NewClient(opts Options) (*Client, error) {
	u, err := url.Parse(opts.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid jenkins url %q", opts.URL)
	}
	c := &Client{
		baseURL:  strings.TrimRight(opts.URL, "/") + "/",
		user:     opts.User,
		token:    opts.Token,
		http:     opts.HTTPClient,
		log:      opts.Logger,
		queueMax: opts.QueueMax,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.log == nil {
		c.log = logger.Nop()
	}
	return c, nil
}

// BaseURL implements Backend
func (c *Client) BaseURL() string {
	return c.baseURL
}

type queueItem struct {
	Buildable bool   `json:"buildable"`
	Blocked   bool   `json:"blocked"`
	Why       string `json:"why"`
}

// IsQueueEmpty implements Backend. Only items waiting for an executor
// count, blocked items do not compete for capacity.
func (c *Client) IsQueueEmpty(ctx context.Context) (bool, error) {
	var payload struct {
		Items []queueItem `json:"items"`
	}
	if err := c.getJSON(ctx, c.baseURL+"queue/api/json", &payload); err != nil {
		return false, err
	}

	waiting := 0
	for _, item := range payload.Items {
		if item.Buildable && !item.Blocked {
			waiting++
		}
	}
	c.log.Debug("Jenkins queue", logger.WithField("waiting", waiting), logger.WithField("max", c.queueMax))
	return waiting <= c.queueMax, nil
}

// BuildFromURL implements Backend
func (c *Client) BuildFromURL(ctx context.Context, buildURL string) (Build, error) {
	if !strings.HasPrefix(buildURL, c.baseURL) {
		return nil, fmt.Errorf("%s: %w", buildURL, ErrForeignURL)
	}
	buildURL = strings.TrimRight(buildURL, "/") + "/"
	if queueItemID(buildURL) != "" {
		item := &queuedBuild{client: c, url: buildURL}
		if err := item.refresh(ctx); err != nil {
			return nil, err
		}
		return item, nil
	}
	return c.build(ctx, buildURL)
}

func (c *Client) build(ctx context.Context, buildURL string) (*build, error) {
	b := &build{client: c, data: buildData{URL: buildURL}}
	if err := c.getJSON(ctx, b.apiURL(), &b.data); err != nil {
		return nil, err
	}
	if b.data.URL == "" {
		b.data.URL = buildURL
	}
	return b, nil
}

// Jobs implements Backend
func (c *Client) Jobs(ctx context.Context) ([]Job, error) {
	var payload struct {
		Jobs []jobData `json:"jobs"`
	}
	if err := c.getJSON(ctx, c.baseURL+"api/json?tree=jobs[name,url,buildable]", &payload); err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(payload.Jobs))
	for _, data := range payload.Jobs {
		jobs = append(jobs, &job{client: c, data: data})
	}
	return jobs, nil
}

func (c *Client) getJSON(ctx context.Context, target string, v interface{}) error {
	r, err := c.call(ctx, http.MethodGet, target, nil, "")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(r.body, v); err != nil {
		return &Error{Method: http.MethodGet, URL: target, Err: fmt.Errorf("failed to decode reply: %w", err)}
	}
	return nil
}

// post sends form and returns the Location header of the reply, if any
func (c *Client) post(ctx context.Context, target string, form url.Values) (string, error) {
	var body io.Reader
	contentType := ""
	if len(form) > 0 {
		body = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}
	r, err := c.call(ctx, http.MethodPost, target, body, contentType)
	if err != nil {
		return "", err
	}
	return r.location, nil
}

type reply struct {
	body     []byte
	location string
}

func (c *Client) call(ctx context.Context, method, target string, body io.Reader, contentType string) (*reply, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if method == http.MethodPost {
		field, crumb, err := c.fetchCrumb(ctx)
		if err != nil {
			return nil, err
		}
		if field != "" {
			req.Header.Set(field, crumb)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Method: method, URL: target, StatusCode: resp.StatusCode, Err: err}
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &Error{Method: method, URL: target, StatusCode: resp.StatusCode, Err: ErrNotFound}
	case resp.StatusCode >= 400:
		return nil, &Error{Method: method, URL: target, StatusCode: resp.StatusCode}
	}
	return &reply{body: data, location: resp.Header.Get("Location")}, nil
}

// fetchCrumb reads the CSRF crumb once. Instances without CSRF protection
// answer 404 and get no crumb header. A failed fetch is retried on the next
// POST.
func (c *Client) fetchCrumb(ctx context.Context) (string, string, error) {
	c.crumbMu.Lock()
	defer c.crumbMu.Unlock()

	if c.crumbFetched {
		return c.crumbField, c.crumb, nil
	}

	var payload struct {
		Field string `json:"crumbRequestField"`
		Crumb string `json:"crumb"`
	}
	err := c.getJSON(ctx, c.baseURL+"crumbIssuer/api/json", &payload)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", "", fmt.Errorf("failed to fetch crumb: %w", err)
	}
	c.crumbFetched = true
	c.crumbField = payload.Field
	c.crumb = payload.Crumb
	return c.crumbField, c.crumb, nil
}
