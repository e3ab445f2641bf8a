// Package jira is a read-only Jira REST client and the hierarchy remote
// built on it.
package jira

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/zjrosen/issuetree/internal/log"
)

// Default custom field IDs used by Jira Cloud company-managed projects.
const (
	DefaultEpicLinkField = "customfield_10014"
	DefaultEpicNameField = "customfield_10011"
)

const (
	defaultPageSize   = 100
	defaultMaxRetries = 3
	defaultTimeout    = 30 * time.Second
)

// baseFields is the set of fields the skeleton mapping reads.
var baseFields = []string{"summary", "status", "priority", "issuetype", "parent", "subtasks"}

// HTTPError is a non-2xx response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("jira API returned %d: %s", e.StatusCode, body)
}

// Client provides read access to a Jira instance.
type Client struct {
	baseURL       string
	username      string
	token         string
	httpClient    *http.Client
	epicLinkField string
	epicNameField string
	pageSize      int
	maxRetries    int
	newBackOff    func() backoff.BackOff
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithEpicFields overrides the epic link and epic name custom field IDs.
// Empty values keep the defaults.
func WithEpicFields(link, name string) Option {
	return func(c *Client) {
		if link != "" {
			c.epicLinkField = link
		}
		if name != "" {
			c.epicNameField = name
		}
	}
}

// WithPageSize sets maxResults for search pages.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithMaxRetries bounds retries of transport errors, 5xx and 429. Zero
// disables retries.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBackOff sets the retry schedule. f must return a fresh BackOff on
// every call.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = f }
}

// NewClient creates a client. With a username, requests use basic auth
// with token as the API token; without one, token is sent as a bearer
// personal access token.
func NewClient(baseURL, username, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		username:      username,
		token:         token,
		httpClient:    &http.Client{Timeout: defaultTimeout},
		epicLinkField: DefaultEpicLinkField,
		epicNameField: DefaultEpicNameField,
		pageSize:      defaultPageSize,
		maxRetries:    defaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 250 * time.Millisecond
			bo.MaxElapsedTime = 15 * time.Second
			return bo
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) fields() string {
	return strings.Join(append(append([]string{}, baseFields...), c.epicLinkField, c.epicNameField), ",")
}

// SearchIssues runs jql and returns every matching issue in result order,
// following pagination.
func (c *Client) SearchIssues(ctx context.Context, jql string) ([]Issue, error) {
	var all []Issue
	startAt := 0

	for {
		params := url.Values{
			"jql":        {jql},
			"fields":     {c.fields()},
			"startAt":    {strconv.Itoa(startAt)},
			"maxResults": {strconv.Itoa(c.pageSize)},
		}
		body, err := c.get(ctx, "/rest/api/3/search?"+params.Encode())
		if err != nil {
			return nil, fmt.Errorf("search issues: %w", err)
		}

		var page SearchResult
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("parse search response: %w", err)
		}
		all = append(all, page.Issues...)

		if len(page.Issues) == 0 || startAt+len(page.Issues) >= page.Total {
			break
		}
		startAt += len(page.Issues)
	}

	log.Debug(log.CatHTTP, "Jira search complete", "jql", jql, "issues", len(all))
	return all, nil
}

// GetIssue fetches a single issue by key (e.g., "PROJ-123").
func (c *Client) GetIssue(ctx context.Context, key string) (*Issue, error) {
	path := fmt.Sprintf("/rest/api/3/issue/%s?fields=%s", url.PathEscape(key), url.QueryEscape(c.fields()))
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", key, err)
	}

	var out Issue
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse issue response: %w", err)
	}
	return &out, nil
}

// get performs a GET with retries on transient failures.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("jira URL not configured")
	}
	if c.token == "" {
		return nil, fmt.Errorf("jira API token not configured")
	}

	var body []byte
	op := func() error {
		b, err := c.doRequest(ctx, c.baseURL+path)
		if err == nil {
			body = b
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxRetries)), ctx)
	err := backoff.RetryNotify(op, bo, func(err error, wait time.Duration) {
		log.Warn(log.CatHTTP, "Retrying Jira request", "path", path, "wait", wait, "error", err)
	})
	return body, err
}

func (c *Client) doRequest(ctx context.Context, apiURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setAuth(req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "issuetree/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

// setAuth sets the appropriate authentication header on the request.
func (c *Client) setAuth(req *http.Request) {
	if c.username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(c.username + ":" + c.token))
		req.Header.Set("Authorization", "Basic "+auth)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
}

// retryable reports whether err is worth another attempt: transport
// failures, 5xx and 429.
func retryable(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusTooManyRequests || he.StatusCode >= 500
	}
	return true
}
