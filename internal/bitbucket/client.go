// Package bitbucket reads pull-request comments from Bitbucket Cloud.
package bitbucket

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

	"github.com/zjrosen/issuetree/internal/comments"
	"github.com/zjrosen/issuetree/internal/log"
)

// DefaultBaseURL is the Bitbucket Cloud API root.
const DefaultBaseURL = "https://api.bitbucket.org"

const (
	pageLen           = 100
	defaultMaxRetries = 3
	defaultTimeout    = 30 * time.Second
)

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
	return fmt.Sprintf("bitbucket API returned %d: %s", e.StatusCode, body)
}

// Client provides read access to Bitbucket Cloud.
type Client struct {
	baseURL    string
	username   string
	token      string
	httpClient *http.Client
	maxRetries int
	newBackOff func() backoff.BackOff
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetries bounds retries of transport errors, 5xx and 429.
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

// NewClient creates a client. An empty baseURL uses DefaultBaseURL. With a
// username, token is sent as an app password over basic auth; otherwise
// it is sent as a bearer access token.
func NewClient(baseURL, username, token string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		username:   username,
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxRetries,
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

type page struct {
	Values []apiComment `json:"values"`
	Next   string       `json:"next"`
}

type apiComment struct {
	ID      int64 `json:"id"`
	Deleted bool  `json:"deleted"`
	Content struct {
		Raw string `json:"raw"`
	} `json:"content"`
	Parent *struct {
		ID int64 `json:"id"`
	} `json:"parent"`
	User *struct {
		DisplayName string `json:"display_name"`
	} `json:"user"`
	Inline *struct {
		Path string `json:"path"`
		From *int   `json:"from"`
		To   *int   `json:"to"`
	} `json:"inline"`
	CreatedOn time.Time `json:"created_on"`
	UpdatedOn time.Time `json:"updated_on"`
}

func (a apiComment) toComment() comments.Comment {
	c := comments.Comment{
		ID:      a.ID,
		Author:  "Unknown User",
		Raw:     a.Content.Raw,
		Deleted: a.Deleted,
		Created: a.CreatedOn,
		Updated: a.UpdatedOn,
	}
	if a.Deleted || strings.TrimSpace(c.Raw) == "" {
		c.Raw = comments.DeletedText
	}
	if a.Parent != nil {
		c.ParentID = a.Parent.ID
	}
	if a.User != nil && a.User.DisplayName != "" {
		c.Author = a.User.DisplayName
	}
	if a.Inline != nil {
		in := &comments.Inline{Path: a.Inline.Path}
		if a.Inline.From != nil {
			in.From = *a.Inline.From
		}
		if a.Inline.To != nil {
			in.To = *a.Inline.To
		}
		c.Inline = in
	}
	return c
}

// PullRequestComments returns every comment on a pull request in API
// order, following next links. repo is "workspace/slug".
func (c *Client) PullRequestComments(ctx context.Context, repo string, prID int) ([]comments.Comment, error) {
	workspace, slug, ok := strings.Cut(repo, "/")
	if !ok || workspace == "" || slug == "" {
		return nil, fmt.Errorf("repository must be workspace/slug, got %q", repo)
	}

	next := fmt.Sprintf("%s/2.0/repositories/%s/%s/pullrequests/%d/comments?pagelen=%s",
		c.baseURL, url.PathEscape(workspace), url.PathEscape(slug), prID, strconv.Itoa(pageLen))

	var out []comments.Comment
	for next != "" {
		body, err := c.get(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("list comments of %s#%d: %w", repo, prID, err)
		}
		var p page
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("parse comments response: %w", err)
		}
		for _, v := range p.Values {
			out = append(out, v.toComment())
		}
		next = p.Next
	}

	log.Debug(log.CatHTTP, "Bitbucket comments loaded", "repo", repo, "pr", prID, "comments", len(out))
	return out, nil
}

// Thread fetches a pull request's comments and nests replies.
func (c *Client) Thread(ctx context.Context, repo string, prID int) ([]*comments.Comment, error) {
	flat, err := c.PullRequestComments(ctx, repo, prID)
	if err != nil {
		return nil, err
	}
	return comments.Thread(flat), nil
}

func (c *Client) get(ctx context.Context, apiURL string) ([]byte, error) {
	if c.token == "" {
		return nil, fmt.Errorf("bitbucket token not configured")
	}

	var body []byte
	op := func() error {
		b, err := c.doRequest(ctx, apiURL)
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
		log.Warn(log.CatHTTP, "Retrying Bitbucket request", "url", apiURL, "wait", wait, "error", err)
	})
	return body, err
}

func (c *Client) doRequest(ctx context.Context, apiURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(c.username + ":" + c.token))
		req.Header.Set("Authorization", "Basic "+auth)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return b, nil
}

func retryable(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusTooManyRequests || he.StatusCode >= 500
	}
	return true
}
