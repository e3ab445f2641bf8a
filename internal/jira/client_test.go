package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} })}, opts...)
	return NewClient(srv.URL, "alice", "secret", opts...)
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestSearchIssues_Paginates(t *testing.T) {
	var pages []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/api/3/search", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "project = CORE", q.Get("jql"))
		require.Equal(t, "2", q.Get("maxResults"))
		require.Contains(t, q.Get("fields"), DefaultEpicLinkField)
		pages = append(pages, q.Get("startAt"))

		start, _ := strconv.Atoi(q.Get("startAt"))
		var issues []map[string]any
		for i := start; i < start+2 && i < 3; i++ {
			issues = append(issues, map[string]any{"key": fmt.Sprintf("CORE-%d", i+1), "fields": map[string]any{}})
		}
		writeJSON(t, w, map[string]any{"startAt": start, "maxResults": 2, "total": 3, "issues": issues})
	}, WithPageSize(2))

	issues, err := client.SearchIssues(context.Background(), "project = CORE")
	require.NoError(t, err)
	require.Len(t, issues, 3)
	assert.Equal(t, "CORE-3", issues[2].Key)
	assert.Equal(t, []string{"0", "2"}, pages)
}

func TestSearchIssues_StopsOnEmptyPage(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(t, w, map[string]any{"total": 50, "issues": []any{}})
	})

	issues, err := client.SearchIssues(context.Background(), "x")
	require.NoError(t, err)
	require.Empty(t, issues)
	require.Equal(t, int32(1), calls.Load(), "a short total must not loop forever")
}

func TestClient_Auth(t *testing.T) {
	var got string
	handler := func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		writeJSON(t, w, map[string]any{"key": "CORE-1", "fields": map[string]any{}})
	}

	basic := newTestClient(t, handler)
	_, err := basic.GetIssue(context.Background(), "CORE-1")
	require.NoError(t, err)
	require.Equal(t, "Basic YWxpY2U6c2VjcmV0", got)

	srv := httptest.NewServer(http.HandlerFunc(handler))
	defer srv.Close()
	bearer := NewClient(srv.URL, "", "pat-token")
	_, err = bearer.GetIssue(context.Background(), "CORE-1")
	require.NoError(t, err)
	require.Equal(t, "Bearer pat-token", got)
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"server error", http.StatusBadGateway},
		{"rate limited", http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) < 3 {
					w.WriteHeader(tt.status)
					return
				}
				writeJSON(t, w, map[string]any{"key": "CORE-1", "fields": map[string]any{}})
			})

			got, err := client.GetIssue(context.Background(), "CORE-1")
			require.NoError(t, err)
			require.Equal(t, "CORE-1", got.Key)
			require.Equal(t, int32(3), calls.Load())
		})
	}
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithMaxRetries(2))

	_, err := client.GetIssue(context.Background(), "CORE-1")
	require.Error(t, err)
	require.Equal(t, int32(3), calls.Load(), "one attempt plus two retries")

	var he *HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusServiceUnavailable, he.StatusCode)
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"errorMessages":["Issue does not exist"]}`, http.StatusNotFound)
	})

	_, err := client.GetIssue(context.Background(), "CORE-404")
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())
	require.Contains(t, err.Error(), "Issue does not exist")
}

func TestClient_Unconfigured(t *testing.T) {
	_, err := NewClient("", "", "token").GetIssue(context.Background(), "X-1")
	require.ErrorContains(t, err, "URL not configured")

	_, err = NewClient("https://example.atlassian.net", "", "").GetIssue(context.Background(), "X-1")
	require.ErrorContains(t, err, "token not configured")
}

func TestClient_CanceledContext(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.GetIssue(ctx, "CORE-1")
	require.Error(t, err)
	require.LessOrEqual(t, calls.Load(), int32(1))
}
