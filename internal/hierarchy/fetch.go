package hierarchy

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/zjrosen/issuetree/internal/issue"
)

// fetchAll fetches keys concurrently. Successful fetches are returned in key
// order; failures are returned separately and never abort the others.
func fetchAll(ctx context.Context, keys []string, fetch FetchFunc) ([]issue.Skeleton, []error) {
	if len(keys) == 0 {
		return nil, nil
	}

	results := make([]issue.Skeleton, len(keys))
	errs := make([]error, len(keys))

	var g errgroup.Group
	for i, key := range keys {
		g.Go(func() error {
			results[i], errs[i] = fetch(ctx, key)
			return nil
		})
	}
	_ = g.Wait()

	var fetched []issue.Skeleton
	var failed []error
	for i := range keys {
		if errs[i] != nil {
			failed = append(failed, errs[i])
			continue
		}
		fetched = append(fetched, results[i])
	}
	return fetched, failed
}

type fetchOutcome struct {
	issue issue.Skeleton
	err   error
}

// fetchMemo gives each key at most one remote call per resolution run, even
// when the parent and epic resolvers both ask for it.
type fetchMemo struct {
	fetch FetchFunc

	group singleflight.Group
	mu    sync.Mutex
	done  map[string]fetchOutcome
}

func newFetchMemo(fetch FetchFunc) *fetchMemo {
	return &fetchMemo{fetch: fetch, done: make(map[string]fetchOutcome)}
}

func (m *fetchMemo) Fetch(ctx context.Context, key string) (issue.Skeleton, error) {
	m.mu.Lock()
	if out, ok := m.done[key]; ok {
		m.mu.Unlock()
		return out.issue.Clone(), out.err
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do(key, func() (any, error) {
		m.mu.Lock()
		out, ok := m.done[key]
		m.mu.Unlock()
		if ok {
			return out.issue, out.err
		}

		s, err := m.fetch(ctx, key)
		// A context error belongs to this caller, not to the key.
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			m.mu.Lock()
			m.done[key] = fetchOutcome{issue: s, err: err}
			m.mu.Unlock()
		}
		return s, err
	})
	s, _ := v.(issue.Skeleton)
	return s.Clone(), err
}
