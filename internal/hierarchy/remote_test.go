package hierarchy

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/zjrosen/issuetree/internal/issue"
)

// mockRemote is a testify mock of Remote.
type mockRemote struct {
	mock.Mock
}

func (m *mockRemote) Execute(ctx context.Context, query string, site issue.Site) ([]issue.Skeleton, error) {
	args := m.Called(ctx, query, site)
	issues, _ := args.Get(0).([]issue.Skeleton)
	return issues, args.Error(1)
}

func (m *mockRemote) FetchByKey(ctx context.Context, key string, site issue.Site) (issue.Skeleton, error) {
	args := m.Called(ctx, key, site)
	s, _ := args.Get(0).(issue.Skeleton)
	return s, args.Error(1)
}

// poolRemote serves fetches from a fixed pool of issues and counts calls.
type poolRemote struct {
	results []issue.Skeleton
	pool    map[string]issue.Skeleton
	failing map[string]bool

	mu      sync.Mutex
	fetched map[string]int
	queries int
}

func newPoolRemote(results []issue.Skeleton, pool ...issue.Skeleton) *poolRemote {
	p := &poolRemote{
		results: results,
		pool:    make(map[string]issue.Skeleton),
		failing: make(map[string]bool),
		fetched: make(map[string]int),
	}
	for _, s := range pool {
		p.pool[s.Key] = s
	}
	return p
}

func (p *poolRemote) Execute(_ context.Context, _ string, _ issue.Site) ([]issue.Skeleton, error) {
	p.mu.Lock()
	p.queries++
	p.mu.Unlock()
	return append([]issue.Skeleton(nil), p.results...), nil
}

func (p *poolRemote) FetchByKey(_ context.Context, key string, site issue.Site) (issue.Skeleton, error) {
	p.mu.Lock()
	p.fetched[key]++
	p.mu.Unlock()

	if p.failing[key] {
		return issue.Skeleton{}, &issue.RemoteError{Op: "fetch", Site: site.ID, Key: key, StatusCode: 503, Err: fmt.Errorf("unavailable")}
	}
	s, ok := p.pool[key]
	if !ok {
		return issue.Skeleton{}, &issue.RemoteError{Op: "fetch", Site: site.ID, Key: key, StatusCode: 404, Err: issue.ErrNotFound}
	}
	return s, nil
}

func (p *poolRemote) totalFetches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.fetched {
		n += c
	}
	return n
}

var testSite = issue.Site{ID: "cloud", Name: "Cloud", Product: issue.ProductJira}

// shape renders a forest as nested keys, e.g. "P1{S1} E1[S2]".
func shape(roots []*Node) string {
	out := ""
	for i, n := range roots {
		if i > 0 {
			out += " "
		}
		out += n.Key()
		if len(n.Children) > 0 {
			out += "{" + shape(n.Children) + "}"
		}
		if len(n.EpicChildren) > 0 {
			out += "[" + shape(n.EpicChildren) + "]"
		}
	}
	return out
}
