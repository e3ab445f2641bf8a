// Package sites routes remote calls to the backend registered for each
// site and optionally caches key fetches.
package sites

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/zjrosen/issuetree/internal/hierarchy"
	"github.com/zjrosen/issuetree/internal/issue"
	"github.com/zjrosen/issuetree/internal/log"
)

// ErrUnknownSite is wrapped when no backend is registered for a site.
var ErrUnknownSite = errors.New("unknown site")

// Router dispatches by site ID. It implements hierarchy.Remote.
type Router struct {
	mu       sync.RWMutex
	sites    map[string]issue.Site
	backends map[string]hierarchy.Remote
}

var _ hierarchy.Remote = (*Router)(nil)

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		sites:    make(map[string]issue.Site),
		backends: make(map[string]hierarchy.Remote),
	}
}

// Register adds or replaces the backend for site.
func (r *Router) Register(site issue.Site, backend hierarchy.Remote) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sites[site.ID] = site
	r.backends[site.ID] = backend
	log.Debug(log.CatSite, "Registered site", "id", site.ID, "product", site.Product)
}

// Site returns the registered site with id.
func (r *Router) Site(id string) (issue.Site, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sites[id]
	return s, ok
}

// Sites returns all registered sites ordered by ID.
func (r *Router) Sites() []issue.Site {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]issue.Site, 0, len(r.sites))
	for _, s := range r.sites {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Router) backend(op string, site issue.Site, key string) (hierarchy.Remote, error) {
	r.mu.RLock()
	b, ok := r.backends[site.ID]
	r.mu.RUnlock()
	if !ok {
		return nil, &issue.RemoteError{Op: op, Site: site.ID, Key: key, Err: ErrUnknownSite}
	}
	return b, nil
}

func (r *Router) Execute(ctx context.Context, query string, site issue.Site) ([]issue.Skeleton, error) {
	b, err := r.backend("execute", site, "")
	if err != nil {
		return nil, err
	}
	return b.Execute(ctx, query, site)
}

func (r *Router) FetchByKey(ctx context.Context, key string, site issue.Site) (issue.Skeleton, error) {
	b, err := r.backend("fetch", site, key)
	if err != nil {
		return issue.Skeleton{}, err
	}
	return b.FetchByKey(ctx, key, site)
}
