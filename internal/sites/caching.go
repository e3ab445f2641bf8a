package sites

import (
	"context"
	"time"

	"github.com/zjrosen/issuetree/internal/cachemanager"
	"github.com/zjrosen/issuetree/internal/hierarchy"
	"github.com/zjrosen/issuetree/internal/issue"
)

type fetchRequest struct {
	key  string
	site issue.Site
}

// CachingRemote caches FetchByKey results of another Remote for ttl.
// Query execution is never cached.
type CachingRemote struct {
	next    hierarchy.Remote
	ttl     time.Duration
	manager *cachemanager.InMemoryCacheManager[string, issue.Skeleton]
	cache   *cachemanager.ReadThroughCache[string, issue.Skeleton, fetchRequest]
}

var _ hierarchy.Remote = (*CachingRemote)(nil)

// NewCachingRemote wraps next. A non-positive ttl uses
// cachemanager.DefaultExpiration.
func NewCachingRemote(next hierarchy.Remote, ttl time.Duration) *CachingRemote {
	if ttl <= 0 {
		ttl = cachemanager.DefaultExpiration
	}
	c := &CachingRemote{
		next:    next,
		ttl:     ttl,
		manager: cachemanager.NewInMemoryCacheManager[string, issue.Skeleton]("issues", ttl, cachemanager.DefaultCleanupInterval),
	}
	c.cache = cachemanager.NewReadThroughCache[string, issue.Skeleton, fetchRequest](c.manager, c.load, false)
	return c
}

func (c *CachingRemote) load(ctx context.Context, req fetchRequest) (issue.Skeleton, error) {
	return c.next.FetchByKey(ctx, req.key, req.site)
}

func (c *CachingRemote) Execute(ctx context.Context, query string, site issue.Site) ([]issue.Skeleton, error) {
	return c.next.Execute(ctx, query, site)
}

// FetchByKey returns a copy of the cached issue, loading it on a miss.
func (c *CachingRemote) FetchByKey(ctx context.Context, key string, site issue.Site) (issue.Skeleton, error) {
	s, err := c.cache.Get(ctx, site.ID+"/"+key, fetchRequest{key: key, site: site}, c.ttl)
	if err != nil {
		return issue.Skeleton{}, err
	}
	return s.Clone(), nil
}

// Flush drops every cached issue.
func (c *CachingRemote) Flush(ctx context.Context) error {
	return c.cache.Flush(ctx)
}

// Stats reports cache effectiveness.
func (c *CachingRemote) Stats() cachemanager.Stats {
	return c.manager.Stats()
}
