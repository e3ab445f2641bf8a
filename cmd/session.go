package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/zjrosen/issuetree/internal/config"
	"github.com/zjrosen/issuetree/internal/flags"
	"github.com/zjrosen/issuetree/internal/hierarchy"
	"github.com/zjrosen/issuetree/internal/infrastructure/sqlite"
	"github.com/zjrosen/issuetree/internal/issue"
	"github.com/zjrosen/issuetree/internal/jira"
	"github.com/zjrosen/issuetree/internal/log"
	"github.com/zjrosen/issuetree/internal/paths"
	"github.com/zjrosen/issuetree/internal/sites"
	"github.com/zjrosen/issuetree/internal/tracing"
)

// backend is one opened site.
type backend struct {
	site   issue.Site
	remote hierarchy.Remote
	cache  *sites.CachingRemote
	db     *sqlite.DB // local sites only
}

// session holds the opened sites and the resolver wired over them.
type session struct {
	router   *sites.Router
	backends map[string]*backend
	tracer   *tracing.Provider
	resolver *hierarchy.Resolver
}

func (c *cli) openSession(siteConfigs ...config.SiteConfig) (*session, error) {
	provider, err := tracing.NewProvider(tracingConfig(c.cfg.Tracing))
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}

	s := &session{
		router:   sites.NewRouter(),
		backends: make(map[string]*backend),
		tracer:   provider,
	}
	for _, sc := range siteConfigs {
		if _, ok := s.backends[sc.ID]; ok {
			continue
		}
		b, err := c.openBackend(sc)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.backends[sc.ID] = b
		s.router.Register(b.site, b.remote)
	}

	s.resolver = hierarchy.NewResolver(s.router,
		hierarchy.WithTracer(provider.Tracer()),
		hierarchy.WithConcurrency(c.cfg.Fetch.Concurrency),
		hierarchy.WithSharedFetch(c.flags.EnabledOr(flags.FlagSharedFetch, true)),
	)
	return s, nil
}

func (c *cli) openBackend(sc config.SiteConfig) (*backend, error) {
	b := &backend{site: sc.Site()}

	switch issue.Product(sc.Product) {
	case issue.ProductLocal:
		path := sc.DBPath
		if path == "" {
			path = filepath.Join(paths.ResolveProjectDir(""), sc.ID+".db")
		}
		db, err := sqlite.NewDB(path)
		if err != nil {
			return nil, fmt.Errorf("opening local site %s: %w", sc.ID, err)
		}
		b.db = db
		b.remote = db.Store()
	case issue.ProductJira:
		client := jira.NewClient(sc.BaseURL, sc.Username, sc.Token(),
			jira.WithTimeout(c.cfg.Fetch.Timeout),
			jira.WithMaxRetries(c.cfg.Fetch.MaxRetries),
			jira.WithEpicFields(sc.EpicLinkField, sc.EpicNameField),
		)
		b.remote = jira.NewRemote(client)
	default:
		return nil, fmt.Errorf("site %s is a %s site and cannot run issue queries", sc.ID, sc.Product)
	}

	if c.cfg.Cache.Enabled && c.flags.EnabledOr(flags.FlagFetchCache, true) {
		b.cache = sites.NewCachingRemote(b.remote, c.cfg.Cache.TTL)
		b.remote = b.cache
		log.Debug(log.CatCache, "Fetch cache enabled", "site", sc.ID, "ttl", c.cfg.Cache.TTL)
	}
	return b, nil
}

func tracingConfig(tc config.TracingConfig) tracing.Config {
	out := tracing.DefaultConfig()
	out.Enabled = tc.Enabled
	if tc.Exporter != "" {
		out.Exporter = tc.Exporter
	}
	out.FilePath = tc.FilePath
	if out.FilePath == "" {
		out.FilePath = config.DefaultTracesFilePath()
	}
	if tc.OTLPEndpoint != "" {
		out.OTLPEndpoint = tc.OTLPEndpoint
	}
	if tc.SampleRate > 0 {
		out.SampleRate = tc.SampleRate
	}
	return out
}

// dbPaths returns the database files of the opened local sites.
func (s *session) dbPaths() []string {
	var out []string
	for _, b := range s.backends {
		if b.db != nil {
			out = append(out, b.db.Path())
		}
	}
	return out
}

// flushCaches drops cached fetches so the next resolution sees fresh data.
func (s *session) flushCaches(ctx context.Context) {
	for id, b := range s.backends {
		if b.cache == nil {
			continue
		}
		if err := b.cache.Flush(ctx); err != nil {
			log.WarnErr(log.CatCache, "Failed to flush fetch cache", err, "site", id)
		}
	}
}

// Close releases every opened site and flushes traces.
func (s *session) Close() {
	var errs []error
	for _, b := range s.backends {
		if b.db != nil {
			errs = append(errs, b.db.Close())
		}
	}
	if s.tracer != nil {
		errs = append(errs, s.tracer.Shutdown(context.Background()))
	}
	if err := errors.Join(errs...); err != nil {
		log.WarnErr(log.CatSite, "Error closing session", err)
	}
}
