// Package hierarchy rebuilds a parent/child issue forest from the flat result
// of a saved query. Parents and epics missing from the result are fetched,
// combined with the result, and assembled so that every issue appears
// exactly once. Controller owns the resolved forest for one query and
// serves it to a tree consumer.
package hierarchy

import (
	"context"

	"github.com/zjrosen/issuetree/internal/issue"
)

// QueryExecutor runs a query against a site.
// An empty result is valid and must not be reported as an error.
type QueryExecutor interface {
	Execute(ctx context.Context, query string, site issue.Site) ([]issue.Skeleton, error)
}

// KeyFetcher fetches a single issue by key.
type KeyFetcher interface {
	FetchByKey(ctx context.Context, key string, site issue.Site) (issue.Skeleton, error)
}

// Remote is everything the resolver needs from a backend.
type Remote interface {
	QueryExecutor
	KeyFetcher
}

// FetchFunc fetches one issue for a resolver. The site is bound by the caller.
type FetchFunc func(ctx context.Context, key string) (issue.Skeleton, error)
