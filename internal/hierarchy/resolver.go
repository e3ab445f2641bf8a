package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/zjrosen/issuetree/internal/issue"
	"github.com/zjrosen/issuetree/internal/log"
)

// Span names and attribute keys emitted by the resolver.
const (
	SpanResolve = "hierarchy.resolve"
	SpanExecute = "hierarchy.execute"
	SpanFetch   = "hierarchy.fetch"

	AttrSiteID   = "site.id"
	AttrQuery    = "query"
	AttrIssueKey = "issue.key"
	AttrRunID    = "run.id"
)

// DefaultConcurrency bounds in-flight gap-fill fetches per run.
const DefaultConcurrency = 8

// Resolution is the outcome of one pipeline run.
type Resolution struct {
	RunID string
	Query string
	Site  issue.Site
	Roots []*Node
	// Results is the raw query result, in query order.
	Results []issue.Skeleton
	// Warnings are non-fatal: failed gap-fill fetches and broken cycles.
	Warnings []error
	// Fetches counts remote key fetches issued by this run.
	Fetches  int
	Duration time.Duration

	started time.Time
}

// Partial reports whether the forest is smaller than it should be.
func (r *Resolution) Partial() bool { return len(r.Warnings) > 0 }

// Resolver runs the query, gap-fill and assembly pipeline.
type Resolver struct {
	remote      Remote
	tracer      trace.Tracer
	concurrency int
	sharedFetch bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTracer sets the tracer for resolution spans.
// A nil tracer disables tracing.
func WithTracer(t trace.Tracer) Option {
	return func(r *Resolver) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithConcurrency bounds in-flight fetches per run. Values below 1 use
// DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithSharedFetch toggles sharing one fetch between the parent and epic
// resolvers when a key is missing as both.
func WithSharedFetch(enabled bool) Option {
	return func(r *Resolver) { r.sharedFetch = enabled }
}

// NewResolver creates a resolver over remote.
func NewResolver(remote Remote, opts ...Option) *Resolver {
	r := &Resolver{
		remote:      remote,
		tracer:      noop.NewTracerProvider().Tracer("issuetree/hierarchy"),
		concurrency: DefaultConcurrency,
		sharedFetch: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve executes query on site and assembles the full forest.
// The only returned error is a *QueryError; fetch failures are reported as
// warnings on the Resolution.
func (r *Resolver) Resolve(ctx context.Context, query string, site issue.Site) (*Resolution, error) {
	res, ctx, span := r.begin(ctx, query, site)
	defer span.End()

	results, err := r.execute(ctx, query, site)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res.Results = results

	if len(results) == 0 {
		log.Debug(log.CatResolve, "Query returned no issues", "query", query, "run", res.RunID)
		res.Duration = time.Since(res.started)
		span.SetStatus(codes.Ok, "")
		return res, nil
	}

	var calls atomic.Int64
	fetch := r.fetcher(site, res.RunID, &calls)

	// The two resolvers have no data dependency on each other.
	var parents ParentResult
	var epics EpicResult
	var g errgroup.Group
	g.Go(func() error {
		parents = ResolveParents(ctx, results, fetch)
		return nil
	})
	g.Go(func() error {
		epics = ResolveEpics(ctx, results, fetch)
		return nil
	})
	_ = g.Wait()

	roots, anomaly := Assemble(AssemblyInput{
		Results:       results,
		Parents:       parents.Fetched,
		Epics:         epics.Epics,
		EpicChildKeys: epics.ChildKeys,
	})

	res.Roots = roots
	res.Warnings = append(append(parents.Warnings, epics.Warnings...), errorsOf(anomaly)...)
	res.Fetches = int(calls.Load())
	res.Duration = time.Since(res.started)

	span.SetAttributes(
		attribute.Int("results", len(results)),
		attribute.Int("fetches", res.Fetches),
		attribute.Int("warnings", len(res.Warnings)),
	)
	span.SetStatus(codes.Ok, "")
	log.Info(log.CatResolve, "Resolved hierarchy",
		"run", res.RunID, "results", len(results), "roots", len(roots),
		"fetches", res.Fetches, "warnings", len(res.Warnings), "duration", res.Duration)
	return res, nil
}

// Flat executes query and returns every distinct result as a root, with no
// gap-fill and no nesting.
func (r *Resolver) Flat(ctx context.Context, query string, site issue.Site) (*Resolution, error) {
	res, ctx, span := r.begin(ctx, query, site)
	defer span.End()

	results, err := r.execute(ctx, query, site)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res.Results = results

	seen := make(map[string]bool, len(results))
	for _, s := range results {
		if seen[s.Key] {
			continue
		}
		seen[s.Key] = true
		res.Roots = append(res.Roots, &Node{Issue: s.Bare()})
	}
	res.Duration = time.Since(res.started)
	span.SetStatus(codes.Ok, "")
	return res, nil
}

// begin prepares a Resolution and the root span for a run.
func (r *Resolver) begin(ctx context.Context, query string, site issue.Site) (*Resolution, context.Context, trace.Span) {
	res := &Resolution{RunID: uuid.NewString(), Query: query, Site: site, started: time.Now()}
	ctx, span := r.tracer.Start(ctx, SpanResolve,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(AttrRunID, res.RunID),
			attribute.String(AttrSiteID, site.ID),
			attribute.String(AttrQuery, query),
		),
	)
	return res, ctx, span
}

func (r *Resolver) execute(ctx context.Context, query string, site issue.Site) ([]issue.Skeleton, error) {
	ctx, span := r.tracer.Start(ctx, SpanExecute,
		trace.WithAttributes(attribute.String(AttrSiteID, site.ID), attribute.String(AttrQuery, query)))
	defer span.End()

	log.Debug(log.CatQuery, "Executing query", "query", query, "site", site.ID)
	results, err := r.remote.Execute(ctx, query, site)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.ErrorErr(log.CatQuery, "Query failed", err, "query", query, "site", site.ID)
		return nil, &QueryError{Query: query, Site: site.ID, Err: err}
	}

	// Query results never carry subtasks: those were matched or not by the
	// query itself, and the assembler derives structure from parent keys.
	out := make([]issue.Skeleton, len(results))
	for i, s := range results {
		out[i] = s.Bare()
		if out[i].SiteID == "" {
			out[i].SiteID = site.ID
		}
	}
	span.SetAttributes(attribute.Int("results", len(out)))
	return out, nil
}

// fetcher returns the FetchFunc shared by both resolvers of one run.
func (r *Resolver) fetcher(site issue.Site, runID string, calls *atomic.Int64) FetchFunc {
	sem := semaphore.NewWeighted(int64(r.concurrency))

	fetch := func(ctx context.Context, key string) (issue.Skeleton, error) {
		if err := sem.Acquire(ctx, 1); err != nil {
			return issue.Skeleton{}, &issue.RemoteError{Op: "fetch", Site: site.ID, Key: key, Err: err}
		}
		defer sem.Release(1)

		ctx, span := r.tracer.Start(ctx, SpanFetch, trace.WithAttributes(
			attribute.String(AttrRunID, runID),
			attribute.String(AttrSiteID, site.ID),
			attribute.String(AttrIssueKey, key),
		))
		defer span.End()

		calls.Add(1)
		s, err := r.remote.FetchByKey(ctx, key, site)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			var re *issue.RemoteError
			if !errors.As(err, &re) {
				err = &issue.RemoteError{Op: "fetch", Site: site.ID, Key: key, Err: err}
			}
			return issue.Skeleton{}, err
		}
		if s.Key == "" {
			return issue.Skeleton{}, &issue.RemoteError{Op: "fetch", Site: site.ID, Key: key,
				Err: fmt.Errorf("remote returned an issue without a key")}
		}
		if s.SiteID == "" {
			s.SiteID = site.ID
		}
		return s, nil
	}

	if !r.sharedFetch {
		return fetch
	}
	return newFetchMemo(fetch).Fetch
}

func errorsOf(err error) []error {
	if err == nil {
		return nil
	}
	return []error{err}
}
