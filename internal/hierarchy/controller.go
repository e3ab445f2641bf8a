package hierarchy

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/zjrosen/issuetree/internal/issue"
	"github.com/zjrosen/issuetree/internal/log"
	"github.com/zjrosen/issuetree/internal/pubsub"
)

// State is the controller's resolution state.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Pipeline is the part of Resolver the controller drives.
type Pipeline interface {
	Resolve(ctx context.Context, query string, site issue.Site) (*Resolution, error)
	Flat(ctx context.Context, query string, site issue.Site) (*Resolution, error)
}

// ChangeEvent is published when a resolution completes or is invalidated.
type ChangeEvent struct {
	Generation uint64
	Query      string
	SiteID     string
	State      State
}

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	State      State
	Generation uint64
	Query      string
	Site       issue.Site
	Roots      []*Node
	// Err is the *QueryError of the last attempt, if it failed.
	Err      error
	Warnings []error
	RunID    string
}

// Partial reports whether the last resolution had non-fatal failures.
func (s Snapshot) Partial() bool { return len(s.Warnings) > 0 }

// Controller owns the resolved forest of one query.
//
// Every SetQuery or Invalidate starts a new generation. A resolution carries
// the generation it started in and its result is dropped if the generation
// moved on while it ran, so the last request always wins.
type Controller struct {
	pipeline Pipeline
	nest     bool
	broker   *pubsub.Broker[ChangeEvent]
	flight   singleflight.Group

	mu       sync.Mutex
	query    string
	site     issue.Site
	hasQuery bool
	gen      uint64
	state    State
	current  *Resolution
	err      error
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithNestSubtasks selects nested (default) or flat display. Flat display
// skips gap-fill and lists every query result as a root.
func WithNestSubtasks(nest bool) ControllerOption {
	return func(c *Controller) { c.nest = nest }
}

// NewController creates an idle controller with no query.
func NewController(p Pipeline, opts ...ControllerOption) *Controller {
	c := &Controller{
		pipeline: p,
		nest:     true,
		broker:   pubsub.NewBroker[ChangeEvent](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetQuery discards any resolved forest and makes query the current one.
// Resolution happens on the next RootNodes call that allows fetching.
func (c *Controller) SetQuery(query string, site issue.Site) {
	c.mu.Lock()
	c.query, c.site, c.hasQuery = query, site, true
	ev := c.resetLocked()
	c.mu.Unlock()

	log.Debug(log.CatTree, "Query set", "query", query, "site", site.ID, "generation", ev.Generation)
	c.broker.Publish(pubsub.InvalidatedEvent, ev)
}

// Invalidate forces the next RootNodes call to resolve again.
func (c *Controller) Invalidate() {
	c.mu.Lock()
	ev := c.resetLocked()
	c.mu.Unlock()

	log.Debug(log.CatTree, "Invalidated", "generation", ev.Generation)
	c.broker.Publish(pubsub.InvalidatedEvent, ev)
}

func (c *Controller) resetLocked() ChangeEvent {
	c.gen++
	c.state = StateIdle
	c.current = nil
	c.err = nil
	return ChangeEvent{Generation: c.gen, Query: c.query, SiteID: c.site.ID, State: StateIdle}
}

// RootNodes returns the roots of the current forest.
//
// When nothing is resolved yet and allowRemoteFetch is true, it runs the
// pipeline and caches the result; concurrent callers in the same generation
// share a single run. When allowRemoteFetch is false it never blocks and
// returns nil until a resolution exists. A failed query yields no roots;
// the error is available from Snapshot.
func (c *Controller) RootNodes(ctx context.Context, allowRemoteFetch bool) []*Node {
	c.mu.Lock()
	if c.state == StateResolved {
		roots := c.rootsLocked()
		c.mu.Unlock()
		return roots
	}
	if !c.hasQuery || !allowRemoteFetch {
		c.mu.Unlock()
		return nil
	}
	gen, query, site := c.gen, c.query, c.site
	c.state = StateResolving
	c.mu.Unlock()

	// The run outlives any single caller: others may be waiting on it, and
	// superseded fetches are left to finish.
	runCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return c.run(runCtx, gen, query, site), nil
	})

	select {
	case <-ctx.Done():
		return nil
	case result := <-ch:
		roots, _ := result.Val.([]*Node)
		return append([]*Node(nil), roots...)
	}
}

// run resolves query for generation gen. A caller that checked the state
// just before an earlier flight of the same generation committed lands here
// after that flight has finished, so the committed forest is reused.
func (c *Controller) run(ctx context.Context, gen uint64, query string, site issue.Site) []*Node {
	c.mu.Lock()
	if c.gen == gen && c.state == StateResolved {
		roots := c.rootsLocked()
		c.mu.Unlock()
		return roots
	}
	c.mu.Unlock()

	var res *Resolution
	var err error
	if c.nest {
		res, err = c.pipeline.Resolve(ctx, query, site)
	} else {
		res, err = c.pipeline.Flat(ctx, query, site)
	}
	return c.commit(gen, res, err)
}

func (c *Controller) commit(gen uint64, res *Resolution, err error) []*Node {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		log.Debug(log.CatTree, "Discarding stale resolution", "generation", gen)
		return nil
	}
	c.state = StateResolved
	c.current = res
	c.err = err
	ev := ChangeEvent{Generation: gen, Query: c.query, SiteID: c.site.ID, State: StateResolved}
	roots := c.rootsLocked()
	c.mu.Unlock()

	if err != nil {
		log.ErrorErr(log.CatTree, "Resolution failed", err, "generation", gen)
	}
	c.broker.Publish(pubsub.ResolvedEvent, ev)
	return roots
}

func (c *Controller) rootsLocked() []*Node {
	if c.current == nil || len(c.current.Roots) == 0 {
		return nil
	}
	return append([]*Node(nil), c.current.Roots...)
}

// ChildrenOf returns the subtasks of node followed by its epic children.
// It never fetches.
func (c *Controller) ChildrenOf(node *Node) []*Node {
	if node == nil {
		return nil
	}
	return node.Expand()
}

// Refresh invalidates and immediately resolves again.
func (c *Controller) Refresh(ctx context.Context) []*Node {
	c.Invalidate()
	return c.RootNodes(ctx, true)
}

// Snapshot returns the controller's current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		State:      c.state,
		Generation: c.gen,
		Query:      c.query,
		Site:       c.site,
		Roots:      c.rootsLocked(),
		Err:        c.err,
	}
	if c.current != nil {
		s.Warnings = append([]error(nil), c.current.Warnings...)
		s.RunID = c.current.RunID
	}
	return s
}

// Subscribe returns change notifications until ctx is done or the
// controller is closed.
func (c *Controller) Subscribe(ctx context.Context) <-chan pubsub.Event[ChangeEvent] {
	return c.broker.Subscribe(ctx)
}

// Close stops change notifications.
func (c *Controller) Close() {
	c.broker.Close()
}
