package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/issuetree/internal/config"
	"github.com/zjrosen/issuetree/internal/hierarchy"
	"github.com/zjrosen/issuetree/internal/issue"
	"github.com/zjrosen/issuetree/internal/log"
	"github.com/zjrosen/issuetree/internal/pubsub"
	"github.com/zjrosen/issuetree/internal/render"
	"github.com/zjrosen/issuetree/internal/watcher"
)

type treeOptions struct {
	query string
	site  string
	flat  bool
	depth int
	watch bool
}

// treeTarget is one query to render.
type treeTarget struct {
	title string
	query string
	site  config.SiteConfig
}

func newTreeCmd(c *cli) *cobra.Command {
	var opts treeOptions
	cmd := &cobra.Command{
		Use:   "tree [query-name]",
		Short: "Show the issues of a query as a tree",
		Long: `Show the issues of a saved query, or of --query, as a tree.

With no arguments every enabled saved query is shown. Parents and epics that
are not part of the result are fetched so children appear under them.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runTree(cmd.Context(), cmd.OutOrStdout(), args, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.query, "query", "q", "", "run this query instead of a saved one")
	cmd.Flags().StringVarP(&opts.site, "site", "s", "", "site to query (default: the query's site, then the first site)")
	cmd.Flags().BoolVar(&opts.flat, "flat", false, "list results without resolving parents and epics")
	cmd.Flags().IntVar(&opts.depth, "depth", 0, "levels to show, 0 for all")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "re-render when a local site's database changes")
	return cmd
}

func (c *cli) treeTargets(args []string, opts treeOptions) ([]treeTarget, error) {
	pick := func(siteID string) (config.SiteConfig, error) {
		if opts.site != "" {
			siteID = opts.site
		}
		return c.site(siteID, issue.ProductJira, issue.ProductLocal)
	}

	switch {
	case opts.query != "":
		if len(args) > 0 {
			return nil, errors.New("give either a saved query name or --query, not both")
		}
		sc, err := pick("")
		if err != nil {
			return nil, err
		}
		return []treeTarget{{title: opts.query, query: opts.query, site: sc}}, nil

	case len(args) == 1:
		q, ok := c.cfg.FindQuery(args[0])
		if !ok {
			return nil, fmt.Errorf("no saved query %q; see 'issuetree query list'", args[0])
		}
		sc, err := pick(q.SiteID)
		if err != nil {
			return nil, err
		}
		return []treeTarget{{title: q.Name, query: q.Query, site: sc}}, nil
	}

	queries := c.cfg.EnabledQueries()
	if len(queries) == 0 {
		return nil, errors.New("no saved queries; pass --query or add one with 'issuetree query add'")
	}
	targets := make([]treeTarget, 0, len(queries))
	for _, q := range queries {
		sc, err := pick(q.SiteID)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.Name, err)
		}
		targets = append(targets, treeTarget{title: q.Name, query: q.Query, site: sc})
	}
	return targets, nil
}

// treeView pairs a controller with the renderer that pulls from it.
type treeView struct {
	title string
	ctrl  *hierarchy.Controller
	tree  *render.Tree
}

func (c *cli) runTree(ctx context.Context, out io.Writer, args []string, opts treeOptions) error {
	targets, err := c.treeTargets(args, opts)
	if err != nil {
		return err
	}

	siteConfigs := make([]config.SiteConfig, len(targets))
	for i, t := range targets {
		siteConfigs[i] = t.site
	}
	sess, err := c.openSession(siteConfigs...)
	if err != nil {
		return err
	}
	defer sess.Close()

	nest := c.cfg.Explorer.NestSubtasks && !opts.flat
	views := make([]treeView, len(targets))
	for i, t := range targets {
		ctrl := hierarchy.NewController(sess.resolver, hierarchy.WithNestSubtasks(nest))
		defer ctrl.Close()
		ctrl.SetQuery(t.query, t.site.Site())
		views[i] = treeView{
			title: t.title,
			ctrl:  ctrl,
			tree: render.NewTree(out,
				render.WithChildSource(ctrl),
				render.WithEmptyState(c.cfg.Explorer.EmptyState),
				render.WithMaxDepth(opts.depth),
			),
		}
	}

	if !opts.watch {
		return renderViews(ctx, out, views)
	}

	dbs := sess.dbPaths()
	if len(dbs) == 0 {
		return errors.New("--watch needs a local site")
	}
	w, err := watcher.New(watcher.DefaultConfig(dbs...))
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	_ = renderViews(ctx, out, views)
	return watchViews(ctx, out, views, w.Watch, func() {
		log.Debug(log.CatWatcher, "Database changed, re-resolving", "views", len(views))
		sess.flushCaches(ctx)
	})
}

// renderViews resolves and prints every view. It returns an error naming
// how many queries failed; the failures themselves are printed inline.
func renderViews(ctx context.Context, out io.Writer, views []treeView) error {
	failed := 0
	for i, v := range views {
		v.ctrl.RootNodes(ctx, true)
		snap := v.ctrl.Snapshot()
		if i > 0 {
			fmt.Fprintln(out)
		}
		renderView(out, v, snap, len(views) > 1)
		if snap.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d queries failed", failed, len(views))
	}
	return nil
}

func renderView(out io.Writer, v treeView, snap hierarchy.Snapshot, header bool) {
	if header {
		fmt.Fprintf(out, "%s (%s)\n", v.title, snap.Site)
	}
	fmt.Fprint(out, v.tree.Snapshot(snap))
}

// watchViews runs watch and, on each change it reports, re-resolves every
// view. A view is printed again whenever its controller publishes a
// resolution. It returns when ctx is done or watch returns.
func watchViews(ctx context.Context, out io.Writer, views []treeView,
	watch func(context.Context, func()) error, onChange func(),
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	for _, v := range views {
		listener := pubsub.NewContinuousListener[hierarchy.ChangeEvent](ctx, v.ctrl)
		g.Go(func() error {
			listener.Drain(func(ev pubsub.Event[hierarchy.ChangeEvent]) {
				if ev.Type != pubsub.ResolvedEvent {
					return
				}
				snap := v.ctrl.Snapshot()
				if snap.Generation != ev.Payload.Generation {
					return // superseded; the newer run publishes its own event
				}
				mu.Lock()
				defer mu.Unlock()
				renderView(out, v, snap, len(views) > 1)
			})
			return nil
		})
	}

	g.Go(func() error {
		defer cancel()
		err := watch(ctx, func() {
			if onChange != nil {
				onChange()
			}
			for _, v := range views {
				v.ctrl.Invalidate()
				v.ctrl.RootNodes(ctx, true)
			}
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return g.Wait()
}
