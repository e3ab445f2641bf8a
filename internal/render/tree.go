// Package render draws resolved issue forests and comment threads as
// indented text trees.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/issuetree/internal/hierarchy"
)

// DefaultEmptyState is shown for a forest with no roots.
const DefaultEmptyState = "No issues"

// Tree branch connectors.
const (
	branchMid  = "├─ "
	branchLast = "└─ "
	pipe       = "│  "
	blank      = "   "
)

// ChildSource expands a node. *hierarchy.Controller satisfies it.
type ChildSource interface {
	ChildrenOf(node *hierarchy.Node) []*hierarchy.Node
}

type expandFunc func(node *hierarchy.Node) []*hierarchy.Node

func (f expandFunc) ChildrenOf(node *hierarchy.Node) []*hierarchy.Node { return f(node) }

// NodeExpander expands nodes from their own structure.
var NodeExpander ChildSource = expandFunc(func(n *hierarchy.Node) []*hierarchy.Node { return n.Expand() })

// Tree renders forests.
type Tree struct {
	st         styles
	source     ChildSource
	emptyState string
	maxDepth   int
}

// Option configures a Tree.
type Option func(*Tree)

// WithChildSource sets where children come from. Defaults to NodeExpander.
func WithChildSource(src ChildSource) Option {
	return func(t *Tree) {
		if src != nil {
			t.source = src
		}
	}
}

// WithEmptyState overrides the text shown when there are no roots.
func WithEmptyState(text string) Option {
	return func(t *Tree) {
		if text != "" {
			t.emptyState = text
		}
	}
}

// WithMaxDepth stops expanding below depth; 0 means unlimited. Nodes cut
// off with children left unexpanded get a "+" marker.
func WithMaxDepth(depth int) Option {
	return func(t *Tree) { t.maxDepth = depth }
}

// NewTree creates a renderer whose color profile matches out.
func NewTree(out io.Writer, opts ...Option) *Tree {
	t := &Tree{
		st:         newStyles(lipgloss.NewRenderer(out)),
		source:     NodeExpander,
		emptyState: DefaultEmptyState,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Forest renders roots and everything reachable below them.
func (t *Tree) Forest(roots []*hierarchy.Node) string {
	if len(roots) == 0 {
		return t.st.muted.Render(t.emptyState) + "\n"
	}
	var sb strings.Builder
	t.writeNodes(&sb, roots, "", 0)
	return sb.String()
}

// Snapshot renders a controller snapshot: the error line when the query
// failed, otherwise the forest, followed by a warning line per partial
// failure.
func (t *Tree) Snapshot(s hierarchy.Snapshot) string {
	var sb strings.Builder
	switch {
	case s.Err != nil:
		sb.WriteString(t.st.err.Render("✗ " + s.Err.Error()))
		sb.WriteString("\n")
	case s.State != hierarchy.StateResolved && len(s.Roots) == 0:
		sb.WriteString(t.st.muted.Render("Loading..."))
		sb.WriteString("\n")
	default:
		sb.WriteString(t.Forest(s.Roots))
	}
	if s.Partial() {
		sb.WriteString(t.st.warning.Render(fmt.Sprintf("⚠ %d related issue lookups failed; tree may be incomplete", len(s.Warnings))))
		sb.WriteString("\n")
		for _, w := range s.Warnings {
			sb.WriteString(t.st.muted.Render("  " + w.Error()))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func (t *Tree) writeNodes(sb *strings.Builder, nodes []*hierarchy.Node, prefix string, depth int) {
	for i, n := range nodes {
		last := i == len(nodes)-1

		connector, childPrefix := "", ""
		if depth > 0 {
			connector, childPrefix = branchMid, prefix+pipe
			if last {
				connector, childPrefix = branchLast, prefix+blank
			}
		}

		cut := t.maxDepth > 0 && depth+1 >= t.maxDepth
		sb.WriteString(t.st.muted.Render(prefix + connector))
		sb.WriteString(t.line(n, cut && n.HasChildren()))
		sb.WriteString("\n")

		if cut {
			continue
		}
		if children := t.source.ChildrenOf(n); len(children) > 0 {
			t.writeNodes(sb, children, childPrefix, depth+1)
		}
	}
}

func (t *Tree) line(n *hierarchy.Node, collapsed bool) string {
	var sb strings.Builder
	sb.WriteString(t.statusGlyph(n.Issue.Status))
	sb.WriteString(" ")
	if n.IsEpic() {
		sb.WriteString(t.st.epic.Render("◆ " + n.Key()))
	} else {
		sb.WriteString(t.st.key.Render(n.Key()))
	}
	if title := summary(n); title != "" {
		sb.WriteString(" ")
		sb.WriteString(title)
	}
	if collapsed {
		sb.WriteString(t.st.muted.Render(" +"))
	}
	return sb.String()
}

// summary prefers the epic name for epics that have one.
func summary(n *hierarchy.Node) string {
	if n.Issue.EpicName != "" && n.Issue.Summary == "" {
		return n.Issue.EpicName
	}
	return n.Issue.Summary
}

func (t *Tree) statusGlyph(status string) string {
	switch s := strings.ToLower(status); {
	case s == "done" || s == "closed" || s == "resolved":
		return t.st.done.Render("✓")
	case strings.Contains(s, "progress") || s == "review":
		return t.st.progress.Render("●")
	default:
		return t.st.open.Render("○")
	}
}
