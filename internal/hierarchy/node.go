package hierarchy

import "github.com/zjrosen/issuetree/internal/issue"

// Node is one issue placed in a resolved forest.
// Issue never carries Children or EpicChildren; the forest structure lives
// in the Node fields.
type Node struct {
	Issue        issue.Skeleton
	Children     []*Node
	EpicChildren []*Node
}

// Key returns the node's issue key.
func (n *Node) Key() string { return n.Issue.Key }

// IsEpic reports whether the node is an epic grouping.
func (n *Node) IsEpic() bool { return n.Issue.IsEpic() || len(n.EpicChildren) > 0 }

// HasChildren reports whether expanding the node would yield anything.
func (n *Node) HasChildren() bool { return len(n.Children)+len(n.EpicChildren) > 0 }

// Expand returns subtasks followed by epic children.
func (n *Node) Expand() []*Node {
	if !n.HasChildren() {
		return nil
	}
	out := make([]*Node, 0, len(n.Children)+len(n.EpicChildren))
	out = append(out, n.Children...)
	return append(out, n.EpicChildren...)
}

// Walk visits every node of the forest depth-first, parents before children.
// Returning false from fn stops descent below that node.
func Walk(roots []*Node, fn func(n *Node, depth int) bool) {
	var visit func(nodes []*Node, depth int)
	visit = func(nodes []*Node, depth int) {
		for _, n := range nodes {
			if fn(n, depth) {
				visit(n.Expand(), depth+1)
			}
		}
	}
	visit(roots, 0)
}

// ForestKeys returns every key in the forest in depth-first order.
func ForestKeys(roots []*Node) []string {
	var keys []string
	Walk(roots, func(n *Node, _ int) bool {
		keys = append(keys, n.Key())
		return true
	})
	return keys
}
