package hierarchy

import (
	"github.com/zjrosen/issuetree/internal/issue"
	"github.com/zjrosen/issuetree/internal/log"
)

// AssemblyInput is everything the assembler combines into a forest.
type AssemblyInput struct {
	Results       []issue.Skeleton // query results, in query order
	Parents       []issue.Skeleton // gap-filled parents
	Epics         []issue.Skeleton // combined epic set with EpicChildren populated
	EpicChildKeys []string
}

// Assemble builds a rooted forest in which every key appears exactly once.
//
// Per issue, in priority order:
//  1. an epic from the combined set that has no parent present is a root;
//  2. an issue whose parent is present is a child of that parent;
//  3. an epic child is reachable only through exactly one epic, the one its
//     epic link names or else the first epic listing it;
//  4. everything else is a root.
//
// Plain roots come first in working-set order, followed by epic roots in
// epic-set order. Parent cycles are broken at their first member, which
// becomes a root; the returned error is then an *InconsistentDataError and
// the forest is still complete. Inputs are never modified.
func Assemble(in AssemblyInput) ([]*Node, error) {
	a := newAssembly(in)
	broken := a.breakCycles()
	roots := a.place()

	if len(broken) > 0 {
		log.Warn(log.CatTree, "Broke parent cycle", "keys", broken)
		return roots, &InconsistentDataError{Keys: broken}
	}
	return roots, nil
}

type assembly struct {
	order  []string
	nodes  map[string]*Node
	parent map[string]string // effective parent, only when present and not self

	epicOrder []string
	epics     map[string]issue.Skeleton
	listedBy  map[string][]string // epic child key -> epics listing it
	childKeys map[string]bool
}

func newAssembly(in AssemblyInput) *assembly {
	a := &assembly{
		nodes:     make(map[string]*Node),
		parent:    make(map[string]string),
		epics:     make(map[string]issue.Skeleton),
		listedBy:  make(map[string][]string),
		childKeys: make(map[string]bool, len(in.EpicChildKeys)),
	}

	add := func(s issue.Skeleton) {
		if s.Key == "" {
			return
		}
		if _, ok := a.nodes[s.Key]; ok {
			return
		}
		a.nodes[s.Key] = &Node{Issue: s.Bare()}
		a.order = append(a.order, s.Key)
	}
	for _, s := range in.Results {
		add(s)
	}
	for _, s := range in.Parents {
		add(s)
	}
	for _, e := range in.Epics {
		add(e)
		if _, ok := a.epics[e.Key]; !ok {
			a.epics[e.Key] = e
			a.epicOrder = append(a.epicOrder, e.Key)
		}
	}
	// Children an epic arrived with may not be in the working set yet.
	for _, e := range in.Epics {
		for _, c := range e.EpicChildren {
			add(c)
			a.listedBy[c.Key] = append(a.listedBy[c.Key], e.Key)
		}
	}
	for _, k := range in.EpicChildKeys {
		a.childKeys[k] = true
	}

	for _, key := range a.order {
		p := a.nodes[key].Issue.ParentKey
		if p == "" || p == key {
			continue
		}
		if _, ok := a.nodes[p]; ok {
			a.parent[key] = p
		}
	}
	return a
}

// breakCycles drops the parent link of the first member, in working-set
// order, of every parent cycle.
func (a *assembly) breakCycles() []string {
	var broken []string
	for _, start := range a.order {
		seen := map[string]bool{start: true}
		for cur, ok := a.parent[start]; ok; cur, ok = a.parent[cur] {
			if cur == start {
				delete(a.parent, start)
				broken = append(broken, start)
				break
			}
			if seen[cur] {
				break
			}
			seen[cur] = true
		}
	}
	return broken
}

func (a *assembly) place() []*Node {
	epicRoot := make(map[string]bool)
	for _, k := range a.epicOrder {
		if _, hasParent := a.parent[k]; !hasParent {
			epicRoot[k] = true
		}
	}

	owner := make(map[string]string)
	for _, key := range a.order {
		if !a.childKeys[key] || epicRoot[key] {
			continue
		}
		if _, hasParent := a.parent[key]; hasParent {
			continue
		}
		var candidates []string
		if link := a.nodes[key].Issue.EpicLink; link != "" {
			if _, ok := a.epics[link]; ok {
				candidates = append(candidates, link)
			}
		}
		candidates = append(candidates, a.listedBy[key]...)
		for _, e := range candidates {
			// An epic nested somewhere below key cannot also own it.
			if e != key && !a.descendsFrom(e, key, owner) {
				owner[key] = e
				break
			}
		}
	}

	var roots []*Node
	for _, key := range a.order {
		n := a.nodes[key]
		switch {
		case epicRoot[key]:
			// appended after the plain roots
		case a.parent[key] != "":
			p := a.nodes[a.parent[key]]
			p.Children = append(p.Children, n)
		case owner[key] != "":
			e := a.nodes[owner[key]]
			e.EpicChildren = append(e.EpicChildren, n)
		default:
			roots = append(roots, n)
		}
	}
	for _, key := range a.epicOrder {
		if epicRoot[key] {
			roots = append(roots, a.nodes[key])
		}
	}
	return roots
}

// descendsFrom reports whether key sits below ancestor through parent links
// or epic ownership assigned so far.
func (a *assembly) descendsFrom(key, ancestor string, owner map[string]string) bool {
	seen := make(map[string]bool)
	for cur := key; cur != "" && !seen[cur]; {
		if cur == ancestor {
			return true
		}
		seen[cur] = true
		if p, ok := a.parent[cur]; ok {
			cur = p
		} else {
			cur = owner[cur]
		}
	}
	return false
}
