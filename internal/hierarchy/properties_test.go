package hierarchy

import (
	"context"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/zjrosen/issuetree/internal/issue"
)

// genWorld draws a pool of epics and plain issues, a query result drawn from
// the pool, and a set of keys whose fetch fails. Epics never have parents
// here so epic grouping is unambiguous; plain issues may form parent cycles.
func genWorld(t *rapid.T) (results []issue.Skeleton, remote *poolRemote) {
	numEpics := rapid.IntRange(0, 3).Draw(t, "numEpics")
	numIssues := rapid.IntRange(0, 12).Draw(t, "numIssues")

	var pool []issue.Skeleton
	for i := 0; i < numEpics; i++ {
		key := fmt.Sprintf("E%d", i)
		pool = append(pool, issue.Skeleton{Key: key, EpicName: key})
	}
	for i := 0; i < numIssues; i++ {
		s := issue.Skeleton{Key: fmt.Sprintf("I%d", i)}
		if rapid.Bool().Draw(t, "hasParent") {
			s.ParentKey = fmt.Sprintf("I%d", rapid.IntRange(0, numIssues).Draw(t, "parent"))
		}
		if numEpics > 0 && rapid.Bool().Draw(t, "hasEpic") {
			s.EpicLink = fmt.Sprintf("E%d", rapid.IntRange(0, numEpics-1).Draw(t, "epic"))
		}
		pool = append(pool, s)
	}

	for _, s := range pool {
		if rapid.Bool().Draw(t, "inResult") {
			results = append(results, s)
		}
	}
	remote = newPoolRemote(results, pool...)
	for _, s := range pool {
		if rapid.IntRange(0, 4).Draw(t, "fail") == 0 {
			remote.failing[s.Key] = true
		}
	}
	return results, remote
}

type placement struct {
	parent    map[string]string // key -> parent via Children
	epicOwner map[string]string // key -> epic via EpicChildren
	root      map[string]bool
	count     map[string]int
}

func place(roots []*Node) placement {
	p := placement{
		parent:    map[string]string{},
		epicOwner: map[string]string{},
		root:      map[string]bool{},
		count:     map[string]int{},
	}
	for _, r := range roots {
		p.root[r.Key()] = true
	}
	// Bounded walk: a loop in the forest would be a bug, not a hang.
	budget := 10000
	var visit func(n *Node)
	visit = func(n *Node) {
		if budget--; budget < 0 {
			return
		}
		p.count[n.Key()]++
		for _, c := range n.Children {
			p.parent[c.Key()] = n.Key()
			visit(c)
		}
		for _, c := range n.EpicChildren {
			p.epicOwner[c.Key()] = n.Key()
			visit(c)
		}
	}
	for _, r := range roots {
		visit(r)
	}
	return p
}

func TestResolve_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		results, remote := genWorld(t)

		res, err := NewResolver(remote, WithConcurrency(3)).Resolve(context.Background(), "q", testSite)
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		p := place(res.Roots)

		// No duplication, and nothing from the query result is lost.
		for key, n := range p.count {
			if n != 1 {
				t.Fatalf("key %s appears %d times in %s", key, n, shape(res.Roots))
			}
		}
		for _, s := range results {
			if p.count[s.Key] != 1 {
				t.Fatalf("result %s missing from %s", s.Key, shape(res.Roots))
			}
		}

		broken := map[string]bool{}
		for _, w := range res.Warnings {
			if inc, ok := w.(*InconsistentDataError); ok {
				for _, k := range inc.Keys {
					broken[k] = true
				}
			}
		}

		inResult := keySet(results)
		combinedEpics := map[string]bool{}
		for _, s := range results {
			if s.IsEpic() {
				combinedEpics[s.Key] = true
			}
			if s.HasEpicLink() && !inResult[s.EpicLink] && !remote.failing[s.EpicLink] {
				combinedEpics[s.EpicLink] = true
			}
		}

		for _, s := range results {
			// Parent completeness.
			if s.HasParent() && s.ParentKey != s.Key {
				if p.count[s.ParentKey] == 1 && !broken[s.Key] && p.parent[s.Key] != s.ParentKey {
					t.Fatalf("%s not under present parent %s in %s", s.Key, s.ParentKey, shape(res.Roots))
				}
				if p.count[s.ParentKey] == 0 && p.parent[s.Key] != "" {
					t.Fatalf("%s nested although parent %s is absent", s.Key, s.ParentKey)
				}
			}
			// Epic grouping.
			if s.HasEpicLink() && combinedEpics[s.EpicLink] && !s.IsEpic() {
				if p.root[s.Key] {
					t.Fatalf("epic child %s shown at top level in %s", s.Key, shape(res.Roots))
				}
				if p.parent[s.Key] == "" && p.epicOwner[s.Key] != s.EpicLink {
					t.Fatalf("epic child %s not under epic %s in %s", s.Key, s.EpicLink, shape(res.Roots))
				}
			}
		}

		// At most one fetch per distinct key, and only for absent keys.
		for key, n := range remote.fetched {
			if n != 1 {
				t.Fatalf("key %s fetched %d times", key, n)
			}
			if inResult[key] {
				t.Fatalf("key %s fetched although present in the result", key)
			}
		}
	})
}

func TestResolve_Idempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		_, remote := genWorld(t)
		c := NewController(NewResolver(remote))
		defer c.Close()
		c.SetQuery("q", testSite)

		first := shape(c.RootNodes(context.Background(), true))
		fetches := remote.totalFetches()
		second := shape(c.RootNodes(context.Background(), true))

		if first != second {
			t.Fatalf("forest changed between calls: %q vs %q", first, second)
		}
		if remote.totalFetches() != fetches || remote.queries != 1 {
			t.Fatalf("second call issued remote work")
		}
	})
}

func TestAssemble_CycleSafety(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 10).Draw(t, "n")
		var results []issue.Skeleton
		for i := 0; i < n; i++ {
			results = append(results, issue.Skeleton{
				Key:       fmt.Sprintf("K%d", i),
				ParentKey: fmt.Sprintf("K%d", rapid.IntRange(0, n-1).Draw(t, "parent")),
			})
		}
		roots, _ := Assemble(AssemblyInput{Results: results})
		p := place(roots)
		for _, s := range results {
			if p.count[s.Key] != 1 {
				t.Fatalf("key %s appears %d times", s.Key, p.count[s.Key])
			}
		}
	})
}
