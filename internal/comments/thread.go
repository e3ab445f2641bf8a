// Package comments builds reply threads from flat pull-request comment
// lists.
package comments

import (
	"time"

	"github.com/zjrosen/issuetree/internal/log"
)

// DeletedText replaces the body of deleted or empty comments.
const DeletedText = "*Comment deleted*"

// Comment is one pull-request comment. ParentID is zero for top-level
// comments.
type Comment struct {
	ID       int64
	ParentID int64
	Author   string
	Raw      string
	Deleted  bool
	// Inline is set for comments anchored to a file line.
	Inline  *Inline
	Created time.Time
	Updated time.Time

	Replies []*Comment
}

// Inline anchors a comment to a line of a changed file.
type Inline struct {
	Path string
	From int // line in the old file, 0 if none
	To   int // line in the new file, 0 if none
}

// Thread nests comments under their parents. Input order is kept for both
// top-level comments and replies. A reply whose parent is absent becomes
// top-level; a parent cycle is broken at its first member in input order.
// Duplicate IDs keep the first occurrence. The input is not modified.
func Thread(flat []Comment) []*Comment {
	byID := make(map[int64]*Comment, len(flat))
	order := make([]int64, 0, len(flat))
	for _, c := range flat {
		if _, dup := byID[c.ID]; dup {
			continue
		}
		n := c
		n.Replies = nil
		byID[c.ID] = &n
		order = append(order, c.ID)
	}

	parent := make(map[int64]int64, len(order))
	for _, id := range order {
		pid := byID[id].ParentID
		if pid != 0 && pid != id {
			if _, ok := byID[pid]; ok {
				parent[id] = pid
			}
		}
	}

	for _, start := range order {
		seen := map[int64]bool{start: true}
		for cur, ok := parent[start]; ok; cur, ok = parent[cur] {
			if cur == start {
				delete(parent, start)
				log.Warn(log.CatTree, "Broke comment reply cycle", "id", start)
				break
			}
			if seen[cur] {
				break
			}
			seen[cur] = true
		}
	}

	var roots []*Comment
	for _, id := range order {
		n := byID[id]
		if pid, ok := parent[id]; ok {
			p := byID[pid]
			p.Replies = append(p.Replies, n)
			continue
		}
		roots = append(roots, n)
	}
	return roots
}

// Count returns the number of comments in a thread forest.
func Count(roots []*Comment) int {
	n := 0
	for _, c := range roots {
		n += 1 + Count(c.Replies)
	}
	return n
}
