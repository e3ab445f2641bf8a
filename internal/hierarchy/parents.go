package hierarchy

import (
	"context"

	"github.com/zjrosen/issuetree/internal/issue"
	"github.com/zjrosen/issuetree/internal/log"
)

// ParentResult is the output of ResolveParents.
type ParentResult struct {
	// Issues is the input followed by the fetched parents.
	Issues []issue.Skeleton
	// Fetched holds only the parents that were gap-filled.
	Fetched []issue.Skeleton
	// Warnings holds one error per parent that could not be fetched.
	Warnings []error
}

// ResolveParents fetches every parent referenced by issues that is not
// itself in issues. Fetched parents lose their subtasks: only parents needed
// to complete the displayed tree are added, never their unmatched siblings.
// A failed fetch leaves the children without a parent, so they become roots.
func ResolveParents(ctx context.Context, issues []issue.Skeleton, fetch FetchFunc) ParentResult {
	present := keySet(issues)

	var missing []string
	seen := make(map[string]bool)
	for _, s := range issues {
		if !s.HasParent() || present[s.ParentKey] || seen[s.ParentKey] {
			continue
		}
		seen[s.ParentKey] = true
		missing = append(missing, s.ParentKey)
	}

	out := ParentResult{Issues: issues}
	if len(missing) == 0 {
		return out
	}

	log.Debug(log.CatResolve, "Fetching missing parents", "count", len(missing))
	fetched, failed := fetchAll(ctx, missing, fetch)
	for i := range fetched {
		fetched[i].Children = nil
	}
	for _, err := range failed {
		log.WarnErr(log.CatResolve, "Parent fetch failed, children shown as roots", err)
	}

	out.Issues = append(append(make([]issue.Skeleton, 0, len(issues)+len(fetched)), issues...), fetched...)
	out.Fetched = fetched
	out.Warnings = failed
	return out
}

func keySet(issues []issue.Skeleton) map[string]bool {
	set := make(map[string]bool, len(issues))
	for _, s := range issues {
		set[s.Key] = true
	}
	return set
}
