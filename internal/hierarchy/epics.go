package hierarchy

import (
	"context"

	"github.com/zjrosen/issuetree/internal/issue"
	"github.com/zjrosen/issuetree/internal/log"
)

// EpicResult is the output of ResolveEpics.
type EpicResult struct {
	// Epics is the combined epic set: epics from the input followed by
	// fetched ones, deduplicated by key, each with EpicChildren populated.
	Epics []issue.Skeleton
	// ChildKeys lists every key that appears in some epic's EpicChildren.
	ChildKeys []string
	// Fetched holds the epics that were gap-filled.
	Fetched  []issue.Skeleton
	Warnings []error
}

// ResolveEpics fetches every epic referenced through an epic link that is
// not in issues, and fills in the children of each epic from the input
// issues that link to it.
func ResolveEpics(ctx context.Context, issues []issue.Skeleton, fetch FetchFunc) EpicResult {
	present := keySet(issues)

	var local []issue.Skeleton
	var missing []string
	seen := make(map[string]bool)
	for _, s := range issues {
		if s.IsEpic() {
			local = append(local, s)
		}
		if s.HasEpicLink() && !present[s.EpicLink] && !seen[s.EpicLink] {
			seen[s.EpicLink] = true
			missing = append(missing, s.EpicLink)
		}
	}

	var out EpicResult
	var remote []issue.Skeleton
	if len(missing) > 0 {
		log.Debug(log.CatResolve, "Fetching missing epics", "count", len(missing))
		remote, out.Warnings = fetchAll(ctx, missing, fetch)
		for _, err := range out.Warnings {
			log.WarnErr(log.CatResolve, "Epic fetch failed, children shown as roots", err)
		}
		out.Fetched = remote
	}

	combined := make([]issue.Skeleton, 0, len(local)+len(remote))
	epicSeen := make(map[string]bool)
	for _, e := range append(local, remote...) {
		if epicSeen[e.Key] {
			continue
		}
		epicSeen[e.Key] = true
		combined = append(combined, e)
	}
	if len(combined) == 0 {
		return out
	}

	childSeen := make(map[string]bool)
	for i, e := range combined {
		// Copy so the caller's skeleton is never aliased. Input issues
		// linked to the epic are added after any children it arrived with.
		children := append([]issue.Skeleton(nil), e.EpicChildren...)
		listed := keySet(children)
		for _, s := range issues {
			if s.EpicLink == e.Key && s.Key != e.Key && !listed[s.Key] {
				listed[s.Key] = true
				children = append(children, s.Bare())
			}
		}
		e.EpicChildren = children
		combined[i] = e

		for _, c := range e.EpicChildren {
			if !childSeen[c.Key] {
				childSeen[c.Key] = true
				out.ChildKeys = append(out.ChildKeys, c.Key)
			}
		}
	}
	out.Epics = combined
	return out
}
