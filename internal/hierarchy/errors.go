package hierarchy

import (
	"fmt"
	"strings"
)

// QueryError reports a failure of the initial query. It is fatal to one
// resolution attempt.
type QueryError struct {
	Query string
	Site  string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %q on site %s failed: %v", e.Query, e.Site, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// InconsistentDataError reports parent links that formed a cycle.
// Keys lists the issues whose parent link was dropped to break it.
type InconsistentDataError struct {
	Keys []string
}

func (e *InconsistentDataError) Error() string {
	return "parent cycle broken at " + strings.Join(e.Keys, ", ")
}
