// Package issue defines the minimal issue representation the hierarchy
// engine operates on, the sites issues come from, and the error type remote
// adapters report.
package issue

// Skeleton is one issue as returned by a query or a direct fetch.
//
// Optional references are empty strings when absent; use the accessors
// rather than comparing fields directly.
type Skeleton struct {
	Key       string `json:"key" yaml:"key"`
	ParentKey string `json:"parent_key,omitempty" yaml:"parent,omitempty"`
	EpicLink  string `json:"epic_link,omitempty" yaml:"epic,omitempty"`
	// EpicName is non-empty only when this issue is itself an epic.
	EpicName string `json:"epic_name,omitempty" yaml:"epic_name,omitempty"`

	Children     []Skeleton `json:"children,omitempty" yaml:"-"`
	EpicChildren []Skeleton `json:"epic_children,omitempty" yaml:"-"`

	SiteID string `json:"site_id" yaml:"-"`

	// Display attributes. The engine never reads these.
	Summary  string `json:"summary,omitempty" yaml:"summary,omitempty"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Status   string `json:"status,omitempty" yaml:"status,omitempty"`
	Priority string `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// HasParent reports whether the issue references a direct parent.
func (s Skeleton) HasParent() bool { return s.ParentKey != "" }

// HasEpicLink reports whether the issue belongs to an epic.
func (s Skeleton) HasEpicLink() bool { return s.EpicLink != "" }

// IsEpic reports whether the issue is itself an epic.
func (s Skeleton) IsEpic() bool { return s.EpicName != "" }

// Bare returns a copy of s with Children and EpicChildren cleared.
func (s Skeleton) Bare() Skeleton {
	s.Children = nil
	s.EpicChildren = nil
	return s
}

// Clone returns a deep copy of s.
func (s Skeleton) Clone() Skeleton {
	out := s
	out.Children = cloneAll(s.Children)
	out.EpicChildren = cloneAll(s.EpicChildren)
	return out
}

func cloneAll(in []Skeleton) []Skeleton {
	if in == nil {
		return nil
	}
	out := make([]Skeleton, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}

// Keys returns the keys of issues in order.
func Keys(issues []Skeleton) []string {
	keys := make([]string, len(issues))
	for i, s := range issues {
		keys[i] = s.Key
	}
	return keys
}
