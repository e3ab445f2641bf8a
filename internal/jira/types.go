package jira

import (
	"encoding/json"
	"strings"
)

// Issue represents a Jira issue from the REST API. Fields is kept raw so
// the configured epic custom fields can be read by ID.
type Issue struct {
	ID     string                     `json:"id"`
	Key    string                     `json:"key"`
	Fields map[string]json.RawMessage `json:"fields"`
}

// SearchResult represents a Jira JQL search response.
type SearchResult struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// namedField covers status, priority and issuetype.
type namedField struct {
	Name string `json:"name"`
}

// issueRef is how Jira embeds a related issue (parent, subtasks).
type issueRef struct {
	Key    string `json:"key"`
	Fields struct {
		Summary   string      `json:"summary"`
		Status    *namedField `json:"status"`
		Priority  *namedField `json:"priority"`
		IssueType *namedField `json:"issuetype"`
	} `json:"fields"`
}

func (r issueRef) typeName() string {
	if r.Fields.IssueType == nil {
		return ""
	}
	return r.Fields.IssueType.Name
}

// field decodes fields[name] into v. Missing and null fields leave v unchanged.
func (i Issue) field(name string, v any) bool {
	raw, ok := i.Fields[name]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

// stringField reads a string field. Some Jira versions return an epic link
// as an object with a key, so that shape is accepted as well.
func (i Issue) stringField(name string) string {
	var s string
	if i.field(name, &s) {
		return s
	}
	var ref issueRef
	if i.field(name, &ref) {
		return ref.Key
	}
	return ""
}

func (i Issue) namedField(name string) string {
	var f namedField
	if i.field(name, &f) {
		return f.Name
	}
	return ""
}

func isEpicType(name string) bool {
	return strings.EqualFold(name, "epic")
}
