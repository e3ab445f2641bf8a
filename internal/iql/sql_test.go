package iql

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func build(t *testing.T, input string) (string, string, []any) {
	t.Helper()
	q, err := Parse(input)
	require.NoError(t, err)
	return NewSQLBuilder(q).Build()
}

func TestSQLBuilder_Comparisons(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantWhere  string
		wantParams []any
	}{
		{"string equals", "project = CORE", "i.project = ? COLLATE NOCASE", []any{"CORE"}},
		{"type lowered", "type = Story", "LOWER(i.issue_type) = ?", []any{"story"}},
		{"contains", "summary ~ login", "i.summary LIKE ?", []any{"%login%"}},
		{"nullable", "assignee != alice", "COALESCE(i.assignee, '') != ? COLLATE NOCASE", []any{"alice"}},
		{"parent key", "parent = CORE-1", "COALESCE(i.parent_key, '') = ? COLLATE NOCASE", []any{"CORE-1"}},
		{"priority rank", "priority > medium", priorityRankSQL + " > ?", []any{3}},
		{"label", "label = urgent", "i.key IN (SELECT issue_key FROM labels WHERE label = ? COLLATE NOCASE)", []any{"urgent"}},
		{"label not contains", "label !~ ui", "i.key NOT IN (SELECT issue_key FROM labels WHERE label LIKE ?)", []any{"%ui%"}},
		{"empty", "epic is empty", "COALESCE(i.epic_key, '') = ''", nil},
		{"not empty", "parent is not empty", "COALESCE(i.parent_key, '') != ''", nil},
		{"label empty", "label is empty", "i.key NOT IN (SELECT issue_key FROM labels)", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, orderBy, params := build(t, tt.input)
			require.Equal(t, tt.wantWhere, where)
			require.Empty(t, orderBy)
			require.Equal(t, tt.wantParams, params)
		})
	}
}

func TestSQLBuilder_Dates(t *testing.T) {
	tests := []struct {
		input      string
		wantWhere  string
		wantParams []any
	}{
		{"created > today", "datetime(i.created_at) > date('now')", nil},
		{"updated > -7d", "datetime(i.updated_at) > datetime('now', '-7 days')", nil},
		{"updated > -2w", "datetime(i.updated_at) > datetime('now', '-14 days')", nil},
		{"updated > -3h", "datetime(i.updated_at) > datetime('now', '-3 hours')", nil},
		{"updated > -30m", "datetime(i.updated_at) > datetime('now', '-30 minutes')", nil},
		{"created < 2025-01-31", "datetime(i.created_at) < ?", []any{"2025-01-31"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			where, _, params := build(t, tt.input)
			require.Equal(t, tt.wantWhere, where)
			require.Equal(t, tt.wantParams, params)
		})
	}
}

func TestSQLBuilder_InLists(t *testing.T) {
	where, _, params := build(t, "type in (story, bug)")
	require.Equal(t, "LOWER(i.issue_type) IN (?, ?)", where)
	require.Equal(t, []any{"story", "bug"}, params)

	where, _, params = build(t, "priority not in (low, lowest)")
	require.Equal(t, priorityRankSQL+" NOT IN (?, ?)", where)
	require.Equal(t, []any{2, 1}, params)

	where, _, params = build(t, "label in (a, b)")
	require.Equal(t, "i.key IN (SELECT issue_key FROM labels WHERE label IN (?, ?))", where)
	require.Equal(t, []any{"a", "b"}, params)

	where, _, _ = build(t, "status in (done)")
	require.Equal(t, "i.status COLLATE NOCASE IN (?)", where)
}

func TestSQLBuilder_BooleanStructure(t *testing.T) {
	where, _, params := build(t, "not (project = A or project = B) and type = bug")
	require.Equal(t,
		"(NOT ((i.project = ? COLLATE NOCASE OR i.project = ? COLLATE NOCASE)) AND LOWER(i.issue_type) = ?)",
		where)
	require.Equal(t, []any{"A", "B", "bug"}, params)
}

func TestSQLBuilder_OrderBy(t *testing.T) {
	_, orderBy, _ := build(t, "order by priority desc, key, updated desc")
	require.Equal(t,
		priorityRankSQL+" DESC, i.project ASC, "+keyNumberSQL+" ASC, i.updated_at DESC",
		orderBy)
}
