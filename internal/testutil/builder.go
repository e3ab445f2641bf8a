package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Builder accumulates test data and inserts it in the correct order.
type Builder struct {
	t      *testing.T
	db     *sql.DB
	issues []issueData
}

// NewBuilder creates a builder for the given test database.
func NewBuilder(t *testing.T, db *sql.DB) *Builder {
	t.Helper()
	return &Builder{t: t, db: db}
}

// WithIssue adds an issue with optional configuration.
func (b *Builder) WithIssue(key string, opts ...IssueOption) *Builder {
	issue := defaultIssue(key)
	for _, opt := range opts {
		opt(&issue)
	}
	b.issues = append(b.issues, issue)
	return b
}

// Build inserts all accumulated data into the database.
func (b *Builder) Build() {
	b.t.Helper()
	// Issues first so labels satisfy the foreign key.
	for _, issue := range b.issues {
		b.insertIssue(issue)
	}
	for _, issue := range b.issues {
		b.insertLabels(issue.key, issue.labels)
	}
}

func (b *Builder) insertIssue(issue issueData) {
	b.t.Helper()
	_, err := b.db.Exec(
		`INSERT INTO issues (key, project, summary, issue_type, status, priority, assignee, parent_key, epic_key, epic_name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.key, issue.project, issue.summary, issue.issueType, issue.status, issue.priority,
		issue.assignee, issue.parentKey, issue.epicKey, issue.epicName,
		formatTime(issue.createdAt), formatTime(issue.updatedAt),
	)
	require.NoError(b.t, err)
}

func (b *Builder) insertLabels(issueKey string, labels []string) {
	b.t.Helper()
	for _, label := range labels {
		_, err := b.db.Exec(`INSERT INTO labels (issue_key, label) VALUES (?, ?)`, issueKey, label)
		require.NoError(b.t, err)
	}
}

// formatTime matches the timestamp layout the local store writes.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.DateTime)
}
