// Package testutil provides test utilities for database setup.
package testutil

import (
	"database/sql"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/stretchr/testify/require"
)

// Schema mirrors the local site migrations so store tests can run against
// an in-memory database without the migration runner.
const Schema = `
CREATE TABLE issues (
	key TEXT PRIMARY KEY COLLATE NOCASE,
	project TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	issue_type TEXT NOT NULL DEFAULT 'task',
	status TEXT NOT NULL DEFAULT 'open',
	priority TEXT NOT NULL DEFAULT 'medium',
	assignee TEXT,
	parent_key TEXT COLLATE NOCASE,
	epic_key TEXT COLLATE NOCASE,
	epic_name TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX idx_issues_parent ON issues(parent_key);
CREATE INDEX idx_issues_epic ON issues(epic_key);
CREATE INDEX idx_issues_updated ON issues(updated_at);

CREATE TABLE labels (
	issue_key TEXT NOT NULL COLLATE NOCASE,
	label TEXT NOT NULL,
	PRIMARY KEY (issue_key, label),
	FOREIGN KEY (issue_key) REFERENCES issues(key) ON DELETE CASCADE
);
`

// NewTestDB creates an in-memory SQLite database with the full test schema.
// The caller is responsible for closing the database.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Every pooled connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	_, err = db.Exec(Schema)
	require.NoError(t, err)
	return db
}
