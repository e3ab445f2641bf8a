package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/issuetree/internal/iql"
	"github.com/zjrosen/issuetree/internal/issue"
	"github.com/zjrosen/issuetree/internal/log"
)

// Fixture is a YAML document of issues to load into a local site.
//
//	issues:
//	  - key: CORE-1
//	    summary: Checkout
//	    type: epic
//	    epic_name: Checkout
//	  - key: CORE-2
//	    epic: CORE-1
//	    labels: [web]
type Fixture struct {
	Issues []FixtureIssue `yaml:"issues"`
}

// FixtureIssue is one fixture entry. Project defaults to the key prefix.
type FixtureIssue struct {
	issue.Skeleton `yaml:",inline"`

	Project  string    `yaml:"project,omitempty"`
	Assignee string    `yaml:"assignee,omitempty"`
	Labels   []string  `yaml:"labels,omitempty"`
	Created  time.Time `yaml:"created,omitempty"`
	Updated  time.Time `yaml:"updated,omitempty"`
}

// LoadFixture decodes and validates a fixture document.
func LoadFixture(r io.Reader) (*Fixture, error) {
	var f Fixture
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks keys are present and unique and that types and
// priorities are ones the query language understands.
func (f *Fixture) Validate() error {
	seen := make(map[string]bool, len(f.Issues))
	for i, fi := range f.Issues {
		if fi.Key == "" {
			return fmt.Errorf("issues[%d]: key is required", i)
		}
		k := strings.ToUpper(fi.Key)
		if seen[k] {
			return fmt.Errorf("issues[%d]: duplicate key %q", i, fi.Key)
		}
		seen[k] = true

		if fi.Type != "" && !iql.TypeValues[strings.ToLower(fi.Type)] {
			return fmt.Errorf("issues[%d]: invalid type %q", i, fi.Type)
		}
		if fi.Priority != "" {
			if _, ok := iql.PriorityRank[strings.ToLower(fi.Priority)]; !ok {
				return fmt.Errorf("issues[%d]: invalid priority %q", i, fi.Priority)
			}
		}
		if fi.ParentKey != "" && strings.EqualFold(fi.ParentKey, fi.Key) {
			return fmt.Errorf("issues[%d]: %s cannot be its own parent", i, fi.Key)
		}
	}
	return nil
}

// Import upserts every fixture issue in one transaction and replaces their
// labels. It returns the number of issues written.
func (s *Store) Import(ctx context.Context, f *Fixture) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	for _, fi := range f.Issues {
		if err := upsertIssue(ctx, tx, fi, now); err != nil {
			return 0, fmt.Errorf("failed to import %s: %w", fi.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}

	log.Info(log.CatDB, "Imported fixture", "issues", len(f.Issues))
	return len(f.Issues), nil
}

func upsertIssue(ctx context.Context, tx *sql.Tx, fi FixtureIssue, now time.Time) error {
	project := fi.Project
	if project == "" {
		project, _, _ = strings.Cut(fi.Key, "-")
	}
	issueType := strings.ToLower(fi.Type)
	switch {
	case issueType == "" && fi.IsEpic():
		issueType = "epic"
	case issueType == "":
		issueType = "task"
	}
	priority := strings.ToLower(fi.Priority)
	if priority == "" {
		priority = "medium"
	}
	status := fi.Status
	if status == "" {
		status = "open"
	}
	created := fi.Created
	if created.IsZero() {
		created = now
	}
	updated := fi.Updated
	if updated.IsZero() {
		updated = created
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO issues (key, project, summary, issue_type, status, priority, assignee, parent_key, epic_key, epic_name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			project = excluded.project, summary = excluded.summary, issue_type = excluded.issue_type,
			status = excluded.status, priority = excluded.priority, assignee = excluded.assignee,
			parent_key = excluded.parent_key, epic_key = excluded.epic_key, epic_name = excluded.epic_name,
			created_at = excluded.created_at, updated_at = excluded.updated_at`,
		fi.Key, project, fi.Summary, issueType, status, priority,
		nullable(fi.Assignee), nullable(fi.ParentKey), nullable(fi.EpicLink), nullable(fi.EpicName),
		formatTime(created), formatTime(updated),
	)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM labels WHERE issue_key = ?`, fi.Key); err != nil {
		return err
	}
	for _, label := range fi.Labels {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO labels (issue_key, label) VALUES (?, ?)`, fi.Key, label,
		); err != nil {
			return err
		}
	}
	return nil
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// formatTime is the timestamp layout stored in created_at and updated_at.
// SQLite's datetime() parses it directly.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.DateTime)
}
