package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zjrosen/issuetree/internal/hierarchy"
	"github.com/zjrosen/issuetree/internal/iql"
	"github.com/zjrosen/issuetree/internal/issue"
	"github.com/zjrosen/issuetree/internal/log"
)

// skeletonColumns is the list of columns to select for skeleton queries.
const skeletonColumns = `i.key, i.parent_key, i.epic_key, i.epic_name,
	i.summary, i.issue_type, i.status, i.priority`

// Store serves issues from a local site database.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an already migrated connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ensure Store implements hierarchy.Remote.
var _ hierarchy.Remote = (*Store)(nil)

// Execute runs an iql query. Results are ordered by the query's ORDER BY,
// or most recently updated first.
func (s *Store) Execute(ctx context.Context, query string, site issue.Site) ([]issue.Skeleton, error) {
	q, err := iql.Parse(query)
	if err != nil {
		return nil, err
	}

	where, orderBy, params := iql.NewSQLBuilder(q).Build()
	if orderBy == "" {
		orderBy = iql.DefaultOrderBy
	}

	stmt := `SELECT ` + skeletonColumns + ` FROM issues i`
	if where != "" {
		stmt += ` WHERE ` + where
	}
	stmt += ` ORDER BY ` + orderBy

	log.Debug(log.CatQuery, "Executing query", "site", site.ID, "query", query, "where", where)

	rows, err := s.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, &issue.RemoteError{Op: "execute", Site: site.ID, Err: err}
	}
	defer rows.Close()

	var out []issue.Skeleton
	for rows.Next() {
		sk, err := scanSkeleton(rows)
		if err != nil {
			return nil, &issue.RemoteError{Op: "execute", Site: site.ID, Err: err}
		}
		sk.SiteID = site.ID
		out = append(out, sk)
	}
	if err := rows.Err(); err != nil {
		return nil, &issue.RemoteError{Op: "execute", Site: site.ID, Err: err}
	}
	return out, nil
}

// FetchByKey returns one issue. A missing key is reported as a RemoteError
// wrapping issue.ErrNotFound.
func (s *Store) FetchByKey(ctx context.Context, key string, site issue.Site) (issue.Skeleton, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+skeletonColumns+` FROM issues i WHERE i.key = ?`, key)
	sk, err := scanSkeleton(row)
	if errors.Is(err, sql.ErrNoRows) {
		return issue.Skeleton{}, &issue.RemoteError{Op: "fetch", Site: site.ID, Key: key, Err: issue.ErrNotFound}
	}
	if err != nil {
		return issue.Skeleton{}, &issue.RemoteError{Op: "fetch", Site: site.ID, Key: key, Err: err}
	}
	sk.SiteID = site.ID
	return sk, nil
}

// Count returns the number of stored issues.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count issues: %w", err)
	}
	return n, nil
}

// scanSkeleton scans a row selected with skeletonColumns.
func scanSkeleton(scanner interface{ Scan(...any) error }) (issue.Skeleton, error) {
	var sk issue.Skeleton
	var parent, epic, epicName sql.NullString
	err := scanner.Scan(
		&sk.Key, &parent, &epic, &epicName,
		&sk.Summary, &sk.Type, &sk.Status, &sk.Priority,
	)
	sk.ParentKey = parent.String
	sk.EpicLink = epic.String
	sk.EpicName = epicName.String
	return sk, err
}
