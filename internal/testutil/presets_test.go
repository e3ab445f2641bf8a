package testutil

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
)

func queryKeys(t *testing.T, db *sql.DB, query string) []string {
	t.Helper()
	rows, err := db.Query(query)
	require.NoError(t, err)
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		require.NoError(t, rows.Scan(&key))
		keys = append(keys, key)
	}
	require.NoError(t, rows.Err())
	return keys
}

func TestPreset_StandardTestData(t *testing.T) {
	db := NewTestDB(t)
	defer func() { _ = db.Close() }()

	NewBuilder(t, db).WithStandardTestData().Build()

	require.Equal(t,
		[]string{"CORE-1", "CORE-2", "CORE-3", "CORE-4", "OPS-1"},
		queryKeys(t, db, `SELECT key FROM issues ORDER BY key`))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM labels`).Scan(&count))
	require.Equal(t, 5, count, "expected 5 labels")
}

func TestPreset_HierarchyTestData(t *testing.T) {
	db := NewTestDB(t)
	defer func() { _ = db.Close() }()

	NewBuilder(t, db).WithHierarchyTestData().Build()

	require.Equal(t,
		[]string{"CORE-11", "CORE-13", "CORE-21"},
		queryKeys(t, db, `SELECT key FROM issues WHERE epic_key = 'CORE-10' ORDER BY key`))
	require.Equal(t,
		[]string{"CORE-12", "CORE-21"},
		queryKeys(t, db, `SELECT key FROM issues WHERE parent_key IS NOT NULL ORDER BY key`))
	require.Equal(t,
		[]string{"CORE-10"},
		queryKeys(t, db, `SELECT key FROM issues WHERE epic_name IS NOT NULL`))
}
