package sqlite

import (
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestNewDB_CreatesDirectory verifies that NewDB creates the parent directory if missing.
func TestNewDB_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "issues.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err, "NewDB should succeed even with nested non-existent directories")
	defer db.Close()

	info, err := os.Stat(filepath.Dir(dbPath))
	require.NoError(t, err, "Directory should exist after NewDB")
	require.True(t, info.IsDir(), "Should be a directory")

	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), info.Mode().Perm(), "Directory should have 0700 permissions")
	}
}

// TestNewDB_RunsMigrations verifies that every embedded migration is applied.
func TestNewDB_RunsMigrations(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "issues.db"))
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"issues", "labels", "schema_migrations"} {
		var name string
		err = db.conn.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "%s table should exist after migrations", table)
	}

	var index string
	err = db.conn.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_issues_updated'",
	).Scan(&index)
	require.NoError(t, err, "second migration should have run")

	version, err := db.SchemaVersion()
	require.NoError(t, err)
	require.Equal(t, uint(2), version)
}

// TestNewDB_ReopenSkipsAppliedMigrations verifies migrations run once.
func TestNewDB_ReopenSkipsAppliedMigrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "issues.db")

	db1, err := NewDB(dbPath)
	require.NoError(t, err)
	require.NoError(t, db1.Close())

	db2, err := NewDB(dbPath)
	require.NoError(t, err, "reopening must not re-run CREATE TABLE migrations")
	defer db2.Close()

	var applied int
	require.NoError(t, db2.conn.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	require.Equal(t, 2, applied)
}

// TestNewDB_PreMigrationBackup verifies that a .bak file is created
// when an existing database file is present.
func TestNewDB_PreMigrationBackup(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "issues.db")

	db1, err := NewDB(dbPath)
	require.NoError(t, err, "First NewDB should succeed")
	_, err = db1.conn.Exec("INSERT INTO issues (key, project) VALUES (?, ?)", "CORE-1", "CORE")
	require.NoError(t, err)
	db1.Close()

	_, err = os.Stat(dbPath + ".bak")
	require.True(t, os.IsNotExist(err), "first open of a new file makes no backup")

	db2, err := NewDB(dbPath)
	require.NoError(t, err, "Second NewDB should succeed")
	defer db2.Close()

	info, err := os.Stat(dbPath + ".bak")
	require.NoError(t, err, "Backup file should exist after second NewDB")
	require.Greater(t, info.Size(), int64(0), "Backup file should have content")
}

// TestNewDB_Pragmas verifies connection pragmas from the DSN.
func TestNewDB_Pragmas(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "issues.db"))
	require.NoError(t, err)
	defer db.Close()

	var journalMode string
	require.NoError(t, db.conn.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	require.Equal(t, "wal", journalMode)

	var foreignKeys int
	require.NoError(t, db.conn.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	require.Equal(t, 1, foreignKeys)

	var timeout int
	require.NoError(t, db.conn.QueryRow("PRAGMA busy_timeout").Scan(&timeout))
	require.Equal(t, busyTimeout, timeout)
}

// TestDB_Close verifies that connection closes cleanly.
func TestDB_Close(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "issues.db"))
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.Error(t, db.conn.Ping(), "Ping should fail after Close")
}

// TestDB_Accessors verifies Connection, Path and Store.
func TestDB_Accessors(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "issues.db")
	db, err := NewDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	require.IsType(t, (*sql.DB)(nil), db.Connection())
	require.NoError(t, db.Connection().Ping())
	require.Equal(t, dbPath, db.Path())
	require.NotNil(t, db.Store())
}

// TestNewDB_InvalidPath verifies that NewDB returns an error when the
// parent directory cannot be created.
func TestNewDB_InvalidPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := NewDB(filepath.Join(blocker, "issues.db"))
	require.Error(t, err)
}
