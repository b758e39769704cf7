package database

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"), time.Second)
	require.NoError(t, err)
	defer db.Close()

	var fk int
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestMigrateSQLiteIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"), time.Second)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, MigrateSQLite(ctx, db, discardLogger()))
	require.NoError(t, MigrateSQLite(ctx, db, discardLogger()))

	files, err := migrationFiles("sqlite")
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(files), count)
}

func TestSQLiteSchemaConstraints(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"), time.Second)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, MigrateSQLite(ctx, db, discardLogger()))

	now := time.Now().UTC()
	_, err = db.ExecContext(ctx,
		`INSERT INTO events (id, title, event_time, location, capacity, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"e1", "t", now, "l", 0, now)
	assert.Error(t, err, "capacity below 1 must be rejected")

	_, err = db.ExecContext(ctx,
		`INSERT INTO registrations (event_id, user_id, created_at) VALUES (?, ?, ?)`,
		"missing", "missing", now)
	assert.Error(t, err, "foreign keys must be enforced")
}

func TestMigrationFilesSorted(t *testing.T) {
	for _, driver := range []string{"postgres", "sqlite"} {
		files, err := migrationFiles(driver)
		require.NoError(t, err)
		require.NotEmpty(t, files)
		assert.IsIncreasing(t, files)
	}
}
