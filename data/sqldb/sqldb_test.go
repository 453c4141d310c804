package sqldb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLDatabase {
	db := GetDatabase("sqlite3", filepath.Join(t.TempDir(), "test.sqlite3"))
	t.Cleanup(func() { _ = db.Close() })

	err := db.Start()
	require.NoError(t, err)

	return db
}

func TestSQLDatabase_DeleteRateLimitIfUnchanged(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	db := newTestSQLite(t)

	err := db.UpsertRateLimit(ctx, "192.0.2.1", now.Add(-10*time.Minute))
	require.NoError(t, err)

	listed, err := db.GetRateLimit(ctx, "192.0.2.1")
	require.NoError(t, err)

	// the same client submits again after the purge listed the old record
	err = db.UpsertRateLimit(ctx, "192.0.2.1", now)
	require.NoError(t, err)

	deleted, err := db.deleteRateLimitIfUnchanged(ctx, listed)
	require.NoError(t, err)
	assert.False(t, deleted)

	limited, err := db.IsRateLimited(ctx, "192.0.2.1", 5*time.Minute, now)
	require.NoError(t, err)
	assert.True(t, limited)

	current, err := db.GetRateLimit(ctx, "192.0.2.1")
	require.NoError(t, err)

	deleted, err = db.deleteRateLimitIfUnchanged(ctx, current)
	require.NoError(t, err)
	assert.True(t, deleted)
}
