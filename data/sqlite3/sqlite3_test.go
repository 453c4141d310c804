package sqlite3

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/haydenwoodhead/contact.kiwi/contact"
	"github.com/haydenwoodhead/contact.kiwi/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLite3(t *testing.T) {
	db := GetSQLite3DB("test.sqlite3")

	err := db.Start()
	require.NoError(t, err)

	// iterate over the testing suite and call the function
	for _, f := range data.TestingFuncs {
		f(t, db)
	}

	testUnparsableRateLimit(t, db)
	testStartIsIdempotent(t, db)

	// remove test database
	err = os.Remove("test.sqlite3")
	if err != nil {
		t.Fatalf("SQLite3: failed to delete test database file")
	}
}

func testUnparsableRateLimit(t *testing.T, db *SQLite3) {
	ctx := context.Background()
	db.MustExec(`INSERT INTO rate_limits ("key", last_sent_at) VALUES ($1, $2)`, "192.0.2.99", "yesterday")

	limited, err := db.IsRateLimited(ctx, "192.0.2.99", 5*time.Minute, time.Now())
	assert.NoError(t, err)
	assert.False(t, limited)

	_, err = db.DeleteRateLimitsBefore(ctx, time.Now())
	assert.NoError(t, err)

	_, err = db.GetRateLimit(ctx, "192.0.2.99")
	assert.Equal(t, contact.ErrRateLimitDoesntExist, err)
}

func testStartIsIdempotent(t *testing.T, db *SQLite3) {
	err := db.Start()
	assert.NoError(t, err)
}
