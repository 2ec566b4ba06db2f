package testdb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/phrazzld/sitegen-api/internal/platform/logger"
	"github.com/phrazzld/sitegen-api/internal/platform/postgres"
	"github.com/stretchr/testify/require"
)

// TestTimeout bounds connection setup and migrations.
const TestTimeout = 30 * time.Second

var migrateOnce sync.Once
var migrateErr error

// GetTestDatabaseURL returns SITEGEN_TEST_DB_URL, falling back to DATABASE_URL.
func GetTestDatabaseURL() string {
	if url := os.Getenv("SITEGEN_TEST_DB_URL"); url != "" {
		return url
	}
	return os.Getenv("DATABASE_URL")
}

// IsIntegrationTestEnvironment reports whether a test database is configured.
func IsIntegrationTestEnvironment() bool {
	return GetTestDatabaseURL() != ""
}

// Open connects to the test database and applies the content schema once
// per test binary. The test is skipped when no database is configured.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	url := GetTestDatabaseURL()
	if url == "" {
		t.Skip("integration test: set SITEGEN_TEST_DB_URL to run")
	}

	db, err := sql.Open("pgx", url)
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	require.NoError(t, db.PingContext(ctx), "failed to ping test database")

	migrateOnce.Do(func() {
		log, _ := logger.NewTestLogger()
		migrateErr = postgres.Migrate(ctx, db, "up", log)
	})
	require.NoError(t, migrateErr, "failed to migrate test database")
	return db
}

// WithTx runs fn inside a transaction that is rolled back afterwards.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	tx, err := db.Begin()
	require.NoError(t, err, "failed to begin transaction")
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Errorf("failed to roll back test transaction: %v", err)
		}
	}()

	fn(t, tx)
}
