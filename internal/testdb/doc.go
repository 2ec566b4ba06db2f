// Package testdb gives integration tests a migrated PostgreSQL database.
//
// Tests call Open, which skips the test unless SITEGEN_TEST_DB_URL (or
// DATABASE_URL) is set, and isolate their writes with WithTx:
//
//	db := testdb.Open(t)
//	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//	    domains := postgres.NewPostgresDomainStore(tx, nil)
//	    ...
//	})
package testdb
