package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestRunInTransaction_Commits(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM sections").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM sections WHERE page_id = $1", "p")
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransaction_RollsBackOnError(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	fnErr := errors.New("insert failed")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
		return fnErr
	})

	assert.ErrorIs(t, err, fnErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransaction_BeginError(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	beginErr := errors.New("too many connections")
	mock.ExpectBegin().WillReturnError(beginErr)

	err := RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
		t.Fatal("fn must not run")
		return nil
	})

	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.ErrorIs(t, err, beginErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransaction_CommitError(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	commitErr := errors.New("serialization failure")
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(commitErr)

	err := RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
		return nil
	})

	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.ErrorIs(t, err, commitErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransaction_RollbackError(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	fnErr := errors.New("function failed")
	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(errors.New("rollback failed"))

	err := RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
		return fnErr
	})

	assert.ErrorIs(t, err, fnErr)
	assert.Contains(t, err.Error(), "rollback failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransaction_Panic(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
			panic("boom")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}
