package sql_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loamdb/loam"
	"github.com/loamdb/loam/dialect"
	"github.com/loamdb/loam/dialect/sql"
)

func mockExecutor(t *testing.T, d string) (*sql.Executor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	pool := sql.NewPool(sql.OpenDB(d, db), sql.PoolConfig{MaxOpen: 2})
	return sql.NewExecutor(pool, nil), mock
}

func TestExecutorExec(t *testing.T) {
	ctx := context.Background()
	exec, mock := mockExecutor(t, dialect.Postgres)

	mock.ExpectExec(`DELETE FROM "users"`).WillReturnResult(sqlmock.NewResult(0, 3))
	res, err := exec.Exec(ctx, `DELETE FROM "users"`, nil)
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutorQueryRows(t *testing.T) {
	ctx := context.Background()
	exec, mock := mockExecutor(t, dialect.Postgres)

	mock.ExpectQuery(`SELECT "id", "name", "age" FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "age"}).
			AddRow(int64(1), "Ada", nil).
			AddRow(int64(2), "Grace", int64(36)))

	recs, err := exec.Select(ctx, sql.SelectFrom(userModel(t)))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.False(t, recs[0]["age"].Valid())
	age, ok := recs[1]["age"].Int()
	require.True(t, ok)
	assert.Equal(t, int64(36), age)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutorTx(t *testing.T) {
	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		exec, mock := mockExecutor(t, dialect.Postgres)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "users" SET "age" = $1`).
			WithArgs(37).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := exec.Tx(ctx, func(tx *sql.Tx) error {
			return tx.Exec(ctx, `UPDATE "users" SET "age" = $1`, []any{37}, nil)
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		exec, mock := mockExecutor(t, dialect.Postgres)
		mock.ExpectBegin()
		mock.ExpectRollback()

		cause := errors.New("domain failure")
		err := exec.Tx(ctx, func(tx *sql.Tx) error { return cause })
		assert.ErrorIs(t, err, cause)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackOnPanic", func(t *testing.T) {
		exec, mock := mockExecutor(t, dialect.Postgres)
		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.Panics(t, func() {
			exec.Tx(ctx, func(tx *sql.Tx) error { panic("boom") }) //nolint:errcheck
		})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackFailure", func(t *testing.T) {
		exec, mock := mockExecutor(t, dialect.Postgres)
		mock.ExpectBegin()
		mock.ExpectRollback().WillReturnError(errors.New("rollback refused"))

		cause := loam.NewConstraintError("users_email_key", nil)
		err := exec.Tx(ctx, func(tx *sql.Tx) error { return cause })
		var rbe *loam.RollbackError
		require.ErrorAs(t, err, &rbe)
		// The triggering error stays reachable through the wrapper.
		assert.True(t, loam.IsConstraintError(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestExecutorClassification(t *testing.T) {
	ctx := context.Background()

	t.Run("PostgresConstraint", func(t *testing.T) {
		exec, mock := mockExecutor(t, dialect.Postgres)
		mock.ExpectExec(`INSERT INTO "users" ("name") VALUES ($1)`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "users_name_key"})

		_, err := exec.Exec(ctx, `INSERT INTO "users" ("name") VALUES ($1)`, []any{"Ada"})
		require.True(t, loam.IsConstraintError(err))
		var ce *loam.ConstraintError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "users_name_key", ce.Detail)
	})

	t.Run("PostgresSyntax", func(t *testing.T) {
		exec, mock := mockExecutor(t, dialect.Postgres)
		mock.ExpectExec("SELEC 1").WillReturnError(&pq.Error{Code: "42601"})
		_, err := exec.Exec(ctx, "SELEC 1", nil)
		assert.True(t, loam.IsSyntaxError(err))
	})

	t.Run("PostgresStatementTimeout", func(t *testing.T) {
		exec, mock := mockExecutor(t, dialect.Postgres)
		mock.ExpectExec("SELECT 1").WillReturnError(&pq.Error{Code: "57014"})
		_, err := exec.Exec(ctx, "SELECT 1", nil)
		assert.True(t, loam.IsTimeout(err))
	})

	t.Run("MySQLDuplicate", func(t *testing.T) {
		exec, mock := mockExecutor(t, dialect.MySQL)
		mock.ExpectExec("INSERT INTO `users` (`name`) VALUES (?)").
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'Ada'"})
		_, err := exec.Exec(ctx, "INSERT INTO `users` (`name`) VALUES (?)", []any{"Ada"})
		assert.True(t, loam.IsConstraintError(err))
	})

	t.Run("BadConnection", func(t *testing.T) {
		exec, mock := mockExecutor(t, dialect.Postgres)
		mock.ExpectExec("SELECT 1").WillReturnError(driver.ErrBadConn)
		// database/sql retries ErrBadConn internally until it gives up on
		// the connection; either way the result classifies as connection.
		_, err := exec.Exec(ctx, "SELECT 1", nil)
		assert.True(t, loam.IsConnectionError(err))
	})
}

func TestClassify(t *testing.T) {
	t.Run("Passthrough", func(t *testing.T) {
		assert.NoError(t, sql.Classify(dialect.SQLite, nil))
		assert.ErrorIs(t, sql.Classify(dialect.Postgres, context.Canceled), context.Canceled)

		classified := loam.NewConstraintError("users_name_key", nil)
		assert.Same(t, error(classified), sql.Classify(dialect.Postgres, classified))

		plain := errors.New("something else")
		assert.Same(t, plain, sql.Classify(dialect.MySQL, plain))
	})

	t.Run("DeadlineExceeded", func(t *testing.T) {
		assert.True(t, loam.IsTimeout(sql.Classify(dialect.SQLite, context.DeadlineExceeded)))
	})

	t.Run("MySQLTable", func(t *testing.T) {
		for number, check := range map[uint16]func(error) bool{
			1062: loam.IsConstraintError,
			1452: loam.IsConstraintError,
			1064: loam.IsSyntaxError,
			1146: loam.IsSyntaxError,
			1205: loam.IsTimeout,
			2002: loam.IsConnectionError,
			2006: loam.IsConnectionError,
		} {
			err := sql.Classify(dialect.MySQL, &mysql.MySQLError{Number: number})
			assert.True(t, check(err), "error number %d", number)
		}
	})

	t.Run("PostgresClasses", func(t *testing.T) {
		assert.True(t, loam.IsConstraintError(sql.Classify(dialect.Postgres, &pq.Error{Code: "23503"})))
		assert.True(t, loam.IsSyntaxError(sql.Classify(dialect.Postgres, &pq.Error{Code: "42P01"})))
		assert.True(t, loam.IsConnectionError(sql.Classify(dialect.Postgres, &pq.Error{Code: "08006"})))
	})
}

// End-to-end roundtrip on an embedded backend: create the table, insert a
// row with a NULL, filter on IS NULL and decode the result.
func TestExecutorRoundTrip(t *testing.T) {
	ctx := context.Background()
	exec := sqliteExecutor(t, "executor_roundtrip", sql.PoolConfig{MaxOpen: 2})
	user := userModel(t)

	stmts, err := sql.BuildDDL(user, dialect.SQLite)
	require.NoError(t, err)
	for _, stmt := range stmts {
		_, err := exec.Exec(ctx, stmt, nil)
		require.NoError(t, err)
	}

	_, err = exec.Insert(ctx, sql.InsertInto(user).Set("name", "Ada").Set("age", nil))
	require.NoError(t, err)
	_, err = exec.Insert(ctx, sql.InsertInto(user).Set("name", "Grace").Set("age", 36))
	require.NoError(t, err)

	recs, err := exec.Select(ctx, sql.SelectFrom(user).Where(sql.IsNull("age")))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	id, ok := recs[0]["id"].Int()
	require.True(t, ok)
	assert.Equal(t, int64(1), id)
	name, ok := recs[0]["name"].Text()
	require.True(t, ok)
	assert.Equal(t, "Ada", name)
	assert.False(t, recs[0]["age"].Valid())

	t.Run("ConstraintClassified", func(t *testing.T) {
		// The rowid is explicit here to force a primary-key conflict.
		_, err := exec.Exec(ctx, "INSERT INTO `users` (`id`, `name`) VALUES (?, ?)", []any{int64(1), "Alan"})
		assert.True(t, loam.IsConstraintError(err))
	})

	t.Run("SyntaxClassified", func(t *testing.T) {
		_, err := exec.Exec(ctx, "SELEC broken", nil)
		assert.True(t, loam.IsSyntaxError(err))
	})

	t.Run("UpdateAndDelete", func(t *testing.T) {
		res, err := exec.Update(ctx, sql.Update(user).Set("age", 37).Where(sql.EQ("name", "Grace")))
		require.NoError(t, err)
		n, err := res.RowsAffected()
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = exec.Delete(ctx, sql.DeleteFrom(user).Where(sql.EQ("name", "Grace")))
		require.NoError(t, err)
		recs, err := exec.Select(ctx, sql.SelectFrom(user))
		require.NoError(t, err)
		assert.Len(t, recs, 1)
	})
}
