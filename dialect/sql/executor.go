package sql

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/lib/pq"
	sqlite "modernc.org/sqlite"

	"github.com/loamdb/loam"
	"github.com/loamdb/loam/schema"
)

// Executor runs lowered statements through a pooled backend and
// classifies backend-native failures into the generic error taxonomy, so
// callers get dialect-independent handling. It performs no implicit
// statement retries; retry policy belongs to the caller.
type Executor struct {
	pool *Pool
	log  *slog.Logger
}

// NewExecutor returns an executor over the given pool. A nil logger
// falls back to slog.Default.
func NewExecutor(pool *Pool, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{pool: pool, log: logger}
}

// Dialect returns the backend dialect.
func (e *Executor) Dialect() string { return e.pool.Dialect() }

// Pool returns the underlying pool.
func (e *Executor) Pool() *Pool { return e.pool }

// Exec executes a statement that returns no rows. The connection is
// checked out for the duration of the statement and returned on every
// exit path.
func (e *Executor) Exec(ctx context.Context, query string, args []any) (Result, error) {
	c, cleanup, err := e.pool.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup() //nolint:errcheck // close error is secondary to exec outcome
	res, err := c.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, classifyError(e.Dialect(), err)
	}
	return res, nil
}

// Query executes a statement that returns rows. The checked-out
// connection is held until the returned rows are closed; Close releases
// it even when the caller abandons iteration mid-way.
func (e *Executor) Query(ctx context.Context, query string, args []any) (*Rows, error) {
	c, cleanup, err := e.pool.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := c.QueryContext(ctx, query, args...)
	if err != nil {
		err = classifyError(e.Dialect(), err)
		if cerr := cleanup(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, err
	}
	return &Rows{rowsWithCloser{rows, cleanup}}, nil
}

// Tx checks out one connection, starts a transaction on it and runs fn.
// The transaction commits when fn returns nil and rolls back on error or
// context cancellation; the connection returns to the pool on every exit
// path, including a panic inside fn.
func (e *Executor) Tx(ctx context.Context, fn func(tx *Tx) error) (rerr error) {
	c, cleanup, err := e.pool.conn(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cleanup(); cerr != nil && rerr == nil {
			rerr = cerr
		}
	}()
	stx, err := c.BeginTx(ctx, nil)
	if err != nil {
		return classifyError(e.Dialect(), err)
	}
	txID := uuid.NewString()
	e.log.LogAttrs(ctx, slog.LevelDebug, "tx.begin", slog.String("tx_id", txID))
	tx := &Tx{Conn: Conn{stx, e.pool.drv.dialect}, Tx: stx}
	defer func() {
		if p := recover(); p != nil {
			stx.Rollback() //nolint:errcheck
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		err = classifyError(e.Dialect(), err)
		e.log.LogAttrs(ctx, slog.LevelDebug, "tx.rollback",
			slog.String("tx_id", txID), slog.String("cause", err.Error()))
		if rberr := stx.Rollback(); rberr != nil && !errors.Is(rberr, driver.ErrBadConn) {
			return &loam.RollbackError{Cause: err, Err: rberr}
		}
		return err
	}
	if err := stx.Commit(); err != nil {
		return classifyError(e.Dialect(), err)
	}
	e.log.LogAttrs(ctx, slog.LevelDebug, "tx.commit", slog.String("tx_id", txID))
	return nil
}

// Select lowers the builder for the executor's dialect, runs it, and
// decodes the result rows into typed records.
func (e *Executor) Select(ctx context.Context, b *SelectBuilder) ([]schema.Record, error) {
	query, args, err := b.Lower(e.Dialect())
	if err != nil {
		return nil, err
	}
	rows, err := e.Query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	return ScanRows(rows, b.model)
}

// Insert lowers and executes the builder.
func (e *Executor) Insert(ctx context.Context, b *InsertBuilder) (Result, error) {
	query, args, err := b.Lower(e.Dialect())
	if err != nil {
		return nil, err
	}
	return e.Exec(ctx, query, args)
}

// Update lowers and executes the builder.
func (e *Executor) Update(ctx context.Context, b *UpdateBuilder) (Result, error) {
	query, args, err := b.Lower(e.Dialect())
	if err != nil {
		return nil, err
	}
	return e.Exec(ctx, query, args)
}

// Delete lowers and executes the builder.
func (e *Executor) Delete(ctx context.Context, b *DeleteBuilder) (Result, error) {
	query, args, err := b.Lower(e.Dialect())
	if err != nil {
		return nil, err
	}
	return e.Exec(ctx, query, args)
}

// rowsWithCloser wraps the ColumnScanner interface with a custom Close
// hook that returns the connection to the pool.
type rowsWithCloser struct {
	ColumnScanner
	closer func() error
}

// Close closes the underlying ColumnScanner and calls the custom closer.
func (r rowsWithCloser) Close() error {
	err := r.ColumnScanner.Close()
	return errors.Join(err, r.closer())
}

// Classify maps a backend-native error onto the generic taxonomy. It is
// exported for callers that execute statements on a raw transaction and
// still want dialect-independent error handling.
func Classify(d string, err error) error {
	return classifyError(d, err)
}

// classifyError maps a backend-native error onto the generic taxonomy.
// Errors that are already classified, and context cancellations, pass
// through unchanged.
func classifyError(d string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled),
		loam.IsConnectionError(err), loam.IsTimeout(err),
		loam.IsConstraintError(err), loam.IsSyntaxError(err):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return loam.NewTimeoutError(err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, io.EOF):
		return loam.NewConnectionError(err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		if nerr.Timeout() {
			return loam.NewTimeoutError(err)
		}
		return loam.NewConnectionError(err)
	}
	var pqerr *pq.Error
	if errors.As(err, &pqerr) {
		return classifyPostgres(pqerr, err)
	}
	var myerr *mysql.MySQLError
	if errors.As(err, &myerr) {
		return classifyMySQL(myerr, err)
	}
	if errors.Is(err, mysql.ErrInvalidConn) {
		return loam.NewConnectionError(err)
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		return classifySQLite(serr, err)
	}
	return err
}

// classifyPostgres switches on the SQLSTATE class reported by lib/pq.
func classifyPostgres(e *pq.Error, err error) error {
	if e.Code == "57014" { // query_canceled
		return loam.NewTimeoutError(err)
	}
	switch e.Code.Class() {
	case "23": // integrity_constraint_violation
		detail := e.Constraint
		if detail == "" {
			detail = e.Message
		}
		return loam.NewConstraintError(detail, err)
	case "42": // syntax_error_or_access_rule_violation
		return loam.NewSyntaxError(err)
	case "08": // connection_exception
		return loam.NewConnectionError(err)
	}
	return err
}

// classifyMySQL switches on the server error number.
func classifyMySQL(e *mysql.MySQLError, err error) error {
	switch e.Number {
	case 1022, 1048, 1062, 1169, 1216, 1217, 1451, 1452, 1557, 3819:
		return loam.NewConstraintError(e.Message, err)
	case 1054, 1064, 1146:
		return loam.NewSyntaxError(err)
	case 1205: // lock wait timeout
		return loam.NewTimeoutError(err)
	case 1040, 1053, 2002, 2003, 2006, 2013:
		return loam.NewConnectionError(err)
	}
	return err
}

// classifySQLite masks the extended result code down to its primary code.
func classifySQLite(e *sqlite.Error, err error) error {
	switch e.Code() & 0xff {
	case 19: // SQLITE_CONSTRAINT
		return loam.NewConstraintError(e.Error(), err)
	case 1: // SQLITE_ERROR: syntax and unknown-object errors
		return loam.NewSyntaxError(err)
	case 5, 6: // SQLITE_BUSY, SQLITE_LOCKED
		return loam.NewTimeoutError(err)
	case 14: // SQLITE_CANTOPEN
		return loam.NewConnectionError(err)
	}
	return err
}
