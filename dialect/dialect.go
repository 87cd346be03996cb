package dialect

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Supported dialects.
const (
	// SQLite is the embedded file-based engine.
	SQLite = "sqlite"
	// Postgres is the PostgreSQL engine.
	Postgres = "postgres"
	// MySQL is the MySQL engine.
	MySQL = "mysql"
)

// All returns the closed set of supported dialects.
func All() []string {
	return []string{SQLite, Postgres, MySQL}
}

// Valid reports whether name is a supported dialect.
func Valid(name string) bool {
	switch name {
	case SQLite, Postgres, MySQL:
		return true
	}
	return false
}

// ExecQuerier wraps the two standard ways to interact with a database.
type ExecQuerier interface {
	// Exec executes a statement that does not return rows. The args
	// value must be of type []any, and v (if non-nil) of type
	// *sql.Result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a statement that returns rows. The args value must
	// be of type []any and v of type *sql.Rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the minimal interface a backend must provide to the
// data-access layer. Wire protocol, handshake and framing belong to the
// underlying database driver; this layer only ever passes SQL text and
// bound parameters through it.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps transaction commit and rollback on top of ExecQuerier. A
// transaction is bound to exactly one connection for its full duration.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}

type nopTx struct {
	Driver
}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }

// NopTx returns a Tx with a no-op Commit / Rollback backed by the given
// driver. Useful for running transactional code against a driver that
// already manages its own transaction.
func NopTx(d Driver) Tx {
	return nopTx{d}
}

// DebugDriver is a driver that logs all driver operations through slog.
type DebugDriver struct {
	Driver
	log *slog.Logger
}

// Debug wraps a driver with a logging driver using the default slog
// logger, or the given one.
func Debug(d Driver, logger ...*slog.Logger) Driver {
	l := slog.Default()
	if len(logger) > 0 {
		l = logger[0]
	}
	return &DebugDriver{d, l}
}

// Exec logs its params and calls the underlying driver Exec method.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	d.log.LogAttrs(ctx, slog.LevelDebug, "driver.Exec",
		slog.String("query", query),
		slog.String("args", fmt.Sprint(args)),
		slog.Duration("duration", time.Since(start)),
	)
	return err
}

// Query logs its params and calls the underlying driver Query method.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	d.log.LogAttrs(ctx, slog.LevelDebug, "driver.Query",
		slog.String("query", query),
		slog.String("args", fmt.Sprint(args)),
		slog.Duration("duration", time.Since(start)),
	)
	return err
}

// Tx starts a logged transaction.
func (d *DebugDriver) Tx(ctx context.Context) (Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	d.log.LogAttrs(ctx, slog.LevelDebug, "driver.Tx started")
	return &DebugTx{tx, d.log, ctx}, nil
}

// DebugTx is a transaction implementation that logs all transaction
// operations.
type DebugTx struct {
	Tx
	log *slog.Logger
	ctx context.Context
}

// Exec logs its params and calls the underlying transaction Exec method.
func (d *DebugTx) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Tx.Exec(ctx, query, args, v)
	d.log.LogAttrs(ctx, slog.LevelDebug, "tx.Exec",
		slog.String("query", query),
		slog.String("args", fmt.Sprint(args)),
		slog.Duration("duration", time.Since(start)),
	)
	return err
}

// Query logs its params and calls the underlying transaction Query method.
func (d *DebugTx) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Tx.Query(ctx, query, args, v)
	d.log.LogAttrs(ctx, slog.LevelDebug, "tx.Query",
		slog.String("query", query),
		slog.String("args", fmt.Sprint(args)),
		slog.Duration("duration", time.Since(start)),
	)
	return err
}

// Commit logs the commit and calls the underlying transaction Commit.
func (d *DebugTx) Commit() error {
	err := d.Tx.Commit()
	d.log.LogAttrs(d.ctx, slog.LevelDebug, "tx.Commit")
	return err
}

// Rollback logs the rollback and calls the underlying transaction
// Rollback.
func (d *DebugTx) Rollback() error {
	err := d.Tx.Rollback()
	d.log.LogAttrs(d.ctx, slog.LevelDebug, "tx.Rollback")
	return err
}
