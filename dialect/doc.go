// Package dialect provides the database dialect abstraction for loam.
//
// It defines the interfaces and constants used for database-specific
// operations, allowing the data-access layer to support multiple backends
// behind one contract.
//
// # Supported Dialects
//
// Each dialect is identified by a constant string:
//
//	dialect.SQLite   = "sqlite"
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//
// The set is closed: DDL rendering, query lowering and error
// classification all switch over these three values.
//
// # Driver Interface
//
// The Driver interface is the executor contract:
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// The Tx interface adds Commit and Rollback on top of ExecQuerier. A
// transaction is bound to a single connection for its full duration.
//
// # Usage
//
//	import (
//	    "github.com/loamdb/loam/dialect"
//	    "github.com/loamdb/loam/dialect/sql"
//	)
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
// # Sub-packages
//
//   - dialect/sql: database/sql adapter, pooling, query building, DDL
//     rendering and row decoding
//   - dialect/sql/schema: migration steps, diffing, the applied-migration
//     ledger and locking
package dialect
