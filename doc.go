// Package loam is a relational data-access layer over SQLite, PostgreSQL
// and MySQL. Models are declared once against the schema package, queries
// are built as dialect-neutral trees in dialect/sql and lowered to
// parameterized SQL per backend, and schema changes travel as checksummed
// migrations through dialect/sql/schema.
//
// This package holds the error taxonomy shared by every layer: sentinel
// errors for validation failures and typed, classifiable errors for
// execution failures.
package loam
