package schema

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/loamdb/loam"
	"github.com/loamdb/loam/dialect"
	isql "github.com/loamdb/loam/dialect/sql"
)

// LedgerTable is the applied-migration ledger present in every store the
// engine manages. Fixed schema: id (integer primary key), applied_at
// (timestamp), checksum (text).
const LedgerTable = "loam_migrations"

// Engine applies, reverts and verifies migrations against one backend.
// Application is serialized process-wide through a backend lock on the
// ledger, so two deploying instances never interleave.
type Engine struct {
	exec     *isql.Executor
	log      *slog.Logger
	lockWait time.Duration // Zero fails fast with ErrMigrationLocked.
	runID    string
}

// Option configures the engine.
type Option func(*Engine)

// WithLockWait blocks up to d for the migration lock instead of failing
// fast.
func WithLockWait(d time.Duration) Option {
	return func(e *Engine) { e.lockWait = d }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine returns a migration engine over the given executor.
func NewEngine(exec *isql.Executor, opts ...Option) *Engine {
	e := &Engine{
		exec:  exec,
		log:   slog.Default(),
		runID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) dialect() string { return e.exec.Dialect() }

// placeholder returns the n-th (1-based) placeholder for the engine
// dialect.
func (e *Engine) placeholder(n int) string {
	if e.dialect() == dialect.Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (e *Engine) ident(name string) string {
	return isql.Ident(e.dialect(), name)
}

// EnsureLedger creates the ledger table when absent.
func (e *Engine) EnsureLedger(ctx context.Context) error {
	var ddl string
	switch d := e.dialect(); d {
	case dialect.SQLite:
		ddl = "CREATE TABLE IF NOT EXISTS " + e.ident(LedgerTable) +
			" (`id` INTEGER NOT NULL PRIMARY KEY, `applied_at` TEXT NOT NULL, `checksum` TEXT NOT NULL)"
	case dialect.Postgres:
		ddl = "CREATE TABLE IF NOT EXISTS " + e.ident(LedgerTable) +
			` ("id" BIGINT NOT NULL PRIMARY KEY, "applied_at" TIMESTAMP WITH TIME ZONE NOT NULL, "checksum" TEXT NOT NULL)`
	case dialect.MySQL:
		ddl = "CREATE TABLE IF NOT EXISTS " + e.ident(LedgerTable) +
			" (`id` BIGINT NOT NULL PRIMARY KEY, `applied_at` DATETIME NOT NULL, `checksum` VARCHAR(64) NOT NULL)"
	default:
		return fmt.Errorf("schema: dialect %q: %w", d, loam.ErrUnsupportedType)
	}
	_, err := e.exec.Exec(ctx, ddl, nil)
	return err
}

// lockKey is the advisory lock key shared by every loam process touching
// one store.
func lockKey() int64 {
	h := fnv.New64a()
	h.Write([]byte("loam:" + LedgerTable))
	return int64(h.Sum64())
}

// lock serializes migration application on the transaction's connection.
// Postgres takes a transaction-scoped advisory lock and MySQL a named
// session lock; SQLite needs none, because the ledger-row primary key
// conflict already picks exactly one winner under the file write lock.
func (e *Engine) lock(ctx context.Context, tx *isql.Tx) error {
	switch e.dialect() {
	case dialect.Postgres:
		if e.lockWait > 0 {
			waitCtx, cancel := context.WithTimeout(ctx, e.lockWait)
			defer cancel()
			err := tx.Exec(waitCtx, "SELECT pg_advisory_xact_lock($1)", []any{lockKey()}, nil)
			if err != nil {
				if waitCtx.Err() != nil && ctx.Err() == nil {
					return loam.ErrMigrationLocked
				}
				return err
			}
			return nil
		}
		ok, err := e.queryBool(ctx, tx, "SELECT pg_try_advisory_xact_lock($1)", lockKey())
		if err != nil {
			return err
		}
		if !ok {
			return loam.ErrMigrationLocked
		}
		return nil
	case dialect.MySQL:
		ok, err := e.queryBool(ctx, tx, "SELECT GET_LOCK(?, ?)", LedgerTable, int64(e.lockWait.Seconds()))
		if err != nil {
			return err
		}
		if !ok {
			return loam.ErrMigrationLocked
		}
		return nil
	}
	return nil
}

// unlock releases the MySQL session lock on the transaction connection.
// The Postgres advisory lock is transaction-scoped and releases itself.
func (e *Engine) unlock(ctx context.Context, tx *isql.Tx) {
	if e.dialect() != dialect.MySQL {
		return
	}
	if err := tx.Exec(ctx, "SELECT RELEASE_LOCK(?)", []any{LedgerTable}, nil); err != nil {
		e.log.LogAttrs(ctx, slog.LevelWarn, "migrate.unlock failed",
			slog.String("run_id", e.runID), slog.String("error", err.Error()))
	}
}

func (e *Engine) queryBool(ctx context.Context, tx *isql.Tx, query string, args ...any) (bool, error) {
	var rows isql.Rows
	if err := tx.Query(ctx, query, args, &rows); err != nil {
		return false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return false, rows.Err()
	}
	var got any
	if err := rows.Scan(&got); err != nil {
		return false, err
	}
	// Postgres reports the advisory lock as a boolean; MySQL's GET_LOCK
	// yields an integer, which the text protocol hands back as bytes.
	switch v := got.(type) {
	case bool:
		return v, nil
	case int64:
		return v == 1, nil
	case []byte:
		return string(v) == "1", nil
	case string:
		return v == "1", nil
	}
	return false, nil
}

// lastApplied returns the highest ledger id, or zero for an empty
// ledger.
func (e *Engine) lastApplied(ctx context.Context, q dialect.ExecQuerier) (int64, error) {
	var rows isql.Rows
	query := "SELECT MAX(" + e.ident("id") + ") FROM " + e.ident(LedgerTable)
	if err := q.Query(ctx, query, []any{}, &rows); err != nil {
		return 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, rows.Err()
	}
	var max isql.NullInt64
	if err := rows.Scan(&max); err != nil {
		return 0, err
	}
	return max.Int64, nil
}

func (e *Engine) appliedAt() any {
	now := time.Now().UTC()
	if e.dialect() == dialect.SQLite {
		return now.Format(time.RFC3339Nano)
	}
	return now
}

// Apply runs the migration inside one transaction: every step's DDL in
// sequence, then the ledger row. Any step failure rolls the whole unit
// back, leaves the ledger untouched and returns a MigrateError carrying
// the step index. A deploy pipeline must treat that as fatal.
func (e *Engine) Apply(ctx context.Context, m *Migration) error {
	checksum, err := m.Checksum()
	if err != nil {
		return err
	}
	if err := e.EnsureLedger(ctx); err != nil {
		return err
	}
	e.log.LogAttrs(ctx, slog.LevelInfo, "migrate.apply",
		slog.String("run_id", e.runID), slog.Int64("id", m.ID),
		slog.String("label", m.Label), slog.String("state", StateApplying.String()))
	err = e.exec.Tx(ctx, func(tx *isql.Tx) error {
		if err := e.lock(ctx, tx); err != nil {
			return err
		}
		defer e.unlock(ctx, tx)
		last, err := e.lastApplied(ctx, tx)
		if err != nil {
			return err
		}
		if m.ID <= last {
			// A concurrent deploy won the race and already recorded it.
			return fmt.Errorf("migration %d already applied: %w", m.ID, loam.ErrMigrationLocked)
		}
		if m.ID != last+1 {
			return fmt.Errorf("schema: migration %d applied after %d: chain must stay contiguous", m.ID, last)
		}
		if err := e.runSteps(ctx, tx, m.ID, m.Steps); err != nil {
			return err
		}
		insert := "INSERT INTO " + e.ident(LedgerTable) +
			" (" + e.ident("id") + ", " + e.ident("applied_at") + ", " + e.ident("checksum") + ")" +
			" VALUES (" + e.placeholder(1) + ", " + e.placeholder(2) + ", " + e.placeholder(3) + ")"
		if err := tx.Exec(ctx, insert, []any{m.ID, e.appliedAt(), checksum}, nil); err != nil {
			err = isql.Classify(e.dialect(), err)
			if loam.IsConstraintError(err) {
				// A concurrent applier recorded the row first.
				return fmt.Errorf("%w: %v", loam.ErrMigrationLocked, err)
			}
			return err
		}
		return nil
	})
	state := StateApplied
	if err != nil {
		state = StateFailed
	}
	e.log.LogAttrs(ctx, slog.LevelInfo, "migrate.apply done",
		slog.String("run_id", e.runID), slog.Int64("id", m.ID),
		slog.String("state", state.String()))
	return err
}

// runSteps executes each step's DDL in order, classifying failures and
// tagging them with the step index.
func (e *Engine) runSteps(ctx context.Context, tx *isql.Tx, id int64, steps []Step) error {
	for i, step := range steps {
		stmts, err := step.DDL(e.dialect())
		if err != nil {
			return &MigrateError{MigrationID: id, Step: i, Err: err}
		}
		e.log.LogAttrs(ctx, slog.LevelDebug, "migrate.step",
			slog.String("run_id", e.runID), slog.Int64("id", id),
			slog.Int("step", i), slog.String("op", step.Describe()))
		for _, stmt := range stmts {
			if err := tx.Exec(ctx, stmt, []any{}, nil); err != nil {
				return &MigrateError{MigrationID: id, Step: i, Err: isql.Classify(e.dialect(), err)}
			}
		}
	}
	return nil
}

// Revert undoes the migration: each step's inverse in reverse step
// order, inside one transaction that also deletes the ledger row. Only
// the head of the applied chain can be reverted. It fails with
// ErrNonRevertible when any inverse is ambiguous.
func (e *Engine) Revert(ctx context.Context, m *Migration) error {
	inverse, err := m.Inverse()
	if err != nil {
		return err
	}
	checksum, err := m.Checksum()
	if err != nil {
		return err
	}
	if err := e.EnsureLedger(ctx); err != nil {
		return err
	}
	e.log.LogAttrs(ctx, slog.LevelInfo, "migrate.revert",
		slog.String("run_id", e.runID), slog.Int64("id", m.ID),
		slog.String("state", StateReverting.String()))
	err = e.exec.Tx(ctx, func(tx *isql.Tx) error {
		if err := e.lock(ctx, tx); err != nil {
			return err
		}
		defer e.unlock(ctx, tx)
		last, err := e.lastApplied(ctx, tx)
		if err != nil {
			return err
		}
		if last != m.ID {
			return fmt.Errorf("schema: migration %d is not the head of the applied chain (head is %d)", m.ID, last)
		}
		applied, err := e.ledgerChecksum(ctx, tx, m.ID)
		if err != nil {
			return err
		}
		if applied != checksum {
			return fmt.Errorf("migration %d checksum mismatch on revert: %w", m.ID, loam.ErrDriftDetected)
		}
		if err := e.runSteps(ctx, tx, m.ID, inverse); err != nil {
			return err
		}
		del := "DELETE FROM " + e.ident(LedgerTable) + " WHERE " + e.ident("id") + " = " + e.placeholder(1)
		return tx.Exec(ctx, del, []any{m.ID}, nil)
	})
	state := StateReverted
	if err != nil {
		state = StateFailed
	}
	e.log.LogAttrs(ctx, slog.LevelInfo, "migrate.revert done",
		slog.String("run_id", e.runID), slog.Int64("id", m.ID),
		slog.String("state", state.String()))
	return err
}

func (e *Engine) ledgerChecksum(ctx context.Context, q dialect.ExecQuerier, id int64) (string, error) {
	var rows isql.Rows
	query := "SELECT " + e.ident("checksum") + " FROM " + e.ident(LedgerTable) +
		" WHERE " + e.ident("id") + " = " + e.placeholder(1)
	if err := q.Query(ctx, query, []any{id}, &rows); err != nil {
		return "", err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("schema: migration %d not present in ledger", id)
	}
	var sum string
	if err := rows.Scan(&sum); err != nil {
		return "", err
	}
	return sum, nil
}

// ledgerRow is one persisted ledger entry.
type ledgerRow struct {
	id        int64
	appliedAt time.Time
	checksum  string
}

func (e *Engine) ledgerRows(ctx context.Context) ([]ledgerRow, error) {
	var rows isql.Rows
	query := "SELECT " + e.ident("id") + ", " + e.ident("applied_at") + ", " + e.ident("checksum") +
		" FROM " + e.ident(LedgerTable) + " ORDER BY " + e.ident("id")
	if err := e.exec.Pool().Driver().Query(ctx, query, []any{}, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledgerRow
	for rows.Next() {
		var (
			row ledgerRow
			at  any
		)
		if err := rows.Scan(&row.id, &at, &row.checksum); err != nil {
			return nil, err
		}
		switch v := at.(type) {
		case time.Time:
			row.appliedAt = v
		case string:
			row.appliedAt, _ = time.Parse(time.RFC3339Nano, v)
		case []byte:
			row.appliedAt, _ = time.Parse(time.RFC3339Nano, string(v))
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Verify compares the persisted ledger against the compiled migration
// sequence. Any gap, unknown id or checksum mismatch fails with
// ErrDriftDetected; a process must refuse to serve against a drifted
// store.
func (e *Engine) Verify(ctx context.Context, migrations []*Migration) error {
	if err := e.EnsureLedger(ctx); err != nil {
		return err
	}
	compiled := sortedByID(migrations)
	rows, err := e.ledgerRows(ctx)
	if err != nil {
		return err
	}
	if len(rows) > len(compiled) {
		return fmt.Errorf("ledger has %d entries but only %d migrations are compiled: %w",
			len(rows), len(compiled), loam.ErrDriftDetected)
	}
	for i, row := range rows {
		m := compiled[i]
		if row.id != m.ID {
			return fmt.Errorf("ledger entry %d has id %d, expected %d: %w", i, row.id, m.ID, loam.ErrDriftDetected)
		}
		sum, err := m.Checksum()
		if err != nil {
			return err
		}
		if row.checksum != sum {
			return fmt.Errorf("migration %d checksum mismatch: %w", m.ID, loam.ErrDriftDetected)
		}
	}
	return nil
}

// Status reconciles the compiled sequence against the ledger.
func (e *Engine) Status(ctx context.Context, migrations []*Migration) ([]Status, error) {
	if err := e.EnsureLedger(ctx); err != nil {
		return nil, err
	}
	rows, err := e.ledgerRows(ctx)
	if err != nil {
		return nil, err
	}
	applied := make(map[int64]ledgerRow, len(rows))
	for _, row := range rows {
		applied[row.id] = row
	}
	out := make([]Status, 0, len(migrations))
	for _, m := range sortedByID(migrations) {
		st := Status{ID: m.ID, Label: m.Label, State: StatePending}
		if row, ok := applied[m.ID]; ok {
			st.State = StateApplied
			st.AppliedAt = row.appliedAt
		}
		out = append(out, st)
	}
	return out, nil
}

// ApplyPending applies, in order, every compiled migration not yet in
// the ledger.
func (e *Engine) ApplyPending(ctx context.Context, migrations []*Migration) (int, error) {
	if err := e.Verify(ctx, migrations); err != nil {
		return 0, err
	}
	last, err := e.headID(ctx)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, m := range sortedByID(migrations) {
		if m.ID <= last {
			continue
		}
		if err := e.Apply(ctx, m); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func (e *Engine) headID(ctx context.Context) (int64, error) {
	return e.lastApplied(ctx, e.exec.Pool().Driver())
}

func sortedByID(migrations []*Migration) []*Migration {
	out := append([]*Migration(nil), migrations...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
