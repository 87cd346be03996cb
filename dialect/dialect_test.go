package dialect_test

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loamdb/loam/dialect"
	"github.com/loamdb/loam/dialect/sql"
)

func TestValid(t *testing.T) {
	for _, d := range dialect.All() {
		assert.True(t, dialect.Valid(d))
	}
	assert.False(t, dialect.Valid("oracle"))
	assert.False(t, dialect.Valid(""))
}

func TestDebugDriver(t *testing.T) {
	ctx := context.Background()
	drv, err := sql.Open(dialect.SQLite, "file:debug?mode=memory&cache=shared")
	require.NoError(t, err)
	defer drv.Close() //nolint:errcheck

	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	dbg := dialect.Debug(drv, logger)

	require.NoError(t, dbg.Exec(ctx, "CREATE TABLE `kv` (`k` TEXT NOT NULL PRIMARY KEY)", []any{}, nil))

	tx, err := dbg.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Exec(ctx, "INSERT INTO `kv` (`k`) VALUES (?)", []any{"a"}, nil))
	require.NoError(t, tx.Commit())

	var rows sql.Rows
	require.NoError(t, dbg.Query(ctx, "SELECT `k` FROM `kv`", []any{}, &rows))
	require.NoError(t, rows.Close())

	out := buf.String()
	assert.Contains(t, out, "driver.Exec")
	assert.Contains(t, out, "tx.Exec")
	assert.Contains(t, out, "tx.Commit")
	assert.Contains(t, out, "driver.Query")
}

func TestNopTx(t *testing.T) {
	drv, err := sql.Open(dialect.SQLite, "file:noptx?mode=memory&cache=shared")
	require.NoError(t, err)
	defer drv.Close() //nolint:errcheck

	tx := dialect.NopTx(drv)
	require.NoError(t, tx.Exec(context.Background(), "CREATE TABLE `kv` (`k` TEXT NOT NULL PRIMARY KEY)", []any{}, nil))
	assert.NoError(t, tx.Commit())
	assert.NoError(t, tx.Rollback())
}
