package sql_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loamdb/loam/dialect"
	"github.com/loamdb/loam/dialect/sql"
)

func TestStatsDriver(t *testing.T) {
	ctx := context.Background()
	drv, err := sql.Open(dialect.SQLite, "file:stats?mode=memory&cache=shared")
	require.NoError(t, err)
	defer drv.Close() //nolint:errcheck

	var slow []string
	sd := sql.NewStatsDriver(drv,
		sql.WithSlowThreshold(time.Nanosecond),
		sql.WithSlowQueryHook(func(_ context.Context, query string, _ []any, _ time.Duration) {
			slow = append(slow, query)
		}),
	)

	require.NoError(t, sd.Exec(ctx, "CREATE TABLE `kv` (`k` TEXT NOT NULL PRIMARY KEY, `v` TEXT)", []any{}, nil))
	require.NoError(t, sd.Exec(ctx, "INSERT INTO `kv` (`k`, `v`) VALUES (?, ?)", []any{"a", "1"}, nil))

	var rows sql.Rows
	require.NoError(t, sd.Query(ctx, "SELECT `v` FROM `kv` WHERE `k` = ?", []any{"a"}, &rows))
	require.NoError(t, rows.Close())

	// A failing statement still counts.
	assert.Error(t, sd.Exec(ctx, "INSERT INTO `missing` VALUES (1)", []any{}, nil))

	snap := sd.QueryStats().Stats()
	assert.Equal(t, int64(1), snap.TotalQueries)
	assert.Equal(t, int64(3), snap.TotalExecs)
	assert.Equal(t, int64(1), snap.Errors)
	assert.Equal(t, int64(4), snap.SlowQueries)
	assert.Len(t, slow, 4)
	assert.Positive(t, snap.AvgDuration())
	assert.Contains(t, snap.String(), "queries=1 execs=3")

	sd.QueryStats().Reset()
	assert.Equal(t, int64(0), sd.QueryStats().Stats().TotalQueries)
}

func TestStatsTx(t *testing.T) {
	ctx := context.Background()
	drv, err := sql.Open(dialect.SQLite, "file:stats_tx?mode=memory&cache=shared")
	require.NoError(t, err)
	defer drv.Close() //nolint:errcheck

	sd := sql.NewStatsDriver(drv, sql.WithSlowThreshold(time.Hour))
	require.NoError(t, sd.Exec(ctx, "CREATE TABLE `kv` (`k` TEXT NOT NULL PRIMARY KEY)", []any{}, nil))

	tx, err := sd.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Exec(ctx, "INSERT INTO `kv` (`k`) VALUES (?)", []any{"a"}, nil))
	require.NoError(t, tx.Commit())

	snap := sd.QueryStats().Stats()
	assert.Equal(t, int64(2), snap.TotalExecs)
	assert.Equal(t, int64(0), snap.SlowQueries)
}
