package sql_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loamdb/loam"
	"github.com/loamdb/loam/dialect/sql"
	"github.com/loamdb/loam/schema"
)

func TestDecodeRow(t *testing.T) {
	user := userModel(t)
	columns := []string{"id", "name", "age"}

	t.Run("Basic", func(t *testing.T) {
		rec, err := sql.DecodeRow(columns, []any{int64(1), "Ada", nil}, user)
		require.NoError(t, err)
		assert.True(t, rec["id"].Equal(schema.IntValue(1)))
		assert.True(t, rec["name"].Equal(schema.TextValue("Ada")))
		assert.False(t, rec["age"].Valid())
		assert.Equal(t, schema.TypeInt, rec["age"].Type())
	})

	t.Run("NullOnNonNullable", func(t *testing.T) {
		_, err := sql.DecodeRow(columns, []any{int64(1), nil, nil}, user)
		require.True(t, loam.IsDecodeError(err))
		var de *loam.DecodeError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "name", de.Column)
	})

	t.Run("MissingColumn", func(t *testing.T) {
		_, err := sql.DecodeRow([]string{"id", "age"}, []any{int64(1), nil}, user)
		require.True(t, loam.IsMissingColumn(err))
		var mce *loam.MissingColumnError
		require.ErrorAs(t, err, &mce)
		assert.Equal(t, "name", mce.Column)
		assert.Equal(t, "User", mce.Model)
	})

	t.Run("MissingNullableColumn", func(t *testing.T) {
		rec, err := sql.DecodeRow([]string{"id", "name"}, []any{int64(1), "Ada"}, user)
		require.NoError(t, err)
		assert.False(t, rec["age"].Valid())
	})

	t.Run("ExtraColumnIgnored", func(t *testing.T) {
		rec, err := sql.DecodeRow([]string{"id", "name", "age", "rowid"}, []any{int64(1), "Ada", int64(36), int64(9)}, user)
		require.NoError(t, err)
		assert.Len(t, rec, 3)
	})

	t.Run("ColumnCountMismatch", func(t *testing.T) {
		_, err := sql.DecodeRow(columns, []any{int64(1)}, user)
		assert.ErrorContains(t, err, "columns")
	})

	t.Run("TypeMismatch", func(t *testing.T) {
		_, err := sql.DecodeRow(columns, []any{"not-a-number", "Ada", nil}, user)
		require.True(t, loam.IsDecodeError(err))
		var de *loam.DecodeError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "id", de.Column)
		assert.Equal(t, "int", de.Expected)
	})
}

func TestDecodeCoercions(t *testing.T) {
	m, err := schema.NewModel("Event").
		Fields(
			schema.Int("id").PrimaryKey(),
			schema.Bool("done"),
			schema.DateTime("at"),
			schema.DecimalField("amount"),
			schema.ForeignKey("owner", "User").Nullable(),
		).
		Build()
	require.NoError(t, err)
	columns := []string{"id", "done", "at", "amount", "owner_id"}

	t.Run("MySQLByteSlices", func(t *testing.T) {
		// The MySQL driver surfaces most values as []byte.
		rec, err := sql.DecodeRow(columns, []any{
			[]byte("7"), int64(1), time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), []byte("19.99"), []byte("3"),
		}, m)
		require.NoError(t, err)
		assert.True(t, rec["id"].Equal(schema.IntValue(7)))
		assert.True(t, rec["done"].Equal(schema.BoolValue(true)))
		assert.True(t, rec["amount"].Equal(schema.DecimalValue("19.99")))
		assert.True(t, rec["owner"].Equal(schema.RefValue(3)))
	})

	t.Run("SQLiteTextDateTime", func(t *testing.T) {
		rec, err := sql.DecodeRow(columns, []any{
			int64(1), int64(0), "2024-05-01T10:30:00Z", "0.50", nil,
		}, m)
		require.NoError(t, err)
		at, ok := rec["at"].Time()
		require.True(t, ok)
		assert.True(t, at.Equal(time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)))
		done, ok := rec["done"].Bool()
		require.True(t, ok)
		assert.False(t, done)
	})

	t.Run("BadDateTimeText", func(t *testing.T) {
		_, err := sql.DecodeRow(columns, []any{int64(1), int64(0), "yesterday", "0", nil}, m)
		assert.True(t, loam.IsDecodeError(err))
	})

	t.Run("BoolOutOfRange", func(t *testing.T) {
		_, err := sql.DecodeRow(columns, []any{int64(1), int64(2), "2024-05-01T10:30:00Z", "0", nil}, m)
		assert.True(t, loam.IsDecodeError(err))
	})

	t.Run("DecimalFromFloat", func(t *testing.T) {
		rec, err := sql.DecodeRow(columns, []any{int64(1), true, "2024-05-01T10:30:00Z", 0.5, nil}, m)
		require.NoError(t, err)
		assert.True(t, rec["amount"].Equal(schema.DecimalValue("0.5")))
	})
}
