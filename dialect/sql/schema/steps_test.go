package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loamdb/loam"
	"github.com/loamdb/loam/dialect"
	migrate "github.com/loamdb/loam/dialect/sql/schema"
	"github.com/loamdb/loam/schema"
)

func userSnapshot() schema.ModelSnapshot {
	return schema.ModelSnapshot{
		Name:  "User",
		Table: "users",
		Fields: []schema.FieldSnapshot{
			{Name: "id", Type: "int", PrimaryKey: true},
			{Name: "name", Type: "text"},
			{Name: "age", Type: "int", Nullable: true},
		},
	}
}

func TestCreateTableStep(t *testing.T) {
	s := &migrate.CreateTable{Model: userSnapshot()}
	assert.Equal(t, "create table users", s.Describe())

	stmts, err := s.DDL(dialect.SQLite)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t, "CREATE TABLE `users` ("+
		"`id` INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT, "+
		"`name` TEXT NOT NULL, "+
		"`age` INTEGER)", stmts[0])

	inv, err := s.Inverse()
	require.NoError(t, err)
	drop, ok := inv.(*migrate.DropTable)
	require.True(t, ok)
	assert.Equal(t, "users", drop.Model.Table)
}

func TestDropTableStep(t *testing.T) {
	s := &migrate.DropTable{Model: userSnapshot()}
	stmts, err := s.DDL(dialect.Postgres)
	require.NoError(t, err)
	assert.Equal(t, []string{`DROP TABLE "users"`}, stmts)

	// The inverse recreates the structure; the rows are gone.
	inv, err := s.Inverse()
	require.NoError(t, err)
	create, ok := inv.(*migrate.CreateTable)
	require.True(t, ok)
	assert.Equal(t, s.Model, create.Model)
}

func TestAddColumnStep(t *testing.T) {
	t.Run("Nullable", func(t *testing.T) {
		s := &migrate.AddColumn{Table: "users", Field: schema.FieldSnapshot{Name: "bio", Type: "text", Nullable: true}}
		stmts, err := s.DDL(dialect.SQLite)
		require.NoError(t, err)
		assert.Equal(t, []string{"ALTER TABLE `users` ADD COLUMN `bio` TEXT"}, stmts)
	})

	t.Run("WithDefault", func(t *testing.T) {
		s := &migrate.AddColumn{Table: "users", Field: schema.FieldSnapshot{Name: "plan", Type: "text", Default: "free"}}
		stmts, err := s.DDL(dialect.MySQL)
		require.NoError(t, err)
		assert.Equal(t, []string{"ALTER TABLE `users` ADD COLUMN `plan` VARCHAR(255) NOT NULL DEFAULT 'free'"}, stmts)
	})

	t.Run("NonNullableWithoutDefault", func(t *testing.T) {
		s := &migrate.AddColumn{Table: "users", Field: schema.FieldSnapshot{Name: "plan", Type: "text"}}
		_, err := s.DDL(dialect.SQLite)
		assert.ErrorContains(t, err, "requires a default")
	})
}

func TestDropColumnInverse(t *testing.T) {
	t.Run("Nullable", func(t *testing.T) {
		s := &migrate.DropColumn{Table: "users", Field: schema.FieldSnapshot{Name: "bio", Type: "text", Nullable: true}}
		inv, err := s.Inverse()
		require.NoError(t, err)
		add, ok := inv.(*migrate.AddColumn)
		require.True(t, ok)
		assert.Equal(t, "bio", add.Field.Name)
	})

	t.Run("NonRevertible", func(t *testing.T) {
		// The dropped data cannot be reinvented for a NOT NULL column
		// without a default.
		s := &migrate.DropColumn{Table: "users", Field: schema.FieldSnapshot{Name: "name", Type: "text"}}
		_, err := s.Inverse()
		assert.ErrorIs(t, err, loam.ErrNonRevertible)
	})
}

func TestAlterColumnTypeStep(t *testing.T) {
	model := userSnapshot()
	model.Fields[2] = schema.FieldSnapshot{Name: "age", Type: "text", Nullable: true}
	s := &migrate.AlterColumnType{
		Table: "users",
		Field: model.Fields[2],
		Prev:  schema.FieldSnapshot{Name: "age", Type: "int", Nullable: true},
		Model: model,
	}

	t.Run("Postgres", func(t *testing.T) {
		stmts, err := s.DDL(dialect.Postgres)
		require.NoError(t, err)
		assert.Equal(t, []string{`ALTER TABLE "users" ALTER COLUMN "age" TYPE TEXT USING "age"::TEXT`}, stmts)
	})

	t.Run("MySQL", func(t *testing.T) {
		stmts, err := s.DDL(dialect.MySQL)
		require.NoError(t, err)
		assert.Equal(t, []string{"ALTER TABLE `users` MODIFY COLUMN `age` VARCHAR(255)"}, stmts)
	})

	t.Run("SQLiteRebuild", func(t *testing.T) {
		stmts, err := s.DDL(dialect.SQLite)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"CREATE TABLE `users__new` (`id` INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT, `name` TEXT NOT NULL, `age` TEXT)",
			"INSERT INTO `users__new` (`id`, `name`, `age`) SELECT `id`, `name`, `age` FROM `users`",
			"DROP TABLE `users`",
			"ALTER TABLE `users__new` RENAME TO `users`",
		}, stmts)
	})

	t.Run("Inverse", func(t *testing.T) {
		inv, err := s.Inverse()
		require.NoError(t, err)
		alter, ok := inv.(*migrate.AlterColumnType)
		require.True(t, ok)
		assert.Equal(t, "int", alter.Field.Type)
		assert.Equal(t, "text", alter.Prev.Type)
		f, ok := alter.Model.Field("age")
		require.True(t, ok)
		assert.Equal(t, "int", f.Type)
		// The original step's snapshot is untouched.
		f, ok = s.Model.Field("age")
		require.True(t, ok)
		assert.Equal(t, "text", f.Type)
	})
}

func TestIndexSteps(t *testing.T) {
	idx := schema.IndexSnapshot{Name: "users_name", Columns: []string{"name"}, Unique: true}

	add := &migrate.AddIndex{Table: "users", Index: idx}
	stmts, err := add.DDL(dialect.SQLite)
	require.NoError(t, err)
	assert.Equal(t, []string{"CREATE UNIQUE INDEX `users_name` ON `users` (`name`)"}, stmts)

	inv, err := add.Inverse()
	require.NoError(t, err)
	drop, ok := inv.(*migrate.DropIndex)
	require.True(t, ok)

	stmts, err = drop.DDL(dialect.MySQL)
	require.NoError(t, err)
	assert.Equal(t, []string{"DROP INDEX `users_name` ON `users`"}, stmts)

	back, err := drop.Inverse()
	require.NoError(t, err)
	assert.Equal(t, add, back)
}
