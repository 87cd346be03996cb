package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migrate "github.com/loamdb/loam/dialect/sql/schema"
	"github.com/loamdb/loam/schema"
)

func TestValidateSteps(t *testing.T) {
	t.Run("Clean", func(t *testing.T) {
		result := migrate.ValidateSteps([]migrate.Step{
			&migrate.CreateTable{Model: userSnapshot()},
			&migrate.AddColumn{Table: "users", Field: schema.FieldSnapshot{Name: "bio", Type: "text", Nullable: true}},
		})
		assert.False(t, result.HasErrors())
		assert.False(t, result.HasWarnings())
		assert.False(t, result.HasBreakingChanges())
		assert.Equal(t, "No issues found", result.String())
	})

	t.Run("DropTable", func(t *testing.T) {
		steps := []migrate.Step{&migrate.DropTable{Model: userSnapshot()}}

		result := migrate.ValidateSteps(steps)
		require.True(t, result.HasErrors())
		assert.True(t, result.HasBreakingChanges())
		assert.Contains(t, result.String(), "users: table will be dropped")
		assert.Contains(t, result.String(), "[BREAKING]")

		// Allowed drops downgrade to warnings.
		result = migrate.ValidateSteps(steps, migrate.AllowDropTable())
		assert.False(t, result.HasErrors())
		assert.True(t, result.HasWarnings())
		assert.True(t, result.HasBreakingChanges())
	})

	t.Run("DropColumn", func(t *testing.T) {
		steps := []migrate.Step{
			&migrate.DropColumn{Table: "users", Field: schema.FieldSnapshot{Name: "age", Type: "int", Nullable: true}},
		}
		result := migrate.ValidateSteps(steps)
		require.True(t, result.HasErrors())
		assert.Equal(t, "users.age: column will be dropped", result.Errors[0].Error())

		result = migrate.ValidateSteps(steps, migrate.AllowDropColumn())
		assert.False(t, result.HasErrors())
		assert.True(t, result.HasWarnings())
	})

	t.Run("AddNonNullableWithoutDefault", func(t *testing.T) {
		result := migrate.ValidateSteps([]migrate.Step{
			&migrate.AddColumn{Table: "users", Field: schema.FieldSnapshot{Name: "plan", Type: "text"}},
		})
		require.True(t, result.HasErrors())
		assert.Contains(t, result.Errors[0].Message, "without a default")
	})

	t.Run("NarrowingAlter", func(t *testing.T) {
		result := migrate.ValidateSteps([]migrate.Step{
			&migrate.AlterColumnType{
				Table: "users",
				Field: schema.FieldSnapshot{Name: "age", Type: "int", Nullable: true},
				Prev:  schema.FieldSnapshot{Name: "age", Type: "text", Nullable: true},
			},
		})
		assert.False(t, result.HasErrors())
		require.True(t, result.HasWarnings())
		assert.Contains(t, result.Warnings[0].Message, "may lose data")
	})

	t.Run("WideningAlter", func(t *testing.T) {
		result := migrate.ValidateSteps([]migrate.Step{
			&migrate.AlterColumnType{
				Table: "users",
				Field: schema.FieldSnapshot{Name: "age", Type: "text", Nullable: true},
				Prev:  schema.FieldSnapshot{Name: "age", Type: "int", Nullable: true},
			},
		})
		assert.False(t, result.HasErrors())
		assert.False(t, result.HasWarnings())
	})

	t.Run("BecomesNotNull", func(t *testing.T) {
		result := migrate.ValidateSteps([]migrate.Step{
			&migrate.AlterColumnType{
				Table: "users",
				Field: schema.FieldSnapshot{Name: "age", Type: "int"},
				Prev:  schema.FieldSnapshot{Name: "age", Type: "int", Nullable: true},
			},
		})
		require.True(t, result.HasWarnings())
		assert.Contains(t, result.Warnings[0].Message, "NOT NULL")
	})
}
