package loam_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loamdb/loam"
)

func TestUnknownFieldError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := loam.NewUnknownFieldError("User", "agee")
		assert.Equal(t, `loam: unknown field "agee" on model "User"`, err.Error())
	})

	t.Run("Is", func(t *testing.T) {
		err := loam.NewUnknownFieldError("User", "agee")
		assert.True(t, errors.Is(err, loam.ErrUnknownField))
	})

	t.Run("IsUnknownField", func(t *testing.T) {
		err := loam.NewUnknownFieldError("Post", "titel")
		assert.True(t, loam.IsUnknownField(err))

		// Wrapped error
		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, loam.IsUnknownField(wrapped))

		// Sentinel error
		assert.True(t, loam.IsUnknownField(loam.ErrUnknownField))

		// Non-matching error
		assert.False(t, loam.IsUnknownField(errors.New("other error")))
		assert.False(t, loam.IsUnknownField(nil))
	})
}

func TestConstraintError(t *testing.T) {
	cause := errors.New("UNIQUE constraint failed: users.email")
	err := loam.NewConstraintError("users.email", cause)

	t.Run("Error", func(t *testing.T) {
		assert.Equal(t, "loam: constraint violation: users.email", err.Error())
	})

	t.Run("Unwrap", func(t *testing.T) {
		assert.Equal(t, cause, errors.Unwrap(err))
	})

	t.Run("IsConstraintError", func(t *testing.T) {
		assert.True(t, loam.IsConstraintError(err))
		assert.True(t, loam.IsConstraintError(fmt.Errorf("exec: %w", err)))
		assert.False(t, loam.IsConstraintError(cause))
		assert.False(t, loam.IsConstraintError(nil))
	})
}

func TestTimeoutError(t *testing.T) {
	cause := errors.New("canceling statement due to statement timeout")
	err := loam.NewTimeoutError(cause)

	assert.True(t, loam.IsTimeout(err))
	assert.True(t, loam.IsTimeout(fmt.Errorf("query: %w", err)))
	assert.False(t, loam.IsTimeout(cause))
	assert.Equal(t, cause, errors.Unwrap(err))

	// The other execution kinds never report as timeouts.
	assert.False(t, loam.IsTimeout(loam.NewConnectionError(cause)))
	assert.False(t, loam.IsTimeout(loam.NewSyntaxError(cause)))
}

func TestConnectionError(t *testing.T) {
	cause := errors.New("connection refused")
	err := loam.NewConnectionError(cause)

	assert.True(t, loam.IsConnectionError(err))
	assert.True(t, loam.IsConnectionError(fmt.Errorf("dial: %w", err)))
	assert.False(t, loam.IsConnectionError(cause))
	assert.False(t, loam.IsConnectionError(nil))
}

func TestDecodeError(t *testing.T) {
	err := &loam.DecodeError{Column: "age", Expected: "int", Found: "forty"}
	assert.Equal(t, `loam: cannot decode column "age": expected int, found string(forty)`, err.Error())
	assert.True(t, loam.IsDecodeError(err))
	assert.True(t, loam.IsDecodeError(fmt.Errorf("row 3: %w", err)))
	assert.False(t, loam.IsDecodeError(nil))
}

func TestMissingColumnError(t *testing.T) {
	err := &loam.MissingColumnError{Model: "User", Column: "name"}
	assert.Equal(t, `loam: missing column "name" for model "User"`, err.Error())
	assert.True(t, loam.IsMissingColumn(err))
	assert.False(t, loam.IsMissingColumn(errors.New("missing")))
}

func TestRollbackError(t *testing.T) {
	cause := loam.NewConstraintError("users.email", nil)
	err := &loam.RollbackError{Cause: cause, Err: errors.New("driver: bad connection")}

	// The rollback failure must not mask the error that triggered it.
	assert.True(t, loam.IsConstraintError(err))
	assert.Contains(t, err.Error(), "rollback failed")
}
