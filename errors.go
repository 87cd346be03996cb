package loam

import (
	"errors"
	"fmt"
)

// Sentinel errors for build-time validation failures. Validation errors
// surface synchronously from builders and the registry and are never
// retried.
var (
	// ErrUnknownField is returned when a query references a field that
	// does not exist on the target model.
	ErrUnknownField = errors.New("loam: unknown field")

	// ErrDuplicateModel is returned when a model is registered under a
	// table name that is already taken.
	ErrDuplicateModel = errors.New("loam: duplicate model")

	// ErrRegistrySealed is returned when registering a model after the
	// registry has been sealed.
	ErrRegistrySealed = errors.New("loam: registry sealed")

	// ErrUnsupportedType is returned when a semantic type has no column
	// mapping for the requested dialect.
	ErrUnsupportedType = errors.New("loam: unsupported type")
)

// Sentinel errors for execution and migration failures.
var (
	// ErrPoolTimeout is returned when a connection could not be checked
	// out of the pool within the configured timeout.
	ErrPoolTimeout = errors.New("loam: pool checkout timeout")

	// ErrMigrationLocked is returned when another process holds the
	// migration lock on the target store.
	ErrMigrationLocked = errors.New("loam: migration already in progress")

	// ErrNonRevertible is returned when a migration step has no
	// unambiguous inverse.
	ErrNonRevertible = errors.New("loam: migration is not revertible")

	// ErrDriftDetected is returned when the applied-migration ledger
	// disagrees with the compiled migration sequence. It is fatal at
	// startup: the process must refuse to serve against a drifted store.
	ErrDriftDetected = errors.New("loam: migration ledger drift detected")
)

// UnknownFieldError reports a field reference that failed build-time
// validation against a model descriptor.
type UnknownFieldError struct {
	Model string
	Field string
}

// Error returns the error string.
func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("loam: unknown field %q on model %q", e.Field, e.Model)
}

// Is reports whether the target matches ErrUnknownField.
func (e *UnknownFieldError) Is(err error) bool {
	return err == ErrUnknownField
}

// NewUnknownFieldError returns a new UnknownFieldError.
func NewUnknownFieldError(model, field string) *UnknownFieldError {
	return &UnknownFieldError{Model: model, Field: field}
}

// IsUnknownField returns true if the error reports an unknown field
// reference.
func IsUnknownField(err error) bool {
	return errors.Is(err, ErrUnknownField)
}

// ConnectionError represents a failure to reach or keep a connection to
// the backend.
type ConnectionError struct {
	wrap error
}

// Error returns the error string.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("loam: connection error: %v", e.wrap)
}

// Unwrap returns the underlying driver error.
func (e *ConnectionError) Unwrap() error { return e.wrap }

// NewConnectionError wraps a driver error as a ConnectionError.
func NewConnectionError(err error) *ConnectionError {
	return &ConnectionError{wrap: err}
}

// IsConnectionError returns true if the error is a ConnectionError.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConnectionError
	return errors.As(err, &e)
}

// TimeoutError represents a statement or checkout that exceeded its
// deadline. It is the only execution error eligible for caller-driven
// retry.
type TimeoutError struct {
	wrap error
}

// Error returns the error string.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("loam: timeout: %v", e.wrap)
}

// Unwrap returns the underlying error.
func (e *TimeoutError) Unwrap() error { return e.wrap }

// NewTimeoutError wraps a driver error as a TimeoutError.
func NewTimeoutError(err error) *TimeoutError {
	return &TimeoutError{wrap: err}
}

// IsTimeout returns true if the error is a TimeoutError.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var e *TimeoutError
	return errors.As(err, &e)
}

// ConstraintError represents a database constraint violation.
type ConstraintError struct {
	// Detail is the backend-reported constraint detail, e.g. the
	// violated constraint or column name.
	Detail string
	wrap   error
}

// Error returns the error string.
func (e *ConstraintError) Error() string {
	return fmt.Sprintf("loam: constraint violation: %s", e.Detail)
}

// Unwrap returns the underlying driver error.
func (e *ConstraintError) Unwrap() error { return e.wrap }

// NewConstraintError returns a new ConstraintError with the given detail.
func NewConstraintError(detail string, wrap error) *ConstraintError {
	return &ConstraintError{Detail: detail, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConstraintError
	return errors.As(err, &e)
}

// SyntaxError represents SQL rejected by the backend parser. Reaching it
// indicates a bug in lowering, since field references are validated at
// build time.
type SyntaxError struct {
	wrap error
}

// Error returns the error string.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("loam: syntax error: %v", e.wrap)
}

// Unwrap returns the underlying driver error.
func (e *SyntaxError) Unwrap() error { return e.wrap }

// NewSyntaxError wraps a driver error as a SyntaxError.
func NewSyntaxError(err error) *SyntaxError {
	return &SyntaxError{wrap: err}
}

// IsSyntaxError returns true if the error is a SyntaxError.
func IsSyntaxError(err error) bool {
	if err == nil {
		return false
	}
	var e *SyntaxError
	return errors.As(err, &e)
}

// DecodeError reports a result value that could not be converted to the
// semantic type of its field.
type DecodeError struct {
	Column   string
	Expected string
	Found    any
}

// Error returns the error string.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("loam: cannot decode column %q: expected %s, found %T(%v)", e.Column, e.Expected, e.Found, e.Found)
}

// IsDecodeError returns true if the error is a DecodeError.
func IsDecodeError(err error) bool {
	if err == nil {
		return false
	}
	var e *DecodeError
	return errors.As(err, &e)
}

// MissingColumnError reports a non-nullable field whose column is absent
// from a result row.
type MissingColumnError struct {
	Model  string
	Column string
}

// Error returns the error string.
func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("loam: missing column %q for model %q", e.Column, e.Model)
}

// IsMissingColumn returns true if the error is a MissingColumnError.
func IsMissingColumn(err error) bool {
	if err == nil {
		return false
	}
	var e *MissingColumnError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred while rolling back a
// transaction, preserving the error that triggered the rollback.
type RollbackError struct {
	Cause error // Error that triggered the rollback.
	Err   error // Error returned by the rollback itself.
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("loam: rollback failed: %v (rolling back due to: %v)", e.Err, e.Cause)
}

// Unwrap returns the error that triggered the rollback.
func (e *RollbackError) Unwrap() error { return e.Cause }
