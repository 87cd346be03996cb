package schema

import (
	"fmt"
	"strings"

	"github.com/loamdb/loam/schema"
)

// ValidationError reports one problematic step in a migration plan.
type ValidationError struct {
	Table   string
	Column  string
	Message string
	// Breaking indicates the step destroys data or can fail on live
	// rows.
	Breaking bool
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Message)
}

// ValidationResult holds the results of a migration-plan validation.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// HasBreakingChanges returns true if any finding is a breaking change.
func (r *ValidationResult) HasBreakingChanges() bool {
	for _, e := range r.Errors {
		if e.Breaking {
			return true
		}
	}
	for _, w := range r.Warnings {
		if w.Breaking {
			return true
		}
	}
	return false
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	if len(r.Errors) > 0 {
		sb.WriteString("Errors:\n")
		for _, e := range r.Errors {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			if e.Breaking {
				sb.WriteString(" [BREAKING]")
			}
			sb.WriteString("\n")
		}
	}
	if len(r.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, w := range r.Warnings {
			sb.WriteString("  - ")
			sb.WriteString(w.Error())
			if w.Breaking {
				sb.WriteString(" [BREAKING]")
			}
			sb.WriteString("\n")
		}
	}
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

// ValidateOption configures migration-plan validation.
type ValidateOption func(*validateConfig)

type validateConfig struct {
	allowDropColumn bool
	allowDropTable  bool
}

// AllowDropColumn downgrades column drops from errors to warnings.
func AllowDropColumn() ValidateOption {
	return func(c *validateConfig) {
		c.allowDropColumn = true
	}
}

// AllowDropTable downgrades table drops from errors to warnings.
func AllowDropTable() ValidateOption {
	return func(c *validateConfig) {
		c.allowDropTable = true
	}
}

// ValidateSteps inspects a planned step sequence for destructive or
// risky operations before anything touches the backend.
//
//	steps, _ := schema.Diff(deployed, desired)
//	result := schema.ValidateSteps(steps)
//	if result.HasBreakingChanges() {
//	    log.Fatal(result)
//	}
func ValidateSteps(steps []Step, opts ...ValidateOption) *ValidationResult {
	cfg := &validateConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	result := &ValidationResult{}
	add := func(v *ValidationError, allowed bool) {
		if allowed {
			result.Warnings = append(result.Warnings, v)
		} else {
			result.Errors = append(result.Errors, v)
		}
	}
	for _, s := range steps {
		switch s := s.(type) {
		case *DropTable:
			add(&ValidationError{
				Table:    s.Model.Table,
				Message:  "table will be dropped",
				Breaking: true,
			}, cfg.allowDropTable)
		case *DropColumn:
			add(&ValidationError{
				Table:    s.Table,
				Column:   s.Field.Column(),
				Message:  "column will be dropped",
				Breaking: true,
			}, cfg.allowDropColumn)
		case *AddColumn:
			if !s.Field.Nullable && s.Field.Default == nil {
				result.Errors = append(result.Errors, &ValidationError{
					Table:    s.Table,
					Column:   s.Field.Column(),
					Message:  "non-nullable column added without a default",
					Breaking: true,
				})
			}
		case *AlterColumnType:
			if narrowing(s.Prev, s.Field) {
				result.Warnings = append(result.Warnings, &ValidationError{
					Table:    s.Table,
					Column:   s.Field.Column(),
					Message:  fmt.Sprintf("type change %s -> %s may lose data", s.Prev.Type, s.Field.Type),
					Breaking: true,
				})
			}
			if s.Prev.Nullable && !s.Field.Nullable {
				result.Warnings = append(result.Warnings, &ValidationError{
					Table:    s.Table,
					Column:   s.Field.Column(),
					Message:  "column becomes NOT NULL; fails if NULLs exist",
					Breaking: true,
				})
			}
		}
	}
	return result
}

// narrowing reports whether converting from one semantic type to another
// can lose information.
func narrowing(from, to schema.FieldSnapshot) bool {
	if from.Type == to.Type {
		return false
	}
	// Everything converts to text losslessly; the reverse does not.
	return from.Type == schema.TypeText.String() ||
		(from.Type == schema.TypeDecimal.String() && to.Type == schema.TypeInt.String()) ||
		(from.Type == schema.TypeDateTime.String() && to.Type != schema.TypeText.String())
}
