package sql

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/loamdb/loam"
	"github.com/loamdb/loam/dialect"
	"github.com/loamdb/loam/schema"
)

// stmt accumulates SQL text and bound parameters during lowering. Args
// are appended in placeholder occurrence order, so text and parameters
// always line up.
type stmt struct {
	dialect string
	b       strings.Builder
	args    []any
}

func newStmt(d string) *stmt {
	return &stmt{dialect: d}
}

func (s *stmt) writeString(str string) {
	s.b.WriteString(str)
}

// ident quotes an identifier for the statement dialect. Postgres uses
// double quotes, SQLite and MySQL use backticks.
func (s *stmt) ident(name string) string {
	if s.dialect == dialect.Postgres {
		return `"` + name + `"`
	}
	return "`" + name + "`"
}

func (s *stmt) writeIdent(name string) {
	s.b.WriteString(s.ident(name))
}

// arg writes the next placeholder and binds v.
func (s *stmt) arg(v any) {
	s.args = append(s.args, encodeArg(s.dialect, v))
	if s.dialect == dialect.Postgres {
		s.b.WriteString("$")
		s.b.WriteString(strconv.Itoa(len(s.args)))
		return
	}
	s.b.WriteString("?")
}

// encodeArg converts a domain value to its driver representation.
// DateTime is stored as RFC 3339 UTC text on SQLite; Decimal is
// string-backed on every dialect.
func encodeArg(d string, v any) any {
	switch v := v.(type) {
	case time.Time:
		if d == dialect.SQLite {
			return v.UTC().Format(time.RFC3339Nano)
		}
		return v.UTC()
	case schema.Decimal:
		return string(v)
	case schema.Value:
		return encodeArg(d, v.Any())
	default:
		return v
	}
}

type order struct {
	field string
	desc  bool
}

type join struct {
	target *schema.ModelDescriptor
	fk     string // Foreign-key field on the base model.
}

// SelectBuilder builds the dialect-neutral form of a SELECT and lowers it
// to parameterized SQL. Field references are validated against the model
// when they are attached, so an unknown field never reaches the backend.
type SelectBuilder struct {
	model  *schema.ModelDescriptor
	where  *P
	orders []order
	joins  []join
	limit  *int64
	offset *int64
	err    error
}

// SelectFrom returns a SELECT builder for the given model.
func SelectFrom(m *schema.ModelDescriptor) *SelectBuilder {
	return &SelectBuilder{model: m}
}

func (b *SelectBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Where sets the filter tree, validating every field reference.
func (b *SelectBuilder) Where(p *P) *SelectBuilder {
	if err := p.validate(b.model); err != nil {
		b.fail(err)
		return b
	}
	b.where = p
	return b
}

// OrderBy appends an ordering term.
func (b *SelectBuilder) OrderBy(field string, desc bool) *SelectBuilder {
	if _, ok := b.model.Field(field); !ok {
		b.fail(loam.NewUnknownFieldError(b.model.Name(), field))
		return b
	}
	b.orders = append(b.orders, order{field: field, desc: desc})
	return b
}

// Limit bounds the result set. The bound is always a parameter, never
// interpolated.
func (b *SelectBuilder) Limit(n int64) *SelectBuilder {
	b.limit = &n
	return b
}

// Offset skips the first n rows. On dialects that cannot express OFFSET
// without LIMIT a very large limit is emitted alongside.
func (b *SelectBuilder) Offset(n int64) *SelectBuilder {
	b.offset = &n
	return b
}

// Join adds an inner join from the base model's foreign-key field fk to
// the target model's primary key.
func (b *SelectBuilder) Join(target *schema.ModelDescriptor, fk string) *SelectBuilder {
	f, ok := b.model.Field(fk)
	if !ok {
		b.fail(loam.NewUnknownFieldError(b.model.Name(), fk))
		return b
	}
	if f.Type != schema.TypeForeignKey || f.Ref != target.Name() {
		b.fail(fmt.Errorf("dialect/sql: field %q of %q is not a foreign key to %q", fk, b.model.Name(), target.Name()))
		return b
	}
	b.joins = append(b.joins, join{target: target, fk: fk})
	return b
}

// Err returns the first build-time validation error.
func (b *SelectBuilder) Err() error { return b.err }

// Lower renders the SELECT for the given dialect and returns the SQL
// text with its bound parameters in emission order.
func (b *SelectBuilder) Lower(d string) (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	if !dialect.Valid(d) {
		return "", nil, fmt.Errorf("dialect/sql: unknown dialect %q", d)
	}
	st := newStmt(d)
	qualify := len(b.joins) > 0
	st.writeString("SELECT ")
	for i, col := range b.model.Columns() {
		if i > 0 {
			st.writeString(", ")
		}
		if qualify {
			st.writeString(st.ident(b.model.Table()) + "." + st.ident(col))
		} else {
			st.writeIdent(col)
		}
	}
	st.writeString(" FROM ")
	st.writeIdent(b.model.Table())
	for _, j := range b.joins {
		f, _ := b.model.Field(j.fk)
		st.writeString(" JOIN ")
		st.writeIdent(j.target.Table())
		st.writeString(" ON ")
		st.writeString(st.ident(b.model.Table()) + "." + st.ident(f.Column()))
		st.writeString(" = ")
		st.writeString(st.ident(j.target.Table()) + "." + st.ident(j.target.PrimaryKey().Column()))
	}
	if b.where != nil {
		st.writeString(" WHERE ")
		b.where.lower(st, b.model, qualify)
	}
	if len(b.orders) > 0 {
		st.writeString(" ORDER BY ")
		for i, o := range b.orders {
			if i > 0 {
				st.writeString(", ")
			}
			f, _ := b.model.Field(o.field)
			if qualify {
				st.writeString(st.ident(b.model.Table()) + "." + st.ident(f.Column()))
			} else {
				st.writeIdent(f.Column())
			}
			if o.desc {
				st.writeString(" DESC")
			}
		}
	}
	if b.limit != nil {
		st.writeString(" LIMIT ")
		st.arg(*b.limit)
	} else if b.offset != nil && d != dialect.Postgres {
		// SQLite and MySQL require LIMIT before OFFSET.
		st.writeString(" LIMIT ")
		st.arg(int64(1<<62 - 1))
	}
	if b.offset != nil {
		st.writeString(" OFFSET ")
		st.arg(*b.offset)
	}
	return st.b.String(), st.args, nil
}

type assign struct {
	field string
	value any
}

// InsertBuilder builds an INSERT for one model row.
type InsertBuilder struct {
	model *schema.ModelDescriptor
	sets  []assign
	err   error
}

// InsertInto returns an INSERT builder for the given model.
func InsertInto(m *schema.ModelDescriptor) *InsertBuilder {
	return &InsertBuilder{model: m}
}

// Set assigns a value to a field. Assignments keep insertion order, which
// fixes column and parameter order in the lowered statement.
func (b *InsertBuilder) Set(field string, v any) *InsertBuilder {
	f, ok := b.model.Field(field)
	if !ok {
		if b.err == nil {
			b.err = loam.NewUnknownFieldError(b.model.Name(), field)
		}
		return b
	}
	if sv, ok := v.(schema.Value); ok && !sv.Valid() {
		// A NULL typed value binds like a nil literal.
		v = nil
	}
	if v == nil && !f.Nullable {
		if b.err == nil {
			b.err = fmt.Errorf("dialect/sql: field %q of %q is not nullable", field, b.model.Name())
		}
		return b
	}
	b.sets = append(b.sets, assign{field: field, value: v})
	return b
}

// Err returns the first build-time validation error.
func (b *InsertBuilder) Err() error { return b.err }

// Lower renders the INSERT for the given dialect.
func (b *InsertBuilder) Lower(d string) (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	if !dialect.Valid(d) {
		return "", nil, fmt.Errorf("dialect/sql: unknown dialect %q", d)
	}
	if len(b.sets) == 0 {
		return "", nil, fmt.Errorf("dialect/sql: insert into %q without values", b.model.Table())
	}
	st := newStmt(d)
	st.writeString("INSERT INTO ")
	st.writeIdent(b.model.Table())
	st.writeString(" (")
	for i, a := range b.sets {
		if i > 0 {
			st.writeString(", ")
		}
		f, _ := b.model.Field(a.field)
		st.writeIdent(f.Column())
	}
	st.writeString(") VALUES (")
	for i, a := range b.sets {
		if i > 0 {
			st.writeString(", ")
		}
		if a.value == nil {
			st.writeString("NULL")
			continue
		}
		st.arg(a.value)
	}
	st.writeString(")")
	return st.b.String(), st.args, nil
}

// UpdateBuilder builds an UPDATE statement.
type UpdateBuilder struct {
	model *schema.ModelDescriptor
	sets  []assign
	where *P
	err   error
}

// Update returns an UPDATE builder for the given model.
func Update(m *schema.ModelDescriptor) *UpdateBuilder {
	return &UpdateBuilder{model: m}
}

// Set assigns a new value to a field.
func (b *UpdateBuilder) Set(field string, v any) *UpdateBuilder {
	f, ok := b.model.Field(field)
	if !ok {
		if b.err == nil {
			b.err = loam.NewUnknownFieldError(b.model.Name(), field)
		}
		return b
	}
	if sv, ok := v.(schema.Value); ok && !sv.Valid() {
		v = nil
	}
	if v == nil && !f.Nullable {
		if b.err == nil {
			b.err = fmt.Errorf("dialect/sql: field %q of %q is not nullable", field, b.model.Name())
		}
		return b
	}
	b.sets = append(b.sets, assign{field: field, value: v})
	return b
}

// Where sets the filter tree, validating every field reference.
func (b *UpdateBuilder) Where(p *P) *UpdateBuilder {
	if err := p.validate(b.model); err != nil {
		if b.err == nil {
			b.err = err
		}
		return b
	}
	b.where = p
	return b
}

// Err returns the first build-time validation error.
func (b *UpdateBuilder) Err() error { return b.err }

// Lower renders the UPDATE for the given dialect.
func (b *UpdateBuilder) Lower(d string) (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	if !dialect.Valid(d) {
		return "", nil, fmt.Errorf("dialect/sql: unknown dialect %q", d)
	}
	if len(b.sets) == 0 {
		return "", nil, fmt.Errorf("dialect/sql: update %q without assignments", b.model.Table())
	}
	st := newStmt(d)
	st.writeString("UPDATE ")
	st.writeIdent(b.model.Table())
	st.writeString(" SET ")
	for i, a := range b.sets {
		if i > 0 {
			st.writeString(", ")
		}
		f, _ := b.model.Field(a.field)
		st.writeIdent(f.Column())
		st.writeString(" = ")
		if a.value == nil {
			st.writeString("NULL")
			continue
		}
		st.arg(a.value)
	}
	if b.where != nil {
		st.writeString(" WHERE ")
		b.where.lower(st, b.model, false)
	}
	return st.b.String(), st.args, nil
}

// DeleteBuilder builds a DELETE statement.
type DeleteBuilder struct {
	model *schema.ModelDescriptor
	where *P
	err   error
}

// DeleteFrom returns a DELETE builder for the given model.
func DeleteFrom(m *schema.ModelDescriptor) *DeleteBuilder {
	return &DeleteBuilder{model: m}
}

// Where sets the filter tree, validating every field reference.
func (b *DeleteBuilder) Where(p *P) *DeleteBuilder {
	if err := p.validate(b.model); err != nil {
		if b.err == nil {
			b.err = err
		}
		return b
	}
	b.where = p
	return b
}

// Err returns the first build-time validation error.
func (b *DeleteBuilder) Err() error { return b.err }

// Lower renders the DELETE for the given dialect.
func (b *DeleteBuilder) Lower(d string) (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	if !dialect.Valid(d) {
		return "", nil, fmt.Errorf("dialect/sql: unknown dialect %q", d)
	}
	st := newStmt(d)
	st.writeString("DELETE FROM ")
	st.writeIdent(b.model.Table())
	if b.where != nil {
		st.writeString(" WHERE ")
		b.where.lower(st, b.model, false)
	}
	return st.b.String(), st.args, nil
}
