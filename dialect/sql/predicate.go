package sql

import (
	"fmt"

	"github.com/loamdb/loam"
	"github.com/loamdb/loam/schema"
)

// Op is a comparison operator of the filter grammar.
type Op uint8

// Filter comparison operators.
const (
	OpEQ Op = iota
	OpNEQ
	OpLT
	OpLTE
	OpGT
	OpGTE
	OpLike
	OpIn
)

var opText = [...]string{
	OpEQ:   "=",
	OpNEQ:  "<>",
	OpLT:   "<",
	OpLTE:  "<=",
	OpGT:   ">",
	OpGTE:  ">=",
	OpLike: "LIKE",
	OpIn:   "IN",
}

// String returns the SQL spelling of the operator.
func (o Op) String() string {
	if int(o) < len(opText) {
		return opText[o]
	}
	return fmt.Sprintf("Op(%d)", o)
}

type pkind uint8

const (
	pCompare pkind = iota
	pAnd
	pOr
	pNot
	pIsNull
	pNotNull
)

// P is a node in the filter expression tree. Leaves compare a field
// against a literal; inner nodes combine sub-trees with AND / OR / NOT.
// Comparisons are pure: lowering emits them in tree order with no
// reordering.
type P struct {
	kind  pkind
	field string
	op    Op
	value any   // Literal operand; []any for OpIn.
	subs  []*P
}

// EQ returns a field = value predicate.
func EQ(field string, v any) *P { return compare(field, OpEQ, v) }

// NEQ returns a field <> value predicate.
func NEQ(field string, v any) *P { return compare(field, OpNEQ, v) }

// LT returns a field < value predicate.
func LT(field string, v any) *P { return compare(field, OpLT, v) }

// LTE returns a field <= value predicate.
func LTE(field string, v any) *P { return compare(field, OpLTE, v) }

// GT returns a field > value predicate.
func GT(field string, v any) *P { return compare(field, OpGT, v) }

// GTE returns a field >= value predicate.
func GTE(field string, v any) *P { return compare(field, OpGTE, v) }

// Like returns a field LIKE pattern predicate.
func Like(field, pattern string) *P { return compare(field, OpLike, pattern) }

// In returns a field IN (values...) predicate. An empty value list lowers
// to FALSE.
func In(field string, vs ...any) *P {
	return &P{kind: pCompare, field: field, op: OpIn, value: vs}
}

func compare(field string, op Op, v any) *P {
	return &P{kind: pCompare, field: field, op: op, value: v}
}

// IsNull returns a field IS NULL predicate.
func IsNull(field string) *P { return &P{kind: pIsNull, field: field} }

// NotNull returns a field IS NOT NULL predicate.
func NotNull(field string) *P { return &P{kind: pNotNull, field: field} }

// And combines predicates with AND.
func And(ps ...*P) *P { return &P{kind: pAnd, subs: ps} }

// Or combines predicates with OR.
func Or(ps ...*P) *P { return &P{kind: pOr, subs: ps} }

// Not negates a predicate.
func Not(p *P) *P { return &P{kind: pNot, subs: []*P{p}} }

// validate checks every field reference in the tree against the model.
func (p *P) validate(m *schema.ModelDescriptor) error {
	if p == nil {
		return nil
	}
	switch p.kind {
	case pCompare, pIsNull, pNotNull:
		if _, ok := m.Field(p.field); !ok {
			return loam.NewUnknownFieldError(m.Name(), p.field)
		}
	}
	for _, s := range p.subs {
		if err := s.validate(m); err != nil {
			return err
		}
	}
	return nil
}

// lower renders the predicate into st, binding literals as parameters in
// tree order.
func (p *P) lower(st *stmt, m *schema.ModelDescriptor, qualify bool) {
	col := func(field string) string {
		f, _ := m.Field(field)
		if qualify {
			return st.ident(m.Table()) + "." + st.ident(f.Column())
		}
		return st.ident(f.Column())
	}
	switch p.kind {
	case pCompare:
		if p.op == OpIn {
			vs := p.value.([]any)
			if len(vs) == 0 {
				// IN () is invalid SQL; an empty set matches nothing.
				st.writeString("FALSE")
				return
			}
			st.writeString(col(p.field))
			st.writeString(" IN (")
			for i, v := range vs {
				if i > 0 {
					st.writeString(", ")
				}
				st.arg(v)
			}
			st.writeString(")")
			return
		}
		st.writeString(col(p.field))
		st.writeString(" ")
		st.writeString(p.op.String())
		st.writeString(" ")
		st.arg(p.value)
	case pIsNull:
		st.writeString(col(p.field))
		st.writeString(" IS NULL")
	case pNotNull:
		st.writeString(col(p.field))
		st.writeString(" IS NOT NULL")
	case pNot:
		st.writeString("NOT (")
		p.subs[0].lower(st, m, qualify)
		st.writeString(")")
	case pAnd, pOr:
		sep := " AND "
		if p.kind == pOr {
			sep = " OR "
		}
		st.writeString("(")
		for i, s := range p.subs {
			if i > 0 {
				st.writeString(sep)
			}
			s.lower(st, m, qualify)
		}
		st.writeString(")")
	}
}
