package schema

import (
	"fmt"
	"time"
)

// Value is a typed domain value as decoded from a result row. A Value
// with Valid == false represents NULL on a nullable field.
type Value struct {
	typ   Type
	valid bool
	v     any
}

// NullValue returns the NULL value of the given semantic type.
func NullValue(t Type) Value {
	return Value{typ: t}
}

// IntValue returns an integer value.
func IntValue(v int64) Value {
	return Value{typ: TypeInt, valid: true, v: v}
}

// TextValue returns a text value.
func TextValue(v string) Value {
	return Value{typ: TypeText, valid: true, v: v}
}

// BoolValue returns a boolean value.
func BoolValue(v bool) Value {
	return Value{typ: TypeBool, valid: true, v: v}
}

// TimeValue returns a date-time value.
func TimeValue(v time.Time) Value {
	return Value{typ: TypeDateTime, valid: true, v: v}
}

// DecimalValue returns an exact-numeric value.
func DecimalValue(v Decimal) Value {
	return Value{typ: TypeDecimal, valid: true, v: v}
}

// RefValue returns a foreign-key value (the referenced primary key).
func RefValue(v int64) Value {
	return Value{typ: TypeForeignKey, valid: true, v: v}
}

// Type returns the semantic type of the value.
func (v Value) Type() Type { return v.typ }

// Valid reports whether the value is non-NULL.
func (v Value) Valid() bool { return v.valid }

// Int returns the integer value. It is valid for TypeInt and
// TypeForeignKey values.
func (v Value) Int() (int64, bool) {
	if !v.valid || (v.typ != TypeInt && v.typ != TypeForeignKey) {
		return 0, false
	}
	return v.v.(int64), true
}

// Text returns the text value.
func (v Value) Text() (string, bool) {
	if !v.valid || v.typ != TypeText {
		return "", false
	}
	return v.v.(string), true
}

// Bool returns the boolean value.
func (v Value) Bool() (bool, bool) {
	if !v.valid || v.typ != TypeBool {
		return false, false
	}
	return v.v.(bool), true
}

// Time returns the date-time value.
func (v Value) Time() (time.Time, bool) {
	if !v.valid || v.typ != TypeDateTime {
		return time.Time{}, false
	}
	return v.v.(time.Time), true
}

// Decimal returns the exact-numeric value.
func (v Value) Decimal() (Decimal, bool) {
	if !v.valid || v.typ != TypeDecimal {
		return "", false
	}
	return v.v.(Decimal), true
}

// Any returns the underlying Go value, or nil for NULL.
func (v Value) Any() any {
	if !v.valid {
		return nil
	}
	return v.v
}

// Equal reports value equality. Time values compare with time.Time.Equal
// so equal instants in different locations match.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ || v.valid != o.valid {
		return false
	}
	if !v.valid {
		return true
	}
	if v.typ == TypeDateTime {
		return v.v.(time.Time).Equal(o.v.(time.Time))
	}
	return v.v == o.v
}

// String implements fmt.Stringer.
func (v Value) String() string {
	if !v.valid {
		return "NULL"
	}
	return fmt.Sprintf("%v", v.v)
}

// Record is one decoded result row: field name to typed value.
type Record map[string]Value

// Value returns the value of the named field.
func (r Record) Value(field string) (Value, bool) {
	v, ok := r[field]
	return v, ok
}
