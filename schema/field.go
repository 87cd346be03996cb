package schema

import "fmt"

// Type is the semantic type of a field. It is a closed set: every member
// has a static column mapping per dialect.
type Type uint8

// Semantic field types.
const (
	TypeInvalid Type = iota
	TypeInt
	TypeText
	TypeBool
	TypeDateTime
	TypeDecimal
	TypeForeignKey
)

var typeNames = [...]string{
	TypeInvalid:    "invalid",
	TypeInt:        "int",
	TypeText:       "text",
	TypeBool:       "bool",
	TypeDateTime:   "datetime",
	TypeDecimal:    "decimal",
	TypeForeignKey: "foreignkey",
}

// String returns the lower-cased name of the type.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("invalid(%d)", t)
}

// TypeFromString returns the Type named by s, or TypeInvalid.
func TypeFromString(s string) Type {
	for t, name := range typeNames {
		if name == s {
			return Type(t)
		}
	}
	return TypeInvalid
}

// Valid reports whether the type is a known semantic type.
func (t Type) Valid() bool {
	return t > TypeInvalid && t <= TypeForeignKey
}

// Decimal is the exact-numeric value representation. It is string-backed
// so values survive all three dialects without float rounding.
type Decimal string

// FieldDescriptor describes a single column of a model. Descriptors are
// plain data and immutable once their model is built.
type FieldDescriptor struct {
	Name       string
	Type       Type
	Ref        string // Target model name for TypeForeignKey.
	RefTable   string // Target table, resolved when the registry seals.
	Nullable   bool
	Unique     bool
	PrimaryKey bool
	Default    any // nil means no default.
}

// Column returns the physical column name of the field. Foreign keys are
// suffixed with _id following relational convention.
func (f FieldDescriptor) Column() string {
	if f.Type == TypeForeignKey {
		return f.Name + "_id"
	}
	return f.Name
}

// FieldBuilder is the fluent builder for a FieldDescriptor.
type FieldBuilder struct {
	desc FieldDescriptor
}

// Int returns a new integer field.
func Int(name string) *FieldBuilder {
	return &FieldBuilder{desc: FieldDescriptor{Name: name, Type: TypeInt}}
}

// Text returns a new text field.
func Text(name string) *FieldBuilder {
	return &FieldBuilder{desc: FieldDescriptor{Name: name, Type: TypeText}}
}

// Bool returns a new boolean field.
func Bool(name string) *FieldBuilder {
	return &FieldBuilder{desc: FieldDescriptor{Name: name, Type: TypeBool}}
}

// DateTime returns a new date-time field.
func DateTime(name string) *FieldBuilder {
	return &FieldBuilder{desc: FieldDescriptor{Name: name, Type: TypeDateTime}}
}

// DecimalField returns a new exact-numeric field.
func DecimalField(name string) *FieldBuilder {
	return &FieldBuilder{desc: FieldDescriptor{Name: name, Type: TypeDecimal}}
}

// ForeignKey returns a new foreign-key field referencing the model named
// ref. The reference is resolved when the registry is sealed.
func ForeignKey(name, ref string) *FieldBuilder {
	return &FieldBuilder{desc: FieldDescriptor{Name: name, Type: TypeForeignKey, Ref: ref}}
}

// PrimaryKey marks the field as the model's primary key. Exactly one
// field per model must carry it.
func (b *FieldBuilder) PrimaryKey() *FieldBuilder {
	b.desc.PrimaryKey = true
	return b
}

// Nullable allows NULL values in the column. Nullable fields decode to
// empty values; on non-nullable fields a NULL is a decode error.
func (b *FieldBuilder) Nullable() *FieldBuilder {
	b.desc.Nullable = true
	return b
}

// Unique adds a unique constraint on the column.
func (b *FieldBuilder) Unique() *FieldBuilder {
	b.desc.Unique = true
	return b
}

// Default sets the column default value.
func (b *FieldBuilder) Default(v any) *FieldBuilder {
	b.desc.Default = v
	return b
}

// Descriptor returns the built descriptor.
func (b *FieldBuilder) Descriptor() FieldDescriptor {
	return b.desc
}
