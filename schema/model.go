package schema

import (
	"fmt"

	"github.com/go-openapi/inflect"
)

// DeriveTable returns the conventional table name for a model name:
// the underscored plural (User -> users, OrderLine -> order_lines).
func DeriveTable(model string) string {
	return inflect.Pluralize(inflect.Underscore(model))
}

// IndexDescriptor describes a secondary index on a model.
type IndexDescriptor struct {
	Name    string
	Columns []string
	Unique  bool
}

// ModelDescriptor is the immutable schema of one domain entity. Field
// order is fixed at build time and matches physical column order.
type ModelDescriptor struct {
	name    string
	table   string
	fields  []FieldDescriptor
	indexes []IndexDescriptor
	byName  map[string]int
	pk      int
}

// Name returns the model name.
func (m *ModelDescriptor) Name() string { return m.name }

// Table returns the physical table name.
func (m *ModelDescriptor) Table() string { return m.table }

// Fields returns the fields in column order. The returned slice must not
// be mutated.
func (m *ModelDescriptor) Fields() []FieldDescriptor { return m.fields }

// Indexes returns the secondary indexes of the model.
func (m *ModelDescriptor) Indexes() []IndexDescriptor { return m.indexes }

// Field returns the descriptor of the named field.
func (m *ModelDescriptor) Field(name string) (FieldDescriptor, bool) {
	i, ok := m.byName[name]
	if !ok {
		return FieldDescriptor{}, false
	}
	return m.fields[i], true
}

// PrimaryKey returns the designated primary-key field.
func (m *ModelDescriptor) PrimaryKey() FieldDescriptor {
	return m.fields[m.pk]
}

// Columns returns the physical column names in column order.
func (m *ModelDescriptor) Columns() []string {
	cols := make([]string, len(m.fields))
	for i, f := range m.fields {
		cols[i] = f.Column()
	}
	return cols
}

// ModelBuilder builds an immutable ModelDescriptor.
type ModelBuilder struct {
	name    string
	table   string
	fields  []FieldDescriptor
	indexes []IndexDescriptor
}

// NewModel returns a builder for the model with the given name. The table
// name defaults to the underscored plural of the name (User -> users,
// OrderLine -> order_lines) and can be overridden with Table.
func NewModel(name string) *ModelBuilder {
	return &ModelBuilder{name: name}
}

// Table overrides the derived table name.
func (b *ModelBuilder) Table(name string) *ModelBuilder {
	b.table = name
	return b
}

// Fields appends fields in column order.
func (b *ModelBuilder) Fields(fields ...*FieldBuilder) *ModelBuilder {
	for _, f := range fields {
		b.fields = append(b.fields, f.Descriptor())
	}
	return b
}

// Index adds a secondary index over the given columns.
func (b *ModelBuilder) Index(name string, unique bool, columns ...string) *ModelBuilder {
	b.indexes = append(b.indexes, IndexDescriptor{Name: name, Columns: columns, Unique: unique})
	return b
}

// Build validates the declaration and returns the immutable descriptor.
func (b *ModelBuilder) Build() (*ModelDescriptor, error) {
	if b.name == "" {
		return nil, fmt.Errorf("schema: model without a name")
	}
	if len(b.fields) == 0 {
		return nil, fmt.Errorf("schema: model %q has no fields", b.name)
	}
	m := &ModelDescriptor{
		name:    b.name,
		table:   b.table,
		fields:  b.fields,
		indexes: b.indexes,
		byName:  make(map[string]int, len(b.fields)),
		pk:      -1,
	}
	if m.table == "" {
		m.table = DeriveTable(b.name)
	}
	for i, f := range m.fields {
		if !f.Type.Valid() {
			return nil, fmt.Errorf("schema: model %q field %q: %w", b.name, f.Name, errInvalidType)
		}
		if _, dup := m.byName[f.Name]; dup {
			return nil, fmt.Errorf("schema: model %q declares field %q twice", b.name, f.Name)
		}
		m.byName[f.Name] = i
		if f.PrimaryKey {
			if m.pk >= 0 {
				return nil, fmt.Errorf("schema: model %q declares multiple primary keys", b.name)
			}
			if f.Nullable {
				return nil, fmt.Errorf("schema: model %q primary key %q cannot be nullable", b.name, f.Name)
			}
			m.pk = i
		}
	}
	if m.pk < 0 {
		return nil, fmt.Errorf("schema: model %q has no primary key", b.name)
	}
	for _, idx := range m.indexes {
		for _, col := range idx.Columns {
			if !m.hasColumn(col) {
				return nil, fmt.Errorf("schema: model %q index %q references unknown column %q", b.name, idx.Name, col)
			}
		}
	}
	return m, nil
}

func (m *ModelDescriptor) hasColumn(col string) bool {
	for _, f := range m.fields {
		if f.Column() == col {
			return true
		}
	}
	return false
}

var errInvalidType = fmt.Errorf("invalid field type")
