package schema

import (
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

// Snapshot is the plain-data capture of a sealed registry. Migration
// tooling persists the snapshot of the deployed state and diffs it
// against the compiled registry to produce the next migration.
type Snapshot struct {
	Models []ModelSnapshot `yaml:"models"`
}

// ModelSnapshot is the snapshot form of one ModelDescriptor.
type ModelSnapshot struct {
	Name    string           `yaml:"name"`
	Table   string           `yaml:"table"`
	Fields  []FieldSnapshot  `yaml:"fields"`
	Indexes []IndexSnapshot  `yaml:"indexes,omitempty"`
}

// FieldSnapshot is the snapshot form of one FieldDescriptor.
type FieldSnapshot struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Ref        string `yaml:"ref,omitempty"`
	RefTable   string `yaml:"ref_table,omitempty"`
	Nullable   bool   `yaml:"nullable,omitempty"`
	Unique     bool   `yaml:"unique,omitempty"`
	PrimaryKey bool   `yaml:"primary_key,omitempty"`
	Default    any    `yaml:"default,omitempty"`
}

// IndexSnapshot is the snapshot form of one IndexDescriptor.
type IndexSnapshot struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique,omitempty"`
}

// Snapshot captures the registry as plain data. The registry must be
// sealed; the capture is ordered by registration order.
func (r *Registry) Snapshot() (*Snapshot, error) {
	if !r.Sealed() {
		return nil, fmt.Errorf("schema: snapshot of unsealed registry")
	}
	s := &Snapshot{}
	for _, m := range r.Models() {
		s.Models = append(s.Models, snapshotModel(m))
	}
	return s, nil
}

func snapshotModel(m *ModelDescriptor) ModelSnapshot {
	ms := ModelSnapshot{Name: m.Name(), Table: m.Table()}
	for _, f := range m.Fields() {
		ms.Fields = append(ms.Fields, FieldSnapshot{
			Name:       f.Name,
			Type:       f.Type.String(),
			Ref:        f.Ref,
			RefTable:   f.RefTable,
			Nullable:   f.Nullable,
			Unique:     f.Unique,
			PrimaryKey: f.PrimaryKey,
			Default:    f.Default,
		})
	}
	for _, idx := range m.Indexes() {
		ms.Indexes = append(ms.Indexes, IndexSnapshot(idx))
	}
	return ms
}

// Model returns the snapshot of the model with the given table name.
func (s *Snapshot) Model(table string) (ModelSnapshot, bool) {
	for _, m := range s.Models {
		if m.Table == table {
			return m, true
		}
	}
	return ModelSnapshot{}, false
}

// Tables returns the sorted table names present in the snapshot.
func (s *Snapshot) Tables() []string {
	tables := make([]string, 0, len(s.Models))
	for _, m := range s.Models {
		tables = append(tables, m.Table)
	}
	sort.Strings(tables)
	return tables
}

// Field returns the snapshot of the named field.
func (m ModelSnapshot) Field(name string) (FieldSnapshot, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSnapshot{}, false
}

// Descriptor rebuilds an immutable ModelDescriptor from the snapshot.
func (m ModelSnapshot) Descriptor() (*ModelDescriptor, error) {
	b := NewModel(m.Name).Table(m.Table)
	for _, f := range m.Fields {
		t := TypeFromString(f.Type)
		if !t.Valid() {
			return nil, fmt.Errorf("schema: snapshot model %q field %q has unknown type %q", m.Name, f.Name, f.Type)
		}
		fb := &FieldBuilder{desc: FieldDescriptor{
			Name:       f.Name,
			Type:       t,
			Ref:        f.Ref,
			RefTable:   f.RefTable,
			Nullable:   f.Nullable,
			Unique:     f.Unique,
			PrimaryKey: f.PrimaryKey,
			Default:    f.Default,
		}}
		b.Fields(fb)
	}
	for _, idx := range m.Indexes {
		b.Index(idx.Name, idx.Unique, idx.Columns...)
	}
	return b.Build()
}

// Descriptor rebuilds the FieldDescriptor captured by the snapshot.
func (f FieldSnapshot) Descriptor() (FieldDescriptor, error) {
	t := TypeFromString(f.Type)
	if !t.Valid() {
		return FieldDescriptor{}, fmt.Errorf("schema: snapshot field %q has unknown type %q", f.Name, f.Type)
	}
	return FieldDescriptor{
		Name:       f.Name,
		Type:       t,
		Ref:        f.Ref,
		RefTable:   f.RefTable,
		Nullable:   f.Nullable,
		Unique:     f.Unique,
		PrimaryKey: f.PrimaryKey,
		Default:    f.Default,
	}, nil
}

// Column returns the physical column name of the snapshot field,
// mirroring FieldDescriptor.Column.
func (f FieldSnapshot) Column() string {
	if f.Type == TypeForeignKey.String() {
		return f.Name + "_id"
	}
	return f.Name
}

// Encode writes the snapshot as YAML.
func (s *Snapshot) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("schema: encode snapshot: %w", err)
	}
	return enc.Close()
}

// DecodeSnapshot reads a YAML snapshot.
func DecodeSnapshot(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := yaml.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("schema: decode snapshot: %w", err)
	}
	return &s, nil
}
