package schema

import (
	"fmt"

	"github.com/loamdb/loam"
	"github.com/loamdb/loam/dialect"
	isql "github.com/loamdb/loam/dialect/sql"
	"github.com/loamdb/loam/schema"
)

// Step is one schema-change operation of a migration. Every step renders
// its own DDL per dialect and knows how to compute its inverse; inverses
// that would lose or invent data fail with ErrNonRevertible.
type Step interface {
	// DDL returns the ordered statements implementing the step.
	DDL(dialect string) ([]string, error)
	// Inverse returns the step that undoes this one.
	Inverse() (Step, error)
	// Describe returns a short human-readable form for logs.
	Describe() string
}

// CreateTable creates a model's table and its secondary indexes.
type CreateTable struct {
	Model schema.ModelSnapshot `msgpack:"model"`
}

// DDL implements Step.
func (s *CreateTable) DDL(d string) ([]string, error) {
	m, err := s.Model.Descriptor()
	if err != nil {
		return nil, err
	}
	return isql.BuildDDL(m, d)
}

// Inverse implements Step.
func (s *CreateTable) Inverse() (Step, error) {
	return &DropTable{Model: s.Model}, nil
}

// Describe implements Step.
func (s *CreateTable) Describe() string {
	return fmt.Sprintf("create table %s", s.Model.Table)
}

// DropTable drops a table. The full model snapshot is captured so the
// inverse can recreate the structure.
type DropTable struct {
	Model schema.ModelSnapshot `msgpack:"model"`
}

// DDL implements Step.
func (s *DropTable) DDL(d string) ([]string, error) {
	return []string{"DROP TABLE " + isql.Ident(d, s.Model.Table)}, nil
}

// Inverse implements Step. The recreated table is structurally identical;
// the dropped rows are gone, which is the documented contract of
// reverting a table drop.
func (s *DropTable) Inverse() (Step, error) {
	return &CreateTable{Model: s.Model}, nil
}

// Describe implements Step.
func (s *DropTable) Describe() string {
	return fmt.Sprintf("drop table %s", s.Model.Table)
}

// AddColumn adds a column to an existing table.
type AddColumn struct {
	Table string               `msgpack:"table"`
	Field schema.FieldSnapshot `msgpack:"field"`
}

// DDL implements Step.
func (s *AddColumn) DDL(d string) ([]string, error) {
	f, err := s.Field.Descriptor()
	if err != nil {
		return nil, err
	}
	if !f.Nullable && f.Default == nil {
		// Backends reject adding a NOT NULL column without a default to
		// a non-empty table; surface it before the backend does.
		return nil, fmt.Errorf("schema: add column %s.%s: non-nullable column requires a default", s.Table, f.Column())
	}
	col, err := isql.ColumnDDL(f, d)
	if err != nil {
		return nil, err
	}
	return []string{"ALTER TABLE " + isql.Ident(d, s.Table) + " ADD COLUMN " + col}, nil
}

// Inverse implements Step.
func (s *AddColumn) Inverse() (Step, error) {
	return &DropColumn{Table: s.Table, Field: s.Field}, nil
}

// Describe implements Step.
func (s *AddColumn) Describe() string {
	return fmt.Sprintf("add column %s.%s", s.Table, s.Field.Column())
}

// DropColumn drops a column, capturing its definition.
type DropColumn struct {
	Table string               `msgpack:"table"`
	Field schema.FieldSnapshot `msgpack:"field"`
}

// DDL implements Step.
func (s *DropColumn) DDL(d string) ([]string, error) {
	return []string{"ALTER TABLE " + isql.Ident(d, s.Table) + " DROP COLUMN " + isql.Ident(d, s.Field.Column())}, nil
}

// Inverse implements Step. The column data is already gone, so the
// inverse is unambiguous only when the restored column can stand without
// it: nullable, or carrying a default.
func (s *DropColumn) Inverse() (Step, error) {
	if !s.Field.Nullable && s.Field.Default == nil {
		return nil, fmt.Errorf("revert drop of %s.%s: %w", s.Table, s.Field.Column(), loam.ErrNonRevertible)
	}
	return &AddColumn{Table: s.Table, Field: s.Field}, nil
}

// Describe implements Step.
func (s *DropColumn) Describe() string {
	return fmt.Sprintf("drop column %s.%s", s.Table, s.Field.Column())
}

// AlterColumnType changes a column's semantic type. Prev captures the
// prior definition for inversion. Model is the post-alter snapshot of the
// whole table, required for the SQLite rebuild path.
type AlterColumnType struct {
	Table string               `msgpack:"table"`
	Field schema.FieldSnapshot `msgpack:"field"`
	Prev  schema.FieldSnapshot `msgpack:"prev"`
	Model schema.ModelSnapshot `msgpack:"model"`
}

// DDL implements Step. SQLite cannot alter column types in place; the
// table is rebuilt through a shadow copy and renamed over the original.
func (s *AlterColumnType) DDL(d string) ([]string, error) {
	f, err := s.Field.Descriptor()
	if err != nil {
		return nil, err
	}
	switch d {
	case dialect.Postgres:
		ct, err := isql.ColumnType(f.Type, d)
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s",
			isql.Ident(d, s.Table), isql.Ident(d, f.Column()), ct, isql.Ident(d, f.Column()), ct)}, nil
	case dialect.MySQL:
		col, err := isql.ColumnDDL(f, d)
		if err != nil {
			return nil, err
		}
		return []string{"ALTER TABLE " + isql.Ident(d, s.Table) + " MODIFY COLUMN " + col}, nil
	case dialect.SQLite:
		return s.rebuildSQLite()
	}
	return nil, fmt.Errorf("dialect %q: %w", d, loam.ErrUnsupportedType)
}

// rebuildSQLite renders the shadow-copy sequence: create the new shape
// under a temporary name, copy all columns across, drop the original and
// rename the shadow into place.
func (s *AlterColumnType) rebuildSQLite() ([]string, error) {
	d := dialect.SQLite
	m, err := s.Model.Descriptor()
	if err != nil {
		return nil, err
	}
	shadow := s.Table + "__new"
	shadowModel, err := rebuildAs(s.Model, shadow)
	if err != nil {
		return nil, err
	}
	ddl, err := isql.BuildDDL(shadowModel, d)
	if err != nil {
		return nil, err
	}
	cols := ""
	for i, c := range m.Columns() {
		if i > 0 {
			cols += ", "
		}
		cols += isql.Ident(d, c)
	}
	stmts := ddl[:1] // Indexes are recreated after the rename.
	stmts = append(stmts,
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			isql.Ident(d, shadow), cols, cols, isql.Ident(d, s.Table)),
		"DROP TABLE "+isql.Ident(d, s.Table),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", isql.Ident(d, shadow), isql.Ident(d, s.Table)),
	)
	for _, idx := range m.Indexes() {
		stmts = append(stmts, isql.IndexDDL(s.Table, idx, d))
	}
	return stmts, nil
}

func rebuildAs(m schema.ModelSnapshot, table string) (*schema.ModelDescriptor, error) {
	m.Table = table
	m.Indexes = nil
	return m.Descriptor()
}

// Inverse implements Step: the prior definition is captured, so the
// inverse swaps Field and Prev.
func (s *AlterColumnType) Inverse() (Step, error) {
	model := s.Model
	model.Fields = append([]schema.FieldSnapshot(nil), s.Model.Fields...)
	for i, f := range model.Fields {
		if f.Name == s.Field.Name {
			model.Fields[i] = s.Prev
		}
	}
	return &AlterColumnType{Table: s.Table, Field: s.Prev, Prev: s.Field, Model: model}, nil
}

// Describe implements Step.
func (s *AlterColumnType) Describe() string {
	return fmt.Sprintf("alter column %s.%s: %s -> %s", s.Table, s.Field.Column(), s.Prev.Type, s.Field.Type)
}

// AddIndex creates a secondary index.
type AddIndex struct {
	Table string               `msgpack:"table"`
	Index schema.IndexSnapshot `msgpack:"index"`
}

// DDL implements Step.
func (s *AddIndex) DDL(d string) ([]string, error) {
	return []string{isql.IndexDDL(s.Table, schema.IndexDescriptor(s.Index), d)}, nil
}

// Inverse implements Step.
func (s *AddIndex) Inverse() (Step, error) {
	return &DropIndex{Table: s.Table, Index: s.Index}, nil
}

// Describe implements Step.
func (s *AddIndex) Describe() string {
	return fmt.Sprintf("add index %s on %s", s.Index.Name, s.Table)
}

// DropIndex drops a secondary index, capturing its definition.
type DropIndex struct {
	Table string               `msgpack:"table"`
	Index schema.IndexSnapshot `msgpack:"index"`
}

// DDL implements Step.
func (s *DropIndex) DDL(d string) ([]string, error) {
	return []string{isql.DropIndexDDL(s.Table, s.Index.Name, d)}, nil
}

// Inverse implements Step.
func (s *DropIndex) Inverse() (Step, error) {
	return &AddIndex{Table: s.Table, Index: s.Index}, nil
}

// Describe implements Step.
func (s *DropIndex) Describe() string {
	return fmt.Sprintf("drop index %s on %s", s.Index.Name, s.Table)
}
