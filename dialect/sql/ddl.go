package sql

import (
	"fmt"
	"strings"
	"time"

	"github.com/loamdb/loam"
	"github.com/loamdb/loam/dialect"
	"github.com/loamdb/loam/schema"
)

// columnTypes is the static semantic-type to column-type mapping table.
// The dialect set is closed, so translation is a pure lookup.
var columnTypes = map[schema.Type]map[string]string{
	schema.TypeInt: {
		dialect.SQLite:   "INTEGER",
		dialect.Postgres: "INTEGER",
		dialect.MySQL:    "INT",
	},
	schema.TypeText: {
		dialect.SQLite:   "TEXT",
		dialect.Postgres: "TEXT",
		dialect.MySQL:    "VARCHAR(255)",
	},
	schema.TypeBool: {
		dialect.SQLite:   "INTEGER",
		dialect.Postgres: "BOOLEAN",
		dialect.MySQL:    "TINYINT(1)",
	},
	schema.TypeDateTime: {
		dialect.SQLite:   "TEXT",
		dialect.Postgres: "TIMESTAMP WITH TIME ZONE",
		dialect.MySQL:    "DATETIME",
	},
	schema.TypeDecimal: {
		dialect.SQLite:   "TEXT",
		dialect.Postgres: "NUMERIC",
		dialect.MySQL:    "DECIMAL(65,30)",
	},
	// Foreign keys hold the referenced integer primary key.
	schema.TypeForeignKey: {
		dialect.SQLite:   "INTEGER",
		dialect.Postgres: "INTEGER",
		dialect.MySQL:    "INT",
	},
}

// ColumnType returns the column type of a semantic type for the given
// dialect. It fails with ErrUnsupportedType when no mapping exists.
func ColumnType(t schema.Type, d string) (string, error) {
	byDialect, ok := columnTypes[t]
	if !ok {
		return "", fmt.Errorf("type %s: %w", t, loam.ErrUnsupportedType)
	}
	ct, ok := byDialect[d]
	if !ok {
		return "", fmt.Errorf("type %s on dialect %q: %w", t, d, loam.ErrUnsupportedType)
	}
	return ct, nil
}

// Ident quotes an identifier for the given dialect.
func Ident(d, name string) string {
	if d == dialect.Postgres {
		return `"` + name + `"`
	}
	return "`" + name + "`"
}

// ColumnDDL renders the column definition of a field (name, type,
// nullability, uniqueness and default) for the given dialect. Primary-key
// fields additionally carry the dialect autoincrement form.
func ColumnDDL(f schema.FieldDescriptor, d string) (string, error) {
	if f.PrimaryKey {
		return pkColumnDDL(f, d)
	}
	ct, err := ColumnType(f.Type, d)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(Ident(d, f.Column()))
	b.WriteString(" ")
	b.WriteString(ct)
	if !f.Nullable {
		b.WriteString(" NOT NULL")
	}
	if f.Unique {
		b.WriteString(" UNIQUE")
	}
	if f.Default != nil {
		lit, err := defaultLiteral(f, d)
		if err != nil {
			return "", err
		}
		b.WriteString(" DEFAULT ")
		b.WriteString(lit)
	}
	return b.String(), nil
}

func pkColumnDDL(f schema.FieldDescriptor, d string) (string, error) {
	if f.Type != schema.TypeInt {
		return "", fmt.Errorf("primary key %q of type %s: %w", f.Name, f.Type, loam.ErrUnsupportedType)
	}
	switch d {
	case dialect.SQLite:
		return Ident(d, f.Column()) + " INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT", nil
	case dialect.Postgres:
		return Ident(d, f.Column()) + " SERIAL PRIMARY KEY", nil
	case dialect.MySQL:
		return Ident(d, f.Column()) + " INT NOT NULL AUTO_INCREMENT PRIMARY KEY", nil
	}
	return "", fmt.Errorf("dialect %q: %w", d, loam.ErrUnsupportedType)
}

// defaultLiteral renders a default value for embedding in DDL. Strings
// are quoted with doubled single quotes; no other escaping path exists
// because defaults come from compiled model declarations.
func defaultLiteral(f schema.FieldDescriptor, d string) (string, error) {
	switch v := f.Default.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'", nil
	case schema.Decimal:
		return "'" + strings.ReplaceAll(string(v), "'", "''") + "'", nil
	case bool:
		switch d {
		case dialect.Postgres:
			if v {
				return "TRUE", nil
			}
			return "FALSE", nil
		default:
			if v {
				return "1", nil
			}
			return "0", nil
		}
	case int:
		return fmt.Sprintf("%d", v), nil
	case int64:
		return fmt.Sprintf("%d", v), nil
	case time.Time:
		return "'" + v.UTC().Format(time.RFC3339Nano) + "'", nil
	default:
		return "", fmt.Errorf("default %T for field %q: %w", v, f.Name, loam.ErrUnsupportedType)
	}
}

// BuildDDL renders the ordered DDL statements that create the model's
// table and its secondary indexes.
func BuildDDL(m *schema.ModelDescriptor, d string) ([]string, error) {
	if !dialect.Valid(d) {
		return nil, fmt.Errorf("dialect %q: %w", d, loam.ErrUnsupportedType)
	}
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(Ident(d, m.Table()))
	b.WriteString(" (")
	for i, f := range m.Fields() {
		if i > 0 {
			b.WriteString(", ")
		}
		col, err := ColumnDDL(f, d)
		if err != nil {
			return nil, err
		}
		b.WriteString(col)
	}
	for _, f := range m.Fields() {
		if f.Type != schema.TypeForeignKey {
			continue
		}
		b.WriteString(fmt.Sprintf(", CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			Ident(d, m.Table()+"_"+f.Column()),
			Ident(d, f.Column()),
			Ident(d, refTable(f)),
			Ident(d, "id"),
		))
	}
	b.WriteString(")")
	stmts := []string{b.String()}
	for _, idx := range m.Indexes() {
		stmts = append(stmts, IndexDDL(m.Table(), idx, d))
	}
	return stmts, nil
}

// refTable returns the referenced table name of a foreign-key field,
// falling back to the conventional derivation when the registry has not
// resolved it.
func refTable(f schema.FieldDescriptor) string {
	if f.RefTable != "" {
		return f.RefTable
	}
	return schema.DeriveTable(f.Ref)
}

// IndexDDL renders a CREATE INDEX statement.
func IndexDDL(table string, idx schema.IndexDescriptor, d string) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if idx.Unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX ")
	b.WriteString(Ident(d, idx.Name))
	b.WriteString(" ON ")
	b.WriteString(Ident(d, table))
	b.WriteString(" (")
	for i, col := range idx.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(Ident(d, col))
	}
	b.WriteString(")")
	return b.String()
}

// DropIndexDDL renders a DROP INDEX statement. MySQL scopes index names
// to their table.
func DropIndexDDL(table, index, d string) string {
	if d == dialect.MySQL {
		return "DROP INDEX " + Ident(d, index) + " ON " + Ident(d, table)
	}
	return "DROP INDEX " + Ident(d, index)
}
