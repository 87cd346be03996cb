package sql

import (
	"fmt"
	"strconv"
	"time"

	"github.com/loamdb/loam"
	"github.com/loamdb/loam/schema"
)

// DecodeRow matches result columns to the model's fields by name and
// converts each raw driver value to its semantic type. NULL decodes to an
// empty value on nullable fields and is a DecodeError on non-nullable
// ones; a missing column is a MissingColumnError unless the field is
// nullable.
func DecodeRow(columns []string, raw []any, m *schema.ModelDescriptor) (schema.Record, error) {
	if len(columns) != len(raw) {
		return nil, fmt.Errorf("dialect/sql: %d columns with %d values", len(columns), len(raw))
	}
	byColumn := make(map[string]any, len(columns))
	for i, c := range columns {
		byColumn[c] = raw[i]
	}
	rec := make(schema.Record, len(m.Fields()))
	for _, f := range m.Fields() {
		v, ok := byColumn[f.Column()]
		if !ok {
			if f.Nullable {
				rec[f.Name] = schema.NullValue(f.Type)
				continue
			}
			return nil, &loam.MissingColumnError{Model: m.Name(), Column: f.Column()}
		}
		dv, err := decodeValue(f, v)
		if err != nil {
			return nil, err
		}
		rec[f.Name] = dv
	}
	return rec, nil
}

// ScanRows drains the result set through DecodeRow and closes it.
func ScanRows(rows *Rows, m *schema.ModelDescriptor) (recs []schema.Record, rerr error) {
	defer func() {
		if cerr := rows.Close(); cerr != nil && rerr == nil {
			rerr = cerr
		}
	}()
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		raw := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		rec, err := DecodeRow(columns, raw, m)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

func decodeValue(f schema.FieldDescriptor, raw any) (schema.Value, error) {
	if raw == nil {
		if f.Nullable {
			return schema.NullValue(f.Type), nil
		}
		return schema.Value{}, &loam.DecodeError{Column: f.Column(), Expected: f.Type.String(), Found: nil}
	}
	fail := func() (schema.Value, error) {
		return schema.Value{}, &loam.DecodeError{Column: f.Column(), Expected: f.Type.String(), Found: raw}
	}
	switch f.Type {
	case schema.TypeInt, schema.TypeForeignKey:
		n, ok := asInt64(raw)
		if !ok {
			return fail()
		}
		if f.Type == schema.TypeForeignKey {
			return schema.RefValue(n), nil
		}
		return schema.IntValue(n), nil
	case schema.TypeText:
		s, ok := asString(raw)
		if !ok {
			return fail()
		}
		return schema.TextValue(s), nil
	case schema.TypeBool:
		switch v := raw.(type) {
		case bool:
			return schema.BoolValue(v), nil
		default:
			// SQLite and MySQL surface booleans as small integers.
			if n, ok := asInt64(raw); ok && (n == 0 || n == 1) {
				return schema.BoolValue(n == 1), nil
			}
		}
		return fail()
	case schema.TypeDateTime:
		switch v := raw.(type) {
		case time.Time:
			return schema.TimeValue(v), nil
		default:
			// SQLite stores date-times as RFC 3339 text.
			if s, ok := asString(v); ok {
				t, err := time.Parse(time.RFC3339Nano, s)
				if err != nil {
					return fail()
				}
				return schema.TimeValue(t), nil
			}
		}
		return fail()
	case schema.TypeDecimal:
		switch v := raw.(type) {
		case float64:
			return schema.DecimalValue(schema.Decimal(strconv.FormatFloat(v, 'f', -1, 64))), nil
		default:
			if s, ok := asString(v); ok {
				return schema.DecimalValue(schema.Decimal(s)), nil
			}
		}
		return fail()
	}
	return fail()
}

func asInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func asString(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	return "", false
}
