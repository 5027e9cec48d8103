package storage

import (
	"fmt"
	"strings"
)

// ColumnType is a backend-neutral column type. Each backend maps it to DDL.
type ColumnType string

const (
	// TypeString is a bounded string; ColumnSpec.Length is the bound.
	TypeString  ColumnType = "string"
	TypeText    ColumnType = "text"
	TypeFloat   ColumnType = "float"
	TypeInteger ColumnType = "integer"
	TypeBoolean ColumnType = "boolean"
)

type ColumnSpec struct {
	Name   string
	Type   ColumnType
	Length int // TypeString only
}

type TableSpec struct {
	Name    string
	Columns []ColumnSpec
}

// ColumnNames returns the column names in table order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Validate checks the spec is usable for DDL.
func (t TableSpec) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("storage: table name is empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("storage: table %s has no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		n := strings.ToLower(strings.TrimSpace(c.Name))
		if n == "" {
			return fmt.Errorf("storage: table %s has an empty column name", t.Name)
		}
		if seen[n] {
			return fmt.Errorf("storage: table %s has duplicate column %q", t.Name, c.Name)
		}
		seen[n] = true
		switch c.Type {
		case TypeString:
			if c.Length <= 0 {
				return fmt.Errorf("storage: column %s: string needs a positive length", c.Name)
			}
		case TypeText, TypeFloat, TypeInteger, TypeBoolean:
		default:
			return fmt.Errorf("storage: column %s: unknown type %q", c.Name, c.Type)
		}
	}
	return nil
}

// BuildTableSpec types columns (in the given order) using the fixed schema.
// Columns the schema does not list are TypeText.
func BuildTableSpec(name string, schema []ColumnSpec, columns []string) TableSpec {
	byName := make(map[string]ColumnSpec, len(schema))
	for _, c := range schema {
		byName[c.Name] = c
	}

	spec := TableSpec{Name: name, Columns: make([]ColumnSpec, 0, len(columns))}
	for _, col := range columns {
		if c, ok := byName[col]; ok {
			spec.Columns = append(spec.Columns, c)
			continue
		}
		spec.Columns = append(spec.Columns, ColumnSpec{Name: col, Type: TypeText})
	}
	return spec
}
