package storage

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
)

// CoerceRows converts table rows to the Go types the backends bind for each
// column type: string, float64, int64, bool or nil.
//
// A value that cannot be represented in its column is an error naming the
// row and column; the load must not silently change data.
func CoerceRows(spec TableSpec, rows [][]any) ([][]any, error) {
	out := make([][]any, len(rows))
	for i, row := range rows {
		if len(row) != len(spec.Columns) {
			return nil, fmt.Errorf("storage: row %d has %d values, table %s has %d columns", i+1, len(row), spec.Name, len(spec.Columns))
		}
		v := make([]any, len(row))
		for j, c := range spec.Columns {
			cv, err := Coerce(c, row[j])
			if err != nil {
				return nil, fmt.Errorf("storage: row %d: %w", i+1, err)
			}
			v[j] = cv
		}
		out[i] = v
	}
	return out, nil
}

// Coerce converts one value for column c. nil stays nil, and so does a blank
// string in a float, integer or boolean column.
func Coerce(c ColumnSpec, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		switch c.Type {
		case TypeFloat, TypeInteger, TypeBoolean:
			return nil, nil
		}
	}
	switch c.Type {
	case TypeString, TypeText:
		s := textValue(v)
		if c.Type == TypeString && c.Length > 0 && utf16Len(s) > c.Length {
			return nil, fmt.Errorf("column %s: value %q longer than %d", c.Name, s, c.Length)
		}
		return s, nil

	case TypeFloat:
		switch t := v.(type) {
		case float64:
			return t, nil
		case float32:
			return float64(t), nil
		case int64:
			return float64(t), nil
		case int:
			return float64(t), nil
		case json.Number:
			f, err := t.Float64()
			if err != nil {
				return nil, mismatch(c, v)
			}
			return f, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if err != nil {
				return nil, mismatch(c, v)
			}
			return f, nil
		}

	case TypeInteger:
		switch t := v.(type) {
		case int64:
			return t, nil
		case int:
			return int64(t), nil
		case int32:
			return int64(t), nil
		case float64:
			if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
				return int64(t), nil
			}
		case json.Number:
			if i, err := t.Int64(); err == nil {
				return i, nil
			}
		case string:
			if i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
				return i, nil
			}
		}

	case TypeBoolean:
		switch t := v.(type) {
		case bool:
			return t, nil
		case int64:
			if t == 0 || t == 1 {
				return t == 1, nil
			}
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
				return b, nil
			}
		}

	default:
		return nil, fmt.Errorf("column %s: unknown type %q", c.Name, c.Type)
	}
	return nil, mismatch(c, v)
}

func mismatch(c ColumnSpec, v any) error {
	return fmt.Errorf("column %s: cannot store %T %v as %s", c.Name, v, v, c.Type)
}

// textValue renders v for a text column. Nested objects and lists become JSON.
func textValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}

// utf16Len counts UTF-16 code units, the unit of NVARCHAR(n). It is never
// less than the rune count that VARCHAR(n) uses on postgres and sqlite.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
