package builtin

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// FormatCell returns the text form of a cell for delimited output.
//
// nil is the empty string and booleans are "True"/"False", which is what
// spreadsheet tools and the downstream loaders of the CSV expect. Nested
// objects and lists are written as compact JSON.
func FormatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		if t {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case time.Time:
		tt := t
		if !tt.IsZero() {
			tt = tt.UTC()
		}
		return tt.Format(time.RFC3339Nano)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
