// Package builtin contains small, reusable cell transforms used by the cleaner
// and the file sink.
package builtin

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ParsePrice converts a price cell to a float64.
//
// Strings are NFKC-normalized and trimmed, then one leading currency symbol
// (Unicode category Sc, e.g. "$", "€", "£") is removed and the remainder is
// parsed as a plain decimal number. Numeric cells are accepted as-is.
//
// ok is false for nil, empty, non-decimal text (including "1,299.00"), and
// for NaN or infinite values. The caller decides what a failed parse becomes.
func ParsePrice(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(t)
	case float32:
		return finite(float64(t))
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		return parseDecimal(string(t))
	case string:
		return parseDecimal(stripCurrency(t))
	case []byte:
		return parseDecimal(stripCurrency(string(t)))
	default:
		return 0, false
	}
}

// stripCurrency normalizes s and removes one leading currency symbol.
func stripCurrency(s string) string {
	s = norm.NFKC.String(s)
	if HasEdgeSpace(s) {
		s = strings.TrimSpace(s)
	}
	r, size := utf8.DecodeRuneInString(s)
	if size > 0 && unicode.Is(unicode.Sc, r) {
		s = strings.TrimSpace(s[size:])
	}
	return s
}

// parseDecimal accepts only [+-]digits[.digits][e[+-]digits]. strconv alone
// would also take hex floats, "Inf" and "NaN".
func parseDecimal(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c == '.', c == '-', c == '+', c == 'e', c == 'E':
		default:
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return finite(f)
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// HasEdgeSpace reports whether s starts or ends with whitespace.
// It lets callers skip strings.TrimSpace on the common clean case.
func HasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(s)
	last, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsSpace(first) || unicode.IsSpace(last)
}
