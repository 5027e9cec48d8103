// Package json turns catalog API responses into product tables.
package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"catalogetl/internal/transformer"
)

// ProductColumns are the fields of one product entry, in the order the API
// documents them. Extracted tables always start with these columns.
var ProductColumns = []string{
	"asin",
	"product_title",
	"product_price",
	"product_original_price",
	"product_star_rating",
	"product_num_ratings",
	"product_num_offers",
	"product_minimum_offer_price",
	"is_best_seller",
	"is_amazon_choice",
	"is_prime",
	"climate_pledge_friendly",
	"sales_volume",
	"has_variations",
	"product_availability",
	"currency",
	"product_url",
	"product_photo",
	"delivery",
	"unit_price",
	"unit_count",
	"coupon_text",
}

// ProductsPath is where the product list lives in a response.
var ProductsPath = []string{"data", "products"}

// Decode reads one JSON document from r.
//
// Numbers are kept as json.Number so integer counts do not round-trip through
// float64. Trailing data after the document is an error.
func Decode(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("json: decode response: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("json: trailing data after response document")
	}
	return doc, nil
}

// Lookup walks nested objects along path. It reports false as soon as a step
// is missing or is not an object.
func Lookup(doc map[string]any, path ...string) (any, bool) {
	var cur any = doc
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// ExtractProducts returns one row per product object under data.products.
//
// A response without that path, or where it is not a list, yields an empty
// table; this is a normal outcome, not an error. Non-object list entries are
// skipped. Columns are ProductColumns followed by any extra fields, sorted.
func ExtractProducts(resp map[string]any) *transformer.Table {
	raw, ok := Lookup(resp, ProductsPath...)
	if !ok {
		return transformer.NewTable(ProductColumns...)
	}
	list, ok := raw.([]any)
	if !ok {
		return transformer.NewTable(ProductColumns...)
	}

	known := make(map[string]bool, len(ProductColumns))
	for _, c := range ProductColumns {
		known[c] = true
	}

	objs := make([]map[string]any, 0, len(list))
	extraSeen := make(map[string]bool)
	var extras []string
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		objs = append(objs, obj)
		for k := range obj {
			if !known[k] && !extraSeen[k] {
				extraSeen[k] = true
				extras = append(extras, k)
			}
		}
	}
	sort.Strings(extras)

	cols := make([]string, 0, len(ProductColumns)+len(extras))
	cols = append(cols, ProductColumns...)
	cols = append(cols, extras...)

	t := transformer.NewTable(cols...)
	t.Rows = make([]transformer.Row, 0, len(objs))
	for i, obj := range objs {
		v := make([]any, len(cols))
		for j, c := range cols {
			v[j] = normalize(obj[c])
		}
		t.Rows = append(t.Rows, transformer.Row{V: v, Line: i + 1})
	}
	return t
}

// normalize converts json.Number to int64 when integral, float64 otherwise,
// recursing into nested objects and lists.
func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = normalize(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = normalize(x)
		}
		return out
	default:
		return v
	}
}
