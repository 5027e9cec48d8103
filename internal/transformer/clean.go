package transformer

import (
	"fmt"

	"catalogetl/internal/transformer/builtin"
)

// DroppedColumns are removed by Clean. They must all be present.
var DroppedColumns = []string{
	"currency",
	"product_url",
	"product_photo",
	"delivery",
	"unit_price",
	"unit_count",
	"coupon_text",
}

// PriceColumns are converted to float64 by Clean.
var PriceColumns = []string{
	"product_price",
	"product_original_price",
	"product_minimum_offer_price",
}

// Clean drops DroppedColumns and parses PriceColumns.
//
// A price that does not parse becomes nil. A price column missing from t is
// left missing. Every other cell passes through unchanged.
func Clean(t *Table) (*Table, error) {
	if t == nil {
		return nil, fmt.Errorf("transformer: clean: nil table")
	}
	out, err := t.DropColumns(DroppedColumns...)
	if err != nil {
		return nil, fmt.Errorf("transformer: clean: %w", err)
	}

	for _, name := range PriceColumns {
		j := out.ColumnIndex(name)
		if j < 0 {
			continue
		}
		for i := range out.Rows {
			if f, ok := builtin.ParsePrice(out.Rows[i].V[j]); ok {
				out.Rows[i].V[j] = f
			} else {
				out.Rows[i].V[j] = nil
			}
		}
	}
	return out, nil
}
