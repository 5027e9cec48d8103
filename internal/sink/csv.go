package sink

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"catalogetl/internal/transformer"
	"catalogetl/internal/transformer/builtin"
)

// WriteCSV writes t to path with a header row and no index column.
//
// The file is written to a temp file in the same directory and renamed into
// place, so readers never see a partial export and a failed run leaves the
// previous file untouched.
func WriteCSV(path string, t *transformer.Table) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".catalog-*.csv")
	if err != nil {
		return fmt.Errorf("sink: csv: %w", err)
	}
	tmpName := tmp.Name()

	writeErr := EncodeCSV(tmp, t)
	closeErr := tmp.Close()

	if writeErr != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("sink: csv: write %s: %w", path, writeErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("sink: csv: close %s: %w", path, closeErr)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("sink: csv: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("sink: csv: rename %s: %w", path, err)
	}
	return nil
}

// EncodeCSV writes t to w as CSV: a header row, then one record per row.
// nil cells are empty and booleans are True/False.
func EncodeCSV(out io.Writer, t *transformer.Table) error {
	w := csv.NewWriter(out)
	if err := w.Write(t.Columns); err != nil {
		return err
	}
	rec := make([]string, len(t.Columns))
	for _, r := range t.Rows {
		for j, v := range r.V {
			rec[j] = builtin.FormatCell(v)
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
