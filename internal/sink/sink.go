// Package sink persists the cleaned product table: a full-replace load into
// the relational store, then a CSV export.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"catalogetl/internal/logging"
	"catalogetl/internal/metrics"
	"catalogetl/internal/storage"
	"catalogetl/internal/transformer"
)

// ErrSink wraps every failure of Store.
var ErrSink = errors.New("sink: store failed")

// Opener opens a repository; storage.New in production.
type Opener func(ctx context.Context, cfg storage.Config) (storage.Repository, error)

// Writer stores tables. The zero value is not usable: Storage and CSVPath are required.
type Writer struct {
	Storage storage.Config

	// Schema types known columns; others are stored as text.
	Schema []storage.ColumnSpec

	CSVPath string

	Open Opener
	Log  *logrus.Logger
}

// Store loads t into tableName, replacing it, and then writes the CSV export.
//
// If the relational load fails the CSV is not written. The repository is
// opened and closed within the call.
func (w *Writer) Store(ctx context.Context, t *transformer.Table, tableName string) error {
	log := w.Log
	if log == nil {
		log = logging.Discard()
	}
	open := w.Open
	if open == nil {
		open = storage.New
	}

	start := time.Now()
	n, err := w.load(ctx, open, t, tableName)
	metrics.RecordStep("load", err, time.Since(start))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSink, err)
	}
	metrics.RecordRecords("loaded", int(n))
	log.WithFields(logrus.Fields{
		"table": tableName,
		"kind":  w.Storage.Kind,
		"rows":  n,
	}).Info("relational load complete")

	start = time.Now()
	err = WriteCSV(w.CSVPath, t)
	metrics.RecordStep("export", err, time.Since(start))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSink, err)
	}
	log.WithFields(logrus.Fields{
		"path": w.CSVPath,
		"rows": t.Len(),
	}).Info("csv export complete")
	return nil
}

func (w *Writer) load(ctx context.Context, open Opener, t *transformer.Table, tableName string) (int64, error) {
	if t == nil {
		return 0, fmt.Errorf("sink: nil table")
	}
	spec := storage.BuildTableSpec(tableName, w.Schema, t.Columns)
	if err := spec.Validate(); err != nil {
		return 0, err
	}

	raw := make([][]any, len(t.Rows))
	for i, r := range t.Rows {
		raw[i] = r.V
	}
	rows, err := storage.CoerceRows(spec, raw)
	if err != nil {
		return 0, err
	}

	repo, err := open(ctx, w.Storage)
	if err != nil {
		return 0, err
	}
	defer repo.Close()

	return repo.ReplaceTable(ctx, spec, rows)
}
