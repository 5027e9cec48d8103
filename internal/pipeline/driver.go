// Package pipeline runs one catalog ETL pass: fetch every configured page,
// concatenate the non-empty ones, clean once and store once.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"catalogetl/internal/catalog"
	"catalogetl/internal/logging"
	"catalogetl/internal/metrics"
	pjson "catalogetl/internal/parser/json"
	"catalogetl/internal/transformer"
)

// State is the driver's position in a run.
type State string

const (
	StateAccumulating  State = "accumulating"
	StateMerged        State = "merged"
	StateDone          State = "done"
	StateReportedEmpty State = "reported_empty"
)

// DefaultFirstPage and DefaultLastPage bound the page loop when a Driver
// leaves them unset.
const (
	DefaultFirstPage = 1
	DefaultLastPage  = 99
)

// NoDataMessage is reported when no page yielded any product.
const NoDataMessage = "No data to process."

// Fetcher returns one decoded API page.
type Fetcher interface {
	Fetch(ctx context.Context, page int) (catalog.PageResponse, error)
}

// Sink persists the cleaned table.
type Sink interface {
	Store(ctx context.Context, t *transformer.Table, tableName string) error
}

// Driver wires a Fetcher to a Sink.
type Driver struct {
	Fetcher Fetcher
	Sink    Sink

	FirstPage int
	LastPage  int

	// Table is the destination table name.
	Table string

	// RunID tags every log line of the run. Generated when empty.
	RunID string

	Log *logrus.Logger
}

// Result summarizes a run.
type Result struct {
	RunID string
	State State

	PagesFetched int
	PagesFailed  int
	PagesEmpty   int

	// Rows is the number of rows handed to the sink.
	Rows int
}

// Run executes the pipeline.
//
// Failed and empty pages are skipped. When no page yields rows the run ends in
// StateReportedEmpty with a nil error and nothing is written. Cleaning and
// sink errors are returned. A context canceled before the store step aborts
// the run without writing.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	if d.Fetcher == nil || d.Sink == nil {
		return Result{}, errors.New("pipeline: fetcher and sink are required")
	}
	first, last := d.FirstPage, d.LastPage
	if first == 0 {
		first = DefaultFirstPage
	}
	if last == 0 {
		last = DefaultLastPage
	}
	if first < 1 || last < first {
		return Result{}, fmt.Errorf("pipeline: invalid page range %d..%d", first, last)
	}
	if d.Table == "" {
		return Result{}, errors.New("pipeline: table name is empty")
	}

	res := Result{RunID: d.RunID, State: StateAccumulating}
	if res.RunID == "" {
		res.RunID = uuid.NewString()
	}
	base := d.Log
	if base == nil {
		base = logging.Discard()
	}
	log := base.WithField("run_id", res.RunID)

	log.WithFields(logrus.Fields{"first_page": first, "last_page": last}).Info("fetching catalog pages")

	start := time.Now()
	var tables []*transformer.Table
	for page := first; page <= last; page++ {
		if err := ctx.Err(); err != nil {
			metrics.RecordStep("extract", err, time.Since(start))
			return res, fmt.Errorf("pipeline: %w", err)
		}

		resp, err := d.Fetcher.Fetch(ctx, page)
		if err != nil {
			res.PagesFailed++
			metrics.RecordPage("failed")
			log.WithError(err).WithField("page", page).Warn("page fetch failed; skipping")
			continue
		}
		res.PagesFetched++

		t := pjson.ExtractProducts(resp)
		if t.Empty() {
			res.PagesEmpty++
			metrics.RecordPage("empty")
			log.WithField("page", page).Debug("page has no products")
			continue
		}
		metrics.RecordPage("ok")
		metrics.RecordRecords("extracted", t.Len())
		log.WithFields(logrus.Fields{"page": page, "rows": t.Len()}).Debug("page extracted")
		tables = append(tables, t)
	}
	metrics.RecordStep("extract", nil, time.Since(start))

	if len(tables) == 0 {
		res.State = StateReportedEmpty
		log.WithFields(logrus.Fields{
			"pages_fetched": res.PagesFetched,
			"pages_failed":  res.PagesFailed,
		}).Warn(NoDataMessage)
		return res, nil
	}

	merged := transformer.Concat(tables...)
	res.State = StateMerged

	start = time.Now()
	cleaned, err := transformer.Clean(merged)
	metrics.RecordStep("clean", err, time.Since(start))
	if err != nil {
		return res, fmt.Errorf("pipeline: %w", err)
	}
	metrics.RecordRecords("cleaned", cleaned.Len())
	log.WithFields(logrus.Fields{
		"rows":    cleaned.Len(),
		"columns": len(cleaned.Columns),
	}).Info("catalog table cleaned")

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("pipeline: %w", err)
	}

	if err := d.Sink.Store(ctx, cleaned, d.Table); err != nil {
		return res, fmt.Errorf("pipeline: %w", err)
	}
	res.Rows = cleaned.Len()
	res.State = StateDone
	log.WithFields(logrus.Fields{
		"table":         d.Table,
		"rows":          res.Rows,
		"pages_fetched": res.PagesFetched,
		"pages_failed":  res.PagesFailed,
		"pages_empty":   res.PagesEmpty,
	}).Info("run complete")
	return res, nil
}
