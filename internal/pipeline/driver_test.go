package pipeline

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"catalogetl/internal/catalog"
	"catalogetl/internal/logging"
	pjson "catalogetl/internal/parser/json"
	"catalogetl/internal/sink"
	"catalogetl/internal/storage"
	_ "catalogetl/internal/storage/sqlite"
	"catalogetl/internal/transformer"
)

// pageFetcher serves canned pages keyed by page number. Pages absent from
// both maps return a response without data.products.
type pageFetcher struct {
	mu     sync.Mutex
	pages  map[int]string
	fail   map[int]error
	called []int
}

func (f *pageFetcher) Fetch(ctx context.Context, page int) (catalog.PageResponse, error) {
	f.mu.Lock()
	f.called = append(f.called, page)
	f.mu.Unlock()

	if err := f.fail[page]; err != nil {
		return nil, err
	}
	body, ok := f.pages[page]
	if !ok {
		body = `{"status":"OK","data":{}}`
	}
	doc, err := pjson.Decode(strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	return catalog.PageResponse(doc), nil
}

type recordingSink struct {
	calls int
	table *transformer.Table
	name  string
	err   error
}

func (s *recordingSink) Store(ctx context.Context, t *transformer.Table, tableName string) error {
	s.calls++
	s.table, s.name = t, tableName
	return s.err
}

// productsPage returns a page body with n products whose asins are prefixed by
// the page number.
func productsPage(page, n int) string {
	var items []string
	for i := 0; i < n; i++ {
		items = append(items, fmt.Sprintf(`{
			"asin": "P%02dN%d",
			"product_title": "Item %d on page %d",
			"product_price": "$%d.99",
			"product_original_price": "$%d.49",
			"product_minimum_offer_price": null,
			"currency": "USD",
			"product_url": "https://example.com/dp/P%02dN%d",
			"product_photo": "https://example.com/p.jpg",
			"product_star_rating": "4.5",
			"product_num_ratings": %d,
			"is_prime": true,
			"delivery": "FREE delivery",
			"unit_price": null,
			"unit_count": 1,
			"coupon_text": null
		}`, page, i, i, page, 10+i, 20+i, page, i, 100*page+i))
	}
	return `{"status":"OK","data":{"total_products":100,"products":[` + strings.Join(items, ",") + `]}}`
}

func TestRun_ScenarioA_ThreePagesLoaded(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "catalog.db")
	csvPath := filepath.Join(dir, "final_data_to_db.csv")

	f := &pageFetcher{pages: map[int]string{
		1: productsPage(1, 2),
		2: productsPage(2, 2),
		3: productsPage(3, 2),
	}}
	d := &Driver{
		Fetcher:   f,
		Sink:      &sink.Writer{Storage: storage.Config{Kind: "sqlite", DSN: dbPath}, Schema: catalog.DestinationColumns, CSVPath: csvPath},
		FirstPage: 1,
		LastPage:  3,
		Table:     "product_by_category",
		RunID:     "run-a",
	}

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StateDone || res.Rows != 6 || res.PagesFetched != 3 || res.RunID != "run-a" {
		t.Fatalf("result=%+v", res)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var n int
	var sum float64
	if err := db.QueryRow(`SELECT COUNT(*), SUM(product_price) FROM product_by_category`).Scan(&n, &sum); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 6 {
		t.Fatalf("rows=%d, want 6", n)
	}
	// 10.99 + 11.99 per page, three pages.
	if sum < 68.93 || sum > 68.95 {
		t.Fatalf("sum(product_price)=%v, want 68.94", sum)
	}

	var dropped int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('product_by_category') WHERE name IN ('currency','product_url','product_photo','delivery','unit_price','unit_count','coupon_text')`).Scan(&dropped); err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if dropped != 0 {
		t.Fatalf("dropped columns still present: %d", dropped)
	}

	raw, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if lines := strings.Count(string(raw), "\n"); lines != 7 {
		t.Fatalf("csv lines=%d, want header + 6", lines)
	}
}

func TestRun_ScenarioB_NoProductsReportsEmpty(t *testing.T) {
	t.Parallel()

	f := &pageFetcher{pages: map[int]string{
		1: `{"status":"OK"}`,
		2: `{"status":"OK","data":{"products":"not-a-list"}}`,
	}}
	s := &recordingSink{}
	var logs bytes.Buffer
	log, err := logging.New("warn", "text", &logs)
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	d := &Driver{Fetcher: f, Sink: s, FirstPage: 1, LastPage: 4, Table: "product_by_category", Log: log}

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StateReportedEmpty {
		t.Fatalf("state=%s, want %s", res.State, StateReportedEmpty)
	}
	if res.PagesEmpty != 4 || res.PagesFailed != 0 {
		t.Fatalf("result=%+v", res)
	}
	if s.calls != 0 {
		t.Fatalf("sink calls=%d, want 0", s.calls)
	}
	if res.RunID == "" {
		t.Fatalf("run id must be generated")
	}
	if !strings.Contains(logs.String(), NoDataMessage) {
		t.Fatalf("logs=%q, want %q even at warn level", logs.String(), NoDataMessage)
	}
}

func TestRun_ScenarioC_FailedPageSkipped(t *testing.T) {
	t.Parallel()

	pages := make(map[int]string)
	for p := 1; p <= 8; p++ {
		pages[p] = productsPage(p, 2)
	}
	f := &pageFetcher{
		pages: pages,
		fail:  map[int]error{5: fmt.Errorf("%w: dial tcp: i/o timeout", catalog.ErrFetch)},
	}
	s := &recordingSink{}
	d := &Driver{Fetcher: f, Sink: s, FirstPage: 1, LastPage: 8, Table: "product_by_category"}

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StateDone || res.PagesFailed != 1 || res.PagesFetched != 7 || res.Rows != 14 {
		t.Fatalf("result=%+v", res)
	}
	if len(f.called) != 8 {
		t.Fatalf("pages requested=%v, want all 8", f.called)
	}
	for i := 0; i < s.table.Len(); i++ {
		asin, _ := s.table.Value(i, "asin").(string)
		if strings.HasPrefix(asin, "P05") {
			t.Fatalf("row %d from failed page 5 present: %s", i, asin)
		}
	}
	if got := s.table.Value(0, "asin"); got != "P01N0" {
		t.Fatalf("first row asin=%v, want page order preserved", got)
	}
	if got := s.table.Value(0, "product_price"); got != 10.99 {
		t.Fatalf("product_price=%#v, want 10.99", got)
	}
	if got := s.table.Value(0, "product_minimum_offer_price"); got != nil {
		t.Fatalf("null price=%#v, want nil", got)
	}
	if s.table.ColumnIndex("currency") != -1 {
		t.Fatalf("currency column must be dropped")
	}
}

func TestRun_ScenarioD_ConnectivityErrorWritesNoFile(t *testing.T) {
	t.Parallel()

	csvPath := filepath.Join(t.TempDir(), "final_data_to_db.csv")
	connErr := errors.New("mssql: login error: connection refused")
	w := &sink.Writer{
		Storage: storage.Config{Kind: "mssql"},
		Schema:  catalog.DestinationColumns,
		CSVPath: csvPath,
		Open: func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
			return nil, connErr
		},
	}
	d := &Driver{
		Fetcher:   &pageFetcher{pages: map[int]string{1: productsPage(1, 2)}},
		Sink:      w,
		FirstPage: 1,
		LastPage:  2,
		Table:     "product_by_category",
	}

	res, err := d.Run(context.Background())
	if !errors.Is(err, sink.ErrSink) || !errors.Is(err, connErr) {
		t.Fatalf("err=%v, want sink error wrapping connectivity failure", err)
	}
	if res.State != StateMerged {
		t.Fatalf("state=%s, want %s", res.State, StateMerged)
	}
	if _, statErr := os.Stat(csvPath); !os.IsNotExist(statErr) {
		t.Fatalf("csv must not be written (stat err=%v)", statErr)
	}
}

func TestRun_CanceledContextWritesNothing(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &pageFetcher{pages: map[int]string{1: productsPage(1, 1)}}
	s := &recordingSink{}
	d := &Driver{Fetcher: f, Sink: s, FirstPage: 1, LastPage: 3, Table: "t"}

	_, err := d.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
	if s.calls != 0 || len(f.called) != 0 {
		t.Fatalf("sink calls=%d fetches=%v, want none", s.calls, f.called)
	}
}

func TestRun_DefaultsAndInvalidConfig(t *testing.T) {
	t.Parallel()

	f := &pageFetcher{}
	d := &Driver{Fetcher: f, Sink: &recordingSink{}, Table: "t"}
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.called) != DefaultLastPage || f.called[0] != DefaultFirstPage {
		t.Fatalf("default range fetched %d pages starting at %d", len(f.called), f.called[0])
	}
	if res.State != StateReportedEmpty {
		t.Fatalf("state=%s", res.State)
	}

	bad := []*Driver{
		{Sink: &recordingSink{}, Table: "t"},
		{Fetcher: &pageFetcher{}, Table: "t"},
		{Fetcher: &pageFetcher{}, Sink: &recordingSink{}, Table: "t", FirstPage: 5, LastPage: 2},
		{Fetcher: &pageFetcher{}, Sink: &recordingSink{}, Table: "t", FirstPage: -1, LastPage: 2},
		{Fetcher: &pageFetcher{}, Sink: &recordingSink{}},
	}
	for i, d := range bad {
		if _, err := d.Run(context.Background()); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
