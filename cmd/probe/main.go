// Command probe fetches one page of the products-by-category API and prints
// what the ETL would see for it.
//
// Output modes
//
//   - Default mode: the extracted table as CSV on stdout.
//   - Clean mode (-clean): the table after column drops and price parsing,
//     exactly as the ETL would load it.
//   - Report mode (-report): a per-column summary (non-null and distinct
//     counts) instead of CSV. Useful for checking which fields a category
//     actually populates before running the full job.
//
// API credentials and query defaults come from the same environment variables
// and .env file as cmd/etl; flags override the query.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"catalogetl/internal/catalog"
	"catalogetl/internal/config"
	pjson "catalogetl/internal/parser/json"
	"catalogetl/internal/sink"
	"catalogetl/internal/transformer"
	"catalogetl/internal/transformer/builtin"
)

func main() {
	_ = godotenv.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) int {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		page     = fs.Int("page", 1, "page number to fetch (>= 1)")
		category = fs.String("category", "", "category id; overrides CATEGORY_ID")
		country  = fs.String("country", "", "country code; overrides COUNTRY")
		clean    = fs.Bool("clean", false, "print the cleaned table instead of the raw extraction")
		report   = fs.Bool("report", false, "print a per-column summary instead of CSV")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "probe: unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return 2
	}
	if *page < 1 {
		fmt.Fprintf(stderr, "probe: -page must be >= 1, got %d\n", *page)
		return 2
	}

	cfg, err := config.FromEnv(getenv)
	if err != nil {
		fmt.Fprintf(stderr, "probe: %v\n", err)
		return 1
	}
	if *category != "" {
		cfg.Query.CategoryID = *category
	}
	if *country != "" {
		cfg.Query.Country = *country
	}

	// Only the API settings matter here; storage may be unconfigured.
	var bad bool
	for _, iss := range config.Validate(cfg) {
		if iss.Severity == config.SeverityError && strings.HasPrefix(iss.Path, "api.") {
			fmt.Fprintln(stderr, iss.String())
			bad = true
		}
	}
	if bad {
		return 1
	}

	client := catalog.NewClient(cfg.API, catalog.QueryFromConfig(cfg.Query), "probe")
	resp, err := client.Fetch(ctx, *page)
	if err != nil {
		fmt.Fprintf(stderr, "probe: %v\n", err)
		return 1
	}

	t := pjson.ExtractProducts(resp)
	if t.Empty() {
		fmt.Fprintf(stderr, "probe: page %d has no products\n", *page)
	}
	if *clean {
		t, err = transformer.Clean(t)
		if err != nil {
			fmt.Fprintf(stderr, "probe: %v\n", err)
			return 1
		}
	}

	if *report {
		writeReport(stdout, t)
		return 0
	}
	if err := sink.EncodeCSV(stdout, t); err != nil {
		fmt.Fprintf(stderr, "probe: write csv: %v\n", err)
		return 1
	}
	return 0
}

type columnStats struct {
	name     string
	nonNull  int
	distinct int
}

// writeReport prints one line per column, most populated first.
func writeReport(w io.Writer, t *transformer.Table) {
	if t.Empty() {
		fmt.Fprintln(w, "columns: no rows sampled")
		return
	}
	stats := make([]columnStats, len(t.Columns))
	for j, c := range t.Columns {
		seen := make(map[string]struct{})
		st := columnStats{name: c}
		for _, r := range t.Rows {
			if r.V[j] == nil {
				continue
			}
			st.nonNull++
			seen[builtin.FormatCell(r.V[j])] = struct{}{}
		}
		st.distinct = len(seen)
		stats[j] = st
	}
	sort.SliceStable(stats, func(a, b int) bool { return stats[a].nonNull > stats[b].nonNull })

	fmt.Fprintf(w, "rows: %d\n", t.Len())
	for _, st := range stats {
		fmt.Fprintf(w, "%-32s non_null=%d distinct=%d\n", st.name, st.nonNull, st.distinct)
	}
}
