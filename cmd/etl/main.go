// Command etl runs the product catalog ETL once: fetch every configured page
// of the products-by-category API, clean the rows, replace the destination
// table and write the CSV export.
//
// Exit codes: 0 on success (including an empty run), 1 on a fatal error,
// 2 on usage errors.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"catalogetl/internal/catalog"
	"catalogetl/internal/config"
	"catalogetl/internal/logging"
	"catalogetl/internal/metrics"
	"catalogetl/internal/metrics/datadog"
	"catalogetl/internal/metrics/prompush"
	"catalogetl/internal/pipeline"
	"catalogetl/internal/sink"
	"catalogetl/internal/storage"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "catalogetl/internal/storage/all"
)

type runner interface {
	Run(ctx context.Context) (pipeline.Result, error)
}

// appDeps are the external seams of runMain.
type appDeps struct {
	loadConfig  func() (config.Config, error)
	mergeFile   func(c config.Config, path string) (config.Config, error)
	initMetrics func(ctx context.Context, mc config.MetricsConfig, job, runID string, log *logrus.Logger) (func(), error)
	newRunner   func(cfg config.Config, log *logrus.Logger, runID string) runner
}

func defaultDeps() appDeps {
	return appDeps{
		loadConfig:  config.Load,
		mergeFile:   config.MergeFile,
		initMetrics: initMetrics,
		newRunner:   newPipelineRunner,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

type cliFlags struct {
	cfgPath        string
	validate       bool
	verbose        bool
	metricsBackend string
	pushGatewayURL string
	firstPage      int
	lastPage       int
	out            string
	table          string
	dbKind         string

	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (cliFlags, error) {
	var f cliFlags
	fs := flag.NewFlagSet("etl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.cfgPath, "config", "", "optional YAML/JSON config file overlaid on the environment")
	fs.BoolVar(&f.validate, "validate", false, "validate the configuration and exit")
	fs.BoolVar(&f.verbose, "v", false, "enable debug logs")
	fs.StringVar(&f.metricsBackend, "metrics-backend", "", "metrics backend (none, pushgateway, datadog); overrides METRICS_BACKEND")
	fs.StringVar(&f.pushGatewayURL, "pushgateway-url", "", "Pushgateway base URL; overrides PUSHGATEWAY_URL")
	fs.IntVar(&f.firstPage, "first-page", 0, "first catalog page to fetch; overrides FIRST_PAGE")
	fs.IntVar(&f.lastPage, "last-page", 0, "last catalog page to fetch (inclusive); overrides LAST_PAGE")
	fs.StringVar(&f.out, "out", "", "CSV export path; overrides OUTPUT_CSV")
	fs.StringVar(&f.table, "table", "", "destination table; overrides DB_TABLE")
	fs.StringVar(&f.dbKind, "db-kind", "", "storage backend (mssql, postgres, sqlite); overrides DB_KIND")

	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if fs.NArg() > 0 {
		return f, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	f.set = make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

// apply overlays explicitly set flags on c.
func (f cliFlags) apply(c config.Config) config.Config {
	if f.set["metrics-backend"] {
		c.Metrics.Backend = strings.TrimSpace(f.metricsBackend)
	}
	if f.set["pushgateway-url"] {
		c.Metrics.PushGatewayURL = strings.TrimSpace(f.pushGatewayURL)
	}
	if f.set["first-page"] {
		c.Query.FirstPage = f.firstPage
	}
	if f.set["last-page"] {
		c.Query.LastPage = f.lastPage
	}
	if f.set["out"] {
		c.Output.CSVPath = f.out
	}
	if f.set["table"] {
		c.Storage.Table = f.table
	}
	if f.set["db-kind"] {
		c.Storage.Kind = strings.TrimSpace(f.dbKind)
	}
	if f.verbose {
		c.Log.Level = "debug"
	}
	return c
}

func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, d appDeps) int {
	f, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "etl: %v\n", err)
		fmt.Fprintln(stderr, "usage: etl [-config file] [-validate] [-v] [-first-page n] [-last-page n] [-out path] [-table name]")
		return 2
	}

	cfg, err := d.loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "etl: load config: %v\n", err)
		return 1
	}
	if f.cfgPath != "" {
		cfg, err = d.mergeFile(cfg, f.cfgPath)
		if err != nil {
			fmt.Fprintf(stderr, "etl: read config: %v\n", err)
			return 1
		}
	}
	cfg = f.apply(cfg)

	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintln(stderr, iss.String())
	}
	if config.HasErrors(issues) {
		fmt.Fprintln(stderr, "etl: configuration is invalid")
		return 1
	}
	if f.validate {
		fmt.Fprintln(stdout, "configuration is valid")
		return 0
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "etl: %v\n", err)
		return 1
	}

	runID := uuid.NewString()
	cleanup, err := d.initMetrics(ctx, cfg.Metrics, cfg.Job, runID, log)
	if err != nil {
		fmt.Fprintf(stderr, "etl: init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	log.WithFields(logrus.Fields{
		"run_id":  runID,
		"job":     cfg.Job,
		"storage": cfg.Storage.Kind,
		"table":   cfg.Storage.Table,
		"csv":     cfg.Output.CSVPath,
	}).Debug("starting run")

	start := time.Now()
	res, err := d.newRunner(cfg, log, runID).Run(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "etl: run: %v\n", err)
		return 1
	}

	if res.State == pipeline.StateReportedEmpty {
		fmt.Fprintln(stdout, pipeline.NoDataMessage)
	}
	fmt.Fprintf(stdout, "%s rows=%d pages_fetched=%d pages_failed=%d pages_empty=%d elapsed=%s\n",
		res.State, res.Rows, res.PagesFetched, res.PagesFailed, res.PagesEmpty,
		time.Since(start).Truncate(time.Millisecond))
	return 0
}

func newPipelineRunner(cfg config.Config, log *logrus.Logger, runID string) runner {
	client := catalog.NewClient(cfg.API, catalog.QueryFromConfig(cfg.Query), cfg.Job)
	w := &sink.Writer{
		Storage: storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSNString()},
		Schema:  catalog.DestinationColumns,
		CSVPath: cfg.Output.CSVPath,
		Log:     log,
	}
	return &pipeline.Driver{
		Fetcher:   client,
		Sink:      w,
		FirstPage: cfg.Query.FirstPage,
		LastPage:  cfg.Query.LastPage,
		Table:     cfg.Storage.Table,
		RunID:     runID,
		Log:       log,
	}
}

// closingBackend is a metrics backend that owns a background flusher.
type closingBackend interface {
	metrics.Backend
	Close() error
}

// Seams for initMetrics tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (closingBackend, error) {
		b, err := datadog.NewBackend(ctx, opts)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	newPushBackend = func(job, url string, grouping map[string]string) (metrics.Backend, error) {
		b, err := prompush.NewBackend(job, url, grouping)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	setMetricsBackend = metrics.SetBackend
)

// initMetrics installs the configured metrics backend. The returned cleanup
// is never nil and flushes (pushgateway) or closes (datadog) the backend.
func initMetrics(ctx context.Context, mc config.MetricsConfig, job, runID string, log *logrus.Logger) (func(), error) {
	noop := func() {}
	if job == "" {
		job = "catalog_etl"
	}

	switch strings.ToLower(strings.TrimSpace(mc.Backend)) {
	case "", "none":
		log.Debug("metrics: disabled")
		return noop, nil

	case "pushgateway":
		b, err := newPushBackend(job, mc.PushGatewayURL, map[string]string{"run_id": runID})
		if err != nil {
			return noop, err
		}
		setMetricsBackend(b)
		log.WithFields(logrus.Fields{"backend": "pushgateway", "url": mc.PushGatewayURL, "job": job}).Info("metrics enabled")
		return func() {
			if err := b.Flush(); err != nil {
				log.WithError(err).Warn("metrics: pushgateway flush error")
			}
		}, nil

	case "datadog":
		tags := datadog.ParseTagsCSV(mc.Tags)
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    job,
			Tags:       tags,
			FlushEvery: mc.FlushEvery,
		})
		if err != nil {
			return noop, err
		}
		setMetricsBackend(b)
		log.WithFields(logrus.Fields{"backend": "datadog", "job": job, "tags": tags}).Info("metrics enabled")
		return func() {
			if err := b.Close(); err != nil {
				log.WithError(err).Warn("metrics: datadog close error")
			}
		}, nil

	default:
		return noop, fmt.Errorf("unknown metrics backend %q (want none|pushgateway|datadog)", mc.Backend)
	}
}
