package config

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is a dotted config path ("api.key").
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, is := range issues {
		if is.Severity == SeverityError {
			return true
		}
	}
	return false
}

var (
	validKinds    = map[string]bool{"mssql": true, "postgres": true, "sqlite": true}
	validBackends = map[string]bool{"": true, "none": true, "pushgateway": true, "datadog": true}
	validFormats  = map[string]bool{"text": true, "json": true}
)

// Validate checks c and returns every problem found. It never stops at the first one.
func Validate(c Config) []Issue {
	var issues []Issue
	add := func(sev Severity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(c.API.URL) == "" {
		add(SeverityError, "api.url", "is required")
	}
	if c.API.Key == "" {
		add(SeverityError, "api.key", "is required (RAPIDAPI_KEY)")
	}
	if c.API.Host == "" {
		add(SeverityError, "api.host", "is required (RAPIDAPI_HOST)")
	}
	if c.API.Timeout <= 0 {
		add(SeverityError, "api.timeout", "must be > 0")
	}

	if c.Query.FirstPage < 1 {
		add(SeverityError, "query.first_page", "must be >= 1, got %d", c.Query.FirstPage)
	}
	if c.Query.LastPage < c.Query.FirstPage {
		add(SeverityError, "query.last_page", "must be >= first_page (%d), got %d", c.Query.FirstPage, c.Query.LastPage)
	}
	if c.Query.CategoryID == "" {
		add(SeverityWarning, "query.category_id", "is empty; the API will decide the category")
	}

	if !validKinds[c.Storage.Kind] {
		add(SeverityError, "storage.kind", "unknown kind %q (want mssql, postgres or sqlite)", c.Storage.Kind)
	}
	if c.Storage.DSN == "" {
		switch c.Storage.Kind {
		case "mssql", "postgres":
			if c.Storage.Server == "" {
				add(SeverityError, "storage.server", "is required when storage.dsn is unset (DB_SERVER)")
			}
			if c.Storage.Database == "" {
				add(SeverityError, "storage.database", "is required when storage.dsn is unset (DB_NAME)")
			}
		case "sqlite":
			if c.Storage.Database == "" {
				add(SeverityError, "storage.database", "is required when storage.dsn is unset (path of the sqlite file)")
			}
		}
	}
	if strings.TrimSpace(c.Storage.Table) == "" {
		add(SeverityError, "storage.table", "is required")
	}

	if strings.TrimSpace(c.Output.CSVPath) == "" {
		add(SeverityError, "output.csv_path", "is required")
	}

	if _, err := logrus.ParseLevel(strings.TrimSpace(c.Log.Level)); err != nil {
		add(SeverityError, "log.level", "unknown level %q (want debug, info, warn or error)", c.Log.Level)
	}
	if !validFormats[c.Log.Format] {
		add(SeverityError, "log.format", "unknown format %q (want text or json)", c.Log.Format)
	}

	if !validBackends[c.Metrics.Backend] {
		add(SeverityError, "metrics.backend", "unknown backend %q", c.Metrics.Backend)
	}
	if c.Metrics.Backend == "pushgateway" && c.Metrics.PushGatewayURL == "" {
		add(SeverityError, "metrics.pushgateway_url", "is required for the pushgateway backend")
	}

	return issues
}
