package config

import (
	"testing"
)

func validConfig() Config {
	c := Default()
	c.API.Key = "k"
	c.API.Host = "real-time-amazon-data.p.rapidapi.com"
	c.Storage.Server = "db01"
	c.Storage.Database = "Products"
	return c
}

func hasIssue(issues []Issue, path string, sev Severity) bool {
	for _, is := range issues {
		if is.Path == path && is.Severity == sev {
			return true
		}
	}
	return false
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()

	issues := Validate(validConfig())
	if HasErrors(issues) {
		t.Fatalf("unexpected errors: %v", issues)
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	t.Parallel()

	c := Default()
	c.Query.FirstPage = 0
	c.Query.LastPage = -1
	c.Storage.Kind = "oracle"
	c.Log.Format = "xml"
	c.Metrics.Backend = "statsd"

	issues := Validate(c)
	for _, path := range []string{
		"api.key",
		"api.host",
		"query.first_page",
		"query.last_page",
		"storage.kind",
		"log.format",
		"metrics.backend",
	} {
		if !hasIssue(issues, path, SeverityError) {
			t.Fatalf("missing error for %s; got %v", path, issues)
		}
	}
}

func TestValidate_StorageRequirements(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		path    string
		wantErr bool
	}{
		{
			name:    "mssql_needs_server",
			mutate:  func(c *Config) { c.Storage.Server = "" },
			path:    "storage.server",
			wantErr: true,
		},
		{
			name:    "mssql_needs_database",
			mutate:  func(c *Config) { c.Storage.Database = "" },
			path:    "storage.database",
			wantErr: true,
		},
		{
			name: "dsn_replaces_server_and_database",
			mutate: func(c *Config) {
				c.Storage.Server, c.Storage.Database = "", ""
				c.Storage.DSN = "sqlserver://db01?database=Products"
			},
			path:    "storage.server",
			wantErr: false,
		},
		{
			name:    "sqlite_needs_path",
			mutate:  func(c *Config) { c.Storage.Kind, c.Storage.Database = "sqlite", "" },
			path:    "storage.database",
			wantErr: true,
		},
		{
			name:    "pushgateway_needs_url",
			mutate:  func(c *Config) { c.Metrics.Backend = "pushgateway" },
			path:    "metrics.pushgateway_url",
			wantErr: true,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := validConfig()
			tc.mutate(&c)
			issues := Validate(c)
			if got := hasIssue(issues, tc.path, SeverityError); got != tc.wantErr {
				t.Fatalf("error at %s=%v, want %v (issues=%v)", tc.path, got, tc.wantErr, issues)
			}
		})
	}
}

func TestValidate_EmptyCategoryIsWarning(t *testing.T) {
	t.Parallel()

	c := validConfig()
	c.Query.CategoryID = ""
	issues := Validate(c)
	if !hasIssue(issues, "query.category_id", SeverityWarning) {
		t.Fatalf("expected warning, got %v", issues)
	}
	if HasErrors(issues) {
		t.Fatalf("empty category must not be an error: %v", issues)
	}
}

func TestValidate_UnknownLogLevel(t *testing.T) {
	t.Parallel()

	c := validConfig()
	c.Log.Level = "verbose"
	if issues := Validate(c); !hasIssue(issues, "log.level", SeverityError) {
		t.Fatalf("issues=%v, want log.level error", issues)
	}

	c.Log.Level = "warn"
	if issues := Validate(c); hasIssue(issues, "log.level", SeverityError) {
		t.Fatalf("issues=%v, want warn accepted", issues)
	}
}
