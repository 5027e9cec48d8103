// Package config holds the job configuration.
//
// Values are layered: defaults, then environment (a .env file is loaded
// first when present), then an optional YAML/JSON file, then CLI flags set by
// the caller. Validate is run once at startup, before any network or
// database work.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIURL    = "https://real-time-amazon-data.p.rapidapi.com/products-by-category"
	DefaultTable     = "product_by_category"
	DefaultCSVPath   = "final_data_to_db.csv"
	DefaultFirstPage = 1
	DefaultLastPage  = 99
)

// Config is the full job configuration.
type Config struct {
	Job     string        `yaml:"job"`
	API     APIConfig     `yaml:"api"`
	Query   QueryConfig   `yaml:"query"`
	Storage StorageConfig `yaml:"storage"`
	Output  OutputConfig  `yaml:"output"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type APIConfig struct {
	URL     string        `yaml:"url"`
	Key     string        `yaml:"key"`
	Host    string        `yaml:"host"`
	Timeout time.Duration `yaml:"timeout"`
}

// QueryConfig holds the catalog filters, passed through verbatim, and the page range.
type QueryConfig struct {
	CategoryID string `yaml:"category_id"`
	Country    string `yaml:"country"`
	SortBy     string `yaml:"sort_by"`
	Condition  string `yaml:"product_condition"`
	IsPrime    string `yaml:"is_prime"`
	Discounts  string `yaml:"deals_and_discounts"`
	FirstPage  int    `yaml:"first_page"`
	LastPage   int    `yaml:"last_page"`
}

type StorageConfig struct {
	// Kind is the storage backend: "mssql" | "postgres" | "sqlite".
	Kind     string `yaml:"kind"`
	Server   string `yaml:"server"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	// DSN overrides the DSN derived from Server/Database.
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

type OutputConfig struct {
	CSVPath string `yaml:"csv_path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	// Backend is "none" | "pushgateway" | "datadog".
	Backend        string        `yaml:"backend"`
	PushGatewayURL string        `yaml:"pushgateway_url"`
	Tags           string        `yaml:"tags"`
	FlushEvery     time.Duration `yaml:"flush_every"`
}

// Default returns a Config with every optional field filled in.
func Default() Config {
	return Config{
		Job: "catalog_etl",
		API: APIConfig{
			URL:     DefaultAPIURL,
			Timeout: 60 * time.Second,
		},
		Query: QueryConfig{
			CategoryID: "16333372011",
			Country:    "US",
			SortBy:     "RELEVANCE",
			Condition:  "ALL",
			IsPrime:    "false",
			Discounts:  "NONE",
			FirstPage:  DefaultFirstPage,
			LastPage:   DefaultLastPage,
		},
		Storage: StorageConfig{
			Kind:  "mssql",
			Table: DefaultTable,
		},
		Output:  OutputConfig{CSVPath: DefaultCSVPath},
		Log:     LogConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Backend: "none", FlushEvery: 60 * time.Second},
	}
}

// Load returns the defaults overlaid with the environment.
//
// A .env file in the working directory is loaded first; variables already
// set in the process environment win over it.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv overlays the defaults with values returned by getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	c := Default()

	setStr := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	setStr(&c.Job, "JOB_NAME")

	setStr(&c.API.URL, "RAPIDAPI_URL")
	setStr(&c.API.Key, "RAPIDAPI_KEY")
	setStr(&c.API.Host, "RAPIDAPI_HOST")

	setStr(&c.Query.CategoryID, "CATEGORY_ID")
	setStr(&c.Query.Country, "COUNTRY")
	setStr(&c.Query.SortBy, "SORT_BY")
	setStr(&c.Query.Condition, "PRODUCT_CONDITION")
	setStr(&c.Query.IsPrime, "IS_PRIME")
	setStr(&c.Query.Discounts, "DEALS_AND_DISCOUNTS")

	setStr(&c.Storage.Kind, "DB_KIND")
	setStr(&c.Storage.Server, "DB_SERVER")
	setStr(&c.Storage.Database, "DB_NAME")
	setStr(&c.Storage.User, "DB_USER")
	setStr(&c.Storage.Password, "DB_PASSWORD")
	setStr(&c.Storage.DSN, "DB_DSN")
	setStr(&c.Storage.Table, "DB_TABLE")

	setStr(&c.Output.CSVPath, "OUTPUT_CSV")

	setStr(&c.Log.Level, "LOG_LEVEL")
	setStr(&c.Log.Format, "LOG_FORMAT")

	setStr(&c.Metrics.Backend, "METRICS_BACKEND")
	setStr(&c.Metrics.PushGatewayURL, "PUSHGATEWAY_URL")
	setStr(&c.Metrics.Tags, "METRICS_TAGS")

	var err error
	if c.API.Timeout, err = envDuration(getenv, "API_TIMEOUT", c.API.Timeout); err != nil {
		return c, err
	}
	if c.Metrics.FlushEvery, err = envDuration(getenv, "METRICS_FLUSH_EVERY", c.Metrics.FlushEvery); err != nil {
		return c, err
	}
	if c.Query.FirstPage, err = envInt(getenv, "FIRST_PAGE", c.Query.FirstPage); err != nil {
		return c, err
	}
	if c.Query.LastPage, err = envInt(getenv, "LAST_PAGE", c.Query.LastPage); err != nil {
		return c, err
	}
	return c, nil
}

func envInt(getenv func(string) string, key string, def int) (int, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func envDuration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

// MergeFile overlays c with the YAML (or JSON) document at path.
// ${VAR} references in the file are expanded from the environment first.
// Fields absent from the file keep their current value.
func MergeFile(c Config, path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(raw))
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		return c, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return c, nil
}

// DSNString returns the storage DSN, deriving one from Server/Database when DSN is unset.
func (s StorageConfig) DSNString() string {
	if s.DSN != "" {
		return s.DSN
	}
	switch s.Kind {
	case "mssql":
		u := &url.URL{Scheme: "sqlserver", Host: s.Server}
		if s.User != "" {
			u.User = url.UserPassword(s.User, s.Password)
		}
		q := url.Values{}
		q.Set("database", s.Database)
		u.RawQuery = q.Encode()
		return u.String()
	case "postgres":
		u := &url.URL{Scheme: "postgres", Host: s.Server, Path: "/" + s.Database}
		if s.User != "" {
			u.User = url.UserPassword(s.User, s.Password)
		}
		return u.String()
	case "sqlite":
		return s.Database
	default:
		return ""
	}
}
