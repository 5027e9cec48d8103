// Package catalog fetches product pages from the RapidAPI
// real-time-amazon-data products-by-category endpoint.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"catalogetl/internal/config"
	"catalogetl/internal/metrics"
	pjson "catalogetl/internal/parser/json"
)

// ErrFetch wraps every transport, status and decode failure of a page fetch.
var ErrFetch = errors.New("catalog: fetch failed")

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Page       int
	StatusCode int
	Body       string // first bytes of the response body
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("catalog: page %d: http %d", e.Page, e.StatusCode)
	}
	return fmt.Sprintf("catalog: page %d: http %d: %s", e.Page, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrFetch }

// PageResponse is one decoded response document. Numbers are json.Number.
type PageResponse map[string]any

// HTTPDoer is the part of *http.Client the fetcher uses.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Query holds the filter values sent with every page request, verbatim.
type Query struct {
	CategoryID string
	Country    string
	SortBy     string
	Condition  string
	IsPrime    string
	Discounts  string
}

// DefaultQuery returns the filters used when none are configured.
func DefaultQuery() Query {
	return Query{
		CategoryID: "16333372011",
		Country:    "US",
		SortBy:     "RELEVANCE",
		Condition:  "ALL",
		IsPrime:    "false",
		Discounts:  "NONE",
	}
}

// QueryFromConfig copies the filters out of a loaded config.
func QueryFromConfig(q config.QueryConfig) Query {
	return Query{
		CategoryID: q.CategoryID,
		Country:    q.Country,
		SortBy:     q.SortBy,
		Condition:  q.Condition,
		IsPrime:    q.IsPrime,
		Discounts:  q.Discounts,
	}
}

// Values returns the request query string for page.
func (q Query) Values(page int) url.Values {
	v := url.Values{}
	v.Set("category_id", q.CategoryID)
	v.Set("page", strconv.Itoa(page))
	v.Set("country", q.Country)
	v.Set("sort_by", q.SortBy)
	v.Set("product_condition", q.Condition)
	v.Set("is_prime", q.IsPrime)
	v.Set("deals_and_discounts", q.Discounts)
	return v
}

// Client issues one GET per page. It never retries.
type Client struct {
	BaseURL string
	APIKey  string
	APIHost string
	Query   Query

	// Job labels the HTTP metrics. Defaults to "catalog".
	Job string

	HTTP HTTPDoer
}

// NewClient builds a Client from the API section of the config.
func NewClient(api config.APIConfig, q Query, job string) *Client {
	return &Client{
		BaseURL: api.URL,
		APIKey:  api.Key,
		APIHost: api.Host,
		Query:   q,
		Job:     job,
		HTTP:    newHTTPClient(api.Timeout),
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    4,
		},
	}
}

// Fetch fetches page with the client's configured query.
func (c *Client) Fetch(ctx context.Context, page int) (PageResponse, error) {
	return c.FetchPage(ctx, page, c.Query)
}

// FetchPage performs one GET for page with filters q.
//
// Errors:
//   - page < 1: returned without a network call.
//   - transport failure, non-2xx status, undecodable body: wraps ErrFetch;
//     non-2xx is also a *StatusError.
func (c *Client) FetchPage(ctx context.Context, page int, q Query) (PageResponse, error) {
	if page < 1 {
		return nil, fmt.Errorf("catalog: page %d: must be >= 1", page)
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: base url: %w", ErrFetch, page, err)
	}
	u.RawQuery = q.Values(page).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %w", ErrFetch, page, err)
	}
	req.Header.Set("x-rapidapi-key", c.APIKey)
	req.Header.Set("x-rapidapi-host", c.APIHost)
	req.Header.Set("Accept", "application/json")

	job := c.Job
	if job == "" {
		job = "catalog"
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		metrics.RecordHTTP(job, 0, err, time.Since(start), -1, -1)
		return nil, fmt.Errorf("%w: page %d: %w", ErrFetch, page, err)
	}
	reqDur := time.Since(start)
	defer resp.Body.Close()

	body := &countingReader{r: resp.Body}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(body, 512))
		_, _ = io.Copy(io.Discard, body)
		serr := &StatusError{Page: page, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		metrics.RecordHTTP(job, resp.StatusCode, serr, reqDur, time.Since(start), body.n)
		return nil, serr
	}

	doc, err := pjson.Decode(body)
	metrics.RecordHTTP(job, resp.StatusCode, err, reqDur, time.Since(start), body.n)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %w", ErrFetch, page, err)
	}
	return PageResponse(doc), nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
