// Package metrics is the backend-agnostic metrics facade used by the ETL.
//
// Core code only calls the package-level helpers below. A concrete backend
// (Pushgateway, Datadog) is installed once at startup with SetBackend; until
// then every call goes to a no-op backend.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Labels are metric dimensions, e.g. {"step": "fetch", "status": "ok"}.
type Labels map[string]string

// Backend receives metric observations.
//
// Implementations must be safe for concurrent use: some backends flush from a
// background goroutine while the pipeline is still recording.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names understood by the bundled backends.
const (
	StepTotal           = "etl_step_total"
	StepDurationSeconds = "etl_step_duration_seconds"
	RecordsTotal        = "etl_records_total"
	PagesTotal          = "etl_pages_total"
	HTTPRequestsTotal   = "etl_http_requests_total"
	HTTPErrorsTotal     = "etl_http_errors_total"
	HTTPRequestSeconds  = "etl_http_request_duration_seconds"
	HTTPResponseSeconds = "etl_http_response_duration_seconds"
	HTTPDownloadBytes   = "etl_http_download_bytes"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	current Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		current = nopBackend{}
		return
	}
	current = b
}

func backend() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// IncCounter forwards to the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	backend().IncCounter(name, delta, labels)
}

// ObserveHistogram forwards to the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	backend().ObserveHistogram(name, value, labels)
}

// Flush forwards to the installed backend.
func Flush() error {
	return backend().Flush()
}

// RecordStep records one completed pipeline step and its duration.
func RecordStep(step string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := Labels{"step": step, "status": status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDurationSeconds, d.Seconds(), l)
}

// RecordRecords counts rows by kind ("extracted", "cleaned", "loaded").
func RecordRecords(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}

// RecordPage counts a page outcome ("ok", "empty", "failed").
func RecordPage(outcome string) {
	IncCounter(PagesTotal, 1, Labels{"outcome": outcome})
}

// RecordHTTP records a single HTTP attempt.
//
// status is 0 when no response was received. reqDur is time to headers,
// respDur is time to the end of the body; a negative duration or size is
// treated as unknown and skipped.
func RecordHTTP(job string, status int, err error, reqDur, respDur time.Duration, bytes int64) {
	st := "none"
	if status > 0 {
		st = strconv.Itoa(status)
	}
	l := Labels{"job": job, "status": st}

	IncCounter(HTTPRequestsTotal, 1, l)
	if err != nil || status < 200 || status > 299 {
		IncCounter(HTTPErrorsTotal, 1, l)
	}
	if reqDur >= 0 {
		ObserveHistogram(HTTPRequestSeconds, reqDur.Seconds(), l)
	}
	if respDur >= 0 {
		ObserveHistogram(HTTPResponseSeconds, respDur.Seconds(), l)
	}
	if bytes >= 0 {
		ObserveHistogram(HTTPDownloadBytes, float64(bytes), l)
	}
}
