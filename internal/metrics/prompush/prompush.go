// Package prompush implements a Prometheus Pushgateway backend for internal/metrics.
//
// A batch job has no scrape endpoint that outlives it, so observations are
// collected in a private registry and pushed once on Flush (typically at exit).
package prompush

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"catalogetl/internal/metrics"
)

// Backend implements metrics.Backend on top of a Prometheus registry.
type Backend struct {
	reg    *prometheus.Registry
	pusher *push.Pusher

	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	labelNames map[string][]string
}

// NewBackend builds a backend pushing to gatewayURL under job name job.
// grouping adds extra grouping labels (e.g. run_id) to the push URL.
func NewBackend(job, gatewayURL string, grouping map[string]string) (*Backend, error) {
	if strings.TrimSpace(job) == "" {
		return nil, fmt.Errorf("prompush: job name is empty")
	}
	if strings.TrimSpace(gatewayURL) == "" {
		return nil, fmt.Errorf("prompush: gateway url is empty")
	}

	b := &Backend{
		reg:        prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		labelNames: make(map[string][]string),
	}

	b.counter(metrics.StepTotal, "Pipeline steps by outcome.", "step", "status")
	b.counter(metrics.RecordsTotal, "Rows processed by kind.", "kind")
	b.counter(metrics.PagesTotal, "Catalog pages by outcome.", "outcome")
	b.counter(metrics.HTTPRequestsTotal, "Catalog API requests.", "job", "status")
	b.counter(metrics.HTTPErrorsTotal, "Failed catalog API requests.", "job", "status")

	b.histogram(metrics.StepDurationSeconds, "Step duration.", prometheus.DefBuckets, "step", "status")
	b.histogram(metrics.HTTPRequestSeconds, "Time to response headers.", prometheus.DefBuckets, "job", "status")
	b.histogram(metrics.HTTPResponseSeconds, "Time to end of body.", prometheus.DefBuckets, "job", "status")
	b.histogram(metrics.HTTPDownloadBytes, "Response body size.", prometheus.ExponentialBuckets(1024, 4, 8), "job", "status")

	p := push.New(gatewayURL, job).Gatherer(b.reg)
	for k, v := range grouping {
		p = p.Grouping(k, v)
	}
	b.pusher = p

	return b, nil
}

func (b *Backend) counter(name, help string, labels ...string) {
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	b.reg.MustRegister(cv)
	b.counters[name] = cv
	b.labelNames[name] = labels
}

func (b *Backend) histogram(name, help string, buckets []float64, labels ...string) {
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labels)
	b.reg.MustRegister(hv)
	b.histograms[name] = hv
	b.labelNames[name] = labels
}

// labelsFor projects l onto the declared label set; missing labels become "".
func (b *Backend) labelsFor(name string, l metrics.Labels) prometheus.Labels {
	names := b.labelNames[name]
	out := make(prometheus.Labels, len(names))
	for _, n := range names {
		out[n] = l[n]
	}
	return out
}

// IncCounter implements metrics.Backend. Unknown metric names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	cv, ok := b.counters[name]
	if !ok || delta <= 0 {
		return
	}
	c, err := cv.GetMetricWith(b.labelsFor(name, labels))
	if err != nil {
		return
	}
	c.Add(delta)
}

// ObserveHistogram implements metrics.Backend. Unknown metric names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	hv, ok := b.histograms[name]
	if !ok || value < 0 {
		return
	}
	h, err := hv.GetMetricWith(b.labelsFor(name, labels))
	if err != nil {
		return
	}
	h.Observe(value)
}

// Flush pushes the whole registry, replacing the previous push for this grouping key.
func (b *Backend) Flush() error {
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	return nil
}

var _ metrics.Backend = (*Backend)(nil)
