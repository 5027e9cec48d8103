package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type call struct {
	name   string
	value  float64
	labels Labels
}

type recordingBackend struct {
	mu       sync.Mutex
	counters []call
	hists    []call
	flushes  int
}

func (r *recordingBackend) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = append(r.counters, call{name, delta, labels})
}

func (r *recordingBackend) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hists = append(r.hists, call{name, value, labels})
}

func (r *recordingBackend) Flush() error {
	r.flushes++
	return nil
}

func (r *recordingBackend) counter(name string) (call, bool) {
	for _, c := range r.counters {
		if c.name == name {
			return c, true
		}
	}
	return call{}, false
}

// The tests below swap the process-wide backend, so they do not run in parallel.

func TestRecordHTTP_SuccessAndFailure(t *testing.T) {
	rb := &recordingBackend{}
	SetBackend(rb)
	t.Cleanup(func() { SetBackend(nil) })

	RecordHTTP("job", 200, nil, 10*time.Millisecond, 20*time.Millisecond, 128)
	if _, ok := rb.counter(HTTPErrorsTotal); ok {
		t.Fatalf("2xx must not count as an error")
	}
	if len(rb.hists) != 3 {
		t.Fatalf("expected 3 histogram observations, got %d", len(rb.hists))
	}

	RecordHTTP("job", 0, errors.New("dial"), -1, -1, -1)
	c, ok := rb.counter(HTTPErrorsTotal)
	if !ok {
		t.Fatalf("expected error counter for transport failure")
	}
	if c.labels["status"] != "none" {
		t.Fatalf("status label=%q, want none", c.labels["status"])
	}
	if len(rb.hists) != 3 {
		t.Fatalf("unknown durations must be skipped, got %d observations", len(rb.hists))
	}
}

func TestRecordStepAndRecords(t *testing.T) {
	rb := &recordingBackend{}
	SetBackend(rb)
	t.Cleanup(func() { SetBackend(nil) })

	RecordStep("store", errors.New("boom"), time.Second)
	c, ok := rb.counter(StepTotal)
	if !ok || c.labels["status"] != "error" || c.labels["step"] != "store" {
		t.Fatalf("unexpected step counter: %+v ok=%v", c, ok)
	}

	RecordRecords("loaded", 0)
	if _, ok := rb.counter(RecordsTotal); ok {
		t.Fatalf("zero records must not be recorded")
	}
	RecordRecords("loaded", 6)
	c, _ = rb.counter(RecordsTotal)
	if c.value != 6 {
		t.Fatalf("records value=%v, want 6", c.value)
	}

	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if rb.flushes != 1 {
		t.Fatalf("flushes=%d, want 1", rb.flushes)
	}
}

func TestSetBackendNilRestoresNop(t *testing.T) {
	SetBackend(nil)
	// Must not panic and must not error.
	IncCounter("x", 1, nil)
	ObserveHistogram("x", 1, nil)
	if err := Flush(); err != nil {
		t.Fatalf("nop Flush: %v", err)
	}
}
