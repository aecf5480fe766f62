package observability

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/efebarandurmaz/ragline/internal/errortypes"
)

func TestCounter_IncAndAdd(t *testing.T) {
	r := NewMetricsRegistry()
	c := r.NewCounter("test_counter", "Test counter", nil)

	c.Inc()
	c.Add(2.5)
	c.Add(-10)

	if c.Value() != 3.5 {
		t.Fatalf("expected 3.5, got %f", c.Value())
	}
}

func TestRegistry_DuplicateNameReturnsSameMetric(t *testing.T) {
	r := NewMetricsRegistry()
	a := r.NewCounter("dup", "first", nil)
	b := r.NewCounter("dup", "second", nil)

	if a != b {
		t.Fatal("expected the same counter for a repeated name")
	}
}

func TestGauge_IncDecSet(t *testing.T) {
	r := NewMetricsRegistry()
	g := r.NewGauge("test_gauge", "Test gauge", nil)

	g.Inc()
	g.Inc()
	g.Dec()
	if g.Value() != 1 {
		t.Fatalf("expected 1, got %f", g.Value())
	}

	g.Set(42)
	if g.Value() != 42 {
		t.Fatalf("expected 42, got %f", g.Value())
	}
}

func TestHistogram_Observe(t *testing.T) {
	r := NewMetricsRegistry()
	h := r.NewHistogram("latency", "Latency", nil, []float64{0.1, 1})

	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(5)

	if h.Count() != 3 {
		t.Fatalf("expected 3 observations, got %d", h.Count())
	}
	if h.counts[0] != 1 || h.counts[1] != 2 {
		t.Fatalf("unexpected bucket counts %v", h.counts)
	}
}

func TestHistogram_DefaultBuckets(t *testing.T) {
	h := NewMetricsRegistry().NewHistogram("d", "d", nil, nil)
	if len(h.buckets) != len(DefaultBuckets()) {
		t.Fatalf("expected default buckets, got %v", h.buckets)
	}
	h.ObserveDuration(time.Now().Add(-10 * time.Millisecond))
	if h.Count() != 1 {
		t.Fatal("expected one observation")
	}
}

func TestWritePrometheus(t *testing.T) {
	r := NewMetricsRegistry()
	r.NewCounter("b_total", "B", map[string]string{"kind": "x"}).Add(2)
	r.NewCounter("a_total", "A", nil).Inc()
	r.NewGauge("g", "G", nil).Set(1.5)
	r.NewHistogram("h_seconds", "H", nil, []float64{1}).Observe(0.5)

	var buf bytes.Buffer
	r.WritePrometheus(&buf)
	out := buf.String()

	for _, want := range []string{
		"# TYPE a_total counter\na_total 1\n",
		`b_total{kind="x"} 2`,
		"g 1.5\n",
		`h_seconds_bucket{le="1"} 1`,
		`h_seconds_bucket{le="+Inf"} 1`,
		"h_seconds_sum 0.5\n",
		"h_seconds_count 1\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "a_total") > strings.Index(out, "b_total") {
		t.Error("counters should be sorted by name")
	}
}

func TestMetricsRegistry_Handler(t *testing.T) {
	r := NewMetricsRegistry()
	r.NewCounter("requests_total", "Requests", nil).Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "requests_total 1") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestFormatLabels(t *testing.T) {
	if got := formatLabels(nil); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
	got := formatLabels(map[string]string{"z": "1", "a": `q"x`})
	if got != `{a="q\"x",z="1"}` {
		t.Fatalf("unexpected labels %s", got)
	}
}

func TestPipelineMetrics_RecordIngest(t *testing.T) {
	m := NewPipelineMetrics()

	m.RecordIngest(20*time.Millisecond, 4, nil)
	m.RecordIngest(time.Millisecond, 0, errortypes.StoreTimeout("upsert", time.Second))

	if m.IngestRequestsTotal.Value() != 2 {
		t.Fatalf("expected 2 requests, got %f", m.IngestRequestsTotal.Value())
	}
	if m.ChunksStoredTotal.Value() != 4 {
		t.Fatalf("expected 4 chunks, got %f", m.ChunksStoredTotal.Value())
	}
	if m.IngestErrorsTotal.Value() != 1 || m.StoreTimeoutsTotal.Value() != 1 {
		t.Fatal("expected one error counted as a store timeout")
	}
}

func TestPipelineMetrics_RecordSearch(t *testing.T) {
	m := NewPipelineMetrics()

	m.RecordSearch(time.Millisecond, 3, nil)
	m.RecordSearch(time.Millisecond, 0, errors.New("boom"))

	if m.SearchResultsTotal.Value() != 3 {
		t.Fatalf("expected 3 results, got %f", m.SearchResultsTotal.Value())
	}
	if m.SearchErrorsTotal.Value() != 1 {
		t.Fatal("expected one search error")
	}
	if m.StoreTimeoutsTotal.Value() != 0 {
		t.Fatal("plain errors are not store timeouts")
	}
	if m.SearchDuration.Count() != 2 {
		t.Fatal("expected both calls observed")
	}
}

func TestGlobalMetrics(t *testing.T) {
	if Metrics() != Metrics() {
		t.Fatal("expected a single global instance")
	}
}
