package observability

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounter_IncAdd(t *testing.T) {
	r := NewMetricsRegistry()
	c := r.NewCounter("test_counter", "Test counter", nil)

	c.Inc()
	c.Inc()
	c.Add(3.5)

	if c.Value() != 5.5 {
		t.Fatalf("expected 5.5, got %f", c.Value())
	}
}

func TestGauge(t *testing.T) {
	r := NewMetricsRegistry()
	g := r.NewGauge("test_gauge", "Test gauge", nil)

	g.Set(42)
	if g.Value() != 42 {
		t.Fatalf("expected 42, got %f", g.Value())
	}

	g.Set(0)
	g.Inc()
	g.Inc()
	g.Dec()
	g.Add(-3)
	if g.Value() != -2 {
		t.Fatalf("expected -2, got %f", g.Value())
	}
}

func TestHistogram_Observe(t *testing.T) {
	r := NewMetricsRegistry()
	h := r.NewHistogram("test_histogram", "Test histogram", nil, []float64{1, 5, 10})

	h.Observe(0.5)
	h.Observe(3)
	h.Observe(7)
	h.Observe(15)

	if h.Count() != 4 {
		t.Fatalf("expected count 4, got %d", h.Count())
	}
	if h.sum != 25.5 {
		t.Fatalf("expected sum 25.5, got %f", h.sum)
	}
	if h.counts[0] != 1 || h.counts[1] != 2 || h.counts[2] != 3 {
		t.Fatalf("unexpected bucket counts %v", h.counts)
	}
}

func TestHistogram_ObserveDuration(t *testing.T) {
	r := NewMetricsRegistry()
	h := r.NewHistogram("test_histogram", "Test histogram", nil, nil)

	h.ObserveDuration(time.Now().Add(-100 * time.Millisecond))

	if h.Count() != 1 {
		t.Fatalf("expected count 1, got %d", h.Count())
	}
	if h.sum < 0.1 {
		t.Fatalf("expected sum >= 0.1, got %f", h.sum)
	}
}

func TestDefaultBuckets(t *testing.T) {
	buckets := DefaultBuckets()
	if len(buckets) == 0 {
		t.Fatal("expected non-empty buckets")
	}
	for i := 1; i < len(buckets); i++ {
		if buckets[i] <= buckets[i-1] {
			t.Fatal("buckets should be in ascending order")
		}
	}
}

func TestMetricsRegistry_Handler(t *testing.T) {
	r := NewMetricsRegistry()
	r.NewCounter("test_counter", "A test counter", nil).Inc()
	r.NewGauge("test_gauge", "A test gauge", nil).Set(42)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)

	body := w.Body.String()
	for _, want := range []string{"test_counter 1\n", "test_gauge 42\n", "# HELP test_counter A test counter", "# TYPE test_gauge gauge"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in output:\n%s", want, body)
		}
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Fatalf("expected text/plain content type, got %s", ct)
	}
}

func TestWritePrometheus_SortedOutput(t *testing.T) {
	r := NewMetricsRegistry()
	r.NewCounter("zeta_total", "z", nil)
	r.NewCounter("alpha_total", "a", nil)

	var buf bytes.Buffer
	if err := r.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus failed: %v", err)
	}
	out := buf.String()
	if strings.Index(out, "alpha_total") > strings.Index(out, "zeta_total") {
		t.Error("expected metrics sorted by name")
	}
}

func TestMetricsWithLabels(t *testing.T) {
	r := NewMetricsRegistry()
	r.NewCounter("scans", "Scans", map[string]string{"root": "/src", "mode": "parallel"}).Inc()

	var buf bytes.Buffer
	if err := r.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus failed: %v", err)
	}
	if !strings.Contains(buf.String(), `scans{mode="parallel",root="/src"} 1`) {
		t.Fatalf("expected sorted labels, got:\n%s", buf.String())
	}
}

func TestHistogramOutput(t *testing.T) {
	r := NewMetricsRegistry()
	h := r.NewHistogram("scan_duration", "Scan duration", nil, []float64{0.1, 0.5, 1.0})
	h.Observe(0.05)
	h.Observe(0.3)
	h.Observe(0.8)

	var buf bytes.Buffer
	if err := r.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus failed: %v", err)
	}
	body := buf.String()
	for _, want := range []string{
		`scan_duration_bucket{le="0.1"} 1`,
		`scan_duration_bucket{le="0.5"} 2`,
		`scan_duration_bucket{le="1"} 3`,
		`scan_duration_bucket{le="+Inf"} 3`,
		"scan_duration_count 3",
		"scan_duration_sum",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in output:\n%s", want, body)
		}
	}
}

func TestFormatLabels_Empty(t *testing.T) {
	if result := formatLabels(nil); result != "" {
		t.Fatalf("expected empty string, got %s", result)
	}
	if result := formatLabels(map[string]string{}); result != "" {
		t.Fatalf("expected empty string, got %s", result)
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{0, "0"},
		{1, "1"},
		{42, "42"},
		{1.5, "1.5"},
		{0.25, "0.25"},
	}

	for _, tt := range tests {
		if result := formatFloat(tt.input); result != tt.expected {
			t.Errorf("formatFloat(%f) = %s, expected %s", tt.input, result, tt.expected)
		}
	}
}

// Scan metrics tests

func TestScanMetrics_RecordFileAndSkip(t *testing.T) {
	m := NewScanMetrics()
	m.RecordFile(3, 1)
	m.RecordFile(2, 0)
	m.RecordSkip()

	if m.FilesScannedTotal.Value() != 2 {
		t.Errorf("expected 2 files scanned, got %f", m.FilesScannedTotal.Value())
	}
	if m.ReferencesTotal.Value() != 5 {
		t.Errorf("expected 5 references, got %f", m.ReferencesTotal.Value())
	}
	if m.DroppedRefsTotal.Value() != 1 {
		t.Errorf("expected 1 dropped reference, got %f", m.DroppedRefsTotal.Value())
	}
	if m.FilesSkippedTotal.Value() != 1 {
		t.Errorf("expected 1 skipped file, got %f", m.FilesSkippedTotal.Value())
	}
}

func TestScanMetrics_RecordScan(t *testing.T) {
	m := NewScanMetrics()
	m.RecordScan(200*time.Millisecond, nil)
	m.RecordScan(time.Second, errors.New("invalid root"))

	if m.ScansTotal.Value() != 2 {
		t.Errorf("expected 2 scans, got %f", m.ScansTotal.Value())
	}
	if m.ScanErrorsTotal.Value() != 1 {
		t.Errorf("expected 1 scan error, got %f", m.ScanErrorsTotal.Value())
	}
	if m.ScanDuration.Count() != 2 {
		t.Errorf("expected 2 duration observations, got %d", m.ScanDuration.Count())
	}
}

func TestScanMetrics_RecordGraphStore(t *testing.T) {
	m := NewScanMetrics()
	m.RecordGraphStore(nil)
	m.RecordGraphStore(errors.New("connection refused"))

	if m.GraphStoresTotal.Value() != 2 {
		t.Errorf("expected 2 stores, got %f", m.GraphStoresTotal.Value())
	}
	if m.GraphStoreFailures.Value() != 1 {
		t.Errorf("expected 1 failure, got %f", m.GraphStoreFailures.Value())
	}
}

func TestScanMetrics_Handler(t *testing.T) {
	m := NewScanMetrics()
	m.RecordSkip()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), "layermap_files_skipped_total 1") {
		t.Fatalf("expected layermap metrics in output:\n%s", w.Body.String())
	}
}

func TestGlobalMetrics(t *testing.T) {
	m := Metrics()
	if m == nil {
		t.Fatal("expected non-nil global metrics")
	}
	if m != Metrics() {
		t.Fatal("expected same instance")
	}
}
