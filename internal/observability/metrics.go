package observability

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MetricsRegistry holds all registered metrics.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
	histos   map[string]*Histogram
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name   string
	help   string
	labels map[string]string
	value  float64
	mu     sync.Mutex
}

// Gauge is a metric that can go up or down.
type Gauge struct {
	name   string
	help   string
	labels map[string]string
	value  float64
	mu     sync.Mutex
}

// Histogram tracks distribution of values.
type Histogram struct {
	name    string
	help    string
	labels  map[string]string
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
	mu      sync.Mutex
}

// NewMetricsRegistry creates a new metrics registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		histos:   make(map[string]*Histogram),
	}
}

// NewCounter creates and registers a counter.
func (r *MetricsRegistry) NewCounter(name, help string, labels map[string]string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &Counter{name: name, help: help, labels: labels}
	r.counters[name] = c
	return c
}

// NewGauge creates and registers a gauge.
func (r *MetricsRegistry) NewGauge(name, help string, labels map[string]string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := &Gauge{name: name, help: help, labels: labels}
	r.gauges[name] = g
	return g
}

// NewHistogram creates and registers a histogram.
func (r *MetricsRegistry) NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	if buckets == nil {
		buckets = DefaultBuckets()
	}

	h := &Histogram{
		name:    name,
		help:    help,
		labels:  labels,
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
	r.histos[name] = h
	return h
}

// DefaultBuckets returns default histogram buckets for scan latency in seconds.
func DefaultBuckets() []float64 {
	return []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
}

// Inc increments a counter by 1.
func (c *Counter) Inc() {
	c.Add(1)
}

// Add adds a value to the counter.
func (c *Counter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

// Value returns the counter value.
func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set sets the gauge value.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() {
	g.Add(1)
}

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() {
	g.Add(-1)
}

// Add adds a value to the gauge.
func (g *Gauge) Add(v float64) {
	g.mu.Lock()
	g.value += v
	g.mu.Unlock()
}

// Value returns the gauge value.
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += v
	h.count++

	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
		}
	}
}

// ObserveDuration records a duration in the histogram.
func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Handler returns an HTTP handler for Prometheus metrics.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_ = r.WritePrometheus(w)
	})
}

// WritePrometheus writes metrics in Prometheus text format, sorted by name.
func (r *MetricsRegistry) WritePrometheus(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder

	for _, name := range sortedKeys(r.counters) {
		c := r.counters[name]
		c.mu.Lock()
		writeMetric(&b, c.name, "counter", c.help, c.labels, c.value)
		c.mu.Unlock()
	}

	for _, name := range sortedKeys(r.gauges) {
		g := r.gauges[name]
		g.mu.Lock()
		writeMetric(&b, g.name, "gauge", g.help, g.labels, g.value)
		g.mu.Unlock()
	}

	for _, name := range sortedKeys(r.histos) {
		h := r.histos[name]
		h.mu.Lock()
		writeHistogram(&b, h)
		h.mu.Unlock()
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeMetric(b *strings.Builder, name, metricType, help string, labels map[string]string, value float64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, metricType)
	fmt.Fprintf(b, "%s%s %s\n", name, formatLabels(labels), formatFloat(value))
}

func writeHistogram(b *strings.Builder, h *Histogram) {
	fmt.Fprintf(b, "# HELP %s %s\n", h.name, h.help)
	fmt.Fprintf(b, "# TYPE %s histogram\n", h.name)

	for i, bound := range h.buckets {
		labels := copyLabels(h.labels)
		labels["le"] = formatFloat(bound)
		fmt.Fprintf(b, "%s_bucket%s %d\n", h.name, formatLabels(labels), h.counts[i])
	}

	labels := copyLabels(h.labels)
	labels["le"] = "+Inf"
	fmt.Fprintf(b, "%s_bucket%s %d\n", h.name, formatLabels(labels), h.count)

	fmt.Fprintf(b, "%s_sum%s %s\n", h.name, formatLabels(h.labels), formatFloat(h.sum))
	fmt.Fprintf(b, "%s_count%s %d\n", h.name, formatLabels(h.labels), h.count)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := sortedKeys(labels)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.Quote(labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func copyLabels(labels map[string]string) map[string]string {
	result := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		result[k] = v
	}
	return result
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ScanMetrics contains the layermap process metrics.
type ScanMetrics struct {
	Registry *MetricsRegistry

	ScansTotal         *Counter
	ScanErrorsTotal    *Counter
	ScanDuration       *Histogram
	FilesScannedTotal  *Counter
	FilesSkippedTotal  *Counter
	ReferencesTotal    *Counter
	DroppedRefsTotal   *Counter
	GraphStoresTotal   *Counter
	GraphStoreFailures *Counter

	ActiveWorkers *Gauge
}

// NewScanMetrics creates layermap metrics on a fresh registry.
func NewScanMetrics() *ScanMetrics {
	r := NewMetricsRegistry()

	return &ScanMetrics{
		Registry: r,

		ScansTotal:        r.NewCounter("layermap_scans_total", "Total scans run", nil),
		ScanErrorsTotal:   r.NewCounter("layermap_scan_errors_total", "Scans that failed before producing a result", nil),
		ScanDuration:      r.NewHistogram("layermap_scan_duration_seconds", "Scan duration", nil, nil),
		FilesScannedTotal: r.NewCounter("layermap_files_scanned_total", "Files read and categorized", nil),
		FilesSkippedTotal: r.NewCounter("layermap_files_skipped_total", "Files skipped with a warning", nil),
		ReferencesTotal:   r.NewCounter("layermap_references_total", "References recorded in the graph", nil),
		DroppedRefsTotal:  r.NewCounter("layermap_references_dropped_total", "References no rule could resolve", nil),

		GraphStoresTotal:   r.NewCounter("layermap_graph_stores_total", "Graph store attempts", nil),
		GraphStoreFailures: r.NewCounter("layermap_graph_store_failures_total", "Failed graph stores", nil),

		ActiveWorkers: r.NewGauge("layermap_active_workers", "Number of busy scan workers", nil),
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *ScanMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

// RecordScan records a finished scan.
func (m *ScanMetrics) RecordScan(duration time.Duration, err error) {
	m.ScansTotal.Inc()
	m.ScanDuration.Observe(duration.Seconds())
	if err != nil {
		m.ScanErrorsTotal.Inc()
	}
}

// RecordFile records one processed file.
func (m *ScanMetrics) RecordFile(kept, dropped int) {
	m.FilesScannedTotal.Inc()
	m.ReferencesTotal.Add(float64(kept))
	m.DroppedRefsTotal.Add(float64(dropped))
}

// RecordSkip records one skipped file.
func (m *ScanMetrics) RecordSkip() {
	m.FilesSkippedTotal.Inc()
}

// RecordGraphStore records a graph store attempt.
func (m *ScanMetrics) RecordGraphStore(err error) {
	m.GraphStoresTotal.Inc()
	if err != nil {
		m.GraphStoreFailures.Inc()
	}
}

var globalMetrics *ScanMetrics
var metricsOnce sync.Once

// Metrics returns the global metrics instance.
func Metrics() *ScanMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewScanMetrics()
	})
	return globalMetrics
}
