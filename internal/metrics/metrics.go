// Package metrics summarises a single scan run.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/efebarandurmaz/layermap/internal/depgraph"
)

// ScanSummary collects statistics for one scan run.
type ScanSummary struct {
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at,omitempty"`
	Duration   time.Duration    `json:"duration_ms,omitempty"`
	Root       string           `json:"root"`
	Workers    int              `json:"workers"`
	Files      FileMetrics      `json:"files"`
	References ReferenceMetrics `json:"references"`
	Graph      GraphMetrics     `json:"graph"`
	Stages     []StageMetrics   `json:"stages"`
	Errors     []string         `json:"errors,omitempty"`
}

type FileMetrics struct {
	Discovered int   `json:"discovered"`
	Scanned    int   `json:"scanned"`
	Skipped    int   `json:"skipped"`
	TotalBytes int64 `json:"total_bytes"`
}

type ReferenceMetrics struct {
	Extracted int `json:"extracted"`
	Kept      int `json:"kept"`
	Dropped   int `json:"dropped"`
}

type GraphMetrics struct {
	Categories  int    `json:"categories"`
	Edges       int    `json:"edges"`
	SelfEdges   int    `json:"self_edges"`
	Cycles      int    `json:"cycles"`
	Fingerprint string `json:"fingerprint"`
}

type StageMetrics struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration_ms"`
}

// New starts tracking a scan of root.
func New(root string, workers int) *ScanSummary {
	return &ScanSummary{StartedAt: time.Now(), Root: root, Workers: workers}
}

// AddStage records a single stage's timing.
func (m *ScanSummary) AddStage(name string, d time.Duration) {
	m.Stages = append(m.Stages, StageMetrics{Name: name, Duration: d})
}

// AddFile records one file that was read and categorized.
func (m *ScanSummary) AddFile(size int64, extracted, kept, dropped int) {
	m.Files.Scanned++
	m.Files.TotalBytes += size
	m.References.Extracted += extracted
	m.References.Kept += kept
	m.References.Dropped += dropped
}

// AddSkip records one skipped file and its reason.
func (m *ScanSummary) AddSkip(path string, err error) {
	m.Files.Skipped++
	m.Errors = append(m.Errors, fmt.Sprintf("%s: %v", path, err))
}

// CollectGraph computes graph-side metrics from the aggregated graph.
func (m *ScanSummary) CollectGraph(g *depgraph.Graph) {
	s := g.Stats()
	m.Graph.Categories = s.TotalCategories
	m.Graph.Edges = s.TotalEdges
	m.Graph.SelfEdges = s.SelfEdges
	m.Graph.Cycles = len(s.CyclicDeps)
	m.Graph.Fingerprint = g.Fingerprint()
}

// Finish marks the scan as complete.
func (m *ScanSummary) Finish() {
	m.FinishedAt = time.Now()
	m.Duration = m.FinishedAt.Sub(m.StartedAt)
}

// PrintSummary writes a human-readable summary.
func (m *ScanSummary) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║         LAYERMAP SCAN REPORT         ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Duration:    %-23s║\n", m.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "║ Workers:     %-23d║\n", m.Workers)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ FILES (%s)\n", m.Root)
	fmt.Fprintf(w, "║   Discovered:  %d\n", m.Files.Discovered)
	fmt.Fprintf(w, "║   Scanned:     %d\n", m.Files.Scanned)
	fmt.Fprintf(w, "║   Skipped:     %d\n", m.Files.Skipped)
	fmt.Fprintf(w, "║   Total Size:  %s\n", formatBytes(m.Files.TotalBytes))
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ REFERENCES\n")
	fmt.Fprintf(w, "║   Extracted:   %d\n", m.References.Extracted)
	fmt.Fprintf(w, "║   Kept:        %d\n", m.References.Kept)
	fmt.Fprintf(w, "║   Dropped:     %d\n", m.References.Dropped)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ GRAPH\n")
	fmt.Fprintf(w, "║   Categories:  %d\n", m.Graph.Categories)
	fmt.Fprintf(w, "║   Edges:       %d (%d self)\n", m.Graph.Edges, m.Graph.SelfEdges)
	fmt.Fprintf(w, "║   Cycles:      %d\n", m.Graph.Cycles)
	if len(m.Stages) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ STAGES\n")
		for _, s := range m.Stages {
			fmt.Fprintf(w, "║   %-14s %8s\n", s.Name, s.Duration.Round(time.Millisecond))
		}
	}
	if len(m.Errors) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ SKIPPED\n")
		for _, e := range m.Errors {
			fmt.Fprintf(w, "║   • %s\n", e)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the metrics as formatted JSON.
func (m *ScanSummary) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
