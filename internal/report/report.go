// Package report turns a scan result and migration plan into the persisted
// analysis document and its console rendering.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/efebarandurmaz/layermap/internal/category"
	"github.com/efebarandurmaz/layermap/internal/depgraph"
	"github.com/efebarandurmaz/layermap/internal/migration"
	"github.com/efebarandurmaz/layermap/internal/observability"
	"github.com/efebarandurmaz/layermap/internal/scan"
)

// DefaultOutput is the report location relative to the scan root.
const DefaultOutput = "tools/dependency_analysis.json"

// Report is the persisted analysis document. Map keys are emitted sorted, so
// the same tree always produces byte-identical output.
type Report struct {
	ModuleCategories map[string]category.Category                         `json:"module_categories"`
	Dependencies     map[category.Category]map[category.Category][]string `json:"dependencies"`
	MigrationOrder   []migration.Step                                     `json:"migration_order"`
	Cycles           [][]category.Category                                `json:"cycles"`
	Skipped          []scan.Skip                                          `json:"skipped"`
	Fingerprint      string                                               `json:"fingerprint"`
}

// Build assembles the report document.
func Build(res *scan.Result, plan *migration.Plan) *Report {
	r := &Report{
		ModuleCategories: res.Categories(),
		Dependencies:     res.Graph.Nested(),
		MigrationOrder:   plan.Steps,
		Cycles:           plan.Cycles,
		Skipped:          res.Skipped,
		Fingerprint:      res.Graph.Fingerprint(),
	}
	if r.MigrationOrder == nil {
		r.MigrationOrder = []migration.Step{}
	}
	if r.Cycles == nil {
		r.Cycles = [][]category.Category{}
	}
	if r.Skipped == nil {
		r.Skipped = []scan.Skip{}
	}
	return r
}

// FromGraph builds a report for a graph loaded from a graph store. The store
// keeps no per-file data, so module_categories and skipped are empty.
func FromGraph(g *depgraph.Graph, plan *migration.Plan) *Report {
	return Build(&scan.Result{Graph: g}, plan)
}

// OutputPath resolves output against root. An empty output selects
// DefaultOutput; absolute paths are used as is.
func OutputPath(root, output string) string {
	if output == "" {
		output = DefaultOutput
	}
	if filepath.IsAbs(output) {
		return output
	}
	return filepath.Join(root, filepath.FromSlash(output))
}

// Marshal encodes the report as indented JSON with a trailing newline.
func (r *Report) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// Write persists the report at path, creating parent directories, and
// returns the number of bytes written.
func (r *Report) Write(ctx context.Context, path string) (int, error) {
	_, span := observability.StartReportSpan(ctx, path)
	defer span.End()

	data, err := r.Marshal()
	if err != nil {
		observability.RecordError(span, err)
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		observability.RecordError(span, err)
		return 0, fmt.Errorf("create report directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		observability.RecordError(span, err)
		return 0, fmt.Errorf("write report: %w", err)
	}
	return len(data), nil
}

// Load reads a report written by Write.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	return &r, nil
}
