package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/temporal"

	"github.com/efebarandurmaz/layermap/internal/category"
	"github.com/efebarandurmaz/layermap/internal/config"
	"github.com/efebarandurmaz/layermap/internal/depgraph"
	"github.com/efebarandurmaz/layermap/internal/graph"
	"github.com/efebarandurmaz/layermap/internal/observability"
	"github.com/efebarandurmaz/layermap/internal/pipeline"
	"github.com/efebarandurmaz/layermap/internal/scan"
)

// ErrTypeInvalidRoot marks activity failures that retrying cannot fix.
const ErrTypeInvalidRoot = "InvalidRoot"

// AnalysisResult is the serializable result of AnalyzeActivity.
type AnalysisResult struct {
	ReportPath   string
	Fingerprint  string
	Files        int
	Skipped      int
	Edges        int
	Order        []string
	Cycles       int
	Dependencies map[category.Category]map[category.Category][]string
}

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Config     *config.Config
	Repository graph.Repository // nil when no graph database is configured
	Logger     *slog.Logger
	Metrics    *observability.ScanMetrics
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

func options(input ScanInput) pipeline.Options {
	cfg := config.Default()
	if deps != nil && deps.Config != nil {
		cfg = deps.Config
	}
	opts := pipeline.FromConfig(cfg)
	if deps != nil {
		opts.Logger = deps.Logger
		opts.Metrics = deps.Metrics
		opts.Repository = deps.Repository
	}
	if input.OutputPath != "" {
		opts.Output = input.OutputPath
	}
	if input.Workers > 0 {
		opts.Scan.Workers = input.Workers
	}
	if input.IncludeUnobserved {
		opts.Plan.IncludeUnobserved = true
	}
	if input.Project != "" {
		opts.Project = input.Project
	}
	return opts
}

// AnalyzeActivity runs scan, plan and report on the worker's filesystem.
// The graph store is left to StoreGraphActivity so it retries on its own.
func AnalyzeActivity(ctx context.Context, input ScanInput) (AnalysisResult, error) {
	opts := options(input)
	opts.Repository = nil

	res, err := pipeline.Run(ctx, input.Root, opts)
	if err != nil {
		if errors.Is(err, scan.ErrInvalidRoot) {
			return AnalysisResult{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidRoot, err)
		}
		return AnalysisResult{}, err
	}

	order := make([]string, 0, len(res.Plan.Steps))
	for _, c := range res.Plan.Order() {
		order = append(order, string(c))
	}
	return AnalysisResult{
		ReportPath:   res.ReportPath,
		Fingerprint:  res.Report.Fingerprint,
		Files:        len(res.Scan.Files),
		Skipped:      len(res.Scan.Skipped),
		Edges:        len(res.Scan.Graph.Edges()),
		Order:        order,
		Cycles:       len(res.Plan.Cycles),
		Dependencies: res.Report.Dependencies,
	}, nil
}

// StoreGraphActivity writes the analysed graph to the configured repository.
func StoreGraphActivity(ctx context.Context, project string, dependencies map[category.Category]map[category.Category][]string) error {
	opts := options(ScanInput{Project: project})
	if opts.Repository == nil {
		return temporal.NewNonRetryableApplicationError("no graph repository configured", "NoRepository", nil)
	}
	g := depgraph.FromNested(dependencies)
	if err := pipeline.StoreGraph(ctx, opts, &scan.Result{Graph: g}); err != nil {
		return fmt.Errorf("project %s: %w", opts.Project, err)
	}
	return nil
}
