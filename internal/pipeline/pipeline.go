// Package pipeline runs a complete analysis: scan, plan, report and the
// optional graph store. The CLI and the Temporal activities share it.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/efebarandurmaz/layermap/internal/config"
	"github.com/efebarandurmaz/layermap/internal/graph"
	"github.com/efebarandurmaz/layermap/internal/migration"
	"github.com/efebarandurmaz/layermap/internal/observability"
	"github.com/efebarandurmaz/layermap/internal/report"
	"github.com/efebarandurmaz/layermap/internal/scan"
)

// Options configures one analysis run.
type Options struct {
	Scan scan.Options
	Plan migration.Options

	// Output is the report path, resolved against the scan root unless absolute.
	Output string
	// Write persists the JSON report.
	Write bool

	// Repository, when set, receives the category graph under Project.
	Repository graph.Repository
	Project    string

	Logger  *slog.Logger
	Metrics *observability.ScanMetrics
	Audit   *observability.AuditLogger
}

// FromConfig maps the loaded configuration onto pipeline options.
func FromConfig(cfg *config.Config) Options {
	return Options{
		Scan: scan.Options{
			Extensions:       cfg.Scan.Extensions,
			Exclude:          cfg.Scan.Exclude,
			Workers:          cfg.Scan.Workers,
			RespectGitignore: cfg.Scan.RespectGitignore,
			MaxFileSize:      cfg.Scan.MaxFileSize,
		},
		Plan:    migration.Options{IncludeUnobserved: cfg.Plan.IncludeUnobserved},
		Output:  cfg.Report.Output,
		Write:   cfg.Report.Write,
		Project: cfg.Graph.Project,
	}
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Metrics == nil {
		o.Metrics = observability.Metrics()
	}
	if o.Audit == nil {
		o.Audit = observability.Audit()
	}
	if o.Project == "" {
		o.Project = "default"
	}
	o.Scan.Logger = o.Logger
	o.Scan.Metrics = o.Metrics
	o.Scan.Audit = o.Audit
	return o
}

// Result is everything one run produced.
type Result struct {
	Scan   *scan.Result
	Plan   *migration.Plan
	Report *report.Report
	// ReportPath is where the report was written; empty when writing is off.
	ReportPath string
	// Stored reports whether the graph reached the repository.
	Stored bool
}

// Run analyses root. Scan failures abort the run; per-file problems are
// carried in the report's skipped list.
func Run(ctx context.Context, root string, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	log := opts.Logger

	scanRes, err := scan.New(opts.Scan).Run(ctx, root)
	if err != nil {
		return nil, err
	}
	res := &Result{Scan: scanRes}

	planStart := time.Now()
	_, planSpan := observability.StartPlanSpan(ctx, len(scanRes.Graph.Categories()))
	res.Plan = migration.Build(scanRes.Graph, opts.Plan)
	observability.RecordPlanResult(planSpan, len(res.Plan.Steps), len(res.Plan.Cycles))
	planSpan.End()
	scanRes.Summary.AddStage("plan", time.Since(planStart))
	if len(res.Plan.Cycles) > 0 {
		log.Warn("category cycles detected; migration order is advisory", "cycles", len(res.Plan.Cycles))
	}

	res.Report = report.Build(scanRes, res.Plan)

	if opts.Write {
		reportStart := time.Now()
		path := report.OutputPath(scanRes.Root, opts.Output)
		size, err := res.Report.Write(ctx, path)
		if err != nil {
			return nil, err
		}
		opts.Audit.LogReportWrite(ctx, scanRes.ScanID, path, size)
		scanRes.Summary.AddStage("report", time.Since(reportStart))
		res.ReportPath = path
		log.Info("report written", "path", path)
	}

	if opts.Repository != nil {
		if err := StoreGraph(ctx, opts, scanRes); err != nil {
			return res, err
		}
		res.Stored = true
	}

	return res, nil
}

// StoreGraph sends the scanned graph to opts.Repository.
func StoreGraph(ctx context.Context, opts Options, scanRes *scan.Result) error {
	opts = opts.withDefaults()
	if opts.Repository == nil {
		return fmt.Errorf("store graph: no repository configured")
	}

	start := time.Now()
	edges := len(scanRes.Graph.Edges())
	ctx, span := observability.StartGraphStoreSpan(ctx, opts.Project, edges)
	defer span.End()

	err := opts.Repository.StoreGraph(ctx, opts.Project, scanRes.Graph)
	duration := time.Since(start)
	opts.Metrics.RecordGraphStore(err)
	opts.Audit.LogGraphStore(ctx, scanRes.ScanID, opts.Project, edges, duration, err)
	if err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("store graph: %w", err)
	}
	if scanRes.Summary != nil {
		scanRes.Summary.AddStage("graph", duration)
	}
	opts.Logger.Info("graph stored", "project", opts.Project, "edges", edges)
	return nil
}
