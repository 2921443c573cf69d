package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"

	"github.com/efebarandurmaz/layermap/internal/config"
	"github.com/efebarandurmaz/layermap/internal/depgraph"
	"github.com/efebarandurmaz/layermap/internal/graph"
	"github.com/efebarandurmaz/layermap/internal/graph/neo4j"
	"github.com/efebarandurmaz/layermap/internal/observability"
	"github.com/efebarandurmaz/layermap/internal/pipeline"
	"github.com/efebarandurmaz/layermap/internal/report"
	temporalmod "github.com/efebarandurmaz/layermap/internal/temporal"
)

type analyzeFlags struct {
	output            string
	workers           int
	format            string
	noWrite           bool
	storeGraph        bool
	summary           bool
	includeUnobserved bool
}

func newAnalyzeCmd(configPath *string) *cobra.Command {
	var f analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze [root]",
		Short: "Scan a source tree and report category dependencies and migration order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			return runAnalyze(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), *configPath, root, f, cmd.Flags().Changed)
		},
	}

	cmd.Flags().StringVar(&f.output, "output", "", "Report path, relative to root unless absolute (default tools/dependency_analysis.json)")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Files processed concurrently (default from config)")
	cmd.Flags().StringVar(&f.format, "format", "console", "Stdout format: console, json, dot, mermaid or stats")
	cmd.Flags().BoolVar(&f.noWrite, "no-write", false, "Do not write the JSON report")
	cmd.Flags().BoolVar(&f.storeGraph, "store-graph", false, "Store the category graph in Neo4j")
	cmd.Flags().BoolVar(&f.summary, "summary", false, "Print the scan summary to stderr")
	cmd.Flags().BoolVar(&f.includeUnobserved, "include-unobserved", false, "Plan every known category, not only observed ones")
	return cmd
}

// openRepository connects to the configured graph store. Tests swap it for
// an in-memory repository.
var openRepository = func(ctx context.Context, cfg config.GraphConfig) (graph.Repository, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("graph store needs graph.uri (or LAYERMAP_GRAPH_URI)")
	}
	repo, err := neo4j.NewNeo4j(ctx, cfg.URI, cfg.Username, cfg.Password)
	if err != nil {
		return nil, err
	}
	if err := repo.EnsureIndexes(ctx); err != nil {
		repo.Close(ctx)
		return nil, err
	}
	return repo, nil
}

// services holds the process-wide services a command sets up.
type services struct {
	cfg     *config.Config
	logger  *slog.Logger
	cleanup []func(context.Context) error
}

func setup(ctx context.Context, configPath string, stderr io.Writer) (*services, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, stderr)
	slog.SetDefault(logger)
	rt := &services{cfg: cfg, logger: logger}

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "layermap",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	rt.cleanup = append(rt.cleanup, tp.Shutdown)

	if cfg.Audit.Enabled {
		if err := observability.InitGlobalAuditLogger(&observability.AuditConfig{
			Enabled:    true,
			OutputPath: cfg.Audit.Output,
		}); err != nil {
			rt.close()
			return nil, fmt.Errorf("audit: %w", err)
		}
		rt.cleanup = append(rt.cleanup, func(context.Context) error {
			return observability.Audit().Close()
		})
	}
	return rt, nil
}

// close runs cleanups in reverse order and logs failures.
func (rt *services) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(rt.cleanup) - 1; i >= 0; i-- {
		if err := rt.cleanup[i](ctx); err != nil {
			rt.logger.Warn("cleanup failed", "error", err)
		}
	}
}

func runAnalyze(ctx context.Context, stdout, stderr io.Writer, configPath, root string, f analyzeFlags, changed func(string) bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	switch f.format {
	case "console", "json", "dot", "mermaid", "stats":
	default:
		return fmt.Errorf("unknown format %q (want console, json, dot, mermaid or stats)", f.format)
	}

	rt, err := setup(ctx, configPath, stderr)
	if err != nil {
		return err
	}
	defer rt.close()
	cfg := rt.cfg

	opts := pipeline.FromConfig(cfg)
	opts.Logger = rt.logger
	if changed("output") {
		opts.Output = f.output
	}
	if changed("workers") {
		opts.Scan.Workers = f.workers
	}
	if f.noWrite {
		opts.Write = false
	}
	if f.includeUnobserved {
		opts.Plan.IncludeUnobserved = true
	}

	if f.storeGraph {
		repo, err := openRepository(ctx, cfg.Graph)
		if err != nil {
			return err
		}
		defer repo.Close(context.Background())
		opts.Repository = repo
	}

	if f.format == "console" {
		fmt.Fprintln(stdout, "Analyzing module dependencies...")
		fmt.Fprintf(stdout, "Root path: %s\n", root)
	}

	res, err := pipeline.Run(ctx, root, opts)
	if err != nil {
		return err
	}

	if err := render(stdout, f.format, res, cfg.Report.PreviewLimit); err != nil {
		return err
	}
	if f.format == "console" && res.ReportPath != "" {
		fmt.Fprintf(stdout, "\nDetailed analysis saved to %s\n", res.ReportPath)
	}
	if f.summary {
		res.Scan.Summary.PrintSummary(stderr)
	}
	return nil
}

func render(w io.Writer, format string, res *pipeline.Result, previewLimit int) error {
	g := res.Scan.Graph
	switch format {
	case "json":
		data, err := res.Report.Marshal()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case "dot":
		_, err := io.WriteString(w, depgraph.ExportDOT(g))
		return err
	case "mermaid":
		_, err := io.WriteString(w, depgraph.ExportMermaid(g))
		return err
	case "stats":
		_, err := io.WriteString(w, depgraph.FormatStats(g))
		return err
	default:
		return report.RenderConsole(w, res.Report, res.Plan, previewLimit)
	}
}

func newSubmitCmd(configPath *string) *cobra.Command {
	var (
		input temporalmod.ScanInput
		wait  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "submit <root>",
		Short: "Run an analysis on a layermap worker through Temporal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input.Root = args[0]
			return runSubmit(cmd, *configPath, input, wait)
		},
	}
	cmd.Flags().StringVar(&input.OutputPath, "output", "", "Report path on the worker")
	cmd.Flags().IntVar(&input.Workers, "workers", 0, "Files processed concurrently on the worker")
	cmd.Flags().BoolVar(&input.StoreGraph, "store-graph", false, "Store the graph in the worker's Neo4j")
	cmd.Flags().StringVar(&input.Project, "project", "", "Graph project name")
	cmd.Flags().BoolVar(&input.IncludeUnobserved, "include-unobserved", false, "Plan every known category")
	cmd.Flags().DurationVar(&wait, "timeout", 15*time.Minute, "How long to wait for the workflow")
	return cmd
}

func runSubmit(cmd *cobra.Command, configPath string, input temporalmod.ScanInput, wait time.Duration) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := setup(ctx, configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.close()
	cfg := rt.cfg

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(rt.logger),
	})
	if err != nil {
		return fmt.Errorf("temporal client: %w", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	out, err := temporalmod.Submit(ctx, c, cfg.Temporal.TaskQueue, input)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Files: %d (skipped %d), edges: %d, cycles: %d\n", out.Files, out.Skipped, out.Edges, out.Cycles)
	for i, c := range out.Order {
		fmt.Fprintf(w, "%d. %s\n", i+1, c)
	}
	if out.ReportPath != "" {
		fmt.Fprintf(w, "Report: %s\n", out.ReportPath)
	}
	if out.Stored {
		fmt.Fprintln(w, "Graph stored")
	}
	for _, e := range out.Errors {
		fmt.Fprintf(w, "Warning: %s\n", e)
	}
	fmt.Fprintf(w, "Fingerprint: %s\n", out.Fingerprint)
	return nil
}
