package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const maxAttempts = 3

// ScanInput holds the workflow parameters. Zero values fall back to the
// worker's configuration.
type ScanInput struct {
	Root              string
	OutputPath        string
	Workers           int
	IncludeUnobserved bool

	// StoreGraph sends the category graph to the worker's graph repository.
	StoreGraph bool
	Project    string
}

// ScanOutput holds the workflow result.
type ScanOutput struct {
	ReportPath  string
	Fingerprint string
	Files       int
	Skipped     int
	Edges       int
	Order       []string
	Cycles      int
	Stored      bool
	Errors      []string
}

// ScanWorkflow analyses a tree on a worker and optionally stores the graph.
// A failed graph store is reported in Errors and does not fail the workflow.
func ScanWorkflow(ctx workflow.Context, input ScanInput) (*ScanOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        maxAttempts,
			NonRetryableErrorTypes: []string{ErrTypeInvalidRoot},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	logger := workflow.GetLogger(ctx)

	// Step 1: scan, plan and write the report
	var analysis AnalysisResult
	if err := workflow.ExecuteActivity(ctx, AnalyzeActivity, input).Get(ctx, &analysis); err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	output := &ScanOutput{
		ReportPath:  analysis.ReportPath,
		Fingerprint: analysis.Fingerprint,
		Files:       analysis.Files,
		Skipped:     analysis.Skipped,
		Edges:       analysis.Edges,
		Order:       analysis.Order,
		Cycles:      analysis.Cycles,
	}

	// Step 2: persist the graph
	if input.StoreGraph {
		err := workflow.ExecuteActivity(ctx, StoreGraphActivity, input.Project, analysis.Dependencies).Get(ctx, nil)
		if err != nil {
			logger.Warn("graph store failed", "error", err)
			output.Errors = append(output.Errors, fmt.Sprintf("store graph: %v", err))
		} else {
			output.Stored = true
		}
	}

	return output, nil
}
