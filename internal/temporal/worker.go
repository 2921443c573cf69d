package temporal

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/efebarandurmaz/layermap/internal/observability"
)

// StartWorker creates and starts a Temporal worker.
func StartWorker(c client.Client, taskQueue string) (worker.Worker, error) {
	w := worker.New(c, taskQueue, worker.Options{})

	w.RegisterWorkflow(ScanWorkflow)
	w.RegisterActivity(AnalyzeActivity)
	w.RegisterActivity(StoreGraphActivity)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}

// Submit starts ScanWorkflow on taskQueue and waits for its result.
func Submit(ctx context.Context, c client.Client, taskQueue string, input ScanInput) (*ScanOutput, error) {
	start := time.Now()
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{TaskQueue: taskQueue}, ScanWorkflow, input)
	if err != nil {
		return nil, fmt.Errorf("starting workflow: %w", err)
	}
	audit := observability.Audit()
	audit.LogWorkflowStart(ctx, run.GetID(), input.Root)

	var out ScanOutput
	err = run.Get(ctx, &out)
	audit.LogWorkflowEnd(ctx, run.GetID(), err == nil, time.Since(start), out.ReportPath)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", run.GetID(), err)
	}
	return &out, nil
}
