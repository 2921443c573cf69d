package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/layermap/internal/category"
	"github.com/efebarandurmaz/layermap/internal/migration"
	"github.com/efebarandurmaz/layermap/internal/report"
)

func newDependentsCmd(configPath *string) *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "dependents <category>",
		Short: "List stored categories that reference a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := category.Parse(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			rt, err := setup(ctx, *configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.close()
			if project == "" {
				project = rt.cfg.Graph.Project
			}

			repo, err := openRepository(ctx, rt.cfg.Graph)
			if err != nil {
				return err
			}
			defer repo.Close(context.Background())

			deps, err := repo.QueryDependents(ctx, project, c)
			if err != nil {
				return fmt.Errorf("query dependents of %s in %s: %w", c, project, err)
			}

			w := cmd.OutOrStdout()
			if len(deps) == 0 {
				fmt.Fprintf(w, "No categories reference %s\n", c)
				return nil
			}
			fmt.Fprintf(w, "Categories referencing %s:\n", c)
			for _, d := range deps {
				fmt.Fprintf(w, "  %s\n", d)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Graph project (default graph.project)")
	return cmd
}

// loadStoredReport rebuilds a report from the graph stored for project.
func loadStoredReport(ctx context.Context, rt *services, project string) (*report.Report, error) {
	repo, err := openRepository(ctx, rt.cfg.Graph)
	if err != nil {
		return nil, err
	}
	defer repo.Close(context.Background())

	g, err := repo.LoadGraph(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("load graph %s: %w", project, err)
	}
	plan := migration.Build(g, migration.Options{IncludeUnobserved: rt.cfg.Plan.IncludeUnobserved})
	return report.FromGraph(g, plan), nil
}
