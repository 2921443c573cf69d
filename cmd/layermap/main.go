package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/layermap/internal/category"
	"github.com/efebarandurmaz/layermap/internal/config"
	"github.com/efebarandurmaz/layermap/internal/extract"
	"github.com/efebarandurmaz/layermap/internal/report"
)

var version = "0.1.0"

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "layermap",
		Short:         "Static category dependency analysis and migration ordering",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	var configPath string
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default ./layermap.yaml when present)")

	rootCmd.AddCommand(
		newAnalyzeCmd(&configPath),
		newSubmitCmd(&configPath),
		newCheckCmd(&configPath),
		newClassifyCmd(),
		newCategoriesCmd(),
		newDiffCmd(&configPath),
		newDependentsCmd(&configPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print the layermap version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "layermap %s\n", version)
			},
		},
	)
	return rootCmd
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <path>...",
		Short: "Print the category of each path",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			for _, p := range args {
				fmt.Fprintf(w, "%s\t%s\n", category.Classify(p), p)
			}
		},
	}
}

func newCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List categories in layer order with their classification rules",
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Categories (layer order):")
			for _, c := range category.All() {
				fmt.Fprintf(w, "  %d. %s\n", category.Rank(c)+1, c)
			}

			fmt.Fprintln(w, "\nPath rules (first match wins, fallback other):")
			for i, r := range category.PathRules() {
				fmt.Fprintf(w, "  %2d. %-20s %s\n", i+1, r.Category, r.Name)
			}

			fmt.Fprintln(w, "\nReference rules (unmatched references are dropped):")
			for i, r := range category.ReferenceRules() {
				fmt.Fprintf(w, "  %2d. %-20s %s\n", i+1, r.Category, r.Name)
			}

			fmt.Fprintf(w, "\nReference prefixes: %s\n", strings.Join(extract.Prefixes(), ", "))
		},
	}
}

func newDiffCmd(configPath *string) *cobra.Command {
	var (
		asJSON    bool
		fromGraph string
	)
	cmd := &cobra.Command{
		Use:   "diff [old-report] <new-report>",
		Short: "Compare two saved analysis reports, or a stored graph with a report",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var old *report.Report
			switch {
			case fromGraph != "" && len(args) == 1:
				ctx := cmd.Context()
				if ctx == nil {
					ctx = context.Background()
				}
				rt, err := setup(ctx, *configPath, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer rt.close()
				if old, err = loadStoredReport(ctx, rt, fromGraph); err != nil {
					return err
				}
			case fromGraph == "" && len(args) == 2:
				var err error
				if old, err = report.Load(args[0]); err != nil {
					return err
				}
				args = args[1:]
			default:
				return fmt.Errorf("diff takes two reports, or one report with --from-graph")
			}

			cur, err := report.Load(args[0])
			if err != nil {
				return err
			}
			if fromGraph != "" {
				// Stored graphs carry no file data; compare the graphs only.
				old.ModuleCategories = cur.ModuleCategories
			}
			d := report.Compare(old, cur)

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(d)
			}
			_, err = fmt.Fprint(w, report.FormatDiff(d))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the diff as JSON")
	cmd.Flags().StringVar(&fromGraph, "from-graph", "", "Use the graph stored for this project as the old side")
	return cmd
}
