package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/layermap/internal/pipeline"
	"github.com/efebarandurmaz/layermap/internal/qualitygate"
	"github.com/efebarandurmaz/layermap/internal/report"
)

var errGatesFailed = errors.New("quality gates failed")

func newCheckCmd(configPath *string) *cobra.Command {
	var (
		reportPath string
		fromGraph  string
		asJSON     bool
		noWrite    bool
	)

	cmd := &cobra.Command{
		Use:   "check [root]",
		Short: "Evaluate quality gates against a fresh analysis, a saved report or a stored graph",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			rt, err := setup(ctx, *configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.close()

			var r *report.Report
			switch {
			case reportPath != "" && fromGraph != "":
				return fmt.Errorf("--report and --from-graph are mutually exclusive")
			case reportPath != "":
				if r, err = report.Load(reportPath); err != nil {
					return err
				}
			case fromGraph != "":
				if r, err = loadStoredReport(ctx, rt, fromGraph); err != nil {
					return err
				}
			default:
				root := "."
				if len(args) == 1 {
					root = args[0]
				}
				opts := pipeline.FromConfig(rt.cfg)
				opts.Logger = rt.logger
				if noWrite {
					opts.Write = false
				}
				res, err := pipeline.Run(ctx, root, opts)
				if err != nil {
					return err
				}
				r = res.Report
			}

			result := qualitygate.BuildPipeline(rt.cfg.Gate).Run(r)
			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				fmt.Fprint(w, qualitygate.FormatReport(result))
			}
			if !result.Passed() {
				return errGatesFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&reportPath, "report", "", "Evaluate a saved report instead of scanning")
	cmd.Flags().StringVar(&fromGraph, "from-graph", "", "Evaluate the graph stored for this project instead of scanning")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print gate results as JSON")
	cmd.Flags().BoolVar(&noWrite, "no-write", false, "Do not write the JSON report")
	return cmd
}
