package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/bsaid97/go-boundary-fixer/engine"
	"github.com/bsaid97/go-boundary-fixer/handlers"
	"github.com/bsaid97/go-boundary-fixer/pipeline"
	"github.com/bsaid97/go-boundary-fixer/utils"
	"github.com/spf13/cobra"
)

func (o *rootOptions) progress() io.Writer {
	if o.quiet {
		return nil
	}
	return os.Stderr
}

func newConsolidateCmd(root *rootOptions) *cobra.Command {
	var workDir, output string

	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Run the full repair, associate, dissolve and simplify pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := utils.LoadConfig(root.configPath)
			if err != nil {
				return err
			}
			if workDir != "" {
				cfg.WorkDir = workDir
			}
			if output != "" {
				cfg.Output.Path = output
			}
			summary, err := pipeline.Run(cfg, pipeline.Options{Progress: root.progress()})
			if err != nil {
				return err
			}
			for _, path := range summary.Outputs {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&workDir, "work-dir", "", "Directory for intermediate files")
	cmd.Flags().StringVar(&output, "output", "", "Consolidated output file")
	return cmd
}

func newRepairCmd(root *rootOptions) *cobra.Command {
	var input, output string

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Replace multi-part polygons with their convex hull",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := utils.LoadConfig(root.configPath)
			if err != nil {
				return err
			}
			cfg.Repair = true
			if input == "" {
				input = cfg.Children.Path
			}
			if output == "" {
				output = input
			}
			_, err = pipeline.Repair(cfg, input, output)
			return err
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "GeoJSON to repair (default: children.path)")
	cmd.Flags().StringVar(&output, "output", "", "Where to write the result (default: in place)")
	return cmd
}

func newAssociateCmd(root *rootOptions) *cobra.Command {
	var parents, children, output string

	cmd := &cobra.Command{
		Use:   "associate",
		Short: "Attach child regions to parents by name and drop the rest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := utils.LoadConfig(root.configPath)
			if err != nil {
				return err
			}
			if parents != "" {
				cfg.Parents.Path = parents
			}
			if children == "" {
				children = cfg.Children.Path
			}
			report, err := pipeline.Associate(cfg, children, output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "matched %d, unmatched names %d, dropped children %d\n",
				report.Matches, len(report.UnmatchedNames), len(report.DroppedChildren))
			return nil
		},
	}
	cmd.Flags().StringVar(&parents, "parents", "", "Parent GeoJSON (default: parents.path)")
	cmd.Flags().StringVar(&children, "children", "", "Child GeoJSON (default: children.path)")
	cmd.Flags().StringVar(&output, "output", "", "Where to write associated children (required)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newRunCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "run <commands>",
		Short:   "Run a single geometry engine command",
		Example: `  boundaryfix run "-i in.geojson name=LAD23NM -simplify 1.5% -o out.geojson"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task := engine.New().RunCommands(args[0])
			utils.AwaitWithSpinner(root.progress(), "running", task.Done())
			result, err := task.Wait()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Output)
			return nil
		},
	}
}

func newIssuesCmd(root *rootOptions) *cobra.Command {
	var sheet, output string
	var columnOffset int
	var gzip bool

	cmd := &cobra.Command{
		Use:   "issues <file.xlsx>",
		Short: "Convert a spreadsheet of reported issues into GeoJSON points",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := utils.LoadConfig(root.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("sheet") {
				cfg.Issues.Sheet = sheet
			}
			if cmd.Flags().Changed("output") {
				cfg.Issues.Output = output
			}
			if cmd.Flags().Changed("column-offset") {
				cfg.Issues.ColumnOffset = columnOffset
			}
			if cmd.Flags().Changed("gzip") {
				cfg.Issues.Gzip = gzip
			}

			opts := handlers.DefaultIssueOptions()
			opts.ColumnOffset = cfg.Issues.ColumnOffset
			written, warnings, err := handlers.ImportIssues(args[0], cfg.Issues.Sheet, cfg.Issues.Output, cfg.Issues.Gzip, opts)
			if err != nil {
				return err
			}
			for _, warning := range warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), warning.String())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is ready\n", written)
			return nil
		},
	}
	cmd.Flags().StringVar(&sheet, "sheet", "", "Sheet to read (default: issues.sheet)")
	cmd.Flags().StringVar(&output, "output", "", "GeoJSON to write (default: issues.output)")
	cmd.Flags().IntVar(&columnOffset, "column-offset", 1, "Leading columns to ignore")
	cmd.Flags().BoolVar(&gzip, "gzip", true, "Compress the output and remove the uncompressed file")
	return cmd
}

type checkOutput struct {
	Errors   []handlers.GeometryError `json:"errors"`
	Coverage *handlers.CoverageReport `json:"coverage,omitempty"`
}

func newCheckCmd(root *rootOptions) *cobra.Command {
	var nameProperty string
	var toleranceMeters float64
	var coverage bool

	cmd := &cobra.Command{
		Use:   "check <file.geojson>",
		Short: "Report invalid geometries and overlapping regions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := utils.ReadFeatureCollection(args[0], nameProperty)
			if err != nil {
				return err
			}
			out := checkOutput{Errors: handlers.CheckGeometry(fc.Regions)}
			if coverage {
				tolerance := toleranceMeters
				if handlers.IsGeographic(fc.Regions) {
					tolerance = utils.CalculateWGS84ToleranceFromMeters(toleranceMeters)
				}
				report, err := handlers.ValidateCoverage(fc.Regions, tolerance)
				if err != nil {
					return err
				}
				out.Coverage = &report
			}
			data, err := json.Marshal(out)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&nameProperty, "name", "", "Property holding region names")
	cmd.Flags().Float64Var(&toleranceMeters, "tolerance", 1, "Coverage tolerance in metres")
	cmd.Flags().BoolVar(&coverage, "coverage", true, "Also check for overlaps between regions")
	return cmd
}
