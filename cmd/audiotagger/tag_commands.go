package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"audiotagger/internal/pipeline"
	"audiotagger/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var req workflow.RunRequest

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Tag a folder or CSV list and export tags.csv",
		Long: "Tag every asset in --source-path and flatten the results into tags.csv.\n" +
			"Without --json-destination-path the per-asset results go to a temporary\n" +
			"tags-<timestamp> folder that is removed after export.",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := ctx.manager()
			if err != nil {
				return err
			}
			result, err := manager.Run(cmd.Context(), req)
			out := cmd.OutOrStdout()
			if result.Generate.Summary.Total > 0 {
				printSummary(out, result.Generate)
			}
			if err != nil {
				return err
			}
			printExport(out, result.Export)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Source, "source-path", "", "Folder of audio files or CSV list of files and links")
	cmd.Flags().StringVar(&req.ResultsDir, "json-destination-path", "", "Folder for per-asset JSON results (temporary when omitted)")
	cmd.Flags().StringVar(&req.ExportDir, "csv-destination-path", "", "Folder that receives tags.csv (defaults to paths.export_dir)")
	cmd.Flags().StringSliceVar(&req.Tags, "tags", nil, "Tag types to extract (defaults to pipeline.tags)")
	cmd.Flags().BoolVar(&req.Parquet, "parquet", false, "Also write tags.parquet")
	_ = cmd.MarkFlagRequired("source-path")
	return cmd
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var req workflow.GenerateRequest

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Tag assets and store one JSON result per asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := ctx.manager()
			if err != nil {
				return err
			}
			result, err := manager.Generate(cmd.Context(), req)
			if result.Summary.Total > 0 {
				printSummary(cmd.OutOrStdout(), result)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&req.Source, "source-path", "", "Folder of audio files or CSV list of files and links")
	cmd.Flags().StringVar(&req.Destination, "destination-path", "", "Folder for per-asset JSON results (defaults to paths.results_dir)")
	cmd.Flags().StringSliceVar(&req.Tags, "tags", nil, "Tag types to extract (defaults to pipeline.tags)")
	_ = cmd.MarkFlagRequired("source-path")
	return cmd
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var req workflow.ExportRequest

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Flatten a results folder into tags.csv",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := ctx.manager()
			if err != nil {
				return err
			}
			result, err := manager.Export(cmd.Context(), req)
			if err != nil {
				return err
			}
			printExport(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.ResultsDir, "tags-path", "", "Folder of per-asset JSON results (defaults to paths.results_dir)")
	cmd.Flags().StringVar(&req.ExportDir, "tags-csv", "", "Folder that receives tags.csv (defaults to paths.export_dir)")
	cmd.Flags().StringSliceVar(&req.Tags, "tags-types", nil, "Tag types to include as columns (defaults to pipeline.tags)")
	cmd.Flags().BoolVar(&req.Parquet, "parquet", false, "Also write tags.parquet")
	return cmd
}

func printSummary(out io.Writer, result workflow.GenerateResult) {
	summary := result.Summary
	fmt.Fprintf(out, "Tagged %d of %d assets with %d worker(s) in %s\n",
		summary.Succeeded(), summary.Total, summary.Workers, summary.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "Results: %s\n", result.Destination)
	if result.RunID != "" {
		fmt.Fprintf(out, "Run ID: %s\n", result.RunID)
	}
	if summary.Failed() == 0 {
		return
	}
	fmt.Fprintf(out, "%d asset(s) failed; details in %s\n", summary.Failed(), result.FailureDetails)
	fmt.Fprintln(out, renderFailures(summary))
}

func renderFailures(summary pipeline.Summary) string {
	rows := make([][]string, 0, len(summary.Failures))
	for _, f := range summary.Failures {
		rows = append(rows, []string{f.Source, f.Stage.Label(), f.Handle, strings.TrimSpace(f.Cause)})
	}
	return renderTable([]string{"Asset", "Stage", "Handle", "Cause"}, rows, nil)
}

func printExport(out io.Writer, result workflow.ExportResult) {
	fmt.Fprintf(out, "Wrote %d rows x %d columns to %s\n", result.Rows, result.Width, result.CSVPath)
	if result.ParquetPath != "" {
		fmt.Fprintf(out, "Parquet: %s\n", result.ParquetPath)
	}
}
