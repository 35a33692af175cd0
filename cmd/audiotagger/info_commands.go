package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"audiotagger/internal/asset"
	"audiotagger/internal/preflight"
	"audiotagger/internal/tagtypes"
	"audiotagger/internal/workflow"
)

func newTagTypesCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "tag-types",
		Short:       "List the tag types and the columns each contributes",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(tagtypes.All()))
			for _, t := range tagtypes.All() {
				fields := t.Fields()
				parts := make([]string, 0, len(fields))
				columns := 0
				for _, f := range fields {
					label := f.Name
					if f.Repeat > 1 {
						label = fmt.Sprintf("%s x%d", f.Name, f.Repeat)
					}
					parts = append(parts, label)
					columns += 2 * f.Repeat
				}
				rows = append(rows, []string{t.String(), strings.Join(parts, ", "), strconv.Itoa(columns)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Tag type", "Fields", "Columns"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
			return nil
		},
	}
}

func newAssetsCommand() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:         "assets",
		Short:       "List the assets a source resolves to, with embedded metadata",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := asset.Discover(source)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(refs))
			for _, ref := range refs {
				row := []string{ref.SourceName(), ref.Kind().String(), "", "", "", ""}
				meta, ok, err := asset.Probe(ref)
				switch {
				case !ok:
				case err != nil:
					row[2] = "unreadable: " + err.Error()
				default:
					row[2], row[3], row[4] = meta.Title, meta.Artist, meta.Album
					if meta.Year > 0 {
						row[5] = strconv.Itoa(meta.Year)
					}
				}
				rows = append(rows, row)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Asset", "Kind", "Title", "Artist", "Album", "Year"}, rows, nil))
			fmt.Fprintf(out, "%d asset(s)\n", len(refs))
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source-path", "", "Folder of audio files or CSV list of files and links")
	_ = cmd.MarkFlagRequired("source-path")
	return cmd
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent tagging runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := ctx.manager()
			if err != nil {
				return err
			}
			runs, err := manager.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				duration := "-"
				if run.FinishedAt != nil {
					duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
				}
				rows = append(rows, []string{
					shortID(run.ID),
					run.Command,
					run.Status,
					strconv.Itoa(run.Assets),
					strconv.Itoa(run.Succeeded),
					strconv.Itoa(run.Failed),
					yesNo(run.TestMode),
					run.StartedAt.Local().Format("2006-01-02 15:04:05"),
					duration,
				})
			}
			aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft, alignRight}
			fmt.Fprintln(out, renderTable([]string{"Run", "Command", "Status", "Assets", "OK", "Failed", "Test", "Started", "Took"}, rows, aligns))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show (0 for all)")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the analysis API, storage and output paths are usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg, workflow.BaseURL(cfg))
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				status := "ok"
				if !r.Passed {
					status = "FAIL"
				}
				rows = append(rows, []string{r.Name, status, r.Detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Status", "Detail"}, rows, nil))
			if failed := preflight.Failed(results); failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}
