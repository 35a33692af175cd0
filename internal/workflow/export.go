package workflow

import (
	"context"
	"strings"

	"audiotagger/internal/export"
	"audiotagger/internal/flatten"
	"audiotagger/internal/logging"
	"audiotagger/internal/results"
	"audiotagger/internal/services"
)

// ExportRequest describes a flatten-and-write pass over a results folder.
type ExportRequest struct {
	// ResultsDir holds the per-asset records; defaults to paths.results_dir.
	ResultsDir string
	// ExportDir receives tags.csv; defaults to paths.export_dir.
	ExportDir string
	// Tags overrides pipeline.tags.
	Tags []string
	// Parquet also writes tags.parquet. export.parquet enables it too.
	Parquet bool
}

// ExportResult reports the written files.
type ExportResult struct {
	CSVPath     string
	ParquetPath string
	Rows        int
	Width       int
}

// Export flattens every record in the results folder into the export files.
func (m *Manager) Export(ctx context.Context, req ExportRequest) (ExportResult, error) {
	types, err := m.tagSelection(req.Tags)
	if err != nil {
		return ExportResult{}, err
	}
	resultsDir := strings.TrimSpace(req.ResultsDir)
	if resultsDir == "" {
		resultsDir = m.cfg.Paths.ResultsDir
	}
	if resultsDir == "" {
		return ExportResult{}, services.Wrap(services.ErrValidation, "export", "", "tags path is required", nil)
	}
	exportDir := strings.TrimSpace(req.ExportDir)
	if exportDir == "" {
		exportDir = m.cfg.Paths.ExportDir
	}

	store, err := results.Open(ctx, m.cfg.Storage.Backend, m.s3Config(), resultsDir)
	if err != nil {
		return ExportResult{}, err
	}
	table, err := flatten.Flatten(ctx, store, types)
	if err != nil {
		return ExportResult{}, err
	}

	result := ExportResult{Rows: len(table.Rows), Width: table.Width()}
	if result.CSVPath, err = export.WriteCSV(exportDir, table); err != nil {
		return result, services.Wrap(services.ErrLocalResource, "export", "write csv", exportDir, err)
	}
	if req.Parquet || m.cfg.Export.Parquet {
		if result.ParquetPath, err = export.WriteParquet(exportDir, table); err != nil {
			return result, services.Wrap(services.ErrLocalResource, "export", "write parquet", exportDir, err)
		}
	}
	m.logger.Info("export written",
		logging.String("csv", result.CSVPath),
		logging.String("parquet", result.ParquetPath),
		logging.Int("rows", result.Rows),
		logging.Int("columns", result.Width),
	)
	return result, nil
}
