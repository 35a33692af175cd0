package preflight

import (
	"context"

	"audiotagger/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// baseURL is the analysis endpoint selected for the configured mode.
func RunAll(ctx context.Context, cfg *config.Config, baseURL string) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckAnalysisAPI(ctx, baseURL, cfg.API.APIKey))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	results = append(results, CheckDirectoryAccess("Export directory", cfg.Paths.ExportDir))

	switch cfg.Storage.Backend {
	case "s3":
		results = append(results, CheckObjectStore(ctx, cfg.Storage))
	default:
		if cfg.Paths.ResultsDir != "" {
			results = append(results, CheckDirectoryAccess("Results directory", cfg.Paths.ResultsDir))
		}
	}

	if cfg.Paths.LedgerPath != "" {
		results = append(results, CheckLedger(ctx, cfg.Paths.LedgerPath))
	}

	return results
}

// Failed counts the results that did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Passed {
			n++
		}
	}
	return n
}
