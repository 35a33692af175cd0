package workflow_test

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"audiotagger/internal/config"
	"audiotagger/internal/export"
	"audiotagger/internal/failures"
	"audiotagger/internal/ledger"
	"audiotagger/internal/services"
	"audiotagger/internal/services/analysis"
	"audiotagger/internal/testsupport"
	"audiotagger/internal/workflow"
)

var fixedNow = time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// writeSourceList creates a.mp3 and b.wav and a CSV listing them plus a
// file that does not exist.
func writeSourceList(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	paths := testsupport.WriteAudioFiles(t, dir, "a.mp3", "b.wav")
	lines := []string{paths[0], "file://" + paths[1], filepath.Join(dir, "gone.mp3")}
	list := filepath.Join(dir, "input.csv")
	if err := os.WriteFile(list, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return list
}

func newManager(t *testing.T, server *testsupport.AnalysisServer, opts ...testsupport.ConfigOption) (*workflow.Manager, *config.Config) {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithBaseURL(server.URL), testsupport.WithTags("GENRE")}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	return workflow.NewManager(cfg, nil, workflow.WithClock(clock)), cfg
}

func TestGenerateRecordsResultsFailuresAndLedger(t *testing.T) {
	server := testsupport.NewAnalysisServer(t)
	manager, cfg := newManager(t, server, testsupport.WithMetricsTextfile())
	source := writeSourceList(t)

	result, err := manager.Generate(context.Background(), workflow.GenerateRequest{Source: source})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if result.Summary.Succeeded() != 2 || result.Summary.Failed() != 1 {
		t.Fatalf("unexpected summary %+v", result.Summary)
	}
	if result.Summary.Failures[0].Stage != failures.StageUpload {
		t.Fatalf("expected upload failure, got %+v", result.Summary.Failures[0])
	}
	if result.Destination != cfg.Paths.ResultsDir {
		t.Fatalf("expected default results dir, got %q", result.Destination)
	}
	for _, name := range []string{"feat-a.json", "feat-b.json"} {
		if _, err := os.Stat(filepath.Join(cfg.Paths.ResultsDir, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.ResultsDir, ".audiotagger.lock")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected lock file to be released, got %v", err)
	}

	stamp := fixedNow.Format(failures.Timestamp)
	if result.FailureList != filepath.Join(cfg.Paths.LogDir, "FAILED-"+stamp+".csv") {
		t.Fatalf("unexpected failure list path %q", result.FailureList)
	}
	details, err := os.ReadFile(result.FailureDetails)
	if err != nil {
		t.Fatalf("read failure details: %v", err)
	}
	if !strings.Contains(string(details), "gone.mp3") || !strings.Contains(string(details), "Upload failure") {
		t.Fatalf("unexpected failure details %q", details)
	}

	runs, err := manager.History(context.Background(), 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected one ledger run, got %d", len(runs))
	}
	run := runs[0]
	if run.ID != result.RunID || run.Status != ledger.StatusCompleted || run.Succeeded != 2 || run.Failed != 1 || run.Assets != 3 {
		t.Fatalf("unexpected ledger run %+v", run)
	}

	metricsData, err := os.ReadFile(cfg.Metrics.Textfile)
	if err != nil {
		t.Fatalf("read metrics textfile: %v", err)
	}
	if !strings.Contains(string(metricsData), `audiotagger_assets_total{outcome="upload_failure"} 1`) {
		t.Fatalf("metrics textfile missing asset counter:\n%s", metricsData)
	}
}

func TestRunExportsAndRemovesTemporaryResults(t *testing.T) {
	server := testsupport.NewAnalysisServer(t)
	manager, cfg := newManager(t, server)
	source := writeSourceList(t)
	workdir := t.TempDir()
	t.Chdir(workdir)

	result, err := manager.Run(context.Background(), workflow.RunRequest{Source: source})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !result.TemporaryResults {
		t.Fatal("expected a temporary results folder")
	}
	tempDir := filepath.Join(workdir, "tags-"+fixedNow.Format(failures.Timestamp))
	if result.Generate.Destination != tempDir {
		t.Fatalf("unexpected temporary folder %q", result.Generate.Destination)
	}
	if _, err := os.Stat(tempDir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temporary folder should be removed, stat err = %v", err)
	}

	if result.Export.CSVPath != filepath.Join(cfg.Paths.ExportDir, export.CSVFileName) {
		t.Fatalf("unexpected csv path %q", result.Export.CSVPath)
	}
	f, err := os.Open(result.Export.CSVPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if len(row) != 6 {
			t.Fatalf("row %d has width %d, want 6", i, len(row))
		}
	}
	if rows[1][0] != "feat-a" || rows[1][1] != "a.mp3" || rows[1][2] != "Rock" || rows[1][3] != "0.91" {
		t.Fatalf("unexpected first row %q", rows[1])
	}
}

func TestRunRefusesExistingTemporaryFolder(t *testing.T) {
	server := testsupport.NewAnalysisServer(t)
	manager, _ := newManager(t, server)
	workdir := t.TempDir()
	t.Chdir(workdir)
	if err := os.Mkdir(filepath.Join(workdir, "tags-"+fixedNow.Format(failures.Timestamp)), 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := manager.Run(context.Background(), workflow.RunRequest{Source: writeSourceList(t)})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if server.TotalRequests() != 0 {
		t.Fatalf("expected no requests, got %d", server.TotalRequests())
	}
}

func TestRunRequiresSource(t *testing.T) {
	server := testsupport.NewAnalysisServer(t)
	manager, _ := newManager(t, server)
	t.Chdir(t.TempDir())

	_, err := manager.Run(context.Background(), workflow.RunRequest{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if server.TotalRequests() != 0 {
		t.Fatalf("expected no requests, got %d", server.TotalRequests())
	}
}

func TestGenerateRejectsUnknownTagBeforeNetwork(t *testing.T) {
	server := testsupport.NewAnalysisServer(t)
	manager, _ := newManager(t, server)

	_, err := manager.Generate(context.Background(), workflow.GenerateRequest{Source: writeSourceList(t), Tags: []string{"FOO"}})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if services.ExitCode(err) != 2 {
		t.Fatalf("expected exit code 2, got %d", services.ExitCode(err))
	}
	if server.TotalRequests() != 0 {
		t.Fatalf("expected no requests, got %d", server.TotalRequests())
	}
}

func TestGenerateRequiresAPIKey(t *testing.T) {
	server := testsupport.NewAnalysisServer(t)
	manager, _ := newManager(t, server, testsupport.WithAPIKey(""))

	_, err := manager.Generate(context.Background(), workflow.GenerateRequest{Source: writeSourceList(t)})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestGenerateTestModeSendsSequentially(t *testing.T) {
	server := testsupport.NewAnalysisServer(t)
	manager, _ := newManager(t, server, testsupport.WithTestMode(), testsupport.WithWorkers(4))

	result, err := manager.Generate(context.Background(), workflow.GenerateRequest{Source: writeSourceList(t)})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if result.Summary.Workers != 1 {
		t.Fatalf("expected one worker in test mode, got %d", result.Summary.Workers)
	}
}

func TestExportWritesParquetWhenRequested(t *testing.T) {
	server := testsupport.NewAnalysisServer(t)
	manager, cfg := newManager(t, server)
	if _, err := manager.Generate(context.Background(), workflow.GenerateRequest{Source: writeSourceList(t)}); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	result, err := manager.Export(context.Background(), workflow.ExportRequest{Tags: []string{"GENRE", "MOOD"}, Parquet: true})
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	if result.Rows != 2 || result.Width != 2+4+6 {
		t.Fatalf("unexpected export shape %+v", result)
	}
	if result.ParquetPath != filepath.Join(cfg.Paths.ExportDir, export.ParquetFileName) {
		t.Fatalf("unexpected parquet path %q", result.ParquetPath)
	}
	if _, err := os.Stat(result.ParquetPath); err != nil {
		t.Fatalf("parquet file missing: %v", err)
	}
}

func TestExportMissingFolderIsValidationError(t *testing.T) {
	server := testsupport.NewAnalysisServer(t)
	manager, cfg := newManager(t, server)

	_, err := manager.Export(context.Background(), workflow.ExportRequest{ResultsDir: filepath.Join(testsupport.BaseDir(cfg), "nope")})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBaseURLFollowsMode(t *testing.T) {
	cfg := config.Default()
	if workflow.BaseURL(&cfg) != analysis.ProductionBaseURL {
		t.Fatalf("unexpected production url %q", workflow.BaseURL(&cfg))
	}
	cfg.API.Mode = config.ModeTest
	if workflow.BaseURL(&cfg) != analysis.TestBaseURL {
		t.Fatalf("unexpected test url %q", workflow.BaseURL(&cfg))
	}
	cfg.API.BaseURL = "http://localhost:9000"
	if workflow.BaseURL(&cfg) != "http://localhost:9000" {
		t.Fatalf("base_url override ignored")
	}
}
