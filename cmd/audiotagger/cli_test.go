package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"audiotagger/internal/config"
	"audiotagger/internal/services"
	"audiotagger/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	server     *testsupport.AnalysisServer
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	server := testsupport.NewAnalysisServer(t)
	cfg := testsupport.NewConfig(t, testsupport.WithBaseURL(server.URL), testsupport.WithTags("GENRE"))
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv(config.APIKeyEnv, "")
	t.Chdir(base)

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, server: server, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func writeSourceList(t *testing.T, dir string) string {
	t.Helper()
	paths := testsupport.WriteAudioFiles(t, dir, "a.mp3", "b.wav")
	lines := paths[0] + "\n" + paths[1] + "\n" + filepath.Join(dir, "gone.mp3") + "\n"
	list := filepath.Join(dir, "input.csv")
	if err := os.WriteFile(list, []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}
	return list
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "API key set: yes")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestConfigShowMasksSecrets(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, env.cfg.API.APIKey) {
		t.Fatalf("api key leaked in output: %s", out)
	}
	requireContains(t, out, "********")
}

func TestInvalidConfigExitsWithUsageCode(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.WriteFile(env.configPath, []byte("[pipeline]\nworkers = 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if !errors.Is(err, services.ErrConfiguration) || services.ExitCode(err) != services.ExitUsage {
		t.Fatalf("expected configuration error with exit code 2, got %v", err)
	}
}

func TestTagTypesListsCatalogue(t *testing.T) {
	out, _, err := runCLI(t, []string{"tag-types"}, "")
	if err != nil {
		t.Fatalf("tag-types: %v", err)
	}
	requireContains(t, out, "GENRE V2 x4")
	requireContains(t, out, "SILENCE DETECTION GQ8EM03XB2")
}

func TestRunTagsAndExports(t *testing.T) {
	env := setupCLITestEnv(t)
	source := writeSourceList(t, t.TempDir())
	results := filepath.Join(env.baseDir, "json")
	csvDir := filepath.Join(env.baseDir, "out")

	out, _, err := runCLI(t, []string{
		"run",
		"--source-path", source,
		"--json-destination-path", results,
		"--csv-destination-path", csvDir,
	}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "Tagged 2 of 3 assets")
	requireContains(t, out, "Upload failure")
	requireContains(t, out, "Wrote 2 rows x 6 columns")

	if _, err := os.Stat(filepath.Join(csvDir, "tags.csv")); err != nil {
		t.Fatalf("expected tags.csv: %v", err)
	}
	if _, err := os.Stat(filepath.Join(results, "feat-a.json")); err != nil {
		t.Fatalf("explicit results folder must be kept: %v", err)
	}

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "completed")
	requireContains(t, out, "run")
}

func TestGenerateThenExport(t *testing.T) {
	env := setupCLITestEnv(t)
	source := writeSourceList(t, t.TempDir())
	results := filepath.Join(env.baseDir, "json")

	if _, _, err := runCLI(t, []string{"generate", "--source-path", source, "--destination-path", results, "--tags", "GENRE,MOOD"}, env.configPath); err != nil {
		t.Fatalf("generate: %v", err)
	}
	out, _, err := runCLI(t, []string{"export", "--tags-path", results, "--tags-types", "MOOD", "--parquet"}, env.configPath)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	requireContains(t, out, "Wrote 2 rows x 8 columns")
	requireContains(t, out, "tags.parquet")
}

func TestRunRejectsUnknownTagType(t *testing.T) {
	env := setupCLITestEnv(t)
	source := writeSourceList(t, t.TempDir())

	_, _, err := runCLI(t, []string{"run", "--source-path", source, "--json-destination-path", t.TempDir(), "--tags", "FOO"}, env.configPath)
	if !errors.Is(err, services.ErrValidation) || services.ExitCode(err) != services.ExitUsage {
		t.Fatalf("expected validation error with exit code 2, got %v", err)
	}
	if env.server.TotalRequests() != 0 {
		t.Fatalf("expected no requests, got %d", env.server.TotalRequests())
	}
}

func TestRunRequiresSourcePath(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"run"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "source-path") {
		t.Fatalf("expected missing --source-path error, got %v", err)
	}
	if env.server.TotalRequests() != 0 {
		t.Fatalf("expected no requests, got %d", env.server.TotalRequests())
	}
}

func TestAssetsListsDiscoveredFiles(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteAudioFiles(t, dir, "one.mp3", "nested/two.m4a", "notes.txt")

	out, _, err := runCLI(t, []string{"assets", "--source-path", dir}, "")
	if err != nil {
		t.Fatalf("assets: %v", err)
	}
	requireContains(t, out, "one.mp3")
	requireContains(t, out, "two.m4a")
	requireContains(t, out, "2 asset(s)")
	if strings.Contains(out, "notes.txt") {
		t.Fatalf("non-audio file listed: %s", out)
	}
}

func TestCheckReportsReadiness(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"check"}, env.configPath)
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	requireContains(t, out, "Analysis API")
	requireContains(t, out, "Run ledger")
	if strings.Contains(out, "FAIL") {
		t.Fatalf("unexpected failing check: %s", out)
	}

	env.server.Close()
	out, _, err = runCLI(t, []string{"check"}, env.configPath)
	if err == nil {
		t.Fatalf("expected check to fail with the service down: %s", out)
	}
	requireContains(t, out, "FAIL")
}
