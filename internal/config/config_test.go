package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"audiotagger/internal/config"
	"audiotagger/internal/services"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(config.APIKeyEnv, "")
	os.Unsetenv(config.APIKeyEnv)
	t.Chdir(t.TempDir())
	return home
}

func TestLoadDefaultsExpandPaths(t *testing.T) {
	home := isolate(t)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if resolved != filepath.Join(home, ".config", "audiotagger", "config.toml") {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if cfg.Paths.LedgerPath != filepath.Join(home, ".local", "share", "audiotagger", "history.db") {
		t.Fatalf("unexpected ledger path %q", cfg.Paths.LedgerPath)
	}
	if !filepath.IsAbs(cfg.Paths.LogDir) || filepath.Base(cfg.Paths.LogDir) != "log" {
		t.Fatalf("unexpected log dir %q", cfg.Paths.LogDir)
	}
	if cfg.API.Mode != config.ModeProduction || cfg.TestMode() {
		t.Fatalf("expected production mode, got %q", cfg.API.Mode)
	}
	if cfg.Pipeline.Workers != 5 {
		t.Fatalf("expected 5 workers, got %d", cfg.Pipeline.Workers)
	}
	if err := cfg.RequireAPIKey(); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected missing key to be a configuration error, got %v", err)
	}
}

func TestLoadReadsEnvAPIKey(t *testing.T) {
	isolate(t)
	t.Setenv(config.APIKeyEnv, " env-key ")
	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.APIKey != "env-key" {
		t.Fatalf("expected key from env, got %q", cfg.API.APIKey)
	}
	if err := cfg.RequireAPIKey(); err != nil {
		t.Fatalf("RequireAPIKey: %v", err)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	isolate(t)
	if err := os.WriteFile(".env", []byte(config.APIKeyEnv+"=dotenv-key\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv(config.APIKeyEnv) })
	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.APIKey != "dotenv-key" {
		t.Fatalf("expected key from .env, got %q", cfg.API.APIKey)
	}
}

func TestLoadProjectFile(t *testing.T) {
	isolate(t)
	content := `
[api]
mode = "test"
api_key = "file-key"

[pipeline]
workers = 3
tags = ["genre v2", " bpm "]

[logging]
level = "WARNING"
`
	if err := os.WriteFile("audiotagger.toml", []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || filepath.Base(resolved) != "audiotagger.toml" {
		t.Fatalf("expected project config, got %q (exists=%v)", resolved, exists)
	}
	if !cfg.TestMode() || cfg.API.APIKey != "file-key" || cfg.Pipeline.Workers != 3 {
		t.Fatalf("unexpected config %+v", cfg.API)
	}
	if !reflect.DeepEqual(cfg.Pipeline.Tags, []string{"GENRE V2", "BPM"}) {
		t.Fatalf("unexpected tags %v", cfg.Pipeline.Tags)
	}
	if cfg.Logging.Level != "warning" {
		t.Fatalf("expected lowercased level, got %q", cfg.Logging.Level)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"mode":    "[api]\nmode = \"STAGING\"\n",
		"workers": "[pipeline]\nworkers = 0\n",
		"tags":    "[pipeline]\ntags = [\"FOO\"]\n",
		"backend": "[storage]\nbackend = \"ftp\"\n",
		"s3":      "[storage]\nbackend = \"s3\"\n",
		"level":   "[logging]\nlevel = \"loud\"\n",
		"retry":   "[retry]\nattempts = 0\n",
		"unknown": "[api]\nmodee = \"TEST\"\n",
		"baseurl": "[api]\nbase_url = \"not a url\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			isolate(t)
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, _, _, err := config.Load(path)
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestExplicitMissingPathUsesDefaults(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "absent.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists || resolved != path || cfg.Pipeline.Workers != 5 {
		t.Fatalf("unexpected result %q exists=%v", resolved, exists)
	}
}

func TestRetryPolicyFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Retry.Attempts = 3
	cfg.Retry.MinWaitSeconds = 0.5
	policy := cfg.RetryPolicy()
	if policy.Attempts != 3 || policy.MinWait != 500*time.Millisecond || policy.MaxWait != time.Minute || policy.Multiplier != 2*time.Second {
		t.Fatalf("unexpected policy %+v", policy)
	}
}

func TestSampleConfigMatchesDefaults(t *testing.T) {
	var fromSample config.Config
	if err := toml.Unmarshal([]byte(config.SampleConfig()), &fromSample); err != nil {
		t.Fatalf("decode sample: %v", err)
	}
	if !reflect.DeepEqual(fromSample, config.Default()) {
		t.Fatalf("sample config drifted from defaults:\nsample:   %+v\ndefaults: %+v", fromSample, config.Default())
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[pipeline]") {
		t.Fatalf("unexpected sample contents")
	}
}
