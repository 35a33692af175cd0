package testsupport

import (
	"path/filepath"
	"testing"

	"audiotagger/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Retry waits are zeroed so failing calls do not sleep.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.API.APIKey = "test-key"
	cfgVal.Retry.MultiplierSeconds = 0
	cfgVal.Retry.MinWaitSeconds = 0
	cfgVal.Retry.MaxWaitSeconds = 0
	cfgVal.Paths.LogDir = filepath.Join(base, "log")
	cfgVal.Paths.ResultsDir = filepath.Join(base, "results")
	cfgVal.Paths.ExportDir = filepath.Join(base, "csv")
	cfgVal.Paths.LedgerPath = filepath.Join(base, "history.db")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAPIKey sets the analysis credential on the test config.
func WithAPIKey(key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.APIKey = key
	}
}

// WithBaseURL points the analysis client at a test server.
func WithBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.BaseURL = url
	}
}

// WithTestMode selects the sandbox mode. Pacing is disabled.
func WithTestMode() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Mode = config.ModeTest
		b.cfg.API.TestModeRatePerSecond = 0
	}
}

// WithWorkers overrides the worker pool size.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Workers = n
	}
}

// WithTags overrides the default tag selection.
func WithTags(tags ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Tags = append([]string(nil), tags...)
	}
}

// WithMetricsTextfile enables the Prometheus textfile under the base dir.
func WithMetricsTextfile() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metrics.Textfile = filepath.Join(b.baseDir, "metrics", "audiotagger.prom")
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
